// Package trust holds the directed trust relation used to keep offensive abilities off
// friendly actors.
package trust

import (
	"context"
	"errors"
	"sort"

	"github.com/rs/zerolog"

	"gemcraft.ai/internal/gems/model"
)

var ErrSelfTrust = errors.New("an actor cannot trust itself")

// Store persists the full relation as truster -> trustees.
type Store interface {
	Load(ctx context.Context) (map[model.ActorID][]model.ActorID, error)
	Save(ctx context.Context, edges map[model.ActorID][]model.ActorID) error
}

type Filter struct {
	store Store
	log   zerolog.Logger

	edges map[model.ActorID]map[model.ActorID]struct{}
}

// New returns an empty filter. store may be nil for a memory-only relation.
func New(store Store, log zerolog.Logger) *Filter {
	return &Filter{
		store: store,
		log:   log,
		edges: map[model.ActorID]map[model.ActorID]struct{}{},
	}
}

// Load replaces the in-memory relation with the stored one. Self edges are dropped.
func (f *Filter) Load(ctx context.Context) error {
	if f.store == nil {
		return nil
	}
	m, err := f.store.Load(ctx)
	if err != nil {
		return err
	}
	f.edges = map[model.ActorID]map[model.ActorID]struct{}{}
	for a, bs := range m {
		for _, b := range bs {
			if a == b {
				continue
			}
			f.add(a, b)
		}
	}
	return nil
}

// Trust adds the edge a -> b. It reports whether the edge is new.
func (f *Filter) Trust(ctx context.Context, a, b model.ActorID) (bool, error) {
	if a == b {
		return false, ErrSelfTrust
	}
	if f.IsTrusted(a, b) {
		return false, nil
	}
	f.add(a, b)
	f.save(ctx)
	return true, nil
}

// Untrust removes the edge a -> b. It reports whether the edge existed.
func (f *Filter) Untrust(ctx context.Context, a, b model.ActorID) bool {
	set := f.edges[a]
	if _, ok := set[b]; !ok {
		return false
	}
	delete(set, b)
	if len(set) == 0 {
		delete(f.edges, a)
	}
	f.save(ctx)
	return true
}

func (f *Filter) IsTrusted(a, b model.ActorID) bool {
	_, ok := f.edges[a][b]
	return ok
}

// Trusted returns the actors a trusts, sorted by id.
func (f *Filter) Trusted(a model.ActorID) []model.ActorID {
	out := make([]model.ActorID, 0, len(f.edges[a]))
	for b := range f.edges[a] {
		out = append(out, b)
	}
	sortIDs(out)
	return out
}

// Snapshot returns a copy of the relation in the store's shape.
func (f *Filter) Snapshot() map[model.ActorID][]model.ActorID {
	out := make(map[model.ActorID][]model.ActorID, len(f.edges))
	for a := range f.edges {
		out[a] = f.Trusted(a)
	}
	return out
}

func (f *Filter) add(a, b model.ActorID) {
	set := f.edges[a]
	if set == nil {
		set = map[model.ActorID]struct{}{}
		f.edges[a] = set
	}
	set[b] = struct{}{}
}

// save writes the whole relation. Failures are logged and the in-memory change stands; the
// next mutation writes everything again.
func (f *Filter) save(ctx context.Context) {
	if f.store == nil {
		return
	}
	if err := f.store.Save(ctx, f.Snapshot()); err != nil {
		f.log.Error().Err(err).Int("truster_count", len(f.edges)).Msg("trust save failed")
	}
}

func sortIDs(ids []model.ActorID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}
