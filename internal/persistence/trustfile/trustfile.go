// Package trustfile stores the trust relation as a YAML document mapping each truster to
// the actors it trusts.
package trustfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"gemcraft.ai/internal/gems/model"
)

type Store struct {
	path string
	log  zerolog.Logger
}

func New(path string, log zerolog.Logger) *Store {
	return &Store{path: path, log: log}
}

func (s *Store) Path() string { return s.path }

// Load reads the file. A missing file is an empty relation; unparseable ids are skipped.
func (s *Store) Load(_ context.Context) (map[model.ActorID][]model.ActorID, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[model.ActorID][]model.ActorID{}, nil
	}
	if err != nil {
		return nil, err
	}
	var raw map[string][]string
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	out := map[model.ActorID][]model.ActorID{}
	for k, vs := range raw {
		a, err := uuid.Parse(k)
		if err != nil {
			s.log.Warn().Str("id", k).Msg("skipping invalid truster id")
			continue
		}
		for _, v := range vs {
			b, err := uuid.Parse(v)
			if err != nil {
				s.log.Warn().Str("id", v).Msg("skipping invalid trustee id")
				continue
			}
			out[a] = append(out[a], b)
		}
	}
	return out, nil
}

// Save rewrites the whole file through a temp file and rename.
func (s *Store) Save(_ context.Context, edges map[model.ActorID][]model.ActorID) error {
	raw := make(map[string][]string, len(edges))
	for a, bs := range edges {
		if len(bs) == 0 {
			continue
		}
		ids := make([]string, 0, len(bs))
		for _, b := range bs {
			ids = append(ids, b.String())
		}
		sort.Strings(ids)
		raw[a.String()] = ids
	}
	b, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
