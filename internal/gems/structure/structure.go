// Package structure tracks block positions that belong to temporary ability structures and
// must not be altered by anything else while they stand.
package structure

import (
	"math"

	"gemcraft.ai/internal/gems/model"
)

// Registry maps protected positions to the actor whose structure owns them. A position has
// at most one owner.
type Registry struct {
	byPos   map[model.Vec3i]model.ActorID
	byOwner map[model.ActorID][]model.Vec3i
}

func NewRegistry() *Registry {
	return &Registry{
		byPos:   map[model.Vec3i]model.ActorID{},
		byOwner: map[model.ActorID][]model.Vec3i{},
	}
}

// Protect adds positions to owner's protected set. Positions already held by another owner
// are left with that owner.
func (r *Registry) Protect(owner model.ActorID, positions []model.Vec3i) {
	for _, p := range positions {
		if _, taken := r.byPos[p]; taken {
			continue
		}
		r.byPos[p] = owner
		r.byOwner[owner] = append(r.byOwner[owner], p)
	}
}

// Release lifts protection from everything owner holds and returns those positions.
func (r *Registry) Release(owner model.ActorID) []model.Vec3i {
	ps := r.byOwner[owner]
	for _, p := range ps {
		delete(r.byPos, p)
	}
	delete(r.byOwner, owner)
	return ps
}

func (r *Registry) Blocked(p model.Vec3i) bool {
	_, ok := r.byPos[p]
	return ok
}

// Owner returns the actor protecting p.
func (r *Registry) Owner(p model.Vec3i) (model.ActorID, bool) {
	a, ok := r.byPos[p]
	return a, ok
}

// Len returns the number of protected positions.
func (r *Registry) Len() int { return len(r.byPos) }

// Shell returns the block positions whose offset from center has a length within
// [radius-band, radius+band], ordered by y, then x, then z.
func Shell(center model.Vec3i, radius, band float64) []model.Vec3i {
	lo, hi := radius-band, radius+band
	if lo < 0 {
		lo = 0
	}
	r := int(math.Ceil(hi))
	var out []model.Vec3i
	for y := -r; y <= r; y++ {
		for x := -r; x <= r; x++ {
			for z := -r; z <= r; z++ {
				d := math.Sqrt(float64(x*x + y*y + z*z))
				if d >= lo && d <= hi {
					out = append(out, center.Add(model.Vec3i{X: x, Y: y, Z: z}))
				}
			}
		}
	}
	return out
}
