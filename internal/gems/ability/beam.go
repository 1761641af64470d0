package ability

import (
	"math"

	"gemcraft.ai/internal/gems/model"
)

// eyeHeight and bodyCenter are offsets from an actor's feet.
const (
	eyeHeight  = 1.62
	bodyCenter = 0.9
)

// Candidate is a possible beam target.
type Candidate struct {
	ID  model.ActorID
	Pos model.Vec3f // feet position
}

// Beam returns the candidate nearest to origin whose body center lies within width of the
// segment from origin along dir of length rng.
func Beam(origin, dir model.Vec3f, rng, width float64, cands []Candidate) (model.ActorID, bool) {
	dir = dir.Normalize()
	if dir == (model.Vec3f{}) {
		return model.ActorID{}, false
	}
	var (
		best  model.ActorID
		bestT = math.Inf(1)
		found bool
	)
	for _, c := range cands {
		rel := c.Pos.Add(model.Vec3f{Y: bodyCenter}).Sub(origin)
		t := rel.Dot(dir)
		if t < 0 || t > rng {
			continue
		}
		if rel.Sub(dir.Scale(t)).Len() > width {
			continue
		}
		if t < bestT {
			best, bestT, found = c.ID, t, true
		}
	}
	return best, found
}
