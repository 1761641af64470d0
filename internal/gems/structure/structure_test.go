package structure

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gemcraft.ai/internal/gems/model"
)

func TestShellBand(t *testing.T) {
	c := model.Vec3i{X: 10, Y: 64, Z: -3}
	ps := Shell(c, 4, 0.5)
	require.NotEmpty(t, ps)

	seen := map[model.Vec3i]bool{}
	for _, p := range ps {
		d := math.Sqrt(float64((p.X-c.X)*(p.X-c.X) + (p.Y-c.Y)*(p.Y-c.Y) + (p.Z-c.Z)*(p.Z-c.Z)))
		assert.GreaterOrEqual(t, d, 3.5)
		assert.LessOrEqual(t, d, 4.5)
		assert.False(t, seen[p], "duplicate %v", p)
		seen[p] = true
	}
	assert.True(t, seen[c.Add(model.Vec3i{X: 4})])
	assert.True(t, seen[c.Add(model.Vec3i{Y: -4})])
	assert.False(t, seen[c])
	assert.False(t, seen[c.Add(model.Vec3i{X: 3})])
}

func TestProtectRelease(t *testing.T) {
	r := NewRegistry()
	a, b := uuid.New(), uuid.New()
	p1, p2, p3 := model.Vec3i{X: 1}, model.Vec3i{X: 2}, model.Vec3i{X: 3}

	r.Protect(a, []model.Vec3i{p1, p2})
	r.Protect(b, []model.Vec3i{p2, p3})
	assert.True(t, r.Blocked(p1))
	owner, ok := r.Owner(p2)
	require.True(t, ok)
	assert.Equal(t, a, owner)

	released := r.Release(a)
	assert.ElementsMatch(t, []model.Vec3i{p1, p2}, released)
	assert.False(t, r.Blocked(p1))
	assert.False(t, r.Blocked(p2))
	assert.True(t, r.Blocked(p3))

	r.Release(b)
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Release(b))
}
