package effects

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gemcraft.ai/internal/gems/model"
	"gemcraft.ai/internal/sim/clock"
)

const tick = 50 * time.Millisecond

type fakeEffects struct {
	clk *clock.Manual
	m   map[model.ActorID]map[model.EffectType]applied
}

type applied struct {
	spec model.EffectSpec
	at   time.Time
}

func newFake(clk *clock.Manual) *fakeEffects {
	return &fakeEffects{clk: clk, m: map[model.ActorID]map[model.EffectType]applied{}}
}

func (f *fakeEffects) Effect(a model.ActorID, typ model.EffectType) (model.ActiveEffect, bool) {
	e, ok := f.m[a][typ]
	if !ok {
		return model.ActiveEffect{}, false
	}
	if e.spec.Infinite() {
		return model.ActiveEffect{Type: typ, Infinite: true, Amplifier: e.spec.Amplifier}, true
	}
	elapsed := int(f.clk.Now().Sub(e.at) / tick)
	left := e.spec.DurationTicks - elapsed
	if left <= 0 {
		return model.ActiveEffect{}, false
	}
	return model.ActiveEffect{Type: typ, RemainingTicks: left, Amplifier: e.spec.Amplifier}, true
}

func (f *fakeEffects) SetEffect(a model.ActorID, spec model.EffectSpec, override bool) bool {
	if cur, ok := f.Effect(a, spec.Type); ok && !override && cur.Amplifier > spec.Amplifier {
		return false
	}
	if f.m[a] == nil {
		f.m[a] = map[model.EffectType]applied{}
	}
	f.m[a][spec.Type] = applied{spec: spec, at: f.clk.Now()}
	return true
}

func (f *fakeEffects) ClearEffect(a model.ActorID, typ model.EffectType) {
	delete(f.m[a], typ)
}

func setup() (*clock.Manual, *fakeEffects, *Tracker) {
	clk := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	fx := newFake(clk)
	return clk, fx, New(fx, clk, tick, time.Second)
}

func TestApplyRecordsAndRemoveRevokes(t *testing.T) {
	clk, fx, tr := setup()
	a := uuid.New()

	require.True(t, tr.Apply(a, model.EffectSpec{Type: model.Speed, DurationTicks: 200, Amplifier: 1}))
	rec, ok := tr.Owned(a, model.Speed)
	require.True(t, ok)
	assert.Equal(t, clk.Now().Add(10*time.Second), rec.Expiry)

	clk.Advance(3 * time.Second)
	tr.Remove(a, model.Speed)
	_, present := fx.Effect(a, model.Speed)
	assert.False(t, present)
	assert.Equal(t, 0, tr.Len(a))
}

func TestApplyNeverDowngrades(t *testing.T) {
	_, fx, tr := setup()
	a := uuid.New()
	fx.SetEffect(a, model.EffectSpec{Type: model.Haste, DurationTicks: model.InfiniteDuration, Amplifier: 4}, true)

	assert.False(t, tr.Apply(a, model.EffectSpec{Type: model.Haste, DurationTicks: model.InfiniteDuration, Amplifier: 2}))
	_, owned := tr.Owned(a, model.Haste)
	assert.False(t, owned)
	cur, _ := fx.Effect(a, model.Haste)
	assert.Equal(t, 4, cur.Amplifier)
}

func TestRemoveLeavesExternallyReappliedEffect(t *testing.T) {
	clk, fx, tr := setup()
	a := uuid.New()

	require.True(t, tr.Apply(a, model.EffectSpec{Type: model.Speed, DurationTicks: 200}))
	clk.Advance(time.Second)
	// Another source applies a longer effect of the same type.
	fx.SetEffect(a, model.EffectSpec{Type: model.Speed, DurationTicks: 2400}, true)

	tr.Remove(a, model.Speed)
	cur, present := fx.Effect(a, model.Speed)
	require.True(t, present)
	assert.Equal(t, 2400, cur.RemainingTicks)
	_, owned := tr.Owned(a, model.Speed)
	assert.False(t, owned, "tracking entry is cleared either way")
}

func TestRemoveInfiniteMatchesOnlyInfinite(t *testing.T) {
	_, fx, tr := setup()
	a := uuid.New()

	require.True(t, tr.Apply(a, model.EffectSpec{Type: model.Invisibility, DurationTicks: model.InfiniteDuration}))
	fx.SetEffect(a, model.EffectSpec{Type: model.Invisibility, DurationTicks: 600}, true)
	tr.Remove(a, model.Invisibility)
	_, present := fx.Effect(a, model.Invisibility)
	assert.True(t, present)

	require.True(t, tr.Apply(a, model.EffectSpec{Type: model.FireResistance, DurationTicks: model.InfiniteDuration}))
	tr.Remove(a, model.FireResistance)
	_, present = fx.Effect(a, model.FireResistance)
	assert.False(t, present)
}

func TestRemoveWhenAlreadyGone(t *testing.T) {
	clk, _, tr := setup()
	a := uuid.New()

	require.True(t, tr.Apply(a, model.EffectSpec{Type: model.Slowness, DurationTicks: 20}))
	clk.Advance(5 * time.Second)
	tr.Remove(a, model.Slowness)
	assert.Equal(t, 0, tr.Len(a))

	tr.Remove(uuid.New(), model.Slowness)
}

func TestPurgeAllKeepsEffects(t *testing.T) {
	_, fx, tr := setup()
	a := uuid.New()
	tr.Apply(a, model.EffectSpec{Type: model.Strength, DurationTicks: model.InfiniteDuration, Amplifier: 1})
	tr.Apply(a, model.EffectSpec{Type: model.Speed, DurationTicks: model.InfiniteDuration})

	tr.PurgeAll(a)
	assert.Equal(t, 0, tr.Len(a))
	_, present := fx.Effect(a, model.Strength)
	assert.True(t, present)
}

func TestRemoveToleranceIsInclusive(t *testing.T) {
	cases := []struct {
		name    string
		reapply time.Duration
		revoked bool
	}{
		{"same instant", 0, true},
		{"half a second", 500 * time.Millisecond, true},
		{"exactly one second", time.Second, true},
		{"one tick past", time.Second + tick, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clk, fx, tr := setup()
			a := uuid.New()
			require.True(t, tr.Apply(a, model.EffectSpec{Type: model.Speed, DurationTicks: 200}))
			clk.Advance(tc.reapply)
			fx.SetEffect(a, model.EffectSpec{Type: model.Speed, DurationTicks: 200}, true)

			tr.Remove(a, model.Speed)
			_, present := fx.Effect(a, model.Speed)
			assert.Equal(t, tc.revoked, !present)
		})
	}
}
