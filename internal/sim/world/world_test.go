package world

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gemcraft.ai/internal/gems/model"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestWorld(t *testing.T) *World {
	t.Helper()
	w, err := New(WorldConfig{ID: "test", TickRateHz: 20, Epoch: epoch, EquipSlot: OffHandSlot}, zerolog.Nop())
	require.NoError(t, err)
	return w
}

func TestNewValidates(t *testing.T) {
	_, err := New(WorldConfig{TickRateHz: 0}, zerolog.Nop())
	assert.Error(t, err)
	_, err = New(WorldConfig{TickRateHz: 20, EquipSlot: 41}, zerolog.Nop())
	assert.Error(t, err)
}

func TestClockFollowsTicks(t *testing.T) {
	w := newTestWorld(t)
	clk := w.Clock()
	assert.Equal(t, epoch, clk.Now())
	w.Advance(20)
	assert.Equal(t, epoch.Add(time.Second), clk.Now())
	assert.Equal(t, uint64(20), w.CurrentTick())
}

func TestEffectsDecayInStepWithClock(t *testing.T) {
	w := newTestWorld(t)
	a := w.Join(uuid.Nil, "a", model.Vec3f{})

	require.True(t, w.SetEffect(a, model.EffectSpec{Type: model.Speed, DurationTicks: 40}, false))
	expiry := w.Clock().Now().Add(40 * w.TickDuration())
	w.Advance(15)
	e, ok := w.Effect(a, model.Speed)
	require.True(t, ok)
	observed := w.Clock().Now().Add(time.Duration(e.RemainingTicks) * w.TickDuration())
	assert.Equal(t, expiry, observed)

	w.Advance(25)
	_, ok = w.Effect(a, model.Speed)
	assert.False(t, ok)
}

func TestSetEffectPrecedence(t *testing.T) {
	w := newTestWorld(t)
	a := w.Join(uuid.Nil, "a", model.Vec3f{})

	require.True(t, w.SetEffect(a, model.EffectSpec{Type: model.Haste, DurationTicks: model.InfiniteDuration, Amplifier: 2}, false))
	assert.False(t, w.SetEffect(a, model.EffectSpec{Type: model.Haste, DurationTicks: 100, Amplifier: 1}, false))
	assert.False(t, w.SetEffect(a, model.EffectSpec{Type: model.Haste, DurationTicks: 100, Amplifier: 2}, false))
	assert.True(t, w.SetEffect(a, model.EffectSpec{Type: model.Haste, DurationTicks: 100, Amplifier: 4}, false))
	assert.True(t, w.SetEffect(a, model.EffectSpec{Type: model.Haste, DurationTicks: 5, Amplifier: 0}, true))

	e, _ := w.Effect(a, model.Haste)
	assert.Equal(t, 0, e.Amplifier)
	assert.Equal(t, 5, e.RemainingTicks)
}

func TestInventoryAndOffHand(t *testing.T) {
	w := newTestWorld(t)
	a := w.Join(uuid.Nil, "a", model.Vec3f{})

	slot, ok := w.PickUp(a, model.Item{ID: "g1", Material: "AMETHYST_SHARD", Gem: model.GemAstra})
	require.True(t, ok)
	assert.Equal(t, 0, slot)
	_, equipped := w.Equipped(a)
	assert.False(t, equipped)

	w.SwapHands(a, 0)
	it, equipped := w.Equipped(a)
	require.True(t, equipped)
	assert.Equal(t, model.GemAstra, it.Gem)
	assert.Len(t, w.ScanSlots(a), 1)
}

func TestFallAndLand(t *testing.T) {
	w := newTestWorld(t)
	a := w.Join(uuid.Nil, "a", model.Vec3f{X: 0.5, Y: 0, Z: 0.5})
	require.True(t, w.OnGround(a))

	w.Step([]Input{{Actor: a, Kind: InputJump}})
	w.Step(nil)
	assert.False(t, w.OnGround(a))
	w.Advance(40)
	assert.True(t, w.OnGround(a))
	p, _ := w.Position(a)
	assert.Equal(t, 0.0, p.Y)
}

func TestBurnRespectsFireResistance(t *testing.T) {
	w := newTestWorld(t)
	a := w.Join(uuid.Nil, "a", model.Vec3f{})
	b := w.Join(uuid.Nil, "b", model.Vec3f{X: 5})
	w.SetEffect(b, model.EffectSpec{Type: model.FireResistance, DurationTicks: model.InfiniteDuration}, false)

	w.Ignite(a, 60)
	w.Ignite(b, 60)
	w.Advance(60)
	actorA, _ := w.Actor(a)
	actorB, _ := w.Actor(b)
	assert.Equal(t, MaxHealth-3, actorA.Health)
	assert.Equal(t, MaxHealth, actorB.Health)
	assert.Equal(t, 0, actorA.BurnTicks)
}

func TestActorsNearSortedAndBounded(t *testing.T) {
	w := newTestWorld(t)
	a := w.Join(uuid.Nil, "a", model.Vec3f{})
	b := w.Join(uuid.Nil, "b", model.Vec3f{X: 2})
	w.Join(uuid.Nil, "c", model.Vec3f{X: 10})

	near := w.ActorsNear(model.Vec3f{}, 3)
	assert.ElementsMatch(t, []model.ActorID{a, b}, near)
}

func TestLeaveRemovesActor(t *testing.T) {
	w := newTestWorld(t)
	a := w.Join(uuid.Nil, "a", model.Vec3f{})
	w.Step([]Input{{Actor: a, Kind: InputLeave}})
	assert.False(t, w.Online(a))
	w.Notify(a, "gone", model.SeverityInfo)
}

func TestDoRunsOnLoop(t *testing.T) {
	w := newTestWorld(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	var id model.ActorID
	require.NoError(t, w.Do(ctx, func() { id = w.Join(uuid.Nil, "a", model.Vec3f{}) }))
	var online bool
	require.NoError(t, w.Do(ctx, func() { online = w.Online(id) }))
	assert.True(t, online)

	w.Stop()
	assert.NoError(t, <-errCh)
}

type recordingSink struct{ got []Notice }

func (r *recordingSink) WriteNotice(n Notice) { r.got = append(r.got, n) }

func TestNoticesAreKeptAndForwarded(t *testing.T) {
	w := newTestWorld(t)
	sink := &recordingSink{}
	w.SetNoticeSink(sink)
	a := w.Join(uuid.Nil, "a", model.Vec3f{})
	for i := 0; i < noticeHistory+5; i++ {
		w.Notify(a, "hi", model.SeverityInfo)
	}
	actor, _ := w.Actor(a)
	assert.Len(t, actor.Notices, noticeHistory)
	assert.Len(t, sink.got, noticeHistory+5)
}
