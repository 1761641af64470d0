package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gemcraft.ai/internal/gems/ability"
	"gemcraft.ai/internal/gems/model"
	"gemcraft.ai/internal/gems/tuning"
	"gemcraft.ai/internal/sim/world"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type memJournal struct {
	entries []ActivationEntry
}

func (m *memJournal) WriteActivation(e ActivationEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

type rig struct {
	w     *world.World
	e     *Engine
	j     *memJournal
	roll  int
	rolls int
}

func newRig(t *testing.T, mut func(*tuning.Config)) *rig {
	t.Helper()
	w, err := world.New(world.WorldConfig{ID: "test", TickRateHz: 20, Epoch: epoch, EquipSlot: world.OffHandSlot}, zerolog.Nop())
	require.NoError(t, err)
	cfg := tuning.Defaults()
	if mut != nil {
		mut(&cfg)
	}
	r := &rig{w: w, j: &memJournal{}, roll: 99}
	e, err := New(Options{
		Host:    w,
		Clock:   w.Clock(),
		Config:  cfg,
		Journal: r.j,
		Roll:    func(int) int { r.rolls++; return r.roll },
		Log:     zerolog.Nop(),
	})
	require.NoError(t, err)
	w.SetHandler(e)
	r.e = e
	return r
}

func (r *rig) join(x, z float64) model.ActorID {
	return r.w.Join(uuid.Nil, "", model.Vec3f{X: x, Z: z})
}

func (r *rig) equip(t *testing.T, a model.ActorID, g model.GemType) {
	t.Helper()
	slot, err := r.e.GiveGem(a, g)
	require.NoError(t, err)
	r.w.MoveItem(a, slot, world.OffHandSlot)
	got, ok := r.e.ActiveGem(a)
	require.True(t, ok)
	require.Equal(t, g, got)
}

func (r *rig) actor(t *testing.T, a model.ActorID) *world.Actor {
	t.Helper()
	act, ok := r.w.Actor(a)
	require.True(t, ok)
	return act
}

func (r *rig) effect(a model.ActorID, typ model.EffectType) (model.ActiveEffect, bool) {
	return r.w.Effect(a, typ)
}

func TestPrimaryCooldownEndToEnd(t *testing.T) {
	r := newRig(t, nil)
	a := r.join(0.5, 0.5)
	r.equip(t, a, model.GemInvis)

	require.NoError(t, r.e.OnAbilityInput(a))
	assert.True(t, r.actor(t, a).Hidden)
	assert.Equal(t, ability.PrimaryActive, r.e.State(a))

	r.w.Advance(10 * 20)
	err := r.e.OnAbilityInput(a)
	rej, ok := ability.AsRejected(err)
	require.True(t, ok)
	assert.Equal(t, ability.ReasonCooldown, rej.Reason)
	assert.Equal(t, 35, rej.Remaining)
	assert.True(t, r.actor(t, a).Hidden)

	r.w.Advance(6 * 20)
	assert.False(t, r.actor(t, a).Hidden)
	assert.Equal(t, ability.PassiveApplied, r.e.State(a))
	_, invisible := r.effect(a, model.Invisibility)
	assert.True(t, invisible, "passive baseline stays")

	r.w.Advance(30 * 20)
	require.NoError(t, r.e.OnAbilityInput(a))

	require.Len(t, r.j.entries, 3)
	assert.True(t, r.j.entries[0].Accepted)
	assert.False(t, r.j.entries[1].Accepted)
	assert.Equal(t, "cooldown", r.j.entries[1].Reason)
	assert.True(t, r.j.entries[2].Accepted)
}

func TestDisconnectTearsEverythingDown(t *testing.T) {
	r := newRig(t, nil)
	a := r.join(0.5, 0.5)
	r.equip(t, a, model.GemIce)
	require.NoError(t, r.e.OnAbilityInput(a))
	r.w.Advance(5)
	require.NotZero(t, r.e.Stats().ProtectedCount)
	require.NotZero(t, r.w.PendingTasks())

	r.w.Leave(a)

	assert.Equal(t, 0, r.e.tasks.Len(a))
	assert.Equal(t, 0, r.e.cooldowns.Len(a))
	assert.Equal(t, 0, r.e.effects.Len(a))
	assert.Equal(t, 0, r.w.PendingTasks())
	assert.Equal(t, 0, r.e.Stats().ProtectedCount)
	assert.Equal(t, 0, r.w.BlockCount(model.HoneyBlock))
	_, ok := r.e.ActiveGem(a)
	assert.False(t, ok)
}

func TestGiveGemKeepsEarliest(t *testing.T) {
	r := newRig(t, nil)
	a := r.join(0, 0)

	_, err := r.e.GiveGem(a, model.GemFire)
	require.NoError(t, err)
	r.w.Advance(1)
	_, err = r.e.GiveGem(a, model.GemIce)
	require.NoError(t, err)

	slots := r.w.ScanSlots(a)
	require.Len(t, slots, 1)
	assert.Equal(t, model.GemFire, slots[0].Item.Gem)

	_, err = r.e.GiveGem(uuid.New(), model.GemFire)
	assert.ErrorIs(t, err, ErrOffline)
}

func TestSwitchingGemMovesPassives(t *testing.T) {
	r := newRig(t, nil)
	a := r.join(0, 0)
	r.equip(t, a, model.GemAstra)
	assert.Equal(t, 1, r.e.tasks.Len(a))
	_, ok := r.effect(a, model.Invisibility)
	assert.True(t, ok)

	r.w.MoveItem(a, world.OffHandSlot, 3)
	_, active := r.e.ActiveGem(a)
	assert.False(t, active)
	assert.Equal(t, 0, r.e.tasks.Len(a))
	_, ok = r.effect(a, model.Invisibility)
	assert.False(t, ok)
	assert.Equal(t, ability.Inactive, r.e.State(a))
}

func TestAstraCyclesInvisibility(t *testing.T) {
	r := newRig(t, nil)
	a := r.join(0, 0)
	r.equip(t, a, model.GemAstra)
	astra := r.e.Ability(model.GemAstra).(*ability.Astra)

	r.w.Advance(99)
	_, ok := r.effect(a, model.Invisibility)
	assert.True(t, ok)
	assert.False(t, astra.Visible(a))

	r.w.Advance(1)
	_, ok = r.effect(a, model.Invisibility)
	assert.False(t, ok)
	assert.True(t, astra.Visible(a))

	r.w.Advance(100)
	_, ok = r.effect(a, model.Invisibility)
	assert.True(t, ok)
}

func TestExternalStrongerEffectSurvivesUnequip(t *testing.T) {
	r := newRig(t, nil)
	a := r.join(0, 0)
	r.w.SetEffect(a, model.EffectSpec{Type: model.Speed, DurationTicks: model.InfiniteDuration, Amplifier: 5}, false)

	r.equip(t, a, model.GemInvis)
	r.w.MoveItem(a, world.OffHandSlot, 1)

	e, ok := r.effect(a, model.Speed)
	require.True(t, ok)
	assert.Equal(t, 5, e.Amplifier)
	_, ok = r.effect(a, model.Invisibility)
	assert.False(t, ok)
}

func TestSpeedBoostRevertsToPassive(t *testing.T) {
	r := newRig(t, nil)
	a := r.join(0, 0)
	r.equip(t, a, model.GemSpeed)

	require.NoError(t, r.e.OnAbilityInput(a))
	r.w.Advance(10)
	e, ok := r.effect(a, model.Haste)
	require.True(t, ok)
	assert.Equal(t, 4, e.Amplifier)

	r.w.Advance(300)
	e, ok = r.effect(a, model.Haste)
	require.True(t, ok)
	assert.Equal(t, 2, e.Amplifier)
	assert.True(t, e.Infinite)
	assert.Equal(t, ability.PassiveApplied, r.e.State(a))
}

func TestIceCageProtectsThenMelts(t *testing.T) {
	r := newRig(t, nil)
	a := r.join(0.5, 0.5)
	enemy := r.join(2.5, 0.5)
	friend := r.join(0.5, 2.5)
	_, err := r.e.Trust(context.Background(), a, friend)
	require.NoError(t, err)
	r.equip(t, a, model.GemIce)

	require.NoError(t, r.e.OnAbilityInput(a))
	wall := model.Vec3i{X: 4}
	assert.Equal(t, model.HoneyBlock, r.w.Block(wall))
	assert.True(t, r.e.IsBlocked(wall))
	assert.False(t, r.w.Break(enemy, wall))
	assert.Equal(t, model.Stone, r.w.Block(model.Vec3i{Y: -4}), "cage only fills air")

	r.w.Advance(1)
	slow, ok := r.effect(enemy, model.Slowness)
	require.True(t, ok)
	assert.Equal(t, 1, slow.Amplifier)
	_, ok = r.effect(friend, model.Slowness)
	assert.False(t, ok)
	_, ok = r.effect(a, model.Slowness)
	assert.False(t, ok)

	r.w.Advance(20 * 20)
	assert.Equal(t, model.Air, r.w.Block(wall))
	assert.False(t, r.e.IsBlocked(wall))
	assert.Equal(t, 0, r.w.BlockCount(model.HoneyBlock))
	assert.Equal(t, ability.PassiveApplied, r.e.State(a))
	assert.Equal(t, "Ice Cage melted", r.actor(t, a).Notices[len(r.actor(t, a).Notices)-1].Text)
}

func TestIceContactSpeed(t *testing.T) {
	r := newRig(t, nil)
	a := r.join(0.5, 0.5)
	r.equip(t, a, model.GemIce)
	r.w.SetBlock(model.Vec3i{X: 3, Y: -1}, model.PackedIce)

	to := model.Vec3f{X: 3.5, Z: 0.5}
	r.w.Step([]world.Input{{Actor: a, Kind: world.InputMove, Pos: &to}})
	e, ok := r.effect(a, model.Speed)
	require.True(t, ok)
	assert.Equal(t, 3, e.Amplifier)

	r.w.Advance(60)
	_, ok = r.effect(a, model.Speed)
	assert.False(t, ok)
}

func TestFireAuraBurnsEnemiesAndDrainsWater(t *testing.T) {
	r := newRig(t, nil)
	a := r.join(0.5, 0.5)
	enemy := r.join(2.5, 0.5)
	r.w.SetBlock(model.Vec3i{X: 1, Z: 1}, model.Water)
	r.equip(t, a, model.GemFire)
	_, ok := r.effect(a, model.FireResistance)
	require.True(t, ok)

	require.NoError(t, r.e.OnAbilityInput(a))
	r.w.Advance(1)
	assert.Greater(t, r.actor(t, enemy).BurnTicks, 0)
	assert.Equal(t, model.Air, r.w.Block(model.Vec3i{X: 1, Z: 1}))

	r.w.Advance(15*20 + 10)
	assert.Equal(t, 0, r.e.tasks.Len(a))
	assert.Equal(t, ability.PassiveApplied, r.e.State(a))
	_, ok = r.effect(a, model.FireResistance)
	assert.True(t, ok)
}

func TestCombatHooksRespectTrust(t *testing.T) {
	r := newRig(t, nil)
	a := r.join(0, 0)
	b := r.join(1, 0)
	r.equip(t, a, model.GemStrength)
	require.NoError(t, r.e.OnAbilityInput(a))

	dmg, cancelled := r.e.OnCombatEvent(a, b, 4)
	assert.False(t, cancelled)
	assert.Equal(t, 6.0, dmg)

	_, err := r.e.Trust(context.Background(), a, b)
	require.NoError(t, err)
	dmg, _ = r.e.OnCombatEvent(a, b, 4)
	assert.Equal(t, 4.0, dmg)
}

func TestPuffNegatesUnlessVictimTrustsAttacker(t *testing.T) {
	r := newRig(t, nil)
	a := r.join(0, 0)
	b := r.join(1, 0)
	r.equip(t, b, model.GemPuff)
	r.roll = 0

	r.w.Attack(a, b, 5)
	assert.Equal(t, world.MaxHealth, r.actor(t, b).Health)

	_, err := r.e.Trust(context.Background(), b, a)
	require.NoError(t, err)
	r.w.Attack(a, b, 5)
	assert.Equal(t, world.MaxHealth-5, r.actor(t, b).Health)
}

func TestPuffDoubleJumpRateLimited(t *testing.T) {
	r := newRig(t, nil)
	a := r.join(0.5, 0.5)
	r.equip(t, a, model.GemPuff)
	act := r.actor(t, a)
	assert.True(t, act.AllowFlight)

	lift := func() {
		act.Pos.Y = 3
		act.Velocity = model.Vec3f{}
	}
	lift()
	assert.True(t, r.e.OnJump(a))
	assert.Equal(t, 0.6, act.Velocity.Y)
	lift()
	assert.False(t, r.e.OnJump(a))

	r.w.Advance(5 * 20)
	lift()
	assert.True(t, r.e.OnJump(a))

	act.Pos.Y = 0
	act.Velocity = model.Vec3f{}
	r.w.Advance(5 * 20)
	assert.False(t, r.e.OnJump(a), "grounded actors do not double jump")
}

func TestDisabledGemHasNoPassiveOrPrimary(t *testing.T) {
	r := newRig(t, nil)
	a := r.join(0, 0)
	r.equip(t, a, model.GemFire)

	r.e.SetGemEnabled(model.GemFire, false)
	assert.False(t, r.e.Enabled(model.GemFire))
	_, ok := r.effect(a, model.FireResistance)
	assert.False(t, ok)
	rej, ok := ability.AsRejected(r.e.OnAbilityInput(a))
	require.True(t, ok)
	assert.Equal(t, ability.ReasonDisabled, rej.Reason)
	assert.Equal(t, ability.Inactive, r.e.State(a))

	r.e.SetGemEnabled(model.GemFire, true)
	_, ok = r.effect(a, model.FireResistance)
	assert.True(t, ok)
}

func TestNoGemRejectedAndSwapStillWorks(t *testing.T) {
	r := newRig(t, nil)
	a := r.join(0, 0)
	rej, ok := ability.AsRejected(r.e.OnAbilityInput(a))
	require.True(t, ok)
	assert.Equal(t, ability.ReasonNoGem, rej.Reason)

	_, err := r.e.GiveGem(a, model.GemSpeed)
	require.NoError(t, err)
	r.w.SwapHands(a, 0)
	g, ok := r.e.ActiveGem(a)
	require.True(t, ok)
	assert.Equal(t, model.GemSpeed, g)

	r.w.SwapHands(a, 0)
	assert.Equal(t, ability.PrimaryActive, r.e.State(a), "swap with an active gem activates instead")
}

func TestGemsCannotBePlaced(t *testing.T) {
	r := newRig(t, nil)
	a := r.join(0, 0)
	slot, err := r.e.GiveGem(a, model.GemIce)
	require.NoError(t, err)
	assert.False(t, r.w.Place(a, slot, model.Vec3i{X: 2}))

	stone, ok := r.w.PickUp(a, model.Item{ID: "stone", Material: string(model.Stone)})
	require.True(t, ok)
	assert.True(t, r.w.Place(a, stone, model.Vec3i{X: 2}))
}

func TestReloadAppliesNewCooldowns(t *testing.T) {
	r := newRig(t, nil)
	a := r.join(0, 0)
	r.equip(t, a, model.GemPuff)

	cfg := tuning.Defaults()
	cfg.Cooldowns["puff"][tuning.Primary] = 2
	cfg.TickRateHz = 40
	cfg.EquipSlot = 0
	require.NoError(t, r.e.Reload(cfg))
	assert.Equal(t, 20, r.e.Config().TickRateHz)
	assert.Equal(t, world.OffHandSlot, r.e.Config().EquipSlot)
	g, ok := r.e.ActiveGem(a)
	require.True(t, ok)
	assert.Equal(t, model.GemPuff, g)

	require.NoError(t, r.e.OnAbilityInput(a))
	assert.Equal(t, map[model.AbilityKey]int{model.Primary(model.GemPuff): 2}, r.e.Cooldowns(a))
	r.w.Advance(2 * 20)
	assert.NoError(t, r.e.OnAbilityInput(a))

	bad := tuning.Defaults()
	bad.ReconcilePolicy = "newest"
	assert.Error(t, r.e.Reload(bad))
}

func TestStatus(t *testing.T) {
	r := newRig(t, nil)
	a := r.join(0, 0)
	b := r.join(1, 0)
	r.equip(t, a, model.GemStrength)
	_, err := r.e.Trust(context.Background(), a, b)
	require.NoError(t, err)
	require.NoError(t, r.e.OnAbilityInput(a))

	st := r.e.Status(a)
	assert.Equal(t, model.GemStrength, st.Gem)
	assert.True(t, st.Enabled)
	assert.Equal(t, "primary_active", st.Phase)
	assert.Equal(t, 60, st.Cooldowns["strength_primary"])
	assert.Equal(t, []string{b.String()}, st.Trusted)
	assert.Equal(t, 1, st.Tasks)
	assert.Equal(t, 1, st.OwnedEffects)
}

func TestAstraBeamHitsNearestHostileInFront(t *testing.T) {
	r := newRig(t, nil)
	a := r.join(0.5, 0.5)
	friend := r.join(2.5, 0.5)
	enemy := r.join(4.5, 0.5)
	behind := r.join(-1.5, 0.5)
	distant := r.join(7.5, 0.5)
	r.equip(t, a, model.GemAstra)
	r.actor(t, a).Facing = model.Vec3f{X: 1}
	_, err := r.e.Trust(context.Background(), a, friend)
	require.NoError(t, err)

	require.NoError(t, r.e.OnAbilityInput(a))
	cfg := r.e.Config().Astra
	assert.Equal(t, world.MaxHealth-cfg.BeamDamage, r.actor(t, enemy).Health)
	for _, id := range []model.ActorID{friend, behind, distant} {
		assert.Equal(t, world.MaxHealth, r.actor(t, id).Health)
	}
	notices := r.actor(t, a).Notices
	assert.Equal(t, "Beam fired!", notices[len(notices)-1].Text)

	err = r.e.OnAbilityInput(a)
	rej, ok := ability.AsRejected(err)
	require.True(t, ok)
	assert.Equal(t, ability.ReasonCooldown, rej.Reason)
	assert.Equal(t, world.MaxHealth-cfg.BeamDamage, r.actor(t, enemy).Health)
}

func TestAstraBeamWithNoTargetStillCoolsDown(t *testing.T) {
	r := newRig(t, nil)
	a := r.join(0.5, 0.5)
	side := r.join(0.5, 4.5)
	r.equip(t, a, model.GemAstra)
	r.actor(t, a).Facing = model.Vec3f{X: 1}

	require.NoError(t, r.e.OnAbilityInput(a))
	assert.Equal(t, world.MaxHealth, r.actor(t, side).Health)
	assert.Equal(t, map[model.AbilityKey]int{model.Primary(model.GemAstra): 30}, r.e.Cooldowns(a))
}

func TestStrengthDoubleDamageRoll(t *testing.T) {
	cases := []struct {
		name string
		roll int
		want float64
	}{
		{name: "roll under chance doubles", roll: 0, want: 8},
		{name: "roll at chance does not", roll: 1, want: 4},
		{name: "high roll does not", roll: 99, want: 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newRig(t, nil)
			a := r.join(0, 0)
			b := r.join(1, 0)
			r.equip(t, a, model.GemStrength)
			r.roll = tc.roll

			r.w.Attack(a, b, 4)
			assert.Equal(t, world.MaxHealth-tc.want, r.actor(t, b).Health)
		})
	}
}

func TestStrengthCritModeEndsAfterDuration(t *testing.T) {
	r := newRig(t, nil)
	a := r.join(0, 0)
	b := r.join(1, 0)
	r.equip(t, a, model.GemStrength)
	r.roll = 0

	require.NoError(t, r.e.OnAbilityInput(a))
	dmg, _ := r.e.OnCombatEvent(a, b, 4)
	assert.Equal(t, 6.0, dmg, "crit replaces the double damage roll")

	r.w.Advance(20*20 - 1)
	assert.Equal(t, ability.PrimaryActive, r.e.State(a))

	r.w.Advance(1)
	assert.Equal(t, ability.PassiveApplied, r.e.State(a))
	notices := r.actor(t, a).Notices
	assert.Equal(t, "Critical Mode ended", notices[len(notices)-1].Text)

	r.roll = 99
	dmg, _ = r.e.OnCombatEvent(a, b, 4)
	assert.Equal(t, 4.0, dmg)
}

func TestFireIgnitesOnAttack(t *testing.T) {
	cases := []struct {
		name string
		roll int
		want int
	}{
		{name: "roll under chance ignites", roll: 4, want: 60},
		{name: "roll at chance does not", roll: 5, want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newRig(t, nil)
			a := r.join(0, 0)
			b := r.join(1, 0)
			r.equip(t, a, model.GemFire)
			r.roll = tc.roll

			r.w.Attack(a, b, 1)
			assert.Equal(t, tc.want, r.actor(t, b).BurnTicks)
			assert.Equal(t, world.MaxHealth-1, r.actor(t, b).Health)
		})
	}
}

func TestPuffDashFollowsFacing(t *testing.T) {
	r := newRig(t, nil)
	a := r.join(0.5, 0.5)
	r.equip(t, a, model.GemPuff)
	r.actor(t, a).Facing = model.Vec3f{X: 3, Z: 4}

	require.NoError(t, r.e.OnAbilityInput(a))
	v := r.actor(t, a).Velocity
	assert.InDelta(t, 1.5, v.X, 1e-9)
	assert.InDelta(t, 0.3, v.Y, 1e-9)
	assert.InDelta(t, 2.0, v.Z, 1e-9)
	notices := r.actor(t, a).Notices
	assert.Equal(t, "Dash activated!", notices[len(notices)-1].Text)
}

func TestOneRollPerHookPerHit(t *testing.T) {
	cases := []struct {
		name     string
		attacker model.GemType
		victim   model.GemType
		crit     bool
		want     int
	}{
		{name: "strength attacker", attacker: model.GemStrength, want: 1},
		{name: "fire attacker", attacker: model.GemFire, want: 1},
		{name: "puff victim", victim: model.GemPuff, want: 1},
		{name: "fire attacker and puff victim", attacker: model.GemFire, victim: model.GemPuff, want: 2},
		{name: "strength crit mode", attacker: model.GemStrength, crit: true, want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newRig(t, nil)
			a := r.join(0, 0)
			b := r.join(1, 0)
			if tc.attacker != "" {
				r.equip(t, a, tc.attacker)
			}
			if tc.victim != "" {
				r.equip(t, b, tc.victim)
			}
			if tc.crit {
				require.NoError(t, r.e.OnAbilityInput(a))
			}

			r.rolls = 0
			r.w.Attack(a, b, 2)
			assert.Equal(t, tc.want, r.rolls)
		})
	}
}
