// Package effects applies status effects on behalf of the engine and remembers which ones it
// owns, so that removal never strips an effect some other source applied later.
package effects

import (
	"time"

	"gemcraft.ai/internal/gems/host"
	"gemcraft.ai/internal/gems/model"
	"gemcraft.ai/internal/sim/clock"
)

// DefaultTolerance is the expiry slack within which an observed effect counts as ours.
const DefaultTolerance = time.Second

// forever is the expiry recorded for infinite effects.
var forever = time.Unix(1<<62, 0)

// Owned is an effect the engine applied and may later revoke.
type Owned struct {
	Type     model.EffectType
	Expiry   time.Time
	Infinite bool
}

type Tracker struct {
	host      host.Effects
	clock     clock.Clock
	tick      time.Duration
	tolerance time.Duration

	owned map[model.ActorID]map[model.EffectType]Owned
}

// New builds a tracker. tick converts effect durations (in ticks) to wall time.
func New(h host.Effects, clk clock.Clock, tick, tolerance time.Duration) *Tracker {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Tracker{
		host:      h,
		clock:     clk,
		tick:      tick,
		tolerance: tolerance,
		owned:     map[model.ActorID]map[model.EffectType]Owned{},
	}
}

// Apply sets spec on actor unless a stronger effect of the same type is present, and records
// ownership when it took.
func (t *Tracker) Apply(actor model.ActorID, spec model.EffectSpec) bool {
	if !t.host.SetEffect(actor, spec, false) {
		return false
	}
	rec := Owned{Type: spec.Type, Infinite: spec.Infinite()}
	if rec.Infinite {
		rec.Expiry = forever
	} else {
		rec.Expiry = t.clock.Now().Add(time.Duration(spec.DurationTicks) * t.tick)
	}
	m := t.owned[actor]
	if m == nil {
		m = map[model.EffectType]Owned{}
		t.owned[actor] = m
	}
	m[spec.Type] = rec
	return true
}

// Remove forgets the record for typ and revokes the effect only if what is on the actor now
// still looks like the one we applied.
func (t *Tracker) Remove(actor model.ActorID, typ model.EffectType) {
	m := t.owned[actor]
	rec, ok := m[typ]
	if !ok {
		return
	}
	delete(m, typ)
	if len(m) == 0 {
		delete(t.owned, actor)
	}

	cur, present := t.host.Effect(actor, typ)
	if !present {
		return
	}
	if t.matches(rec, cur) {
		t.host.ClearEffect(actor, typ)
	}
}

func (t *Tracker) matches(rec Owned, cur model.ActiveEffect) bool {
	if rec.Infinite || cur.Infinite {
		return rec.Infinite && cur.Infinite
	}
	observed := t.clock.Now().Add(time.Duration(cur.RemainingTicks) * t.tick)
	diff := observed.Sub(rec.Expiry)
	if diff < 0 {
		diff = -diff
	}
	return diff <= t.tolerance
}

// PurgeAll drops every record for actor without touching the actor's effects.
func (t *Tracker) PurgeAll(actor model.ActorID) {
	delete(t.owned, actor)
}

func (t *Tracker) Owned(actor model.ActorID, typ model.EffectType) (Owned, bool) {
	rec, ok := t.owned[actor][typ]
	return rec, ok
}

func (t *Tracker) Len(actor model.ActorID) int { return len(t.owned[actor]) }
