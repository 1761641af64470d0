package ability

import (
	"gemcraft.ai/internal/gems/model"
	"gemcraft.ai/internal/gems/tasks"
	"gemcraft.ai/internal/gems/tuning"
)

const (
	phaseInvisible = iota
	phaseVisible
)

// Astra cycles invisibility on and off while held and fires a short damaging beam.
type Astra struct {
	base
}

func NewAstra(d *Deps) *Astra { return &Astra{base: newBase(d, model.GemAstra)} }

func (a *Astra) ApplyPassive(actor model.ActorID) {
	on := a.cfg().Ticks(a.cfg().Duration(a.gem, tuning.PassiveInvis))
	off := a.cfg().Ticks(a.cfg().Duration(a.gem, tuning.PassiveCycle))
	if on <= 0 || off <= 0 {
		a.d.Log.Warn().Int("on_ticks", on).Int("off_ticks", off).Msg("astra cycle disabled by config")
		return
	}
	a.cloak(actor, on)
	a.d.Tasks.Start(actor, model.Passive(a.gem), 1, tasks.State{Countdown: on, Phase: phaseInvisible}, a.cycle)
}

func (a *Astra) cloak(actor model.ActorID, ticks int) {
	a.d.Effects.Apply(actor, model.EffectSpec{Type: model.Invisibility, DurationTicks: ticks + 10})
}

func (a *Astra) cycle(t *tasks.Tick) error {
	if !a.live(t.Actor) {
		t.Stop()
		return nil
	}
	t.State.Countdown--
	if t.State.Countdown > 0 {
		return nil
	}
	if t.State.Phase == phaseInvisible {
		a.d.Effects.Remove(t.Actor, model.Invisibility)
		t.State.Phase = phaseVisible
		t.State.Countdown = a.cfg().Ticks(a.cfg().Duration(a.gem, tuning.PassiveCycle))
	} else {
		on := a.cfg().Ticks(a.cfg().Duration(a.gem, tuning.PassiveInvis))
		a.cloak(t.Actor, on)
		t.State.Phase = phaseInvisible
		t.State.Countdown = on
	}
	if t.State.Countdown <= 0 {
		t.State.Countdown = 1
	}
	return nil
}

func (a *Astra) RemovePassive(actor model.ActorID) {
	a.d.Tasks.Stop(actor, model.Passive(a.gem))
	a.d.Effects.Remove(actor, model.Invisibility)
}

// Visible reports whether the passive cycle is in its visible phase.
func (a *Astra) Visible(actor model.ActorID) bool {
	st, ok := a.d.Tasks.Inspect(actor, model.Passive(a.gem))
	return !ok || st.Phase == phaseVisible
}

func (a *Astra) ActivatePrimary(actor model.ActorID) error {
	if err := a.ready(actor); err != nil {
		return err
	}
	pos, ok := a.d.Host.Position(actor)
	if !ok {
		return &Rejected{Gem: a.gem, Reason: ReasonInvalidTarget}
	}
	p := a.cfg().Astra
	origin := pos.Add(model.Vec3f{Y: eyeHeight})

	var cands []Candidate
	for _, id := range a.d.Host.ActorsNear(origin, p.BeamRange+p.BeamWidth+bodyCenter) {
		if !a.hostile(actor, id) {
			continue
		}
		if tp, ok := a.d.Host.Position(id); ok {
			cands = append(cands, Candidate{ID: id, Pos: tp})
		}
	}
	if target, hit := Beam(origin, a.d.Host.Facing(actor), p.BeamRange, p.BeamWidth, cands); hit {
		a.d.Host.Damage(target, p.BeamDamage)
	}
	a.notify(actor, model.SeveritySuccess, "Beam fired!")
	a.startCooldown(actor)
	return nil
}
