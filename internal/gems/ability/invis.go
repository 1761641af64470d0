package ability

import (
	"gemcraft.ai/internal/gems/model"
	"gemcraft.ai/internal/gems/tasks"
)

// Invis keeps its holder invisible and fast, and can hide them from everyone outright.
type Invis struct {
	base
}

func NewInvis(d *Deps) *Invis { return &Invis{base: newBase(d, model.GemInvis)} }

func (v *Invis) ApplyPassive(actor model.ActorID) {
	v.d.Effects.Apply(actor, model.EffectSpec{Type: model.Invisibility, DurationTicks: model.InfiniteDuration})
	v.d.Effects.Apply(actor, model.EffectSpec{
		Type:          model.Speed,
		DurationTicks: model.InfiniteDuration,
		Amplifier:     v.cfg().Invis.SpeedAmplifier,
	})
}

func (v *Invis) RemovePassive(actor model.ActorID) {
	v.d.Effects.Remove(actor, model.Invisibility)
	v.d.Effects.Remove(actor, model.Speed)
	v.reveal(actor)
}

func (v *Invis) ActivatePrimary(actor model.ActorID) error {
	if err := v.ready(actor); err != nil {
		return err
	}
	ticks, err := v.duration(actor)
	if err != nil {
		return err
	}
	v.d.Host.SetHidden(actor, true)
	v.enterPrimary(actor)
	v.notify(actor, model.SeveritySuccess, "Full Invisibility activated!")
	v.startCooldown(actor)
	v.d.Tasks.After(actor, model.Primary(v.gem), ticks, func(t *tasks.Tick) error {
		v.leavePrimary(t.Actor)
		if v.d.Host.Online(t.Actor) {
			v.d.Host.SetHidden(t.Actor, false)
			v.notify(t.Actor, model.SeverityInfo, "Full Invisibility ended")
		}
		return nil
	})
	return nil
}

// reveal ends full invisibility early.
func (v *Invis) reveal(actor model.ActorID) {
	v.d.Tasks.Stop(actor, model.Primary(v.gem))
	if v.PrimaryActive(actor) {
		v.d.Host.SetHidden(actor, false)
	}
	v.leavePrimary(actor)
}

func (v *Invis) Forget(actor model.ActorID) { v.reveal(actor) }
