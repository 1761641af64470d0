package ability

import (
	"gemcraft.ai/internal/gems/model"
	"gemcraft.ai/internal/gems/tasks"
)

// Speed grants permanent speed and haste, and a stronger haste for a while on activation.
type Speed struct {
	base
}

func NewSpeed(d *Deps) *Speed { return &Speed{base: newBase(d, model.GemSpeed)} }

func (s *Speed) ApplyPassive(actor model.ActorID) {
	p := s.cfg().Speed
	s.d.Effects.Apply(actor, model.EffectSpec{Type: model.Speed, DurationTicks: model.InfiniteDuration, Amplifier: p.SpeedAmplifier})
	s.d.Effects.Apply(actor, model.EffectSpec{Type: model.Haste, DurationTicks: model.InfiniteDuration, Amplifier: p.HasteAmplifier})
}

func (s *Speed) RemovePassive(actor model.ActorID) {
	s.d.Tasks.Stop(actor, model.Primary(s.gem))
	s.leavePrimary(actor)
	s.d.Effects.Remove(actor, model.Speed)
	s.d.Effects.Remove(actor, model.Haste)
}

func (s *Speed) ActivatePrimary(actor model.ActorID) error {
	if err := s.ready(actor); err != nil {
		return err
	}
	ticks, err := s.duration(actor)
	if err != nil {
		return err
	}
	s.d.Effects.Apply(actor, model.EffectSpec{Type: model.Haste, DurationTicks: ticks, Amplifier: s.cfg().Speed.BoostAmplifier})
	s.enterPrimary(actor)
	s.notify(actor, model.SeveritySuccess, "Haste Boost activated!")
	s.startCooldown(actor)
	s.d.Tasks.After(actor, model.Primary(s.gem), ticks, func(t *tasks.Tick) error {
		s.leavePrimary(t.Actor)
		if !s.live(t.Actor) {
			return nil
		}
		s.d.Effects.Remove(t.Actor, model.Haste)
		s.ApplyPassive(t.Actor)
		s.notify(t.Actor, model.SeverityInfo, "Haste Boost ended")
		return nil
	})
	return nil
}

func (s *Speed) Forget(actor model.ActorID) { s.leavePrimary(actor) }
