package ability

import (
	"gemcraft.ai/internal/gems/model"
	"gemcraft.ai/internal/gems/tasks"
)

// Strength grants permanent strength, rare double damage, and guaranteed crits while its
// primary runs.
type Strength struct {
	base
}

func NewStrength(d *Deps) *Strength { return &Strength{base: newBase(d, model.GemStrength)} }

func (s *Strength) ApplyPassive(actor model.ActorID) {
	s.d.Effects.Apply(actor, model.EffectSpec{
		Type:          model.Strength,
		DurationTicks: model.InfiniteDuration,
		Amplifier:     s.cfg().Strength.Amplifier,
	})
}

func (s *Strength) RemovePassive(actor model.ActorID) {
	s.d.Tasks.Stop(actor, model.Primary(s.gem))
	s.leavePrimary(actor)
	s.d.Effects.Remove(actor, model.Strength)
}

// OnAttack rolls once per hit. Crit mode replaces the double damage roll.
func (s *Strength) OnAttack(attacker, _ model.ActorID, hit *Hit) {
	p := s.cfg().Strength
	if s.PrimaryActive(attacker) {
		hit.Damage *= p.CritMultiplier
		return
	}
	if s.chance(p.DoubleChancePct) {
		hit.Damage *= 2
	}
}

func (s *Strength) ActivatePrimary(actor model.ActorID) error {
	if err := s.ready(actor); err != nil {
		return err
	}
	ticks, err := s.duration(actor)
	if err != nil {
		return err
	}
	s.enterPrimary(actor)
	s.notify(actor, model.SeveritySuccess, "Critical Mode activated!")
	s.startCooldown(actor)
	s.d.Tasks.After(actor, model.Primary(s.gem), ticks, func(t *tasks.Tick) error {
		s.leavePrimary(t.Actor)
		if s.d.Host.Online(t.Actor) {
			s.notify(t.Actor, model.SeverityInfo, "Critical Mode ended")
		}
		return nil
	})
	return nil
}

func (s *Strength) Forget(actor model.ActorID) { s.leavePrimary(actor) }
