package ability

import (
	"time"

	"gemcraft.ai/internal/gems/model"
	"gemcraft.ai/internal/gems/tuning"
)

// Puff gives a rate-limited double jump, occasionally shrugs off a hit and dashes forward.
type Puff struct {
	base
	lastJump map[model.ActorID]time.Time
}

func NewPuff(d *Deps) *Puff {
	return &Puff{base: newBase(d, model.GemPuff), lastJump: map[model.ActorID]time.Time{}}
}

func (p *Puff) ApplyPassive(actor model.ActorID) {
	p.d.Host.SetAllowFlight(actor, true)
	delete(p.lastJump, actor)
}

func (p *Puff) RemovePassive(actor model.ActorID) {
	p.d.Host.SetAllowFlight(actor, false)
	delete(p.lastJump, actor)
}

// OnJump boosts an airborne actor upward, at most once per double_jump cooldown.
func (p *Puff) OnJump(actor model.ActorID) bool {
	if p.d.Host.OnGround(actor) {
		return false
	}
	gap := time.Duration(p.cfg().Cooldown(p.gem, tuning.DoubleJump)) * time.Second
	now := p.d.Clock.Now()
	if last, ok := p.lastJump[actor]; ok && now.Sub(last) < gap {
		return false
	}
	v := p.d.Host.Velocity(actor)
	v.Y = p.cfg().Puff.JumpLift
	p.d.Host.SetVelocity(actor, v)
	p.lastJump[actor] = now
	return true
}

func (p *Puff) OnDamaged(victim, _ model.ActorID, hit *Hit) {
	if p.chance(p.cfg().Puff.NegateChancePct) {
		hit.Cancelled = true
		p.notify(victim, model.SeveritySuccess, "Damage negated!")
	}
}

func (p *Puff) ActivatePrimary(actor model.ActorID) error {
	if err := p.ready(actor); err != nil {
		return err
	}
	cfg := p.cfg().Puff
	dash := p.d.Host.Facing(actor).Normalize().Scale(cfg.DashSpeed)
	dash.Y = cfg.DashLift
	p.d.Host.SetVelocity(actor, dash)
	p.notify(actor, model.SeveritySuccess, "Dash activated!")
	p.startCooldown(actor)
	return nil
}

func (p *Puff) Forget(actor model.ActorID) { delete(p.lastJump, actor) }
