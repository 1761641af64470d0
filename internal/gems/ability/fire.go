package ability

import (
	"math"

	"gemcraft.ai/internal/gems/model"
	"gemcraft.ai/internal/gems/tasks"
)

// Fire grants fire resistance, sometimes ignites whoever its holder hits, and burns an aura
// around the holder on activation.
type Fire struct {
	base
}

func NewFire(d *Deps) *Fire { return &Fire{base: newBase(d, model.GemFire)} }

func (f *Fire) ApplyPassive(actor model.ActorID) {
	f.d.Effects.Apply(actor, model.EffectSpec{Type: model.FireResistance, DurationTicks: model.InfiniteDuration})
}

func (f *Fire) RemovePassive(actor model.ActorID) {
	f.stopAura(actor)
	f.d.Effects.Remove(actor, model.FireResistance)
}

func (f *Fire) OnAttack(_, victim model.ActorID, _ *Hit) {
	p := f.cfg().Fire
	if f.chance(p.IgniteChancePct) {
		f.d.Host.Ignite(victim, p.IgniteTicks)
	}
}

func (f *Fire) ActivatePrimary(actor model.ActorID) error {
	if err := f.ready(actor); err != nil {
		return err
	}
	ticks, err := f.duration(actor)
	if err != nil {
		return err
	}
	f.d.Tasks.Start(actor, model.Primary(f.gem), f.cfg().Fire.AuraIntervalTicks, tasks.State{Countdown: ticks}, f.aura)
	f.enterPrimary(actor)
	f.notify(actor, model.SeveritySuccess, "Fire Aura activated!")
	f.startCooldown(actor)
	return nil
}

func (f *Fire) aura(t *tasks.Tick) error {
	if !f.live(t.Actor) || t.State.Countdown <= 0 {
		f.stopAura(t.Actor)
		if f.live(t.Actor) {
			f.ApplyPassive(t.Actor)
			f.notify(t.Actor, model.SeverityInfo, "Fire Aura ended")
		}
		return nil
	}
	pos, ok := f.d.Host.Position(t.Actor)
	if !ok {
		return nil
	}
	p := f.cfg().Fire
	for _, id := range f.d.Host.ActorsNear(pos, p.AuraRadius) {
		if f.hostile(t.Actor, id) {
			f.d.Host.Ignite(id, p.IgniteTicks)
		}
	}
	if p.DrainWater {
		f.drain(pos.Block(), int(math.Ceil(p.AuraRadius)))
	}
	t.State.Countdown -= p.AuraIntervalTicks
	return nil
}

// drain clears water from the cube of half-size r around c.
func (f *Fire) drain(c model.Vec3i, r int) {
	for x := -r; x <= r; x++ {
		for y := -r; y <= r; y++ {
			for z := -r; z <= r; z++ {
				p := c.Add(model.Vec3i{X: x, Y: y, Z: z})
				if f.d.Host.Block(p) == model.Water {
					f.d.Host.SetBlock(p, model.Air)
				}
			}
		}
	}
}

func (f *Fire) stopAura(actor model.ActorID) {
	f.d.Tasks.Stop(actor, model.Primary(f.gem))
	f.leavePrimary(actor)
}

func (f *Fire) Forget(actor model.ActorID) { f.leavePrimary(actor) }
