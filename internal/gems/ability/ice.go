package ability

import (
	"gemcraft.ai/internal/gems/model"
	"gemcraft.ai/internal/gems/structure"
	"gemcraft.ai/internal/gems/tasks"
	"gemcraft.ai/internal/gems/tuning"
)

// Ice speeds its holder up on ice and raises a protected honey cage that slows enemies.
type Ice struct {
	base
}

func NewIce(d *Deps) *Ice { return &Ice{base: newBase(d, model.GemIce)} }

// ApplyPassive is a no-op; the speed boost is driven by movement.
func (i *Ice) ApplyPassive(model.ActorID) {}

func (i *Ice) RemovePassive(actor model.ActorID) {
	i.d.Tasks.Stop(actor, model.Passive(i.gem))
	i.d.Effects.Remove(actor, model.Speed)
	i.melt(actor)
}

// OnMove refreshes the speed boost whenever the actor stands in or on ice.
func (i *Ice) OnMove(actor model.ActorID) {
	pos, ok := i.d.Host.Position(actor)
	if !ok {
		return
	}
	feet := pos.Block()
	if !i.d.Host.Block(feet).IsIce() && !i.d.Host.Block(feet.Add(model.Vec3i{Y: -1})).IsIce() {
		return
	}
	ticks := i.cfg().Ticks(i.cfg().Duration(i.gem, tuning.PassiveSpeed))
	if ticks <= 0 {
		return
	}
	i.d.Effects.Apply(actor, model.EffectSpec{
		Type:          model.Speed,
		DurationTicks: ticks,
		Amplifier:     i.cfg().Ice.ContactSpeedAmplifier,
	})
	i.d.Tasks.After(actor, model.Passive(i.gem), ticks, func(t *tasks.Tick) error {
		if i.d.Host.Online(t.Actor) {
			i.d.Effects.Remove(t.Actor, model.Speed)
		}
		return nil
	})
}

func (i *Ice) ActivatePrimary(actor model.ActorID) error {
	if err := i.ready(actor); err != nil {
		return err
	}
	ticks, err := i.duration(actor)
	if err != nil {
		return err
	}
	pos, ok := i.d.Host.Position(actor)
	if !ok {
		return &Rejected{Gem: i.gem, Reason: ReasonInvalidTarget}
	}
	i.melt(actor)

	p := i.cfg().Ice
	center := pos.Block()
	var placed []model.Vec3i
	for _, b := range structure.Shell(center, p.CageRadius, p.CageBand) {
		if i.d.Host.Block(b) != model.Air {
			continue
		}
		i.d.Host.SetBlock(b, model.HoneyBlock)
		placed = append(placed, b)
	}
	i.d.Structures.Protect(actor, placed)

	i.d.Tasks.Start(actor, model.Primary(i.gem), p.CageIntervalTicks, tasks.State{Countdown: ticks}, func(t *tasks.Tick) error {
		return i.cage(t, center)
	})
	i.enterPrimary(actor)
	i.notify(actor, model.SeveritySuccess, "Ice Cage created!")
	i.startCooldown(actor)
	return nil
}

func (i *Ice) cage(t *tasks.Tick, center model.Vec3i) error {
	if !i.live(t.Actor) || t.State.Countdown <= 0 {
		i.melt(t.Actor)
		if i.d.Host.Online(t.Actor) {
			i.notify(t.Actor, model.SeverityInfo, "Ice Cage melted")
		}
		return nil
	}
	p := i.cfg().Ice
	slow := model.EffectSpec{Type: model.Slowness, DurationTicks: p.SlowTicks, Amplifier: p.SlowAmplifier}
	for _, id := range i.d.Host.ActorsNear(center.Center(), p.CageRadius) {
		if i.hostile(t.Actor, id) {
			i.d.Host.SetEffect(id, slow, false)
		}
	}
	t.State.Countdown -= p.CageIntervalTicks
	return nil
}

// melt stops the cage task, lifts protection and reverts every honey block the cage placed.
func (i *Ice) melt(actor model.ActorID) {
	i.d.Tasks.Stop(actor, model.Primary(i.gem))
	for _, b := range i.d.Structures.Release(actor) {
		if i.d.Host.Block(b) == model.HoneyBlock {
			i.d.Host.SetBlock(b, model.Air)
		}
	}
	i.leavePrimary(actor)
}

func (i *Ice) Forget(actor model.ActorID) { i.melt(actor) }
