package world

import (
	"math"
	"sort"

	"gemcraft.ai/internal/gems/model"
)

const (
	gravity    = 0.08
	airDrag    = 0.91
	groundEps  = 1e-3
	burnPeriod = 20
	burnDamage = 1.0
)

// Effects

func (w *World) Effect(actor model.ActorID, t model.EffectType) (model.ActiveEffect, bool) {
	a, ok := w.actors[actor]
	if !ok {
		return model.ActiveEffect{}, false
	}
	e, ok := a.Effects[t]
	if !ok {
		return model.ActiveEffect{}, false
	}
	return *e, true
}

// SetEffect follows the usual potion rules: without override a higher amplifier, or the
// same amplifier with a longer remaining duration, wins.
func (w *World) SetEffect(actor model.ActorID, spec model.EffectSpec, override bool) bool {
	a, ok := w.actors[actor]
	if !ok {
		return false
	}
	if cur, ok := a.Effects[spec.Type]; ok && !override {
		if cur.Amplifier > spec.Amplifier {
			return false
		}
		if cur.Amplifier == spec.Amplifier && !spec.Infinite() {
			if cur.Infinite || cur.RemainingTicks > spec.DurationTicks {
				return false
			}
		}
	}
	a.Effects[spec.Type] = &model.ActiveEffect{
		Type:           spec.Type,
		RemainingTicks: spec.DurationTicks,
		Infinite:       spec.Infinite(),
		Amplifier:      spec.Amplifier,
	}
	return true
}

func (w *World) ClearEffect(actor model.ActorID, t model.EffectType) {
	if a, ok := w.actors[actor]; ok {
		delete(a.Effects, t)
	}
}

func (w *World) decayEffects(a *Actor) {
	for t, e := range a.Effects {
		if e.Infinite {
			continue
		}
		e.RemainingTicks--
		if e.RemainingTicks <= 0 {
			delete(a.Effects, t)
		}
	}
}

// Blocks. The ground is stone below y=0 and air above.

func (w *World) Block(pos model.Vec3i) model.Material {
	if m, ok := w.blocks[pos]; ok {
		return m
	}
	if pos.Y < 0 {
		return model.Stone
	}
	return model.Air
}

func (w *World) SetBlock(pos model.Vec3i, m model.Material) {
	w.blocks[pos] = m
}

// Actors

func (w *World) ActorsNear(center model.Vec3f, radius float64) []model.ActorID {
	var out []model.ActorID
	for _, a := range w.sortedActors() {
		if a.Pos.Sub(center).Len() <= radius {
			out = append(out, a.ID)
		}
	}
	return out
}

func (w *World) Damage(actor model.ActorID, amount float64) {
	a, ok := w.actors[actor]
	if !ok || amount <= 0 {
		return
	}
	a.Health = math.Max(0, a.Health-amount)
}

func (w *World) Online(actor model.ActorID) bool {
	_, ok := w.actors[actor]
	return ok
}

func (w *World) Position(actor model.ActorID) (model.Vec3f, bool) {
	a, ok := w.actors[actor]
	if !ok {
		return model.Vec3f{}, false
	}
	return a.Pos, true
}

func (w *World) Facing(actor model.ActorID) model.Vec3f {
	if a, ok := w.actors[actor]; ok {
		return a.Facing
	}
	return model.Vec3f{}
}

func (w *World) OnGround(actor model.ActorID) bool {
	a, ok := w.actors[actor]
	if !ok {
		return false
	}
	below := a.Pos.Block().Add(model.Vec3i{Y: -1})
	return a.Pos.Y-math.Floor(a.Pos.Y) < groundEps && w.Block(below) != model.Air
}

func (w *World) Velocity(actor model.ActorID) model.Vec3f {
	if a, ok := w.actors[actor]; ok {
		return a.Velocity
	}
	return model.Vec3f{}
}

func (w *World) SetVelocity(actor model.ActorID, v model.Vec3f) {
	if a, ok := w.actors[actor]; ok {
		a.Velocity = v
	}
}

func (w *World) Ignite(actor model.ActorID, ticks int) {
	if a, ok := w.actors[actor]; ok && ticks > a.BurnTicks {
		a.BurnTicks = ticks
	}
}

func (w *World) SetHidden(actor model.ActorID, hidden bool) {
	if a, ok := w.actors[actor]; ok {
		a.Hidden = hidden
	}
}

func (w *World) SetAllowFlight(actor model.ActorID, allow bool) {
	if a, ok := w.actors[actor]; ok {
		a.AllowFlight = allow
	}
}

func (w *World) burn(a *Actor, now uint64) {
	if a.BurnTicks <= 0 {
		return
	}
	a.BurnTicks--
	if _, immune := a.Effects[model.FireResistance]; immune {
		return
	}
	if now%burnPeriod == 0 {
		a.Health = math.Max(0, a.Health-burnDamage)
	}
}

// physics integrates velocity. Actors land on the first solid block below them.
func (w *World) physics(a *Actor) {
	if a.Velocity == (model.Vec3f{}) {
		return
	}
	next := a.Pos.Add(a.Velocity)
	floor := next.Block()
	if a.Velocity.Y <= 0 && w.Block(floor) != model.Air {
		next.Y = float64(floor.Y + 1)
		a.Pos = next
		a.Velocity = model.Vec3f{}
	} else {
		a.Pos = next
		a.Velocity.Y -= gravity
		a.Velocity.X *= airDrag
		a.Velocity.Z *= airDrag
	}
	w.handler.OnMovement(a.ID)
}

// Inventory

func (w *World) ScanSlots(actor model.ActorID) []model.SlotItem {
	a, ok := w.actors[actor]
	if !ok {
		return nil
	}
	var out []model.SlotItem
	for i, it := range a.Slots {
		if it != nil {
			out = append(out, model.SlotItem{Index: i, Item: *it})
		}
	}
	return out
}

func (w *World) RemoveAt(actor model.ActorID, slot int) {
	if a, ok := w.actors[actor]; ok && slot >= 0 && slot < InventorySize {
		a.Slots[slot] = nil
	}
}

// AddItem stores it in the first free main slot.
func (w *World) AddItem(actor model.ActorID, it model.Item) (int, bool) {
	a, ok := w.actors[actor]
	if !ok {
		return 0, false
	}
	for i := 0; i < mainSlots; i++ {
		if a.Slots[i] == nil {
			cp := it
			a.Slots[i] = &cp
			return i, true
		}
	}
	return 0, false
}

func (w *World) Equipped(actor model.ActorID) (model.Item, bool) {
	a, ok := w.actors[actor]
	if !ok || a.Slots[w.cfg.EquipSlot] == nil {
		return model.Item{}, false
	}
	return *a.Slots[w.cfg.EquipSlot], true
}

// PutItem stores it at slot, replacing whatever was there. It does not signal a change.
func (w *World) PutItem(actor model.ActorID, slot int, it model.Item) bool {
	a, ok := w.actors[actor]
	if !ok || slot < 0 || slot >= InventorySize {
		return false
	}
	cp := it
	a.Slots[slot] = &cp
	return true
}

// BlockCount returns how many explicitly set blocks have material m.
func (w *World) BlockCount(m model.Material) int {
	n := 0
	for _, b := range w.blocks {
		if b == m {
			n++
		}
	}
	return n
}

// Blocks returns the explicitly set positions holding m, sorted.
func (w *World) Blocks(m model.Material) []model.Vec3i {
	var out []model.Vec3i
	for p, b := range w.blocks {
		if b == m {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		if out[i].X != out[j].X {
			return out[i].X < out[j].X
		}
		return out[i].Z < out[j].Z
	})
	return out
}
