// Package host declares the primitives the gem engine consumes from the simulation that
// embeds it. Every method is called from the host's tick goroutine.
package host

import "gemcraft.ai/internal/gems/model"

// TaskHandle identifies a scheduled callback. The zero handle is never issued.
type TaskHandle uint64

// Scheduler runs callbacks on tick boundaries. A delay of 0 means the next tick.
type Scheduler interface {
	RunRepeating(delay, interval int, fn func()) TaskHandle
	RunOnce(delay int, fn func()) TaskHandle
	Cancel(h TaskHandle)
}

// Effects exposes actor status effects.
type Effects interface {
	Effect(actor model.ActorID, t model.EffectType) (model.ActiveEffect, bool)
	// SetEffect applies spec. Without override a stronger existing effect of the same type
	// is kept and false is returned.
	SetEffect(actor model.ActorID, spec model.EffectSpec, override bool) bool
	ClearEffect(actor model.ActorID, t model.EffectType)
}

// World exposes block and actor mutation.
type World interface {
	Block(pos model.Vec3i) model.Material
	SetBlock(pos model.Vec3i, m model.Material)
	ActorsNear(center model.Vec3f, radius float64) []model.ActorID
	Damage(actor model.ActorID, amount float64)

	Online(actor model.ActorID) bool
	Position(actor model.ActorID) (model.Vec3f, bool)
	Facing(actor model.ActorID) model.Vec3f
	OnGround(actor model.ActorID) bool
	Velocity(actor model.ActorID) model.Vec3f
	SetVelocity(actor model.ActorID, v model.Vec3f)
	Ignite(actor model.ActorID, ticks int)
	SetHidden(actor model.ActorID, hidden bool)
	SetAllowFlight(actor model.ActorID, allow bool)
}

// Inventory exposes actor inventories.
type Inventory interface {
	ScanSlots(actor model.ActorID) []model.SlotItem
	RemoveAt(actor model.ActorID, slot int)
	AddItem(actor model.ActorID, it model.Item) (slot int, ok bool)
	// Equipped returns the item in the designated ability slot.
	Equipped(actor model.ActorID) (model.Item, bool)
}

type Messenger interface {
	Notify(actor model.ActorID, text string, sev model.Severity)
}

// CooldownDisplay renders a countdown to the actor, typically on the experience bar.
type CooldownDisplay interface {
	ShowCooldown(actor model.ActorID, remaining, max int)
	ClearCooldown(actor model.ActorID)
}

// Host bundles every primitive.
type Host interface {
	Scheduler
	Effects
	World
	Inventory
	Messenger
	CooldownDisplay
}
