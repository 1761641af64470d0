// Package ability implements the gem variants. Every variant keeps its per-actor state in
// maps keyed by actor id and is driven only from the host tick goroutine.
package ability

import (
	"fmt"

	"github.com/rs/zerolog"

	"gemcraft.ai/internal/gems/cooldown"
	"gemcraft.ai/internal/gems/effects"
	"gemcraft.ai/internal/gems/host"
	"gemcraft.ai/internal/gems/model"
	"gemcraft.ai/internal/gems/structure"
	"gemcraft.ai/internal/gems/tasks"
	"gemcraft.ai/internal/gems/tuning"
	"gemcraft.ai/internal/sim/clock"
)

// Ability is the capability set every gem provides.
type Ability interface {
	Type() model.GemType
	ApplyPassive(actor model.ActorID)
	RemovePassive(actor model.ActorID)
	// ActivatePrimary returns a *Rejected when the attempt changes nothing.
	ActivatePrimary(actor model.ActorID) error
	PrimaryActive(actor model.ActorID) bool
}

// Hit is a damage event in flight. Hooks may scale Damage or cancel it.
type Hit struct {
	Damage    float64
	Cancelled bool
}

type AttackHook interface {
	OnAttack(attacker, victim model.ActorID, hit *Hit)
}

type DamagedHook interface {
	OnDamaged(victim, attacker model.ActorID, hit *Hit)
}

type MoveHook interface {
	OnMove(actor model.ActorID)
}

// JumpHook handles a mid-air jump request and reports whether it was consumed.
type JumpHook interface {
	OnJump(actor model.ActorID) bool
}

// Forgetter drops private per-actor state. The engine calls it on disconnect after tasks,
// owned effects and cooldowns are gone.
type Forgetter interface {
	Forget(actor model.ActorID)
}

// Phase is the lifecycle state of an actor's active gem.
type Phase int

const (
	Inactive Phase = iota
	PassiveApplied
	PrimaryActive
)

func (p Phase) String() string {
	switch p {
	case PassiveApplied:
		return "passive_applied"
	case PrimaryActive:
		return "primary_active"
	default:
		return "inactive"
	}
}

type Trust interface {
	IsTrusted(a, b model.ActorID) bool
}

// Deps is everything a variant needs. Tuning and IsActive are read on every use so a reload
// or gem swap is seen by running tasks.
type Deps struct {
	Host       host.Host
	Clock      clock.Clock
	Cooldowns  *cooldown.Ledger
	Effects    *effects.Tracker
	Tasks      *tasks.Registry
	Trust      Trust
	Structures *structure.Registry
	Tuning     func() *tuning.Config
	IsActive   func(actor model.ActorID, g model.GemType) bool
	// Roll returns a uniform int in [0, n).
	Roll func(n int) int
	Log  zerolog.Logger
}

// Catalog builds one instance of every variant.
func Catalog(d *Deps) map[model.GemType]Ability {
	out := map[model.GemType]Ability{}
	for _, a := range []Ability{
		NewAstra(d),
		NewFire(d),
		NewIce(d),
		NewInvis(d),
		NewPuff(d),
		NewSpeed(d),
		NewStrength(d),
	} {
		out[a.Type()] = a
	}
	return out
}

type base struct {
	d       *Deps
	gem     model.GemType
	primary map[model.ActorID]struct{}
}

func newBase(d *Deps, g model.GemType) base {
	return base{d: d, gem: g, primary: map[model.ActorID]struct{}{}}
}

func (b *base) Type() model.GemType { return b.gem }

func (b *base) PrimaryActive(actor model.ActorID) bool {
	_, ok := b.primary[actor]
	return ok
}

func (b *base) enterPrimary(actor model.ActorID) { b.primary[actor] = struct{}{} }
func (b *base) leavePrimary(actor model.ActorID) { delete(b.primary, actor) }

func (b *base) cfg() *tuning.Config { return b.d.Tuning() }

func (b *base) tps() int { return b.cfg().TickRateHz }

// live reports whether a task for actor should keep running.
func (b *base) live(actor model.ActorID) bool {
	return b.d.Host.Online(actor) && b.d.IsActive(actor, b.gem)
}

// hostile reports whether actor's offensive effects may touch target.
func (b *base) hostile(actor, target model.ActorID) bool {
	return target != actor && !b.d.Trust.IsTrusted(actor, target)
}

func (b *base) chance(pct int) bool {
	if pct <= 0 {
		return false
	}
	return b.d.Roll(100) < pct
}

func (b *base) notify(actor model.ActorID, sev model.Severity, format string, args ...any) {
	b.d.Host.Notify(actor, fmt.Sprintf(format, args...), sev)
}

// ready rejects the attempt if the primary cooldown is live.
func (b *base) ready(actor model.ActorID) error {
	key := model.Primary(b.gem)
	if !b.d.Cooldowns.Has(actor, key) {
		return nil
	}
	rem := b.d.Cooldowns.Remaining(actor, key)
	b.notify(actor, model.SeverityError, "Ability on cooldown! %ds remaining", rem)
	return &Rejected{Gem: b.gem, Reason: ReasonCooldown, Remaining: rem}
}

// duration returns the primary duration in ticks or rejects a non-positive setting.
func (b *base) duration(actor model.ActorID) (int, error) {
	secs := b.cfg().Duration(b.gem, tuning.Primary)
	if secs <= 0 {
		b.notify(actor, model.SeverityError, "%s ability is misconfigured", b.gem)
		return 0, &Rejected{Gem: b.gem, Reason: ReasonInvalidConfig}
	}
	return b.cfg().Ticks(secs), nil
}

func (b *base) startCooldown(actor model.ActorID) {
	b.d.Cooldowns.Set(actor, model.Primary(b.gem), b.cfg().Cooldown(b.gem, tuning.Primary))
}
