// Package engine routes host events to the gem abilities and owns all per-actor engine
// state. It is not safe for concurrent use; every call must come from the host tick
// goroutine.
package engine

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"gemcraft.ai/internal/gems/ability"
	"gemcraft.ai/internal/gems/cooldown"
	"gemcraft.ai/internal/gems/effects"
	"gemcraft.ai/internal/gems/host"
	"gemcraft.ai/internal/gems/model"
	"gemcraft.ai/internal/gems/reconcile"
	"gemcraft.ai/internal/gems/structure"
	"gemcraft.ai/internal/gems/tasks"
	"gemcraft.ai/internal/gems/trust"
	"gemcraft.ai/internal/gems/tuning"
	"gemcraft.ai/internal/sim/clock"
)

var (
	ErrOffline       = errors.New("actor is not online")
	ErrInventoryFull = errors.New("inventory is full")
)

// ActivationEntry is one primary activation attempt.
type ActivationEntry struct {
	Time      time.Time `json:"time"`
	Actor     string    `json:"actor"`
	Gem       string    `json:"gem,omitempty"`
	Accepted  bool      `json:"accepted"`
	Reason    string    `json:"reason,omitempty"`
	Remaining int       `json:"remaining_s,omitempty"`
}

// Journal records activation attempts. Implemented in internal/persistence/log.
type Journal interface {
	WriteActivation(e ActivationEntry) error
}

type Options struct {
	Host   host.Host
	Clock  clock.Clock
	Config tuning.Config
	// Trust defaults to a memory-only relation.
	Trust   *trust.Filter
	Journal Journal
	// Roll returns a uniform int in [0, n); defaults to a time-seeded source.
	Roll func(n int) int
	Log  zerolog.Logger
}

type Engine struct {
	host  host.Host
	clock clock.Clock
	log   zerolog.Logger
	cfg   tuning.Config

	cooldowns  *cooldown.Ledger
	effects    *effects.Tracker
	tasks      *tasks.Registry
	trust      *trust.Filter
	structures *structure.Registry
	reconciler *reconcile.Reconciler
	abilities  map[model.GemType]ability.Ability

	journal Journal

	active map[model.ActorID]model.GemType
}

func New(opts Options) (*Engine, error) {
	if opts.Host == nil || opts.Clock == nil {
		return nil, errors.New("engine: host and clock are required")
	}
	cfg := opts.Config.Clone()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	policy, err := reconcile.ParsePolicy(cfg.ReconcilePolicy)
	if err != nil {
		return nil, err
	}
	if opts.Trust == nil {
		opts.Trust = trust.New(nil, opts.Log)
	}
	if opts.Roll == nil {
		opts.Roll = rand.New(rand.NewSource(time.Now().UnixNano())).Intn
	}

	e := &Engine{
		host:       opts.Host,
		clock:      opts.Clock,
		log:        opts.Log,
		cfg:        cfg,
		cooldowns:  cooldown.New(opts.Clock, cooldown.WithDisplay(opts.Host, opts.Host, cfg.TickRateHz)),
		effects:    effects.New(opts.Host, opts.Clock, cfg.Tick(), cfg.EffectTolerance()),
		tasks:      tasks.New(opts.Host, opts.Log.With().Str("component", "tasks").Logger()),
		trust:      opts.Trust,
		structures: structure.NewRegistry(),
		reconciler: reconcile.New(opts.Host, opts.Host, opts.Clock, policy),
		journal:    opts.Journal,
		active:     map[model.ActorID]model.GemType{},
	}
	e.abilities = ability.Catalog(&ability.Deps{
		Host:       opts.Host,
		Clock:      opts.Clock,
		Cooldowns:  e.cooldowns,
		Effects:    e.effects,
		Tasks:      e.tasks,
		Trust:      e.trust,
		Structures: e.structures,
		Tuning:     func() *tuning.Config { return &e.cfg },
		IsActive:   e.isActive,
		Roll:       opts.Roll,
		Log:        opts.Log.With().Str("component", "ability").Logger(),
	})
	return e, nil
}

// ActiveGem returns the gem in the actor's equip slot, enabled or not.
func (e *Engine) ActiveGem(actor model.ActorID) (model.GemType, bool) {
	g, ok := e.active[actor]
	return g, ok
}

func (e *Engine) isActive(actor model.ActorID, g model.GemType) bool {
	cur, ok := e.active[actor]
	return ok && cur == g && e.cfg.GemEnabled(g)
}

// enabledAbility returns the ability of actor's active gem if it is enabled.
func (e *Engine) enabledAbility(actor model.ActorID) (ability.Ability, bool) {
	g, ok := e.active[actor]
	if !ok || !e.cfg.GemEnabled(g) {
		return nil, false
	}
	a, ok := e.abilities[g]
	return a, ok
}

// OnAbilityInput attempts the primary ability of actor's active gem.
func (e *Engine) OnAbilityInput(actor model.ActorID) error {
	g, ok := e.active[actor]
	var err error
	switch {
	case !ok:
		err = &ability.Rejected{Reason: ability.ReasonNoGem}
	case !e.cfg.GemEnabled(g):
		err = &ability.Rejected{Gem: g, Reason: ability.ReasonDisabled}
	default:
		err = e.abilities[g].ActivatePrimary(actor)
	}
	e.record(actor, g, err)
	return err
}

func (e *Engine) record(actor model.ActorID, g model.GemType, err error) {
	entry := ActivationEntry{Time: e.clock.Now(), Actor: actor.String(), Gem: string(g), Accepted: err == nil}
	if rej, ok := ability.AsRejected(err); ok {
		entry.Reason = string(rej.Reason)
		entry.Remaining = rej.Remaining
		e.log.Debug().Str("actor", entry.Actor).Str("gem", entry.Gem).Str("reason", entry.Reason).Msg("activation rejected")
	} else if err != nil {
		entry.Reason = err.Error()
		e.log.Error().Err(err).Str("actor", entry.Actor).Str("gem", entry.Gem).Msg("activation failed")
	}
	if e.journal == nil {
		return
	}
	if jerr := e.journal.WriteActivation(entry); jerr != nil {
		e.log.Error().Err(jerr).Msg("journal write failed")
	}
}

// OnInventoryChanged reconciles the inventory down to one gem, then moves passives from the
// previous active gem to the one now in the equip slot.
func (e *Engine) OnInventoryChanged(actor model.ActorID) {
	if !e.host.Online(actor) {
		return
	}
	res := e.reconciler.Reconcile(actor)
	if len(res.Removed) > 0 {
		e.log.Info().Str("actor", actor.String()).Int("removed", len(res.Removed)).Msg("extra gems removed")
	}

	var next model.GemType
	if it, ok := e.host.Equipped(actor); ok && it.IsGem() {
		next = it.Gem
	}
	prev, had := e.active[actor]
	if had && prev == next {
		return
	}
	if had {
		e.deactivate(actor, prev)
		delete(e.active, actor)
	}
	if next == "" {
		return
	}
	e.active[actor] = next
	if e.cfg.GemEnabled(next) {
		e.abilities[next].ApplyPassive(actor)
	}
}

func (e *Engine) deactivate(actor model.ActorID, g model.GemType) {
	if e.cfg.GemEnabled(g) {
		e.abilities[g].RemovePassive(actor)
	}
	e.tasks.StopAll(actor)
}

// OnCombatEvent lets both sides' gems modify a hit. The attacker's hook runs first and is
// skipped if the attacker trusts the victim; the victim's hook is skipped if the victim
// trusts the attacker.
func (e *Engine) OnCombatEvent(attacker, victim model.ActorID, damage float64) (float64, bool) {
	hit := &ability.Hit{Damage: damage}
	if a, ok := e.enabledAbility(attacker); ok && !e.trust.IsTrusted(attacker, victim) {
		if h, ok := a.(ability.AttackHook); ok {
			h.OnAttack(attacker, victim, hit)
		}
	}
	if hit.Cancelled {
		return hit.Damage, true
	}
	if a, ok := e.enabledAbility(victim); ok && !e.trust.IsTrusted(victim, attacker) {
		if h, ok := a.(ability.DamagedHook); ok {
			h.OnDamaged(victim, attacker, hit)
		}
	}
	return hit.Damage, hit.Cancelled
}

func (e *Engine) OnMovement(actor model.ActorID) {
	if a, ok := e.enabledAbility(actor); ok {
		if h, ok := a.(ability.MoveHook); ok {
			h.OnMove(actor)
		}
	}
}

// OnJump handles a mid-air jump and reports whether a gem consumed it.
func (e *Engine) OnJump(actor model.ActorID) bool {
	if a, ok := e.enabledAbility(actor); ok {
		if h, ok := a.(ability.JumpHook); ok {
			return h.OnJump(actor)
		}
	}
	return false
}

// OnDisconnect drops every piece of state held for actor. Tasks, owned effects and
// cooldowns go first so nothing can fire against the departing actor.
func (e *Engine) OnDisconnect(actor model.ActorID) {
	e.tasks.StopAll(actor)
	e.effects.PurgeAll(actor)
	e.cooldowns.ClearAll(actor)
	for _, g := range model.AllGems {
		if f, ok := e.abilities[g].(ability.Forgetter); ok {
			f.Forget(actor)
		}
	}
	e.reconciler.Forget(actor)
	delete(e.active, actor)
	e.log.Debug().Str("actor", actor.String()).Msg("actor state purged")
}

// IsBlocked reports whether pos belongs to a standing ability structure.
func (e *Engine) IsBlocked(pos model.Vec3i) bool { return e.structures.Blocked(pos) }

// CanPlace reports whether it may be placed as a block. Gems never can.
func (e *Engine) CanPlace(_ model.ActorID, it model.Item) bool { return !it.IsGem() }

// GiveGem stamps the acquisition time and inserts a new gem item.
func (e *Engine) GiveGem(actor model.ActorID, g model.GemType) (int, error) {
	if !e.host.Online(actor) {
		return 0, ErrOffline
	}
	e.reconciler.Record(actor, g, e.clock.Now())
	slot, ok := e.host.AddItem(actor, NewGemItem(g))
	if !ok {
		return 0, ErrInventoryFull
	}
	e.host.Notify(actor, "You received the "+string(g)+" gem!", model.SeveritySuccess)
	e.OnInventoryChanged(actor)
	return slot, nil
}

// Enabled reports whether g is enabled.
func (e *Engine) Enabled(g model.GemType) bool { return e.cfg.GemEnabled(g) }

// SetGemEnabled toggles g and moves the passives of every actor holding it.
func (e *Engine) SetGemEnabled(g model.GemType, on bool) {
	next := e.cfg.Clone()
	next.Enabled[string(g)] = on
	e.swapConfig(next)
}

// Reload replaces the tunables. Tick rate, equip slot and effect tolerance keep their startup values;
// running tasks keep the countdowns they already computed.
func (e *Engine) Reload(cfg tuning.Config) error {
	cfg = cfg.Clone()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}
	policy, err := reconcile.ParsePolicy(cfg.ReconcilePolicy)
	if err != nil {
		return err
	}
	if cfg.TickRateHz != e.cfg.TickRateHz {
		e.log.Warn().Int("running", e.cfg.TickRateHz).Int("requested", cfg.TickRateHz).Msg("tick rate change needs a restart")
		cfg.TickRateHz = e.cfg.TickRateHz
	}
	if cfg.EquipSlot != e.cfg.EquipSlot {
		e.log.Warn().Int("running", e.cfg.EquipSlot).Int("requested", cfg.EquipSlot).Msg("equip slot change needs a restart")
		cfg.EquipSlot = e.cfg.EquipSlot
	}
	cfg.EffectToleranceMs = e.cfg.EffectToleranceMs
	e.reconciler.SetPolicy(policy)
	e.swapConfig(cfg)
	e.log.Info().Msg("gem config reloaded")
	return nil
}

func (e *Engine) swapConfig(next tuning.Config) {
	type change struct {
		actor model.ActorID
		gem   model.GemType
		on    bool
	}
	var changes []change
	for actor, g := range e.active {
		was, now := e.cfg.GemEnabled(g), next.GemEnabled(g)
		if was != now {
			changes = append(changes, change{actor: actor, gem: g, on: now})
		}
	}
	for _, c := range changes {
		if !c.on {
			e.abilities[c.gem].RemovePassive(c.actor)
			e.tasks.StopAll(c.actor)
		}
	}
	e.cfg = next
	for _, c := range changes {
		if c.on {
			e.abilities[c.gem].ApplyPassive(c.actor)
		}
	}
}

// Config returns a copy of the live tunables.
func (e *Engine) Config() tuning.Config { return e.cfg.Clone() }

func (e *Engine) Trust(ctx context.Context, a, b model.ActorID) (bool, error) {
	return e.trust.Trust(ctx, a, b)
}

func (e *Engine) Untrust(ctx context.Context, a, b model.ActorID) bool {
	return e.trust.Untrust(ctx, a, b)
}

func (e *Engine) Trusted(a model.ActorID) []model.ActorID { return e.trust.Trusted(a) }

// Cooldowns returns the remaining seconds of every live cooldown of actor.
func (e *Engine) Cooldowns(actor model.ActorID) map[model.AbilityKey]int {
	return e.cooldowns.Snapshot(actor)
}

// State returns the lifecycle phase of actor's active gem.
func (e *Engine) State(actor model.ActorID) ability.Phase {
	a, ok := e.enabledAbility(actor)
	if !ok {
		return ability.Inactive
	}
	if a.PrimaryActive(actor) {
		return ability.PrimaryActive
	}
	return ability.PassiveApplied
}

// Status summarises the engine state held for one actor.
type Status struct {
	Gem          model.GemType  `json:"gem,omitempty"`
	Enabled      bool           `json:"enabled"`
	Phase        string         `json:"phase"`
	Cooldowns    map[string]int `json:"cooldowns"`
	Tasks        int            `json:"tasks"`
	OwnedEffects int            `json:"owned_effects"`
	Trusted      []string       `json:"trusted"`
}

func (e *Engine) Status(actor model.ActorID) Status {
	st := Status{
		Phase:        e.State(actor).String(),
		Cooldowns:    map[string]int{},
		Tasks:        e.tasks.Len(actor),
		OwnedEffects: e.effects.Len(actor),
		Trusted:      []string{},
	}
	if g, ok := e.active[actor]; ok {
		st.Gem = g
		st.Enabled = e.cfg.GemEnabled(g)
	}
	for k, v := range e.cooldowns.Snapshot(actor) {
		st.Cooldowns[k.String()] = v
	}
	for _, id := range e.trust.Trusted(actor) {
		st.Trusted = append(st.Trusted, id.String())
	}
	return st
}

// Stats is a process-wide summary.
type Stats struct {
	ActiveActors   int `json:"active_actors"`
	Tasks          int `json:"tasks"`
	ProtectedCount int `json:"protected_blocks"`
}

func (e *Engine) Stats() Stats {
	return Stats{
		ActiveActors:   len(e.active),
		Tasks:          e.tasks.Total(),
		ProtectedCount: e.structures.Len(),
	}
}

// Ability returns the variant for g.
func (e *Engine) Ability(g model.GemType) ability.Ability { return e.abilities[g] }

// NewGemItem returns a fresh gem item of type g.
func NewGemItem(g model.GemType) model.Item {
	return model.Item{ID: "gem_" + string(g), Material: gemMaterials[g], Gem: g}
}

var gemMaterials = map[model.GemType]string{
	model.GemAstra:    "AMETHYST_SHARD",
	model.GemFire:     "BLAZE_POWDER",
	model.GemIce:      "ICE",
	model.GemInvis:    "PHANTOM_MEMBRANE",
	model.GemPuff:     "FEATHER",
	model.GemSpeed:    "SUGAR",
	model.GemStrength: "REDSTONE",
}
