// Package reconcile keeps at most one gem item in an actor's inventory.
package reconcile

import (
	"fmt"
	"time"

	"gemcraft.ai/internal/gems/host"
	"gemcraft.ai/internal/gems/model"
	"gemcraft.ai/internal/sim/clock"
)

// Policy selects which gem survives a reconciliation pass.
type Policy string

const (
	// EarliestAcquired keeps the gem with the oldest acquisition record. Ties keep the
	// first scanned.
	EarliestAcquired Policy = "earliest_acquired"
	// FirstInInventory keeps the lowest-index gem regardless of when it was acquired.
	FirstInInventory Policy = "first_in_inventory"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case EarliestAcquired, FirstInInventory:
		return Policy(s), nil
	case "":
		return EarliestAcquired, nil
	}
	return "", fmt.Errorf("unknown reconcile policy %q", s)
}

// Result describes one pass.
type Result struct {
	Kept    *model.SlotItem
	Removed []model.SlotItem
}

type Reconciler struct {
	inv    host.Inventory
	msg    host.Messenger
	clock  clock.Clock
	policy Policy

	acquired map[model.ActorID]map[model.GemType]time.Time
}

func New(inv host.Inventory, msg host.Messenger, clk clock.Clock, policy Policy) *Reconciler {
	if policy == "" {
		policy = EarliestAcquired
	}
	return &Reconciler{
		inv:      inv,
		msg:      msg,
		clock:    clk,
		policy:   policy,
		acquired: map[model.ActorID]map[model.GemType]time.Time{},
	}
}

func (r *Reconciler) Policy() Policy { return r.policy }

func (r *Reconciler) SetPolicy(p Policy) { r.policy = p }

// Record stamps the acquisition time of gem for actor, replacing any earlier stamp.
func (r *Reconciler) Record(actor model.ActorID, gem model.GemType, at time.Time) {
	m := r.acquired[actor]
	if m == nil {
		m = map[model.GemType]time.Time{}
		r.acquired[actor] = m
	}
	m[gem] = at
}

func (r *Reconciler) AcquiredAt(actor model.ActorID, gem model.GemType) (time.Time, bool) {
	at, ok := r.acquired[actor][gem]
	return at, ok
}

// Forget drops every acquisition record of actor.
func (r *Reconciler) Forget(actor model.ActorID) { delete(r.acquired, actor) }

// Reconcile scans actor's inventory and removes every gem but one. Gems seen for the first
// time are stamped now. Records of gem types no longer held are dropped.
func (r *Reconciler) Reconcile(actor model.ActorID) Result {
	var (
		gems   []model.SlotItem
		stamps []time.Time
	)
	for _, si := range r.inv.ScanSlots(actor) {
		if !si.Item.IsGem() {
			continue
		}
		at, ok := r.AcquiredAt(actor, si.Item.Gem)
		if !ok {
			at = r.clock.Now()
			r.Record(actor, si.Item.Gem, at)
		}
		gems = append(gems, si)
		stamps = append(stamps, at)
	}
	if len(gems) == 0 {
		r.Forget(actor)
		return Result{}
	}

	keep := 0
	if r.policy == EarliestAcquired {
		for i := 1; i < len(gems); i++ {
			if stamps[i].Before(stamps[keep]) {
				keep = i
			}
		}
	}

	kept := gems[keep]
	res := Result{Kept: &kept}
	for i, si := range gems {
		if i == keep {
			continue
		}
		r.inv.RemoveAt(actor, si.Index)
		res.Removed = append(res.Removed, si)
		r.msg.Notify(actor, fmt.Sprintf("You can only hold one gem. Removed %s gem.", si.Item.Gem), model.SeverityWarning)
	}

	for g := range r.acquired[actor] {
		if g != kept.Item.Gem {
			delete(r.acquired[actor], g)
		}
	}
	return res
}
