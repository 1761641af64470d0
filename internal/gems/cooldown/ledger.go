// Package cooldown tracks per-actor ability cooldowns with lazy expiry.
package cooldown

import (
	"math"
	"time"

	"gemcraft.ai/internal/gems/host"
	"gemcraft.ai/internal/gems/model"
	"gemcraft.ai/internal/sim/clock"
)

type Ledger struct {
	clock clock.Clock

	sched          host.Scheduler
	display        host.CooldownDisplay
	ticksPerSecond int

	entries  map[model.ActorID]map[model.AbilityKey]time.Time
	displays map[model.ActorID]host.TaskHandle
}

type Option func(*Ledger)

// WithDisplay refreshes a countdown for the most recently set cooldown once per second.
func WithDisplay(s host.Scheduler, d host.CooldownDisplay, ticksPerSecond int) Option {
	return func(l *Ledger) {
		l.sched = s
		l.display = d
		l.ticksPerSecond = ticksPerSecond
	}
}

func New(clk clock.Clock, opts ...Option) *Ledger {
	l := &Ledger{
		clock:    clk,
		entries:  map[model.ActorID]map[model.AbilityKey]time.Time{},
		displays: map[model.ActorID]host.TaskHandle{},
	}
	for _, o := range opts {
		o(l)
	}
	if l.ticksPerSecond <= 0 {
		l.ticksPerSecond = 20
	}
	return l
}

// Set records expiry = now + seconds. Non-positive durations clear the entry.
func (l *Ledger) Set(actor model.ActorID, key model.AbilityKey, seconds int) {
	if seconds <= 0 {
		l.Clear(actor, key)
		return
	}
	m := l.entries[actor]
	if m == nil {
		m = map[model.AbilityKey]time.Time{}
		l.entries[actor] = m
	}
	m[key] = l.clock.Now().Add(time.Duration(seconds) * time.Second)
	l.startDisplay(actor, key, seconds)
}

// Has reports whether a live entry exists. Expired entries are dropped.
func (l *Ledger) Has(actor model.ActorID, key model.AbilityKey) bool {
	_, ok := l.live(actor, key)
	return ok
}

// Remaining returns the whole seconds left, rounded up; 0 when there is no live entry.
func (l *Ledger) Remaining(actor model.ActorID, key model.AbilityKey) int {
	exp, ok := l.live(actor, key)
	if !ok {
		return 0
	}
	left := exp.Sub(l.clock.Now())
	return int(math.Ceil(left.Seconds()))
}

func (l *Ledger) live(actor model.ActorID, key model.AbilityKey) (time.Time, bool) {
	m := l.entries[actor]
	if m == nil {
		return time.Time{}, false
	}
	exp, ok := m[key]
	if !ok {
		return time.Time{}, false
	}
	if !l.clock.Now().Before(exp) {
		delete(m, key)
		if len(m) == 0 {
			delete(l.entries, actor)
		}
		return time.Time{}, false
	}
	return exp, true
}

func (l *Ledger) Clear(actor model.ActorID, key model.AbilityKey) {
	if m := l.entries[actor]; m != nil {
		delete(m, key)
		if len(m) == 0 {
			delete(l.entries, actor)
		}
	}
	l.stopDisplay(actor)
}

// ClearAll drops every entry for actor.
func (l *Ledger) ClearAll(actor model.ActorID) {
	delete(l.entries, actor)
	l.stopDisplay(actor)
}

// Snapshot returns remaining seconds for every live entry of actor.
func (l *Ledger) Snapshot(actor model.ActorID) map[model.AbilityKey]int {
	out := map[model.AbilityKey]int{}
	for key := range l.entries[actor] {
		if r := l.Remaining(actor, key); r > 0 {
			out[key] = r
		}
	}
	return out
}

// Len returns the number of stored (possibly expired) entries for actor.
func (l *Ledger) Len(actor model.ActorID) int { return len(l.entries[actor]) }

func (l *Ledger) startDisplay(actor model.ActorID, key model.AbilityKey, max int) {
	if l.sched == nil || l.display == nil {
		return
	}
	l.stopDisplay(actor)
	l.display.ShowCooldown(actor, max, max)
	var h host.TaskHandle
	h = l.sched.RunRepeating(l.ticksPerSecond, l.ticksPerSecond, func() {
		remaining := l.Remaining(actor, key)
		if remaining <= 0 {
			l.display.ClearCooldown(actor)
			l.sched.Cancel(h)
			if l.displays[actor] == h {
				delete(l.displays, actor)
			}
			return
		}
		l.display.ShowCooldown(actor, remaining, max)
	})
	l.displays[actor] = h
}

func (l *Ledger) stopDisplay(actor model.ActorID) {
	h, ok := l.displays[actor]
	if !ok {
		return
	}
	delete(l.displays, actor)
	l.sched.Cancel(h)
	l.display.ClearCooldown(actor)
}
