// Package tasks owns the repeating and delayed per-actor ability tasks. At most one task is
// live per (actor, ability key); starting another under the same key cancels the old one.
package tasks

import (
	"fmt"

	"github.com/rs/zerolog"

	"gemcraft.ai/internal/gems/host"
	"gemcraft.ai/internal/gems/model"
)

// State is the mutable per-task bookkeeping handed to every invocation. Countdown and Phase
// belong to the task body; Runs is maintained by the registry.
type State struct {
	Countdown int
	Phase     int
	Runs      int
}

// Tick is the context of one invocation.
type Tick struct {
	Actor model.ActorID
	Key   model.AbilityKey
	State *State

	reg   *Registry
	entry *entry
}

// Stop cancels the task this invocation belongs to. It is a no-op if the slot has since
// been taken over by a newer task.
func (t *Tick) Stop() { t.reg.stopEntry(t.Actor, t.Key, t.entry) }

type Func func(t *Tick) error

type entry struct {
	handle   host.TaskHandle
	interval int
	state    State
	stopped  bool
}

type Registry struct {
	sched host.Scheduler
	log   zerolog.Logger

	slots map[model.ActorID]map[model.AbilityKey]*entry
}

func New(s host.Scheduler, log zerolog.Logger) *Registry {
	return &Registry{
		sched: s,
		log:   log,
		slots: map[model.ActorID]map[model.AbilityKey]*entry{},
	}
}

// Start registers fn to run every interval ticks, beginning next tick, after cancelling
// whatever ran under (actor, key).
func (r *Registry) Start(actor model.ActorID, key model.AbilityKey, interval int, init State, fn Func) {
	if interval < 1 {
		interval = 1
	}
	r.Stop(actor, key)
	e := &entry{interval: interval, state: init}
	e.handle = r.sched.RunRepeating(0, interval, func() { r.invoke(actor, key, e, fn) })
	r.put(actor, key, e)
}

// After registers a single delayed callback under (actor, key), replacing any live task.
func (r *Registry) After(actor model.ActorID, key model.AbilityKey, delay int, fn Func) {
	r.Stop(actor, key)
	e := &entry{}
	e.handle = r.sched.RunOnce(delay, func() { r.invoke(actor, key, e, fn) })
	r.put(actor, key, e)
}

// Stop cancels the task under (actor, key). Once it returns the task never fires again.
func (r *Registry) Stop(actor model.ActorID, key model.AbilityKey) {
	if e := r.slots[actor][key]; e != nil {
		r.stopEntry(actor, key, e)
	}
}

// StopAll cancels every task of actor.
func (r *Registry) StopAll(actor model.ActorID) {
	for key, e := range r.slots[actor] {
		e.stopped = true
		r.sched.Cancel(e.handle)
		delete(r.slots[actor], key)
	}
	delete(r.slots, actor)
}

func (r *Registry) Running(actor model.ActorID, key model.AbilityKey) bool {
	return r.slots[actor][key] != nil
}

// Len returns the number of live tasks for actor.
func (r *Registry) Len(actor model.ActorID) int { return len(r.slots[actor]) }

// Total returns the number of live tasks across all actors.
func (r *Registry) Total() int {
	n := 0
	for _, m := range r.slots {
		n += len(m)
	}
	return n
}

// Inspect returns a copy of the task state under (actor, key).
func (r *Registry) Inspect(actor model.ActorID, key model.AbilityKey) (State, bool) {
	e := r.slots[actor][key]
	if e == nil {
		return State{}, false
	}
	return e.state, true
}

func (r *Registry) put(actor model.ActorID, key model.AbilityKey, e *entry) {
	m := r.slots[actor]
	if m == nil {
		m = map[model.AbilityKey]*entry{}
		r.slots[actor] = m
	}
	m[key] = e
}

func (r *Registry) stopEntry(actor model.ActorID, key model.AbilityKey, e *entry) {
	if e.stopped {
		return
	}
	e.stopped = true
	r.sched.Cancel(e.handle)
	if m := r.slots[actor]; m != nil && m[key] == e {
		delete(m, key)
		if len(m) == 0 {
			delete(r.slots, actor)
		}
	}
}

func (r *Registry) invoke(actor model.ActorID, key model.AbilityKey, e *entry, fn Func) {
	if e.stopped {
		return
	}
	e.state.Runs++
	t := &Tick{Actor: actor, Key: key, State: &e.state, reg: r, entry: e}
	if err := call(fn, t); err != nil {
		r.log.Error().Err(err).
			Str("actor", actor.String()).
			Str("ability", key.String()).
			Int("run", e.state.Runs).
			Msg("task invocation failed")
	}
	if e.interval == 0 {
		r.stopEntry(actor, key, e)
	}
}

func call(fn Func, t *Tick) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(t)
}
