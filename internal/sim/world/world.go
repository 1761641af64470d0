package world

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gemcraft.ai/internal/gems/host"
	"gemcraft.ai/internal/gems/model"
	"gemcraft.ai/internal/sim/clock"
	"gemcraft.ai/internal/sim/scheduler"
)

type WorldConfig struct {
	ID         string
	TickRateHz int
	// Epoch is the wall time of tick 0. World time advances by exactly one tick per step.
	Epoch time.Time
	// EquipSlot is the inventory slot whose gem is the active one.
	EquipSlot int
}

// Handler receives the events the world produces for the gem engine. All calls happen on
// the world loop goroutine.
type Handler interface {
	ActiveGem(actor model.ActorID) (model.GemType, bool)
	OnAbilityInput(actor model.ActorID) error
	OnInventoryChanged(actor model.ActorID)
	OnCombatEvent(attacker, victim model.ActorID, damage float64) (float64, bool)
	OnMovement(actor model.ActorID)
	OnJump(actor model.ActorID) bool
	OnDisconnect(actor model.ActorID)
	IsBlocked(pos model.Vec3i) bool
	CanPlace(actor model.ActorID, it model.Item) bool
}

// Notice is a message delivered to an actor.
type Notice struct {
	Tick     uint64         `json:"tick"`
	Actor    model.ActorID  `json:"actor"`
	Text     string         `json:"text"`
	Severity model.Severity `json:"severity"`
}

type NoticeSink interface {
	WriteNotice(n Notice)
}

// World is a single-threaded in-memory simulation implementing host.Host.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg WorldConfig
	log zerolog.Logger

	tick  atomic.Uint64
	sched *scheduler.Scheduler

	blocks map[model.Vec3i]model.Material
	actors map[model.ActorID]*Actor

	handler Handler
	notices NoticeSink

	inbox chan Input
	calls chan call
	stop  chan struct{}
}

type call struct {
	fn   func()
	done chan struct{}
}

var _ host.Host = (*World)(nil)

func New(cfg WorldConfig, log zerolog.Logger) (*World, error) {
	if cfg.TickRateHz <= 0 {
		return nil, errors.New("tick rate must be > 0")
	}
	if cfg.EquipSlot < 0 || cfg.EquipSlot >= InventorySize {
		return nil, errors.New("equip slot out of range")
	}
	if cfg.Epoch.IsZero() {
		cfg.Epoch = time.Unix(0, 0).UTC()
	}
	return &World{
		cfg:     cfg,
		log:     log,
		sched:   scheduler.New(),
		blocks:  map[model.Vec3i]model.Material{},
		actors:  map[model.ActorID]*Actor{},
		handler: nopHandler{},
		inbox:   make(chan Input, 1024),
		calls:   make(chan call, 64),
		stop:    make(chan struct{}),
	}, nil
}

func (w *World) SetHandler(h Handler) {
	if h == nil {
		h = nopHandler{}
	}
	w.handler = h
}

func (w *World) SetNoticeSink(s NoticeSink) { w.notices = s }

func (w *World) Inbox() chan<- Input { return w.inbox }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) Config() WorldConfig { return w.cfg }

// Clock returns the tick-derived clock: Epoch plus elapsed ticks.
func (w *World) Clock() clock.Clock { return tickClock{w: w} }

// TickDuration is the simulated length of one tick.
func (w *World) TickDuration() time.Duration {
	return time.Second / time.Duration(w.cfg.TickRateHz)
}

func (w *World) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.TickDuration())
	defer ticker.Stop()

	var pending []Input
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case in := <-w.inbox:
			pending = append(pending, in)
		case c := <-w.calls:
			c.fn()
			close(c.done)
		case <-ticker.C:
			w.Step(pending)
			pending = pending[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// Do runs fn on the world loop goroutine and waits for it. Run must be active.
func (w *World) Do(ctx context.Context, fn func()) error {
	c := call{fn: fn, done: make(chan struct{})}
	select {
	case w.calls <- c:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Step advances the world by one tick: the clock moves, inputs apply in order, due
// callbacks run, then effects, fire and motion advance.
func (w *World) Step(inputs []Input) uint64 {
	now := w.tick.Add(1)
	for _, in := range inputs {
		w.apply(in)
	}
	w.sched.Tick()
	for _, a := range w.sortedActors() {
		w.decayEffects(a)
		w.burn(a, now)
		w.physics(a)
	}
	return now
}

// Advance runs n empty steps.
func (w *World) Advance(n int) {
	for i := 0; i < n; i++ {
		w.Step(nil)
	}
}

func (w *World) sortedActors() []*Actor {
	out := make([]*Actor, 0, len(w.actors))
	for _, a := range w.actors {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

// Join adds an actor at pos. A zero id gets a fresh one.
func (w *World) Join(id model.ActorID, name string, pos model.Vec3f) model.ActorID {
	if id == uuid.Nil {
		id = uuid.New()
	}
	if _, ok := w.actors[id]; ok {
		return id
	}
	if name == "" {
		name = "actor"
	}
	w.actors[id] = newActor(id, name, pos)
	w.log.Info().Str("actor", id.String()).Str("name", name).Msg("actor joined")
	w.handler.OnInventoryChanged(id)
	return id
}

// Leave disconnects an actor. The handler tears down first so every primitive still
// resolves the actor.
func (w *World) Leave(id model.ActorID) {
	if _, ok := w.actors[id]; !ok {
		return
	}
	w.handler.OnDisconnect(id)
	delete(w.actors, id)
	w.log.Info().Str("actor", id.String()).Msg("actor left")
}

// Actor returns the live actor record. Callers must stay on the loop goroutine.
func (w *World) Actor(id model.ActorID) (*Actor, bool) {
	a, ok := w.actors[id]
	return a, ok
}

func (w *World) ActorIDs() []model.ActorID {
	out := make([]model.ActorID, 0, len(w.actors))
	for _, a := range w.sortedActors() {
		out = append(out, a.ID)
	}
	return out
}

// Scheduler

func (w *World) RunRepeating(delay, interval int, fn func()) host.TaskHandle {
	return w.sched.RunRepeating(delay, interval, fn)
}

func (w *World) RunOnce(delay int, fn func()) host.TaskHandle {
	return w.sched.RunOnce(delay, fn)
}

func (w *World) Cancel(h host.TaskHandle) { w.sched.Cancel(h) }

// PendingTasks returns the number of live scheduled callbacks.
func (w *World) PendingTasks() int { return w.sched.Pending() }

// Messaging

func (w *World) Notify(actor model.ActorID, text string, sev model.Severity) {
	a, ok := w.actors[actor]
	if !ok {
		return
	}
	n := Notice{Tick: w.tick.Load(), Actor: actor, Text: text, Severity: sev}
	a.pushNotice(n)
	if w.notices != nil {
		w.notices.WriteNotice(n)
	}
}

func (w *World) ShowCooldown(actor model.ActorID, remaining, max int) {
	if a, ok := w.actors[actor]; ok {
		a.CooldownBar = CooldownBar{Remaining: remaining, Max: max}
	}
}

func (w *World) ClearCooldown(actor model.ActorID) {
	if a, ok := w.actors[actor]; ok {
		a.CooldownBar = CooldownBar{}
	}
}

type tickClock struct{ w *World }

func (c tickClock) Now() time.Time {
	return c.w.cfg.Epoch.Add(time.Duration(c.w.tick.Load()) * c.w.TickDuration())
}

type nopHandler struct{}

func (nopHandler) ActiveGem(model.ActorID) (model.GemType, bool) { return "", false }
func (nopHandler) OnAbilityInput(model.ActorID) error             { return nil }
func (nopHandler) OnInventoryChanged(model.ActorID)               {}
func (nopHandler) OnCombatEvent(_, _ model.ActorID, d float64) (float64, bool) {
	return d, false
}
func (nopHandler) OnMovement(model.ActorID)                {}
func (nopHandler) OnJump(model.ActorID) bool               { return false }
func (nopHandler) OnDisconnect(model.ActorID)              {}
func (nopHandler) IsBlocked(model.Vec3i) bool              { return false }
func (nopHandler) CanPlace(model.ActorID, model.Item) bool { return true }
