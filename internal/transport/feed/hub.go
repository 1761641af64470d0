// Package feed fans notices and activation attempts out to websocket subscribers.
package feed

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"gemcraft.ai/internal/gems/engine"
	"gemcraft.ai/internal/protocol"
	"gemcraft.ai/internal/sim/world"
)

// Filter selects what a subscriber receives. A nil Actors set matches every actor.
type Filter struct {
	Actors      map[string]struct{}
	Notices     bool
	Activations bool
}

func (f Filter) match(actor string, notice bool) bool {
	if notice && !f.Notices || !notice && !f.Activations {
		return false
	}
	if f.Actors == nil {
		return true
	}
	_, ok := f.Actors[actor]
	return ok
}

type subscriber struct {
	filter Filter
	out    chan []byte
}

// Hub never blocks a publisher: a subscriber whose buffer is full misses the message.
type Hub struct {
	log zerolog.Logger

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*subscriber

	dropped atomic.Uint64
}

var (
	_ world.NoticeSink = (*Hub)(nil)
	_ engine.Journal   = (*Hub)(nil)
)

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{log: log, subs: map[uint64]*subscriber{}}
}

// Subscribe registers a subscriber with a buffer of size buf. The returned cancel func
// closes the channel and is safe to call more than once.
func (h *Hub) Subscribe(f Filter, buf int) (<-chan []byte, func()) {
	if buf <= 0 {
		buf = 64
	}
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	s := &subscriber{filter: f, out: make(chan []byte, buf)}
	h.subs[id] = s
	h.mu.Unlock()

	var once sync.Once
	return s.out, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(s.out)
		})
	}
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

func (h *Hub) WriteNotice(n world.Notice) {
	h.publish(n.Actor.String(), true, protocol.NoticeMsg{
		Type:            protocol.TypeNotice,
		ProtocolVersion: protocol.Version,
		Tick:            n.Tick,
		ActorID:         n.Actor.String(),
		Text:            n.Text,
		Severity:        n.Severity.String(),
	})
}

func (h *Hub) WriteActivation(e engine.ActivationEntry) error {
	h.publish(e.Actor, false, protocol.ActivationMsg{
		Type:            protocol.TypeActivation,
		ProtocolVersion: protocol.Version,
		Time:            e.Time,
		ActorID:         e.Actor,
		Gem:             e.Gem,
		Accepted:        e.Accepted,
		Code:            protocol.CodeForReason(e.Reason),
		Remaining:       e.Remaining,
	})
	return nil
}

func (h *Hub) publish(actor string, notice bool, v any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.subs) == 0 {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		h.log.Error().Err(err).Msg("feed marshal failed")
		return
	}
	for _, s := range h.subs {
		if !s.filter.match(actor, notice) {
			continue
		}
		select {
		case s.out <- b:
		default:
			h.dropped.Add(1)
		}
	}
}
