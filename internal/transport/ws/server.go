// Package ws serves player sessions: each connection joins one actor, forwards its inputs
// into the world and streams back that actor's notices.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"gemcraft.ai/internal/gems/ability"
	"gemcraft.ai/internal/gems/model"
	"gemcraft.ai/internal/protocol"
	"gemcraft.ai/internal/sim/world"
	"gemcraft.ai/internal/transport/feed"
)

// Activator attempts the primary ability. It must be called on the world loop.
type Activator interface {
	OnAbilityInput(actor model.ActorID) error
}

type Server struct {
	world *world.World
	act   Activator
	hub   *feed.Hub
	log   zerolog.Logger

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, act Activator, hub *feed.Hub, log zerolog.Logger) *Server {
	return &Server{
		world: w,
		act:   act,
		hub:   hub,
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		actor, maxQ, ok := s.handshake(ctx, conn)
		if !ok {
			return
		}
		log := s.log.With().Str("actor", actor.String()).Logger()
		log.Info().Msg("session started")

		notices, cancelSub := s.hub.Subscribe(feed.Filter{
			Notices: true,
			Actors:  map[string]struct{}{actor.String(): {}},
		}, maxQ)
		defer cancelSub()

		// Acks share the writer with notices so the conn has a single writer.
		acks := make(chan []byte, maxQ)

		// Writer goroutine.
		go func() {
			for {
				var b []byte
				var ok bool
				select {
				case <-ctx.Done():
					return
				case b, ok = <-notices:
				case b, ok = <-acks:
				}
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					cancel()
					return
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.ValidateClient(msg)
			if err != nil {
				log.Debug().Err(err).Msg("dropping invalid message")
				continue
			}
			switch base.Type {
			case protocol.TypeInput:
				var in protocol.InputMsg
				if err := json.Unmarshal(msg, &in); err != nil {
					continue
				}
				select {
				case s.world.Inbox() <- toWorldInput(actor, in):
				default:
					log.Warn().Msg("world inbox full, input dropped")
				}
			case protocol.TypeActivate:
				var req protocol.ActivateMsg
				if err := json.Unmarshal(msg, &req); err != nil {
					continue
				}
				ack := s.activate(ctx, actor, req.ReqID)
				b, _ := json.Marshal(ack)
				select {
				case acks <- b:
				default:
				}
			}
		}

		s.leave(actor)
		log.Info().Msg("session ended")
	}
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) (model.ActorID, int, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return uuid.Nil, 0, false
	}
	base, err := protocol.ValidateClient(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return uuid.Nil, 0, false
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return uuid.Nil, 0, false
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = 32
	}
	if maxQ > 256 {
		maxQ = 256
	}

	var pos model.Vec3f
	if hello.Pos != nil {
		pos = vec3f(*hello.Pos)
	}
	id, err := s.join(ctx, hello.Name, pos)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server busy"), time.Now().Add(time.Second))
		return uuid.Nil, 0, false
	}

	cfg := s.world.Config()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		ActorID:         id.String(),
		WorldID:         cfg.ID,
		TickRateHz:      cfg.TickRateHz,
		EquipSlot:       cfg.EquipSlot,
		Tick:            s.world.CurrentTick(),
	}
	if err := writeJSON(conn, welcome); err != nil {
		s.leave(id)
		return uuid.Nil, 0, false
	}
	return id, maxQ, true
}

// joinTicket lets a join queued on the loop be called off after its caller gave up.
type joinTicket struct {
	mu        sync.Mutex
	abandoned bool
	joined    bool
}

// join adds an actor on the loop. If ctx ends first, the queued join is skipped, or
// undone when it already ran, so no actor outlives a failed handshake.
func (s *Server) join(ctx context.Context, name string, pos model.Vec3f) (model.ActorID, error) {
	id := uuid.New()
	t := &joinTicket{}
	err := s.world.Do(ctx, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.abandoned {
			return
		}
		s.world.Join(id, name, pos)
		t.joined = true
	})
	if err == nil {
		return id, nil
	}
	t.mu.Lock()
	t.abandoned = true
	joined := t.joined
	t.mu.Unlock()
	if joined {
		s.leave(id)
	}
	return uuid.Nil, err
}

func (s *Server) leave(id model.ActorID) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.world.Do(ctx, func() { s.world.Leave(id) }); err != nil {
		s.log.Warn().Err(err).Str("actor", id.String()).Msg("leave not confirmed")
	}
}

func (s *Server) activate(ctx context.Context, actor model.ActorID, reqID string) protocol.AckMsg {
	ack := protocol.AckMsg{Type: protocol.TypeAck, ProtocolVersion: protocol.Version, AckFor: reqID}
	var err error
	if derr := s.world.Do(ctx, func() { err = s.act.OnAbilityInput(actor) }); derr != nil {
		ack.Code = protocol.ErrWorldBusy
		ack.Message = derr.Error()
		return ack
	}
	ack.ServerTick = s.world.CurrentTick()
	if err == nil {
		ack.Accepted = true
		return ack
	}
	ack.Message = err.Error()
	if rej, ok := ability.AsRejected(err); ok {
		ack.Code = protocol.CodeForReason(string(rej.Reason))
		ack.Remaining = rej.Remaining
	} else {
		ack.Code = protocol.ErrInternal
	}
	return ack
}

func toWorldInput(actor model.ActorID, in protocol.InputMsg) world.Input {
	out := world.Input{
		Actor:  actor,
		Kind:   world.InputKind(in.Kind),
		Damage: in.Damage,
		Slot:   in.Slot,
		To:     in.To,
	}
	if in.Pos != nil {
		p := vec3f(*in.Pos)
		out.Pos = &p
	}
	if in.Facing != nil {
		f := vec3f(*in.Facing)
		out.Facing = &f
	}
	if in.Block != nil {
		b := model.Vec3i{X: in.Block[0], Y: in.Block[1], Z: in.Block[2]}
		out.Block = &b
	}
	if in.Target != "" {
		if id, err := uuid.Parse(in.Target); err == nil {
			out.Target = id
		}
	}
	return out
}

func vec3f(v [3]float64) model.Vec3f { return model.Vec3f{X: v[0], Y: v[1], Z: v[2]} }

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
