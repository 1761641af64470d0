package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gemcraft.ai/internal/gems/engine"
	"gemcraft.ai/internal/gems/model"
	"gemcraft.ai/internal/gems/tuning"
	"gemcraft.ai/internal/protocol"
	"gemcraft.ai/internal/sim/world"
	"gemcraft.ai/internal/transport/feed"
)

type session struct {
	t    *testing.T
	w    *world.World
	e    *engine.Engine
	srv  *Server
	url  string
	conn *websocket.Conn
}

func startServer(t *testing.T) *session {
	t.Helper()
	w, err := world.New(world.WorldConfig{ID: "test", TickRateHz: 200, EquipSlot: world.OffHandSlot}, zerolog.Nop())
	require.NoError(t, err)
	cfg := tuning.Defaults()
	cfg.TickRateHz = 200
	e, err := engine.New(engine.Options{Host: w, Clock: w.Clock(), Config: cfg, Roll: func(int) int { return 99 }, Log: zerolog.Nop()})
	require.NoError(t, err)
	w.SetHandler(e)
	hub := feed.NewHub(zerolog.Nop())
	w.SetNoticeSink(hub)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Run(ctx) }()
	t.Cleanup(cancel)

	s := NewServer(w, e, hub, zerolog.Nop())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &session{t: t, w: w, e: e, srv: s, url: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

func startSession(t *testing.T) *session {
	t.Helper()
	s := startServer(t)
	conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	s.conn = conn
	return s
}

func (s *session) actorCount() int {
	s.t.Helper()
	var n int
	s.do(func() { n = len(s.w.ActorIDs()) })
	return n
}

func (s *session) do(fn func()) {
	s.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(s.t, s.w.Do(ctx, fn))
}

// next reads messages until one of type typ arrives.
func (s *session) next(typ string, v any) {
	s.t.Helper()
	_ = s.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, b, err := s.conn.ReadMessage()
		require.NoError(s.t, err)
		base, err := protocol.DecodeBase(b)
		require.NoError(s.t, err)
		if base.Type == typ {
			require.NoError(s.t, json.Unmarshal(b, v))
			return
		}
	}
}

func (s *session) hello() model.ActorID {
	s.t.Helper()
	require.NoError(s.t, s.conn.WriteJSON(protocol.HelloMsg{
		Type: protocol.TypeHello, ProtocolVersion: protocol.Version, Name: "steve",
	}))
	var welcome protocol.WelcomeMsg
	s.next(protocol.TypeWelcome, &welcome)
	assert.Equal(s.t, "test", welcome.WorldID)
	assert.Equal(s.t, world.OffHandSlot, welcome.EquipSlot)
	id, err := uuid.Parse(welcome.ActorID)
	require.NoError(s.t, err)
	return id
}

func (s *session) activate(reqID string) protocol.AckMsg {
	s.t.Helper()
	require.NoError(s.t, s.conn.WriteJSON(protocol.ActivateMsg{
		Type: protocol.TypeActivate, ProtocolVersion: protocol.Version, ReqID: reqID,
	}))
	var ack protocol.AckMsg
	s.next(protocol.TypeAck, &ack)
	require.Equal(s.t, reqID, ack.AckFor)
	return ack
}

func TestSessionLifecycle(t *testing.T) {
	s := startSession(t)
	id := s.hello()

	ack := s.activate("r1")
	assert.False(t, ack.Accepted)
	assert.Equal(t, protocol.ErrNoGem, ack.Code)

	var err error
	s.do(func() { _, err = s.e.GiveGem(id, model.GemFire) })
	require.NoError(t, err)
	var notice protocol.NoticeMsg
	s.next(protocol.TypeNotice, &notice)
	assert.Equal(t, "You received the fire gem!", notice.Text)

	require.NoError(t, s.conn.WriteJSON(protocol.InputMsg{
		Type: protocol.TypeInput, ProtocolVersion: protocol.Version, Kind: "move_item", Slot: 0, To: world.OffHandSlot,
	}))
	require.Eventually(t, func() bool {
		var ok bool
		s.do(func() { _, ok = s.e.ActiveGem(id) })
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	ack = s.activate("r2")
	assert.True(t, ack.Accepted)

	ack = s.activate("r3")
	assert.False(t, ack.Accepted)
	assert.Equal(t, protocol.ErrCooldown, ack.Code)
	assert.Greater(t, ack.Remaining, 0)

	require.NoError(t, s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	assert.Eventually(t, func() bool {
		var online bool
		s.do(func() { online = s.w.Online(id) })
		return !online
	}, 2*time.Second, 10*time.Millisecond)
}

func TestInvalidMessagesAreIgnored(t *testing.T) {
	s := startSession(t)
	s.hello()

	require.NoError(t, s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"INPUT","protocol_version":"1.0","kind":"join"}`)))
	require.NoError(t, s.conn.WriteMessage(websocket.TextMessage, []byte(`garbage`)))
	ack := s.activate("still-alive")
	assert.Equal(t, protocol.ErrNoGem, ack.Code)
}

func TestHandshakeRequiresHello(t *testing.T) {
	s := startSession(t)
	require.NoError(t, s.conn.WriteJSON(protocol.ActivateMsg{Type: protocol.TypeActivate, ProtocolVersion: protocol.Version, ReqID: "x"}))
	_ = s.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := s.conn.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, websocket.ClosePolicyViolation, ce.Code)
}

func TestToWorldInput(t *testing.T) {
	actor, target := uuid.New(), uuid.New()
	in := toWorldInput(actor, protocol.InputMsg{
		Kind: "attack", Target: target.String(), Damage: 3,
		Pos: &[3]float64{1, 2, 3}, Block: &[3]int{4, 5, 6},
	})
	assert.Equal(t, world.InputAttack, in.Kind)
	assert.Equal(t, actor, in.Actor)
	assert.Equal(t, target, in.Target)
	assert.Equal(t, &model.Vec3f{X: 1, Y: 2, Z: 3}, in.Pos)
	assert.Equal(t, &model.Vec3i{X: 4, Y: 5, Z: 6}, in.Block)
	assert.Nil(t, in.Facing)
}

func TestCloseRightAfterHelloLeavesNoActor(t *testing.T) {
	s := startServer(t)
	for i := 0; i < 5; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
		require.NoError(t, err)
		require.NoError(t, conn.WriteJSON(protocol.HelloMsg{
			Type: protocol.TypeHello, ProtocolVersion: protocol.Version, Name: "quick",
		}))
		require.NoError(t, conn.Close())
	}
	assert.Eventually(t, func() bool { return s.actorCount() == 0 }, 3*time.Second, 10*time.Millisecond)
}

func TestJoinIsCalledOffWhenCallerGivesUp(t *testing.T) {
	s := startServer(t)
	for i := 0; i < 20; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		id, err := s.srv.join(ctx, "late", model.Vec3f{})
		if err == nil {
			s.do(func() { s.w.Leave(id) })
		} else {
			assert.Equal(t, uuid.Nil, id)
		}
		// A join still queued runs before the count is taken.
		assert.Equal(t, 0, s.actorCount())
	}
}
