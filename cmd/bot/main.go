package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"gemcraft.ai/internal/protocol"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		adminURL = flag.String("admin", "http://127.0.0.1:8080", "admin base url used for -gem")
		name     = flag.String("name", "bot", "actor name")
		gem      = flag.String("gem", "", "ask the admin API for this gem and equip it")
		every    = flag.Duration("activate_every", 5*time.Second, "primary activation interval")
	)
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("component", "bot").Str("name", *name).Logger()
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("dial")
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		Name:            *name,
		Capabilities:    protocol.Capabilities{MaxQueue: 8},
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatal().Err(err).Msg("send HELLO")
	}

	msgs := make(chan []byte, 16)
	go func() {
		defer close(msgs)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msgs <- msg
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	activate := time.NewTicker(*every)
	defer activate.Stop()
	wander := time.NewTicker(2 * time.Second)
	defer wander.Stop()

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	var welcome protocol.WelcomeMsg
	pos := [3]float64{}
	seq := 0
	for {
		select {
		case <-stop:
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg, ok := <-msgs:
			if !ok {
				logger.Info().Msg("connection closed")
				return
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			switch base.Type {
			case protocol.TypeWelcome:
				if err := json.Unmarshal(msg, &welcome); err != nil {
					continue
				}
				logger.Info().Str("actor", welcome.ActorID).Str("world", welcome.WorldID).Int("tick_rate", welcome.TickRateHz).Msg("WELCOME")
				if *gem != "" {
					equip(conn, logger, *adminURL, welcome, *gem)
				}
			case protocol.TypeAck:
				var ack protocol.AckMsg
				if err := json.Unmarshal(msg, &ack); err != nil {
					continue
				}
				ev := logger.Info()
				if !ack.Accepted {
					ev = logger.Debug().Str("code", ack.Code).Int("remaining_s", ack.Remaining)
				}
				ev.Str("req", ack.AckFor).Bool("accepted", ack.Accepted).Msg("ACK")
			case protocol.TypeNotice:
				var n protocol.NoticeMsg
				if err := json.Unmarshal(msg, &n); err != nil {
					continue
				}
				logger.Info().Str("severity", n.Severity).Msg(n.Text)
			}
		case <-activate.C:
			if welcome.ActorID == "" {
				continue
			}
			seq++
			_ = conn.WriteJSON(protocol.ActivateMsg{
				Type:            protocol.TypeActivate,
				ProtocolVersion: protocol.Version,
				ReqID:           fmt.Sprintf("A_%d", seq),
			})
		case <-wander.C:
			if welcome.ActorID == "" {
				continue
			}
			pos[0] += float64(r.Intn(5) - 2)
			pos[2] += float64(r.Intn(5) - 2)
			p := pos
			_ = conn.WriteJSON(protocol.InputMsg{
				Type:            protocol.TypeInput,
				ProtocolVersion: protocol.Version,
				Kind:            "move",
				Pos:             &p,
			})
		}
	}
}

// equip asks the admin API for a gem and moves it from its slot into the equip slot.
func equip(conn *websocket.Conn, logger zerolog.Logger, adminURL string, w protocol.WelcomeMsg, gem string) {
	u := strings.TrimRight(adminURL, "/") + "/admin/v1/actors/" + w.ActorID + "/gems/" + gem
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Post(u, "application/json", nil)
	if err != nil {
		logger.Error().Err(err).Msg("give gem")
		return
	}
	defer resp.Body.Close()
	var out struct {
		Slot int `json:"slot"`
	}
	if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&out) != nil {
		logger.Error().Int("status", resp.StatusCode).Msg("give gem refused")
		return
	}
	if out.Slot == w.EquipSlot {
		return
	}
	_ = conn.WriteJSON(protocol.InputMsg{
		Type:            protocol.TypeInput,
		ProtocolVersion: protocol.Version,
		Kind:            "move_item",
		Slot:            out.Slot,
		To:              w.EquipSlot,
	})
}
