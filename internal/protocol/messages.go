package protocol

import "time"

// HELLO (client -> server)
type HelloMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Name            string       `json:"name"`
	Pos             *[3]float64  `json:"pos,omitempty"`
	Capabilities    Capabilities `json:"capabilities"`
}

type Capabilities struct {
	MaxQueue int `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ActorID         string `json:"actor_id"`
	WorldID         string `json:"world_id"`
	TickRateHz      int    `json:"tick_rate_hz"`
	EquipSlot       int    `json:"equip_slot"`
	Tick            uint64 `json:"tick"`
}

// INPUT (client -> server): one world action for the sender's actor.
type InputMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Kind            string      `json:"kind"`
	Pos             *[3]float64 `json:"pos,omitempty"`
	Facing          *[3]float64 `json:"facing,omitempty"`
	Block           *[3]int     `json:"block,omitempty"`
	Target          string      `json:"target,omitempty"`
	Damage          float64     `json:"damage,omitempty"`
	Slot            int         `json:"slot,omitempty"`
	To              int         `json:"to,omitempty"`
}

// ACTIVATE (client -> server): attempt the primary ability and get an ACK with the outcome.
type ActivateMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
}

type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	Remaining       int    `json:"remaining_s,omitempty"`
	ServerTick      uint64 `json:"server_tick,omitempty"`
}

// NOTICE (server -> client)
type NoticeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	ActorID         string `json:"actor_id"`
	Text            string `json:"text"`
	Severity        string `json:"severity"`
}

// ACTIVATION (server -> observer)
type ActivationMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	Time            time.Time `json:"time"`
	ActorID         string    `json:"actor_id"`
	Gem             string    `json:"gem,omitempty"`
	Accepted        bool      `json:"accepted"`
	Code            string    `json:"code,omitempty"`
	Remaining       int       `json:"remaining_s,omitempty"`
}

// SUBSCRIBE (observer -> server). An empty actor list follows everyone.
type SubscribeMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Actors          []string `json:"actors,omitempty"`
	Activations     bool     `json:"activations"`
	Notices         bool     `json:"notices"`
}
