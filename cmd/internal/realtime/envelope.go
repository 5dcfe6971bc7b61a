package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Version is the protocol version embedded in every envelope.
const Version = 1

// Wire event types. Client -> server types are consumed by the gateway
// read loop; server -> client types are produced by the gateway and the
// presence notifier.
const (
	// Server -> client, first frame after a successful upgrade.
	TypeConnectionAcknowledged = "connection:acknowledged"

	// Client -> server liveness ping. Echoed back as an ack.
	TypeHeartbeat    = "heartbeat"
	TypeHeartbeatAck = "heartbeat:ack"

	// Server -> client presence fan-out.
	TypePresenceJoin  = "presence:join"
	TypePresenceLeave = "presence:leave"

	// Client -> server room membership requests.
	TypeRoomJoin  = "room:join"
	TypeRoomLeave = "room:leave"

	// Server -> room confirmations and fan-out.
	TypeRoomJoined = "room:joined"
	TypeRoomLeft   = "room:left"

	// Client -> server typing signals, relayed to the current room.
	TypeTypingStart = "presence:typing:start"
	TypeTypingStop  = "presence:typing:stop"

	// Server -> client incident fan-out, produced by the incident API.
	TypeIncidentCreated  = "incident:created"
	TypeIncidentUpdated  = "incident:updated"
	TypeIncidentResolved = "incident:resolved"
	TypeCommentCreated   = "comment:created"

	// Server -> client error frame.
	TypeError = "error"
)

var clientTypes = map[string]struct{}{
	TypeHeartbeat:   {},
	TypeRoomJoin:    {},
	TypeRoomLeave:   {},
	TypeTypingStart: {},
	TypeTypingStop:  {},
}

// Envelope is the canonical wire wrapper for every websocket frame.
type Envelope struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate checks a client-supplied envelope: version, and a type the
// server actually accepts from clients.
func (e Envelope) Validate() error {
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %d", e.V)
	}
	if e.Type == "" {
		return errors.New("missing type")
	}
	if _, ok := clientTypes[e.Type]; !ok {
		return fmt.Errorf("unsupported type: %s", e.Type)
	}
	return nil
}

// ---- payloads ----

// AcknowledgedPayload confirms the session to the freshly connected client.
type AcknowledgedPayload struct {
	ConnID string `json:"connectionId"`
	UserID string `json:"userId"`
}

// PresencePayload announces a user arriving on or leaving the map.
type PresencePayload struct {
	UserID    string `json:"userId"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Role      string `json:"role,omitempty"`
}

// RoomPayload names a room for join/leave requests and confirmations.
type RoomPayload struct {
	Room   string `json:"room"`
	UserID string `json:"userId,omitempty"`
}

// TypingPayload relays a typing signal within a room.
type TypingPayload struct {
	Room   string `json:"room"`
	UserID string `json:"userId"`
}

// ErrorPayload is a generic error frame.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
