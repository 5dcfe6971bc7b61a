package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"maraudersmap/cmd/identity/ids"
)

// Hub owns the connected-client table and room membership, and fans
// envelopes out to them.
//
// Concurrency guarantees:
//   - Register/Unregister/JoinRoom/LeaveRoom are safe under concurrent
//     broadcasts.
//   - Broadcasts never block: a client whose queue is full is skipped.
type Hub struct {
	log *slog.Logger

	mu      sync.RWMutex
	clients map[string]*Client            // conn id -> client
	rooms   map[string]map[string]*Client // room -> conn id -> client
}

// NewHub constructs a Hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:     log,
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	if c == nil || c.ConnID == "" {
		return
	}
	h.mu.Lock()
	h.clients[c.ConnID] = c
	h.mu.Unlock()
}

// Unregister removes a client from the hub and every room, then signals
// its shutdown. Idempotent.
func (h *Hub) Unregister(connID string) {
	if connID == "" {
		return
	}

	var c *Client

	h.mu.Lock()
	c = h.clients[connID]
	delete(h.clients, connID)
	for room, members := range h.rooms {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()

	// Signal after removal so in-flight broadcasters see a consistent table.
	if c != nil {
		c.Close()
	}
}

// JoinRoom adds the connection to room membership.
func (h *Hub) JoinRoom(connID, room string) {
	if connID == "" || room == "" {
		return
	}
	h.mu.Lock()
	c, ok := h.clients[connID]
	if ok {
		members := h.rooms[room]
		if members == nil {
			members = make(map[string]*Client)
			h.rooms[room] = members
		}
		members[connID] = c
	}
	h.mu.Unlock()
}

// LeaveRoom removes the connection from room membership.
func (h *Hub) LeaveRoom(connID, room string) {
	h.mu.Lock()
	if members, ok := h.rooms[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()
}

// CountClients reports the number of registered connections.
func (h *Hub) CountClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastAll sends an envelope of the given type to every client.
func (h *Hub) BroadcastAll(eventType string, payload any, now time.Time) {
	env, err := h.newEnvelope(eventType, payload, now)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		h.offer(c, env)
	}
}

// BroadcastRoom sends an envelope to every member of room. exceptConnID
// may name a connection to skip (typically the sender).
func (h *Hub) BroadcastRoom(room, exceptConnID, eventType string, payload any, now time.Time) {
	env, err := h.newEnvelope(eventType, payload, now)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.rooms[room] {
		if id == exceptConnID {
			continue
		}
		h.offer(c, env)
	}
}

// SendTo delivers an envelope to a single connection.
func (h *Hub) SendTo(connID, eventType string, payload any, now time.Time) {
	env, err := h.newEnvelope(eventType, payload, now)
	if err != nil {
		return
	}

	h.mu.RLock()
	c := h.clients[connID]
	h.mu.RUnlock()
	h.offer(c, env)
}

// offer enqueues without blocking; full or closing clients are skipped.
func (h *Hub) offer(c *Client, env Envelope) {
	if c == nil {
		return
	}
	select {
	case <-c.Done():
		return
	default:
	}
	select {
	case c.Send <- env:
	default:
		h.log.Info("hub.drop", "conn_id", c.ConnID, "type", env.Type)
	}
}

func (h *Hub) newEnvelope(eventType string, payload any, now time.Time) (Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("hub.marshal.fail", "type", eventType, "err", err)
		return Envelope{}, err
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return Envelope{}, err
	}

	return Envelope{
		V:       Version,
		Type:    eventType,
		ID:      id,
		TS:      now,
		Payload: body,
	}, nil
}
