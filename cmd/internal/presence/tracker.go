package presence

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Session is one live connection's presence record.
type Session struct {
	ConnID      string
	UserID      string
	ConnectedAt time.Time
	LastSeen    time.Time
	Room        string
}

// Tracker is the in-memory presence table.
//
// Concurrency guarantees:
//   - All operations are safe under concurrent use.
//   - The sweep may delete rows concurrently with opens/heartbeats/closes
//     on unrelated rows.
//   - Listeners are invoked after the lock is released, so a listener may
//     call back into the tracker.
type Tracker struct {
	log *slog.Logger
	cfg Config

	mu        sync.Mutex
	sessions  map[string]*Session
	listeners []Listener
}

// NewTracker constructs an empty tracker.
func NewTracker(log *slog.Logger, cfg Config) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{
		log:      log,
		cfg:      cfg.withDefaults(),
		sessions: make(map[string]*Session),
	}
}

// Subscribe registers a listener for presence events. Register listeners
// before traffic starts; there is no unsubscribe.
func (t *Tracker) Subscribe(fn Listener) {
	if fn == nil {
		return
	}
	t.mu.Lock()
	t.listeners = append(t.listeners, fn)
	t.mu.Unlock()
}

// Open creates a presence session for connID, or refreshes it when the
// same connection reconnects. Announces the user as joined only when the
// connection is new.
func (t *Tracker) Open(connID, userID string, now time.Time) {
	if connID == "" || userID == "" {
		return
	}

	t.mu.Lock()
	s, exists := t.sessions[connID]
	if exists && s.UserID == userID {
		s.LastSeen = now
		t.mu.Unlock()
		return
	}
	t.sessions[connID] = &Session{
		ConnID:      connID,
		UserID:      userID,
		ConnectedAt: now,
		LastSeen:    now,
	}
	t.mu.Unlock()

	t.log.Info("presence.open", "conn_id", connID, "user_id", userID)
	t.emit(Event{Kind: EventJoined, ConnID: connID, UserID: userID, At: now})
}

// Heartbeat bumps last-seen. No-op when the session was already reaped.
func (t *Tracker) Heartbeat(connID string, now time.Time) {
	t.mu.Lock()
	if s, ok := t.sessions[connID]; ok {
		s.LastSeen = now
	}
	t.mu.Unlock()
}

// JoinRoom moves the connection into room. A connection is in at most one
// room: joining a new room leaves the previous one first.
func (t *Tracker) JoinRoom(connID, room string, now time.Time) {
	if room == "" {
		return
	}

	t.mu.Lock()
	s, ok := t.sessions[connID]
	if !ok {
		t.mu.Unlock()
		return
	}
	prev := s.Room
	if prev == room {
		s.LastSeen = now
		t.mu.Unlock()
		return
	}
	s.Room = room
	s.LastSeen = now
	userID := s.UserID
	t.mu.Unlock()

	if prev != "" {
		t.emit(Event{Kind: EventRoomLeft, ConnID: connID, UserID: userID, Room: prev, At: now})
	}
	t.emit(Event{Kind: EventRoomJoined, ConnID: connID, UserID: userID, Room: room, At: now})
}

// LeaveRoom clears the connection's room when it matches. Leaving a room
// the connection is not in is a no-op.
func (t *Tracker) LeaveRoom(connID, room string, now time.Time) {
	t.mu.Lock()
	s, ok := t.sessions[connID]
	if !ok || s.Room == "" || (room != "" && s.Room != room) {
		t.mu.Unlock()
		return
	}
	left := s.Room
	s.Room = ""
	s.LastSeen = now
	userID := s.UserID
	t.mu.Unlock()

	t.emit(Event{Kind: EventRoomLeft, ConnID: connID, UserID: userID, Room: left, At: now})
}

// Close deletes the session. Idempotent: closing an unknown connection is
// a no-op.
func (t *Tracker) Close(connID string, now time.Time) {
	t.mu.Lock()
	s, ok := t.sessions[connID]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.sessions, connID)
	userID, room := s.UserID, s.Room
	t.mu.Unlock()

	t.log.Info("presence.close", "conn_id", connID, "user_id", userID)
	if room != "" {
		t.emit(Event{Kind: EventRoomLeft, ConnID: connID, UserID: userID, Room: room, At: now})
	}
	t.emit(Event{Kind: EventLeft, ConnID: connID, UserID: userID, Room: room, At: now})
}

// ListOnline returns sessions seen within the online window, one entry
// per user. A user with several live connections is represented by the
// most recently seen one. Output is ordered by user id.
func (t *Tracker) ListOnline(now time.Time) []Session {
	cut := now.Add(-t.cfg.OnlineWindow)

	t.mu.Lock()
	byUser := make(map[string]Session)
	for _, s := range t.sessions {
		if s.LastSeen.Before(cut) {
			continue
		}
		if best, ok := byUser[s.UserID]; ok && !s.LastSeen.After(best.LastSeen) {
			continue
		}
		byUser[s.UserID] = *s
	}
	t.mu.Unlock()

	out := make([]Session, 0, len(byUser))
	for _, s := range byUser {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// CountConnections reports the number of live sessions, stale or not.
func (t *Tracker) CountConnections() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// SweepStale deletes sessions idle past the staleness threshold and
// announces their users as left. Safe to run concurrently with every
// other operation.
func (t *Tracker) SweepStale(now time.Time) int {
	cut := now.Add(-t.cfg.StaleAfter)

	t.mu.Lock()
	var evicted []Session
	for id, s := range t.sessions {
		if s.LastSeen.Before(cut) {
			evicted = append(evicted, *s)
			delete(t.sessions, id)
		}
	}
	t.mu.Unlock()

	for _, s := range evicted {
		t.log.Info("presence.sweep.evict", "conn_id", s.ConnID, "user_id", s.UserID)
		if s.Room != "" {
			t.emit(Event{Kind: EventRoomLeft, ConnID: s.ConnID, UserID: s.UserID, Room: s.Room, At: now})
		}
		t.emit(Event{Kind: EventLeft, ConnID: s.ConnID, UserID: s.UserID, Room: s.Room, At: now})
	}
	return len(evicted)
}

// Run drives the periodic sweep until ctx is cancelled. Meant to be
// started as its own goroutine by the application.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.SweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := t.SweepStale(time.Now().UTC()); n > 0 {
				t.log.Info("presence.sweep", "evicted", n)
			}
		}
	}
}

// emit invokes listeners outside the tracker lock.
func (t *Tracker) emit(ev Event) {
	t.mu.Lock()
	ls := t.listeners
	t.mu.Unlock()

	for _, fn := range ls {
		fn(ev)
	}
}
