package presence

import "time"

// EventKind labels a presence state transition.
type EventKind string

const (
	// EventJoined fires when a new connection opens a session.
	EventJoined EventKind = "joined"
	// EventLeft fires when a session is closed or reaped by the sweep.
	EventLeft EventKind = "left"
	// EventRoomJoined fires when a connection enters a room.
	EventRoomJoined EventKind = "room_joined"
	// EventRoomLeft fires when a connection leaves a room.
	EventRoomLeft EventKind = "room_left"
)

// Event describes one presence transition. Room is set only for the
// room-scoped kinds and for EventLeft when the connection was in a room
// at the time it went away.
type Event struct {
	Kind   EventKind
	ConnID string
	UserID string
	Room   string
	At     time.Time
}

// Listener receives presence events. Listeners are invoked synchronously
// after the tracker releases its lock, in registration order; a listener
// that needs to do slow work should hand the event off to its own
// goroutine.
type Listener func(Event)
