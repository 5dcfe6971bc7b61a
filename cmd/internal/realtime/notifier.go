package realtime

import (
	"context"
	"log/slog"
	"time"

	"maraudersmap/cmd/identity"
	"maraudersmap/cmd/internal/presence"
)

const notifierLookupTimeout = 2 * time.Second

// Notifier translates presence domain events into websocket fan-out.
// It is the only bridge between the tracker and the hub: the tracker
// mutates state and emits, the notifier delivers.
type Notifier struct {
	log   *slog.Logger
	hub   *Hub
	users identity.UserStore
}

// NewNotifier constructs a Notifier and subscribes it to the tracker.
func NewNotifier(log *slog.Logger, hub *Hub, users identity.UserStore, tracker *presence.Tracker) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	n := &Notifier{log: log, hub: hub, users: users}
	tracker.Subscribe(n.OnEvent)
	return n
}

// OnEvent handles one presence event. Invoked synchronously by the
// tracker, so it must not block: hub broadcasts are non-blocking and the
// user lookup is bounded by a short timeout.
func (n *Notifier) OnEvent(ev presence.Event) {
	switch ev.Kind {
	case presence.EventJoined:
		n.hub.BroadcastAll(TypePresenceJoin, n.presencePayload(ev.UserID), ev.At)

	case presence.EventLeft:
		n.hub.BroadcastAll(TypePresenceLeave, n.presencePayload(ev.UserID), ev.At)

	case presence.EventRoomJoined:
		n.hub.JoinRoom(ev.ConnID, ev.Room)
		n.hub.BroadcastRoom(ev.Room, "", TypeRoomJoined, RoomPayload{Room: ev.Room, UserID: ev.UserID}, ev.At)

	case presence.EventRoomLeft:
		n.hub.BroadcastRoom(ev.Room, ev.ConnID, TypeRoomLeft, RoomPayload{Room: ev.Room, UserID: ev.UserID}, ev.At)
		n.hub.LeaveRoom(ev.ConnID, ev.Room)
	}
}

func (n *Notifier) presencePayload(userID string) PresencePayload {
	p := PresencePayload{UserID: userID}
	if n.users == nil {
		return p
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifierLookupTimeout)
	defer cancel()

	u, err := n.users.GetUserByID(ctx, userID)
	if err != nil {
		n.log.Info("notifier.user_lookup.fail", "user_id", userID, "err", err)
		return p
	}
	p.FirstName = u.FirstName
	p.LastName = u.LastName
	p.Role = string(u.Role)
	return p
}
