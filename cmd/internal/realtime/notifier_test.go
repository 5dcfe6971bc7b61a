package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"maraudersmap/cmd/identity"
	"maraudersmap/cmd/internal/presence"
)

func newNotifierFixture(t *testing.T) (*Hub, *presence.Tracker, *identity.MemoryStore) {
	t.Helper()
	log := slog.New(slog.DiscardHandler)
	hub := NewHub(log)
	tracker := presence.NewTracker(log, presence.DefaultConfig())
	store := identity.NewMemoryStore()
	NewNotifier(log, hub, store, tracker)
	return hub, tracker, store
}

func TestNotifierBroadcastsJoinWithUserDetails(t *testing.T) {
	hub, tracker, store := newNotifierFixture(t)
	now := time.Now().UTC()

	u, err := store.CreateUser(context.Background(), identity.CreateUserInput{
		Email:        "fred@hogwarts.edu",
		PasswordHash: "x",
		FirstName:    "Fred",
		LastName:     "Weasley",
		Role:         identity.RolePrefect,
		Now:          now,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	watcher := NewClient("w1", "watcher", 8)
	hub.Register(watcher)

	tracker.Open("c1", u.ID, now)

	got := drain(t, watcher)
	if len(got) != 1 || got[0].Type != TypePresenceJoin {
		t.Fatalf("envelopes = %+v", got)
	}
	var p PresencePayload
	if err := json.Unmarshal(got[0].Payload, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.UserID != u.ID || p.FirstName != "Fred" || p.Role != "PREFECT" {
		t.Fatalf("payload = %+v", p)
	}
}

func TestNotifierUnknownUserStillAnnounces(t *testing.T) {
	hub, tracker, _ := newNotifierFixture(t)
	now := time.Now().UTC()

	watcher := NewClient("w1", "watcher", 8)
	hub.Register(watcher)

	tracker.Open("c1", "ghost", now)

	got := drain(t, watcher)
	if len(got) != 1 {
		t.Fatalf("envelopes = %+v", got)
	}
	var p PresencePayload
	if err := json.Unmarshal(got[0].Payload, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.UserID != "ghost" || p.FirstName != "" {
		t.Fatalf("payload = %+v", p)
	}
}

func TestNotifierManagesRoomMembership(t *testing.T) {
	hub, tracker, _ := newNotifierFixture(t)
	now := time.Now().UTC()

	member := NewClient("c1", "u1", 8)
	joiner := NewClient("c2", "u2", 8)
	hub.Register(member)
	hub.Register(joiner)

	tracker.Open("c1", "u1", now)
	tracker.Open("c2", "u2", now)
	drain(t, member)
	drain(t, joiner)

	tracker.JoinRoom("c1", "incident:5", now)
	drain(t, member)

	// The second join fans room:joined out to the existing member too.
	tracker.JoinRoom("c2", "incident:5", now)

	got := drain(t, member)
	if len(got) != 1 || got[0].Type != TypeRoomJoined {
		t.Fatalf("member got %+v", got)
	}
	var p RoomPayload
	if err := json.Unmarshal(got[0].Payload, &p); err != nil || p.Room != "incident:5" || p.UserID != "u2" {
		t.Fatalf("payload = %s, err = %v", got[0].Payload, err)
	}

	// Leaving announces to the remaining members, not the leaver.
	tracker.LeaveRoom("c2", "incident:5", now)
	drain(t, joiner)
	got = drain(t, member)
	if len(got) != 1 || got[0].Type != TypeRoomLeft {
		t.Fatalf("member got %+v after leave", got)
	}

	// c2 is out of the room: typing fan-out no longer reaches it.
	hub.BroadcastRoom("incident:5", "", TypeTypingStart, TypingPayload{Room: "incident:5", UserID: "u1"}, now)
	if got := drain(t, joiner); len(got) != 0 {
		t.Fatalf("left member still receives room traffic: %+v", got)
	}
}

func TestNotifierAnnouncesLeaveOnSweep(t *testing.T) {
	hub, tracker, _ := newNotifierFixture(t)
	start := time.Now().UTC()

	watcher := NewClient("w1", "watcher", 8)
	hub.Register(watcher)

	tracker.Open("c1", "u1", start)
	drain(t, watcher)

	tracker.SweepStale(start.Add(2 * time.Minute))

	got := drain(t, watcher)
	if len(got) != 1 || got[0].Type != TypePresenceLeave {
		t.Fatalf("envelopes = %+v", got)
	}
}
