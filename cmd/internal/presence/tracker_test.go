package presence

import (
	"log/slog"
	"sync"
	"testing"
	"time"
)

func newTestTracker() *Tracker {
	return NewTracker(slog.New(slog.DiscardHandler), DefaultConfig())
}

func TestOpenAndListOnline(t *testing.T) {
	tr := newTestTracker()
	now := time.Now().UTC()

	tr.Open("c1", "u1", now)
	tr.Open("c2", "u2", now)

	online := tr.ListOnline(now)
	if len(online) != 2 {
		t.Fatalf("len(online) = %d, want 2", len(online))
	}
	if online[0].UserID != "u1" || online[1].UserID != "u2" {
		t.Fatalf("online = %+v", online)
	}
}

func TestOpenIsIdempotentPerConnection(t *testing.T) {
	tr := newTestTracker()
	now := time.Now().UTC()

	var joins int
	tr.Subscribe(func(ev Event) {
		if ev.Kind == EventJoined {
			joins++
		}
	})

	tr.Open("c1", "u1", now)
	tr.Open("c1", "u1", now.Add(time.Second))

	if joins != 1 {
		t.Fatalf("joins = %d, want 1", joins)
	}
	if got := tr.CountConnections(); got != 1 {
		t.Fatalf("connections = %d, want 1", got)
	}

	online := tr.ListOnline(now.Add(time.Second))
	if len(online) != 1 || !online[0].LastSeen.Equal(now.Add(time.Second)) {
		t.Fatalf("online = %+v", online)
	}
}

func TestOnlineWindowExcludesIdleAndSweepRemoves(t *testing.T) {
	tr := newTestTracker()
	start := time.Now().UTC()

	tr.Open("c1", "u1", start)

	if got := tr.ListOnline(start); len(got) != 1 {
		t.Fatalf("online at t0 = %d, want 1", len(got))
	}

	// 61 seconds with no heartbeat: still tracked, no longer online.
	later := start.Add(61 * time.Second)
	if got := tr.ListOnline(later); len(got) != 0 {
		t.Fatalf("online at t+61s = %d, want 0", len(got))
	}
	if got := tr.CountConnections(); got != 1 {
		t.Fatalf("connections = %d, want 1 before sweep", got)
	}

	if n := tr.SweepStale(later); n != 1 {
		t.Fatalf("swept = %d, want 1", n)
	}
	if got := tr.CountConnections(); got != 0 {
		t.Fatalf("connections = %d, want 0 after sweep", got)
	}
}

func TestHeartbeatKeepsSessionOnline(t *testing.T) {
	tr := newTestTracker()
	start := time.Now().UTC()

	tr.Open("c1", "u1", start)
	tr.Heartbeat("c1", start.Add(50*time.Second))

	if got := tr.ListOnline(start.Add(100 * time.Second)); len(got) != 1 {
		t.Fatalf("online = %d, want 1 after heartbeat", len(got))
	}

	// Heartbeat on a reaped session is a silent no-op.
	tr.Close("c1", start)
	tr.Heartbeat("c1", start)
	if got := tr.CountConnections(); got != 0 {
		t.Fatalf("connections = %d, want 0", got)
	}
}

func TestListOnlineDeduplicatesByUser(t *testing.T) {
	tr := newTestTracker()
	now := time.Now().UTC()

	tr.Open("c1", "u1", now)
	tr.Open("c2", "u1", now.Add(10*time.Second))

	online := tr.ListOnline(now.Add(20 * time.Second))
	if len(online) != 1 {
		t.Fatalf("len(online) = %d, want 1", len(online))
	}
	if online[0].ConnID != "c2" {
		t.Fatalf("dedup kept %q, want most recent connection c2", online[0].ConnID)
	}
}

func TestRoomMembershipIsSingle(t *testing.T) {
	tr := newTestTracker()
	now := time.Now().UTC()

	var events []Event
	tr.Subscribe(func(ev Event) { events = append(events, ev) })

	tr.Open("c1", "u1", now)
	tr.JoinRoom("c1", "incident:42", now)
	tr.JoinRoom("c1", "incident:43", now)

	want := []struct {
		kind EventKind
		room string
	}{
		{EventJoined, ""},
		{EventRoomJoined, "incident:42"},
		{EventRoomLeft, "incident:42"},
		{EventRoomJoined, "incident:43"},
	}
	if len(events) != len(want) {
		t.Fatalf("events = %+v", events)
	}
	for i, w := range want {
		if events[i].Kind != w.kind || events[i].Room != w.room {
			t.Fatalf("event[%d] = %+v, want %v %q", i, events[i], w.kind, w.room)
		}
	}

	// Leaving a room the connection is not in does nothing.
	tr.LeaveRoom("c1", "incident:42", now)
	if len(events) != len(want) {
		t.Fatalf("unexpected event after mismatched leave: %+v", events[len(events)-1])
	}

	tr.LeaveRoom("c1", "incident:43", now)
	last := events[len(events)-1]
	if last.Kind != EventRoomLeft || last.Room != "incident:43" {
		t.Fatalf("last event = %+v", last)
	}
}

func TestCloseEmitsLeftWithRoom(t *testing.T) {
	tr := newTestTracker()
	now := time.Now().UTC()

	var events []Event
	tr.Subscribe(func(ev Event) { events = append(events, ev) })

	tr.Open("c1", "u1", now)
	tr.JoinRoom("c1", "incident:7", now)
	tr.Close("c1", now)

	// Close announces the room exit before the user exit.
	if len(events) != 4 {
		t.Fatalf("events = %+v", events)
	}
	if events[2].Kind != EventRoomLeft || events[2].Room != "incident:7" {
		t.Fatalf("event[2] = %+v", events[2])
	}
	if events[3].Kind != EventLeft {
		t.Fatalf("event[3] = %+v", events[3])
	}

	// Double close is a no-op.
	tr.Close("c1", now)
	if len(events) != 4 {
		t.Fatalf("double close emitted: %+v", events[len(events)-1])
	}
}

func TestSweepEvictsAndAnnounces(t *testing.T) {
	tr := newTestTracker()
	start := time.Now().UTC()

	var mu sync.Mutex
	var left []string
	tr.Subscribe(func(ev Event) {
		if ev.Kind == EventLeft {
			mu.Lock()
			left = append(left, ev.UserID)
			mu.Unlock()
		}
	})

	tr.Open("c1", "u1", start)
	tr.Open("c2", "u2", start)
	tr.Heartbeat("c2", start.Add(2*time.Minute))

	n := tr.SweepStale(start.Add(2 * time.Minute))
	if n != 1 {
		t.Fatalf("swept = %d, want 1", n)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(left) != 1 || left[0] != "u1" {
		t.Fatalf("left = %v, want [u1]", left)
	}
}

func TestConcurrentSweepAndTraffic(t *testing.T) {
	tr := newTestTracker()
	start := time.Now().UTC()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n))
			for j := 0; j < 200; j++ {
				now := start.Add(time.Duration(j) * time.Millisecond)
				tr.Open("conn-"+id, "user-"+id, now)
				tr.Heartbeat("conn-"+id, now)
				if j%3 == 0 {
					tr.Close("conn-"+id, now)
				}
			}
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 50; j++ {
			tr.SweepStale(start.Add(time.Duration(j) * time.Millisecond))
			tr.ListOnline(start)
		}
	}()
	wg.Wait()
}
