package presence

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"maraudersmap/cmd/identity"
)

func seedUser(t *testing.T, store *identity.MemoryStore, email string, role identity.Role) identity.User {
	t.Helper()
	u, err := store.CreateUser(context.Background(), identity.CreateUserInput{
		Email:        email,
		PasswordHash: "x",
		FirstName:    "Test",
		LastName:     "User",
		Role:         role,
		Now:          time.Now(),
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func TestHandleListOnline(t *testing.T) {
	store := identity.NewMemoryStore()
	u1 := seedUser(t, store, "u1@hogwarts.edu", identity.RoleStudent)
	u2 := seedUser(t, store, "u2@hogwarts.edu", identity.RoleAuror)

	tr := newTestTracker()
	now := time.Now().UTC()
	tr.Open("c1", u1.ID, now)
	tr.Open("c2", u2.ID, now)
	tr.Open("c3", "deleted-user", now)

	h := NewHandler(slog.New(slog.DiscardHandler), tr, store)
	h.nowFn = func() time.Time { return now }

	rec := httptest.NewRecorder()
	h.HandleListOnline(rec, httptest.NewRequest("GET", "/api/presence/online", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var body struct {
		Online []OnlineUser `json:"online"`
		Count  int          `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	// The orphaned session for the deleted account is skipped.
	if body.Count != 2 || len(body.Online) != 2 {
		t.Fatalf("body = %+v", body)
	}
	for _, u := range body.Online {
		if u.Role == "" || u.FirstName == "" {
			t.Fatalf("entry missing user fields: %+v", u)
		}
	}
}

func TestHandleListOnlineByRole(t *testing.T) {
	store := identity.NewMemoryStore()
	u1 := seedUser(t, store, "s1@hogwarts.edu", identity.RoleStudent)
	u2 := seedUser(t, store, "s2@hogwarts.edu", identity.RoleStudent)
	u3 := seedUser(t, store, "a1@hogwarts.edu", identity.RoleAuror)

	tr := newTestTracker()
	now := time.Now().UTC()
	tr.Open("c1", u1.ID, now)
	tr.Open("c2", u2.ID, now)
	tr.Open("c3", u3.ID, now)

	h := NewHandler(slog.New(slog.DiscardHandler), tr, store)
	h.nowFn = func() time.Time { return now }

	rec := httptest.NewRecorder()
	h.HandleListOnlineByRole(rec, httptest.NewRequest("GET", "/api/presence/online/by-role", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var body struct {
		Online map[string][]OnlineUser `json:"online"`
		Count  int                     `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Count != 3 {
		t.Fatalf("count = %d, want 3", body.Count)
	}
	if len(body.Online["STUDENT"]) != 2 || len(body.Online["AUROR"]) != 1 {
		t.Fatalf("groups = %+v", body.Online)
	}
}

func TestHandlersRejectNonGET(t *testing.T) {
	h := NewHandler(slog.New(slog.DiscardHandler), newTestTracker(), identity.NewMemoryStore())

	rec := httptest.NewRecorder()
	h.HandleListOnline(rec, httptest.NewRequest("POST", "/api/presence/online", nil))
	if rec.Code != 405 {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}
