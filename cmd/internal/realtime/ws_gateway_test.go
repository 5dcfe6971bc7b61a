package realtime

import (
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"maraudersmap/cmd/internal/auth/token"
	"maraudersmap/cmd/internal/presence"
)

type staticVerifier struct {
	claims token.Claims
	err    error
}

func (v staticVerifier) VerifyAccess(raw string, now time.Time) (token.Claims, error) {
	return v.claims, v.err
}

func newTestGateway(t *testing.T, v AccessVerifier) *WSGateway {
	t.Helper()
	log := slog.New(slog.DiscardHandler)
	tracker := presence.NewTracker(log, presence.DefaultConfig())
	return NewWSGateway(log, NewHub(log), tracker, v)
}

func TestHandleWSRejectsDisallowedOrigin(t *testing.T) {
	g := newTestGateway(t, staticVerifier{})

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()

	g.HandleWS(rec, r)
	if rec.Code != 403 {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestHandleWSRejectsMissingToken(t *testing.T) {
	g := newTestGateway(t, staticVerifier{err: token.ErrMalformed})

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "http://localhost")
	rec := httptest.NewRecorder()

	g.HandleWS(rec, r)
	if rec.Code != 401 {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestHandleWSDistinguishesExpiredToken(t *testing.T) {
	g := newTestGateway(t, staticVerifier{err: token.ErrExpired})

	r := httptest.NewRequest("GET", "/ws?token=stale", nil)
	r.Header.Set("Origin", "http://localhost")
	rec := httptest.NewRecorder()

	g.HandleWS(rec, r)
	if rec.Code != 401 {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if got := rec.Body.String(); got != "token_expired\n" {
		t.Fatalf("body = %q, want token_expired", got)
	}
}

func TestOriginHostOnly(t *testing.T) {
	cases := map[string]string{
		"http://localhost:5173":    "localhost",
		"https://Map.Hogwarts.Edu": "map.hogwarts.edu",
		"localhost:9000":           "localhost",
		"localhost":                "localhost",
		"":                         "",
	}
	for in, want := range cases {
		if got := originHostOnly(in); got != want {
			t.Fatalf("originHostOnly(%q) = %q, want %q", in, got, want)
		}
	}
}
