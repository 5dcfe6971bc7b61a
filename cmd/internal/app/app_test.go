package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestMux(t *testing.T, cfg Config) *http.ServeMux {
	t.Helper()
	t.Setenv("MM_JWT_SECRET", "app-wiring-test-secret")

	log := slog.New(slog.DiscardHandler)
	a, err := New(cfg, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.ws, a.auth, a.presence, a.incidents, a.metrics)
	return mux
}

func TestHealthAndReadinessInMemoryMode(t *testing.T) {
	mux := newTestMux(t, Config{LogLevel: "error"})

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("readyz status = %d", rr.Code)
	}
	if body, _ := io.ReadAll(rr.Body); string(body) != "ready\n" {
		t.Fatalf("readyz body = %q", body)
	}
}

func TestReadinessRequiresDBWhenConfigured(t *testing.T) {
	mux := newTestMux(t, Config{LogLevel: "error", ReadinessRequireDB: true})

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status = %d, want 503", rr.Code)
	}
}

func TestMetricsEndpointExposesGauges(t *testing.T) {
	mux := newTestMux(t, Config{LogLevel: "error"})

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rr.Code)
	}

	body := rr.Body.String()
	for _, want := range []string{"mm_ws_connections 0", "mm_presence_online_users 0"} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestProtectedRoutesRejectAnonymous(t *testing.T) {
	mux := newTestMux(t, Config{LogLevel: "error"})

	for _, path := range []string{"/api/presence/online", "/api/presence/online/by-role", "/api/incidents"} {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("GET %s status = %d, want 401", path, rr.Code)
		}
	}
}

func TestServerTimeoutFallbacks(t *testing.T) {
	t.Parallel()

	if got := nonZeroDuration(0, 15*time.Second); got != 15*time.Second {
		t.Fatalf("nonZeroDuration(0) = %v", got)
	}
	if got := nonZeroDuration(time.Second, 15*time.Second); got != time.Second {
		t.Fatalf("nonZeroDuration override = %v", got)
	}
	if got := nonZeroInt(0, 1<<20); got != 1<<20 {
		t.Fatalf("nonZeroInt(0) = %d", got)
	}
	if got := nonZeroInt(42, 1<<20); got != 42 {
		t.Fatalf("nonZeroInt override = %d", got)
	}
}
