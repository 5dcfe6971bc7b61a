package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetricsExposition(t *testing.T) {
	m := New(func() float64 { return 3 }, func() float64 { return 2 })
	m.Logins.Inc()
	m.IncidentsCreated.Inc()
	m.IncidentsCreated.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"mm_auth_logins_total 1",
		"mm_incident_created_total 2",
		"mm_ws_connections 3",
		"mm_presence_online_users 2",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("exposition missing %q", want)
		}
	}
}

func TestMetricsWithoutGauges(t *testing.T) {
	m := New(nil, nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "mm_ws_connections") {
		t.Fatal("gauge registered without a source")
	}
}
