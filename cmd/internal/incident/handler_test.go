package incident

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"maraudersmap/cmd/internal/auth/token"
)

type recordingBroadcaster struct {
	mu   sync.Mutex
	all  []string
	room []string
}

func (b *recordingBroadcaster) BroadcastAll(eventType string, payload any, now time.Time) {
	b.mu.Lock()
	b.all = append(b.all, eventType)
	b.mu.Unlock()
}

func (b *recordingBroadcaster) BroadcastRoom(room, exceptConnID, eventType string, payload any, now time.Time) {
	b.mu.Lock()
	b.room = append(b.room, room+"|"+eventType)
	b.mu.Unlock()
}

func newTestHandler(t *testing.T) (*http.ServeMux, *MemoryStore, *recordingBroadcaster) {
	t.Helper()
	store := NewMemoryStore()
	bc := &recordingBroadcaster{}
	h := NewHandler(slog.New(slog.DiscardHandler), store, bc, nil)

	mux := http.NewServeMux()
	h.Register(mux)
	return mux, store, bc
}

func doRequest(mux *http.ServeMux, method, path, body, userID, role string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	if userID != "" {
		r = r.WithContext(token.NewContext(r.Context(), token.Claims{UserID: userID, Role: role, Type: token.TypeAccess}))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, r)
	return rec
}

func TestCreateIncidentEndpoint(t *testing.T) {
	mux, _, bc := newTestHandler(t)

	rec := doRequest(mux, "POST", "/api/incidents",
		`{"title":"Peeves again","description":"chaos","severity":"MISCHIEF","location":"HOGWARTS"}`,
		"u1", "STUDENT")
	if rec.Code != 201 {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var inc Incident
	if err := json.Unmarshal(rec.Body.Bytes(), &inc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if inc.ReporterID != "u1" || inc.Status != StatusOpen {
		t.Fatalf("incident = %+v", inc)
	}
	if len(bc.all) != 1 || bc.all[0] != "incident:created" {
		t.Fatalf("broadcasts = %v", bc.all)
	}
}

func TestCreateRequiresAuth(t *testing.T) {
	mux, _, _ := newTestHandler(t)

	rec := doRequest(mux, "POST", "/api/incidents",
		`{"title":"x","severity":"MISCHIEF","location":"HOGWARTS"}`, "", "")
	if rec.Code != 401 {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestCreateRejectsBadEnum(t *testing.T) {
	mux, _, _ := newTestHandler(t)

	rec := doRequest(mux, "POST", "/api/incidents",
		`{"title":"x","severity":"WHOOPS","location":"HOGWARTS"}`, "u1", "STUDENT")
	if rec.Code != 400 {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestResolveEndpointEnforcesRole(t *testing.T) {
	mux, store, bc := newTestHandler(t)
	inc := createTestIncident(t, store, SeverityDangerous, LocationHogsmeade)

	rec := doRequest(mux, "POST", "/api/incidents/"+inc.ID+"/resolve", "", "u1", "STUDENT")
	if rec.Code != 403 {
		t.Fatalf("student resolve status = %d, want 403", rec.Code)
	}

	rec = doRequest(mux, "POST", "/api/incidents/"+inc.ID+"/resolve", "", "a1", "AUROR")
	if rec.Code != 200 {
		t.Fatalf("auror resolve status = %d, body = %s", rec.Code, rec.Body)
	}

	// Second resolve conflicts.
	rec = doRequest(mux, "POST", "/api/incidents/"+inc.ID+"/resolve", "", "a1", "AUROR")
	if rec.Code != 409 {
		t.Fatalf("double resolve status = %d, want 409", rec.Code)
	}

	if len(bc.all) != 1 || bc.all[0] != "incident:resolved" {
		t.Fatalf("broadcasts = %v", bc.all)
	}
}

func TestCommentEndpointBroadcastsToRoom(t *testing.T) {
	mux, store, bc := newTestHandler(t)
	inc := createTestIncident(t, store, SeverityMischief, LocationHogwarts)

	rec := doRequest(mux, "POST", "/api/incidents/"+inc.ID+"/comments",
		`{"body":"saw it happen"}`, "u2", "STUDENT")
	if rec.Code != 201 {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	want := "incident:" + inc.ID + "|comment:created"
	if len(bc.room) != 1 || bc.room[0] != want {
		t.Fatalf("room broadcasts = %v, want %q", bc.room, want)
	}

	rec = doRequest(mux, "GET", "/api/incidents/"+inc.ID+"/comments", "", "u2", "STUDENT")
	if rec.Code != 200 {
		t.Fatalf("list status = %d", rec.Code)
	}
	var body struct {
		Comments []Comment `json:"comments"`
		Count    int       `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Count != 1 {
		t.Fatalf("body = %s, err = %v", rec.Body, err)
	}
}

func TestGetAndListEndpoints(t *testing.T) {
	mux, store, _ := newTestHandler(t)
	inc := createTestIncident(t, store, SeverityDangerous, LocationMinistry)

	rec := doRequest(mux, "GET", "/api/incidents/"+inc.ID, "", "u1", "STUDENT")
	if rec.Code != 200 {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = doRequest(mux, "GET", "/api/incidents?severity=DANGEROUS", "", "u1", "STUDENT")
	if rec.Code != 200 {
		t.Fatalf("list status = %d", rec.Code)
	}
	var body struct {
		Incidents []Incident `json:"incidents"`
		Count     int        `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Count != 1 {
		t.Fatalf("body = %s, err = %v", rec.Body, err)
	}

	rec = doRequest(mux, "GET", "/api/incidents/does-not-exist", "", "u1", "STUDENT")
	if rec.Code != 404 {
		t.Fatalf("missing get status = %d, want 404", rec.Code)
	}

	rec = doRequest(mux, "GET", "/api/incidents?severity=WHOOPS", "", "u1", "STUDENT")
	if rec.Code != 400 {
		t.Fatalf("bad filter status = %d, want 400", rec.Code)
	}
}

func TestUpdateEndpoint(t *testing.T) {
	mux, store, bc := newTestHandler(t)
	inc := createTestIncident(t, store, SeverityMischief, LocationHogwarts)

	rec := doRequest(mux, "PATCH", "/api/incidents/"+inc.ID,
		`{"severity":"SUSPICIOUS"}`, "u1", "STUDENT")
	if rec.Code != 200 {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var got Incident
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil || got.Severity != SeveritySuspicious {
		t.Fatalf("body = %s, err = %v", rec.Body, err)
	}
	if len(bc.all) != 1 || bc.all[0] != "incident:updated" {
		t.Fatalf("broadcasts = %v", bc.all)
	}
}
