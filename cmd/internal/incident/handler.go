package incident

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"maraudersmap/cmd/identity"
	"maraudersmap/cmd/internal/auth/token"
	"maraudersmap/cmd/internal/metrics"
	"maraudersmap/cmd/internal/realtime"
)

const maxBodyBytes = 64 << 10

// Broadcaster fans incident events out to live map clients. Satisfied by
// realtime.Hub; a no-op implementation is used when realtime is off.
type Broadcaster interface {
	BroadcastAll(eventType string, payload any, now time.Time)
	BroadcastRoom(room, exceptConnID, eventType string, payload any, now time.Time)
}

// NopBroadcaster drops every event.
type NopBroadcaster struct{}

func (NopBroadcaster) BroadcastAll(string, any, time.Time) {}
func (NopBroadcaster) BroadcastRoom(string, string, string, any, time.Time) {}

// Handler serves the incident REST endpoints.
//
// Every endpoint requires verified claims in the request context; the
// auth middleware puts them there.
type Handler struct {
	log       *slog.Logger
	store     Store
	broadcast Broadcaster
	metrics   *metrics.Metrics // optional
	nowFn     func() time.Time
}

// NewHandler constructs an incident Handler. m may be nil.
func NewHandler(log *slog.Logger, store Store, broadcast Broadcaster, m *metrics.Metrics) *Handler {
	if log == nil {
		log = slog.Default()
	}
	if broadcast == nil {
		broadcast = NopBroadcaster{}
	}
	return &Handler{
		log:       log,
		store:     store,
		broadcast: broadcast,
		metrics:   m,
		nowFn:     func() time.Time { return time.Now().UTC() },
	}
}

// Register mounts the incident routes.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/incidents", h.handleCollection)
	mux.HandleFunc("/api/incidents/", h.handleItem)
}

func (h *Handler) handleCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleList(w, r)
	case http.MethodPost:
		h.handleCreate(w, r)
	default:
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET or POST")
	}
}

// handleItem routes /api/incidents/{id}[/resolve|/comments].
func (h *Handler) handleItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/incidents/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	id := parts[0]
	if id == "" {
		h.writeError(w, http.StatusNotFound, "not_found", "missing incident id")
		return
	}

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			h.handleGet(w, r, id)
		case http.MethodPatch, http.MethodPut:
			h.handleUpdate(w, r, id)
		default:
			h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET or PATCH")
		}
	case len(parts) == 2 && parts[1] == "resolve":
		if r.Method != http.MethodPost {
			h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
			return
		}
		h.handleResolve(w, r, id)
	case len(parts) == 2 && parts[1] == "comments":
		switch r.Method {
		case http.MethodGet:
			h.handleListComments(w, r, id)
		case http.MethodPost:
			h.handleAddComment(w, r, id)
		default:
			h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET or POST")
		}
	default:
		h.writeError(w, http.StatusNotFound, "not_found", "unknown incident route")
	}
}

type createRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Location    string `json:"location"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	claims, ok := token.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var req createRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	now := h.nowFn()
	inc, err := h.store.Create(r.Context(), CreateInput{
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Severity:    Severity(req.Severity),
		Location:    Location(req.Location),
		ReporterID:  claims.UserID,
		Now:         now,
	})
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	h.log.Info("incident.create", "incident_id", inc.ID, "severity", inc.Severity, "reporter_id", claims.UserID)
	if h.metrics != nil {
		h.metrics.IncidentsCreated.Inc()
	}
	h.broadcast.BroadcastAll(realtime.TypeIncidentCreated, inc, now)
	h.writeJSON(w, http.StatusCreated, inc)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Status:   Status(q.Get("status")),
		Severity: Severity(q.Get("severity")),
		Location: Location(q.Get("location")),
	}
	if filter.Severity != "" && !filter.Severity.Valid() {
		h.writeError(w, http.StatusBadRequest, "bad_request", "unknown severity")
		return
	}
	if filter.Location != "" && !filter.Location.Valid() {
		h.writeError(w, http.StatusBadRequest, "bad_request", "unknown location")
		return
	}

	out, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if out == nil {
		out = []Incident{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"incidents": out, "count": len(out)})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	inc, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, inc)
}

type updateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Severity    *string `json:"severity"`
	Location    *string `json:"location"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request, id string) {
	var req updateRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	now := h.nowFn()
	in := UpdateInput{Title: req.Title, Description: req.Description, Now: now}
	if req.Severity != nil {
		s := Severity(*req.Severity)
		in.Severity = &s
	}
	if req.Location != nil {
		l := Location(*req.Location)
		in.Location = &l
	}

	inc, err := h.store.Update(r.Context(), id, in)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	h.log.Info("incident.update", "incident_id", inc.ID)
	h.broadcast.BroadcastAll(realtime.TypeIncidentUpdated, inc, now)
	h.writeJSON(w, http.StatusOK, inc)
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := token.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	// Students report; only prefects and aurors close cases.
	if role := identity.Role(claims.Role); role != identity.RolePrefect && role != identity.RoleAuror {
		h.writeError(w, http.StatusForbidden, "forbidden", "insufficient role")
		return
	}

	now := h.nowFn()
	inc, err := h.store.Resolve(r.Context(), id, claims.UserID, now)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	h.log.Info("incident.resolve", "incident_id", inc.ID, "resolved_by", claims.UserID)
	if h.metrics != nil {
		h.metrics.IncidentsResolved.Inc()
	}
	h.broadcast.BroadcastAll(realtime.TypeIncidentResolved, inc, now)
	h.writeJSON(w, http.StatusOK, inc)
}

type commentRequest struct {
	Body string `json:"body"`
}

func (h *Handler) handleAddComment(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := token.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var req commentRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	now := h.nowFn()
	c, err := h.store.AddComment(r.Context(), id, claims.UserID, strings.TrimSpace(req.Body), now)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	// Comments fan out to the incident's room only.
	h.broadcast.BroadcastRoom(RoomFor(id), "", realtime.TypeCommentCreated, c, now)
	h.writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) handleListComments(w http.ResponseWriter, r *http.Request, id string) {
	out, err := h.store.ListComments(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if out == nil {
		out = []Comment{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"comments": out, "count": len(out)})
}

// ---- plumbing ----

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer func() { _ = r.Body.Close() }()

	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("extra data after JSON object")
	}
	return nil
}

func (h *Handler) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not_found", "incident not found")
	case errors.Is(err, ErrResolved):
		h.writeError(w, http.StatusConflict, "already_resolved", "incident already resolved")
	case errors.Is(err, ErrInvalidInput):
		h.writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	default:
		h.log.Error("incident.store.fail", "err", err)
		h.writeError(w, http.StatusInternalServerError, "internal", "storage failure")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, msg string) {
	h.writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": msg},
	})
}
