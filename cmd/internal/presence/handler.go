package presence

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"maraudersmap/cmd/identity"
)

// OnlineUser is the wire shape for one online map entry.
type OnlineUser struct {
	UserID      string    `json:"userId"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	Role        string    `json:"role"`
	Room        string    `json:"room,omitempty"`
	ConnectedAt time.Time `json:"connectedAt"`
	LastSeen    time.Time `json:"lastSeen"`
}

// Handler serves the read-only presence endpoints.
type Handler struct {
	log     *slog.Logger
	tracker *Tracker
	users   identity.UserStore
	nowFn   func() time.Time
}

// NewHandler constructs a presence Handler.
func NewHandler(log *slog.Logger, tracker *Tracker, users identity.UserStore) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		log:     log,
		tracker: tracker,
		users:   users,
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

// HandleListOnline returns everyone currently on the map.
//
// GET /api/presence/online
func (h *Handler) HandleListOnline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}

	out, err := h.onlineUsers(r.Context())
	if err != nil {
		h.log.Error("presence.list_online.fail", "err", err)
		writeJSONError(w, http.StatusInternalServerError, "internal", "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"online": out, "count": len(out)})
}

// HandleListOnlineByRole returns the online map grouped by role, the view
// the Great Hall dashboard renders.
//
// GET /api/presence/online/by-role
func (h *Handler) HandleListOnlineByRole(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}

	out, err := h.onlineUsers(r.Context())
	if err != nil {
		h.log.Error("presence.list_online_by_role.fail", "err", err)
		writeJSONError(w, http.StatusInternalServerError, "internal", "lookup failed")
		return
	}

	grouped := make(map[string][]OnlineUser)
	for _, u := range out {
		grouped[u.Role] = append(grouped[u.Role], u)
	}
	writeJSON(w, http.StatusOK, map[string]any{"online": grouped, "count": len(out)})
}

func (h *Handler) onlineUsers(ctx context.Context) ([]OnlineUser, error) {
	sessions := h.tracker.ListOnline(h.nowFn())

	out := make([]OnlineUser, 0, len(sessions))
	for _, s := range sessions {
		entry := OnlineUser{
			UserID:      s.UserID,
			Room:        s.Room,
			ConnectedAt: s.ConnectedAt,
			LastSeen:    s.LastSeen,
		}

		u, err := h.users.GetUserByID(ctx, s.UserID)
		switch {
		case errors.Is(err, identity.ErrNotFound):
			// The session can outlive the account. Skip it.
			continue
		case err != nil:
			return nil, err
		}

		entry.FirstName = u.FirstName
		entry.LastName = u.LastName
		entry.Role = string(u.Role)
		out = append(out, entry)
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": msg},
	})
}
