package authapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"maraudersmap/cmd/identity"
	"maraudersmap/cmd/internal/auth/session"
	"maraudersmap/cmd/internal/auth/token"
	"maraudersmap/cmd/internal/metrics"
)

const defaultMaxBodyBytes = 1 << 20

// Handler wires the HTTP auth endpoints to the session service.
type Handler struct {
	log      *slog.Logger
	sessions *session.Service
	users    identity.UserStore
	metrics  *metrics.Metrics

	maxBodyBytes int64
}

// NewHandler constructs an auth Handler. metrics may be nil.
func NewHandler(log *slog.Logger, sessions *session.Service, users identity.UserStore, m *metrics.Metrics) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		log:          log,
		sessions:     sessions,
		users:        users,
		metrics:      m,
		maxBodyBytes: defaultMaxBodyBytes,
	}
}

// Register mounts the auth routes.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/api/auth/register", h.handleRegister)
	mux.HandleFunc("/api/auth/login", h.handleLogin)
	mux.HandleFunc("/api/auth/refresh", h.handleRefresh)
	mux.HandleFunc("/api/auth/logout", h.handleLogout)
	mux.HandleFunc("/api/auth/change-password", h.handleChangePassword)
	mux.HandleFunc("/api/auth/me", h.handleMe)
}

// RequireAuth wraps next with bearer-token verification, storing the
// verified claims in the request context.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := h.requireAuth(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(token.NewContext(r.Context(), claims)))
	})
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	u, err := h.sessions.Register(r.Context(), session.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}, time.Now().UTC())
	if err != nil {
		switch {
		case session.IsValidation(err):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		case errors.Is(err, session.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, "weak_password", "password does not meet the minimum length")
		case errors.Is(err, session.ErrEmailTaken):
			writeError(w, http.StatusConflict, "email_taken", "email already registered")
		default:
			h.log.Error("auth.register.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, meResponse{User: toUserResponse(u)})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	res, err := h.sessions.Login(r.Context(), req.Email, req.Password, time.Now().UTC())
	if err != nil {
		if h.metrics != nil {
			h.metrics.LoginFails.Inc()
		}
		switch {
		case session.IsValidation(err):
			writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		case errors.Is(err, session.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		default:
			h.log.Error("auth.login.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	if h.metrics != nil {
		h.metrics.Logins.Inc()
	}
	writeJSON(w, http.StatusOK, loginResponse{
		User: toUserResponse(res.User),
		Tokens: tokenPairResponse{
			AccessToken:  res.AccessToken,
			RefreshToken: res.RefreshToken,
		},
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	raw := strings.TrimSpace(req.RefreshToken)
	if raw == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "refreshToken is required")
		return
	}

	res, err := h.sessions.Refresh(r.Context(), raw, time.Now().UTC())
	if err != nil {
		if h.metrics != nil {
			h.metrics.RefreshFails.Inc()
		}
		switch {
		case errors.Is(err, token.ErrExpired):
			writeError(w, http.StatusUnauthorized, "token_expired", "refresh token expired")
		case errors.Is(err, token.ErrInvalidSignature), errors.Is(err, token.ErrMalformed),
			errors.Is(err, session.ErrWrongTokenType):
			writeError(w, http.StatusUnauthorized, "invalid_token", "invalid refresh token")
		case errors.Is(err, session.ErrTokenRevoked), errors.Is(err, session.ErrTokenNotFound):
			writeError(w, http.StatusUnauthorized, "token_revoked", "refresh token no longer active")
		default:
			h.log.Error("auth.refresh.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	if h.metrics != nil {
		h.metrics.Refreshes.Inc()
	}
	writeJSON(w, http.StatusOK, refreshResponse{
		Tokens: tokenPairResponse{
			AccessToken:  res.AccessToken,
			RefreshToken: res.RefreshToken,
		},
	})
}

// handleLogout always reports success: revoking an unknown, expired, or
// garbage token must be indistinguishable from a real logout.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req logoutRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
			// Even malformed bodies log out successfully.
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}

	h.sessions.RevokeFromToken(r.Context(), strings.TrimSpace(req.RefreshToken), time.Now().UTC())
	if h.metrics != nil {
		h.metrics.Revocations.Inc()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	err := h.sessions.ChangePassword(r.Context(), claims.UserID, req.OldPassword, req.NewPassword, time.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, session.ErrIncorrectPassword):
			writeError(w, http.StatusUnauthorized, "incorrect_password", "current password is incorrect")
		case errors.Is(err, session.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, "weak_password", "password does not meet the minimum length")
		case errors.Is(err, session.ErrSamePassword):
			writeError(w, http.StatusBadRequest, "same_password", "new password must differ")
		case errors.Is(err, identity.ErrNotFound):
			writeError(w, http.StatusUnauthorized, "not_found", "user not found")
		default:
			h.log.Error("auth.change_password.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	u, err := h.users.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "not_found", "user not found")
			return
		}
		h.log.Error("auth.me.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, meResponse{User: toUserResponse(u)})
}

// ---- auth plumbing ----

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (token.Claims, bool) {
	raw := bearerToken(r)
	if raw == "" {
		writeError(w, http.StatusUnauthorized, "missing_token", "authorization required")
		return token.Claims{}, false
	}

	claims, err := h.sessions.VerifyAccess(raw, time.Now().UTC())
	if err != nil {
		code := "invalid_token"
		if errors.Is(err, token.ErrExpired) {
			code = "token_expired"
		}
		writeError(w, http.StatusUnauthorized, code, "invalid or expired access token")
		return token.Claims{}, false
	}
	return claims, true
}

func bearerToken(r *http.Request) string {
	hv := strings.TrimSpace(r.Header.Get("Authorization"))
	if rest, ok := strings.CutPrefix(hv, "Bearer "); ok {
		return strings.TrimSpace(rest)
	}
	return ""
}
