package app

import (
	"net/http"
	"time"

	authapi "maraudersmap/cmd/internal/auth/api"
	"maraudersmap/cmd/internal/incident"
	"maraudersmap/cmd/internal/metrics"
	"maraudersmap/cmd/internal/presence"
	"maraudersmap/cmd/internal/realtime"

	"github.com/jackc/pgx/v5/pgxpool"
)

func registerHTTP(
	mux *http.ServeMux,
	log Logger,
	cfg Config,
	dbPool *pgxpool.Pool,
	dbEnabled bool,
	ws *realtime.WSGateway,
	auth *authapi.Handler,
	pres *presence.Handler,
	incidents *incident.Handler,
	m *metrics.Metrics,
) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.ReadinessRequireDB && !dbEnabled {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		if dbEnabled && dbPool != nil {
			if err := PingDB(r.Context(), dbPool, 2*time.Second); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				log.Info("readyz.db.not_ready", "err", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	if m != nil {
		mux.Handle("/metrics", m.Handler())
	}

	auth.Register(mux)

	mux.Handle("/api/presence/online", auth.RequireAuth(http.HandlerFunc(pres.HandleListOnline)))
	mux.Handle("/api/presence/online/by-role", auth.RequireAuth(http.HandlerFunc(pres.HandleListOnlineByRole)))

	// Incident handlers read the caller's claims from the request context,
	// so they are mounted behind the same auth middleware.
	incidentMux := http.NewServeMux()
	incidents.Register(incidentMux)
	mux.Handle("/api/incidents", auth.RequireAuth(incidentMux))
	mux.Handle("/api/incidents/", auth.RequireAuth(incidentMux))

	mux.HandleFunc("/ws", ws.HandleWS)
}
