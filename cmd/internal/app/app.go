// Package app wires the Marauder's Map server runtime: config, logging,
// persistence, HTTP routes, and the realtime gateway.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"maraudersmap/cmd/identity"
	authapi "maraudersmap/cmd/internal/auth/api"
	"maraudersmap/cmd/internal/auth/session"
	"maraudersmap/cmd/internal/auth/token"
	"maraudersmap/cmd/internal/incident"
	"maraudersmap/cmd/internal/metrics"
	"maraudersmap/cmd/internal/presence"
	"maraudersmap/cmd/internal/realtime"
	"maraudersmap/cmd/security/password"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory store mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

// App is the server runtime: it owns HTTP wiring, the presence tracker,
// and the realtime gateway dependencies.
type App struct {
	cfg Config
	log Logger

	store Store

	dbPool    *pgxpool.Pool
	dbEnabled bool

	tracker  *presence.Tracker
	hub      *realtime.Hub
	notifier *realtime.Notifier
	ws       *realtime.WSGateway

	auth      *authapi.Handler
	presence  *presence.Handler
	incidents *incident.Handler
	metrics   *metrics.Metrics
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	st, dbPool, dbEnabled, users, incidents, err := newStore(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	tokenCfg, err := token.LoadConfigFromEnv()
	if err != nil {
		closeQuietly(st, log)
		return nil, err
	}
	tokens, err := token.NewManager(tokenCfg)
	if err != nil {
		closeQuietly(st, log)
		return nil, err
	}

	sessions, err := session.NewService(
		log,
		session.LoadConfigFromEnv(),
		users,
		password.NewHasher(password.DefaultCost),
		tokens,
	)
	if err != nil {
		closeQuietly(st, log)
		return nil, err
	}

	tracker := presence.NewTracker(log, presence.LoadConfigFromEnv())
	hub := realtime.NewHub(log)
	notifier := realtime.NewNotifier(log, hub, users, tracker)
	ws := realtime.NewWSGateway(log, hub, tracker, sessions)

	m := metrics.New(
		func() float64 { return float64(hub.CountClients()) },
		func() float64 { return float64(len(tracker.ListOnline(time.Now().UTC()))) },
	)

	return &App{
		cfg:       cfg,
		log:       log,
		store:     st,
		dbPool:    dbPool,
		dbEnabled: dbEnabled,
		tracker:   tracker,
		hub:       hub,
		notifier:  notifier,
		ws:        ws,
		auth:      authapi.NewHandler(log, sessions, users, m),
		presence:  presence.NewHandler(log, tracker, users),
		incidents: incident.NewHandler(log, incidents, hub, m),
		metrics:   m,
	}, nil
}

// Run starts the HTTP server and the presence sweeper, and blocks until
// context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.ws, a.auth, a.presence, a.incidents, a.metrics)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(WithSecurityHeaders(mux), a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go a.tracker.Run(sweepCtx)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	if err := a.store.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// newStore decides between Postgres-backed persistence and in-memory dev stores.
func newStore(ctx context.Context, cfg Config, log Logger) (Store, *pgxpool.Pool, bool, identity.Store, incident.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		return nopStore{}, nil, false, identity.NewMemoryStore(), incident.NewMemoryStore(), nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, false, nil, nil, err
	}

	log.Info("db.enabled.postgres_store", "schema", cfg.DBSchema)

	// Ownership model: app owns the pool lifecycle; the stores never close it.
	users, err := identity.NewPostgresStore(pool, identity.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, nil, false, nil, nil, err
	}
	incidents, err := incident.NewPostgresStore(pool, incident.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, nil, false, nil, nil, err
	}

	return dbStore{pool: pool}, pool, true, users, incidents, nil
}

type dbStore struct {
	pool *pgxpool.Pool
}

func (s dbStore) Close(_ context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func closeQuietly(st Store, log Logger) {
	if err := st.Close(context.Background()); err != nil {
		log.Error("store.close.fail", "err", err)
	}
}
