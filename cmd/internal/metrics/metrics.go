// Package metrics owns the Prometheus registry and the counters the
// auth and realtime layers report into.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the registry with the instruments the application
// increments. Constructed once and passed down, never global.
type Metrics struct {
	registry *prometheus.Registry

	Logins       prometheus.Counter
	LoginFails   prometheus.Counter
	Refreshes    prometheus.Counter
	RefreshFails prometheus.Counter
	Revocations  prometheus.Counter

	IncidentsCreated  prometheus.Counter
	IncidentsResolved prometheus.Counter
}

// New constructs a Metrics with its own registry, Go runtime and process
// collectors included. connectionsFn and onlineFn, when non-nil, back
// gauges for live websocket connections and online users.
func New(connectionsFn, onlineFn func() float64) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	f := promauto.With(reg)
	m := &Metrics{
		registry: reg,

		Logins: f.NewCounter(prometheus.CounterOpts{
			Namespace: "mm", Subsystem: "auth", Name: "logins_total",
			Help: "Successful credential logins.",
		}),
		LoginFails: f.NewCounter(prometheus.CounterOpts{
			Namespace: "mm", Subsystem: "auth", Name: "login_failures_total",
			Help: "Rejected credential logins.",
		}),
		Refreshes: f.NewCounter(prometheus.CounterOpts{
			Namespace: "mm", Subsystem: "auth", Name: "refreshes_total",
			Help: "Successful refresh token rotations.",
		}),
		RefreshFails: f.NewCounter(prometheus.CounterOpts{
			Namespace: "mm", Subsystem: "auth", Name: "refresh_failures_total",
			Help: "Rejected refresh attempts (expired, revoked, malformed).",
		}),
		Revocations: f.NewCounter(prometheus.CounterOpts{
			Namespace: "mm", Subsystem: "auth", Name: "revocations_total",
			Help: "Logout revocations processed.",
		}),

		IncidentsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: "mm", Subsystem: "incident", Name: "created_total",
			Help: "Incidents reported.",
		}),
		IncidentsResolved: f.NewCounter(prometheus.CounterOpts{
			Namespace: "mm", Subsystem: "incident", Name: "resolved_total",
			Help: "Incidents resolved.",
		}),
	}

	if connectionsFn != nil {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "mm", Subsystem: "ws", Name: "connections",
			Help: "Live websocket connections.",
		}, connectionsFn)
	}
	if onlineFn != nil {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "mm", Subsystem: "presence", Name: "online_users",
			Help: "Users seen within the online window.",
		}, onlineFn)
	}

	return m
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
