// Package metrics exposes Prometheus instrumentation for the console: probe
// results, action outcomes, control-plane latency and connected sessions.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vpnconsole/vpnconsole/internal/service"
)

const namespace = "vpnconsole"

// Metrics owns a private registry so tests and multiple daemons in one
// process never collide on the default registry.
type Metrics struct {
	reg *prometheus.Registry

	serviceUp       *prometheus.GaugeVec
	actions         *prometheus.CounterVec
	controlPlaneDur *prometheus.HistogramVec
	sessions        prometheus.Gauge
	requests        *prometheus.CounterVec
	requestDur      *prometheus.HistogramVec
}

// New creates and registers every collector, plus the Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		serviceUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "service_up",
			Help:      "Last probed state per service: 1 up, 0 down, -1 unknown.",
		}, []string{"service"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Lifecycle actions applied, by outcome classification.",
		}, []string{"action", "service", "classification"}),
		controlPlaneDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "control_plane",
			Name:      "call_duration_seconds",
			Help:      "Control-plane call latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"op", "result"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "vpn_sessions",
			Help:      "Connected VPN clients in the last status file read.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "API requests by route and status code.",
		}, []string{"route", "code"}),
		requestDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "API request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "code"}),
	}
	m.reg.MustRegister(
		m.serviceUp, m.actions, m.controlPlaneDur, m.sessions, m.requests, m.requestDur,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// InstrumentHandler wraps h to count and time requests under route.
func (m *Metrics) InstrumentHandler(route string, h http.Handler) http.Handler {
	labels := prometheus.Labels{"route": route}
	return promhttp.InstrumentHandlerCounter(m.requests.MustCurryWith(labels),
		promhttp.InstrumentHandlerDuration(m.requestDur.MustCurryWith(labels), h))
}

// ObserveSnapshot records the state of every service in snap.
func (m *Metrics) ObserveSnapshot(snap service.Snapshot) {
	for id, st := range snap.Services {
		v := -1.0
		switch st.Status {
		case service.StatusUp:
			v = 1
		case service.StatusDown:
			v = 0
		}
		m.serviceUp.WithLabelValues(id).Set(v)
	}
}

// ObserveReport counts the outcomes of a dispatch.
func (m *Metrics) ObserveReport(r service.Report) {
	for _, o := range r.Outcomes {
		m.actions.WithLabelValues(string(r.Action), o.Service, string(o.Classification)).Inc()
	}
}

// ObserveSessions records the number of connected clients.
func (m *Metrics) ObserveSessions(n int) {
	m.sessions.Set(float64(n))
}

// InstrumentControlPlane returns cp wrapped so every call's latency is
// recorded.
func (m *Metrics) InstrumentControlPlane(cp service.ControlPlane) service.ControlPlane {
	return &instrumented{next: cp, dur: m.controlPlaneDur}
}

type instrumented struct {
	next service.ControlPlane
	dur  *prometheus.HistogramVec
}

func (i *instrumented) observe(op string, start time.Time, exitCode int, err error) {
	i.dur.WithLabelValues(op, resultLabel(exitCode, err)).Observe(time.Since(start).Seconds())
}

func (i *instrumented) Query(ctx context.Context, f service.Filter) ([]service.Entry, error) {
	start := time.Now()
	entries, err := i.next.Query(ctx, f)
	i.observe("query", start, 0, err)
	return entries, err
}

func (i *instrumented) Act(ctx context.Context, action service.Action, name string) (service.Result, error) {
	start := time.Now()
	res, err := i.next.Act(ctx, action, name)
	i.observe(string(action), start, res.ExitCode, err)
	return res, err
}

func (i *instrumented) FetchLog(ctx context.Context, name string, maxLines int) (service.Result, error) {
	start := time.Now()
	res, err := i.next.FetchLog(ctx, name, maxLines)
	i.observe("logs", start, res.ExitCode, err)
	return res, err
}

func resultLabel(exitCode int, err error) string {
	switch {
	case errors.Is(err, service.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case err != nil:
		return "error"
	case exitCode != 0:
		return "nonzero"
	}
	return "ok"
}
