// Package metrics exposes prometheus counters for authentication
// outcomes and refresh-token housekeeping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/traafik/auth-svc/internal/model"
)

const namespace = "auth"

// Recorder owns the service's collectors.  A nil *Recorder is valid and
// records nothing, which keeps tests free of registry plumbing.
type Recorder struct {
	registry *prometheus.Registry
	ops      *prometheus.CounterVec
	swept    prometheus.Counter
	sweeps   *prometheus.CounterVec
	events   *prometheus.CounterVec
}

// New registers the service collectors plus the Go and process
// collectors on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		ops: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Session operations by name and outcome kind.",
		}, []string{"op", "outcome"}),
		swept: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_tokens_swept_total",
			Help:      "Expired or revoked refresh tokens deleted by the sweep.",
		}),
		sweeps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_runs_total",
			Help:      "Sweep runs by result.",
		}, []string{"result"}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Account events handed to the broker by type and result.",
		}, []string{"type", "result"}),
	}
}

// Op counts one finished operation.  err == nil is recorded as "ok",
// anything else under its error kind.
func (r *Recorder) Op(op string, err error) {
	if r == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = model.KindOf(err).String()
	}
	r.ops.WithLabelValues(op, outcome).Inc()
}

// Sweep records one sweep run that removed n rows.
func (r *Recorder) Sweep(n int64, err error) {
	if r == nil {
		return
	}
	if err != nil {
		r.sweeps.WithLabelValues("error").Inc()
	} else {
		r.sweeps.WithLabelValues("ok").Inc()
	}
	if n > 0 {
		r.swept.Add(float64(n))
	}
}

// Event records one publish attempt.
func (r *Recorder) Event(eventType string, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.events.WithLabelValues(eventType, result).Inc()
}

// Handler serves the registry in the prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry exposes the underlying registry for tests and extra
// collectors.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }
