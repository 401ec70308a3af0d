// Package metrics exposes reconciler and register write counters in the
// Prometheus exposition format.
package metrics

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/mcuctrl/internal/mcu"
	"github.com/nerrad567/mcuctrl/internal/reconcile"
)

const namespace = "mcuctrl"

// Pass outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeCorrected = "corrected"
	OutcomeFailed    = "failed"
)

// Metrics holds the collectors on a private registry so tests and multiple
// instances never collide on the global default registry.
type Metrics struct {
	registry *prometheus.Registry

	passes    *prometheus.CounterVec
	writes    *prometheus.CounterVec
	busErrors prometheus.Counter
	registers *prometheus.GaugeVec
	lastPass  prometheus.Gauge
}

var (
	_ reconcile.Observer = (*Metrics)(nil)
	_ mcu.WriteObserver  = (*Metrics)(nil)
)

// New registers the mcuctrl collectors plus the Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_passes_total",
			Help:      "Reconcile passes by outcome.",
		}, []string{"outcome"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "register_writes_total",
			Help:      "Register writes by register and kind.",
		}, []string{"register", "kind"}),
		busErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_errors_total",
			Help:      "Reconcile passes that failed with a bus error.",
		}),
		registers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "register_value",
			Help:      "Register values observed by the last successful pass.",
		}, []string{"register"}),
		lastPass: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_pass_timestamp_seconds",
			Help:      "Unix time the last reconcile pass started.",
		}),
	}

	m.registry.MustRegister(
		m.passes,
		m.writes,
		m.busErrors,
		m.registers,
		m.lastPass,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// PassCompleted updates pass counters and register gauges.
func (m *Metrics) PassCompleted(_ context.Context, res reconcile.Result) {
	m.lastPass.Set(float64(res.StartedAt.UnixNano()) / 1e9)

	switch {
	case res.Err != nil:
		m.passes.WithLabelValues(OutcomeFailed).Inc()
		if errors.Is(res.Err, mcu.ErrBusIO) {
			m.busErrors.Inc()
		}
		return
	case res.Diverged:
		m.passes.WithLabelValues(OutcomeCorrected).Inc()
	default:
		m.passes.WithLabelValues(OutcomeOK).Inc()
	}

	m.registers.WithLabelValues(mcu.PWMMin.Name).Set(float64(res.Snapshot.PWMMin))
	m.registers.WithLabelValues(mcu.PWMMax.Name).Set(float64(res.Snapshot.PWMMax))
	m.registers.WithLabelValues(mcu.ReadBrightness.Name).Set(float64(res.Snapshot.Brightness))
}

// RegisterWritten counts a register write.
func (m *Metrics) RegisterWritten(_ context.Context, ev mcu.WriteEvent) {
	m.writes.WithLabelValues(ev.Register, string(ev.Kind)).Inc()
}
