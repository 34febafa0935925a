package sync

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics collects reconciliation counters on a private registry.
// A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	runs           *prometheus.CounterVec
	duration       prometheus.Histogram
	inFlight       prometheus.Gauge
	sessionsSynced prometheus.Counter
	areasRetried   prometheus.Counter
	itemsPushed    prometheus.Counter
	pending        *prometheus.GaugeVec
}

// NewMetrics creates and registers the sync metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "happybar_sync_runs_total",
				Help: "Reconciliation runs by trigger and result",
			},
			[]string{"trigger", "result"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "happybar_sync_duration_seconds",
				Help:    "Duration of reconciliation runs",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "happybar_sync_in_flight",
				Help: "1 while a reconciliation run is in progress",
			},
		),
		sessionsSynced: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "happybar_sync_sessions_synced_total",
				Help: "Local count sessions mirrored to the backend",
			},
		),
		areasRetried: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "happybar_sync_areas_acknowledged_total",
				Help: "Area statuses acknowledged by the backend on retry",
			},
		),
		itemsPushed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "happybar_sync_items_pushed_total",
				Help: "Count items pushed to the backend by reconciliation",
			},
		),
		pending: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "happybar_sync_pending",
				Help: "Work not yet acknowledged by the backend, by kind",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		m.runs,
		m.duration,
		m.inFlight,
		m.sessionsSynced,
		m.areasRetried,
		m.itemsPushed,
		m.pending,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry exposes the registry for the /metrics handler
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) runStarted() {
	if m == nil {
		return
	}
	m.inFlight.Set(1)
}

func (m *Metrics) runFinished(trigger string, took time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.inFlight.Set(0)
	m.runs.WithLabelValues(trigger, result).Inc()
	m.duration.Observe(took.Seconds())
}

func (m *Metrics) runSkipped(trigger string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(trigger, "skipped").Inc()
}

func (m *Metrics) observeResult(r Result) {
	if m == nil {
		return
	}
	m.sessionsSynced.Add(float64(r.SessionsSynced))
	m.areasRetried.Add(float64(r.AreasAcknowledged))
	m.itemsPushed.Add(float64(r.ItemsPushed))
	m.pending.WithLabelValues("sessions").Set(float64(r.PendingSessions))
	m.pending.WithLabelValues("areas").Set(float64(r.PendingAreas))
	m.pending.WithLabelValues("items").Set(float64(r.PendingItems))
}
