// Package metrics holds the prometheus collectors for SLA runs. A batch run
// flushes them to a node-exporter textfile; the report server exposes them on /metrics
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles a private registry with the run collectors
type Metrics struct {
	registry *prometheus.Registry

	OrdersProcessed   *prometheus.CounterVec
	StagesBuilt       *prometheus.CounterVec
	EventsDropped     *prometheus.CounterVec
	ArtifactWrites    *prometheus.CounterVec
	KeyResolutionFail *prometheus.CounterVec
	ConfigRuns        *prometheus.CounterVec
	RunDuration       *prometheus.HistogramVec
	LastSuccess       *prometheus.GaugeVec

	SourceRequests      *prometheus.CounterVec
	CircuitBreakerState *prometheus.GaugeVec
	CredentialRotations prometheus.Counter
}

// Config holds metrics naming
type Config struct {
	Namespace string
	// Process adds go and process collectors (long running server only)
	Process bool
}

// DefaultConfig returns the batch defaults
func DefaultConfig() Config { return Config{Namespace: "slaledger"} }

// New creates collectors registered on a fresh registry
func New(cfg Config) *Metrics {
	if cfg.Namespace == "" {
		cfg.Namespace = "slaledger"
	}
	reg := prometheus.NewRegistry()
	if cfg.Process {
		reg.MustRegister(collectors.NewGoCollector())
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	ns := cfg.Namespace
	m := &Metrics{registry: reg}

	m.OrdersProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "orders_processed_total",
		Help: "Orders whose status history was normalized",
	}, []string{"config_id"})

	m.StagesBuilt = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "stages_total",
		Help: "Stages emitted by breach classification",
	}, []string{"config_id", "breach"})

	m.EventsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "events_dropped_total",
		Help: "Raw events discarded before stage building",
	}, []string{"config_id", "reason"})

	m.ArtifactWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "artifact_writes_total",
		Help: "Accumulation artifact writes by outcome",
	}, []string{"kind", "artifact", "result"})

	m.KeyResolutionFail = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "key_resolution_failures_total",
		Help: "Accumulations aborted because no key candidate fit the new batch",
	}, []string{"config_id", "kind"})

	m.ConfigRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "config_runs_total",
		Help: "Configuration runs by outcome",
	}, []string{"config_id", "result"})

	m.RunDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Name: "config_run_duration_seconds",
		Help:    "Wall time spent on one configuration",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"config_id"})

	m.LastSuccess = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns, Name: "last_success_timestamp_seconds",
		Help: "Unix time of the last successful configuration run",
	}, []string{"config_id"})

	m.SourceRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "source_requests_total",
		Help: "Order source HTTP requests by endpoint and outcome",
	}, []string{"endpoint", "result"})

	m.CircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns, Name: "circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"name"})

	m.CredentialRotations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Name: "credential_rotations_total",
		Help: "Order source credential rotations",
	})

	reg.MustRegister(
		m.OrdersProcessed,
		m.StagesBuilt,
		m.EventsDropped,
		m.ArtifactWrites,
		m.KeyResolutionFail,
		m.ConfigRuns,
		m.RunDuration,
		m.LastSuccess,
		m.SourceRequests,
		m.CircuitBreakerState,
		m.CredentialRotations,
	)
	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// WriteTextfile flushes the registry for the node-exporter textfile collector
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

// RecordConfigRun records the outcome and duration of one configuration
func (m *Metrics) RecordConfigRun(configID string, err error, took time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	} else {
		m.LastSuccess.WithLabelValues(configID).SetToCurrentTime()
	}
	m.ConfigRuns.WithLabelValues(configID, result).Inc()
	m.RunDuration.WithLabelValues(configID).Observe(took.Seconds())
}

// RecordArtifactWrite counts one artifact write
func (m *Metrics) RecordArtifactWrite(kind, artifact string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ArtifactWrites.WithLabelValues(kind, artifact, result).Inc()
}

// RecordSourceRequest counts one order source request
func (m *Metrics) RecordSourceRequest(endpoint string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SourceRequests.WithLabelValues(endpoint, result).Inc()
}

// SetBreakerState stores a breaker state code for name
func (m *Metrics) SetBreakerState(name string, state int) {
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}
