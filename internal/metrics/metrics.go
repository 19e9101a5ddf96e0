package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tempsense"

// Stage names used as the "stage" label.
const (
	StageAcquire = "acquire"
	StageConnect = "connect"
	StagePublish = "publish"
	StagePersist = "persist"
)

// Metrics holds the instruments for one process.
type Metrics struct {
	registry *prometheus.Registry

	cycles          prometheus.Counter
	stageResults    *prometheus.CounterVec
	acquisitions    *prometheus.CounterVec
	breakerState    prometheus.Gauge
	connected       prometheus.Gauge
	lastTemperature prometheus.Gauge
	lastTimestamp   prometheus.Gauge
	cycleDuration   prometheus.Histogram
}

// New creates and registers the instruments on a fresh registry, together
// with the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		cycles: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Total number of completed acquire/publish/persist cycles",
		}),
		stageResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage outcomes by stage name",
		}, []string{"stage", "outcome"}),
		acquisitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acquisitions_total",
			Help:      "Temperatures acquired, by provider or synthetic fallback",
		}, []string{"source"}),
		breakerState: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Provider circuit breaker state (0 closed, 1 half-open, 2 open)",
		}),
		connected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transport_connected",
			Help:      "1 if the broker connection is up",
		}),
		lastTemperature: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_temperature_celsius",
			Help:      "Temperature of the most recent reading",
		}),
		lastTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_reading_timestamp_seconds",
			Help:      "Unix timestamp of the most recent reading",
		}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one cycle including retries",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStage counts one stage outcome.
func (m *Metrics) ObserveStage(stage, outcome string) {
	if m == nil {
		return
	}
	m.stageResults.WithLabelValues(stage, outcome).Inc()
}

// ObserveAcquisition counts a provider reading or a fallback.
func (m *Metrics) ObserveAcquisition(fallback bool) {
	if m == nil {
		return
	}
	source := "provider"
	if fallback {
		source = "fallback"
	}
	m.acquisitions.WithLabelValues(source).Inc()
}

// SetBreakerState records the breaker state as 0, 1, or 2.
func (m *Metrics) SetBreakerState(v float64) {
	if m == nil {
		return
	}
	m.breakerState.Set(v)
}

// SetConnected records the transport state.
func (m *Metrics) SetConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

// ObserveCycle records a finished cycle and its reading.
func (m *Metrics) ObserveCycle(temperature float64, timestamp int64, took time.Duration) {
	if m == nil {
		return
	}
	m.cycles.Inc()
	m.lastTemperature.Set(temperature)
	m.lastTimestamp.Set(float64(timestamp))
	m.cycleDuration.Observe(took.Seconds())
}
