package services

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"media-forensics-service/internal/models"
)

// Metrics exposes service counters in Prometheus format
type Metrics struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	uploads       *prometheus.CounterVec
	rejected      *prometheus.CounterVec
	chatTurns     *prometheus.CounterVec
	activeSession prometheus.Gauge
}

// NewMetrics registers the service collectors on a private registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "detection_runs_total",
			Help: "Detection runs that reached a terminal state.",
		}, []string{"kind", "status", "error_kind"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "detection_run_duration_seconds",
			Help:    "Time from running to a terminal state.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"kind"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "media_uploads_total",
			Help: "Accepted uploads by media category.",
		}, []string{"category"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "media_rejected_total",
			Help: "Rejected uploads by reason.",
		}, []string{"reason"}),
		chatTurns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_turns_total",
			Help: "Assistant exchanges by outcome.",
		}, []string{"outcome"}),
		activeSession: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "analysis_sessions_active",
			Help: "Open analysis sessions.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.runs, m.runDuration, m.uploads, m.rejected, m.chatTurns, m.activeSession,
	)
	return m
}

// Handler serves the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) observeRun(run models.DetectionRun) {
	m.runs.WithLabelValues(string(run.Kind), string(run.Status), string(run.ErrorKind)).Inc()
	if run.Elapsed > 0 {
		m.runDuration.WithLabelValues(string(run.Kind)).Observe(run.Elapsed.Seconds())
	}
}

func (m *Metrics) observeUpload(category models.MediaCategory) {
	m.uploads.WithLabelValues(string(category)).Inc()
}

func (m *Metrics) observeRejected(reason string) {
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) observeChat(err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(models.KindOf(err))
	}
	m.chatTurns.WithLabelValues(outcome).Inc()
}
