package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors exposed on /metrics. Each server owns its
// registry so tests can build several servers in one process.
type Metrics struct {
	registry    *prometheus.Registry
	connections prometheus.Gauge
	frames      *prometheus.CounterVec
	jobsStarted *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "archon_stream_connections",
			Help: "Number of open job progress streams.",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archon_stream_frames_total",
			Help: "Server-sent event frames written, by event name.",
		}, []string{"event"}),
		jobsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archon_jobs_started_total",
			Help: "Background jobs started, by kind.",
		}, []string{"kind"}),
	}
	m.registry.MustRegister(
		m.connections,
		m.frames,
		m.jobsStarted,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) jobStarted(kind string) {
	m.jobsStarted.WithLabelValues(kind).Inc()
}
