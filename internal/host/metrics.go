package host

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	failures *prometheus.CounterVec
	viewers  prometheus.Gauge
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "figurl_host",
				Name:      "requests_total",
				Help:      "Viewer requests by type.",
			},
			[]string{"type"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "figurl_host",
				Name:      "resolution_failures_total",
				Help:      "Content identifiers that could not be resolved.",
			},
			[]string{"reason"},
		),
		viewers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "figurl_host",
			Name:      "viewers_connected",
			Help:      "Currently connected viewers.",
		}),
	}
	m.registry.MustRegister(m.requests, m.failures, m.viewers)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
