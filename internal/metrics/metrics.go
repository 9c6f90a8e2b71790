// Package metrics exposes the sync core's counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Registry *prometheus.Registry

	Connected      prometheus.Gauge
	Reconnects     prometheus.Counter
	QueueDepth     prometheus.Gauge
	InboundEvents  *prometheus.CounterVec
	MalformedDrops prometheus.Counter
	SendFailures   prometheus.Counter
	AckLatency     prometheus.Histogram
	Resyncs        *prometheus.CounterVec
}

// New builds a private registry so tests can create as many as they like.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mmsync_connected",
			Help: "1 while a server session is up.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mmsync_reconnects_total",
			Help: "Reconnect attempts.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mmsync_offline_queue_depth",
			Help: "Actions waiting in the offline queue.",
		}),
		InboundEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mmsync_inbound_events_total",
			Help: "Inbound events applied, by type.",
		}, []string{"type"}),
		MalformedDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mmsync_malformed_events_total",
			Help: "Inbound frames dropped as malformed.",
		}),
		SendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mmsync_send_failures_total",
			Help: "Intents that hit the retry ceiling.",
		}),
		AckLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mmsync_ack_latency_seconds",
			Help:    "Time from transmit to server ack.",
			Buckets: prometheus.DefBuckets,
		}),
		Resyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mmsync_resyncs_total",
			Help: "Full conversation refetches, by result.",
		}, []string{"result"}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		m.Connected,
		m.Reconnects,
		m.QueueDepth,
		m.InboundEvents,
		m.MalformedDrops,
		m.SendFailures,
		m.AckLatency,
		m.Resyncs,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
