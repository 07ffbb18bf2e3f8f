package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "syncd"

type metrics struct {
	// commits counts snapshots minted.
	commits prometheus.Counter
	// cycles counts worker cycles, including ones with nothing to do.
	cycles       prometheus.Counter
	pushes       prometheus.Counter
	pushFailures prometheus.Counter
	// unknownAnchors counts subscribers dropped because their anchor left
	// history.
	unknownAnchors prometheus.Counter
	buildFailures  prometheus.Counter
	subscribers    prometheus.Gauge
	streams        prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		commits: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "commits_total",
			Help:      "Snapshots minted across all streams",
		}),
		cycles: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cycles_total",
			Help:      "Stream worker diff-and-push cycles",
		}),
		pushes: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "pushes_total",
			Help:      "Patches delivered to subscribers",
		}),
		pushFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "push_failures_total",
			Help:      "Failed pushes; each one drops its subscriber",
		}),
		unknownAnchors: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "unknown_anchors_total",
			Help:      "Subscribers dropped because their anchor is not in history",
		}),
		buildFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "build_failures_total",
			Help:      "Representation builds that failed",
		}),
		subscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "subscribers",
			Help:      "Current subscribers across all streams",
		}),
		streams: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "streams",
			Help:      "Open streams",
		}),
	}
}
