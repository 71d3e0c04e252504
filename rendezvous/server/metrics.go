package server

import "github.com/prometheus/client_golang/prometheus"

// prometheusCollector is the minimal interface cmd/quicsend-rendezvous
// needs to register this server's metrics with its own registry, grounded
// on how zrepl exposes counters/gauges for its own replication and job
// concurrency.
type prometheusCollector = prometheus.Collector

type metrics struct {
	waiters   prometheus.Gauge
	announced prometheus.Counter
	paired    prometheus.Counter
}

func newMetrics() *metrics {
	return &metrics{
		waiters: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quicsend_rendezvous_waiters",
			Help: "Number of senders currently waiting for a Connect to pair with.",
		}),
		announced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quicsend_rendezvous_announced_total",
			Help: "Total number of Announce messages accepted.",
		}),
		paired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quicsend_rendezvous_paired_total",
			Help: "Total number of successful sender/receiver pairings.",
		}),
	}
}

func (m *metrics) collectors() []prometheusCollector {
	return []prometheusCollector{m.waiters, m.announced, m.paired}
}
