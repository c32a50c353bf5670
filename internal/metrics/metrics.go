// Copyright 2025 Lantern Protocol
//
// Package metrics exposes Prometheus counters and gauges for the
// ledger's core operations: event appends, checkpoints, and anchor
// publish attempts, registered against a dedicated registry so
// multiple engine instances in the same process (e.g. in tests) don't
// collide on the default global registry.

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors this ledger instance exports.
type Metrics struct {
	Registry *prometheus.Registry

	EventsAppended   prometheus.Counter
	AppendFailures   prometheus.Counter
	CheckpointsTaken prometheus.Counter
	AnchorPublishes  *prometheus.CounterVec
	AnchorFailures   *prometheus.CounterVec
	HeadSeq          prometheus.Gauge
}

// New builds a Metrics bundle and registers all collectors against a
// fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		EventsAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lantern_ledger",
			Name:      "events_appended_total",
			Help:      "Total audit events successfully appended to the chain.",
		}),
		AppendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lantern_ledger",
			Name:      "append_failures_total",
			Help:      "Total append_event calls that rolled back.",
		}),
		CheckpointsTaken: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lantern_ledger",
			Name:      "checkpoints_taken_total",
			Help:      "Total signed checkpoints produced.",
		}),
		AnchorPublishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lantern_ledger",
			Name:      "anchor_publishes_total",
			Help:      "Total successful anchor publishes, by backend type.",
		}, []string{"backend"}),
		AnchorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lantern_ledger",
			Name:      "anchor_failures_total",
			Help:      "Total failed anchor publish attempts, by backend type.",
		}, []string{"backend"}),
		HeadSeq: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lantern_ledger",
			Name:      "head_seq",
			Help:      "Sequence number of the last appended event.",
		}),
	}

	reg.MustRegister(
		m.EventsAppended, m.AppendFailures, m.CheckpointsTaken,
		m.AnchorPublishes, m.AnchorFailures, m.HeadSeq,
	)
	return m
}

// Handler returns the HTTP handler to mount at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
