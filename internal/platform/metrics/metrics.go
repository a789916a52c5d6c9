// Package metrics holds the prometheus collectors of a run
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Metrics bundles the collectors on a private registry. A nil *Metrics is a
// valid no-op
type Metrics struct {
	Registry          *prometheus.Registry
	Archives          *prometheus.CounterVec
	Partitions        *prometheus.CounterVec
	PartitionDuration prometheus.Histogram
	Workers           prometheus.Gauge
}

// New registers the collectors plus go and process collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		Archives: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rhat_archives_total",
			Help: "Archives evaluated, by outcome",
		}, []string{"outcome"}),
		Partitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rhat_partitions_total",
			Help: "Partitions collected, by outcome",
		}, []string{"outcome"}),
		PartitionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "rhat_partition_duration_seconds",
			Help:    "Time from submit to collection of a partition",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		}),
		Workers: f.NewGauge(prometheus.GaugeOpts{
			Name: "rhat_cluster_workers",
			Help: "Current cluster pool size",
		}),
	}
}

func outcome(ok bool) string {
	if ok {
		return OutcomeOK
	}
	return OutcomeFailed
}

// ObserveArchive counts one archive evaluation
func (m *Metrics) ObserveArchive(ok bool) {
	if m == nil {
		return
	}
	m.Archives.WithLabelValues(outcome(ok)).Inc()
}

// ObservePartition counts one collected partition and its latency
func (m *Metrics) ObservePartition(ok bool, d time.Duration) {
	if m == nil {
		return
	}
	m.Partitions.WithLabelValues(outcome(ok)).Inc()
	m.PartitionDuration.Observe(d.Seconds())
}

// SetWorkers records the pool size
func (m *Metrics) SetWorkers(n int) {
	if m == nil {
		return
	}
	m.Workers.Set(float64(n))
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
