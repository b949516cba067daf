// Package metrics exposes an Instance's pool and queue statistics as
// Prometheus gauges, grounded on runZeroInc-sockstats/pkg/exporter's
// Describe/Collect TCPInfoCollector pattern: a small set of *prometheus.Desc
// values built once at construction, refreshed from a live source on every
// Collect.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/canardgo/canard"
	"github.com/canardgo/canard/internal/pool"
)

// StatsSource is satisfied by *canard.Instance; a narrow interface so this
// package never imports the engine's internals beyond the Stats snapshot
// named explicitly in spec.md §6.
type StatsSource interface {
	Stats() canard.Stats
}

// Collector adapts a StatsSource into a prometheus.Collector, one gauge
// triple (capacity/used/peak) per pool category.
type Collector struct {
	source StatsSource

	capacity *prometheus.Desc
	used     *prometheus.Desc
	peak     *prometheus.Desc
}

// NewCollector builds a Collector reporting source's pool statistics under
// metric names prefixed "canard_".
func NewCollector(source StatsSource) *Collector {
	return &Collector{
		source: source,
		capacity: prometheus.NewDesc(
			"canard_pool_capacity_blocks",
			"Total blocks available in a typed arena.",
			[]string{"pool"}, nil,
		),
		used: prometheus.NewDesc(
			"canard_pool_used_blocks",
			"Blocks currently allocated in a typed arena.",
			[]string{"pool"}, nil,
		),
		peak: prometheus.NewDesc(
			"canard_pool_peak_used_blocks",
			"Historical peak allocation in a typed arena.",
			[]string{"pool"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.capacity
	descs <- c.used
	descs <- c.peak
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	stats := c.source.Stats()

	c.emit(metrics, "rx_state", stats.RxStates)
	c.emit(metrics, "buffer_block", stats.BufferBlocks)
	c.emit(metrics, "tx_item", stats.TxItems)
}

func (c *Collector) emit(metrics chan<- prometheus.Metric, pool string, s pool.Stats) {
	metrics <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(s.CapacityBlocks), pool)
	metrics <- prometheus.MustNewConstMetric(c.used, prometheus.GaugeValue, float64(s.CurrentUsedBlocks), pool)
	metrics <- prometheus.MustNewConstMetric(c.peak, prometheus.GaugeValue, float64(s.PeakUsedBlocks), pool)
}
