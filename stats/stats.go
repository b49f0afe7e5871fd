// Package stats registers and exposes the Prometheus collectors World and
// Scene update as they run their step loop (SPEC_FULL.md's ambient
// "Metrics & health" expansion).
package stats

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles every metric a RootObject's role strategy updates
// during Step(). A nil *Collector is valid and every method on it is a
// no-op, so wiring it into World/Scene never requires a presence check.
type Collector struct {
	stepDuration    prometheus.Histogram
	buffersSent     prometheus.Counter
	treeQueueDepth  prometheus.Gauge
	scenesConnected prometheus.Gauge
}

// NewCollector builds and registers the four collectors named in
// SPEC_FULL.md against reg. Passing prometheus.NewRegistry() isolates
// tests from the global default registry; passing
// prometheus.DefaultRegisterer matches normal process wiring.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		stepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "splash_step_duration_seconds",
			Help:    "Wall-clock duration of one RootObject.Step() call.",
			Buckets: prometheus.DefBuckets,
		}),
		buffersSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "splash_buffers_sent_total",
			Help: "Number of serialized buffer objects sent over a Link.",
		}),
		treeQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "splash_tree_queue_depth",
			Help: "Number of pending outbound tree commands across all peers.",
		}),
		scenesConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "splash_scenes_connected",
			Help: "Number of Scene processes currently connected to this World.",
		}),
	}
	reg.MustRegister(c.stepDuration, c.buffersSent, c.treeQueueDepth, c.scenesConnected)
	return c
}

func (c *Collector) ObserveStepDuration(seconds float64) {
	if c == nil {
		return
	}
	c.stepDuration.Observe(seconds)
}

func (c *Collector) AddBuffersSent(n int) {
	if c == nil || n == 0 {
		return
	}
	c.buffersSent.Add(float64(n))
}

func (c *Collector) SetTreeQueueDepth(depth int) {
	if c == nil {
		return
	}
	c.treeQueueDepth.Set(float64(depth))
}

func (c *Collector) SetScenesConnected(n int) {
	if c == nil {
		return
	}
	c.scenesConnected.Set(float64(n))
}

// Handler returns the HTTP handler World's health/metrics endpoint
// (`cmd/splash`'s `--metrics-port`, ambient — not one of spec.md §6.4's
// named flags) serves /metrics from.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
