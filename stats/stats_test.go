package stats

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestCollectorUpdatesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.AddBuffersSent(3)
	c.SetTreeQueueDepth(5)
	c.SetScenesConnected(2)
	c.ObserveStepDuration(0.016)

	if got := counterValue(t, c.buffersSent); got != 3 {
		t.Fatalf("buffersSent = %v, want 3", got)
	}
	if got := gaugeValue(t, c.treeQueueDepth); got != 5 {
		t.Fatalf("treeQueueDepth = %v, want 5", got)
	}
	if got := gaugeValue(t, c.scenesConnected); got != 2 {
		t.Fatalf("scenesConnected = %v, want 2", got)
	}
}

func TestNilCollectorMethodsAreNoops(t *testing.T) {
	var c *Collector
	c.AddBuffersSent(1)
	c.SetTreeQueueDepth(1)
	c.SetScenesConnected(1)
	c.ObserveStepDuration(1)
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)
	if Handler(reg) == nil {
		t.Fatalf("Handler returned nil")
	}
}
