package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Collector, labels ...string) float64 {
	t.Helper()
	vec, ok := c.(*prometheus.CounterVec)
	require.True(t, ok)
	m := &dto.Metric{}
	require.NoError(t, vec.WithLabelValues(labels...).Write(m))
	return m.GetCounter().GetValue()
}

func TestRecordHTTPRequestIncrementsCounterAndObservesDuration(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())
	m.RecordHTTPRequest("GET", "/api/v1/databases", "200", 5*time.Millisecond)
	require.Equal(t, float64(1), counterValue(t, m.HTTPRequestsTotal, "GET", "/api/v1/databases", "200"))
}

func TestRecordEmbeddingBatchIncrementsCounter(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())
	m.RecordEmbeddingBatch("ok", 12)
	require.Equal(t, float64(1), counterValue(t, m.EmbeddingBatchesTotal, "ok"))
}

func TestSetEmbeddingQueueDepthSetsGaugePerState(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())
	m.SetEmbeddingQueueDepth(map[string]int{"todo": 3, "stale": 1})

	g := &dto.Metric{}
	require.NoError(t, m.EmbeddingQueueDepth.WithLabelValues("todo").Write(g))
	require.Equal(t, float64(3), g.GetGauge().GetValue())
}

func TestStreamAndConnectionLifecycleGaugesDoNotPanic(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())
	m.ConnectionOpened()
	m.StreamStarted("DynamicService", "Query")
	m.StreamEnded("DynamicService", "Query")
	m.ConnectionClosed()
}
