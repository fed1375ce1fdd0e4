package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/rbforest/pkg/arena"
	"github.com/Sumatoshi-tech/rbforest/pkg/observability"
)

func setupTestMeter(t *testing.T) (*observability.Metrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := observability.NewMetrics(mp.Meter("test"))
	require.NoError(t, err)

	return metrics, reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics

	err := reader.Collect(context.Background(), &rm)
	require.NoError(t, err)

	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for idx := range rm.ScopeMetrics {
		for midx := range rm.ScopeMetrics[idx].Metrics {
			if rm.ScopeMetrics[idx].Metrics[midx].Name == name {
				return &rm.ScopeMetrics[idx].Metrics[midx]
			}
		}
	}

	return nil
}

func sumOf(t *testing.T, found *metricdata.Metrics) int64 {
	t.Helper()
	require.NotNil(t, found)

	sum, ok := found.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", found.Name)

	total := int64(0)
	for _, point := range sum.DataPoints {
		total += point.Value
	}

	return total
}

func TestMetrics_RecordOp(t *testing.T) {
	t.Parallel()

	metrics, reader := setupTestMeter(t)
	ctx := context.Background()

	metrics.RecordOp(ctx, "insert", true, time.Microsecond*3)
	metrics.RecordOp(ctx, "insert", false, time.Microsecond*5)
	metrics.RecordOp(ctx, "remove", true, time.Microsecond)

	rm := collectMetrics(t, reader)

	ops := findMetric(rm, "rbforest.tree.ops")
	assert.Equal(t, int64(3), sumOf(t, ops))

	sum, ok := ops.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Len(t, sum.DataPoints, 3, "one series per op and result")

	duration := findMetric(rm, "rbforest.tree.op.duration.seconds")
	require.NotNil(t, duration)

	histogram, ok := duration.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.Len(t, histogram.DataPoints, 2, "one series per op")
}

func TestMetrics_GrowHook(t *testing.T) {
	t.Parallel()

	metrics, reader := setupTestMeter(t)

	store := arena.New[int](arena.WithGrowHook(metrics.GrowHook(context.Background())))
	for idx := range 100 {
		store.Insert(idx)
	}

	rm := collectMetrics(t, reader)
	assert.Positive(t, sumOf(t, findMetric(rm, "rbforest.arena.grows")))

	capacity := findMetric(rm, "rbforest.arena.capacity")
	require.NotNil(t, capacity)

	gauge, ok := capacity.Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(store.Cap()), gauge.DataPoints[0].Value)

	require.NotNil(t, findMetric(rm, "rbforest.arena.grow.wait.seconds"))
}

func TestMetrics_TrackWorker(t *testing.T) {
	t.Parallel()

	metrics, reader := setupTestMeter(t)
	ctx := context.Background()

	done := metrics.TrackWorker(ctx)
	assert.Equal(t, int64(1), sumOf(t, findMetric(collectMetrics(t, reader), "rbforest.stress.inflight.workers")))

	done()
	assert.Zero(t, sumOf(t, findMetric(collectMetrics(t, reader), "rbforest.stress.inflight.workers")))
}

func TestNewMetrics_WithNoopMeter(t *testing.T) {
	t.Parallel()

	providers, err := observability.Init(observability.DefaultConfig())
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, providers.Shutdown(context.Background())) })

	metrics, err := observability.NewMetrics(providers.Meter)
	require.NoError(t, err)

	metrics.RecordOp(context.Background(), "get", true, time.Millisecond)
	metrics.RecordGrow(context.Background(), arena.GrowEvent{OldCap: 1, NewCap: 2})
}
