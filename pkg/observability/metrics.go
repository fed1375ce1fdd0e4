package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Sumatoshi-tech/rbforest/pkg/arena"
)

const (
	metricTreeOps         = "rbforest.tree.ops"
	metricTreeOpDuration  = "rbforest.tree.op.duration.seconds"
	metricArenaGrows      = "rbforest.arena.grows"
	metricArenaGrowWait   = "rbforest.arena.grow.wait.seconds"
	metricArenaCapacity   = "rbforest.arena.capacity"
	metricInflightWorkers = "rbforest.stress.inflight.workers"

	attrOp     = "op"
	attrResult = "result"

	resultHit  = "hit"
	resultMiss = "miss"
)

// opBucketBoundaries covers 1µs to 1s: tree operations are in-memory, the upper
// buckets only fill up while an allocator waits for the grow step.
var opBucketBoundaries = []float64{1e-6, 5e-6, 1e-5, 5e-5, 1e-4, 5e-4, 1e-3, 1e-2, 0.1, 1}

// Metrics holds the OTel instruments of the tree and arena layers.
type Metrics struct {
	treeOps         metric.Int64Counter
	treeOpDuration  metric.Float64Histogram
	arenaGrows      metric.Int64Counter
	arenaGrowWait   metric.Float64Histogram
	arenaCapacity   metric.Int64Gauge
	inflightWorkers metric.Int64UpDownCounter
}

// NewMetrics creates the instruments from the given meter.
func NewMetrics(mt metric.Meter) (*Metrics, error) {
	treeOps, err := mt.Int64Counter(metricTreeOps,
		metric.WithDescription("Tree operations by kind and result"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricTreeOps, err)
	}

	treeOpDuration, err := mt.Float64Histogram(metricTreeOpDuration,
		metric.WithDescription("Tree operation latency including lock acquisition"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(opBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricTreeOpDuration, err)
	}

	arenaGrows, err := mt.Int64Counter(metricArenaGrows,
		metric.WithDescription("Arena grow steps"),
		metric.WithUnit("{grow}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricArenaGrows, err)
	}

	arenaGrowWait, err := mt.Float64Histogram(metricArenaGrowWait,
		metric.WithDescription("Time an allocator waited for exclusive access to grow the arena"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(opBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricArenaGrowWait, err)
	}

	arenaCapacity, err := mt.Int64Gauge(metricArenaCapacity,
		metric.WithDescription("Arena capacity after the latest grow step"),
		metric.WithUnit("{slot}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricArenaCapacity, err)
	}

	inflight, err := mt.Int64UpDownCounter(metricInflightWorkers,
		metric.WithDescription("Number of running stress workers"),
		metric.WithUnit("{worker}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricInflightWorkers, err)
	}

	return &Metrics{
		treeOps:         treeOps,
		treeOpDuration:  treeOpDuration,
		arenaGrows:      arenaGrows,
		arenaGrowWait:   arenaGrowWait,
		arenaCapacity:   arenaCapacity,
		inflightWorkers: inflight,
	}, nil
}

// RecordOp records one tree operation. hit tells whether the key was present.
func (m *Metrics) RecordOp(ctx context.Context, op string, hit bool, duration time.Duration) {
	result := resultMiss
	if hit {
		result = resultHit
	}

	m.treeOps.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrOp, op),
		attribute.String(attrResult, result),
	))
	m.treeOpDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String(attrOp, op)))
}

// RecordGrow records one arena grow step.
func (m *Metrics) RecordGrow(ctx context.Context, event arena.GrowEvent) {
	m.arenaGrows.Add(ctx, 1)
	m.arenaGrowWait.Record(ctx, event.Wait.Seconds())
	m.arenaCapacity.Record(ctx, int64(event.NewCap))
}

// GrowHook adapts RecordGrow for arena.WithGrowHook.
func (m *Metrics) GrowHook(ctx context.Context) func(arena.GrowEvent) {
	return func(event arena.GrowEvent) {
		m.RecordGrow(ctx, event)
	}
}

// TrackWorker increments the running-worker gauge and returns a function to decrement it.
func (m *Metrics) TrackWorker(ctx context.Context) func() {
	m.inflightWorkers.Add(ctx, 1)

	return func() {
		m.inflightWorkers.Add(ctx, -1)
	}
}
