package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricRequestsTotal    = "codescout.requests.total"
	metricRequestDuration  = "codescout.request.duration.seconds"
	metricErrorsTotal      = "codescout.errors.total"
	metricInflightRequests = "codescout.inflight.requests"

	metricChunksPlanned   = "codescout.engine.chunks.planned.total"
	metricChunksCompleted = "codescout.engine.chunks.completed.total"
	metricChunksFailed    = "codescout.engine.chunks.failed.total"
	metricChunkDuration   = "codescout.engine.chunk.duration.seconds"
	metricRunDuration     = "codescout.engine.run.duration.seconds"
	metricRunEfficiency   = "codescout.engine.run.parallel.efficiency"
	metricRunPeakHeap     = "codescout.engine.run.peak.heap.bytes"

	attrOp     = "op"
	attrStatus = "status"

	statusError = "error"
)

// durationBucketBoundaries covers 10ms to 600s, spanning sub-second
// single-chunk runs up to whole-repository analyses.
var durationBucketBoundaries = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600}

// efficiencyBucketBoundaries covers the [0,1] efficiency ratio.
var efficiencyBucketBoundaries = []float64{0.1, 0.25, 0.5, 0.75, 0.9, 0.95, 1}

// metricBuilder accumulates OTel instrument creation errors,
// enabling batch construction with a single error check.
type metricBuilder struct {
	meter metric.Meter
	err   error
}

func newMetricBuilder(mt metric.Meter) *metricBuilder {
	return &metricBuilder{meter: mt}
}

// counter creates an Int64Counter instrument.
func (b *metricBuilder) counter(name, desc, unit string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	b.setErr(name, err)

	return c
}

// histogram creates a Float64Histogram instrument with optional explicit bucket boundaries.
func (b *metricBuilder) histogram(name, desc, unit string, bounds ...float64) metric.Float64Histogram {
	opts := []metric.Float64HistogramOption{
		metric.WithDescription(desc),
		metric.WithUnit(unit),
	}

	if len(bounds) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(bounds...))
	}

	h, err := b.meter.Float64Histogram(name, opts...)
	b.setErr(name, err)

	return h
}

// upDownCounter creates an Int64UpDownCounter instrument.
func (b *metricBuilder) upDownCounter(name, desc, unit string) metric.Int64UpDownCounter {
	c, err := b.meter.Int64UpDownCounter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	b.setErr(name, err)

	return c
}

// setErr records the first instrument creation error.
func (b *metricBuilder) setErr(name string, err error) {
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("create %s: %w", name, err)
	}
}

// REDMetrics holds the OTel instruments for Rate, Error, Duration metrics
// covering the tool's externally visible operations (CLI commands, MCP
// tool calls, watch rebuilds).
type REDMetrics struct {
	requestsTotal    metric.Int64Counter
	requestDuration  metric.Float64Histogram
	errorsTotal      metric.Int64Counter
	inflightRequests metric.Int64UpDownCounter
}

// NewREDMetrics creates RED metric instruments from the given meter.
func NewREDMetrics(mt metric.Meter) (*REDMetrics, error) {
	b := newMetricBuilder(mt)

	rm := &REDMetrics{
		requestsTotal:    b.counter(metricRequestsTotal, "Total number of requests", "{request}"),
		requestDuration:  b.histogram(metricRequestDuration, "Request duration in seconds", "s", durationBucketBoundaries...),
		errorsTotal:      b.counter(metricErrorsTotal, "Total number of errors", "{error}"),
		inflightRequests: b.upDownCounter(metricInflightRequests, "Number of in-flight requests", "{request}"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return rm, nil
}

// RecordRequest records a completed request with its operation, status, and duration.
func (rm *REDMetrics) RecordRequest(ctx context.Context, op, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String(attrOp, op),
		attribute.String(attrStatus, status),
	)

	rm.requestsTotal.Add(ctx, 1, attrs)
	rm.requestDuration.Record(ctx, duration.Seconds(), attrs)

	if status == statusError {
		rm.errorsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String(attrOp, op),
		))
	}
}

// TrackInflight increments the in-flight gauge and returns a function to decrement it.
func (rm *REDMetrics) TrackInflight(ctx context.Context, op string) func() {
	attrs := metric.WithAttributes(attribute.String(attrOp, op))
	rm.inflightRequests.Add(ctx, 1, attrs)

	return func() {
		rm.inflightRequests.Add(ctx, -1, attrs)
	}
}

// EngineMetrics holds OTel instruments for engine run statistics.
type EngineMetrics struct {
	chunksPlanned   metric.Int64Counter
	chunksCompleted metric.Int64Counter
	chunksFailed    metric.Int64Counter
	chunkDuration   metric.Float64Histogram
	runDuration     metric.Float64Histogram
	runEfficiency   metric.Float64Histogram
	runPeakHeap     metric.Float64Histogram
}

// EngineStats holds the statistics of a single engine run, decoupled
// from engine types.
type EngineStats struct {
	Planned            int
	Completed          int
	Failed             int
	ChunkDurations     []time.Duration
	WallClock          time.Duration
	ParallelEfficiency float64
	PeakHeapBytes      uint64
}

// NewEngineMetrics creates engine metric instruments from the given meter.
func NewEngineMetrics(mt metric.Meter) (*EngineMetrics, error) {
	b := newMetricBuilder(mt)

	em := &EngineMetrics{
		chunksPlanned:   b.counter(metricChunksPlanned, "Total chunks planned", "{chunk}"),
		chunksCompleted: b.counter(metricChunksCompleted, "Total chunks completed", "{chunk}"),
		chunksFailed:    b.counter(metricChunksFailed, "Total chunks permanently failed", "{chunk}"),
		chunkDuration:   b.histogram(metricChunkDuration, "Per-chunk processing duration in seconds", "s", durationBucketBoundaries...),
		runDuration:     b.histogram(metricRunDuration, "Whole-run wall clock in seconds", "s", durationBucketBoundaries...),
		runEfficiency:   b.histogram(metricRunEfficiency, "Parallel efficiency ratio per run", "1", efficiencyBucketBoundaries...),
		runPeakHeap:     b.histogram(metricRunPeakHeap, "Peak heap bytes observed per run", "By"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return em, nil
}

// RecordRun records statistics for a completed engine run.
// Safe to call on a nil receiver (no-op).
func (em *EngineMetrics) RecordRun(ctx context.Context, stats EngineStats) {
	if em == nil {
		return
	}

	em.chunksPlanned.Add(ctx, int64(stats.Planned))
	em.chunksCompleted.Add(ctx, int64(stats.Completed))
	em.chunksFailed.Add(ctx, int64(stats.Failed))

	for _, d := range stats.ChunkDurations {
		em.chunkDuration.Record(ctx, d.Seconds())
	}

	em.runDuration.Record(ctx, stats.WallClock.Seconds())
	em.runEfficiency.Record(ctx, stats.ParallelEfficiency)
	em.runPeakHeap.Record(ctx, float64(stats.PeakHeapBytes))
}
