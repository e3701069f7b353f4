package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/codescout-dev/codescout/pkg/observability"
)

func setupTestMeter(t *testing.T) (*sdkmetric.MeterProvider, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	return mp, reader
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

func TestREDMetrics_RecordRequest(t *testing.T) {
	t.Parallel()

	mp, reader := setupTestMeter(t)

	red, err := observability.NewREDMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()

	red.RecordRequest(ctx, "analyze", "ok", 100*time.Millisecond)
	red.RecordRequest(ctx, "analyze", "error", time.Second)

	rm := collectMetrics(t, reader)

	total := findMetric(rm, "codescout.requests.total")
	require.NotNil(t, total)

	sum, ok := total.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	var count int64
	for _, dp := range sum.DataPoints {
		count += dp.Value
	}

	assert.Equal(t, int64(2), count)

	// The error status increments the error counter once.
	errs := findMetric(rm, "codescout.errors.total")
	require.NotNil(t, errs)

	errSum, ok := errs.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, errSum.DataPoints, 1)
	assert.Equal(t, int64(1), errSum.DataPoints[0].Value)
}

func TestREDMetrics_TrackInflight(t *testing.T) {
	t.Parallel()

	mp, reader := setupTestMeter(t)

	red, err := observability.NewREDMetrics(mp.Meter("test"))
	require.NoError(t, err)

	done := red.TrackInflight(context.Background(), "watch")

	rm := collectMetrics(t, reader)
	inflight := findMetric(rm, "codescout.inflight.requests")
	require.NotNil(t, inflight)

	sum, ok := inflight.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(1), sum.DataPoints[0].Value)

	done()

	rm = collectMetrics(t, reader)
	inflight = findMetric(rm, "codescout.inflight.requests")
	require.NotNil(t, inflight)

	sum, ok = inflight.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(0), sum.DataPoints[0].Value)
}

func TestEngineMetrics_RecordRun(t *testing.T) {
	t.Parallel()

	mp, reader := setupTestMeter(t)

	em, err := observability.NewEngineMetrics(mp.Meter("test"))
	require.NoError(t, err)

	em.RecordRun(context.Background(), observability.EngineStats{
		Planned:            5,
		Completed:          4,
		Failed:             1,
		ChunkDurations:     []time.Duration{time.Millisecond, 2 * time.Millisecond},
		WallClock:          10 * time.Millisecond,
		ParallelEfficiency: 0.8,
		PeakHeapBytes:      1 << 20,
	})

	rm := collectMetrics(t, reader)

	planned := findMetric(rm, "codescout.engine.chunks.planned.total")
	require.NotNil(t, planned)

	plannedSum, ok := planned.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, plannedSum.DataPoints, 1)
	assert.Equal(t, int64(5), plannedSum.DataPoints[0].Value)

	failed := findMetric(rm, "codescout.engine.chunks.failed.total")
	require.NotNil(t, failed)

	durations := findMetric(rm, "codescout.engine.chunk.duration.seconds")
	require.NotNil(t, durations)

	hist, ok := durations.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
}

func TestEngineMetrics_NilReceiverIsNoop(t *testing.T) {
	t.Parallel()

	var em *observability.EngineMetrics

	// Must not panic.
	em.RecordRun(context.Background(), observability.EngineStats{Planned: 1})
}
