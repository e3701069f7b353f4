package engine

import (
	"runtime"
	"slices"
	"sync"
	"time"
)

// PerformanceReport is the tracker's read-only output for a run. It
// feeds reporting only; nothing here loops back into scheduling.
type PerformanceReport struct {
	TotalChunks     int           `json:"totalChunks"`
	CompletedChunks int           `json:"completedChunks"`
	WallClock       time.Duration `json:"wallClock"`

	// AverageChunkTime is wall-clock elapsed divided by completed count,
	// an overall-throughput figure rather than the mean of per-chunk
	// processing times. ChunkDurations carries the raw per-chunk values
	// for consumers that want the true mean.
	AverageChunkTime time.Duration `json:"averageChunkTime"`

	// ParallelEfficiency is ideal (fully parallel) time over observed
	// wall-clock time, clamped to [0,1]. Zero when nothing completed.
	ParallelEfficiency float64 `json:"parallelEfficiency"`

	// PeakHeapBytes is the highest heap sample observed at completion
	// events.
	PeakHeapBytes uint64 `json:"peakHeapBytes"`

	// ChunkDurations lists successful chunks' own processing times in
	// completion order.
	ChunkDurations []time.Duration `json:"chunkDurations,omitempty"`
}

// PerformanceTracker captures wall-clock timing, completion counts and
// heap peaks for one run at a time. Safe for concurrent use.
type PerformanceTracker struct {
	mu        sync.Mutex
	total     int
	completed int
	started   time.Time
	finished  time.Time
	peakHeap  uint64
	durations []time.Duration
}

// NewPerformanceTracker returns an idle tracker.
func NewPerformanceTracker() *PerformanceTracker {
	return &PerformanceTracker{}
}

// Begin resets the tracker and starts the wall clock for a run of
// totalChunks.
func (t *PerformanceTracker) Begin(totalChunks int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.total = totalChunks
	t.completed = 0
	t.started = time.Now()
	t.finished = time.Time{}
	t.peakHeap = 0
	t.durations = nil
}

// RecordCompletion counts one successful chunk and samples the heap.
func (t *PerformanceTracker) RecordCompletion(d time.Duration) {
	var ms runtime.MemStats

	runtime.ReadMemStats(&ms)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.completed++
	t.durations = append(t.durations, d)

	if ms.HeapAlloc > t.peakHeap {
		t.peakHeap = ms.HeapAlloc
	}
}

// Finish stops the wall clock.
func (t *PerformanceTracker) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.finished = time.Now()
}

// PeakHeapBytes returns the last sampled heap peak.
func (t *PerformanceTracker) PeakHeapBytes() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.peakHeap
}

// Report derives the aggregate metrics. Before Finish it reports against
// the running wall clock, so mid-run reads are valid.
func (t *PerformanceTracker) Report() PerformanceReport {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := t.elapsedLocked()

	avg := elapsed / time.Duration(max(t.completed, 1))

	efficiency := 0.0
	if t.completed > 0 && elapsed > 0 {
		ideal := avg.Seconds() * float64(t.total)
		efficiency = clamp(ideal/elapsed.Seconds(), 0, 1)
	}

	return PerformanceReport{
		TotalChunks:        t.total,
		CompletedChunks:    t.completed,
		WallClock:          elapsed,
		AverageChunkTime:   avg,
		ParallelEfficiency: efficiency,
		PeakHeapBytes:      t.peakHeap,
		ChunkDurations:     slices.Clone(t.durations),
	}
}

// elapsedLocked is the wall-clock duration: finish minus start once
// finished, time since start mid-run, zero before Begin.
func (t *PerformanceTracker) elapsedLocked() time.Duration {
	switch {
	case t.started.IsZero():
		return 0
	case t.finished.IsZero():
		return time.Since(t.started)
	default:
		return t.finished.Sub(t.started)
	}
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}
