package engine

import "errors"

// Sentinel errors for the four failure classes the engine distinguishes.
// Chunk-level errors stay local to the scheduler and never abort a run;
// configuration and worker-startup errors are rejected eagerly and are
// fatal to the whole call.
var (
	// ErrInvalidConfig reports construction parameters rejected before
	// any work starts.
	ErrInvalidConfig = errors.New("invalid engine configuration")

	// ErrWorkerStartup reports that an execution slot could not be
	// created. It aborts the run; in-flight work is not salvaged.
	ErrWorkerStartup = errors.New("worker startup failed")

	// ErrChunkProcessing marks a recoverable per-chunk failure. The
	// scheduler retries it up to the configured budget, then isolates
	// the chunk as permanently failed.
	ErrChunkProcessing = errors.New("chunk processing failed")

	// ErrAnalyzePanic wraps a panic recovered from the analysis
	// capability. It is treated as an ordinary chunk failure.
	ErrAnalyzePanic = errors.New("analysis capability panicked")
)
