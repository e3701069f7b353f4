// Package engine implements the chunked parallel analysis pipeline: a
// dependency-aware chunk planner, a bounded worker pool with retry and
// failure isolation, a deterministic result merger, and a performance
// tracker.
//
// The engine performs no parsing and no direct I/O of its own beyond the
// planner's file-size probes. Callers supply an AnalyzeChunk capability
// and, optionally, a DependencyLookup; the engine plans, schedules,
// merges, and reports.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Config bundles the planner and pool parameters for one engine.
type Config struct {
	Planner PlannerConfig
	Pool    PoolConfig
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Planner: DefaultPlannerConfig(),
		Pool:    DefaultPoolConfig(),
	}
}

// Deps carries the engine's collaborators. Analyze is required;
// everything else defaults sensibly.
type Deps struct {
	// Analyze is the per-chunk analysis capability. Required.
	Analyze AnalyzeChunk

	// Lookup resolves file dependencies for planning. Nil falls back to
	// SameDirLookup.
	Lookup DependencyLookup

	// Hooks receives scheduler events.
	Hooks EventHooks

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Engine wires planner, pool, merger and tracker into one run loop.
type Engine struct {
	planner *Planner
	pool    *Pool
	tracker *PerformanceTracker
	deps    Deps
	logger  *slog.Logger
}

// New validates cfg eagerly and assembles an engine. Invalid parameters
// are rejected here, before any work starts.
func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Analyze == nil {
		return nil, fmt.Errorf("%w: analyze capability is required", ErrInvalidConfig)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	planner, err := NewPlanner(cfg.Planner)
	if err != nil {
		return nil, err
	}

	tracker := NewPerformanceTracker()

	// The tracker taps completions before the caller's hook runs.
	hooks := EventHooks{
		ChunkComplete: func(res AnalysisResult) {
			tracker.RecordCompletion(res.ProcessingTime)
			deps.Hooks.emitComplete(res)
		},
		ChunkError: deps.Hooks.ChunkError,
		Progress:   deps.Hooks.Progress,
	}

	pool, err := NewPool(cfg.Pool, PoolDeps{Hooks: hooks, Logger: logger})
	if err != nil {
		return nil, err
	}

	return &Engine{
		planner: planner,
		pool:    pool,
		tracker: tracker,
		deps:    deps,
		logger:  logger,
	}, nil
}

// Plan returns the chunk plan for files without executing it.
func (e *Engine) Plan(files []string) []Chunk {
	return e.planner.CreateChunks(files, e.deps.Lookup)
}

// Analyze plans chunks for files, runs them across the pool, merges the
// successful results and stamps tracker metrics into the combined
// output. The PerformanceReport is valid even when an error is returned.
func (e *Engine) Analyze(ctx context.Context, files []string) (CombinedResult, PerformanceReport, error) {
	planStart := time.Now()
	chunks := e.planner.CreateChunks(files, e.deps.Lookup)

	e.logger.Info("chunk plan ready",
		slog.Int("files", len(files)),
		slog.Int("chunks", len(chunks)),
		slog.Duration("took", time.Since(planStart)))

	e.tracker.Begin(len(chunks))

	results, err := e.pool.RunParallel(ctx, chunks, e.deps.Analyze)

	e.tracker.Finish()

	if err != nil {
		return CombinedResult{}, e.tracker.Report(), err
	}

	combined := Merge(results)
	combined.MemoryUsage = e.tracker.PeakHeapBytes()

	report := e.tracker.Report()

	e.logger.Info("analysis run complete",
		slog.Int("chunks", len(chunks)),
		slog.Int("succeeded", len(results)),
		slog.Int("nodes", combined.TotalNodes),
		slog.Int("edges", combined.TotalEdges),
		slog.Int("patterns", combined.TotalPatterns),
		slog.Int("conflicts", len(combined.Conflicts)),
		slog.Duration("wallClock", report.WallClock))

	return combined, report, nil
}
