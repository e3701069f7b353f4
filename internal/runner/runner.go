// Package runner composes scanning, analysis and reporting into the
// single pipeline behind the CLI commands, the MCP tools and watch
// mode: discover files, plan chunks, run the engine, build a report
// document.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/codescout-dev/codescout/internal/analyzer"
	"github.com/codescout-dev/codescout/internal/profile"
	"github.com/codescout-dev/codescout/internal/report"
	"github.com/codescout-dev/codescout/internal/scan"
	"github.com/codescout-dev/codescout/pkg/config"
	"github.com/codescout-dev/codescout/pkg/engine"
	"github.com/codescout-dev/codescout/pkg/observability"
)

// Sentinel errors returned before any analysis work starts.
var (
	ErrNilConfig    = errors.New("config must not be nil")
	ErrTooManyFiles = errors.New("scan found more files than the configured limit")
)

// Options configures one pipeline invocation.
type Options struct {
	// Root is the repository directory to analyze.
	Root string

	// Config supplies scan and engine tuning. Required.
	Config *config.Config

	// Profile optionally overrides planner parameters. When nil and
	// Config.Engine.Profile names a file, that file is loaded instead.
	Profile *profile.Profile

	// MaxFiles aborts the run when the scan finds more files than this.
	// Zero means unlimited.
	MaxFiles int

	// Hooks receives engine scheduler events in addition to the
	// runner's own collectors.
	Hooks engine.EventHooks

	// Metrics optionally records run statistics. Nil disables recording.
	Metrics *observability.EngineMetrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Result carries everything one pipeline invocation produced.
type Result struct {
	// Document is the report built from a full run. Nil for plan-only
	// invocations.
	Document *report.Document

	// Scan is the file discovery outcome.
	Scan scan.Result

	// Chunks is the executed (or previewed) chunk plan.
	Chunks []engine.Chunk
}

// Run scans the repository, analyzes every chunk across the worker pool
// and builds the report document. Permanently failed chunks appear in
// the document, not in the returned error; the error is reserved for
// conditions that stop the run as a whole.
func Run(ctx context.Context, opts Options) (*Result, error) {
	p, err := prepare(ctx, opts)
	if err != nil {
		return nil, err
	}

	// Planning is deterministic for a fixed file list, so this preview
	// plan matches the plan Analyze executes.
	chunks := p.eng.Plan(p.scan.Files)
	p.coll.setPlan(chunks)

	combined, perf, runErr := p.eng.Analyze(ctx, p.scan.Files)

	opts.Metrics.RecordRun(ctx, observability.EngineStats{
		Planned:            perf.TotalChunks,
		Completed:          perf.CompletedChunks,
		Failed:             len(p.coll.failures),
		ChunkDurations:     perf.ChunkDurations,
		WallClock:          perf.WallClock,
		ParallelEfficiency: perf.ParallelEfficiency,
		PeakHeapBytes:      perf.PeakHeapBytes,
	})

	if runErr != nil {
		return nil, fmt.Errorf("analysis run: %w", runErr)
	}

	doc := report.Build(report.BuildInput{
		Root:      p.root,
		Files:     len(p.scan.Files),
		Chunks:    chunks,
		Combined:  combined,
		Perf:      perf,
		Failures:  p.coll.failures,
		Durations: p.coll.durations,
	})

	return &Result{Document: doc, Scan: p.scan, Chunks: chunks}, nil
}

// Plan scans the repository and returns the chunk plan without
// executing it.
func Plan(ctx context.Context, opts Options) (*Result, error) {
	p, err := prepare(ctx, opts)
	if err != nil {
		return nil, err
	}

	return &Result{Scan: p.scan, Chunks: p.eng.Plan(p.scan.Files)}, nil
}

// pipeline bundles the pieces Run and Plan share.
type pipeline struct {
	root string
	scan scan.Result
	eng  *engine.Engine
	coll *collector
}

// prepare resolves the root, scans it and assembles a configured
// engine around the default analyzer.
func prepare(ctx context.Context, opts Options) (*pipeline, error) {
	if opts.Config == nil {
		return nil, ErrNilConfig
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	scanOpts, err := scanOptions(opts.Config, root, logger)
	if err != nil {
		return nil, err
	}

	scanRes, err := scan.Files(ctx, scanOpts)
	if err != nil {
		return nil, fmt.Errorf("scan repository: %w", err)
	}

	if opts.MaxFiles > 0 && len(scanRes.Files) > opts.MaxFiles {
		return nil, fmt.Errorf("%w: %d files (limit %d)", ErrTooManyFiles, len(scanRes.Files), opts.MaxFiles)
	}

	prof, err := resolveProfile(opts)
	if err != nil {
		return nil, err
	}

	an := analyzer.New(root, logger)
	coll := newCollector(opts.Hooks, opts.Config.Engine.RetryAttempts)

	eng, err := engine.New(engineConfig(opts.Config, prof, root), engine.Deps{
		Analyze: an.AnalyzeChunk,
		Lookup:  an.Lookup,
		Hooks:   coll.hooks(),
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	return &pipeline{root: root, scan: scanRes, eng: eng, coll: coll}, nil
}

// scanOptions maps the scan section of the config onto scan.Options.
func scanOptions(cfg *config.Config, root string, logger *slog.Logger) (scan.Options, error) {
	maxSize, err := cfg.MaxFileSizeBytes()
	if err != nil {
		return scan.Options{}, err
	}

	return scan.Options{
		Root:        root,
		MaxFileSize: maxSize,
		ExcludeDirs: cfg.Scan.ExcludeDirs,
		Extensions:  cfg.Scan.Extensions,
		GitOnly:     cfg.Scan.GitOnly,
		Logger:      logger,
	}, nil
}

// resolveProfile picks the injected profile over the config-referenced
// one.
func resolveProfile(opts Options) (*profile.Profile, error) {
	if opts.Profile != nil {
		return opts.Profile, nil
	}

	if opts.Config.Engine.Profile == "" {
		return nil, nil
	}

	return profile.Load(opts.Config.Engine.Profile)
}

// engineConfig builds the engine configuration from defaults, the
// config file knobs and an optional profile, in rising precedence. The
// file sizer resolves the scanner's root-relative paths against root.
func engineConfig(cfg *config.Config, prof *profile.Profile, root string) engine.Config {
	ec := engine.DefaultConfig()

	ec.Planner.ChunkSizeTarget = cfg.Engine.ChunkSizeTarget
	ec.Planner.BaseWeight = cfg.Engine.BaseWeight
	ec.Planner.DependencyLimit = cfg.Engine.DependencyLimit
	ec.Planner.MediumComplexity = cfg.Engine.MediumComplexity
	ec.Planner.HighComplexity = cfg.Engine.HighComplexity

	if prof != nil {
		ec.Planner = prof.Apply(ec.Planner)
	}

	ec.Planner.FileSizer = func(path string) (int64, error) {
		info, err := os.Stat(filepath.Join(root, filepath.FromSlash(path)))
		if err != nil {
			return 0, err
		}

		return info.Size(), nil
	}

	ec.Pool.RetryAttempts = cfg.Engine.RetryAttempts

	ec.Pool.MaxWorkers = cfg.Engine.MaxWorkers
	if ec.Pool.MaxWorkers == 0 {
		ec.Pool.MaxWorkers = max(runtime.NumCPU(), 1)
	}

	return ec
}

// collector gathers per-chunk durations and permanent failures from
// engine hooks and forwards each event to the caller's hooks. Hooks
// fire on the pool's coordinator goroutine, so plain maps suffice.
type collector struct {
	caller    engine.EventHooks
	retries   int
	byID      map[string]engine.Chunk
	durations map[string]time.Duration
	failures  []engine.FailedChunk
}

func newCollector(caller engine.EventHooks, retries int) *collector {
	return &collector{
		caller:    caller,
		retries:   retries,
		durations: make(map[string]time.Duration),
	}
}

// setPlan indexes the chunk plan so failures can be mapped back to
// their chunks. Must be called before the run starts.
func (c *collector) setPlan(chunks []engine.Chunk) {
	c.byID = make(map[string]engine.Chunk, len(chunks))
	for _, ch := range chunks {
		c.byID[ch.ID] = ch
	}
}

func (c *collector) hooks() engine.EventHooks {
	return engine.EventHooks{
		ChunkComplete: c.complete,
		ChunkError:    c.fail,
		Progress:      c.caller.Progress,
	}
}

func (c *collector) complete(res engine.AnalysisResult) {
	c.durations[res.ChunkID] = res.ProcessingTime

	if c.caller.ChunkComplete != nil {
		c.caller.ChunkComplete(res)
	}
}

func (c *collector) fail(chunkID string, err error) {
	// A permanently failed chunk was attempted retries+1 times.
	c.failures = append(c.failures, engine.FailedChunk{
		Chunk:    c.byID[chunkID],
		Attempts: c.retries + 1,
		LastErr:  err,
	})

	if c.caller.ChunkError != nil {
		c.caller.ChunkError(chunkID, err)
	}
}
