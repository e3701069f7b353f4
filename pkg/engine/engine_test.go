package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// repoFixture is a small two-directory layout whose SameDirLookup
// relations split cleanly into two chunks at target 2.
var repoFixture = map[string]int64{
	"api/handler.go": 4_000,
	"api/routes.go":  3_000,
	"db/store.go":    5_000,
	"db/migrate.go":  2_000,
}

func fixtureFiles() []string {
	return []string{"api/handler.go", "api/routes.go", "db/store.go", "db/migrate.go"}
}

func fixtureConfig() Config {
	cfg := DefaultConfig()
	cfg.Planner.ChunkSizeTarget = 2
	cfg.Planner.FileSizer = sizerFromMap(repoFixture)
	cfg.Pool.MaxWorkers = 2

	return cfg
}

// graphAnalyze emits one node per file plus a shared root node, so any
// multi-chunk run produces exactly one cross-chunk node collision.
func graphAnalyze(_ context.Context, chunk Chunk) (AnalysisResult, error) {
	res := AnalysisResult{ChunkID: chunk.ID}

	for _, file := range chunk.Files {
		res.Nodes = append(res.Nodes, GraphNode{
			ID:   "file:" + file,
			Type: "file",
			Name: file,
		})
		res.Edges = append(res.Edges, GraphEdge{
			Source: "file:" + file,
			Target: "repo:root",
			Type:   "member",
		})
	}

	res.Nodes = append(res.Nodes, GraphNode{
		ID:         "repo:root",
		Type:       "repository",
		Name:       "root",
		Properties: map[string]any{"writer": chunk.ID},
	})
	res.Patterns = append(res.Patterns, Pattern{
		Type:       "layout",
		Name:       "flat",
		File:       "",
		Confidence: 0.5 + 0.1*float64(len(chunk.Files)),
	})
	res.Metrics.FilesProcessed = len(chunk.Files)

	return res, nil
}

func TestEngine_New_RequiresAnalyze(t *testing.T) {
	t.Parallel()

	_, err := New(DefaultConfig(), Deps{})

	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestEngine_New_RejectsBadPlanner(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Planner.ChunkSizeTarget = 0

	_, err := New(cfg, Deps{Analyze: graphAnalyze})

	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestEngine_New_RejectsBadPool(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Pool.MaxWorkers = 0

	_, err := New(cfg, Deps{Analyze: graphAnalyze})

	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestEngine_Analyze_EmptyInput(t *testing.T) {
	t.Parallel()

	e, err := New(fixtureConfig(), Deps{Analyze: graphAnalyze, Logger: discardLogger()})
	require.NoError(t, err)

	combined, report, err := e.Analyze(context.Background(), nil)

	require.NoError(t, err)
	assert.NotNil(t, combined.Nodes)
	assert.Zero(t, combined.TotalNodes)
	assert.Zero(t, report.TotalChunks)
}

func TestEngine_Plan_DoesNotExecute(t *testing.T) {
	t.Parallel()

	invoked := false
	analyze := func(ctx context.Context, chunk Chunk) (AnalysisResult, error) {
		invoked = true

		return graphAnalyze(ctx, chunk)
	}

	e, err := New(fixtureConfig(), Deps{Analyze: analyze, Logger: discardLogger()})
	require.NoError(t, err)

	chunks := e.Plan(fixtureFiles())

	require.Len(t, chunks, 2)
	assert.False(t, invoked)
}

func TestEngine_Analyze_EndToEnd(t *testing.T) {
	t.Parallel()

	var (
		completed []string
		lastPct   float64
	)
	hooks := EventHooks{
		ChunkComplete: func(res AnalysisResult) { completed = append(completed, res.ChunkID) },
		Progress:      func(_ string, pct float64) { lastPct = pct },
	}

	e, err := New(fixtureConfig(), Deps{Analyze: graphAnalyze, Hooks: hooks, Logger: discardLogger()})
	require.NoError(t, err)

	combined, report, err := e.Analyze(context.Background(), fixtureFiles())
	require.NoError(t, err)

	// Four file nodes plus the shared root node, merged across chunks.
	assert.Equal(t, 5, combined.TotalNodes)
	assert.Equal(t, 4, combined.TotalEdges)
	assert.Equal(t, 1, combined.TotalPatterns)

	require.Len(t, combined.Conflicts, 1)
	assert.Equal(t, ConflictNode, combined.Conflicts[0].Kind)
	assert.Equal(t, "repo:root", combined.Conflicts[0].EntityID)
	assert.Len(t, combined.Conflicts[0].ConflictingChunks, 2)

	winner, ok := combined.Nodes["repo:root"].Properties["writer"].(string)
	require.True(t, ok)
	assert.Contains(t, combined.Conflicts[0].ConflictingChunks, winner)

	assert.Positive(t, combined.MemoryUsage, "peak heap is stamped after the run")

	assert.Equal(t, 2, report.TotalChunks)
	assert.Equal(t, 2, report.CompletedChunks)
	assert.InDelta(t, 1.0, report.ParallelEfficiency, 1e-3)
	assert.Len(t, report.ChunkDurations, 2)

	assert.ElementsMatch(t, []string{"chunk-0", "chunk-1"}, completed,
		"caller hooks still fire behind the tracker tap")
	assert.InDelta(t, 100.0, lastPct, 1e-9)
}

func TestEngine_Analyze_FailedChunkExcludedFromMerge(t *testing.T) {
	t.Parallel()

	boom := errors.New("parser crashed")
	analyze := func(ctx context.Context, chunk Chunk) (AnalysisResult, error) {
		for _, file := range chunk.Files {
			if strings.HasPrefix(file, "db/") {
				return AnalysisResult{}, boom
			}
		}

		return graphAnalyze(ctx, chunk)
	}

	var failures []string
	hooks := EventHooks{
		ChunkError: func(chunkID string, _ error) { failures = append(failures, chunkID) },
	}

	cfg := fixtureConfig()
	cfg.Pool.RetryAttempts = 1

	e, err := New(cfg, Deps{Analyze: analyze, Hooks: hooks, Logger: discardLogger()})
	require.NoError(t, err)

	combined, report, err := e.Analyze(context.Background(), fixtureFiles())

	require.NoError(t, err, "chunk failures are isolated, not run failures")

	// Only the api chunk contributes: two file nodes plus the root.
	assert.Equal(t, 3, combined.TotalNodes)

	for id := range combined.Nodes {
		assert.NotContains(t, id, "db/")
	}

	require.Len(t, failures, 1)
	assert.Equal(t, 1, report.CompletedChunks)
	assert.Equal(t, 2, report.TotalChunks)
}

func TestEngine_Analyze_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e, err := New(fixtureConfig(), Deps{Analyze: graphAnalyze, Logger: discardLogger()})
	require.NoError(t, err)

	combined, report, runErr := e.Analyze(ctx, fixtureFiles())

	require.ErrorIs(t, runErr, context.Canceled)
	assert.Nil(t, combined.Nodes, "no merged output on a canceled run")
	assert.Equal(t, 2, report.TotalChunks, "the report survives cancellation")
}

func TestEngine_Analyze_WorkerStartupFailure(t *testing.T) {
	t.Parallel()

	e, err := New(fixtureConfig(), Deps{Analyze: graphAnalyze, Logger: discardLogger()})
	require.NoError(t, err)

	startupErr := errors.New("no capacity")
	e.pool.spawn = func(ctx context.Context, id, depth int, analyze AnalyzeChunk, completions chan<- workerDone) (*worker, error) {
		if id == 1 {
			return nil, startupErr
		}

		return spawnWorker(ctx, id, depth, analyze, completions)
	}

	combined, _, runErr := e.Analyze(context.Background(), fixtureFiles())

	require.ErrorIs(t, runErr, ErrWorkerStartup)
	require.ErrorIs(t, runErr, startupErr)
	assert.Nil(t, combined.Nodes)
}

func TestEngine_ReusableAcrossRuns(t *testing.T) {
	t.Parallel()

	e, err := New(fixtureConfig(), Deps{Analyze: graphAnalyze, Logger: discardLogger()})
	require.NoError(t, err)

	for i := range 3 {
		combined, report, runErr := e.Analyze(context.Background(), fixtureFiles())

		require.NoError(t, runErr, "run %d", i)
		assert.Equal(t, 5, combined.TotalNodes, "run %d", i)
		assert.Equal(t, 2, report.CompletedChunks, "run %d", i)
	}
}

func TestEngine_Analyze_SlowChunks_TimingIsCoherent(t *testing.T) {
	t.Parallel()

	analyze := func(ctx context.Context, chunk Chunk) (AnalysisResult, error) {
		time.Sleep(5 * time.Millisecond)

		return graphAnalyze(ctx, chunk)
	}

	e, err := New(fixtureConfig(), Deps{Analyze: analyze, Logger: discardLogger()})
	require.NoError(t, err)

	_, report, runErr := e.Analyze(context.Background(), fixtureFiles())
	require.NoError(t, runErr)

	assert.GreaterOrEqual(t, report.WallClock, 5*time.Millisecond)
	assert.Equal(t, report.WallClock/2, report.AverageChunkTime)

	for i, d := range report.ChunkDurations {
		assert.GreaterOrEqual(t, d, 5*time.Millisecond, fmt.Sprintf("chunk %d", i))
	}
}
