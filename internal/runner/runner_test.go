package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codescout-dev/codescout/internal/profile"
	"github.com/codescout-dev/codescout/pkg/config"
	"github.com/codescout-dev/codescout/pkg/engine"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Engine: config.EngineConfig{
			ChunkSizeTarget:  4,
			BaseWeight:       1.0,
			DependencyLimit:  8,
			MediumComplexity: 10,
			HighComplexity:   25,
			MaxWorkers:       2,
			RetryAttempts:    1,
		},
		Scan: config.ScanConfig{
			MaxFileSize: "1MB",
		},
	}
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()

	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func fixtureRepo(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc main() {}\n")
	writeFile(t, root, "src/a.ts", "import { store } from './b'\n\nexport function load() {\n\treturn store\n}\n")
	writeFile(t, root, "src/b.ts", "export class Store {}\n")

	return root
}

func TestRun_ProducesDocument(t *testing.T) {
	t.Parallel()

	root := fixtureRepo(t)

	res, err := Run(context.Background(), Options{
		Root:   root,
		Config: testConfig(),
		Logger: discardLogger(),
	})
	require.NoError(t, err)
	require.NotNil(t, res.Document)

	doc := res.Document
	assert.Equal(t, root, doc.Root)
	assert.Equal(t, 3, doc.Summary.Files)
	assert.Equal(t, len(res.Chunks), doc.Summary.Chunks)
	assert.Equal(t, doc.Summary.Chunks, doc.Performance.CompletedChunks)
	assert.Empty(t, doc.Failures)

	// One node per file plus the extracted symbols.
	assert.GreaterOrEqual(t, doc.Summary.Nodes, 3)
	assert.GreaterOrEqual(t, doc.Summary.Edges, 1)

	// Sizes resolve against the root, so every chunk carries bytes, and
	// completion events carry every chunk's duration into the document.
	for _, c := range doc.Chunks {
		assert.Positive(t, c.SizeBytes)
		assert.Positive(t, c.Duration)
	}
}

func TestRun_ForwardsHooks(t *testing.T) {
	t.Parallel()

	root := fixtureRepo(t)

	var completions int

	var lastPercent float64

	_, err := Run(context.Background(), Options{
		Root:   root,
		Config: testConfig(),
		Logger: discardLogger(),
		Hooks: engine.EventHooks{
			ChunkComplete: func(engine.AnalysisResult) { completions++ },
			Progress:      func(_ string, percent float64) { lastPercent = percent },
		},
	})
	require.NoError(t, err)

	assert.Positive(t, completions)
	assert.InDelta(t, 100.0, lastPercent, 1e-9)
}

func TestRun_MaxFilesGuard(t *testing.T) {
	t.Parallel()

	root := fixtureRepo(t)

	res, err := Run(context.Background(), Options{
		Root:     root,
		Config:   testConfig(),
		MaxFiles: 1,
		Logger:   discardLogger(),
	})
	require.ErrorIs(t, err, ErrTooManyFiles)
	assert.Nil(t, res)
}

func TestRun_NilConfig(t *testing.T) {
	t.Parallel()

	_, err := Run(context.Background(), Options{Root: t.TempDir()})
	require.ErrorIs(t, err, ErrNilConfig)
}

func TestRun_InvalidMaxFileSize(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Scan.MaxFileSize = "a lot"

	_, err := Run(context.Background(), Options{
		Root:   fixtureRepo(t),
		Config: cfg,
		Logger: discardLogger(),
	})
	require.ErrorIs(t, err, config.ErrInvalidMaxFileSize)
}

func TestRun_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, Options{
		Root:   fixtureRepo(t),
		Config: testConfig(),
		Logger: discardLogger(),
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRun_ProfileFromOptions(t *testing.T) {
	t.Parallel()

	root := fixtureRepo(t)
	one := 1

	res, err := Run(context.Background(), Options{
		Root:    root,
		Config:  testConfig(),
		Profile: &profile.Profile{Name: "one-per-chunk", ChunkSizeTarget: &one},
		Logger:  discardLogger(),
	})
	require.NoError(t, err)

	// A target of one file per chunk splits the three fixture files apart.
	assert.Len(t, res.Chunks, 3)
}

func TestRun_ProfileFromConfig(t *testing.T) {
	t.Parallel()

	root := fixtureRepo(t)

	profDir := t.TempDir()
	profPath := filepath.Join(profDir, "tight.yaml")
	require.NoError(t, os.WriteFile(profPath, []byte("name: tight\nchunkSizeTarget: 1\n"), 0o644))

	cfg := testConfig()
	cfg.Engine.Profile = profPath

	res, err := Run(context.Background(), Options{
		Root:   root,
		Config: cfg,
		Logger: discardLogger(),
	})
	require.NoError(t, err)
	assert.Len(t, res.Chunks, 3)
}

func TestRun_InvalidProfileFromConfig(t *testing.T) {
	t.Parallel()

	profDir := t.TempDir()
	profPath := filepath.Join(profDir, "broken.yaml")
	require.NoError(t, os.WriteFile(profPath, []byte("chunkSizeTarget: 1\n"), 0o644))

	cfg := testConfig()
	cfg.Engine.Profile = profPath

	_, err := Run(context.Background(), Options{
		Root:   fixtureRepo(t),
		Config: cfg,
		Logger: discardLogger(),
	})
	require.ErrorIs(t, err, profile.ErrInvalidProfile)
}

func TestPlan_PreviewOnly(t *testing.T) {
	t.Parallel()

	root := fixtureRepo(t)

	res, err := Plan(context.Background(), Options{
		Root:   root,
		Config: testConfig(),
		Logger: discardLogger(),
	})
	require.NoError(t, err)

	assert.Nil(t, res.Document)
	assert.Len(t, res.Scan.Files, 3)
	require.NotEmpty(t, res.Chunks)

	covered := 0
	for _, c := range res.Chunks {
		covered += len(c.Files)
	}

	assert.Equal(t, 3, covered)
}

func TestCollector_FailureCarriesPlanChunk(t *testing.T) {
	t.Parallel()

	var gotID string

	var gotErr error

	coll := newCollector(engine.EventHooks{
		ChunkError: func(chunkID string, err error) {
			gotID = chunkID
			gotErr = err
		},
	}, 2)
	coll.setPlan([]engine.Chunk{{ID: "chunk-0", Files: []string{"a.go", "b.go"}}})

	errBoom := errors.New("boom")
	coll.fail("chunk-0", errBoom)

	require.Len(t, coll.failures, 1)
	failure := coll.failures[0]
	assert.Equal(t, "chunk-0", failure.Chunk.ID)
	assert.Equal(t, []string{"a.go", "b.go"}, failure.Chunk.Files)
	// Two retries mean three attempts in total.
	assert.Equal(t, 3, failure.Attempts)
	assert.Equal(t, errBoom, failure.LastErr)

	// The caller's hook still fires.
	assert.Equal(t, "chunk-0", gotID)
	assert.Equal(t, errBoom, gotErr)
}

func TestCollector_RecordsDurations(t *testing.T) {
	t.Parallel()

	coll := newCollector(engine.EventHooks{}, 0)
	coll.complete(engine.AnalysisResult{ChunkID: "chunk-1", ProcessingTime: 40 * time.Millisecond})

	assert.Equal(t, 40*time.Millisecond, coll.durations["chunk-1"])
}

func TestEngineConfig_ResolvesWorkersAndSizer(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "src/a.ts", "export {}\n")

	cfg := testConfig()
	cfg.Engine.MaxWorkers = 0

	weight := 2.5
	ec := engineConfig(cfg, &profile.Profile{Name: "heavy", BaseWeight: &weight}, root)

	assert.GreaterOrEqual(t, ec.Pool.MaxWorkers, 1)
	assert.InDelta(t, 2.5, ec.Planner.BaseWeight, 1e-9)

	size, err := ec.Planner.FileSizer("src/a.ts")
	require.NoError(t, err)
	assert.Equal(t, int64(10), size)
}
