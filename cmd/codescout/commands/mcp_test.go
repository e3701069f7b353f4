package commands

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codescout-dev/codescout/internal/mcp"
	"github.com/codescout-dev/codescout/internal/runner"
	"github.com/codescout-dev/codescout/pkg/config"
)

func TestPipelineRunner_AnalyzeCopiesConfig(t *testing.T) {
	t.Parallel()

	base := testConfig()

	var seen runner.Options

	pr := &pipelineRunner{
		cfg: base,
		run: func(_ context.Context, opts runner.Options) (*runner.Result, error) {
			seen = opts

			return sampleResult("/repo"), nil
		},
	}

	doc, err := pr.Analyze(context.Background(), mcp.AnalyzeRequest{
		Root:     "/repo",
		GitOnly:  true,
		MaxFiles: 100,
	})
	require.NoError(t, err)
	require.NotNil(t, doc)

	assert.Equal(t, "/repo", seen.Root)
	assert.Equal(t, 100, seen.MaxFiles)
	assert.True(t, seen.Config.Scan.GitOnly)

	// The per-call override must not leak into the base config.
	assert.False(t, base.Scan.GitOnly)
}

func TestPipelineRunner_PlanOverridesChunkTarget(t *testing.T) {
	t.Parallel()

	base := testConfig()

	var seen runner.Options

	pr := &pipelineRunner{
		cfg: base,
		plan: func(_ context.Context, opts runner.Options) (*runner.Result, error) {
			seen = opts

			return samplePlanResult(), nil
		},
	}

	summary, err := pr.Plan(context.Background(), mcp.PlanRequest{Root: "/repo", ChunkSizeTarget: 5})
	require.NoError(t, err)

	assert.Equal(t, 5, seen.Config.Engine.ChunkSizeTarget)
	assert.Equal(t, 20, base.Engine.ChunkSizeTarget)

	assert.Equal(t, 3, summary.Files)
	require.Len(t, summary.Chunks, 2)
	assert.Equal(t, "chunk-0", summary.Chunks[0].ID)
}

func TestPipelineRunner_PlanKeepsConfiguredTarget(t *testing.T) {
	t.Parallel()

	var seen runner.Options

	pr := &pipelineRunner{
		cfg: testConfig(),
		plan: func(_ context.Context, opts runner.Options) (*runner.Result, error) {
			seen = opts

			return samplePlanResult(), nil
		},
	}

	_, err := pr.Plan(context.Background(), mcp.PlanRequest{Root: "/repo"})
	require.NoError(t, err)

	// A zero target in the request means "use whatever is configured".
	assert.Equal(t, 20, seen.Config.Engine.ChunkSizeTarget)
}

func TestPipelineRunner_PropagatesErrors(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("boom")

	pr := &pipelineRunner{
		cfg: testConfig(),
		run: func(_ context.Context, _ runner.Options) (*runner.Result, error) {
			return nil, wantErr
		},
		plan: func(_ context.Context, _ runner.Options) (*runner.Result, error) {
			return nil, wantErr
		},
	}

	_, err := pr.Analyze(context.Background(), mcp.AnalyzeRequest{Root: "/repo"})
	assert.ErrorIs(t, err, wantErr)

	_, err = pr.Plan(context.Background(), mcp.PlanRequest{Root: "/repo"})
	assert.ErrorIs(t, err, wantErr)
}

func TestMCPCommand_ServesWithWiredDeps(t *testing.T) {
	t.Parallel()

	var seen mcp.ServerDeps

	served := false

	command := newMCPCommandWithDeps(
		stubConfigLoader(testConfig(), nil),
		noopObservabilityInit,
		func(_ context.Context, deps mcp.ServerDeps) error {
			seen = deps
			served = true

			return nil
		},
	)

	command.SetOut(io.Discard)
	command.SetErr(io.Discard)
	command.SetArgs([]string{})

	require.NoError(t, command.Execute())
	require.True(t, served)

	assert.NotNil(t, seen.Runner)
	assert.NotNil(t, seen.Metrics)
	assert.NotNil(t, seen.Tracer)
	assert.NotNil(t, seen.Logger)
}

func TestMCPCommand_PropagatesServeError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("transport closed")

	command := newMCPCommandWithDeps(
		stubConfigLoader(testConfig(), nil),
		noopObservabilityInit,
		func(_ context.Context, _ mcp.ServerDeps) error {
			return wantErr
		},
	)

	command.SetOut(io.Discard)
	command.SetErr(io.Discard)
	command.SetArgs([]string{})

	assert.ErrorIs(t, command.Execute(), wantErr)
}

func TestMCPCommand_ConfigLoadError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("bad config")

	command := newMCPCommandWithDeps(
		func(_ string) (*config.Config, error) { return nil, wantErr },
		noopObservabilityInit,
		func(_ context.Context, _ mcp.ServerDeps) error {
			t.Fatal("server should not start")

			return nil
		},
	)

	command.SetOut(io.Discard)
	command.SetErr(io.Discard)
	command.SetArgs([]string{})

	assert.ErrorIs(t, command.Execute(), wantErr)
}
