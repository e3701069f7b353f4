package commands

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/codescout-dev/codescout/internal/mcp"
	"github.com/codescout-dev/codescout/internal/report"
	"github.com/codescout-dev/codescout/internal/runner"
	"github.com/codescout-dev/codescout/pkg/config"
	"github.com/codescout-dev/codescout/pkg/observability"
)

// mcpServe starts the MCP server and blocks until ctx is done.
type mcpServe func(ctx context.Context, deps mcp.ServerDeps) error

// MCPCommand holds configuration and dependencies for the MCP server command.
type MCPCommand struct {
	configPath string
	debug      bool

	loadCfg configLoader
	obsInit observabilityInitializer
	serve   mcpServe
}

// NewMCPCommand creates the MCP server command.
func NewMCPCommand() *cobra.Command {
	return newMCPCommandWithDeps(config.LoadConfig, observability.Init, serveMCP)
}

func newMCPCommandWithDeps(loadCfg configLoader, obsInit observabilityInitializer, serve mcpServe) *cobra.Command {
	mc := &MCPCommand{loadCfg: loadCfg, obsInit: obsInit, serve: serve}

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

The MCP server exposes codescout analysis capabilities as tools that AI
agents can discover and invoke:
  - analyze_repository: Full chunked analysis of a repository
  - plan_chunks: Preview the chunk plan without analyzing`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          mc.run,
	}

	cmd.Flags().StringVarP(&mc.configPath, "config", "c", "", "Config file (default: codescout.yaml in search paths)")
	cmd.Flags().BoolVar(&mc.debug, "debug", false, "Enable debug logging to stderr")

	return cmd
}

func (mc *MCPCommand) run(cmd *cobra.Command, _ []string) error {
	cfg, err := mc.loadCfg(mc.configPath)
	if err != nil {
		return err
	}

	providers, err := mc.obsInit(mc.observabilityConfig(cfg))
	if err != nil {
		return err
	}
	defer shutdownProviders(providers)

	red, err := observability.NewREDMetrics(providers.Meter)
	if err != nil {
		return err
	}

	engineMetrics, err := observability.NewEngineMetrics(providers.Meter)
	if err != nil {
		return err
	}

	deps := mcp.ServerDeps{
		Runner: &pipelineRunner{
			cfg:     cfg,
			metrics: engineMetrics,
			logger:  providers.Logger,
			run:     runner.Run,
			plan:    runner.Plan,
		},
		Logger:  providers.Logger,
		Metrics: red,
		Tracer:  providers.Tracer,
	}

	return mc.serve(cmd.Context(), deps)
}

// observabilityConfig adjusts the shared mapping for stdio serving:
// stdout carries the protocol, so logs are JSON on stderr.
func (mc *MCPCommand) observabilityConfig(cfg *config.Config) observability.Config {
	obsCfg := observabilityConfig(cfg, observability.ModeMCP)
	obsCfg.LogJSON = true
	obsCfg.LogOutput = "stderr"

	if mc.debug {
		obsCfg.LogLevel = slog.LevelDebug
		obsCfg.DebugTrace = true
	}

	return obsCfg
}

func serveMCP(ctx context.Context, deps mcp.ServerDeps) error {
	return mcp.NewServer(deps).Run(ctx)
}

// pipelineRunner adapts the runner package to the MCP tool interface.
// Each call works on a copy of the base config, so per-call options
// never leak between tool invocations. The copy shares slices with the
// base config; only scalar fields are overridden.
type pipelineRunner struct {
	cfg     *config.Config
	metrics *observability.EngineMetrics
	logger  *slog.Logger

	run  analyzeExecutor
	plan planExecutor
}

func (pr *pipelineRunner) Analyze(ctx context.Context, req mcp.AnalyzeRequest) (*report.Document, error) {
	cfg := *pr.cfg
	if req.GitOnly {
		cfg.Scan.GitOnly = true
	}

	res, err := pr.run(ctx, runner.Options{
		Root:     req.Root,
		Config:   &cfg,
		MaxFiles: req.MaxFiles,
		Metrics:  pr.metrics,
		Logger:   pr.logger,
	})
	if err != nil {
		return nil, err
	}

	return res.Document, nil
}

func (pr *pipelineRunner) Plan(ctx context.Context, req mcp.PlanRequest) (mcp.PlanSummary, error) {
	cfg := *pr.cfg
	if req.GitOnly {
		cfg.Scan.GitOnly = true
	}

	if req.ChunkSizeTarget > 0 {
		cfg.Engine.ChunkSizeTarget = req.ChunkSizeTarget
	}

	res, err := pr.plan(ctx, runner.Options{
		Root:   req.Root,
		Config: &cfg,
		Logger: pr.logger,
	})
	if err != nil {
		return mcp.PlanSummary{}, err
	}

	return mcp.PlanSummary{Files: len(res.Scan.Files), Chunks: res.Chunks}, nil
}
