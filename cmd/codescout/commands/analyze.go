// Package commands implements CLI command handlers for codescout.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/codescout-dev/codescout/internal/report"
	"github.com/codescout-dev/codescout/internal/runner"
	"github.com/codescout-dev/codescout/pkg/config"
	"github.com/codescout-dev/codescout/pkg/engine"
	"github.com/codescout-dev/codescout/pkg/observability"
	"github.com/codescout-dev/codescout/pkg/version"
)

// analyzeExecutor runs the full scan-plan-analyze pipeline.
type analyzeExecutor func(ctx context.Context, opts runner.Options) (*runner.Result, error)

// planExecutor runs the pipeline up to the chunk plan.
type planExecutor func(ctx context.Context, opts runner.Options) (*runner.Result, error)

// configLoader loads the CLI configuration.
type configLoader func(path string) (*config.Config, error)

// observabilityInitializer sets up tracing, metrics and logging.
type observabilityInitializer func(cfg observability.Config) (observability.Providers, error)

// ErrRunFindings is returned by analyze --fail-on-errors when the run
// completed but recorded failed chunks or file errors.
var ErrRunFindings = errors.New("analysis completed with findings")

// AnalyzeCommand holds configuration and dependencies for the analyze command.
type AnalyzeCommand struct {
	configPath   string
	workers      int
	chunkSize    int
	retries      int
	profile      string
	format       string
	output       string
	compress     bool
	plot         string
	gitOnly      bool
	failOnErrors bool
	silent       bool

	exec    analyzeExecutor
	loadCfg configLoader
	obsInit observabilityInitializer
}

// NewAnalyzeCommand creates the analyze command.
func NewAnalyzeCommand() *cobra.Command {
	return newAnalyzeCommandWithDeps(runner.Run, config.LoadConfig, observability.Init)
}

func newAnalyzeCommandWithDeps(
	exec analyzeExecutor,
	loadCfg configLoader,
	obsInit observabilityInitializer,
) *cobra.Command {
	ac := &AnalyzeCommand{exec: exec, loadCfg: loadCfg, obsInit: obsInit}

	cmd := &cobra.Command{
		Use:   "analyze [path]",
		Short: "Analyze a repository in parallel chunks",
		Long: "Scan a repository, split it into prioritized chunks and analyze " +
			"them across a worker pool.",
		Args: cobra.MaximumNArgs(1),
		RunE: ac.run,
	}

	cmd.Flags().StringVarP(&ac.configPath, "config", "c", "", "Config file (default: codescout.yaml in search paths)")
	cmd.Flags().IntVar(&ac.workers, "workers", 0, "Number of parallel workers (0 = CPU count)")
	cmd.Flags().IntVar(&ac.chunkSize, "chunk-size", 0, "Target files per chunk")
	cmd.Flags().IntVar(&ac.retries, "retries", 0, "Retry attempts per failed chunk")
	cmd.Flags().StringVar(&ac.profile, "profile", "", "Planner profile file (JSON or YAML)")
	cmd.Flags().StringVar(&ac.format, "format", "", "Output format: table, json, yaml")
	cmd.Flags().StringVarP(&ac.output, "output", "o", "", "Write the report to a file instead of stdout")
	cmd.Flags().BoolVar(&ac.compress, "compress", false, "LZ4-compress the exported report")
	cmd.Flags().StringVar(&ac.plot, "plot", "", "Write an HTML chart page to this path")
	cmd.Flags().BoolVar(&ac.gitOnly, "git-only", false, "Analyze only files tracked in the git index")
	cmd.Flags().BoolVar(&ac.failOnErrors, "fail-on-errors", false, "Exit non-zero when chunks failed or files errored")
	cmd.Flags().BoolVar(&ac.silent, "silent", false, "Disable progress output")

	return cmd
}

func (ac *AnalyzeCommand) run(cmd *cobra.Command, args []string) error {
	cfg, err := ac.loadCfg(ac.configPath)
	if err != nil {
		return err
	}

	ac.applyFlags(cmd, cfg)

	err = config.Validate(cfg)
	if err != nil {
		return err
	}

	providers, err := ac.obsInit(observabilityConfig(cfg, observability.ModeCLI))
	if err != nil {
		return err
	}
	defer shutdownProviders(providers)

	engineMetrics, err := observability.NewEngineMetrics(providers.Meter)
	if err != nil {
		return err
	}

	silent := isSilent(cmd, ac.silent)
	progressWriter := cmd.ErrOrStderr()
	path := resolvePath(args)

	progressf(silent, progressWriter, "analyzing %s", path)

	res, err := ac.exec(cmd.Context(), runner.Options{
		Root:    path,
		Config:  cfg,
		Hooks:   progressHooks(silent, progressWriter),
		Metrics: engineMetrics,
		Logger:  providers.Logger,
	})
	if err != nil {
		return err
	}

	doc := res.Document

	progressf(silent, progressWriter, "completed %d/%d chunks in %s",
		doc.Performance.CompletedChunks, doc.Performance.TotalChunks, doc.Performance.WallClock)

	err = renderDocument(cmd.OutOrStdout(), cfg, doc, isVerbose(cmd))
	if err != nil {
		return err
	}

	if cfg.Output.File != "" {
		progressf(silent, progressWriter, "report written to %s", cfg.Output.File)
	}

	if cfg.Output.Plot != "" {
		err = report.WritePlot(cfg.Output.Plot, doc)
		if err != nil {
			return err
		}

		progressf(silent, progressWriter, "plot written to %s", cfg.Output.Plot)
	}

	if ac.failOnErrors && (doc.Summary.Failures > 0 || doc.Summary.Errors > 0) {
		return fmt.Errorf("%w: %d failed chunks, %d file errors",
			ErrRunFindings, doc.Summary.Failures, doc.Summary.Errors)
	}

	return nil
}

// applyFlags overlays explicitly set flags onto the loaded config.
// Unset flags leave the config (and its defaults) alone.
func (ac *AnalyzeCommand) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()

	if flags.Changed("workers") {
		cfg.Engine.MaxWorkers = ac.workers
	}

	if flags.Changed("chunk-size") {
		cfg.Engine.ChunkSizeTarget = ac.chunkSize
	}

	if flags.Changed("retries") {
		cfg.Engine.RetryAttempts = ac.retries
	}

	if flags.Changed("profile") {
		cfg.Engine.Profile = ac.profile
	}

	if flags.Changed("format") {
		cfg.Output.Format = ac.format
	}

	if flags.Changed("output") {
		cfg.Output.File = ac.output
	}

	if flags.Changed("compress") {
		cfg.Output.Compress = ac.compress
	}

	if flags.Changed("plot") {
		cfg.Output.Plot = ac.plot
	}

	if flags.Changed("git-only") {
		cfg.Scan.GitOnly = ac.gitOnly
	}
}

// renderDocument writes the report to the configured file, or renders
// it on w.
func renderDocument(w io.Writer, cfg *config.Config, doc *report.Document, verbose bool) error {
	if cfg.Output.File != "" {
		return report.ExportFile(cfg.Output.File, doc, exportFormat(cfg.Output.Format), cfg.Output.Compress)
	}

	if cfg.Output.Format == "table" {
		_, err := fmt.Fprint(w, report.Format(doc, verbose))

		return err
	}

	return report.Export(w, doc, cfg.Output.Format, cfg.Output.Compress)
}

// exportFormat maps the terminal-only table format onto a file codec.
func exportFormat(format string) string {
	if format == "table" {
		return "json"
	}

	return format
}

// progressHooks streams chunk completion percentages to the progress
// writer.
func progressHooks(silent bool, writer io.Writer) engine.EventHooks {
	if silent {
		return engine.EventHooks{}
	}

	return engine.EventHooks{
		Progress: func(chunkID string, percent float64) {
			progressf(false, writer, "%s finished (%.0f%%)", chunkID, percent)
		},
	}
}

func resolvePath(args []string) string {
	if len(args) > 0 {
		return args[0]
	}

	return "."
}

// isSilent reports whether progress output is suppressed, either by the
// command's own --silent flag or the root --quiet flag.
func isSilent(cmd *cobra.Command, silent bool) bool {
	if silent {
		return true
	}

	quiet, err := cmd.Flags().GetBool("quiet")
	if err != nil {
		return false
	}

	return quiet
}

// isVerbose reports whether the root --verbose flag asks for untruncated
// report sections.
func isVerbose(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return false
	}

	return verbose
}

func progressf(silent bool, writer io.Writer, format string, args ...any) {
	if silent {
		return
	}

	_, _ = fmt.Fprintf(writer, "progress: "+format+"\n", args...)
}

// observabilityConfig maps the logging and telemetry config sections
// onto an observability setup for the given mode. The standard OTLP
// environment variables take precedence over the config file.
func observabilityConfig(cfg *config.Config, mode observability.AppMode) observability.Config {
	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.Mode = mode
	obsCfg.LogLevel = observability.ParseLevel(cfg.Logging.Level)
	obsCfg.LogJSON = cfg.Logging.Format == "json"
	obsCfg.LogOutput = cfg.Logging.Output

	if cfg.Telemetry.Enabled {
		obsCfg.OTLPEndpoint = cfg.Telemetry.Endpoint
		obsCfg.SampleRatio = cfg.Telemetry.SampleRatio
	}

	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		obsCfg.OTLPEndpoint = endpoint
	}

	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	obsCfg.OTLPInsecure = os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true"

	return obsCfg
}

func shutdownProviders(providers observability.Providers) {
	err := providers.Shutdown(context.Background())
	if err != nil && providers.Logger != nil {
		providers.Logger.Warn("observability shutdown failed", "error", err)
	}
}
