package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/codescout-dev/codescout/internal/report"
	"github.com/codescout-dev/codescout/internal/runner"
	"github.com/codescout-dev/codescout/internal/watch"
	"github.com/codescout-dev/codescout/pkg/config"
	"github.com/codescout-dev/codescout/pkg/observability"
)

const metricsShutdownTimeout = 5 * time.Second

// watchStarter builds a watcher from opts and blocks until ctx is done.
type watchStarter func(ctx context.Context, opts watch.Options) error

// WatchCommand holds configuration and dependencies for the watch command.
type WatchCommand struct {
	configPath  string
	metricsAddr string
	debounce    time.Duration
	silent      bool

	exec    analyzeExecutor
	loadCfg configLoader
	obsInit observabilityInitializer
	watch   watchStarter
}

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	return newWatchCommandWithDeps(runner.Run, config.LoadConfig, observability.Init, startWatch)
}

func newWatchCommandWithDeps(
	exec analyzeExecutor,
	loadCfg configLoader,
	obsInit observabilityInitializer,
	starter watchStarter,
) *cobra.Command {
	wc := &WatchCommand{exec: exec, loadCfg: loadCfg, obsInit: obsInit, watch: starter}

	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Re-run analysis whenever files change",
		Long: "Watch a repository and re-run the analysis after every settled " +
			"burst of file changes. Runs until interrupted.",
		Args: cobra.MaximumNArgs(1),
		RunE: wc.run,
	}

	cmd.Flags().StringVarP(&wc.configPath, "config", "c", "", "Config file (default: codescout.yaml in search paths)")
	cmd.Flags().StringVar(&wc.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	cmd.Flags().DurationVar(&wc.debounce, "debounce", watch.DefaultDebounce, "Quiet window before re-analyzing")
	cmd.Flags().BoolVar(&wc.silent, "silent", false, "Disable progress output")

	return cmd
}

func (wc *WatchCommand) run(cmd *cobra.Command, args []string) error {
	cfg, err := wc.loadCfg(wc.configPath)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("metrics-addr") {
		cfg.Telemetry.MetricsAddr = wc.metricsAddr
	}

	providers, err := wc.obsInit(observabilityConfig(cfg, observability.ModeWatch))
	if err != nil {
		return err
	}
	defer shutdownProviders(providers)

	engineMeter := providers.Meter

	if cfg.Telemetry.MetricsAddr != "" {
		handler, promProvider, promErr := observability.PrometheusHandler()
		if promErr != nil {
			return promErr
		}

		// Engine instruments go through the Prometheus provider so the
		// scrape endpoint sees every rebuild.
		engineMeter = promProvider.Meter("codescout")

		srv := startMetricsServer(cfg.Telemetry.MetricsAddr, handler, providers.Tracer, providers.Logger)
		defer stopMetricsServer(srv, providers.Logger)
	}

	engineMetrics, err := observability.NewEngineMetrics(engineMeter)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	silent := isSilent(cmd, wc.silent)
	root := resolvePath(args)

	err = wc.watch(ctx, watch.Options{
		Root:        root,
		Debounce:    wc.debounce,
		ExcludeDirs: cfg.Scan.ExcludeDirs,
		Rebuild:     wc.rebuild(cfg, engineMetrics, providers.Logger, silent, cmd.ErrOrStderr(), cmd.OutOrStdout(), root),
		Logger:      providers.Logger,
	})
	if errors.Is(err, context.Canceled) {
		// Interrupt is the normal way to leave watch mode.
		return nil
	}

	return err
}

// rebuild returns the callback the watcher invokes for the initial pass
// and after every settled change burst.
func (wc *WatchCommand) rebuild(
	cfg *config.Config,
	metrics *observability.EngineMetrics,
	logger *slog.Logger,
	silent bool,
	progressWriter io.Writer,
	out io.Writer,
	root string,
) watch.Rebuild {
	return func(ctx context.Context, paths []string) error {
		if len(paths) > 0 {
			progressf(silent, progressWriter, "%d paths changed, re-analyzing", len(paths))
		}

		res, err := wc.exec(ctx, runner.Options{
			Root:    root,
			Config:  cfg,
			Metrics: metrics,
			Logger:  logger,
		})
		if err != nil {
			return err
		}

		doc := res.Document

		fmt.Fprintf(out, "[%s] %d files, %d/%d chunks, %d nodes, %d edges, %d failures\n",
			time.Now().Format("15:04:05"),
			doc.Summary.Files,
			doc.Performance.CompletedChunks,
			doc.Performance.TotalChunks,
			doc.Summary.Nodes,
			doc.Summary.Edges,
			doc.Summary.Failures)

		if cfg.Output.File != "" {
			return report.ExportFile(cfg.Output.File, doc, exportFormat(cfg.Output.Format), cfg.Output.Compress)
		}

		return nil
	}
}

func startWatch(ctx context.Context, opts watch.Options) error {
	w, err := watch.New(opts)
	if err != nil {
		return err
	}

	return w.Run(ctx)
}

func startMetricsServer(addr string, handler http.Handler, tracer trace.Tracer, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	srv := &http.Server{
		Addr:              addr,
		Handler:           observability.HTTPMiddleware(tracer, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		serveErr := srv.ListenAndServe()
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", addr, "error", serveErr)
		}
	}()

	logger.Info("serving metrics", "addr", addr)

	return srv
}

func stopMetricsServer(srv *http.Server, logger *slog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		logger.Warn("metrics server shutdown failed", "error", err)
	}
}
