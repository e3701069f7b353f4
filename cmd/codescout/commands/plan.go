package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/codescout-dev/codescout/internal/report"
	"github.com/codescout-dev/codescout/internal/runner"
	"github.com/codescout-dev/codescout/pkg/config"
	"github.com/codescout-dev/codescout/pkg/observability"
)

// PlanCommand holds configuration and dependencies for the plan command.
type PlanCommand struct {
	configPath string
	chunkSize  int
	profile    string
	gitOnly    bool

	exec    planExecutor
	loadCfg configLoader
}

// NewPlanCommand creates the plan command.
func NewPlanCommand() *cobra.Command {
	return newPlanCommandWithDeps(runner.Plan, config.LoadConfig)
}

func newPlanCommandWithDeps(exec planExecutor, loadCfg configLoader) *cobra.Command {
	pc := &PlanCommand{exec: exec, loadCfg: loadCfg}

	cmd := &cobra.Command{
		Use:   "plan [path]",
		Short: "Preview the chunk plan without analyzing",
		Long:  "Scan a repository and print how the planner would split it into prioritized chunks.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  pc.run,
	}

	cmd.Flags().StringVarP(&pc.configPath, "config", "c", "", "Config file (default: codescout.yaml in search paths)")
	cmd.Flags().IntVar(&pc.chunkSize, "chunk-size", 0, "Target files per chunk")
	cmd.Flags().StringVar(&pc.profile, "profile", "", "Planner profile file (JSON or YAML)")
	cmd.Flags().BoolVar(&pc.gitOnly, "git-only", false, "Plan only files tracked in the git index")

	return cmd
}

func (pc *PlanCommand) run(cmd *cobra.Command, args []string) error {
	cfg, err := pc.loadCfg(pc.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()

	if flags.Changed("chunk-size") {
		cfg.Engine.ChunkSizeTarget = pc.chunkSize
	}

	if flags.Changed("profile") {
		cfg.Engine.Profile = pc.profile
	}

	if flags.Changed("git-only") {
		cfg.Scan.GitOnly = pc.gitOnly
	}

	err = config.Validate(cfg)
	if err != nil {
		return err
	}

	root, err := filepath.Abs(resolvePath(args))
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	// Planning needs no telemetry; log straight to the command's stderr.
	logger := observability.NewLoggerTo(observabilityConfig(cfg, observability.ModeCLI), cmd.ErrOrStderr())

	res, err := pc.exec(cmd.Context(), runner.Options{Root: root, Config: cfg, Logger: logger})
	if err != nil {
		return err
	}

	_, err = fmt.Fprint(cmd.OutOrStdout(), report.FormatPlan(root, len(res.Scan.Files), res.Chunks))

	return err
}
