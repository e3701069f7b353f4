package config

import "github.com/spf13/viper"

// Engine default values. The planner defaults mirror pkg/engine.
const (
	DefaultChunkSizeTarget  = 20
	DefaultBaseWeight       = 1.0
	DefaultDependencyLimit  = 8
	DefaultMediumComplexity = 10.0
	DefaultHighComplexity   = 25.0
	DefaultMaxWorkers       = 0 // 0 = one slot per CPU.
	DefaultRetryAttempts    = 2
)

// Scan default values.
const (
	DefaultMaxFileSize = "1MB"
)

// DefaultExcludeDirs are the directory names pruned from scans unless
// overridden.
func DefaultExcludeDirs() []string {
	return []string{
		".git", ".hg", ".svn",
		"node_modules", "vendor", "dist", "build", "target",
		".idea", ".vscode",
	}
}

// setDefaults sets default configuration values.
func setDefaults(viperCfg *viper.Viper) {
	// Engine defaults.
	viperCfg.SetDefault("engine.chunk_size_target", DefaultChunkSizeTarget)
	viperCfg.SetDefault("engine.base_weight", DefaultBaseWeight)
	viperCfg.SetDefault("engine.dependency_limit", DefaultDependencyLimit)
	viperCfg.SetDefault("engine.medium_complexity", DefaultMediumComplexity)
	viperCfg.SetDefault("engine.high_complexity", DefaultHighComplexity)
	viperCfg.SetDefault("engine.max_workers", DefaultMaxWorkers)
	viperCfg.SetDefault("engine.retry_attempts", DefaultRetryAttempts)
	viperCfg.SetDefault("engine.profile", "")

	// Scan defaults.
	viperCfg.SetDefault("scan.max_file_size", DefaultMaxFileSize)
	viperCfg.SetDefault("scan.exclude_dirs", DefaultExcludeDirs())
	viperCfg.SetDefault("scan.extensions", []string{})
	viperCfg.SetDefault("scan.git_only", false)

	// Output defaults.
	viperCfg.SetDefault("output.format", "table")
	viperCfg.SetDefault("output.file", "")
	viperCfg.SetDefault("output.compress", false)
	viperCfg.SetDefault("output.plot", "")

	// Logging defaults. Logs go to stderr so stdout stays clean for
	// report output.
	viperCfg.SetDefault("logging.level", "info")
	viperCfg.SetDefault("logging.format", "text")
	viperCfg.SetDefault("logging.output", "stderr")

	// Telemetry defaults.
	viperCfg.SetDefault("telemetry.enabled", false)
	viperCfg.SetDefault("telemetry.endpoint", "localhost:4317")
	viperCfg.SetDefault("telemetry.sample_ratio", 1.0)
	viperCfg.SetDefault("telemetry.metrics_addr", "")
}
