// Package config provides configuration loading and validation for the
// codescout CLI. Values come from defaults, an optional YAML file and
// CODESCOUT_* environment variables, in rising precedence.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrInvalidChunkTarget = errors.New("chunk size target must be positive")
	ErrInvalidBaseWeight  = errors.New("base weight must be positive")
	ErrInvalidDepLimit    = errors.New("dependency limit must not be negative")
	ErrInvalidThresholds  = errors.New("medium complexity threshold must be below high")
	ErrInvalidWorkers     = errors.New("max workers must not be negative")
	ErrInvalidRetries     = errors.New("retry attempts must not be negative")
	ErrInvalidMaxFileSize = errors.New("invalid max file size")
	ErrInvalidFormat      = errors.New("invalid output format")
	ErrInvalidLogLevel    = errors.New("invalid log level")
	ErrInvalidSampleRatio = errors.New("sample ratio must be within [0,1]")
)

// Config holds all configuration for the codescout CLI.
type Config struct {
	Engine    EngineConfig    `mapstructure:"engine"`
	Scan      ScanConfig      `mapstructure:"scan"`
	Output    OutputConfig    `mapstructure:"output"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// EngineConfig holds planner and pool tuning.
type EngineConfig struct {
	ChunkSizeTarget  int     `mapstructure:"chunk_size_target"`
	BaseWeight       float64 `mapstructure:"base_weight"`
	DependencyLimit  int     `mapstructure:"dependency_limit"`
	MediumComplexity float64 `mapstructure:"medium_complexity"`
	HighComplexity   float64 `mapstructure:"high_complexity"`

	// MaxWorkers caps pool parallelism. Zero means one slot per CPU.
	MaxWorkers    int `mapstructure:"max_workers"`
	RetryAttempts int `mapstructure:"retry_attempts"`

	// Profile optionally points at a planner profile file that overrides
	// the planner values above.
	Profile string `mapstructure:"profile"`
}

// ScanConfig holds repository scanning configuration.
type ScanConfig struct {
	// MaxFileSize is a humanized byte size ("1MB", "512KiB"). Larger
	// files are skipped.
	MaxFileSize string `mapstructure:"max_file_size"`

	// ExcludeDirs are directory base names pruned from the walk.
	ExcludeDirs []string `mapstructure:"exclude_dirs"`

	// Extensions optionally restricts the scan to these extensions
	// (with leading dot). Empty means all non-binary files.
	Extensions []string `mapstructure:"extensions"`

	// GitOnly lists files from the git index instead of walking the
	// filesystem.
	GitOnly bool `mapstructure:"git_only"`
}

// OutputConfig holds report rendering configuration.
type OutputConfig struct {
	Format   string `mapstructure:"format"`
	File     string `mapstructure:"file"`
	Compress bool   `mapstructure:"compress"`
	Plot     string `mapstructure:"plot"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// TelemetryConfig holds OpenTelemetry export configuration.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio"`

	// MetricsAddr exposes a Prometheus scrape endpoint when set, used by
	// long-running modes (watch, mcp).
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// MaxFileSizeBytes parses the humanized Scan.MaxFileSize value.
func (c *Config) MaxFileSizeBytes() (uint64, error) {
	size, err := humanize.ParseBytes(c.Scan.MaxFileSize)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMaxFileSize, c.Scan.MaxFileSize)
	}

	return size, nil
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("codescout")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")
		viperCfg.AddConfigPath("/etc/codescout")
	}

	viperCfg.SetEnvPrefix("CODESCOUT")
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := Validate(&config)
	if validateErr != nil {
		return nil, validateErr
	}

	return &config, nil
}

// Validate checks config against the same rules LoadConfig applies.
// Callers that overlay values onto a loaded config (CLI flags, per-call
// MCP options) re-validate with this.
func Validate(config *Config) error {
	validateErr := validateConfig(config)
	if validateErr != nil {
		return fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return nil
}

// validateConfig validates the configuration.
func validateConfig(config *Config) error {
	if err := validateEngine(&config.Engine); err != nil {
		return err
	}

	if _, err := config.MaxFileSizeBytes(); err != nil {
		return err
	}

	if !slices.Contains([]string{"table", "json", "yaml"}, config.Output.Format) {
		return fmt.Errorf("%w: %q", ErrInvalidFormat, config.Output.Format)
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, config.Logging.Level) {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, config.Logging.Level)
	}

	if config.Telemetry.SampleRatio < 0 || config.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidSampleRatio, config.Telemetry.SampleRatio)
	}

	return nil
}

// validateEngine validates planner and pool parameters.
func validateEngine(engine *EngineConfig) error {
	if engine.ChunkSizeTarget <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidChunkTarget, engine.ChunkSizeTarget)
	}

	if engine.BaseWeight <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidBaseWeight, engine.BaseWeight)
	}

	if engine.DependencyLimit < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDepLimit, engine.DependencyLimit)
	}

	if engine.MediumComplexity >= engine.HighComplexity {
		return fmt.Errorf("%w: medium %v, high %v",
			ErrInvalidThresholds, engine.MediumComplexity, engine.HighComplexity)
	}

	if engine.MaxWorkers < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, engine.MaxWorkers)
	}

	if engine.RetryAttempts < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRetries, engine.RetryAttempts)
	}

	return nil
}
