// Package config provides configuration loading and validation for the
// atomtable command.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrInvalidShards     = errors.New("table shards must not be negative")
	ErrInvalidCapacity   = errors.New("table capacity must not be negative")
	ErrInvalidWorkers    = errors.New("bench workers must be positive")
	ErrInvalidIterations = errors.New("bench iterations must be positive")
	ErrInvalidPool       = errors.New("bench pool must be positive")
	ErrInvalidFormat     = errors.New("unsupported export format")
	ErrInvalidLogLevel   = errors.New("unsupported log level")
	ErrInvalidLogFormat  = errors.New("unsupported log format")
	ErrInvalidSampling   = errors.New("sample ratio must be within [0, 1]")
)

// Export formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

const envPrefix = "ATOMTABLE"

var logLevels = []string{"debug", "info", "warn", "error"}

// Config holds all configuration for the atomtable command.
type Config struct {
	Table     TableConfig     `mapstructure:"table"`
	Bench     BenchConfig     `mapstructure:"bench"`
	Export    ExportConfig    `mapstructure:"export"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// TableConfig sizes the atom table.
type TableConfig struct {
	Shards   int `mapstructure:"shards"`
	Capacity int `mapstructure:"capacity"`
}

// BenchConfig holds defaults for the bench command.
type BenchConfig struct {
	Workers    int `mapstructure:"workers"`
	Iterations int `mapstructure:"iterations"`
	Pool       int `mapstructure:"pool"`
}

// ExportConfig holds defaults for the dump command.
type ExportConfig struct {
	Format   string `mapstructure:"format"`
	Compress bool   `mapstructure:"compress"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds OpenTelemetry and Prometheus settings.
type TelemetryConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	TraceVerbose bool    `mapstructure:"trace_verbose"`
	MetricsAddr  string  `mapstructure:"metrics_addr"`
}

// LoadConfig loads configuration from file and environment variables.
// With an empty configPath, atomtable.yaml is searched for in the working
// directory and $HOME/.config/atomtable; a missing file is not an error.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("atomtable")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("$HOME/.config/atomtable")
	}

	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viperCfg.AutomaticEnv()

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

	validateErr := validateConfig(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

// Default returns the configuration used when no file or environment
// override is present.
func Default() *Config {
	return &Config{
		Table: TableConfig{
			Shards:   DefaultTableShards,
			Capacity: DefaultTableCapacity,
		},
		Bench: BenchConfig{
			Workers:    DefaultBenchWorkers,
			Iterations: DefaultBenchIterations,
			Pool:       DefaultBenchPool,
		},
		Export: ExportConfig{
			Format:   DefaultExportFormat,
			Compress: DefaultExportCompress,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Telemetry: TelemetryConfig{
			OTLPInsecure: DefaultOTLPInsecure,
			SampleRatio:  DefaultSampleRatio,
			TraceVerbose: DefaultTraceVerbose,
		},
	}
}

func setDefaults(viperCfg *viper.Viper) {
	def := Default()

	viperCfg.SetDefault("table.shards", def.Table.Shards)
	viperCfg.SetDefault("table.capacity", def.Table.Capacity)

	viperCfg.SetDefault("bench.workers", def.Bench.Workers)
	viperCfg.SetDefault("bench.iterations", def.Bench.Iterations)
	viperCfg.SetDefault("bench.pool", def.Bench.Pool)

	viperCfg.SetDefault("export.format", def.Export.Format)
	viperCfg.SetDefault("export.compress", def.Export.Compress)

	viperCfg.SetDefault("logging.level", def.Logging.Level)
	viperCfg.SetDefault("logging.format", def.Logging.Format)

	// Empty defaults register the keys so AutomaticEnv can bind them on Unmarshal.
	viperCfg.SetDefault("telemetry.otlp_endpoint", "")
	viperCfg.SetDefault("telemetry.otlp_insecure", def.Telemetry.OTLPInsecure)
	viperCfg.SetDefault("telemetry.sample_ratio", def.Telemetry.SampleRatio)
	viperCfg.SetDefault("telemetry.trace_verbose", def.Telemetry.TraceVerbose)
	viperCfg.SetDefault("telemetry.metrics_addr", "")
}

// Validate checks cfg, returning the first sentinel error that applies.
func (cfg *Config) Validate() error {
	return validateConfig(cfg)
}

func validateConfig(config *Config) error {
	if config.Table.Shards < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidShards, config.Table.Shards)
	}

	if config.Table.Capacity < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCapacity, config.Table.Capacity)
	}

	if config.Bench.Workers <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, config.Bench.Workers)
	}

	if config.Bench.Iterations <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidIterations, config.Bench.Iterations)
	}

	if config.Bench.Pool <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPool, config.Bench.Pool)
	}

	if config.Export.Format != FormatJSON && config.Export.Format != FormatYAML {
		return fmt.Errorf("%w: %q", ErrInvalidFormat, config.Export.Format)
	}

	if !slices.Contains(logLevels, strings.ToLower(config.Logging.Level)) {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, config.Logging.Level)
	}

	if config.Logging.Format != LogFormatText && config.Logging.Format != LogFormatJSON {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, config.Logging.Format)
	}

	if config.Telemetry.SampleRatio < 0 || config.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidSampling, config.Telemetry.SampleRatio)
	}

	return nil
}
