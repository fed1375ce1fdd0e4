// Package config provides configuration loading and validation for rbforest.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/rbforest/pkg/arena"
)

// Sentinel validation errors.
var (
	ErrInvalidCapacity    = errors.New("arena capacity must not be negative")
	ErrInvalidGrowth      = errors.New("arena growth factor must be greater than one")
	ErrInvalidThreshold   = errors.New("hibernation threshold must not be negative")
	ErrInvalidShards      = errors.New("forest shards must be positive")
	ErrInvalidTrees       = errors.New("stress trees must be positive")
	ErrInvalidWorkers     = errors.New("stress workers must be positive")
	ErrInvalidOps         = errors.New("stress ops must not be negative")
	ErrInvalidKeyspace    = errors.New("stress keyspace must be positive")
	ErrInvalidFormat      = errors.New("unknown report format")
	ErrInvalidSampleRatio = errors.New("trace sample ratio must be within [0, 1]")
	ErrInvalidLogLevel    = errors.New("unknown log level")
)

// Report formats accepted by stress.format.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// Default configuration values.
const (
	defaultGrowthNumerator   = 3
	defaultGrowthDenominator = 2
	defaultShards            = 4
	defaultTrees             = 8
	defaultWorkers           = 4
	defaultOps               = 100_000
	defaultKeyspace          = 4096
	defaultSampleRatio       = 1.0
)

// Config holds all configuration for rbforest.
type Config struct {
	Arena     ArenaConfig     `mapstructure:"arena"`
	Stress    StressConfig    `mapstructure:"stress"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ArenaConfig tunes the arenas behind every tree.
type ArenaConfig struct {
	Capacity             int `mapstructure:"capacity"`
	GrowthNumerator      int `mapstructure:"growth_numerator"`
	GrowthDenominator    int `mapstructure:"growth_denominator"`
	HibernationThreshold int `mapstructure:"hibernation_threshold"`
	Shards               int `mapstructure:"shards"`
}

// StressConfig holds the defaults of the stress command.
type StressConfig struct {
	Format   string `mapstructure:"format"`
	Seed     int64  `mapstructure:"seed"`
	Trees    int    `mapstructure:"trees"`
	Workers  int    `mapstructure:"workers"`
	Ops      int    `mapstructure:"ops"`
	Keyspace int    `mapstructure:"keyspace"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// SlogLevel returns the parsed level. Validate guarantees that it parses.
func (c LoggingConfig) SlogLevel() slog.Level {
	var level slog.Level

	err := level.UnmarshalText([]byte(c.Level))
	if err != nil {
		return slog.LevelInfo
	}

	return level
}

// TelemetryConfig holds OpenTelemetry and Prometheus settings.
type TelemetryConfig struct {
	OTLPEndpoint    string            `mapstructure:"otlp_endpoint"`
	OTLPHeaders     map[string]string `mapstructure:"otlp_headers"`
	Environment     string            `mapstructure:"environment"`
	MetricsAddr     string            `mapstructure:"metrics_addr"`
	TraceAttributes []string          `mapstructure:"trace_attributes"`
	SampleRatio     float64           `mapstructure:"sample_ratio"`
	OTLPInsecure    bool              `mapstructure:"otlp_insecure"`
	DebugTrace      bool              `mapstructure:"debug_trace"`
}

// Options translates the arena section into arena options.
func (c ArenaConfig) Options() []arena.Option {
	return []arena.Option{
		arena.WithCapacity(c.Capacity),
		arena.WithGrowthFactor(c.GrowthNumerator, c.GrowthDenominator),
		arena.WithHibernationThreshold(c.HibernationThreshold),
	}
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("rbforest")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")
		viperCfg.AddConfigPath("/etc/rbforest")
	}

	viperCfg.SetEnvPrefix("RBFOREST")
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
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults(viperCfg *viper.Viper) {
	// Arena defaults.
	viperCfg.SetDefault("arena.capacity", 0)
	viperCfg.SetDefault("arena.growth_numerator", defaultGrowthNumerator)
	viperCfg.SetDefault("arena.growth_denominator", defaultGrowthDenominator)
	viperCfg.SetDefault("arena.hibernation_threshold", 0)
	viperCfg.SetDefault("arena.shards", defaultShards)

	// Stress defaults.
	viperCfg.SetDefault("stress.trees", defaultTrees)
	viperCfg.SetDefault("stress.workers", defaultWorkers)
	viperCfg.SetDefault("stress.ops", defaultOps)
	viperCfg.SetDefault("stress.keyspace", defaultKeyspace)
	viperCfg.SetDefault("stress.seed", 1)
	viperCfg.SetDefault("stress.format", FormatTable)

	// Logging defaults.
	viperCfg.SetDefault("logging.level", "info")
	viperCfg.SetDefault("logging.json", false)

	// Telemetry defaults.
	viperCfg.SetDefault("telemetry.otlp_endpoint", "")
	viperCfg.SetDefault("telemetry.otlp_insecure", false)
	viperCfg.SetDefault("telemetry.environment", "")
	viperCfg.SetDefault("telemetry.metrics_addr", "")
	viperCfg.SetDefault("telemetry.sample_ratio", defaultSampleRatio)
	viperCfg.SetDefault("telemetry.debug_trace", false)
	viperCfg.SetDefault("telemetry.trace_attributes", []string{})
}

// Validate checks ranges that the loaders cannot express. The CLI calls it again
// after applying flag overrides.
func Validate(config *Config) error {
	if config.Arena.Capacity < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCapacity, config.Arena.Capacity)
	}

	if config.Arena.GrowthDenominator <= 0 || config.Arena.GrowthNumerator <= config.Arena.GrowthDenominator {
		return fmt.Errorf("%w: %d/%d", ErrInvalidGrowth, config.Arena.GrowthNumerator, config.Arena.GrowthDenominator)
	}

	if config.Arena.HibernationThreshold < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidThreshold, config.Arena.HibernationThreshold)
	}

	if config.Arena.Shards <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidShards, config.Arena.Shards)
	}

	if config.Stress.Trees <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTrees, config.Stress.Trees)
	}

	if config.Stress.Workers <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, config.Stress.Workers)
	}

	if config.Stress.Ops < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidOps, config.Stress.Ops)
	}

	if config.Stress.Keyspace <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidKeyspace, config.Stress.Keyspace)
	}

	switch config.Stress.Format {
	case FormatTable, FormatJSON, FormatYAML:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFormat, config.Stress.Format)
	}

	var level slog.Level

	levelErr := level.UnmarshalText([]byte(config.Logging.Level))
	if levelErr != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, config.Logging.Level)
	}

	if config.Telemetry.SampleRatio < 0 || config.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("%w: %g", ErrInvalidSampleRatio, config.Telemetry.SampleRatio)
	}

	return nil
}
