package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/MeKo-Tech/homest/internal/homography"
	"github.com/MeKo-Tech/homest/internal/report"
)

// Config represents the complete configuration for the homest application.
// It includes settings for all commands (estimate, apply, batch, serve) and
// supports loading from configuration files, environment variables, and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Estimation policy
	Estimation EstimationConfig `mapstructure:"estimation" yaml:"estimation" json:"estimation"`

	// Output configuration
	Output OutputConfig `mapstructure:"output" yaml:"output" json:"output"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	// Batch processing configuration
	Batch BatchConfig `mapstructure:"batch" yaml:"batch" json:"batch"`
}

// EstimationConfig contains the numerical policy of the estimator.
type EstimationConfig struct {
	ScaleConvention       string  `mapstructure:"scale_convention" yaml:"scale_convention" json:"scale_convention"`
	RankTolerance         float64 `mapstructure:"rank_tolerance" yaml:"rank_tolerance" json:"rank_tolerance"`
	CollinearityTolerance float64 `mapstructure:"collinearity_tolerance" yaml:"collinearity_tolerance" json:"collinearity_tolerance"`
	InfinityTolerance     float64 `mapstructure:"infinity_tolerance" yaml:"infinity_tolerance" json:"infinity_tolerance"`
	AllowRankDeficient    bool    `mapstructure:"allow_rank_deficient" yaml:"allow_rank_deficient" json:"allow_rank_deficient"`
	TrainCount            int     `mapstructure:"train_count" yaml:"train_count" json:"train_count"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format    string `mapstructure:"format" yaml:"format" json:"format"`
	File      string `mapstructure:"file" yaml:"file" json:"file"`
	Precision int    `mapstructure:"precision" yaml:"precision" json:"precision"`
	PlotFile  string `mapstructure:"plot_file" yaml:"plot_file" json:"plot_file"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string  `mapstructure:"host" yaml:"host" json:"host"`
	Port              int     `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin        string  `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxBodyKB         int     `mapstructure:"max_body_kb" yaml:"max_body_kb" json:"max_body_kb"`
	MaxPoints         int     `mapstructure:"max_points" yaml:"max_points" json:"max_points"`
	TimeoutSec        int     `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout   int     `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	RateLimitEnabled  bool    `mapstructure:"rate_limit_enabled" yaml:"rate_limit_enabled" json:"rate_limit_enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `mapstructure:"burst" yaml:"burst" json:"burst"`
}

// BatchConfig contains batch processing settings.
type BatchConfig struct {
	Recursive       bool     `mapstructure:"recursive" yaml:"recursive" json:"recursive"`
	IncludePatterns []string `mapstructure:"include" yaml:"include" json:"include"`
	ExcludePatterns []string `mapstructure:"exclude" yaml:"exclude" json:"exclude"`
	ContinueOnError bool     `mapstructure:"continue_on_error" yaml:"continue_on_error" json:"continue_on_error"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	est := homography.DefaultConfig()
	return Config{
		LogLevel: "info",
		Verbose:  false,
		Estimation: EstimationConfig{
			ScaleConvention:       string(est.ScaleConvention),
			RankTolerance:         est.RankTolerance,
			CollinearityTolerance: est.CollinearityTolerance,
			InfinityTolerance:     est.InfinityTolerance,
			AllowRankDeficient:    est.AllowRankDeficient,
			TrainCount:            0,
		},
		Output: OutputConfig{
			Format:    report.FormatText,
			Precision: report.DefaultPrecision,
		},
		Server: ServerConfig{
			Host:              "localhost",
			Port:              8080,
			CORSOrigin:        "*",
			MaxBodyKB:         1024,
			MaxPoints:         10000,
			TimeoutSec:        30,
			ShutdownTimeout:   10,
			RateLimitEnabled:  false,
			RequestsPerSecond: 20,
			Burst:             40,
		},
		Batch: BatchConfig{
			Recursive:       false,
			IncludePatterns: []string{"*.yaml", "*.yml", "*.json", "*.csv"},
			ContinueOnError: false,
		},
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if c.Output.Format != "" && !slices.Contains(report.Formats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(report.Formats, ", "))
	}
	if c.Output.Precision < 0 || c.Output.Precision > 17 {
		return fmt.Errorf("invalid output precision: %d (must be between 0 and 17)", c.Output.Precision)
	}

	if err := c.Estimation.Validate(); err != nil {
		return err
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxBodyKB <= 0 {
		return fmt.Errorf("invalid max body size: %d (must be positive)", c.Server.MaxBodyKB)
	}
	if c.Server.MaxPoints < homography.MinCorrespondences {
		return fmt.Errorf("invalid max points: %d (must be at least %d)", c.Server.MaxPoints, homography.MinCorrespondences)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Server.RateLimitEnabled && (c.Server.RequestsPerSecond <= 0 || c.Server.Burst <= 0) {
		return fmt.Errorf("invalid rate limit: %.2f req/s, burst %d (both must be positive)",
			c.Server.RequestsPerSecond, c.Server.Burst)
	}

	return nil
}

// Validate checks the estimation policy.
func (e *EstimationConfig) Validate() error {
	validConventions := []string{string(homography.ScaleH22), string(homography.ScaleFrobenius)}
	if !slices.Contains(validConventions, e.ScaleConvention) {
		return fmt.Errorf("invalid scale convention: %s (must be one of: %s)",
			e.ScaleConvention, strings.Join(validConventions, ", "))
	}
	if err := validateTolerance(e.RankTolerance, "estimation.rank_tolerance"); err != nil {
		return err
	}
	if err := validateTolerance(e.CollinearityTolerance, "estimation.collinearity_tolerance"); err != nil {
		return err
	}
	if err := validateTolerance(e.InfinityTolerance, "estimation.infinity_tolerance"); err != nil {
		return err
	}
	if e.TrainCount != 0 && e.TrainCount < homography.MinCorrespondences {
		return fmt.Errorf("invalid train count: %d (must be 0 for all pairs or at least %d)",
			e.TrainCount, homography.MinCorrespondences)
	}
	return nil
}

// ToHomographyConfig converts the estimation section to the estimator's configuration.
func (c *Config) ToHomographyConfig() homography.Config {
	return homography.Config{
		ScaleConvention:       homography.ScaleConvention(c.Estimation.ScaleConvention),
		RankTolerance:         c.Estimation.RankTolerance,
		CollinearityTolerance: c.Estimation.CollinearityTolerance,
		InfinityTolerance:     c.Estimation.InfinityTolerance,
		AllowRankDeficient:    c.Estimation.AllowRankDeficient,
	}
}

// validateTolerance validates that a value lies in [0, 1).
func validateTolerance(value float64, name string) error {
	if value < 0.0 || value >= 1.0 {
		return fmt.Errorf("invalid %s: %g (must be in [0, 1))", name, value)
	}
	return nil
}
