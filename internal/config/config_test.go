package config

import (
	"testing"

	"github.com/MeKo-Tech/homest/internal/homography"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "h22", cfg.Estimation.ScaleConvention)
	assert.Equal(t, "text", cfg.Output.Format)
	assert.Equal(t, 6, cfg.Output.Precision)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.False(t, cfg.Server.RateLimitEnabled)
	assert.Contains(t, cfg.Batch.IncludePatterns, "*.csv")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, "invalid log level"},
		{"bad format", func(c *Config) { c.Output.Format = "xml" }, "invalid output format"},
		{"empty format", func(c *Config) { c.Output.Format = "" }, ""},
		{"negative precision", func(c *Config) { c.Output.Precision = -1 }, "invalid output precision"},
		{"bad scale convention", func(c *Config) { c.Estimation.ScaleConvention = "l1" }, "invalid scale convention"},
		{"frobenius", func(c *Config) { c.Estimation.ScaleConvention = "frobenius" }, ""},
		{"negative rank tolerance", func(c *Config) { c.Estimation.RankTolerance = -1 }, "estimation.rank_tolerance"},
		{"collinearity tolerance too large", func(c *Config) { c.Estimation.CollinearityTolerance = 1 }, "estimation.collinearity_tolerance"},
		{"infinity tolerance", func(c *Config) { c.Estimation.InfinityTolerance = 2 }, "estimation.infinity_tolerance"},
		{"train count too small", func(c *Config) { c.Estimation.TrainCount = 3 }, "invalid train count"},
		{"train count four", func(c *Config) { c.Estimation.TrainCount = 4 }, ""},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"body size", func(c *Config) { c.Server.MaxBodyKB = 0 }, "invalid max body size"},
		{"max points", func(c *Config) { c.Server.MaxPoints = 3 }, "invalid max points"},
		{"timeout", func(c *Config) { c.Server.TimeoutSec = 0 }, "invalid timeout"},
		{"rate limit without rate", func(c *Config) {
			c.Server.RateLimitEnabled = true
			c.Server.RequestsPerSecond = 0
		}, "invalid rate limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestToHomographyConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, homography.DefaultConfig(), cfg.ToHomographyConfig())

	cfg.Estimation.ScaleConvention = "frobenius"
	cfg.Estimation.AllowRankDeficient = true
	cfg.Estimation.RankTolerance = 1e-6
	hc := cfg.ToHomographyConfig()
	assert.Equal(t, homography.ScaleFrobenius, hc.ScaleConvention)
	assert.True(t, hc.AllowRankDeficient)
	assert.Equal(t, 1e-6, hc.RankTolerance)
}
