package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/MeKo-Tech/squarefid/internal/camera"
	"github.com/MeKo-Tech/squarefid/internal/fiducial"
	"github.com/MeKo-Tech/squarefid/internal/marker"
)

// Config is the complete squarefid configuration. It is shared by every
// command (detect, render, capacity, serve) and can be loaded from a file,
// environment variables and command-line flags.
type Config struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Marker    MarkerConfig    `mapstructure:"marker" yaml:"marker" json:"marker"`
	Threshold ThresholdConfig `mapstructure:"threshold" yaml:"threshold" json:"threshold"`
	Camera    CameraConfig    `mapstructure:"camera" yaml:"camera" json:"camera"`
	Parallel  ParallelConfig  `mapstructure:"parallel" yaml:"parallel" json:"parallel"`
	Output    OutputConfig    `mapstructure:"output" yaml:"output" json:"output"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server" json:"server"`
	Render    RenderConfig    `mapstructure:"render" yaml:"render" json:"render"`
}

// MarkerConfig describes the marker family.
type MarkerConfig struct {
	GridWidth           int     `mapstructure:"grid_width" yaml:"grid_width" json:"grid_width"`
	BorderFraction      float64 `mapstructure:"border_fraction" yaml:"border_fraction" json:"border_fraction"`
	BlackBorderFraction float64 `mapstructure:"black_border_fraction" yaml:"black_border_fraction" json:"black_border_fraction"`
	CellPixels          int     `mapstructure:"cell_pixels" yaml:"cell_pixels" json:"cell_pixels"`
}

// ThresholdConfig selects bitmap binarisation.
type ThresholdConfig struct {
	Method string  `mapstructure:"method" yaml:"method" json:"method"`
	Level  float64 `mapstructure:"level" yaml:"level" json:"level"`
}

// CameraConfig points at the intrinsics used for pose estimation. Pose is
// skipped when IntrinsicsFile is empty.
type CameraConfig struct {
	IntrinsicsFile string  `mapstructure:"intrinsics_file" yaml:"intrinsics_file" json:"intrinsics_file"`
	SideLength     float64 `mapstructure:"side_length" yaml:"side_length" json:"side_length"`
}

// ParallelConfig bounds the worker pool.
type ParallelConfig struct {
	MaxWorkers int `mapstructure:"max_workers" yaml:"max_workers" json:"max_workers"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format string `mapstructure:"format" yaml:"format" json:"format"`
	File   string `mapstructure:"file" yaml:"file" json:"file"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	RateLimit       int    `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"` // requests per minute and client, 0 = off
}

// RenderConfig controls marker image generation.
type RenderConfig struct {
	Scale     int    `mapstructure:"scale" yaml:"scale" json:"scale"`
	Quiet     int    `mapstructure:"quiet" yaml:"quiet" json:"quiet"`
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir" json:"output_dir"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	fd := fiducial.DefaultConfig()
	return Config{
		LogLevel: "info",
		Marker: MarkerConfig{
			GridWidth:           fd.Marker.GridWidth,
			BorderFraction:      fd.Marker.BorderFraction,
			BlackBorderFraction: fd.Marker.BlackBorderFraction,
			CellPixels:          fd.Marker.CellPixels,
		},
		Threshold: ThresholdConfig{Method: fd.Threshold.Method, Level: fd.Threshold.Level},
		Camera:    CameraConfig{SideLength: fd.SideLength},
		Parallel:  ParallelConfig{MaxWorkers: fd.Parallel.MaxWorkers},
		Output:    OutputConfig{Format: "text"},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     50,
			TimeoutSec:      30,
			ShutdownTimeout: 10,
		},
		Render: RenderConfig{Scale: 4, Quiet: 10, OutputDir: "."},
	}
}

// Validate validates the configuration and returns the first problem found.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	validFormats := []string{"text", "json", "yaml", "csv"}
	if c.Output.Format != "" && !contains(validFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validFormats, ", "))
	}

	if err := c.MarkerConfig().Validate(); err != nil {
		return fmt.Errorf("invalid marker config: %w", err)
	}
	if _, err := marker.ParseThresholder(c.Threshold.Method, c.Threshold.Level); err != nil {
		return err
	}
	if !(c.Camera.SideLength > 0) || math.IsInf(c.Camera.SideLength, 0) {
		return fmt.Errorf("invalid side length: %g (must be positive)", c.Camera.SideLength)
	}

	if c.Parallel.MaxWorkers < 0 {
		return fmt.Errorf("invalid parallel max workers: %d (must not be negative)", c.Parallel.MaxWorkers)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("invalid rate limit: %d (must be zero or positive)", c.Server.RateLimit)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Render.Scale < 1 {
		return fmt.Errorf("invalid render scale: %d (must be at least 1)", c.Render.Scale)
	}
	if c.Render.Quiet < 0 {
		return fmt.Errorf("invalid quiet zone: %d (must not be negative)", c.Render.Quiet)
	}
	return nil
}

// MarkerConfig converts to marker.Config.
func (c *Config) MarkerConfig() marker.Config {
	return marker.Config{
		GridWidth:           c.Marker.GridWidth,
		BorderFraction:      c.Marker.BorderFraction,
		BlackBorderFraction: c.Marker.BlackBorderFraction,
		CellPixels:          c.Marker.CellPixels,
	}
}

// ToDetectorConfig converts to fiducial.Config, loading the intrinsics file
// when one is configured.
func (c *Config) ToDetectorConfig() (fiducial.Config, error) {
	cfg := fiducial.Config{
		Marker:     c.MarkerConfig(),
		Threshold:  fiducial.ThresholdConfig{Method: c.Threshold.Method, Level: c.Threshold.Level},
		SideLength: c.Camera.SideLength,
		Parallel:   fiducial.ParallelConfig{MaxWorkers: c.Parallel.MaxWorkers},
	}
	if c.Camera.IntrinsicsFile != "" {
		intr, err := camera.Load(c.Camera.IntrinsicsFile)
		if err != nil {
			return fiducial.Config{}, err
		}
		cfg.Intrinsics = &intr
	}
	return cfg, nil
}

// contains checks if a slice contains a string.
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
