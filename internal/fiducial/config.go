// Package fiducial runs the per-frame marker pipeline: every candidate
// quadrilateral is sampled, decoded and, when a camera model is configured,
// posed. Candidates are independent and run on a bounded worker pool.
package fiducial

import (
	"errors"
	"fmt"
	"math"
	"runtime"

	"github.com/MeKo-Tech/squarefid/internal/camera"
	"github.com/MeKo-Tech/squarefid/internal/marker"
)

// ThresholdConfig selects how sampled bitmaps are binarised.
type ThresholdConfig struct {
	Method string  `json:"method" yaml:"method"` // "otsu" or "fixed"
	Level  float64 `json:"level" yaml:"level"`   // used by "fixed"
}

// ParallelConfig bounds the worker pool.
type ParallelConfig struct {
	MaxWorkers int `json:"max_workers" yaml:"max_workers"` // 0 = runtime.NumCPU()
}

// Config holds everything a Detector needs. It is validated once by
// NewDetector.
type Config struct {
	Marker     marker.Config      `json:"marker" yaml:"marker"`
	Threshold  ThresholdConfig    `json:"threshold" yaml:"threshold"`
	SideLength float64            `json:"side_length" yaml:"side_length"` // physical marker side, border included
	Intrinsics *camera.Intrinsics `json:"intrinsics,omitempty" yaml:"intrinsics,omitempty"`
	Parallel   ParallelConfig     `json:"parallel" yaml:"parallel"`
}

// DefaultConfig returns the default marker family with Otsu thresholding, a
// unit side length and no camera model.
func DefaultConfig() Config {
	return Config{
		Marker:     marker.DefaultConfig(),
		Threshold:  ThresholdConfig{Method: "otsu", Level: 127},
		SideLength: 1,
		Parallel:   ParallelConfig{MaxWorkers: runtime.NumCPU()},
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := c.Marker.Validate(); err != nil {
		return fmt.Errorf("marker: %w", err)
	}
	if _, err := marker.ParseThresholder(c.Threshold.Method, c.Threshold.Level); err != nil {
		return fmt.Errorf("threshold: %w", err)
	}
	if c.Intrinsics != nil {
		if err := c.Intrinsics.Validate(); err != nil {
			return err
		}
		if !(c.SideLength > 0) || math.IsInf(c.SideLength, 0) {
			return fmt.Errorf("invalid side length: %g (must be positive)", c.SideLength)
		}
	}
	if c.Parallel.MaxWorkers < 0 {
		return errors.New("max workers cannot be negative")
	}
	return nil
}

func (c Config) workers() int {
	if c.Parallel.MaxWorkers <= 0 {
		return runtime.NumCPU()
	}
	return c.Parallel.MaxWorkers
}
