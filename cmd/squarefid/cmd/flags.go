package cmd

import (
	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/squarefid/internal/config"
)

// addMarkerFlags registers the marker geometry flags shared by detect,
// render and serve.
func addMarkerFlags(cmd *cobra.Command) {
	cmd.Flags().Int("grid-width", 4, "data grid cells per side (3..8)")
	cmd.Flags().Float64("border-fraction", 0.25, "border band width as a fraction of the marker side")
	cmd.Flags().Float64("black-border", 0.65, "minimum share of border pixels that must be black")
	cmd.Flags().Int("cell-pixels", 10, "sampled bitmap pixels per cell")
}

// addDetectorFlags registers thresholding, pose and worker flags.
func addDetectorFlags(cmd *cobra.Command) {
	cmd.Flags().String("threshold", "otsu", "bitmap threshold method (otsu, fixed)")
	cmd.Flags().Float64("threshold-level", 127, "intensity cut for --threshold=fixed")
	cmd.Flags().String("intrinsics", "", "camera intrinsics file (YAML or JSON); enables pose estimation")
	cmd.Flags().Float64("side-length", 1, "physical marker side length, border included")
	cmd.Flags().IntP("workers", "w", 0, "number of parallel workers (0 = number of CPUs)")
}

// applyMarkerFlags overrides configuration values with explicitly set flags.
func applyMarkerFlags(cmd *cobra.Command, cfg *config.Config) {
	overrideInt(cmd, "grid-width", &cfg.Marker.GridWidth)
	overrideFloat(cmd, "border-fraction", &cfg.Marker.BorderFraction)
	overrideFloat(cmd, "black-border", &cfg.Marker.BlackBorderFraction)
	overrideInt(cmd, "cell-pixels", &cfg.Marker.CellPixels)
}

func applyDetectorFlags(cmd *cobra.Command, cfg *config.Config) {
	overrideString(cmd, "threshold", &cfg.Threshold.Method)
	overrideFloat(cmd, "threshold-level", &cfg.Threshold.Level)
	overrideString(cmd, "intrinsics", &cfg.Camera.IntrinsicsFile)
	overrideFloat(cmd, "side-length", &cfg.Camera.SideLength)
	overrideInt(cmd, "workers", &cfg.Parallel.MaxWorkers)
}

func overrideString(cmd *cobra.Command, name string, dst *string) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetString(name)
	}
}

func overrideInt(cmd *cobra.Command, name string, dst *int) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetInt(name)
	}
}

func overrideFloat(cmd *cobra.Command, name string, dst *float64) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetFloat64(name)
	}
}
