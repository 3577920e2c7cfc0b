package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/squarefid/internal/sheet"
)

var renderCmd = &cobra.Command{
	Use:   "render [flags] [ID...]",
	Short: "Render printable marker images",
	Long: `Render markers in canonical orientation as PNG files, or as a PDF with
one marker per page.

Examples:
  squarefid render 7
  squarefid render 1 2 3 --out-dir markers
  squarefid render --range 0-49 --pdf markers.pdf
  squarefid render 100 --grid-width 5 --scale 8`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		applyMarkerFlags(cmd, cfg)
		overrideInt(cmd, "scale", &cfg.Render.Scale)
		overrideInt(cmd, "quiet", &cfg.Render.Quiet)
		overrideString(cmd, "out-dir", &cfg.Render.OutputDir)
		if err := cfg.Validate(); err != nil {
			return err
		}

		idRange, _ := cmd.Flags().GetString("range")
		ids, err := parseIDs(args, idRange)
		if err != nil {
			return err
		}

		opts := sheet.Options{Marker: cfg.MarkerConfig(), Scale: cfg.Render.Scale, Quiet: cfg.Render.Quiet}
		if pdfPath, _ := cmd.Flags().GetString("pdf"); pdfPath != "" {
			if err := sheet.Write(pdfPath, ids, opts); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d markers to %s\n", len(ids), pdfPath)
			return nil
		}

		if err := os.MkdirAll(cfg.Render.OutputDir, 0o750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		files, err := sheet.RenderFiles(cfg.Render.OutputDir, ids, opts)
		if err != nil {
			return err
		}
		for _, f := range files {
			slog.Debug("Marker rendered", "file", f)
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), f)
		}
		return nil
	},
}

// parseIDs combines positional ids with an inclusive "lo-hi" range.
func parseIDs(args []string, idRange string) ([]uint64, error) {
	ids := make([]uint64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseUint(a, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid marker id: %s", a)
		}
		ids = append(ids, id)
	}

	if idRange != "" {
		lo, hi, ok := strings.Cut(idRange, "-")
		if !ok {
			return nil, fmt.Errorf("invalid id range format: %s", idRange)
		}
		start, err := strconv.ParseUint(strings.TrimSpace(lo), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid range start: %s", lo)
		}
		end, err := strconv.ParseUint(strings.TrimSpace(hi), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid range end: %s", hi)
		}
		if start > end {
			return nil, fmt.Errorf("range start %d greater than end %d", start, end)
		}
		for id := start; id <= end; id++ {
			ids = append(ids, id)
			if id == end {
				break
			}
		}
	}

	if len(ids) == 0 {
		return nil, errors.New("no marker ids given")
	}
	return ids, nil
}

func init() {
	rootCmd.AddCommand(renderCmd)

	addMarkerFlags(renderCmd)
	renderCmd.Flags().String("range", "", "inclusive id range, e.g. 0-49")
	renderCmd.Flags().Int("scale", 4, "output pixels per bitmap pixel")
	renderCmd.Flags().Int("quiet", 10, "white margin in bitmap pixels")
	renderCmd.Flags().String("out-dir", ".", "directory for PNG output")
	renderCmd.Flags().String("pdf", "", "write a PDF with one marker per page instead of PNG files")
}
