package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/squarefid/internal/config"
	"github.com/MeKo-Tech/squarefid/internal/fiducial"
	"github.com/MeKo-Tech/squarefid/internal/raster"
	"github.com/MeKo-Tech/squarefid/internal/sheet"
)

// detectCmd represents the detect command.
var detectCmd = &cobra.Command{
	Use:   "detect [flags] IMAGE...",
	Short: "Decode markers from candidate quadrilaterals",
	Long: `Decode markers from images (PNG, JPEG, BMP, TIFF) or PDF scans.

Candidate quadrilaterals come from a YAML or JSON file that maps frame names
to lists of four [x, y] corners; the key "*" applies to every frame without
its own entry. PDF pages are named <file>#<page> (or <file>#<page>.<n> when a
page holds several images).

Examples:
  squarefid detect scene.png --quads quads.yaml
  squarefid detect frames/*.png --quads quads.yaml --format csv --output markers.csv
  squarefid detect scan.pdf --pages 1-3 --quads quads.yaml
  squarefid detect scene.png --quads quads.yaml --intrinsics camera.yaml --side-length 0.05`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		applyMarkerFlags(cmd, cfg)
		applyDetectorFlags(cmd, cfg)
		overrideString(cmd, "format", &cfg.Output.Format)
		overrideString(cmd, "output", &cfg.Output.File)
		if err := cfg.Validate(); err != nil {
			return err
		}

		opts := detectOptions{}
		opts.quads, _ = cmd.Flags().GetString("quads")
		opts.pages, _ = cmd.Flags().GetString("pages")
		opts.sortByID, _ = cmd.Flags().GetBool("sort-by-id")
		opts.stats, _ = cmd.Flags().GetBool("stats")
		if showProgress, _ := cmd.Flags().GetBool("progress"); showProgress {
			opts.progress = fiducial.NewConsoleProgressCallback(cmd.ErrOrStderr())
		}

		return runDetection(cmd.Context(), cfg, opts, args, cmd.OutOrStdout())
	},
}

type detectOptions struct {
	quads    string
	pages    string
	sortByID bool
	stats    bool
	progress fiducial.ProgressCallback
}

// runDetection loads the frames, decodes them and writes the formatted
// results to cfg.Output.File or out.
func runDetection(ctx context.Context, cfg *config.Config, opts detectOptions, paths []string, out io.Writer) error {
	if opts.quads == "" {
		return errors.New("--quads is required")
	}
	candidates, err := fiducial.LoadCandidates(opts.quads)
	if err != nil {
		return err
	}

	dcfg, err := cfg.ToDetectorConfig()
	if err != nil {
		return err
	}
	det, err := fiducial.NewDetector(dcfg, fiducial.WithLogger(slog.Default()))
	if err != nil {
		return err
	}

	frames, err := loadFrames(paths, opts.pages, candidates)
	if err != nil {
		return err
	}
	slog.Debug("Frames loaded", "count", len(frames), "pose", det.HasPose())

	start := time.Now()
	results, err := det.DetectFrames(ctx, frames, opts.progress)
	if err != nil {
		return err
	}
	if opts.sortByID {
		for _, fr := range results {
			fiducial.SortByID(fr)
		}
	}
	if opts.stats {
		stats := fiducial.CalculateBatchStats(results, time.Since(start), dcfg.Parallel.MaxWorkers)
		slog.Info("Batch statistics",
			"frames", stats.Frames,
			"markers", stats.Markers,
			"candidates", stats.Candidates,
			"throughput_per_sec", stats.ThroughputPerSec)
	}

	final, err := fiducial.Format(results, cfg.Output.Format)
	if err != nil {
		return err
	}
	if cfg.Output.File != "" {
		if err := os.WriteFile(cfg.Output.File, []byte(final), 0o600); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		slog.Info("Results written", "file", cfg.Output.File)
		return nil
	}
	_, err = io.WriteString(out, final)
	return err
}

// loadFrames reads every path into frames and attaches their candidates.
func loadFrames(paths []string, pages string, candidates *fiducial.CandidateFile) ([]fiducial.Frame, error) {
	var frames []fiducial.Frame
	add := func(name string, src raster.Source) error {
		quads, err := candidates.Lookup(name)
		if err != nil {
			return err
		}
		frames = append(frames, fiducial.Frame{Name: name, Source: src, Quads: quads})
		return nil
	}

	for _, path := range paths {
		if !strings.EqualFold(filepath.Ext(path), ".pdf") {
			img, err := raster.Load(path)
			if err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", path, err)
			}
			if err := add(path, img); err != nil {
				return nil, err
			}
			continue
		}

		byPage, err := sheet.ExtractImages(path, pages)
		if err != nil {
			return nil, err
		}
		pageNums := make([]int, 0, len(byPage))
		for p := range byPage {
			pageNums = append(pageNums, p)
		}
		sort.Ints(pageNums)
		for _, p := range pageNums {
			imgs := byPage[p]
			for i, img := range imgs {
				name := fmt.Sprintf("%s#%d", path, p)
				if len(imgs) > 1 {
					name = fmt.Sprintf("%s.%d", name, i+1)
				}
				if err := add(name, raster.FromImage(img)); err != nil {
					return nil, err
				}
			}
		}
	}
	return frames, nil
}

func init() {
	rootCmd.AddCommand(detectCmd)

	addMarkerFlags(detectCmd)
	addDetectorFlags(detectCmd)
	detectCmd.Flags().StringP("quads", "q", "", "candidate quadrilateral file (YAML or JSON)")
	detectCmd.Flags().String("pages", "", "page range for PDF inputs (e.g. 1-3,5)")
	detectCmd.Flags().StringP("format", "f", "text", "output format (text, json, yaml, csv)")
	detectCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	detectCmd.Flags().Bool("sort-by-id", false, "order markers by identity instead of candidate index")
	detectCmd.Flags().Bool("progress", false, "show a progress bar on stderr")
	detectCmd.Flags().Bool("stats", false, "log batch statistics")
}
