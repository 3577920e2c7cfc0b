// Package sheet writes printable marker sheets as PDF and reads scanned
// sheets back as images.
package sheet

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"

	"github.com/MeKo-Tech/squarefid/internal/marker"
)

// ErrNoMarkers is returned when a sheet is requested for an empty id list.
var ErrNoMarkers = errors.New("sheet: no marker ids")

// Options controls how markers are rasterised before they are placed on
// pages, one marker per page.
type Options struct {
	Marker marker.Config
	Scale  int // output pixels per bitmap pixel
	Quiet  int // white margin in bitmap pixels
}

// DefaultOptions renders default markers at 4x with a 10 pixel quiet zone.
func DefaultOptions() Options {
	return Options{Marker: marker.DefaultConfig(), Scale: 4, Quiet: 10}
}

// Write renders every id and writes them to a PDF at path.
func Write(path string, ids []uint64, opts Options) error {
	if len(ids) == 0 {
		return ErrNoMarkers
	}

	tempDir, err := os.MkdirTemp("", "squarefid-sheet-*")
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	files, err := RenderFiles(tempDir, ids, opts)
	if err != nil {
		return err
	}
	if err := api.ImportImagesFile(files, path, pdfcpu.DefaultImportConfig(), nil); err != nil {
		return fmt.Errorf("failed to write marker sheet: %w", err)
	}
	return nil
}

// RenderFiles writes one PNG per id into dir and returns the file paths in
// id order. Files are named marker_<id>.png.
func RenderFiles(dir string, ids []uint64, opts Options) ([]string, error) {
	files := make([]string, 0, len(ids))
	for _, id := range ids {
		img, err := marker.RenderImage(id, opts.Marker, opts.Scale, opts.Quiet)
		if err != nil {
			return nil, fmt.Errorf("marker %d: %w", id, err)
		}
		path := filepath.Join(dir, FileName(id))
		if err := imaging.Save(img, path); err != nil {
			return nil, fmt.Errorf("failed to save marker %d: %w", id, err)
		}
		files = append(files, path)
	}
	return files, nil
}

// FileName is the PNG name used for a rendered marker.
func FileName(id uint64) string {
	return fmt.Sprintf("marker_%d.png", id)
}
