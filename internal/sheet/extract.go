package sheet

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// ExtractImages pulls the embedded images out of a PDF, grouped by page.
// pageRange selects pages ("1-3,5"); empty means all pages.
func ExtractImages(filename string, pageRange string) (map[int][]image.Image, error) {
	pages, err := ParsePageRange(pageRange)
	if err != nil {
		return nil, fmt.Errorf("invalid page range %q: %w", pageRange, err)
	}

	tempDir, err := os.MkdirTemp("", "squarefid-extract-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	var selected []string
	for _, p := range pages {
		selected = append(selected, strconv.Itoa(p))
	}
	if err := api.ExtractImagesFile(filename, tempDir, selected, nil); err != nil {
		return nil, fmt.Errorf("failed to extract images from PDF: %w", err)
	}

	result, err := collectExtractedImages(tempDir)
	if err != nil {
		return nil, fmt.Errorf("failed to process extracted images: %w", err)
	}
	return result, nil
}

// PageCount returns the number of pages of a PDF file.
func PageCount(filename string) (int, error) {
	return api.PageCountFile(filename)
}

// collectExtractedImages groups the files pdfcpu wrote by page. Names look
// like <base>_<page>_<object>.<ext>; files that do not parse or decode are
// skipped.
func collectExtractedImages(dir string) (map[int][]image.Image, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	result := make(map[int][]image.Image)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		page, err := pageFromFilename(e.Name())
		if err != nil {
			continue
		}
		img, err := imaging.Open(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		result[page] = append(result[page], img)
	}
	return result, nil
}

// pageFromFilename finds the page number pdfcpu encodes in extracted file
// names. Both page_<n>_... and <base>_<n>_<obj>.<ext> are accepted.
func pageFromFilename(filename string) (int, error) {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	parts := strings.Split(stem, "_")
	if len(parts) < 2 {
		return 0, errors.New("invalid filename format")
	}
	if parts[0] == "page" {
		return strconv.Atoi(parts[1])
	}
	if len(parts) < 3 {
		return 0, errors.New("invalid filename format")
	}
	return strconv.Atoi(parts[len(parts)-2])
}

// ParsePageRange parses a page selection like "1-5" or "1,3,5".
func ParsePageRange(pageRange string) ([]int, error) {
	if strings.TrimSpace(pageRange) == "" {
		return nil, nil
	}

	var pages []int
	for _, part := range strings.Split(pageRange, ",") {
		tokenPages, err := parseRangeToken(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		pages = append(pages, tokenPages...)
	}
	return pages, nil
}

func parseRangeToken(part string) ([]int, error) {
	if !strings.Contains(part, "-") {
		page, err := strconv.Atoi(part)
		if err != nil || page < 1 {
			return nil, fmt.Errorf("invalid page number: %s", part)
		}
		return []int{page}, nil
	}

	bounds := strings.Split(part, "-")
	if len(bounds) != 2 {
		return nil, fmt.Errorf("invalid range format: %s", part)
	}
	start, err := strconv.Atoi(strings.TrimSpace(bounds[0]))
	if err != nil || start < 1 {
		return nil, fmt.Errorf("invalid start page: %s", bounds[0])
	}
	end, err := strconv.Atoi(strings.TrimSpace(bounds[1]))
	if err != nil {
		return nil, fmt.Errorf("invalid end page: %s", bounds[1])
	}
	if start > end {
		return nil, fmt.Errorf("start page %d greater than end page %d", start, end)
	}
	out := make([]int, 0, end-start+1)
	for i := start; i <= end; i++ {
		out = append(out, i)
	}
	return out, nil
}
