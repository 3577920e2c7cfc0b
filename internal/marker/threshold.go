package marker

import (
	"fmt"
	"strings"
)

// Thresholder picks the intensity cut for one bitmap. Values at or below the
// cut are black.
type Thresholder interface {
	Threshold(bm *Bitmap) float64
}

// FixedThreshold applies the same global cut to every bitmap.
type FixedThreshold float64

// Threshold implements Thresholder.
func (t FixedThreshold) Threshold(*Bitmap) float64 { return float64(t) }

// OtsuThreshold adapts the cut per bitmap: it finds the Otsu split of the
// intensity histogram and returns the midpoint between the two class means.
type OtsuThreshold struct{}

// Threshold implements Thresholder.
func (OtsuThreshold) Threshold(bm *Bitmap) float64 {
	return otsuMidpoint(bm.Pix)
}

const histogramBins = 256

func otsuMidpoint(pix []float32) float64 {
	if len(pix) == 0 {
		return 127.5
	}

	var histogram [histogramBins]int
	var sums [histogramBins]float64
	var totalSum float64
	for _, v := range pix {
		bin := int(v)
		if bin < 0 {
			bin = 0
		} else if bin >= histogramBins {
			bin = histogramBins - 1
		}
		histogram[bin]++
		sums[bin] += float64(v)
		totalSum += float64(v)
	}

	totalPixels := len(pix)
	var maxVariance float64
	bestMid := totalSum / float64(totalPixels)
	var sumB float64
	wB := 0

	for t := range histogramBins {
		wB += histogram[t]
		if wB == 0 {
			continue
		}
		wF := totalPixels - wB
		if wF == 0 {
			break
		}

		sumB += sums[t]
		meanB := sumB / float64(wB)
		meanF := (totalSum - sumB) / float64(wF)

		// Between-class variance
		variance := float64(wB) * float64(wF) * (meanB - meanF) * (meanB - meanF)
		if variance > maxVariance {
			maxVariance = variance
			bestMid = (meanB + meanF) / 2
		}
	}
	return bestMid
}

// ParseThresholder builds a thresholder from its config name: "otsu" or
// "fixed" (which uses level).
func ParseThresholder(method string, level float64) (Thresholder, error) {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case "", "otsu":
		return OtsuThreshold{}, nil
	case "fixed":
		if level < 0 || level > 255 {
			return nil, fmt.Errorf("invalid fixed threshold level: %.1f (must be between 0 and 255)", level)
		}
		return FixedThreshold(level), nil
	default:
		return nil, fmt.Errorf("unknown threshold method: %s (must be one of: otsu, fixed)", method)
	}
}
