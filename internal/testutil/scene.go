// Package testutil builds synthetic scenes for detector tests: rendered
// markers pasted or perspective-warped into grayscale images.
package testutil

import (
	"errors"
	"math"
	"math/rand"

	"github.com/MeKo-Tech/squarefid/internal/geom"
	"github.com/MeKo-Tech/squarefid/internal/marker"
	"github.com/MeKo-Tech/squarefid/internal/raster"
)

// Common scene sizes.
var (
	SmallSize  = [2]int{320, 240}
	MediumSize = [2]int{640, 480}
)

// NewScene returns a width x height raster filled with bg.
func NewScene(width, height int, bg float32) *raster.Gray {
	g := raster.NewGray(width, height)
	g.Fill(bg)
	return g
}

// PasteMarker copies bm into dst with its top-left pixel at (x0, y0) and
// returns the outline in UnitSquare order (bottom-left, top-left, top-right,
// bottom-right).
func PasteMarker(dst *raster.Gray, bm *marker.Bitmap, x0, y0 int) geom.Quad {
	for y := range bm.Side {
		for x := range bm.Side {
			dst.Set(x0+x, y0+y, bm.At(x, y))
		}
	}
	l, t := float64(x0), float64(y0)
	r, b := l+float64(bm.Side), t+float64(bm.Side)
	return geom.Quad{{X: l, Y: b}, {X: l, Y: t}, {X: r, Y: t}, {X: r, Y: b}}
}

// WarpMarker draws bm into dst so that the unit square lands on quad,
// averaging ss x ss nearest-neighbour samples per destination pixel.
func WarpMarker(dst *raster.Gray, bm *marker.Bitmap, quad geom.Quad, ss int) error {
	h, ok := geom.SquareToQuad(quad)
	if !ok {
		return errors.New("degenerate quad")
	}
	inv, ok := h.Inverse()
	if !ok {
		return errors.New("singular homography")
	}
	if ss < 1 {
		ss = 1
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range quad {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	x0, x1 := max(0, int(math.Floor(minX))), min(dst.Width-1, int(math.Ceil(maxX)))
	y0, y1 := max(0, int(math.Floor(minY))), min(dst.Height-1, int(math.Ceil(maxY)))

	n := float64(bm.Side)
	step := 1 / float64(ss)
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			bg := float64(dst.At(x, y))
			var sum float64
			for sy := range ss {
				for sx := range ss {
					px := float64(x) + (float64(sx)+0.5)*step
					py := float64(y) + (float64(sy)+0.5)*step
					u, v, ok := inv.Apply(px, py)
					if !ok || u < 0 || v < 0 || u >= 1 || v >= 1 {
						sum += bg
						continue
					}
					sum += float64(bm.At(int(u*n), int(v*n)))
				}
			}
			dst.Set(x, y, float32(sum/float64(ss*ss)))
		}
	}
	return nil
}

// Noise fills a raster with uniform values in [0, 255].
func Noise(width, height int, rng *rand.Rand) *raster.Gray {
	g := raster.NewGray(width, height)
	for i := range g.Pix {
		g.Pix[i] = float32(rng.Intn(256))
	}
	return g
}

// NoiseBitmap returns a side x side bitmap of uniform noise.
func NoiseBitmap(side int, rng *rand.Rand) *marker.Bitmap {
	bm := marker.NewBitmap(side)
	for i := range bm.Pix {
		bm.Pix[i] = float32(rng.Intn(256))
	}
	return bm
}

// Rand returns a deterministic generator for reproducible scenes.
func Rand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
