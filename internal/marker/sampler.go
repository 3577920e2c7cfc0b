package marker

import (
	"math"

	"github.com/MeKo-Tech/squarefid/internal/geom"
	"github.com/MeKo-Tech/squarefid/internal/raster"
)

// minQuadArea rejects candidates smaller than one square pixel.
const minQuadArea = 1.0

// Sampler resamples candidate quadrilaterals into square bitmaps.
type Sampler struct {
	side int
}

// NewSampler validates cfg and fixes the output bitmap size.
func NewSampler(cfg Config) (*Sampler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Sampler{side: cfg.BitmapSide()}, nil
}

// Side returns the bitmap side in pixels.
func (s *Sampler) Side() int { return s.side }

// Sample maps the unit square onto quad (corner i to corner i) and samples
// every bitmap pixel centre from src with bilinear interpolation. A quad
// wound the opposite way is mirrored first so the mapping never reflects the
// marker. src is only read.
func (s *Sampler) Sample(src raster.Source, quad geom.Quad) (*Bitmap, error) {
	if !quad.Valid() || quad.HasCollinearCorners() {
		return nil, ErrDegenerateQuad
	}
	if quad.SignedArea() < 0 {
		quad = quad.Mirrored()
	}
	if quad.SignedArea() < minQuadArea {
		return nil, ErrDegenerateQuad
	}
	h, ok := geom.SquareToQuad(quad)
	if !ok {
		return nil, ErrDegenerateQuad
	}

	n := s.side
	bm := NewBitmap(n)
	inv := 1 / float64(n)
	for v := range n {
		fv := (float64(v) + 0.5) * inv
		for u := range n {
			x, y, ok := h.Apply((float64(u)+0.5)*inv, fv)
			if !ok {
				bm.Release()
				return nil, ErrDegenerateQuad
			}
			val, ok := src.Bilinear(x, y)
			if !ok {
				bm.Release()
				w, hgt := src.Size()
				return nil, &SampleOutOfBoundsError{X: x, Y: y, Width: w, Height: hgt}
			}
			bm.Pix[v*n+u] = float32(val)
		}
	}
	bm.Quad, bm.HasQuad = quad, true
	return bm, nil
}

// roundHalf rounds to nearest, used for pixel index ranges.
func roundHalf(v float64) int { return int(math.Floor(v + 0.5)) }
