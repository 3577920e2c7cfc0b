package marker

import (
	"errors"
	"math"

	"github.com/MeKo-Tech/squarefid/internal/geom"
)

// cellInset is the share of a cell trimmed on every side before averaging,
// which keeps blurred cell edges out of the classification.
const cellInset = 0.2

// Result is a decoded candidate.
type Result struct {
	ID       uint64 `json:"id" yaml:"id"`
	Rotation int    `json:"rotation" yaml:"rotation"` // quarter turns CCW of the marker inside the bitmap
	// Corners are the candidate corners relabelled so Corners[0] is the
	// marker's canonical corner 0 (the black anchor corner).
	Corners geom.Quad `json:"corners" yaml:"corners"`
	// BorderBlack is the share of border pixels classified black.
	BorderBlack float64 `json:"border_black" yaml:"border_black"`
}

// Decoder turns sampled bitmaps into identities. It is safe for concurrent
// use; all per-call state lives on the stack.
type Decoder struct {
	cfg    Config
	layout *Layout
	th     Thresholder
}

// NewDecoder validates cfg. A nil thresholder selects OtsuThreshold.
func NewDecoder(cfg Config, th Thresholder) (*Decoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	layout, err := LayoutFor(cfg.GridWidth)
	if err != nil {
		return nil, err
	}
	if th == nil {
		th = OtsuThreshold{}
	}
	return &Decoder{cfg: cfg, layout: layout, th: th}, nil
}

// Config returns the decoder configuration.
func (d *Decoder) Config() Config { return d.cfg }

// Decode checks the border, resolves the rotation and packs the data bits.
// Failures are *InsufficientBorderContrastError or *AmbiguousOrientationError.
func (d *Decoder) Decode(bm *Bitmap) (Result, error) {
	if bm == nil || bm.Side <= 0 || len(bm.Pix) < bm.Side*bm.Side {
		return Result{}, errors.New("marker: empty bitmap")
	}
	thr := d.th.Threshold(bm)

	black := d.borderBlackFraction(bm, thr)
	if black < d.cfg.BlackBorderFraction {
		return Result{}, &InsufficientBorderContrastError{BlackFraction: black, Required: d.cfg.BlackBorderFraction}
	}

	g := d.cfg.GridWidth
	var cells [MaxGridWidth * MaxGridWidth]bool
	d.classifyCells(bm, thr, &cells)
	isBlack := func(c Cell) bool { return cells[c.Row*g+c.Col] }

	rotation, err := d.resolveRotation(isBlack)
	if err != nil {
		return Result{}, err
	}

	var id uint64
	for i, c := range d.layout.cells {
		if isBlack(rotate(c, g, rotation)) {
			id |= uint64(1) << uint(i)
		}
	}

	res := Result{ID: id, Rotation: rotation, BorderBlack: black}
	if bm.HasQuad {
		res.Corners = bm.Quad.Shifted(rotation)
	}
	return res, nil
}

// resolveRotation tries the four quarter-turn hypotheses and accepts the one
// where the anchor corner is black and the other three are white. Anything
// other than exactly one match is rejected.
func (d *Decoder) resolveRotation(isBlack func(Cell) bool) (int, error) {
	g := d.cfg.GridWidth
	anchor := d.layout.anchor()
	whites := d.layout.whiteCorners()

	rotation, matches := 0, 0
	for k := range 4 {
		if !isBlack(rotate(anchor, g, k)) {
			continue
		}
		ok := true
		for _, w := range whites {
			if isBlack(rotate(w, g, k)) {
				ok = false
				break
			}
		}
		if ok {
			rotation = k
			matches++
		}
	}
	if matches != 1 {
		return 0, &AmbiguousOrientationError{Matches: matches}
	}
	return rotation, nil
}

// geometry returns the border band width and the cell size in bitmap pixels.
func (d *Decoder) geometry(side int) (band, cell float64) {
	n := float64(side)
	band = d.cfg.BorderFraction * n
	cell = (n - 2*band) / float64(d.cfg.GridWidth)
	return band, cell
}

func (d *Decoder) borderBlackFraction(bm *Bitmap, thr float64) float64 {
	n := bm.Side
	band, _ := d.geometry(n)
	lo, hi := band, float64(n)-band

	total, black := 0, 0
	for y := range n {
		cy := float64(y) + 0.5
		rowInBand := cy < lo || cy > hi
		for x := range n {
			cx := float64(x) + 0.5
			if !rowInBand && cx >= lo && cx <= hi {
				continue
			}
			total++
			if float64(bm.Pix[y*n+x]) <= thr {
				black++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(black) / float64(total)
}

// classifyCells averages the inset centre of every cell and compares the
// mean with thr.
func (d *Decoder) classifyCells(bm *Bitmap, thr float64, out *[MaxGridWidth * MaxGridWidth]bool) {
	g := d.cfg.GridWidth
	band, cell := d.geometry(bm.Side)
	for r := range g {
		y0, y1 := pixelSpan(band+float64(r)*cell, cell, bm.Side)
		for c := range g {
			x0, x1 := pixelSpan(band+float64(c)*cell, cell, bm.Side)
			var sum float64
			for y := y0; y <= y1; y++ {
				row := bm.Pix[y*bm.Side : (y+1)*bm.Side]
				for x := x0; x <= x1; x++ {
					sum += float64(row[x])
				}
			}
			mean := sum / float64((y1-y0+1)*(x1-x0+1))
			out[r*g+c] = mean <= thr
		}
	}
}

// pixelSpan returns the inclusive range of pixel indices whose centres lie in
// the inset part of the cell starting at start. At least one pixel is always
// returned.
func pixelSpan(start, cell float64, side int) (int, int) {
	lo := int(math.Ceil(start + cellInset*cell - 0.5))
	hi := int(math.Floor(start + (1-cellInset)*cell - 0.5))
	if hi < lo {
		lo = roundHalf(start + cell/2 - 0.5)
		hi = lo
	}
	lo = max(0, min(lo, side-1))
	hi = max(lo, min(hi, side-1))
	return lo, hi
}
