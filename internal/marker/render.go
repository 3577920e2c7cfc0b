package marker

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

// Intensities used when rendering.
const (
	Black float32 = 0
	White float32 = 255
)

// Render draws marker id in canonical orientation: black border, three
// white orientation corners, black anchor corner bottom-left, set bits black.
func Render(id uint64, cfg Config) (*Bitmap, error) {
	if err := cfg.CheckID(id); err != nil {
		return nil, err
	}
	layout, err := LayoutFor(cfg.GridWidth)
	if err != nil {
		return nil, err
	}

	g := cfg.GridWidth
	cellBlack := make([]bool, g*g)
	cellBlack[layout.anchor().Row*g+layout.anchor().Col] = true
	for i, c := range layout.cells {
		if id&(uint64(1)<<uint(i)) != 0 {
			cellBlack[c.Row*g+c.Col] = true
		}
	}

	n := cfg.BitmapSide()
	bm := NewBitmap(n)
	bm.Fill(Black)
	band := cfg.BorderFraction * float64(n)
	cell := (float64(n) - 2*band) / float64(g)
	for y := range n {
		r, ok := cellOf(float64(y)+0.5, band, cell, g)
		if !ok {
			continue
		}
		for x := range n {
			c, ok := cellOf(float64(x)+0.5, band, cell, g)
			if ok && !cellBlack[r*g+c] {
				bm.Pix[y*n+x] = White
			}
		}
	}
	return bm, nil
}

// cellOf maps a pixel centre coordinate to a cell index along one axis.
func cellOf(p, band, cell float64, g int) (int, bool) {
	if p < band || p >= band+cell*float64(g) {
		return 0, false
	}
	i := int(math.Floor((p - band) / cell))
	return min(i, g-1), true
}

// RenderImage renders id scaled by scale with a white quiet zone of quiet
// bitmap pixels on every side, ready to be printed or saved.
func RenderImage(id uint64, cfg Config, scale, quiet int) (*image.Gray, error) {
	bm, err := Render(id, cfg)
	if err != nil {
		return nil, err
	}
	defer bm.Release()

	if scale < 1 {
		scale = 1
	}
	if quiet < 0 {
		quiet = 0
	}
	full := (bm.Side + 2*quiet) * scale
	out := image.NewGray(image.Rect(0, 0, full, full))
	draw.Draw(out, out.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	off := quiet * scale
	dst := image.Rect(off, off, off+bm.Side*scale, off+bm.Side*scale)
	draw.NearestNeighbor.Scale(out, dst, bm.Image(), image.Rect(0, 0, bm.Side, bm.Side), draw.Src, nil)
	return out, nil
}
