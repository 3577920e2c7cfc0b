package marker

import (
	"image"

	"github.com/MeKo-Tech/squarefid/internal/geom"
	"github.com/MeKo-Tech/squarefid/internal/mempool"
	"github.com/MeKo-Tech/squarefid/internal/raster"
)

// Bitmap is a square, axis-aligned resampling of one marker candidate,
// border included, with intensities in [0, 255].
type Bitmap struct {
	Side int
	Pix  []float32

	// Quad is the winding-normalised image outline the bitmap was sampled
	// from; HasQuad is false for rendered bitmaps.
	Quad    geom.Quad
	HasQuad bool
}

// NewBitmap returns a bitmap backed by a pooled buffer. Pixel values are
// unspecified until written. Call Release when done.
func NewBitmap(side int) *Bitmap {
	if side < 0 {
		side = 0
	}
	return &Bitmap{Side: side, Pix: mempool.Float32.Get(side * side)}
}

// Release hands the pixel buffer back to the pool. The bitmap must not be
// used afterwards.
func (b *Bitmap) Release() {
	if b == nil || b.Pix == nil {
		return
	}
	mempool.Float32.Put(b.Pix)
	b.Pix = nil
}

// At returns the pixel at (x, y).
func (b *Bitmap) At(x, y int) float32 { return b.Pix[y*b.Side+x] }

// Set writes the pixel at (x, y).
func (b *Bitmap) Set(x, y int, v float32) { b.Pix[y*b.Side+x] = v }

// Fill sets every pixel to v.
func (b *Bitmap) Fill(v float32) {
	for i := range b.Pix {
		b.Pix[i] = v
	}
}

// Clone returns a deep copy backed by its own pooled buffer.
func (b *Bitmap) Clone() *Bitmap {
	out := NewBitmap(b.Side)
	copy(out.Pix, b.Pix)
	out.Quad, out.HasQuad = b.Quad, b.HasQuad
	return out
}

// RotateCCW returns a copy turned a quarter turn counter-clockwise.
func (b *Bitmap) RotateCCW() *Bitmap {
	n := b.Side
	out := NewBitmap(n)
	for y := range n {
		for x := range n {
			out.Set(y, n-1-x, b.At(x, y))
		}
	}
	return out
}

// Gray copies the bitmap into a raster so it can be sampled like an image.
func (b *Bitmap) Gray() *raster.Gray {
	g := raster.NewGray(b.Side, b.Side)
	copy(g.Pix, b.Pix)
	return g
}

// Image converts the bitmap to an 8-bit grayscale image.
func (b *Bitmap) Image() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, b.Side, b.Side))
	for i, v := range b.Pix {
		img.Pix[i] = raster.ToUint8(v)
	}
	return img
}

// BitmapFromImage converts a square image into a bitmap.
func BitmapFromImage(img image.Image) *Bitmap {
	g := raster.FromImage(img)
	side := min(g.Width, g.Height)
	out := NewBitmap(side)
	for y := range side {
		copy(out.Pix[y*side:(y+1)*side], g.Pix[y*g.Width:y*g.Width+side])
	}
	return out
}
