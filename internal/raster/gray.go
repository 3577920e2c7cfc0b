// Package raster provides the read-only grayscale image accessor used by the
// grid sampler.
package raster

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// Source is read-only pixel access with bounds. Coordinates are continuous,
// with pixel (i, j) centred at (i+0.5, j+0.5).
type Source interface {
	// Size returns width and height in pixels.
	Size() (int, int)
	// Bilinear returns the interpolated intensity at (x, y). ok is false
	// when (x, y) lies outside the image.
	Bilinear(x, y float64) (v float64, ok bool)
}

// Gray is a float32 intensity raster with values in [0, 255].
type Gray struct {
	Width  int
	Height int
	Pix    []float32
}

// NewGray allocates a zeroed (black) raster.
func NewGray(width, height int) *Gray {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Gray{Width: width, Height: height, Pix: make([]float32, width*height)}
}

// FromImage converts any image to luminance.
func FromImage(img image.Image) *Gray {
	b := img.Bounds()
	g := NewGray(b.Dx(), b.Dy())
	if src, ok := img.(*image.Gray); ok {
		for y := range g.Height {
			row := src.Pix[y*src.Stride : y*src.Stride+g.Width]
			for x, v := range row {
				g.Pix[y*g.Width+x] = float32(v)
			}
		}
		return g
	}
	// imaging.Grayscale yields NRGBA with R=G=B and its origin at (0, 0).
	nrgba := imaging.Grayscale(img)
	for y := range g.Height {
		off := y * nrgba.Stride
		for x := range g.Width {
			g.Pix[y*g.Width+x] = float32(nrgba.Pix[off+4*x])
		}
	}
	return g
}

// Load reads an image file (JPEG, PNG, GIF, TIFF, BMP) as grayscale.
func Load(path string) (*Gray, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", path, err)
	}
	g := FromImage(img)
	if g.Width == 0 || g.Height == 0 {
		return nil, errors.New("image has zero size")
	}
	return g, nil
}

// Size implements Source.
func (g *Gray) Size() (int, int) { return g.Width, g.Height }

// At returns the pixel value at integer coordinates; out of range reads 0.
func (g *Gray) At(x, y int) float32 {
	if x < 0 || y < 0 || x >= g.Width || y >= g.Height {
		return 0
	}
	return g.Pix[y*g.Width+x]
}

// Set writes a pixel, ignoring out of range coordinates.
func (g *Gray) Set(x, y int, v float32) {
	if x < 0 || y < 0 || x >= g.Width || y >= g.Height {
		return
	}
	g.Pix[y*g.Width+x] = v
}

// Fill sets every pixel to v.
func (g *Gray) Fill(v float32) {
	for i := range g.Pix {
		g.Pix[i] = v
	}
}

// Bilinear implements Source. Points within half a pixel of the border are
// clamped to the edge pixels.
func (g *Gray) Bilinear(x, y float64) (float64, bool) {
	if g.Width == 0 || g.Height == 0 {
		return 0, false
	}
	if math.IsNaN(x) || math.IsNaN(y) || x < 0 || y < 0 || x > float64(g.Width) || y > float64(g.Height) {
		return 0, false
	}
	fx := x - 0.5
	fy := y - 0.5
	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	tx := fx - float64(x0)
	ty := fy - float64(y0)
	x1 := clampInt(x0+1, 0, g.Width-1)
	y1 := clampInt(y0+1, 0, g.Height-1)
	x0 = clampInt(x0, 0, g.Width-1)
	y0 = clampInt(y0, 0, g.Height-1)

	c00 := float64(g.Pix[y0*g.Width+x0])
	c10 := float64(g.Pix[y0*g.Width+x1])
	c01 := float64(g.Pix[y1*g.Width+x0])
	c11 := float64(g.Pix[y1*g.Width+x1])
	return lerp(lerp(c00, c10, tx), lerp(c01, c11, tx), ty), true
}

// ToImage converts the raster to an 8-bit image, rounding and clamping.
func (g *Gray) ToImage() *image.Gray {
	out := image.NewGray(image.Rect(0, 0, g.Width, g.Height))
	for i, v := range g.Pix {
		out.Pix[i] = ToUint8(v)
	}
	return out
}

// ToUint8 rounds and clamps an intensity to a byte.
func ToUint8(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
