// Package marker samples, decodes and renders square binary fiducials: a
// black border around a GridWidth x GridWidth grid of black/white cells whose
// four corner cells fix the orientation and whose remaining cells carry the
// identity bits.
package marker

import (
	"fmt"
	"math"
)

const (
	// MinGridWidth is the smallest grid that leaves room for data bits.
	MinGridWidth = 3
	// MaxGridWidth keeps GridWidth^2-4 bits within a uint64 identity.
	MaxGridWidth = 8
)

// Config describes the marker family. It is validated once at construction
// and never changes per frame.
type Config struct {
	GridWidth           int     `json:"grid_width" yaml:"grid_width"`                       // cells per side of the data grid
	BorderFraction      float64 `json:"border_fraction" yaml:"border_fraction"`             // share of the side taken by each border band
	BlackBorderFraction float64 `json:"black_border_fraction" yaml:"black_border_fraction"` // minimum share of black border pixels
	CellPixels          int     `json:"cell_pixels" yaml:"cell_pixels"`                     // bitmap pixels per cell side
}

// DefaultConfig returns the 4x4 grid, quarter-width border family.
func DefaultConfig() Config {
	return Config{
		GridWidth:           4,
		BorderFraction:      0.25,
		BlackBorderFraction: 0.65,
		CellPixels:          10,
	}
}

// Validate checks every field.
func (c Config) Validate() error {
	if c.GridWidth < MinGridWidth || c.GridWidth > MaxGridWidth {
		return fmt.Errorf("%w: %d (must be between %d and %d)", ErrGridWidth, c.GridWidth, MinGridWidth, MaxGridWidth)
	}
	if !(c.BorderFraction > 0 && c.BorderFraction < 0.5) {
		return fmt.Errorf("%w: %.3f (must be in (0, 0.5))", ErrBorderFraction, c.BorderFraction)
	}
	if !(c.BlackBorderFraction > 0 && c.BlackBorderFraction <= 1) {
		return fmt.Errorf("invalid black border fraction: %.3f (must be in (0, 1])", c.BlackBorderFraction)
	}
	if c.CellPixels <= 0 {
		return fmt.Errorf("invalid cell pixels: %d (must be positive)", c.CellPixels)
	}
	return nil
}

// DataBits is the number of identity bits: every cell except the four
// orientation corners.
func (c Config) DataBits() int { return c.GridWidth*c.GridWidth - 4 }

// BitmapSide is the side in pixels of a sampled or rendered bitmap covering
// the whole marker, border included.
func (c Config) BitmapSide() int {
	return int(math.Round(float64(c.CellPixels*c.GridWidth) / (1 - 2*c.BorderFraction)))
}

// Capacity returns how many distinct identities the family can encode.
func (c Config) Capacity() (uint64, error) {
	return DistinctIdentities(c.GridWidth)
}

// CheckID reports whether id is encodable by this family.
func (c Config) CheckID(id uint64) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if id>>uint(c.DataBits()) != 0 {
		n, _ := c.Capacity()
		return fmt.Errorf("%w: %d (grid %d holds ids below %d)", ErrIDOutOfRange, id, c.GridWidth, n)
	}
	return nil
}
