// Package camera holds the pinhole camera model used for pose recovery.
// Lens distortion is assumed to be corrected before pixels reach this code.
package camera

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/golang/geo/r3"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/squarefid/internal/geom"
)

// ErrInvalidIntrinsics is wrapped by every Validate failure.
var ErrInvalidIntrinsics = errors.New("invalid camera intrinsics")

// Intrinsics is a pinhole model:
//
//	u = fx*x + skew*y + cx
//	v = fy*y + cy
//
// for normalised image coordinates (x, y) = (X/Z, Y/Z).
type Intrinsics struct {
	Fx     float64 `json:"fx" yaml:"fx"`
	Fy     float64 `json:"fy" yaml:"fy"`
	Skew   float64 `json:"skew,omitempty" yaml:"skew,omitempty"`
	Cx     float64 `json:"cx" yaml:"cx"`
	Cy     float64 `json:"cy" yaml:"cy"`
	Width  int     `json:"width,omitempty" yaml:"width,omitempty"`
	Height int     `json:"height,omitempty" yaml:"height,omitempty"`
}

// Validate requires positive, finite focal lengths and a finite principal
// point. Width and Height are optional.
func (in Intrinsics) Validate() error {
	for name, v := range map[string]float64{"fx": in.Fx, "fy": in.Fy, "skew": in.Skew, "cx": in.Cx, "cy": in.Cy} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidIntrinsics, name)
		}
	}
	if in.Fx <= 0 || in.Fy <= 0 {
		return fmt.Errorf("%w: focal lengths must be positive (fx=%g, fy=%g)", ErrInvalidIntrinsics, in.Fx, in.Fy)
	}
	if in.Width < 0 || in.Height < 0 {
		return fmt.Errorf("%w: negative image size %dx%d", ErrInvalidIntrinsics, in.Width, in.Height)
	}
	return nil
}

// PixelToNorm converts a pixel to normalised image coordinates.
func (in Intrinsics) PixelToNorm(p geom.Point) geom.Point {
	y := (p.Y - in.Cy) / in.Fy
	x := (p.X - in.Cx - in.Skew*y) / in.Fx
	return geom.Point{X: x, Y: y}
}

// NormToPixel is the inverse of PixelToNorm.
func (in Intrinsics) NormToPixel(n geom.Point) geom.Point {
	return geom.Point{
		X: in.Fx*n.X + in.Skew*n.Y + in.Cx,
		Y: in.Fy*n.Y + in.Cy,
	}
}

// Project maps a camera-frame point to pixels. ok is false for points on or
// behind the camera plane.
func (in Intrinsics) Project(p r3.Vector) (geom.Point, bool) {
	if p.Z <= 0 {
		return geom.Point{}, false
	}
	return in.NormToPixel(geom.Point{X: p.X / p.Z, Y: p.Y / p.Z}), true
}

// Load reads intrinsics from a YAML (or JSON, which YAML accepts) file.
func Load(path string) (Intrinsics, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Intrinsics{}, fmt.Errorf("failed to read intrinsics: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates intrinsics.
func Parse(data []byte) (Intrinsics, error) {
	var in Intrinsics
	if err := yaml.Unmarshal(data, &in); err != nil {
		return Intrinsics{}, fmt.Errorf("failed to parse intrinsics: %w", err)
	}
	if err := in.Validate(); err != nil {
		return Intrinsics{}, err
	}
	return in, nil
}
