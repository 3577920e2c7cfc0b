// Package pose recovers the rigid transform from a square marker's frame to
// the camera frame.
//
// The marker frame has its origin at the marker centre, x to the right, y up
// and z out of the printed face. Corner i of a decoded candidate sits at
// MarkerCorners(side)[i].
package pose

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/MeKo-Tech/squarefid/internal/camera"
	"github.com/MeKo-Tech/squarefid/internal/geom"
)

// Pose maps marker-frame points to the camera frame: p_cam = R*p + T.
type Pose struct {
	Rotation    [9]float64 `json:"rotation" yaml:"rotation"` // row-major
	Translation r3.Vector  `json:"translation" yaml:"translation"`
}

// Identity is the pose with no rotation and no translation.
var Identity = Pose{Rotation: [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}}

// FromAxisAngle builds a pose rotating by angle radians about axis and then
// translating by t.
func FromAxisAngle(axis r3.Vector, angle float64, t r3.Vector) Pose {
	p := Pose{Translation: t}
	n := axis.Norm()
	if n == 0 || angle == 0 {
		p.Rotation = Identity.Rotation
		return p
	}
	k := axis.Mul(1 / n)
	c, s := math.Cos(angle), math.Sin(angle)
	v := 1 - c
	p.Rotation = [9]float64{
		c + k.X*k.X*v, k.X*k.Y*v - k.Z*s, k.X*k.Z*v + k.Y*s,
		k.Y*k.X*v + k.Z*s, c + k.Y*k.Y*v, k.Y*k.Z*v - k.X*s,
		k.Z*k.X*v - k.Y*s, k.Z*k.Y*v + k.X*s, c + k.Z*k.Z*v,
	}
	return p
}

// Apply transforms a marker-frame point into the camera frame.
func (p Pose) Apply(v r3.Vector) r3.Vector {
	r := p.Rotation
	return r3.Vector{
		X: r[0]*v.X + r[1]*v.Y + r[2]*v.Z,
		Y: r[3]*v.X + r[4]*v.Y + r[5]*v.Z,
		Z: r[6]*v.X + r[7]*v.Y + r[8]*v.Z,
	}.Add(p.Translation)
}

// Inverse returns the camera-to-marker transform.
func (p Pose) Inverse() Pose {
	r := p.Rotation
	rt := [9]float64{r[0], r[3], r[6], r[1], r[4], r[7], r[2], r[5], r[8]}
	inv := Pose{Rotation: rt}
	inv.Translation = inv.Apply(p.Translation).Mul(-1)
	return inv
}

// Distance is the distance from the camera centre to the marker centre.
func (p Pose) Distance() float64 { return p.Translation.Norm() }

// MarkerCorners returns the four marker corners for a marker of the given
// side length, in decoded corner order.
func MarkerCorners(side float64) [4]r3.Vector {
	h := side / 2
	return [4]r3.Vector{
		{X: -h, Y: -h},
		{X: -h, Y: h},
		{X: h, Y: h},
		{X: h, Y: -h},
	}
}

// ProjectCorners projects the marker outline into the image. ok is false if
// any corner lies behind the camera.
func (p Pose) ProjectCorners(in camera.Intrinsics, side float64) (geom.Quad, bool) {
	var q geom.Quad
	for i, c := range MarkerCorners(side) {
		px, ok := in.Project(p.Apply(c))
		if !ok {
			return geom.Quad{}, false
		}
		q[i] = px
	}
	return q, true
}

// ReprojectionError is the RMS pixel distance between the projected marker
// outline and corners. It is +Inf when the outline cannot be projected.
func (p Pose) ReprojectionError(in camera.Intrinsics, corners geom.Quad, side float64) float64 {
	proj, ok := p.ProjectCorners(in, side)
	if !ok {
		return math.Inf(1)
	}
	var sum float64
	for i := range 4 {
		d := geom.Dist(proj[i], corners[i])
		sum += d * d
	}
	return math.Sqrt(sum / 4)
}

func (p Pose) finite() bool {
	for _, v := range p.Rotation {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	t := p.Translation
	for _, v := range []float64{t.X, t.Y, t.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
