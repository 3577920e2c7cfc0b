package pose

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/MeKo-Tech/squarefid/internal/camera"
	"github.com/MeKo-Tech/squarefid/internal/geom"
)

// ErrDegenerate is wrapped by DegenerateGeometryError.
var ErrDegenerate = errors.New("pose: degenerate geometry")

// DegenerateGeometryError reports a candidate whose corners cannot define a
// pose.
type DegenerateGeometryError struct {
	Reason string
}

func (e *DegenerateGeometryError) Error() string {
	return fmt.Sprintf("pose: degenerate geometry: %s", e.Reason)
}

func (e *DegenerateGeometryError) Unwrap() error { return ErrDegenerate }

// Estimator solves planar marker poses for one camera. It holds no mutable
// state and may be shared between goroutines.
type Estimator struct {
	intr camera.Intrinsics
}

// NewEstimator validates the intrinsics.
func NewEstimator(intr camera.Intrinsics) (*Estimator, error) {
	if err := intr.Validate(); err != nil {
		return nil, err
	}
	return &Estimator{intr: intr}, nil
}

// Intrinsics returns the camera model.
func (e *Estimator) Intrinsics() camera.Intrinsics { return e.intr }

// Estimate recovers the marker-to-camera pose from the four image corners
// (in decoded order) of a marker with the given physical side length.
//
// The homography between the marker plane and normalised image coordinates
// is [r1 r2 t] up to scale. The scale comes from the unit length of r1 and
// r2, its sign from positive depth, and the rotation is projected onto SO(3)
// with an SVD.
func (e *Estimator) Estimate(corners geom.Quad, side float64) (Pose, error) {
	if !(side > 0) || math.IsInf(side, 0) {
		return Pose{}, &DegenerateGeometryError{Reason: fmt.Sprintf("side length %g", side)}
	}
	if !corners.Valid() || corners.HasCollinearCorners() {
		return Pose{}, &DegenerateGeometryError{Reason: "collinear corners"}
	}

	var plane, norm [4]geom.Point
	for i, c := range MarkerCorners(side) {
		plane[i] = geom.Point{X: c.X, Y: c.Y}
		norm[i] = e.intr.PixelToNorm(corners[i])
	}
	h, ok := geom.ComputeHomography(plane, norm)
	if !ok {
		return Pose{}, &DegenerateGeometryError{Reason: "singular homography"}
	}

	h1 := vec(h.Column(0))
	h2 := vec(h.Column(1))
	h3 := vec(h.Column(2))
	n1, n2 := h1.Norm(), h2.Norm()
	if n1 < 1e-12 || n2 < 1e-12 {
		return Pose{}, &DegenerateGeometryError{Reason: "vanishing homography columns"}
	}
	lambda := 2 / (n1 + n2)
	if h3.Z < 0 {
		lambda = -lambda
	}

	r1 := h1.Mul(lambda)
	r2 := h2.Mul(lambda)
	r3v := r1.Cross(r2)
	rot, ok := orthonormalize(r1, r2, r3v)
	if !ok {
		return Pose{}, &DegenerateGeometryError{Reason: "rotation SVD failed"}
	}

	p := Pose{Rotation: rot, Translation: h3.Mul(lambda)}
	if !p.finite() || p.Translation.Z <= 0 {
		return Pose{}, &DegenerateGeometryError{Reason: "marker not in front of camera"}
	}
	return p, nil
}

func vec(c [3]float64) r3.Vector { return r3.Vector{X: c[0], Y: c[1], Z: c[2]} }

// orthonormalize returns the rotation closest to the matrix with columns
// c1, c2, c3.
func orthonormalize(c1, c2, c3 r3.Vector) ([9]float64, bool) {
	m := mat.NewDense(3, 3, []float64{
		c1.X, c2.X, c3.X,
		c1.Y, c2.Y, c3.Y,
		c1.Z, c2.Z, c3.Z,
	})

	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDFull) {
		return [9]float64{}, false
	}
	var u, v, r mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	r.Mul(&u, v.T())
	if mat.Det(&r) < 0 {
		for i := range 3 {
			u.Set(i, 2, -u.At(i, 2))
		}
		r.Mul(&u, v.T())
	}

	var out [9]float64
	for i := range 3 {
		for j := range 3 {
			out[i*3+j] = r.At(i, j)
		}
	}
	return out, true
}
