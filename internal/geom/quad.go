package geom

import (
	"errors"
	"fmt"
	"math"
)

// Quad is a candidate marker outline: four image-space corners. Corner i
// corresponds to corner i of UnitSquare.
type Quad [4]Point

// UnitSquare lists the marker-local corners in bitmap orientation (x right,
// y down): bottom-left, top-left, top-right, bottom-right.
var UnitSquare = Quad{{X: 0, Y: 1}, {X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}}

// collinearTolerance is relative to the product of the two edge lengths.
const collinearTolerance = 1e-9

// QuadFromSlice converts a polygon with exactly four vertices.
func QuadFromSlice(pts []Point) (Quad, error) {
	if len(pts) != 4 {
		return Quad{}, fmt.Errorf("quadrilateral needs 4 corners, got %d", len(pts))
	}
	return Quad{pts[0], pts[1], pts[2], pts[3]}, nil
}

// SignedArea returns the shoelace area. In image coordinates (y down) a quad
// wound like UnitSquare has positive area.
func (q Quad) SignedArea() float64 {
	var s float64
	for i := range 4 {
		a, b := q[i], q[(i+1)%4]
		s += a.X*b.Y - b.X*a.Y
	}
	return s / 2
}

// Mirrored reverses the winding while keeping corner 0 in place.
func (q Quad) Mirrored() Quad {
	return Quad{q[0], q[3], q[2], q[1]}
}

// Shifted returns the quad with corner j taken from q[(j-k) mod 4], i.e. the
// corner labels advance by k positions.
func (q Quad) Shifted(k int) Quad {
	k = ((k % 4) + 4) % 4
	var out Quad
	for j := range 4 {
		out[j] = q[(j-k+4)%4]
	}
	return out
}

// HasCollinearCorners reports whether any three corners are (nearly) on one
// line, which makes the quad unusable for homography or pose work.
func (q Quad) HasCollinearCorners() bool {
	for i := range 4 {
		a, b, c := q[i], q[(i+1)%4], q[(i+2)%4]
		scale := Dist(a, b) * Dist(a, c)
		if scale == 0 || math.Abs(cross(a, b, c)) <= collinearTolerance*scale {
			return true
		}
	}
	return false
}

// Valid reports whether every coordinate is finite.
func (q Quad) Valid() bool {
	for _, p := range q {
		if !finite(p.X) || !finite(p.Y) {
			return false
		}
	}
	return true
}

// Centroid returns the average of the four corners.
func (q Quad) Centroid() Point {
	var c Point
	for _, p := range q {
		c = c.Add(p)
	}
	return c.Scale(0.25)
}

// ErrNotQuad is returned when parsing corner lists that do not describe a quad.
var ErrNotQuad = errors.New("geom: not a quadrilateral")

// ParseQuads converts nested [x, y] corner lists, the wire form used by the
// CLI and HTTP API, into quads.
func ParseQuads(raw [][][2]float64) ([]Quad, error) {
	quads := make([]Quad, 0, len(raw))
	for i, corners := range raw {
		if len(corners) != 4 {
			return nil, fmt.Errorf("candidate %d: %w (%d corners)", i, ErrNotQuad, len(corners))
		}
		var q Quad
		for j, c := range corners {
			q[j] = Point{X: c[0], Y: c[1]}
		}
		if !q.Valid() {
			return nil, fmt.Errorf("candidate %d: %w (non-finite corner)", i, ErrNotQuad)
		}
		quads = append(quads, q)
	}
	return quads, nil
}
