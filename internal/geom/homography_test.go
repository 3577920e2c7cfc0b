package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestComputeHomography tests homography computation.
func TestComputeHomography(t *testing.T) {
	// Identity transformation (points map to themselves)
	p := [4]Point{{0, 0}, {100, 0}, {100, 100}, {0, 100}}

	h, ok := ComputeHomography(p, p)
	require.True(t, ok)
	for i := range h {
		assert.InDelta(t, Identity[i], h[i], 1e-9, "entry %d", i)
	}
}

func TestComputeHomography_MapsCorners(t *testing.T) {
	q := Quad{{210, 340}, {190, 120}, {420, 95}, {460, 330}}

	h, ok := SquareToQuad(q)
	require.True(t, ok)
	for i, c := range UnitSquare {
		x, y, ok := h.Apply(c.X, c.Y)
		require.True(t, ok)
		assert.InDelta(t, q[i].X, x, 1e-9)
		assert.InDelta(t, q[i].Y, y, 1e-9)
	}
}

func TestComputeHomography_Degenerate(t *testing.T) {
	// All target corners on one line.
	q := Quad{{0, 0}, {1, 1}, {2, 2}, {3, 3}}
	_, ok := SquareToQuad(q)
	assert.False(t, ok)
}

func TestHomographyInverse(t *testing.T) {
	q := Quad{{12, 80}, {15, 10}, {90, 4}, {99, 88}}
	h, ok := SquareToQuad(q)
	require.True(t, ok)

	inv, ok := h.Inverse()
	require.True(t, ok)

	for _, p := range []Point{{0.5, 0.5}, {0.1, 0.9}, {0.75, 0.2}} {
		img, ok := h.ApplyPoint(p)
		require.True(t, ok)
		back, ok := inv.ApplyPoint(img)
		require.True(t, ok)
		assert.InDelta(t, p.X, back.X, 1e-9)
		assert.InDelta(t, p.Y, back.Y, 1e-9)
	}
}

func TestHomographyInverse_Singular(t *testing.T) {
	_, ok := Homography{}.Inverse()
	assert.False(t, ok)
}

// TestApplyHomography_ZeroDenominator covers points mapped to infinity.
func TestApplyHomography_ZeroDenominator(t *testing.T) {
	h := Identity
	h[8] = 0
	_, _, ok := h.Apply(0, 0)
	assert.False(t, ok)
}

// TestSolve8x8 tests the 8x8 linear system solver.
func TestSolve8x8(t *testing.T) {
	a := [8][8]float64{}
	b := [8]float64{}
	for i := range 8 {
		a[i][i] = 2.0
		b[i] = float64(i + 1)
	}
	// one off-diagonal entry forces a real elimination step
	a[3][0] = 1

	x, ok := solve8x8(a, b)
	require.True(t, ok)
	assert.InDelta(t, 0.5, x[0], 1e-12)
	assert.InDelta(t, (4-0.5)/2, x[3], 1e-12)
	assert.InDelta(t, 4.0, x[7], 1e-12)

	singular := [8][8]float64{}
	for i := range 8 {
		for j := range 8 {
			singular[i][j] = 1.0
		}
	}
	_, ok = solve8x8(singular, b)
	assert.False(t, ok)
}

func TestFindPivotRow(t *testing.T) {
	matrix := [8][8]float64{
		{0, 0, 0},
		{0, 1, 0},
		{0, -3, 2},
	}
	assert.Equal(t, 2, findPivotRow(matrix, 1))
	assert.Equal(t, -1, findPivotRow(matrix, 0))
}

func TestQuadSignedAreaAndMirror(t *testing.T) {
	q := Quad{{0, 10}, {0, 0}, {10, 0}, {10, 10}}
	assert.InDelta(t, 100.0, q.SignedArea(), 1e-12)
	assert.InDelta(t, -100.0, q.Mirrored().SignedArea(), 1e-12)
	assert.Equal(t, q[0], q.Mirrored()[0])
	assert.Positive(t, UnitSquare.SignedArea())
}

func TestQuadShifted(t *testing.T) {
	q := Quad{{0, 0}, {1, 0}, {2, 0}, {3, 0}}
	assert.Equal(t, q, q.Shifted(0))
	assert.Equal(t, q, q.Shifted(4))
	s := q.Shifted(1)
	assert.Equal(t, q[3], s[0])
	assert.Equal(t, q[0], s[1])
	assert.Equal(t, q.Shifted(3), q.Shifted(-1))
}

func TestQuadHasCollinearCorners(t *testing.T) {
	square := Quad{{0, 10}, {0, 0}, {10, 0}, {10, 10}}
	assert.False(t, square.HasCollinearCorners())

	flat := Quad{{0, 0}, {5, 0}, {10, 0}, {10, 10}}
	assert.True(t, flat.HasCollinearCorners())

	repeated := Quad{{0, 0}, {0, 0}, {10, 0}, {10, 10}}
	assert.True(t, repeated.HasCollinearCorners())
}

func TestParseQuads(t *testing.T) {
	quads, err := ParseQuads([][][2]float64{{{0, 1}, {0, 0}, {1, 0}, {1, 1}}})
	require.NoError(t, err)
	require.Len(t, quads, 1)
	assert.Equal(t, UnitSquare, quads[0])

	_, err = ParseQuads([][][2]float64{{{0, 1}, {0, 0}, {1, 0}}})
	require.ErrorIs(t, err, ErrNotQuad)

	_, err = ParseQuads([][][2]float64{{{0, 1}, {0, 0}, {1, 0}, {math.NaN(), 1}}})
	require.ErrorIs(t, err, ErrNotQuad)
}
