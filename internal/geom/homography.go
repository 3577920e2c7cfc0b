package geom

import "math"

// pivotEpsilon is the smallest pivot accepted by the 8x8 solver.
const pivotEpsilon = 1e-12

// Homography is a 3x3 projective transform stored row-major with H[8]
// normalised to 1 when it is computed from point pairs.
type Homography [9]float64

// Identity is the identity homography.
var Identity = Homography{1, 0, 0, 0, 1, 0, 0, 0, 1}

// ComputeHomography computes H mapping p[i] -> q[i].
func ComputeHomography(p, q [4]Point) (Homography, bool) {
	// Build 8x8 system A*h = b for the 8 unknowns (h00..h21), h22=1.
	A := [8][8]float64{}
	b := [8]float64{}
	for i := range 4 {
		X, Y := p[i].X, p[i].Y
		x, y := q[i].X, q[i].Y
		r := 2 * i
		// x' = (h00 X + h01 Y + h02)/(h20 X + h21 Y + 1)
		A[r][0] = X
		A[r][1] = Y
		A[r][2] = 1
		A[r][6] = -X * x
		A[r][7] = -Y * x
		b[r] = x

		// y' = (h10 X + h11 Y + h12)/(h20 X + h21 Y + 1)
		A[r+1][3] = X
		A[r+1][4] = Y
		A[r+1][5] = 1
		A[r+1][6] = -X * y
		A[r+1][7] = -Y * y
		b[r+1] = y
	}

	h, ok := solve8x8(A, b)
	if !ok {
		return Homography{}, false
	}
	H := Homography{h[0], h[1], h[2], h[3], h[4], h[5], h[6], h[7], 1}
	for _, v := range H {
		if !finite(v) {
			return Homography{}, false
		}
	}
	return H, true
}

// SquareToQuad returns the homography taking UnitSquare corner i to q[i].
func SquareToQuad(q Quad) (Homography, bool) {
	return ComputeHomography(UnitSquare, q)
}

// Apply maps (x, y) through H. ok is false when the point maps to infinity.
func (h Homography) Apply(x, y float64) (float64, float64, bool) {
	denom := h[6]*x + h[7]*y + h[8]
	if math.Abs(denom) < pivotEpsilon {
		return 0, 0, false
	}
	sx := (h[0]*x + h[1]*y + h[2]) / denom
	sy := (h[3]*x + h[4]*y + h[5]) / denom
	return sx, sy, true
}

// ApplyPoint is Apply for a Point.
func (h Homography) ApplyPoint(p Point) (Point, bool) {
	x, y, ok := h.Apply(p.X, p.Y)
	return Point{X: x, Y: y}, ok
}

// Det returns the determinant of H.
func (h Homography) Det() float64 {
	return h[0]*(h[4]*h[8]-h[5]*h[7]) -
		h[1]*(h[3]*h[8]-h[5]*h[6]) +
		h[2]*(h[3]*h[7]-h[4]*h[6])
}

// Inverse returns H^-1 via the adjugate, normalised so the last entry is 1
// when possible.
func (h Homography) Inverse() (Homography, bool) {
	det := h.Det()
	if math.Abs(det) < pivotEpsilon || !finite(det) {
		return Homography{}, false
	}
	inv := Homography{
		h[4]*h[8] - h[5]*h[7], h[2]*h[7] - h[1]*h[8], h[1]*h[5] - h[2]*h[4],
		h[5]*h[6] - h[3]*h[8], h[0]*h[8] - h[2]*h[6], h[2]*h[3] - h[0]*h[5],
		h[3]*h[7] - h[4]*h[6], h[1]*h[6] - h[0]*h[7], h[0]*h[4] - h[1]*h[3],
	}
	s := 1 / det
	if math.Abs(inv[8]*s) > pivotEpsilon {
		s = 1 / inv[8]
	}
	for i := range inv {
		inv[i] *= s
	}
	return inv, true
}

// Column returns column c of H.
func (h Homography) Column(c int) [3]float64 {
	return [3]float64{h[c], h[3+c], h[6+c]}
}

func solve8x8(a [8][8]float64, b [8]float64) ([8]float64, bool) {
	matrix := a
	vector := b

	// Gauss-Jordan elimination with partial pivoting
	for i := range 8 {
		if !pivotAndNormalize(&matrix, &vector, i) {
			return [8]float64{}, false
		}
		eliminateColumn(&matrix, &vector, i)
	}
	return vector, true
}

func pivotAndNormalize(matrix *[8][8]float64, vector *[8]float64, col int) bool {
	pivotRow := findPivotRow(*matrix, col)
	if pivotRow == -1 {
		return false
	}
	if pivotRow != col {
		matrix[col], matrix[pivotRow] = matrix[pivotRow], matrix[col]
		vector[col], vector[pivotRow] = vector[pivotRow], vector[col]
	}

	div := matrix[col][col]
	for c := col; c < 8; c++ {
		matrix[col][c] /= div
	}
	vector[col] /= div
	return true
}

func findPivotRow(matrix [8][8]float64, col int) int {
	maxAbs := math.Abs(matrix[col][col])
	pivotRow := col
	for r := col + 1; r < 8; r++ {
		if v := math.Abs(matrix[r][col]); v > maxAbs {
			maxAbs = v
			pivotRow = r
		}
	}
	if maxAbs < pivotEpsilon {
		return -1
	}
	return pivotRow
}

func eliminateColumn(matrix *[8][8]float64, vector *[8]float64, col int) {
	for r := range 8 {
		if r == col {
			continue
		}
		factor := matrix[r][col]
		if factor == 0 {
			continue
		}
		for c := col; c < 8; c++ {
			matrix[r][c] -= factor * matrix[col][c]
		}
		vector[r] -= factor * vector[col]
	}
}
