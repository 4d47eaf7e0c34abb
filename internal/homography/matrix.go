package homography

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"
)

// Matrix is a 3x3 homogeneous transform stored row-major.
type Matrix [3][3]float64

// ScaleConvention selects how the free scale of an estimated H is fixed.
type ScaleConvention string

const (
	// ScaleH22 divides H by H[2,2] so that H[2,2] = 1.
	ScaleH22 ScaleConvention = "h22"
	// ScaleFrobenius scales H to unit Frobenius norm with H[2,2] >= 0, or the
	// first significant entry positive when H[2,2] vanishes.
	ScaleFrobenius ScaleConvention = "frobenius"
)

// h22Epsilon is the smallest |H[2,2]| relative to ||H||_F accepted by ScaleH22.
const h22Epsilon = 1e-12

// Identity returns the 3x3 identity.
func Identity() Matrix {
	return Matrix{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// FromDense copies a 3x3 gonum matrix.
func FromDense(d mat.Matrix) Matrix {
	var m Matrix
	for i := range 3 {
		for j := range 3 {
			m[i][j] = d.At(i, j)
		}
	}
	return m
}

// FromSlice builds a matrix from 9 row-major values.
func FromSlice(v []float64) (Matrix, error) {
	var m Matrix
	if len(v) != 9 {
		return m, fmt.Errorf("homography: expected 9 values, got %d", len(v))
	}
	for i := range 9 {
		m[i/3][i%3] = v[i]
	}
	return m, nil
}

// Dense returns a gonum copy of m.
func (m Matrix) Dense() *mat.Dense {
	return mat.NewDense(3, 3, m.Slice())
}

// Slice returns the 9 row-major values.
func (m Matrix) Slice() []float64 {
	out := make([]float64, 0, 9)
	for i := range 3 {
		out = append(out, m[i][:]...)
	}
	return out
}

// Rows returns m as nested slices, the form used by the JSON and YAML encoders.
func (m Matrix) Rows() [][]float64 {
	return [][]float64{m[0][:], m[1][:], m[2][:]}
}

// Mul returns m·o.
func (m Matrix) Mul(o Matrix) Matrix {
	var out mat.Dense
	out.Mul(m.Dense(), o.Dense())
	return FromDense(&out)
}

// Scale multiplies every entry by f.
func (m Matrix) Scale(f float64) Matrix {
	for i := range 3 {
		for j := range 3 {
			m[i][j] *= f
		}
	}
	return m
}

// Norm returns the Frobenius norm.
func (m Matrix) Norm() float64 {
	return mat.Norm(m.Dense(), 2)
}

// Inverse returns m⁻¹. Exactly singular matrices return ErrSingular;
// ill-conditioned ones are inverted anyway.
func (m Matrix) Inverse() (Matrix, error) {
	var inv mat.Dense
	if err := inv.Inverse(m.Dense()); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return Matrix{}, fmt.Errorf("%w: %v", ErrSingular, err)
		}
	}
	return FromDense(&inv), nil
}

// Normalize fixes the free scale of m according to conv.
func (m Matrix) Normalize(conv ScaleConvention) (Matrix, error) {
	norm := m.Norm()
	if norm == 0 || math.IsNaN(norm) {
		return Matrix{}, degenerate(ErrUnnormalizable, "", "zero matrix")
	}
	switch conv {
	case ScaleFrobenius:
		out := m.Scale(1 / norm)
		if out.leadingSign() < 0 {
			out = out.Scale(-1)
		}
		return out, nil
	case ScaleH22, "":
		if math.Abs(m[2][2]) <= h22Epsilon*norm {
			return Matrix{}, degenerate(ErrUnnormalizable, "", "|H[2,2]|=%g, ||H||=%g", math.Abs(m[2][2]), norm)
		}
		return m.Scale(1 / m[2][2]), nil
	default:
		return Matrix{}, fmt.Errorf("homography: unknown scale convention %q", conv)
	}
}

// leadingSign is the sign of H[2,2], or of the first entry that is not
// negligible when H[2,2] is. m is expected at unit norm.
func (m Matrix) leadingSign() float64 {
	if math.Abs(m[2][2]) > h22Epsilon {
		return math.Copysign(1, m[2][2])
	}
	for _, v := range m.Slice() {
		if math.Abs(v) > h22Epsilon {
			return math.Copysign(1, v)
		}
	}
	return 1
}

// ApproxEqual reports whether m and o describe the same projective map,
// comparing both at unit Frobenius norm with a common sign.
func (m Matrix) ApproxEqual(o Matrix, tol float64) bool {
	a, errA := m.Normalize(ScaleFrobenius)
	b, errB := o.Normalize(ScaleFrobenius)
	if errA != nil || errB != nil {
		return false
	}
	for i := range 3 {
		for j := range 3 {
			if math.Abs(a[i][j]-b[i][j]) > tol {
				return false
			}
		}
	}
	return true
}

// Project maps p through m and returns the dehomogenized point together
// with the homogeneous denominator w. The point is only meaningful when w
// is non-zero.
func (m Matrix) Project(p r2.Point) (r2.Point, float64) {
	x := m[0][0]*p.X + m[0][1]*p.Y + m[0][2]
	y := m[1][0]*p.X + m[1][1]*p.Y + m[1][2]
	w := m[2][0]*p.X + m[2][1]*p.Y + m[2][2]
	return r2.Point{X: x / w, Y: y / w}, w
}

func (m Matrix) String() string {
	var b strings.Builder
	b.WriteString("[")
	for i := range 3 {
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "[%g %g %g]", m[i][0], m[i][1], m[i][2])
	}
	b.WriteString("]")
	return b.String()
}
