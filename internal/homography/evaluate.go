package homography

import (
	"math"

	"github.com/MeKo-Tech/homest/internal/geometry"
	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Residuals holds per-point reprojection errors and their aggregates.
type Residuals struct {
	Predicted []r2.Point `json:"-" yaml:"-"`
	PerPoint  []float64  `json:"per_point" yaml:"per_point"`
	RMS       float64    `json:"rms" yaml:"rms"`
	Mean      float64    `json:"mean" yaml:"mean"`
	Max       float64    `json:"max" yaml:"max"`
}

// Apply maps every point through h with perspective division. A point whose
// homogeneous denominator is zero, or negligible next to the terms it is
// summed from, yields a ProjectionAtInfinityError, as does a division that
// overflows to ±Inf. tol <= 0 only rejects an exact zero. Large but finite
// results are returned as they are.
func Apply(h Matrix, points []r2.Point, tol float64) ([]r2.Point, error) {
	out := make([]r2.Point, len(points))
	for i, p := range points {
		q, w := h.Project(p)
		scale := math.Abs(h[2][0]*p.X) + math.Abs(h[2][1]*p.Y) + math.Abs(h[2][2])
		if w == 0 || math.Abs(w) <= tol*scale || math.IsNaN(w) {
			return nil, &ProjectionAtInfinityError{Index: i, Point: p, W: w}
		}
		if _, ok := geometry.AllFinite([]r2.Point{q}); !ok {
			return nil, &ProjectionAtInfinityError{Index: i, Point: p, W: w}
		}
		out[i] = q
	}
	return out, nil
}

// Reproject applies h to src and measures the Euclidean distance of each
// prediction from the matching dst point.
func Reproject(h Matrix, src, dst []r2.Point, tol float64) (*Residuals, error) {
	if len(src) != len(dst) {
		return nil, degenerate(ErrLengthMismatch, "", "%d source vs %d destination points", len(src), len(dst))
	}
	predicted, err := Apply(h, src, tol)
	if err != nil {
		return nil, err
	}

	res := &Residuals{
		Predicted: predicted,
		PerPoint:  make([]float64, len(src)),
	}
	if len(src) == 0 {
		return res, nil
	}

	for i := range predicted {
		res.PerPoint[i] = predicted[i].Sub(dst[i]).Norm()
	}
	res.RMS = RMS(res.PerPoint)
	res.Mean = stat.Mean(res.PerPoint, nil)
	res.Max = floats.Max(res.PerPoint)
	return res, nil
}

// RMS is the root mean square of errs, 0 for an empty slice.
func RMS(errs []float64) float64 {
	if len(errs) == 0 {
		return 0
	}
	return math.Sqrt(floats.Dot(errs, errs) / float64(len(errs)))
}
