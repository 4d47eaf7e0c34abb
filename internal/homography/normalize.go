package homography

import (
	"math"

	"github.com/MeKo-Tech/homest/internal/geometry"
	"github.com/golang/geo/r2"
)

// Normalize applies the similarity transform that moves the centroid of
// points to the origin and scales their mean distance from it to √2.
// It returns the transformed points and the transform T itself. The input
// slice is not modified.
func Normalize(points []r2.Point) ([]r2.Point, Matrix, error) {
	if len(points) == 0 {
		return nil, Matrix{}, degenerate(ErrZeroSpread, "", "empty point set")
	}
	if i, ok := geometry.AllFinite(points); !ok {
		return nil, Matrix{}, degenerate(ErrNonFinite, "", "point %d", i)
	}

	mu := geometry.Centroid(points)
	meanDist := geometry.MeanDistance(points, mu)
	if meanDist == 0 || math.IsNaN(meanDist) {
		return nil, Matrix{}, degenerate(ErrZeroSpread, "", "all %d points coincide", len(points))
	}

	s := math.Sqrt2 / meanDist
	t := Matrix{
		{s, 0, -s * mu.X},
		{0, s, -s * mu.Y},
		{0, 0, 1},
	}

	out := make([]r2.Point, len(points))
	for i, p := range points {
		out[i] = r2.Point{X: s*p.X - s*mu.X, Y: s*p.Y - s*mu.Y}
	}
	return out, t, nil
}
