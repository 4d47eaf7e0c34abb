package geometry

import (
	"math"
	"slices"

	"github.com/golang/geo/r2"
)

// Centroid returns the arithmetic mean of pts. An empty set has centroid (0,0).
func Centroid(pts []r2.Point) r2.Point {
	if len(pts) == 0 {
		return r2.Point{}
	}
	var c r2.Point
	for _, p := range pts {
		c = c.Add(p)
	}
	return c.Mul(1 / float64(len(pts)))
}

// MeanDistance returns the mean Euclidean distance of pts from c.
func MeanDistance(pts []r2.Point, c r2.Point) float64 {
	if len(pts) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range pts {
		sum += p.Sub(c).Norm()
	}
	return sum / float64(len(pts))
}

// AllFinite reports whether every coordinate is finite. The index of the first
// offending point is returned when it is not.
func AllFinite(pts []r2.Point) (int, bool) {
	for i, p := range pts {
		if math.IsNaN(p.X) || math.IsInf(p.X, 0) || math.IsNaN(p.Y) || math.IsInf(p.Y, 0) {
			return i, false
		}
	}
	return -1, true
}

// ConvexHull computes the convex hull of a set of points using the
// monotone chain algorithm. Returns the hull in CCW order without
// duplicating the first point at the end. Collinear points on hull edges
// are dropped.
func ConvexHull(pts []r2.Point) []r2.Point {
	if len(pts) <= 1 {
		return append([]r2.Point(nil), pts...)
	}
	p := append([]r2.Point(nil), pts...)
	slices.SortFunc(p, comparePoints)
	p = slices.Compact(p)
	if len(p) <= 1 {
		return p
	}
	lower := buildLowerHull(p)
	upper := buildUpperHull(p)
	hull := make([]r2.Point, 0, len(lower)+len(upper)-2)
	hull = append(hull, lower[:len(lower)-1]...)
	hull = append(hull, upper[:len(upper)-1]...)
	return hull
}

// PolygonArea returns the unsigned shoelace area of a closed polygon.
func PolygonArea(poly []r2.Point) float64 {
	if len(poly) < 3 {
		return 0
	}
	sum := 0.0
	for i := range poly {
		j := (i + 1) % len(poly)
		sum += poly[i].Cross(poly[j])
	}
	return math.Abs(sum) / 2
}

// Width returns the minimum distance between two parallel lines enclosing
// pts (rotating calipers over the convex hull). Sets with fewer than three
// hull vertices have zero width.
func Width(pts []r2.Point) float64 {
	hull := ConvexHull(pts)
	if len(hull) < 3 {
		return 0
	}
	best := math.Inf(1)
	for i := range hull {
		a := hull[i]
		b := hull[(i+1)%len(hull)]
		if a == b {
			continue
		}
		farthest := 0.0
		for _, p := range hull {
			if d := perpendicularDistance(p, a, b); d > farthest {
				farthest = d
			}
		}
		if farthest < best {
			best = farthest
		}
	}
	if math.IsInf(best, 1) {
		return 0
	}
	return best
}

// IsCollinear reports whether pts lie on a single line within tol, where tol
// is relative to the mean distance of the points from their centroid.
func IsCollinear(pts []r2.Point, tol float64) bool {
	spread := MeanDistance(pts, Centroid(pts))
	if spread == 0 {
		return true
	}
	return Width(pts) <= tol*spread
}

// HasCollinearTriple reports whether any three of pts are collinear within
// tol, where tol is relative to the squared mean distance from the centroid.
// The check is cubic in len(pts) and meant for minimal sets.
func HasCollinearTriple(pts []r2.Point, tol float64) bool {
	spread := MeanDistance(pts, Centroid(pts))
	if spread == 0 {
		return len(pts) >= 3
	}
	limit := tol * spread * spread
	for i := 0; i < len(pts); i++ {
		for j := i + 1; j < len(pts); j++ {
			for k := j + 1; k < len(pts); k++ {
				if PolygonArea([]r2.Point{pts[i], pts[j], pts[k]}) <= limit {
					return true
				}
			}
		}
	}
	return false
}

func buildLowerHull(p []r2.Point) []r2.Point {
	lower := make([]r2.Point, 0, len(p))
	for _, pt := range p {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], pt) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, pt)
	}
	return lower
}

func buildUpperHull(p []r2.Point) []r2.Point {
	upper := make([]r2.Point, 0, len(p))
	for i := len(p) - 1; i >= 0; i-- {
		pt := p[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], pt) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, pt)
	}
	return upper
}

func comparePoints(a, b r2.Point) int {
	switch {
	case a.X < b.X:
		return -1
	case a.X > b.X:
		return 1
	case a.Y < b.Y:
		return -1
	case a.Y > b.Y:
		return 1
	}
	return 0
}

func cross(o, a, b r2.Point) float64 {
	return a.Sub(o).Cross(b.Sub(o))
}

func perpendicularDistance(p, a, b r2.Point) float64 {
	v := b.Sub(a)
	if v.X == 0 && v.Y == 0 {
		return p.Sub(a).Norm()
	}
	// Area of parallelogram / base length
	return math.Abs(p.Sub(a).Cross(v)) / v.Norm()
}
