package geometry

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCentroid(t *testing.T) {
	tests := []struct {
		name string
		pts  []r2.Point
		want r2.Point
	}{
		{"empty", nil, r2.Point{}},
		{"single", []r2.Point{{X: 3, Y: -4}}, r2.Point{X: 3, Y: -4}},
		{"square", []r2.Point{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 2}, {X: 0, Y: 2}}, r2.Point{X: 1, Y: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Centroid(tt.pts)
			assert.InDelta(t, tt.want.X, got.X, 1e-12)
			assert.InDelta(t, tt.want.Y, got.Y, 1e-12)
		})
	}
}

func TestMeanDistance(t *testing.T) {
	pts := []r2.Point{{X: 1, Y: 0}, {X: -1, Y: 0}, {X: 0, Y: 3}, {X: 0, Y: -3}}
	assert.InDelta(t, 2.0, MeanDistance(pts, r2.Point{}), 1e-12)
	assert.Zero(t, MeanDistance(nil, r2.Point{}))
}

func TestAllFinite(t *testing.T) {
	idx, ok := AllFinite([]r2.Point{{X: 1, Y: 2}, {X: 3, Y: 4}})
	assert.True(t, ok)
	assert.Equal(t, -1, idx)

	idx, ok = AllFinite([]r2.Point{{X: 1, Y: 2}, {X: math.NaN(), Y: 4}})
	assert.False(t, ok)
	assert.Equal(t, 1, idx)

	idx, ok = AllFinite([]r2.Point{{X: 1, Y: math.Inf(-1)}})
	assert.False(t, ok)
	assert.Equal(t, 0, idx)
}

func TestConvexHull(t *testing.T) {
	pts := []r2.Point{
		{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 4}, {X: 0, Y: 4},
		{X: 2, Y: 2}, {X: 1, Y: 3}, {X: 2, Y: 0}, {X: 0, Y: 0},
	}
	hull := ConvexHull(pts)
	require.Len(t, hull, 4)
	assert.InDelta(t, 16.0, PolygonArea(hull), 1e-12)

	// Input is not reordered.
	assert.Equal(t, r2.Point{X: 0, Y: 0}, pts[0])
	assert.Equal(t, r2.Point{X: 2, Y: 2}, pts[4])
}

func TestConvexHull_Degenerate(t *testing.T) {
	assert.Empty(t, ConvexHull(nil))
	assert.Len(t, ConvexHull([]r2.Point{{X: 1, Y: 1}, {X: 1, Y: 1}}), 1)
	assert.Len(t, ConvexHull([]r2.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}}), 2)
}

func TestPolygonArea(t *testing.T) {
	tri := []r2.Point{{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 0, Y: 3}}
	assert.InDelta(t, 6.0, PolygonArea(tri), 1e-12)
	assert.Zero(t, PolygonArea(tri[:2]))
}

func TestWidth(t *testing.T) {
	rect := []r2.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 2}, {X: 0, Y: 2}}
	assert.InDelta(t, 2.0, Width(rect), 1e-12)
	line := []r2.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 5, Y: 5}}
	assert.Zero(t, Width(line))
}

func TestIsCollinear(t *testing.T) {
	tests := []struct {
		name string
		pts  []r2.Point
		tol  float64
		want bool
	}{
		{"exact line", []r2.Point{{X: 0, Y: 0}, {X: 1, Y: 2}, {X: 2, Y: 4}, {X: 3, Y: 6}}, 1e-9, true},
		{"coincident", []r2.Point{{X: 1, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 1}}, 1e-9, true},
		{"square", []r2.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}, 1e-9, false},
		{"nearly flat, loose tol", []r2.Point{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 50, Y: 1e-3}, {X: 25, Y: 0}}, 1e-3, true},
		{"nearly flat, tight tol", []r2.Point{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 50, Y: 1e-3}, {X: 25, Y: 0}}, 1e-9, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCollinear(tt.pts, tt.tol))
		})
	}
}

func TestHasCollinearTriple(t *testing.T) {
	tests := []struct {
		name string
		pts  []r2.Point
		want bool
	}{
		{"square", []r2.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}, false},
		{"three on the x axis", []r2.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}, {X: 0, Y: 1}}, true},
		{"last three on a diagonal", []r2.Point{{X: 5, Y: 0}, {X: 0, Y: 0}, {X: 1, Y: 1}, {X: 3, Y: 3}}, true},
		{"all on one line", []r2.Point{{X: 0, Y: 0}, {X: 1, Y: 2}, {X: 2, Y: 4}, {X: 3, Y: 6}}, true},
		{"coincident", []r2.Point{{X: 1, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 1}}, true},
		{"two points", []r2.Point{{X: 0, Y: 0}, {X: 1, Y: 0}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasCollinearTriple(tt.pts, 1e-9))
		})
	}
}
