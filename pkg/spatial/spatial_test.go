package spatial

import (
	"testing"

	"github.com/go-playground/assert/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

var square = orb.Polygon{{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}}

func TestPointOnFeature(t *testing.T) {
	tests := []struct {
		name string
		geom orb.Geometry
		want orb.Point
	}{
		{name: "point", geom: orb.Point{1, 2}, want: orb.Point{1, 2}},
		{name: "line middle vertex", geom: orb.LineString{{0, 0}, {1, 1}, {2, 2}}, want: orb.Point{1, 1}},
		{name: "polygon centroid", geom: square, want: orb.Point{5, 5}},
		{name: "empty line", geom: orb.LineString{}, want: orb.Point{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, PointOnFeature(tt.geom), tt.want)
		})
	}
}

func TestPointOnFeatureConcavePolygon(t *testing.T) {
	// U shape: centroid and bound center fall in the notch
	u := orb.Polygon{{{0, 0}, {10, 0}, {10, 10}, {8, 10}, {8, 2}, {2, 2}, {2, 10}, {0, 10}, {0, 0}}}
	p := PointOnFeature(u)
	assert.Equal(t, planar.PolygonContains(u, p), true)
}

func TestWithin(t *testing.T) {
	tests := []struct {
		name string
		geom orb.Geometry
		want bool
	}{
		{name: "inside point", geom: orb.Point{5, 5}, want: true},
		{name: "outside point", geom: orb.Point{15, 5}, want: false},
		{name: "line inside", geom: orb.LineString{{1, 1}, {9, 9}}, want: true},
		{name: "line crossing out", geom: orb.LineString{{1, 1}, {19, 9}}, want: false},
		{name: "empty", geom: orb.LineString{}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, Within(tt.geom, square), tt.want)
		})
	}
}

func TestWithinConcavePolygon(t *testing.T) {
	u := orb.Polygon{{{0, 0}, {10, 0}, {10, 10}, {8, 10}, {8, 2}, {2, 2}, {2, 10}, {0, 10}, {0, 0}}}

	tests := []struct {
		name string
		geom orb.Geometry
		want bool
	}{
		{name: "line along the base", geom: orb.LineString{{1, 1}, {9, 1}}, want: true},
		{name: "line up one arm", geom: orb.LineString{{1, 1}, {1, 9}}, want: true},
		{name: "line across the notch", geom: orb.LineString{{1, 8}, {9, 8}}, want: false},
		{name: "polygon spanning the notch", geom: orb.Polygon{{{1, 1}, {9, 1}, {9, 9}, {1, 9}, {1, 1}}}, want: false},
		{name: "polygon in one arm", geom: orb.Polygon{{{0.5, 3}, {1.5, 3}, {1.5, 9}, {0.5, 9}, {0.5, 3}}}, want: true},
		{name: "point in the notch", geom: orb.Point{5, 5}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, Within(tt.geom, u), tt.want)
		})
	}
}

func TestSector(t *testing.T) {
	center := orb.Point{-105, 40}
	poly := Sector(center, 1000, 0, 90)

	ring := poly[0]
	assert.Equal(t, ring[0], center)
	assert.Equal(t, ring[len(ring)-1], center)
	assert.Equal(t, len(ring), sectorSteps+3)

	// the arc sweeps north to east so every arc vertex is north-east of center
	for _, p := range ring[1 : len(ring)-1] {
		assert.Equal(t, p.Lon() >= center.Lon()-1e-9, true)
		assert.Equal(t, p.Lat() >= center.Lat()-1e-9, true)
	}
}

func TestIsSentinel(t *testing.T) {
	assert.Equal(t, IsSentinel(nil), true)
	assert.Equal(t, IsSentinel([]float64{0, 0}), true)
	assert.Equal(t, IsSentinel([]float64{1, 0}), false)
}

func TestIntersects(t *testing.T) {
	b := BBox([4]float64{0, 0, 1, 1})
	assert.Equal(t, Intersects(orb.LineString{{-1, -1}, {0.5, 0.5}}, b), true)
	assert.Equal(t, Intersects(orb.Point{2, 2}, b), false)
}
