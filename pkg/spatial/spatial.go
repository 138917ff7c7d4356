// Package spatial holds the geometry helpers the feature store needs: a
// representative point, polygon containment, sensor sectors and bounds.
package spatial

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

// sectorSteps is the number of arc segments in a generated sector.
const sectorSteps = 64

// PointOnFeature returns a point guaranteed to lie on the geometry: the point
// itself, the middle vertex of a line, or an interior point of a polygon.
func PointOnFeature(g orb.Geometry) orb.Point {
	switch v := g.(type) {
	case orb.Point:
		return v
	case orb.MultiPoint:
		if len(v) > 0 {
			return v[0]
		}
	case orb.LineString:
		if len(v) > 0 {
			return v[len(v)/2]
		}
	case orb.MultiLineString:
		if len(v) > 0 {
			return PointOnFeature(v[0])
		}
	case orb.Ring:
		return PointOnFeature(orb.Polygon{v})
	case orb.Polygon:
		if len(v) == 0 || len(v[0]) == 0 {
			return orb.Point{}
		}
		if c, _ := planar.CentroidArea(v); planar.PolygonContains(v, c) {
			return c
		}
		if c := v.Bound().Center(); planar.PolygonContains(v, c) {
			return c
		}
		if c, ok := scanlinePoint(v); ok {
			return c
		}
		return v[0][0]
	case orb.MultiPolygon:
		if len(v) > 0 {
			return PointOnFeature(v[0])
		}
	case orb.Collection:
		if len(v) > 0 {
			return PointOnFeature(v[0])
		}
	case orb.Bound:
		return v.Center()
	}
	return orb.Point{}
}

// scanlinePoint intersects the outer ring with a horizontal line through the
// middle of the bound and returns the midpoint of the first inside span.
func scanlinePoint(poly orb.Polygon) (orb.Point, bool) {
	ring := poly[0]
	y := poly.Bound().Center().Lat()

	var xs []float64
	for i := 0; i+1 < len(ring); i++ {
		a, b := ring[i], ring[i+1]
		if (a.Lat() > y) == (b.Lat() > y) {
			continue
		}
		xs = append(xs, a.Lon()+(y-a.Lat())*(b.Lon()-a.Lon())/(b.Lat()-a.Lat()))
	}
	sort.Float64s(xs)

	for i := 0; i+1 < len(xs); i += 2 {
		c := orb.Point{(xs[i] + xs[i+1]) / 2, y}
		if planar.PolygonContains(poly, c) {
			return c, true
		}
	}
	return orb.Point{}, false
}

// Vertices flattens every coordinate of the geometry.
func Vertices(g orb.Geometry) []orb.Point {
	var out []orb.Point
	switch v := g.(type) {
	case orb.Point:
		out = append(out, v)
	case orb.MultiPoint:
		out = append(out, v...)
	case orb.LineString:
		out = append(out, v...)
	case orb.Ring:
		out = append(out, v...)
	case orb.MultiLineString:
		for _, ls := range v {
			out = append(out, ls...)
		}
	case orb.Polygon:
		for _, r := range v {
			out = append(out, r...)
		}
	case orb.MultiPolygon:
		for _, p := range v {
			out = append(out, Vertices(p)...)
		}
	case orb.Collection:
		for _, c := range v {
			out = append(out, Vertices(c)...)
		}
	}
	return out
}

// Within reports whether g lies inside poly: every vertex is contained and no
// edge of g crosses a ring of poly.
func Within(g orb.Geometry, poly orb.Polygon) bool {
	points := Vertices(g)
	if len(points) == 0 || len(poly) == 0 {
		return false
	}
	for _, p := range points {
		if !planar.PolygonContains(poly, p) {
			return false
		}
	}

	for _, seg := range segments(g) {
		mid := orb.Point{(seg[0][0] + seg[1][0]) / 2, (seg[0][1] + seg[1][1]) / 2}
		if !planar.PolygonContains(poly, mid) {
			return false
		}
		for _, ring := range poly {
			for i := 0; i+1 < len(ring); i++ {
				if crosses(seg[0], seg[1], ring[i], ring[i+1]) {
					return false
				}
			}
		}
	}
	return true
}

// segments lists the edges of every line and ring in g.
func segments(g orb.Geometry) [][2]orb.Point {
	var out [][2]orb.Point
	add := func(line []orb.Point) {
		for i := 0; i+1 < len(line); i++ {
			out = append(out, [2]orb.Point{line[i], line[i+1]})
		}
	}
	switch v := g.(type) {
	case orb.LineString:
		add(v)
	case orb.Ring:
		add(v)
	case orb.MultiLineString:
		for _, ls := range v {
			add(ls)
		}
	case orb.Polygon:
		for _, r := range v {
			add(r)
		}
	case orb.MultiPolygon:
		for _, p := range v {
			out = append(out, segments(p)...)
		}
	case orb.Collection:
		for _, c := range v {
			out = append(out, segments(c)...)
		}
	}
	return out
}

// crosses reports a proper intersection of segments ab and cd. Touching
// endpoints and collinear overlap do not count.
func crosses(a, b, c, d orb.Point) bool {
	d1 := orientation(c, d, a)
	d2 := orientation(c, d, b)
	d3 := orientation(a, b, c)
	d4 := orientation(a, b, d)
	return d1*d2 < 0 && d3*d4 < 0
}

func orientation(a, b, p orb.Point) float64 {
	return (b[0]-a[0])*(p[1]-a[1]) - (b[1]-a[1])*(p[0]-a[0])
}

// Sector builds a closed pie slice around center with a radius in meters,
// sweeping clockwise from bearing1 to bearing2 (degrees from north).
func Sector(center orb.Point, radius, bearing1, bearing2 float64) orb.Polygon {
	start := normalizeBearing(bearing1)
	end := normalizeBearing(bearing2)
	if end <= start {
		end += 360
	}
	if bearing1 == bearing2 {
		end = start + 360
	}

	ring := orb.Ring{center}
	step := (end - start) / sectorSteps
	for i := 0; i <= sectorSteps; i++ {
		ring = append(ring, geo.PointAtBearingAndDistance(center, start+step*float64(i), radius))
	}
	ring = append(ring, center)
	return orb.Polygon{ring}
}

func normalizeBearing(b float64) float64 {
	b = math.Mod(b, 360)
	if b < 0 {
		b += 360
	}
	return b
}

// BBox converts a [minLon, minLat, maxLon, maxLat] array into a bound.
func BBox(box [4]float64) orb.Bound {
	return orb.Bound{
		Min: orb.Point{box[0], box[1]},
		Max: orb.Point{box[2], box[3]},
	}
}

// Intersects reports whether any vertex of g falls in the bound.
func Intersects(g orb.Geometry, b orb.Bound) bool {
	for _, p := range Vertices(g) {
		if b.Contains(p) {
			return true
		}
	}
	return false
}

// IsSentinel reports whether a center value is absent or the [0,0] placeholder.
func IsSentinel(center []float64) bool {
	return len(center) < 2 || (center[0] == 0 && center[1] == 0)
}
