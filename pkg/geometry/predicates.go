package geometry

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// IntersectsBound is the exact intersection test between a geometry and an
// axis-aligned window.
func IntersectsBound(g orb.Geometry, b orb.Bound) bool {
	if !g.Bound().Intersects(b) {
		return false
	}
	switch v := g.(type) {
	case orb.Point:
		return b.Contains(v)
	case orb.MultiPoint:
		for _, p := range v {
			if b.Contains(p) {
				return true
			}
		}
		return false
	case orb.LineString:
		return lineIntersectsBound(v, b)
	case orb.MultiLineString:
		for _, ls := range v {
			if lineIntersectsBound(ls, b) {
				return true
			}
		}
		return false
	case orb.Ring:
		return polygonIntersectsBound(orb.Polygon{v}, b)
	case orb.Polygon:
		return polygonIntersectsBound(v, b)
	case orb.MultiPolygon:
		for _, p := range v {
			if polygonIntersectsBound(p, b) {
				return true
			}
		}
		return false
	case orb.Collection:
		for _, child := range v {
			if IntersectsBound(child, b) {
				return true
			}
		}
		return false
	case orb.Bound:
		return v.Intersects(b)
	}
	return true
}

// DistanceTo is the planar distance from the geometry to p, 0 inside areas.
func DistanceTo(g orb.Geometry, p orb.Point) float64 {
	switch v := g.(type) {
	case orb.Polygon:
		if planar.PolygonContains(v, p) {
			return 0
		}
	case orb.MultiPolygon:
		if planar.MultiPolygonContains(v, p) {
			return 0
		}
	case orb.Bound:
		if v.Contains(p) {
			return 0
		}
		return planar.DistanceFrom(v.ToPolygon(), p)
	}
	return planar.DistanceFrom(g, p)
}

func lineIntersectsBound(ls orb.LineString, b orb.Bound) bool {
	if len(ls) == 1 {
		return b.Contains(ls[0])
	}
	for i := 1; i < len(ls); i++ {
		if segmentIntersectsBound(ls[i-1], ls[i], b) {
			return true
		}
	}
	return false
}

func polygonIntersectsBound(p orb.Polygon, b orb.Bound) bool {
	for _, ring := range p {
		if lineIntersectsBound(orb.LineString(ring), b) {
			return true
		}
	}
	// no edge crosses the window: either the window sits inside the polygon
	// or the polygon sits inside the window
	if planar.PolygonContains(p, b.Min) {
		return true
	}
	return len(p) > 0 && len(p[0]) > 0 && b.Contains(p[0][0])
}

// segmentIntersectsBound clips the segment against the window (Liang-Barsky).
func segmentIntersectsBound(a, c orb.Point, b orb.Bound) bool {
	t0, t1 := 0.0, 1.0
	dx := c[0] - a[0]
	dy := c[1] - a[1]

	clip := func(p, q float64) bool {
		if p == 0 {
			return q >= 0
		}
		r := q / p
		if p < 0 {
			if r > t1 {
				return false
			}
			if r > t0 {
				t0 = r
			}
		} else {
			if r < t0 {
				return false
			}
			if r < t1 {
				t1 = r
			}
		}
		return true
	}

	return clip(-dx, a[0]-b.Min[0]) &&
		clip(dx, b.Max[0]-a[0]) &&
		clip(-dy, a[1]-b.Min[1]) &&
		clip(dy, b.Max[1]-a[1])
}
