package common

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Envelope is an axis-aligned bounding box. The zero value is the degenerate
// box at the origin, not an empty box; use NewEnvelope or FromPoint.
type Envelope struct {
	MinX, MaxX, MinY, MaxY float64
}

// NewEnvelope builds an envelope from two corners in any order.
func NewEnvelope(x1, y1, x2, y2 float64) Envelope {
	return Envelope{
		MinX: math.Min(x1, x2),
		MaxX: math.Max(x1, x2),
		MinY: math.Min(y1, y2),
		MaxY: math.Max(y1, y2),
	}
}

func FromPoint(p orb.Point) Envelope {
	return Envelope{MinX: p[0], MaxX: p[0], MinY: p[1], MaxY: p[1]}
}

func FromBound(b orb.Bound) Envelope {
	return Envelope{MinX: b.Min[0], MaxX: b.Max[0], MinY: b.Min[1], MaxY: b.Max[1]}
}

// Bound converts the envelope into the geometry library's bound type.
func (e Envelope) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{e.MinX, e.MinY}, Max: orb.Point{e.MaxX, e.MaxY}}
}

func (e Envelope) IsValid() bool {
	return e.MinX <= e.MaxX && e.MinY <= e.MaxY
}

// IsFinite reports whether the envelope is valid and no bound is infinite.
func (e Envelope) IsFinite() bool {
	return e.IsValid() &&
		!math.IsInf(e.MinX, 0) && !math.IsInf(e.MaxX, 0) &&
		!math.IsInf(e.MinY, 0) && !math.IsInf(e.MaxY, 0)
}

func (e Envelope) Width() float64  { return e.MaxX - e.MinX }
func (e Envelope) Height() float64 { return e.MaxY - e.MinY }

// WidthOf returns the extent along dimension 0 (x) or 1 (y).
func (e Envelope) WidthOf(dim int) float64 {
	if dim == 0 {
		return e.Width()
	}
	return e.Height()
}

func (e Envelope) Area() float64 {
	return e.Width() * e.Height()
}

func (e Envelope) Centre() orb.Point {
	return orb.Point{(e.MinX + e.MaxX) / 2, (e.MinY + e.MaxY) / 2}
}

// CentreOf returns the centre coordinate along dimension 0 (x) or 1 (y).
func (e Envelope) CentreOf(dim int) float64 {
	return e.Centre()[dim]
}

// Union gives the smallest envelope containing both e and other.
func (e Envelope) Union(other Envelope) Envelope {
	return Envelope{
		MinX: math.Min(e.MinX, other.MinX),
		MaxX: math.Max(e.MaxX, other.MaxX),
		MinY: math.Min(e.MinY, other.MinY),
		MaxY: math.Max(e.MaxY, other.MaxY),
	}
}

// ExpandToInclude grows e in place. Only bulk construction paths use it.
func (e *Envelope) ExpandToInclude(other Envelope) {
	*e = e.Union(other)
}

// Enlargement returns how much additional area e would have to grow by to
// accommodate other.
func (e Envelope) Enlargement(other Envelope) float64 {
	return e.Union(other).Area() - e.Area()
}

// Intersects reports whether the closed boxes share at least one point.
func (e Envelope) Intersects(other Envelope) bool {
	return e.MinX <= other.MaxX && e.MaxX >= other.MinX &&
		e.MinY <= other.MaxY && e.MaxY >= other.MinY
}

// Contains reports whether other lies completely inside e, touching the
// boundary included.
func (e Envelope) Contains(other Envelope) bool {
	return e.Covers(other)
}

// Covers is Contains under the name used by the tree invariants.
func (e Envelope) Covers(other Envelope) bool {
	return other.MinX >= e.MinX && other.MaxX <= e.MaxX &&
		other.MinY >= e.MinY && other.MaxY <= e.MaxY
}

func (e Envelope) ContainsPoint(p orb.Point) bool {
	return p[0] >= e.MinX && p[0] <= e.MaxX && p[1] >= e.MinY && p[1] <= e.MaxY
}

// Intersection returns the overlapping box and false if there is none.
func (e Envelope) Intersection(other Envelope) (Envelope, bool) {
	if !e.Intersects(other) {
		return Envelope{}, false
	}
	return Envelope{
		MinX: math.Max(e.MinX, other.MinX),
		MaxX: math.Min(e.MaxX, other.MaxX),
		MinY: math.Max(e.MinY, other.MinY),
		MaxY: math.Min(e.MaxY, other.MaxY),
	}, true
}

// Separation is the gap between the boxes along one dimension. Negative
// values mean the boxes overlap along that dimension.
func (e Envelope) Separation(other Envelope, dim int) float64 {
	if dim == 0 {
		return math.Max(e.MinX, other.MinX) - math.Min(e.MaxX, other.MaxX)
	}
	return math.Max(e.MinY, other.MinY) - math.Min(e.MaxY, other.MaxY)
}

// Distance is the euclidean distance between the closest points of the two
// boxes, 0 when they intersect.
func (e Envelope) Distance(other Envelope) float64 {
	dx := math.Max(0, e.Separation(other, 0))
	dy := math.Max(0, e.Separation(other, 1))
	return math.Hypot(dx, dy)
}

// ExpandBy grows the envelope by d on every side.
func (e Envelope) ExpandBy(d float64) Envelope {
	return Envelope{MinX: e.MinX - d, MaxX: e.MaxX + d, MinY: e.MinY - d, MaxY: e.MaxY + d}
}

// Clamp restricts e to the domain box. A box lying outside the domain
// collapses onto the nearest domain edge.
func (e Envelope) Clamp(domain Envelope) Envelope {
	return Envelope{
		MinX: clamp(e.MinX, domain.MinX, domain.MaxX),
		MaxX: clamp(e.MaxX, domain.MinX, domain.MaxX),
		MinY: clamp(e.MinY, domain.MinY, domain.MaxY),
		MaxY: clamp(e.MaxY, domain.MinY, domain.MaxY),
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func (e Envelope) String() string {
	return fmt.Sprintf("Envelope(%g,%g %g,%g)", e.MinX, e.MinY, e.MaxX, e.MaxY)
}
