// Package filter defines search filters. A filter answers two questions: may
// a subtree with a given envelope hold matches, and does a given record match.
package filter

import (
	"github.com/paulmach/orb"

	"geoindex/pkg/common"
	"geoindex/pkg/geometry"
	"geoindex/pkg/store"
)

type SearchFilter interface {
	// NeedsToVisit must never return false for a subtree holding a match.
	NeedsToVisit(env common.Envelope) bool
	GeometryMatches(rec *store.Record) (bool, error)
}

// EnvelopeFilter is a filter whose candidate region is a single envelope.
// Curve indexes can only serve filters of this kind.
type EnvelopeFilter interface {
	SearchFilter
	ReferenceEnvelope() common.Envelope
}

// EnvelopeIntersection matches records whose envelope intersects the
// reference. A non-nil refine callback adds an exact geometry test on top.
type EnvelopeIntersection struct {
	decoder geometry.EnvelopeDecoder
	ref     common.Envelope
	refine  func(rec *store.Record) (bool, error)
}

func NewEnvelopeIntersection(decoder geometry.EnvelopeDecoder, ref common.Envelope) *EnvelopeIntersection {
	return &EnvelopeIntersection{decoder: decoder, ref: ref}
}

func (f *EnvelopeIntersection) ReferenceEnvelope() common.Envelope {
	return f.ref
}

func (f *EnvelopeIntersection) NeedsToVisit(env common.Envelope) bool {
	return f.ref.Intersects(env)
}

func (f *EnvelopeIntersection) GeometryMatches(rec *store.Record) (bool, error) {
	env, err := f.decoder.DecodeEnvelope(rec)
	if err != nil {
		return false, err
	}
	if !f.ref.Intersects(env) {
		return false, nil
	}
	if f.refine == nil {
		return true, nil
	}
	return f.refine(rec)
}

// IntersectWindow is the plain window query used by the layer API.
func IntersectWindow(decoder geometry.EnvelopeDecoder, window common.Envelope) *EnvelopeIntersection {
	return NewEnvelopeIntersection(decoder, window)
}

// Intersect matches records whose geometry really intersects the window,
// not just their bounding box.
func Intersect(encoder geometry.Encoder, window common.Envelope) *EnvelopeIntersection {
	f := NewEnvelopeIntersection(encoder, window)
	f.refine = func(rec *store.Record) (bool, error) {
		g, err := encoder.DecodeGeometry(rec)
		if err != nil {
			return false, err
		}
		return geometry.IntersectsBound(g, window.Bound()), nil
	}
	return f
}

// WithinDistance matches records within distance of point.
func WithinDistance(encoder geometry.Encoder, point orb.Point, distance float64) *EnvelopeIntersection {
	f := NewEnvelopeIntersection(encoder, common.FromPoint(point).ExpandBy(distance))
	f.refine = func(rec *store.Record) (bool, error) {
		g, err := encoder.DecodeGeometry(rec)
		if err != nil {
			return false, err
		}
		return geometry.DistanceTo(g, point) <= distance, nil
	}
	return f
}

type all struct{}

// All matches every record.
func All() SearchFilter { return all{} }

func (all) NeedsToVisit(common.Envelope) bool           { return true }
func (all) GeometryMatches(*store.Record) (bool, error) { return true, nil }

type and struct{ filters []SearchFilter }

func And(filters ...SearchFilter) SearchFilter { return and{filters: filters} }

func (f and) NeedsToVisit(env common.Envelope) bool {
	for _, sub := range f.filters {
		if !sub.NeedsToVisit(env) {
			return false
		}
	}
	return true
}

func (f and) GeometryMatches(rec *store.Record) (bool, error) {
	for _, sub := range f.filters {
		ok, err := sub.GeometryMatches(rec)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

type or struct{ filters []SearchFilter }

func Or(filters ...SearchFilter) SearchFilter { return or{filters: filters} }

func (f or) NeedsToVisit(env common.Envelope) bool {
	for _, sub := range f.filters {
		if sub.NeedsToVisit(env) {
			return true
		}
	}
	return false
}

func (f or) GeometryMatches(rec *store.Record) (bool, error) {
	for _, sub := range f.filters {
		ok, err := sub.GeometryMatches(rec)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

type not struct{ inner SearchFilter }

// Not negates a filter. Pruning is impossible, so every subtree is visited.
func Not(inner SearchFilter) SearchFilter { return not{inner: inner} }

func (not) NeedsToVisit(common.Envelope) bool { return true }

func (f not) GeometryMatches(rec *store.Record) (bool, error) {
	ok, err := f.inner.GeometryMatches(rec)
	if err != nil {
		return false, err
	}
	return !ok, nil
}
