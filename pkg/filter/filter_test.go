package filter

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoindex/pkg/common"
	"geoindex/pkg/geometry"
	"geoindex/pkg/store"
)

func record(t *testing.T, enc geometry.Encoder, g orb.Geometry) *store.Record {
	t.Helper()
	rec := &store.Record{ID: 1, Properties: map[string]any{}}
	require.NoError(t, enc.EncodeGeometry(g, rec))
	return rec
}

func matches(t *testing.T, f SearchFilter, rec *store.Record) bool {
	t.Helper()
	ok, err := f.GeometryMatches(rec)
	require.NoError(t, err)
	return ok
}

func TestIntersectWindowVersusIntersect(t *testing.T) {
	enc, err := geometry.NewWKBEncoder("")
	require.NoError(t, err)
	window := common.NewEnvelope(0, 0, 10, 10)
	// bounding box overlaps the window, the line itself does not
	line := record(t, enc, orb.LineString{{8, 13}, {13, 8}})

	loose := IntersectWindow(enc, window)
	exact := Intersect(enc, window)
	assert.True(t, matches(t, loose, line))
	assert.False(t, matches(t, exact, line))
	assert.Equal(t, window, exact.ReferenceEnvelope())

	assert.True(t, exact.NeedsToVisit(common.NewEnvelope(9, 9, 20, 20)))
	assert.False(t, exact.NeedsToVisit(common.NewEnvelope(11, 0, 20, 20)))
}

func TestWithinDistance(t *testing.T) {
	enc, err := geometry.NewWKBEncoder("")
	require.NoError(t, err)
	f := WithinDistance(enc, orb.Point{0, 0}, 5)
	assert.Equal(t, common.NewEnvelope(-5, -5, 5, 5), f.ReferenceEnvelope())

	assert.True(t, matches(t, f, record(t, enc, orb.Point{3, 4})))
	assert.False(t, matches(t, f, record(t, enc, orb.Point{4, 4})), "corner of the envelope")
	square := orb.Bound{Min: orb.Point{-1, -1}, Max: orb.Point{1, 1}}.ToPolygon()
	assert.True(t, matches(t, f, record(t, enc, square)))
}

func TestCombinators(t *testing.T) {
	enc, err := geometry.NewSimplePointEncoder("x:y")
	require.NoError(t, err)
	left := IntersectWindow(enc, common.NewEnvelope(0, 0, 5, 5))
	right := IntersectWindow(enc, common.NewEnvelope(4, 0, 10, 5))
	inBoth := pointRecord(t, enc, 4.5, 1)
	leftOnly := pointRecord(t, enc, 1, 1)

	assert.True(t, matches(t, And(left, right), inBoth))
	assert.False(t, matches(t, And(left, right), leftOnly))
	assert.True(t, matches(t, Or(left, right), leftOnly))
	assert.False(t, matches(t, Not(left), leftOnly))
	assert.True(t, matches(t, Not(right), leftOnly))
	assert.True(t, matches(t, All(), leftOnly))

	far := common.NewEnvelope(50, 50, 60, 60)
	assert.False(t, And(left, right).NeedsToVisit(common.NewEnvelope(0, 0, 1, 1)))
	assert.True(t, Or(left, right).NeedsToVisit(common.NewEnvelope(0, 0, 1, 1)))
	assert.False(t, Or(left, right).NeedsToVisit(far))
	assert.True(t, Not(left).NeedsToVisit(far))
	assert.True(t, All().NeedsToVisit(far))

	broken := &store.Record{ID: 9, Properties: map[string]any{}}
	_, err = And(left).GeometryMatches(broken)
	assert.ErrorIs(t, err, geometry.ErrNoGeometry)
	_, err = Or(left).GeometryMatches(broken)
	assert.ErrorIs(t, err, geometry.ErrNoGeometry)
	_, err = Not(left).GeometryMatches(broken)
	assert.ErrorIs(t, err, geometry.ErrNoGeometry)
}

func pointRecord(t *testing.T, enc geometry.Encoder, x, y float64) *store.Record {
	t.Helper()
	return record(t, enc, orb.Point{x, y})
}
