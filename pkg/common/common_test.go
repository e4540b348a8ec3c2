package common

import (
	"math"
	"math/rand"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeBasics(t *testing.T) {
	e := NewEnvelope(4, 6, 0, 2)
	assert.Equal(t, Envelope{MinX: 0, MaxX: 4, MinY: 2, MaxY: 6}, e)
	assert.True(t, e.IsValid())
	assert.Equal(t, 16.0, e.Area())
	assert.Equal(t, orb.Point{2, 4}, e.Centre())
	assert.Equal(t, 4.0, e.WidthOf(1))
	assert.Equal(t, e, FromBound(e.Bound()))

	assert.False(t, Envelope{MinX: 1}.IsValid())
}

func TestEnvelopeRelations(t *testing.T) {
	a := NewEnvelope(0, 0, 10, 10)
	b := NewEnvelope(10, 10, 20, 20)
	c := NewEnvelope(11, 0, 12, 1)

	assert.True(t, a.Intersects(b), "touching corners intersect")
	assert.False(t, a.Intersects(c))
	assert.True(t, a.Covers(NewEnvelope(0, 0, 10, 5)))
	assert.False(t, a.Contains(b))
	assert.True(t, a.ContainsPoint(orb.Point{10, 0}))

	in, ok := a.Intersection(NewEnvelope(5, 5, 15, 15))
	require.True(t, ok)
	assert.Equal(t, NewEnvelope(5, 5, 10, 10), in)
	_, ok = a.Intersection(c)
	assert.False(t, ok)

	assert.Equal(t, 1.0, a.Distance(c))
	assert.Equal(t, 0.0, a.Distance(b))
	assert.InDelta(t, math.Sqrt2, a.Distance(NewEnvelope(11, 11, 12, 12)), 1e-12)
	assert.Equal(t, -5.0, a.Separation(NewEnvelope(5, 0, 15, 1), 0))
}

func TestEnvelopeGrowth(t *testing.T) {
	a := NewEnvelope(0, 0, 2, 2)
	assert.Equal(t, 0.0, a.Enlargement(NewEnvelope(1, 1, 2, 2)))
	assert.Equal(t, 2.0, a.Enlargement(NewEnvelope(2, 0, 3, 2)))

	a.ExpandToInclude(FromPoint(orb.Point{-1, 5}))
	assert.Equal(t, NewEnvelope(-1, 0, 2, 5), a)
	assert.Equal(t, NewEnvelope(-2, -1, 3, 6), a.ExpandBy(1))
}

func TestEnvelopeClamp(t *testing.T) {
	domain := NewEnvelope(-180, -90, 180, 90)
	assert.Equal(t, NewEnvelope(170, 0, 180, 20), NewEnvelope(170, 0, 400, 20).Clamp(domain))

	outside := NewEnvelope(200, 0, 400, 20).Clamp(domain)
	assert.True(t, outside.IsValid())
	assert.Equal(t, 0.0, outside.Width())
}

func TestMortonRoundTrip(t *testing.T) {
	assert.Equal(t, int64(0b1001), Encode2D(1, 2))
	rnd := rand.New(rand.NewSource(9))
	for i := 0; i < 1000; i++ {
		x := uint32(rnd.Int63n(1 << MaxMortonLevel))
		y := uint32(rnd.Int63n(1 << MaxMortonLevel))
		code := Encode2D(x, y)
		require.GreaterOrEqual(t, code, int64(0))
		gx, gy := Decode2D(code)
		require.Equal(t, x, gx)
		require.Equal(t, y, gy)
	}
}

func TestMergeRanges(t *testing.T) {
	ranges := []CurveRange[int64]{{Min: 10, Max: 12}, {Min: 0, Max: 3}, {Min: 4, Max: 5}, {Min: 11, Max: 20}, {Min: 30, Max: 31}}
	merged := MergeRanges(ranges, AdjacentInt64)
	assert.Equal(t, []CurveRange[int64]{{Min: 0, Max: 5}, {Min: 10, Max: 20}, {Min: 30, Max: 31}}, merged)

	plain := MergeRanges([]CurveRange[int64]{{Min: 4, Max: 5}, {Min: 0, Max: 3}}, nil)
	assert.Len(t, plain, 2)

	assert.Empty(t, MergeRanges[string](nil, nil))

	assert.True(t, InRanges(15, merged))
	assert.True(t, InRanges(0, merged))
	assert.False(t, InRanges(7, merged))
	assert.False(t, InRanges(32, merged))
}
