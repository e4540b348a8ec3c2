package curve

import (
	"cmp"
	"math"
	"math/rand"
	"slices"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"geoindex/pkg/common"
	"geoindex/pkg/crs"
	"geoindex/pkg/filter"
	"geoindex/pkg/geometry"
	"geoindex/pkg/index"
	"geoindex/pkg/monitor"
	"geoindex/pkg/storage"
	"geoindex/pkg/store"
)

var curveIndexes = map[string]func() index.Index{
	ZOrderIdentifier:  func() index.Index { return NewZOrder() },
	HilbertIdentifier: func() index.Index { return NewHilbert() },
	GeohashIdentifier: func() index.Index { return NewGeohash() },
}

type fixture struct {
	idx   index.Index
	store *store.MemoryStore
	enc   geometry.Encoder
}

func newFixture(t *testing.T, build func() index.Index, backend storage.Backend) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	manager := storage.NewManager(backend, "", logger)
	t.Cleanup(func() { _ = manager.Close() })

	st := store.NewMemoryStore()
	enc, err := geometry.NewWKBEncoder("geom:bbox")
	require.NoError(t, err)

	idx := build()
	require.NoError(t, idx.Init(index.LayerContext{
		Name:    "test",
		Store:   st,
		Decoder: enc,
		CRS:     crs.WGS84,
		Storage: manager,
		Logger:  logger,
	}))
	return &fixture{idx: idx, store: st, enc: enc}
}

func (f *fixture) record(t *testing.T, g orb.Geometry) *store.Record {
	t.Helper()
	rec := f.store.Create(nil)
	require.NoError(t, f.enc.EncodeGeometry(g, rec))
	return rec
}

func (f *fixture) addPoint(t *testing.T, x, y float64) *store.Record {
	t.Helper()
	rec := f.record(t, orb.Point{x, y})
	require.NoError(t, f.idx.Add(rec))
	return rec
}

func (f *fixture) search(t *testing.T, flt filter.SearchFilter) []int64 {
	t.Helper()
	res, err := f.idx.SearchIndex(flt)
	require.NoError(t, err)
	ids, err := res.IDs()
	require.NoError(t, err)
	slices.Sort(ids)
	return ids
}

func randomWindow(rnd *rand.Rand, domain common.Envelope, maxSpan float64) common.Envelope {
	x := domain.MinX + rnd.Float64()*domain.Width()
	y := domain.MinY + rnd.Float64()*domain.Height()
	return common.NewEnvelope(x, y, x+rnd.Float64()*maxSpan, y+rnd.Float64()*maxSpan)
}

func TestExampleScenario(t *testing.T) {
	for name, build := range curveIndexes {
		for _, backend := range []storage.Backend{storage.BackendMemory, storage.BackendSQLite, storage.BackendBadger} {
			t.Run(name+"/"+string(backend), func(t *testing.T) {
				f := newFixture(t, build, backend)
				f.addPoint(t, 0, 0)
				mid := f.addPoint(t, 5, 5)
				f.addPoint(t, 9, 9)

				got := f.search(t, filter.IntersectWindow(f.enc, common.NewEnvelope(4, 4, 6, 6)))
				assert.Equal(t, []int64{mid.ID}, got)
				assert.Equal(t, 3, f.idx.Count())
				assert.True(t, f.idx.IsIndexed(mid.ID))
			})
		}
	}
}

func TestMatchesBruteForce(t *testing.T) {
	for name, build := range curveIndexes {
		t.Run(name, func(t *testing.T) {
			rnd := rand.New(rand.NewSource(int64(len(name))))
			f := newFixture(t, build, storage.BackendMemory)

			points := make(map[int64]orb.Point)
			var recs []*store.Record
			for i := 0; i < 1000; i++ {
				p := orb.Point{rnd.Float64()*360 - 180, rnd.Float64()*180 - 90}
				rec := f.record(t, p)
				recs = append(recs, rec)
				points[rec.ID] = p
			}
			require.NoError(t, f.idx.AddAll(recs))
			require.Equal(t, 1000, f.idx.Count())

			for i := 0; i < 40; i++ {
				window := randomWindow(rnd, crs.WGS84.Bounds(), 60)
				var want []int64
				for id, p := range points {
					if window.ContainsPoint(p) {
						want = append(want, id)
					}
				}
				slices.Sort(want)
				got := f.search(t, filter.IntersectWindow(f.enc, window))
				if len(want) == 0 {
					assert.Empty(t, got, "window %s", window)
					continue
				}
				assert.Equal(t, want, got, "window %s", window)
			}
		})
	}
}

func TestWindowOutsideDomain(t *testing.T) {
	for name, build := range curveIndexes {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, build, storage.BackendMemory)
			edge := f.addPoint(t, 180, 10)
			f.addPoint(t, 0, 0)

			got := f.search(t, filter.IntersectWindow(f.enc, common.NewEnvelope(170, 0, 400, 20)))
			assert.Equal(t, []int64{edge.ID}, got)
			assert.Empty(t, f.search(t, filter.IntersectWindow(f.enc, common.NewEnvelope(200, 0, 400, 20))))
		})
	}
}

func TestPolygonsIndexedByCentroid(t *testing.T) {
	f := newFixture(t, curveIndexes[ZOrderIdentifier], storage.BackendMemory)
	square := orb.Bound{Min: orb.Point{10, 10}, Max: orb.Point{20, 20}}.ToPolygon()
	rec := f.record(t, square)
	require.NoError(t, f.idx.Add(rec))

	assert.Equal(t, []int64{rec.ID}, f.search(t, filter.Intersect(f.enc, common.NewEnvelope(14, 14, 16, 16))))
	assert.Empty(t, f.search(t, filter.Intersect(f.enc, common.NewEnvelope(18, 18, 19, 19))))

	bbox, ok := f.idx.BoundingBox()
	require.True(t, ok)
	assert.Equal(t, common.NewEnvelope(10, 10, 20, 20), bbox)
}

func TestRemove(t *testing.T) {
	for name, build := range curveIndexes {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, build, storage.BackendSQLite)
			a := f.addPoint(t, 1, 1)
			b := f.addPoint(t, 2, 2)

			require.NoError(t, f.idx.Remove(a.ID, false, true))
			assert.ErrorIs(t, f.idx.Remove(a.ID, false, true), index.ErrNotFound)
			assert.NoError(t, f.idx.Remove(a.ID, false, false))
			assert.False(t, f.idx.IsIndexed(a.ID))
			_, err := f.store.Get(a.ID)
			assert.NoError(t, err)

			require.NoError(t, f.idx.Remove(b.ID, true, true))
			_, err = f.store.Get(b.ID)
			assert.ErrorIs(t, err, store.ErrRecordNotFound)
			assert.True(t, f.idx.IsEmpty())
		})
	}
}

func TestReAddReindexes(t *testing.T) {
	f := newFixture(t, curveIndexes[HilbertIdentifier], storage.BackendBadger)
	rec := f.addPoint(t, 1, 1)
	require.NoError(t, f.enc.EncodeGeometry(orb.Point{50, 50}, rec))
	require.NoError(t, f.idx.Add(rec))

	assert.Equal(t, 1, f.idx.Count())
	assert.Empty(t, f.search(t, filter.IntersectWindow(f.enc, common.NewEnvelope(0, 0, 2, 2))))
	assert.Equal(t, []int64{rec.ID}, f.search(t, filter.IntersectWindow(f.enc, common.NewEnvelope(49, 49, 51, 51))))
}

type countingListener struct {
	begun  int
	worked int
	done   bool
}

func (l *countingListener) Begin(units int)  { l.begun = units }
func (l *countingListener) Worked(units int) { l.worked += units }
func (l *countingListener) Done()            { l.done = true }

func TestRemoveAll(t *testing.T) {
	for name, build := range curveIndexes {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, build, storage.BackendBadger)
			for i := 0; i < 50; i++ {
				f.addPoint(t, float64(i), float64(i)/2)
			}
			all, err := index.Drain(f.idx.AllIndexed())
			require.NoError(t, err)
			assert.Len(t, all, 50)

			l := &countingListener{}
			require.NoError(t, f.idx.RemoveAll(true, l))
			assert.True(t, f.idx.IsEmpty())
			assert.Equal(t, 50, l.begun)
			assert.Equal(t, 50, l.worked)
			assert.True(t, l.done)
			assert.Zero(t, f.store.Count())
			_, ok := f.idx.BoundingBox()
			assert.False(t, ok)

			f.addPoint(t, 3, 3)
			require.NoError(t, f.idx.Clear(nil))
			assert.True(t, f.idx.IsEmpty())
			assert.Equal(t, 1, f.store.Count())
		})
	}
}

func TestUnsupportedFilter(t *testing.T) {
	f := newFixture(t, curveIndexes[GeohashIdentifier], storage.BackendMemory)
	f.addPoint(t, 1, 1)

	window := filter.IntersectWindow(f.enc, common.NewEnvelope(0, 0, 2, 2))
	for _, flt := range []filter.SearchFilter{filter.All(), filter.And(window, window), filter.Not(window)} {
		_, err := f.idx.SearchIndex(flt)
		assert.ErrorIs(t, err, index.ErrUnsupportedFilter)
	}
}

func TestInitValidatesContext(t *testing.T) {
	enc, err := geometry.NewSimplePointEncoder("x:y")
	require.NoError(t, err)
	base := index.LayerContext{Name: "bad", Store: store.NewMemoryStore(), Decoder: enc}

	for name, build := range curveIndexes {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, build().Init(base), index.ErrConfiguration)

			ctx := base
			ctx.CRS = crs.WGS84Height
			assert.ErrorIs(t, build().Init(ctx), index.ErrConfiguration)

			ctx.CRS = crs.New2D("flat", common.NewEnvelope(0, 0, 0, 10))
			assert.ErrorIs(t, build().Init(ctx), index.ErrConfiguration)

			ctx.CRS = crs.Cartesian
			idx := build()
			require.NoError(t, idx.Init(ctx))
			assert.ErrorIs(t, idx.Init(ctx), index.ErrAlreadyInitialized)
		})
	}
}

func TestConfigure(t *testing.T) {
	f := newFixture(t, curveIndexes[ZOrderIdentifier], storage.BackendMemory)
	pi := f.idx.(*PointIndex[int64])

	require.NoError(t, pi.Configure("maxLevel: 8\nsearchDepth: 6"))
	g := pi.Curve().(*grid)
	assert.Equal(t, 8, g.Level())
	assert.Equal(t, 6, g.SearchDepth())

	for _, bad := range []string{"maxLevel: 0", "maxLevel: 40", "maxLevel: 8\nsearchDepth: 9", "precision: 5", "[1"} {
		assert.ErrorIs(t, pi.Configure(bad), index.ErrConfiguration, bad)
	}

	f.addPoint(t, 1, 1)
	assert.ErrorIs(t, pi.Configure("maxLevel: 10"), index.ErrConfiguration)
	require.NoError(t, pi.Configure("maxLevel: 8\nsearchDepth: 3"))
	assert.Equal(t, 3, pi.Curve().(*grid).SearchDepth())

	gf := newFixture(t, curveIndexes[GeohashIdentifier], storage.BackendMemory)
	gi := gf.idx.(*PointIndex[string])
	require.NoError(t, gi.Configure("precision: 7"))
	gh := gi.Curve().(*geohash)
	assert.Equal(t, 7, gh.Precision())
	assert.Equal(t, 6, gh.SearchPrecision())
	assert.ErrorIs(t, gi.Configure("precision: 4\nsearchPrecision: 5"), index.ErrConfiguration)
}

func TestRegistry(t *testing.T) {
	ids := index.Identifiers()
	for name := range curveIndexes {
		assert.Contains(t, ids, name)
	}

	enc, err := geometry.NewSimplePointEncoder("x:y")
	require.NoError(t, err)
	ctx := index.LayerContext{Name: "reg", Store: store.NewMemoryStore(), Decoder: enc, CRS: crs.WGS84}

	idx, err := index.New("Geohash", ctx, "precision: 9\nsearchPrecision: 5")
	require.NoError(t, err)
	gh := idx.(*PointIndex[string]).Curve().(*geohash)
	assert.Equal(t, 9, gh.Precision())

	_, err = index.New("hilbert", ctx, "maxLevel: 99")
	assert.ErrorIs(t, err, index.ErrConfiguration)
}

func TestMonitorAndStats(t *testing.T) {
	f := newFixture(t, curveIndexes[ZOrderIdentifier], storage.BackendMemory)
	rnd := rand.New(rand.NewSource(5))
	for i := 0; i < 500; i++ {
		f.addPoint(t, rnd.Float64()*40, rnd.Float64()*40)
	}
	m := monitor.NewRTreeMonitor()
	f.idx.AddMonitor(m)
	stats := f.idx.Stats()
	stats.Reset()

	window := common.NewEnvelope(10, 10, 20, 20)
	hits := f.search(t, filter.IntersectWindow(f.enc, window))

	ranges := f.idx.(*PointIndex[int64]).Curve().Decompose(window)
	assert.Equal(t, len(ranges), m.CaseCounts()["Curve Ranges"])
	assert.Equal(t, uint64(len(hits)), stats.Hits())
	assert.Equal(t, uint64(1), stats.Reads())
}

func TestDecomposeCoversWindow(t *testing.T) {
	bounds := crs.WGS84.Bounds()
	zorder, err := newGrid(ZOrderIdentifier, zorderKey, 10, bounds, index.Options{})
	require.NoError(t, err)
	hilbert, err := newGrid(HilbertIdentifier, hilbertKey, 10, bounds, index.Options{"searchDepth": 7})
	require.NoError(t, err)
	gh, err := newGeohash(bounds, index.Options{"precision": 8, "searchPrecision": 4})
	require.NoError(t, err)

	rnd := rand.New(rand.NewSource(1))
	checkCovers[int64](t, rnd, zorder)
	checkCovers[int64](t, rnd, hilbert)
	checkCovers[string](t, rnd, gh)
}

func checkCovers[K storage.Key](t *testing.T, rnd *rand.Rand, c Curve[K]) {
	t.Helper()
	bounds := crs.WGS84.Bounds()
	for i := 0; i < 200; i++ {
		window := randomWindow(rnd, bounds, 90).Clamp(bounds)
		ranges := c.Decompose(window)
		require.NotEmpty(t, ranges)
		for j := 1; j < len(ranges); j++ {
			require.Negative(t, cmp.Compare(ranges[j-1].Max, ranges[j].Min), "%s ranges overlap", c.Name())
		}
		for j := 0; j < 50; j++ {
			p := orb.Point{
				window.MinX + rnd.Float64()*window.Width(),
				window.MinY + rnd.Float64()*window.Height(),
			}
			require.True(t, common.InRanges(c.Encode(p), ranges), "%s: %v in %s", c.Name(), p, window)
		}
		corner := orb.Point{window.MaxX, window.MaxY}
		require.True(t, common.InRanges(c.Encode(corner), ranges), "%s: corner of %s", c.Name(), window)
	}
}

func TestDecomposeWholeDomain(t *testing.T) {
	bounds := crs.WGS84.Bounds()
	g, err := newGrid(ZOrderIdentifier, zorderKey, 4, bounds, index.Options{})
	require.NoError(t, err)
	assert.Equal(t, []common.CurveRange[int64]{{Min: 0, Max: 255}}, g.Decompose(bounds))

	gh, err := newGeohash(bounds, index.Options{"precision": 3})
	require.NoError(t, err)
	assert.Equal(t, []common.CurveRange[string]{{Min: "000", Max: "zzz"}}, gh.Decompose(bounds))
	assert.Nil(t, gh.Decompose(common.Envelope{MinX: 1, MaxX: 0}))
}

func TestGeohashEncode(t *testing.T) {
	gh, err := newGeohash(crs.WGS84.Bounds(), index.Options{"precision": 5})
	require.NoError(t, err)
	assert.Equal(t, "ezs42", gh.Encode(orb.Point{-5.6, 42.6}))
	assert.Equal(t, "00000", gh.Encode(orb.Point{-180, -90}))
	assert.Equal(t, "zzzzz", gh.Encode(orb.Point{180, 90}))

	next, ok := successor("0bz")
	require.True(t, ok)
	assert.Equal(t, "0c0", next)
	_, ok = successor("zzz")
	assert.False(t, ok)
	assert.True(t, adjacentGeohash("ezz", "f00"))
}

func TestHilbertKeys(t *testing.T) {
	assert.Equal(t, int64(0), hilbertKey(1, 0, 0))
	assert.Equal(t, int64(1), hilbertKey(1, 0, 1))
	assert.Equal(t, int64(2), hilbertKey(1, 1, 1))
	assert.Equal(t, int64(3), hilbertKey(1, 1, 0))

	const level = 4
	n := uint32(1) << level
	tiles := make(map[int64][2]uint32)
	for x := uint32(0); x < n; x++ {
		for y := uint32(0); y < n; y++ {
			d := hilbertKey(level, x, y)
			require.NotContains(t, tiles, d)
			tiles[d] = [2]uint32{x, y}
		}
	}
	for d := int64(1); d < int64(n*n); d++ {
		a, b := tiles[d-1], tiles[d]
		dist := absDiff(a[0], b[0]) + absDiff(a[1], b[1])
		require.Equal(t, uint32(1), dist, "keys %d and %d are not neighbours", d-1, d)
	}
}

func absDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

func TestZOrderKeys(t *testing.T) {
	assert.Equal(t, int64(1), zorderKey(0, 1, 0))
	assert.Equal(t, int64(2), zorderKey(0, 0, 1))
	assert.Equal(t, int64(3), zorderKey(0, 1, 1))

	g, err := newGrid(ZOrderIdentifier, zorderKey, 2, common.NewEnvelope(0, 0, 4, 4), index.Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), g.Encode(orb.Point{-3, -3}))
	assert.Equal(t, int64(15), g.Encode(orb.Point{4, 4}))
	assert.Equal(t, int64(15), g.Encode(orb.Point{100, 100}))
}

func TestNonFinitePointsAreRejected(t *testing.T) {
	for name, build := range curveIndexes {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, build, storage.BackendMemory)
			keep := f.addPoint(t, 5, 5)

			err := f.idx.Add(f.record(t, orb.Point{math.NaN(), 1}))
			assert.ErrorIs(t, err, index.ErrInvalidEnvelope)
			err = f.idx.AddAll([]*store.Record{f.record(t, orb.Point{1, math.Inf(-1)})})
			assert.ErrorIs(t, err, index.ErrInvalidEnvelope)

			assert.Equal(t, 1, f.idx.Count())
			assert.Equal(t, []int64{keep.ID}, f.search(t, filter.IntersectWindow(f.enc, common.NewEnvelope(4, 4, 6, 6))))
		})
	}
}
