// Package curve holds the point indexes backed by a space-filling curve:
// each point is reduced to a scalar key kept in a storage.PropertyIndex and
// a query window is decomposed into key ranges over that index.
package curve

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"geoindex/pkg/common"
	"geoindex/pkg/filter"
	"geoindex/pkg/geometry"
	"geoindex/pkg/index"
	"geoindex/pkg/monitor"
	"geoindex/pkg/storage"
	"geoindex/pkg/store"
)

// Curve maps points of a bounded 2D domain onto ordered keys.
type Curve[K storage.Key] interface {
	Name() string
	// Layout identifies everything keys depend on. Stored keys stay valid
	// as long as it does not change.
	Layout() string
	Encode(p orb.Point) K
	// Decompose returns sorted, disjoint key ranges covering every point of
	// env. They may cover more.
	Decompose(env common.Envelope) []common.CurveRange[K]
}

// CurveFactory builds a curve over bounds from configuration options.
type CurveFactory[K storage.Key] func(bounds common.Envelope, opts index.Options) (Curve[K], error)

// PointIndex is the lifecycle shared by all curve indexes. Non-point
// geometries are indexed by their centroid, and only envelope filters can be
// searched.
type PointIndex[K storage.Key] struct {
	identifier string
	factory    CurveFactory[K]

	name    string
	store   store.Store
	decoder geometry.EnvelopeDecoder
	logger  *zap.Logger
	bounds  common.Envelope

	curve   Curve[K]
	backing storage.PropertyIndex[K]

	initialized bool
	stats       *monitor.Stats
	monitor     monitor.TreeMonitor
}

func NewPointIndex[K storage.Key](identifier string, factory CurveFactory[K]) *PointIndex[K] {
	return &PointIndex[K]{
		identifier: identifier,
		factory:    factory,
		logger:     zap.NewNop(),
		stats:      monitor.NewStats(),
		monitor:    monitor.EmptyMonitor{},
	}
}

func (p *PointIndex[K]) Init(ctx index.LayerContext) error {
	if p.initialized {
		return index.ErrAlreadyInitialized
	}
	if ctx.CRS == nil {
		return errors.Wrapf(index.ErrConfiguration, "%s index on layer %s needs a CRS", p.identifier, ctx.Name)
	}
	if ctx.CRS.Dimension() != 2 {
		return errors.Wrapf(index.ErrConfiguration, "%s index on layer %s needs a 2D CRS, %s has %d dimensions",
			p.identifier, ctx.Name, ctx.CRS.Name, ctx.CRS.Dimension())
	}
	if ctx.Store == nil || ctx.Decoder == nil {
		return errors.Wrapf(index.ErrConfiguration, "%s index needs a store and an envelope decoder", p.identifier)
	}

	bounds := ctx.CRS.Bounds()
	if !(bounds.Width() > 0 && bounds.Height() > 0) {
		return errors.Wrapf(index.ErrConfiguration, "%s index needs a non-degenerate domain, got %s", p.identifier, bounds)
	}
	curve, err := p.factory(bounds, index.Options{})
	if err != nil {
		return err
	}

	manager := ctx.Storage
	if manager == nil {
		manager = storage.NewManager(storage.BackendMemory, "", ctx.Logger)
	}
	backing, err := storage.Open[K](manager, ctx.Name+"."+p.identifier)
	if err != nil {
		return errors.Wrapf(err, "open backing index for layer %s", ctx.Name)
	}

	p.name = ctx.Name
	p.store = ctx.Store
	p.decoder = ctx.Decoder
	p.bounds = bounds
	p.curve = curve
	p.backing = backing
	if ctx.Logger != nil {
		p.logger = ctx.Logger
	}
	p.initialized = true
	p.logger.Info("[Curve] initialized",
		zap.String("curve", p.identifier),
		zap.String("layout", curve.Layout()),
		zap.String("storage", string(manager.Backend())))
	return nil
}

// Configure rebuilds the curve from options. Options changing the key
// layout are rejected once entries exist.
func (p *PointIndex[K]) Configure(config string) error {
	if !p.initialized {
		return errors.Wrap(index.ErrConfiguration, "configure before init")
	}
	opts, err := index.ParseOptions(config)
	if err != nil {
		return err
	}
	curve, err := p.factory(p.bounds, opts)
	if err != nil {
		return err
	}
	if curve.Layout() != p.curve.Layout() && !p.IsEmpty() {
		return errors.Wrapf(index.ErrConfiguration,
			"cannot change %s layout from %s to %s on a non-empty index", p.identifier, p.curve.Layout(), curve.Layout())
	}
	p.curve = curve
	return nil
}

func (p *PointIndex[K]) Curve() Curve[K] {
	return p.curve
}

func (p *PointIndex[K]) checkInit() error {
	if !p.initialized {
		return errors.Newf("%s index used before Init", p.identifier)
	}
	return nil
}

// point reduces a record to the point that gets encoded.
func (p *PointIndex[K]) point(rec *store.Record) (orb.Point, error) {
	if enc, ok := p.decoder.(geometry.Encoder); ok {
		g, err := enc.DecodeGeometry(rec)
		if err != nil {
			return orb.Point{}, errors.Wrapf(err, "decode geometry of record %d", rec.ID)
		}
		return finitePoint(rec.ID, geometry.Centroid(g))
	}
	env, err := p.decoder.DecodeEnvelope(rec)
	if err != nil {
		return orb.Point{}, errors.Wrapf(err, "decode envelope of record %d", rec.ID)
	}
	return finitePoint(rec.ID, env.Centre())
}

func finitePoint(id int64, pt orb.Point) (orb.Point, error) {
	if !common.FromPoint(pt).IsFinite() {
		return pt, errors.Wrapf(index.ErrInvalidEnvelope, "record %d reduces to %v", id, pt)
	}
	return pt, nil
}

func (p *PointIndex[K]) Add(rec *store.Record) error {
	if err := p.checkInit(); err != nil {
		return err
	}
	pt, err := p.point(rec)
	if err != nil {
		return err
	}
	if err := p.backing.Add(rec.ID, p.curve.Encode(pt)); err != nil {
		return err
	}
	p.stats.RecordWrite()
	return nil
}

func (p *PointIndex[K]) AddAll(recs []*store.Record) error {
	if err := p.checkInit(); err != nil {
		return err
	}
	entries := make([]storage.Entry[K], 0, len(recs))
	for _, rec := range recs {
		pt, err := p.point(rec)
		if err != nil {
			return err
		}
		entries = append(entries, storage.Entry[K]{ID: rec.ID, Key: p.curve.Encode(pt)})
	}
	if err := p.backing.AddBatch(entries); err != nil {
		return err
	}
	for range entries {
		p.stats.RecordWrite()
	}
	return nil
}

func (p *PointIndex[K]) Remove(id int64, deleteRecord, throwIfNotFound bool) error {
	if err := p.checkInit(); err != nil {
		return err
	}
	removed, err := p.backing.Remove(id)
	if err != nil {
		return err
	}
	if !removed {
		if throwIfNotFound {
			return errors.Wrapf(index.ErrNotFound, "id %d in layer %s", id, p.name)
		}
		return nil
	}
	p.stats.RecordWrite()
	if deleteRecord {
		if err := p.store.Delete(id); err != nil && !errors.Is(err, store.ErrRecordNotFound) {
			return errors.Wrapf(err, "delete record %d", id)
		}
	}
	return nil
}

func (p *PointIndex[K]) RemoveAll(deleteRecords bool, l index.Listener) error {
	if err := p.checkInit(); err != nil {
		return err
	}
	if l == nil {
		l = index.NullListener{}
	}
	ids, err := p.backing.QueryAll()
	if err != nil {
		return err
	}
	l.Begin(len(ids))
	defer l.Done()

	if deleteRecords {
		for _, id := range ids {
			if err := p.store.Delete(id); err != nil && !errors.Is(err, store.ErrRecordNotFound) {
				return errors.Wrapf(err, "delete record %d", id)
			}
			if _, err := p.backing.Remove(id); err != nil {
				return err
			}
			l.Worked(1)
		}
	}
	if err := p.backing.Drop(); err != nil {
		return err
	}
	for range ids {
		p.stats.RecordWrite()
	}
	if !deleteRecords {
		l.Worked(len(ids))
	}
	return nil
}

func (p *PointIndex[K]) Clear(l index.Listener) error {
	return p.RemoveAll(false, l)
}

func (p *PointIndex[K]) Count() int {
	if p.backing == nil {
		return 0
	}
	n, err := p.backing.Count()
	if err != nil {
		p.logger.Warn("[Curve] count failed", zap.Error(err))
		return 0
	}
	return n
}

func (p *PointIndex[K]) IsEmpty() bool {
	return p.Count() == 0
}

// BoundingBox decodes every indexed record, so it costs a full scan.
func (p *PointIndex[K]) BoundingBox() (common.Envelope, bool) {
	if p.backing == nil {
		return common.Envelope{}, false
	}
	ids, err := p.backing.QueryAll()
	if err != nil {
		p.logger.Warn("[Curve] bounding box scan failed", zap.Error(err))
		return common.Envelope{}, false
	}
	var bbox common.Envelope
	found := false
	for _, id := range ids {
		rec, err := p.store.Get(id)
		if err != nil {
			continue
		}
		env, err := p.decoder.DecodeEnvelope(rec)
		if err != nil {
			continue
		}
		if !found {
			bbox, found = env, true
		} else {
			bbox.ExpandToInclude(env)
		}
	}
	return bbox, found
}

func (p *PointIndex[K]) IsIndexed(id int64) bool {
	if p.backing == nil {
		return false
	}
	_, ok, err := p.backing.Lookup(id)
	if err != nil {
		p.logger.Warn("[Curve] lookup failed", zap.Int64("id", id), zap.Error(err))
	}
	return ok
}

func (p *PointIndex[K]) AllIndexed() index.Candidates {
	var ids []int64
	loaded := false
	return index.CandidatesFunc(func() (int64, bool, error) {
		if !loaded {
			loaded = true
			if p.backing != nil {
				var err error
				if ids, err = p.backing.QueryAll(); err != nil {
					return 0, false, err
				}
			}
		}
		if len(ids) == 0 {
			return 0, false, nil
		}
		id := ids[0]
		ids = ids[1:]
		return id, true, nil
	})
}

// SearchIndex decomposes the filter's reference envelope, clamped to the
// domain like the indexed points are, and streams the ids of each range.
func (p *PointIndex[K]) SearchIndex(f filter.SearchFilter) (*index.SearchResults, error) {
	if err := p.checkInit(); err != nil {
		return nil, err
	}
	ef, ok := f.(filter.EnvelopeFilter)
	if !ok {
		p.logger.Warn("[Curve] rejected filter", zap.String("filter", fmt.Sprintf("%T", f)))
		return nil, errors.Wrapf(index.ErrUnsupportedFilter, "%s index only serves envelope filters, got %T", p.identifier, f)
	}
	p.stats.RecordRead()

	ranges := p.curve.Decompose(ef.ReferenceEnvelope().Clamp(p.bounds))
	return index.NewSearchResults(p.rangeCandidates(ranges), p.store, f, p.stats, p.logger), nil
}

func (p *PointIndex[K]) rangeCandidates(ranges []common.CurveRange[K]) index.Candidates {
	var pending []int64
	return index.CandidatesFunc(func() (int64, bool, error) {
		for len(pending) == 0 {
			if len(ranges) == 0 {
				return 0, false, nil
			}
			r := ranges[0]
			ranges = ranges[1:]
			p.monitor.AddCase("Curve Ranges")
			ids, err := p.backing.QueryRange(r)
			if err != nil {
				return 0, false, err
			}
			pending = ids
		}
		id := pending[0]
		pending = pending[1:]
		return id, true, nil
	})
}

func (p *PointIndex[K]) AddMonitor(m monitor.TreeMonitor) {
	if m == nil {
		m = monitor.EmptyMonitor{}
	}
	p.monitor = m
}

func (p *PointIndex[K]) Stats() *monitor.Stats {
	return p.stats
}
