// Package layer ties a named set of records to a geometry encoder, a CRS and
// a spatial index built through the index registry.
package layer

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"geoindex/pkg/common"
	"geoindex/pkg/crs"
	"geoindex/pkg/filter"
	"geoindex/pkg/geometry"
	"geoindex/pkg/index"
	"geoindex/pkg/monitor"
	"geoindex/pkg/store"
)

// RecordStore is the host store a layer creates its records in.
type RecordStore interface {
	store.Store
	Create(props map[string]any) *store.Record
}

// Layer serialises writes. Queries run concurrently with each other.
type Layer struct {
	name    string
	indexID string
	store   RecordStore
	encoder geometry.Encoder
	crs     *crs.CRS
	index   index.Index
	monitor *monitor.RTreeMonitor
	logger  *zap.Logger

	mu sync.RWMutex
}

func (l *Layer) Name() string                 { return l.name }
func (l *Layer) IndexType() string            { return l.indexID }
func (l *Layer) Encoder() geometry.Encoder    { return l.encoder }
func (l *Layer) CRS() *crs.CRS                { return l.crs }
func (l *Layer) Index() index.Index           { return l.index }
func (l *Layer) Monitor() monitor.TreeMonitor { return l.monitor }

// AddGeometry creates a record holding g and props and indexes it.
func (l *Layer) AddGeometry(g orb.Geometry, props map[string]any) (*store.Record, error) {
	rec := l.store.Create(props)
	if err := l.encoder.EncodeGeometry(g, rec); err != nil {
		_ = l.store.Delete(rec.ID)
		return nil, errors.Wrapf(err, "layer %s", l.name)
	}
	if err := l.Add(rec); err != nil {
		_ = l.store.Delete(rec.ID)
		return nil, err
	}
	return rec, nil
}

// Add indexes an existing record. Adding an indexed record re-indexes it.
func (l *Layer) Add(rec *store.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.index.Add(rec)
}

func (l *Layer) AddAll(recs []*store.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.index.AddAll(recs)
}

func (l *Layer) Remove(id int64, deleteRecord bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.index.Remove(id, deleteRecord, true)
}

func (l *Layer) Clear(listener index.Listener) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.index.Clear(listener)
}

func (l *Layer) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.index.Count()
}

func (l *Layer) BoundingBox() (common.Envelope, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.index.BoundingBox()
}

// Query runs f and collects the matching records.
func (l *Layer) Query(f filter.SearchFilter) ([]*store.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	res, err := l.index.SearchIndex(f)
	if err != nil {
		return nil, errors.Wrapf(err, "search layer %s", l.name)
	}
	return res.Collect()
}

// SearchWindow returns the records whose envelope intersects window.
func (l *Layer) SearchWindow(window common.Envelope) ([]*store.Record, error) {
	return l.Query(filter.IntersectWindow(l.encoder, window))
}

// SearchIntersect returns the records whose geometry intersects window.
func (l *Layer) SearchIntersect(window common.Envelope) ([]*store.Record, error) {
	return l.Query(filter.Intersect(l.encoder, window))
}

func (l *Layer) SearchWithinDistance(p orb.Point, distance float64) ([]*store.Record, error) {
	return l.Query(filter.WithinDistance(l.encoder, p, distance))
}

func (l *Layer) Stats() *monitor.Stats {
	return l.index.Stats()
}
