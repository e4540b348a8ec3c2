// Package index defines the spatial index contract shared by the bounding-box
// tree and the space-filling curve indexes, the lazy filtered result set they
// both return, and the registry that builds them by name.
package index

import (
	"go.uber.org/zap"

	"geoindex/pkg/common"
	"geoindex/pkg/crs"
	"geoindex/pkg/filter"
	"geoindex/pkg/geometry"
	"geoindex/pkg/monitor"
	"geoindex/pkg/storage"
	"geoindex/pkg/store"
)

// LayerContext is everything an index needs from the layer that owns it.
type LayerContext struct {
	Name    string
	Store   store.Store
	Decoder geometry.EnvelopeDecoder
	CRS     *crs.CRS
	// Storage backs indexes that keep their keys in a property index.
	Storage *storage.Manager
	// Logger already carries the layer name.
	Logger *zap.Logger
}

type Reader interface {
	Count() int
	IsEmpty() bool
	// BoundingBox is the union of every indexed envelope; false when empty.
	BoundingBox() (common.Envelope, bool)
	IsIndexed(id int64) bool
	// AllIndexed enumerates every indexed id. Each call starts a new pass.
	AllIndexed() Candidates
	// SearchIndex returns the records matching f. The result is consumed once.
	SearchIndex(f filter.SearchFilter) (*SearchResults, error)
	AddMonitor(m monitor.TreeMonitor)
	Stats() *monitor.Stats
}

type Writer interface {
	Add(rec *store.Record) error
	// AddAll must end in the same state as calling Add for each record.
	AddAll(recs []*store.Record) error
	// Remove de-indexes id. deleteRecord also deletes the host record.
	// A missing id fails with ErrNotFound only when throwIfNotFound is set.
	Remove(id int64, deleteRecord, throwIfNotFound bool) error
	RemoveAll(deleteRecords bool, l Listener) error
	// Clear is RemoveAll(false, l).
	Clear(l Listener) error
}

type Index interface {
	Reader
	Writer
	Init(ctx LayerContext) error
}

// Configurable indexes accept a configuration string after Init.
type Configurable interface {
	Configure(config string) error
}
