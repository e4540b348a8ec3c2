package layer

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"geoindex/pkg/common"
	"geoindex/pkg/config"
	"geoindex/pkg/crs"
	"geoindex/pkg/geometry"
	"geoindex/pkg/index"
	_ "geoindex/pkg/index/curve" // geohash, zorder and hilbert
	"geoindex/pkg/index/rtree"
	"geoindex/pkg/monitor"
	"geoindex/pkg/storage"
	"geoindex/pkg/store"
)

var (
	ErrLayerExists   = errors.New("layer already exists")
	ErrLayerNotFound = errors.New("layer not found")
)

// Database owns the record store, the backing storage and every layer
// declared in a configuration.
type Database struct {
	cfg     *config.Config
	store   *store.MemoryStore
	storage *storage.Manager
	logger  *zap.Logger

	mu     sync.RWMutex
	layers map[string]*Layer
}

// Open builds the storage manager and every configured layer.
func Open(cfg *config.Config, logger *zap.Logger) (*Database, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	backend, err := storage.ParseBackend(cfg.Storage.Backend)
	if err != nil {
		return nil, err
	}
	db := &Database{
		cfg:     cfg,
		store:   store.NewMemoryStore(),
		storage: storage.NewManager(backend, cfg.Storage.Path, logger),
		logger:  logger,
		layers:  make(map[string]*Layer),
	}
	for _, lc := range cfg.Layers {
		if _, err := db.CreateLayer(lc); err != nil {
			return nil, errors.CombineErrors(err, db.Close())
		}
	}
	logger.Info("[Database] opened",
		zap.String("backend", string(backend)),
		zap.Strings("layers", db.LayerNames()))
	return db, nil
}

func (d *Database) Store() *store.MemoryStore {
	return d.store
}

// CreateLayer resolves the encoder, CRS and index of lc and registers the
// layer under its name.
func (d *Database) CreateLayer(lc config.LayerConfig) (*Layer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.layers[lc.Name]; ok {
		return nil, errors.Wrapf(ErrLayerExists, "%s", lc.Name)
	}
	encoderName := lo.Ternary(lc.Encoder == "", "simplepoint", lc.Encoder)
	enc, err := geometry.NewEncoder(encoderName, lc.EncoderConfig)
	if err != nil {
		return nil, errors.Wrapf(err, "layer %s", lc.Name)
	}
	ref, err := resolveCRS(lc.CRS)
	if err != nil {
		return nil, errors.Wrapf(err, "layer %s", lc.Name)
	}

	indexID := lo.Ternary(lc.Index == "", rtree.Identifier, strings.ToLower(lc.Index))
	indexConfig := lc.IndexConfig
	if indexConfig == "" && indexID == rtree.Identifier {
		indexConfig = fmt.Sprintf("maxNodeReferences: %d\nsplitMode: %s",
			d.cfg.Index.MaxNodeReferences, d.cfg.Index.SplitMode)
	}

	logger := d.logger.With(zap.String("layer", lc.Name))
	idx, err := index.New(indexID, index.LayerContext{
		Name:    lc.Name,
		Store:   d.store,
		Decoder: enc,
		CRS:     ref,
		Storage: d.storage,
		Logger:  logger,
	}, indexConfig)
	if err != nil {
		return nil, err
	}

	// records live in memory, so entries persisted by an earlier process
	// would all dangle
	if !idx.IsEmpty() {
		logger.Info("[Layer] discarding stale index entries", zap.Int("count", idx.Count()))
		if err := idx.Clear(index.NewProgressLoggingListener(logger, "clear "+lc.Name, 5*time.Second)); err != nil {
			return nil, err
		}
	}

	m := monitor.NewRTreeMonitor()
	idx.AddMonitor(m)

	l := &Layer{
		name:    lc.Name,
		indexID: indexID,
		store:   d.store,
		encoder: enc,
		crs:     ref,
		index:   idx,
		monitor: m,
		logger:  logger,
	}
	d.layers[lc.Name] = l
	logger.Info("[Layer] created",
		zap.String("index", indexID),
		zap.String("encoder", encoderName),
		zap.String("crs", ref.Name))
	return l, nil
}

func resolveCRS(c config.CRSConfig) (*crs.CRS, error) {
	if len(c.Bounds) == 4 {
		name := lo.Ternary(c.Name == "", "custom", c.Name)
		return crs.New2D(name, common.NewEnvelope(c.Bounds[0], c.Bounds[1], c.Bounds[2], c.Bounds[3])), nil
	}
	if len(c.Bounds) != 0 {
		return nil, errors.Wrapf(index.ErrConfiguration, "crs bounds need 4 values, got %d", len(c.Bounds))
	}
	name := lo.Ternary(c.Name == "", "WGS84", c.Name)
	ref, ok := crs.Lookup(name)
	if !ok {
		return nil, errors.Wrapf(index.ErrConfiguration, "unknown crs %q", name)
	}
	return ref, nil
}

func (d *Database) Layer(name string) (*Layer, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	l, ok := d.layers[name]
	if !ok {
		return nil, errors.Wrapf(ErrLayerNotFound, "%s", name)
	}
	return l, nil
}

func (d *Database) LayerNames() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := lo.Keys(d.layers)
	slices.Sort(names)
	return names
}

// DropLayer removes the layer, deleting its records from the store.
func (d *Database) DropLayer(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.layers[name]
	if !ok {
		return errors.Wrapf(ErrLayerNotFound, "%s", name)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	listener := index.NewProgressLoggingListener(l.logger, "drop "+name, 5*time.Second)
	if err := l.index.RemoveAll(true, listener); err != nil {
		return errors.Wrapf(err, "drop layer %s", name)
	}
	delete(d.layers, name)
	return nil
}

// RegisterMetrics exports the stats of every layer. Tree metrics are only
// exported for rtree layers.
func (d *Database) RegisterMetrics(reg prometheus.Registerer) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, name := range lo.Keys(d.layers) {
		l := d.layers[name]
		var tree monitor.TreeMonitor
		if l.indexID == rtree.Identifier {
			tree = l.monitor
		}
		if err := reg.Register(monitor.NewCollector(name, l.index.Stats(), tree)); err != nil {
			return errors.Wrapf(err, "register metrics of layer %s", name)
		}
	}
	return nil
}

func (d *Database) Close() error {
	d.logger.Info("[Database] closing")
	return d.storage.Close()
}
