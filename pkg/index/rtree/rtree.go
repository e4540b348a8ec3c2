// Package rtree is the bounding-box tree index: a Guttman R-tree with
// quadratic or Greene splits, condensing deletes and STR bulk loading.
package rtree

import (
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"geoindex/pkg/common"
	"geoindex/pkg/filter"
	"geoindex/pkg/geometry"
	"geoindex/pkg/index"
	"geoindex/pkg/monitor"
	"geoindex/pkg/store"
)

const (
	Identifier = "rtree"

	DefaultMaxNodeReferences = 100
	MinMaxNodeReferences     = 10
	MaxMaxNodeReferences     = 1000000
	DefaultMinFillPercent    = 40
)

func init() {
	index.Register(Identifier, func() index.Index { return New() })
}

type Option func(*Index)

// WithMaxNodeReferences sets the fanout. Out of range values are clamped.
func WithMaxNodeReferences(n int) Option {
	return func(t *Index) {
		t.maxNodeReferences = min(max(n, MinMaxNodeReferences), MaxMaxNodeReferences)
	}
}

func WithSplitMode(m SplitMode) Option {
	return func(t *Index) { t.splitMode = m }
}

func WithMonitor(m monitor.TreeMonitor) Option {
	return func(t *Index) { t.monitor = m }
}

// Index holds no lock of its own: writers must be serialised by the caller,
// searches may run concurrently with each other.
type Index struct {
	name    string
	store   store.Store
	decoder geometry.EnvelopeDecoder
	logger  *zap.Logger

	maxNodeReferences int
	minFillPercent    int
	splitMode         SplitMode

	root   *node
	leafOf map[int64]*node
	height int
	count  int

	initialized bool
	corrupted   error

	stats   *monitor.Stats
	monitor monitor.TreeMonitor
}

func New(opts ...Option) *Index {
	t := &Index{
		logger:            zap.NewNop(),
		maxNodeReferences: DefaultMaxNodeReferences,
		minFillPercent:    DefaultMinFillPercent,
		splitMode:         QuadraticSplit,
		root:              &node{leaf: true},
		leafOf:            make(map[int64]*node),
		height:            1,
		stats:             monitor.NewStats(),
		monitor:           monitor.EmptyMonitor{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Index) Init(ctx index.LayerContext) error {
	if t.initialized {
		return index.ErrAlreadyInitialized
	}
	if ctx.Store == nil || ctx.Decoder == nil {
		return errors.Wrap(index.ErrConfiguration, "rtree needs a store and an envelope decoder")
	}
	t.name = ctx.Name
	t.store = ctx.Store
	t.decoder = ctx.Decoder
	if ctx.Logger != nil {
		t.logger = ctx.Logger
	}
	t.initialized = true
	t.monitor.SetHeight(t.height)
	t.logger.Info("[RTree] initialized",
		zap.Int("maxNodeReferences", t.maxNodeReferences),
		zap.String("splitMode", string(t.splitMode)))
	return nil
}

// Configure accepts maxNodeReferences, splitMode and minFillPercent. The
// fanout can only change while the index is empty.
func (t *Index) Configure(config string) error {
	opts, err := index.ParseOptions(config)
	if err != nil {
		return err
	}
	if err := opts.CheckKnown("maxNodeReferences", "splitMode", "minFillPercent"); err != nil {
		return err
	}

	fanout, err := opts.Int("maxNodeReferences", t.maxNodeReferences, MinMaxNodeReferences, MaxMaxNodeReferences)
	if err != nil {
		return err
	}
	if fanout != t.maxNodeReferences && t.count > 0 {
		return errors.Wrapf(index.ErrConfiguration,
			"cannot change maxNodeReferences from %d to %d on a non-empty index", t.maxNodeReferences, fanout)
	}
	raw, err := opts.Choice("splitMode", string(t.splitMode))
	if err != nil {
		return err
	}
	mode, err := ParseSplitMode(raw)
	if err != nil {
		return err
	}
	fill, err := opts.Int("minFillPercent", t.minFillPercent, 10, 50)
	if err != nil {
		return err
	}

	t.maxNodeReferences = fanout
	t.splitMode = mode
	t.minFillPercent = fill
	return nil
}

func (t *Index) minNodeReferences() int {
	return max(1, t.maxNodeReferences*t.minFillPercent/100)
}

func (t *Index) checkWritable() error {
	if !t.initialized {
		return errors.New("rtree used before Init")
	}
	return t.corrupted
}

func (t *Index) Add(rec *store.Record) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	env, err := t.envelopeOf(rec)
	if err != nil {
		return err
	}
	if _, ok := t.leafOf[rec.ID]; ok {
		t.removeEntry(rec.ID)
	}
	leaf := t.insertEntry(entry{id: rec.ID, env: env})
	t.count++
	t.stats.RecordWrite()
	return t.verifyPath(leaf)
}

// envelopeOf rejects NaN and infinite bounds before they can reach a node.
func (t *Index) envelopeOf(rec *store.Record) (common.Envelope, error) {
	env, err := t.decoder.DecodeEnvelope(rec)
	if err != nil {
		return env, errors.Wrapf(err, "decode envelope of record %d", rec.ID)
	}
	if !env.IsFinite() {
		return env, errors.Wrapf(index.ErrInvalidEnvelope, "record %d has envelope %s", rec.ID, env)
	}
	return env, nil
}

// AddAll decodes every envelope before touching the tree. Batches larger
// than the current tree rebuild it with the bulk loader.
func (t *Index) AddAll(recs []*store.Record) error {
	if err := t.checkWritable(); err != nil {
		return err
	}

	positions := make(map[int64]int, len(recs))
	batch := make([]entry, 0, len(recs))
	for _, rec := range recs {
		env, err := t.envelopeOf(rec)
		if err != nil {
			return err
		}
		// a repeated id keeps its last envelope, as sequential adds would
		if p, ok := positions[rec.ID]; ok {
			batch[p].env = env
			continue
		}
		positions[rec.ID] = len(batch)
		batch = append(batch, entry{id: rec.ID, env: env})
	}
	if len(batch) == 0 {
		return nil
	}

	for _, e := range batch {
		if _, ok := t.leafOf[e.id]; ok {
			t.removeEntry(e.id)
		}
	}

	if len(batch) > t.count {
		all := t.root.collectEntries(make([]entry, 0, t.count+len(batch)))
		all = append(all, batch...)
		t.buildSTR(all)
		t.monitor.AddNbrRebuilt()
		t.monitor.SetHeight(t.height)
		t.logger.Info("[RTree] bulk loaded", zap.Int("entries", t.count), zap.Int("height", t.height))
		for range batch {
			t.stats.RecordWrite()
		}
		return t.CheckInvariants()
	}

	for _, e := range batch {
		leaf := t.insertEntry(e)
		t.count++
		t.stats.RecordWrite()
		if err := t.verifyPath(leaf); err != nil {
			return err
		}
	}
	return nil
}

func (t *Index) insertEntry(e entry) *node {
	leaf := t.root
	for !leaf.leaf {
		leaf = leaf.chooseSubtree(e.env)
	}
	leaf.entries = append(leaf.entries, e)
	if len(leaf.entries) == 1 {
		leaf.env = e.env
	} else {
		leaf.env.ExpandToInclude(e.env)
	}
	t.leafOf[e.id] = leaf
	t.adjustTree(leaf)
	return t.leafOf[e.id]
}

// adjustTree walks from n to the root, splitting overflowing nodes and
// refreshing envelopes. A root split grows the tree by one level.
func (t *Index) adjustTree(n *node) {
	for n != nil {
		if n.size() > t.maxNodeReferences {
			sibling := t.split(n)
			t.logger.Debug("[RTree] split node", zap.Bool("leaf", n.leaf), zap.Int("sizes", n.size()+sibling.size()))
			if n.parent == nil {
				root := &node{children: []*node{n, sibling}}
				n.parent, sibling.parent = root, root
				root.recomputeEnvelope()
				t.root = root
				t.height++
				t.monitor.SetHeight(t.height)
				return
			}
			sibling.parent = n.parent
			n.parent.children = append(n.parent.children, sibling)
		}
		if n.parent != nil {
			n.parent.recomputeEnvelope()
		}
		n = n.parent
	}
}

func (t *Index) removeEntry(id int64) bool {
	leaf, ok := t.leafOf[id]
	if !ok {
		return false
	}
	delete(t.leafOf, id)
	leaf.removeEntry(id)
	t.count--
	t.condenseTree(leaf)
	return true
}

// condenseTree removes underfull nodes on the path from n to the root,
// reinserts their entries and collapses a root left with a single child.
func (t *Index) condenseTree(n *node) {
	var orphans []*node
	minFill := t.minNodeReferences()
	for n != t.root {
		parent := n.parent
		if n.size() < minFill {
			parent.removeChild(n)
			n.parent = nil
			orphans = append(orphans, n)
		} else {
			n.recomputeEnvelope()
		}
		n = parent
	}
	t.root.recomputeEnvelope()

	for !t.root.leaf && len(t.root.children) == 1 {
		t.root = t.root.children[0]
		t.root.parent = nil
		t.height--
	}
	if !t.root.leaf && len(t.root.children) == 0 {
		t.root = &node{leaf: true}
		t.height = 1
	}

	if len(orphans) > 0 {
		t.monitor.AddCase("Condense")
		reinserted := 0
		for _, o := range orphans {
			for _, e := range o.collectEntries(nil) {
				t.insertEntry(e)
				reinserted++
			}
		}
		t.logger.Debug("[RTree] condensed", zap.Int("orphans", len(orphans)), zap.Int("reinserted", reinserted))
	}
	t.monitor.SetHeight(t.height)
}

func (t *Index) Remove(id int64, deleteRecord, throwIfNotFound bool) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	leaf, ok := t.leafOf[id]
	if !ok {
		if throwIfNotFound {
			return errors.Wrapf(index.ErrNotFound, "id %d in layer %s", id, t.name)
		}
		return nil
	}
	t.removeEntry(id)
	t.stats.RecordWrite()

	if deleteRecord {
		if err := t.store.Delete(id); err != nil && !errors.Is(err, store.ErrRecordNotFound) {
			return errors.Wrapf(err, "delete record %d", id)
		}
	}
	// a condensed leaf is detached and has nothing left to verify
	if leaf.parent == nil && leaf != t.root {
		return nil
	}
	return t.verifyPath(leaf)
}

// RemoveAll empties the tree in one pass. With deleteRecords the host
// records are deleted first, one progress unit each.
func (t *Index) RemoveAll(deleteRecords bool, l index.Listener) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	if l == nil {
		l = index.NullListener{}
	}

	ids := lo.Keys(t.leafOf)
	slices.Sort(ids)
	l.Begin(len(ids))
	defer l.Done()

	if deleteRecords {
		for i, id := range ids {
			if err := t.store.Delete(id); err != nil && !errors.Is(err, store.ErrRecordNotFound) {
				for _, done := range ids[:i] {
					t.removeEntry(done)
				}
				return errors.Wrapf(err, "delete record %d", id)
			}
			l.Worked(1)
		}
	}

	t.buildSTR(nil)
	t.monitor.SetHeight(t.height)
	for range ids {
		t.stats.RecordWrite()
	}
	if !deleteRecords {
		l.Worked(len(ids))
	}
	return nil
}

func (t *Index) Clear(l index.Listener) error {
	return t.RemoveAll(false, l)
}

func (t *Index) Count() int {
	return t.count
}

func (t *Index) IsEmpty() bool {
	return t.count == 0
}

func (t *Index) BoundingBox() (common.Envelope, bool) {
	if t.count == 0 {
		return common.Envelope{}, false
	}
	return t.root.env, true
}

func (t *Index) IsIndexed(id int64) bool {
	_, ok := t.leafOf[id]
	return ok
}

func (t *Index) AllIndexed() index.Candidates {
	return t.newCursor(filter.All(), monitor.EmptyMonitor{})
}

func (t *Index) SearchIndex(f filter.SearchFilter) (*index.SearchResults, error) {
	if !t.initialized {
		return nil, errors.New("rtree used before Init")
	}
	t.stats.RecordRead()
	return index.NewSearchResults(t.newCursor(f, t.monitor), t.store, f, t.stats, t.logger), nil
}

func (t *Index) AddMonitor(m monitor.TreeMonitor) {
	if m == nil {
		m = monitor.EmptyMonitor{}
	}
	t.monitor = m
	t.monitor.SetHeight(t.height)
}

func (t *Index) Monitor() monitor.TreeMonitor {
	return t.monitor
}

func (t *Index) Stats() *monitor.Stats {
	return t.stats
}

func (t *Index) Height() int {
	return t.height
}

func (t *Index) MaxNodeReferences() int {
	return t.maxNodeReferences
}

func (t *Index) SplitMode() SplitMode {
	return t.splitMode
}
