package index

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"geoindex/pkg/filter"
	"geoindex/pkg/monitor"
	"geoindex/pkg/store"
)

// Candidates is a pull-based stream of raw record ids: tree leaf entries or
// curve range matches. ok is false once the stream is exhausted.
type Candidates interface {
	Next() (id int64, ok bool, err error)
}

// CandidatesFunc adapts a function to Candidates.
type CandidatesFunc func() (int64, bool, error)

func (f CandidatesFunc) Next() (int64, bool, error) { return f() }

// SliceCandidates streams a fixed list of ids.
func SliceCandidates(ids []int64) Candidates {
	i := 0
	return CandidatesFunc(func() (int64, bool, error) {
		if i >= len(ids) {
			return 0, false, nil
		}
		i++
		return ids[i-1], true, nil
	})
}

// Drain reads the remaining ids of c.
func Drain(c Candidates) ([]int64, error) {
	var ids []int64
	for {
		id, ok, err := c.Next()
		if err != nil {
			return ids, err
		}
		if !ok {
			return ids, nil
		}
		ids = append(ids, id)
	}
}

// SearchResults loads each candidate from the store, keeps the ones the
// filter's geometry test accepts and counts every loaded candidate as a hit
// or a miss. Next returns ErrNoSuchElement once exhausted, so callers may
// either check HasNext or loop until that error.
type SearchResults struct {
	source Candidates
	store  store.Store
	filter filter.SearchFilter
	stats  *monitor.Stats
	logger *zap.Logger

	next *store.Record
	err  error
	done bool
}

func NewSearchResults(source Candidates, st store.Store, f filter.SearchFilter, stats *monitor.Stats, logger *zap.Logger) *SearchResults {
	if stats == nil {
		stats = monitor.NewStats()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearchResults{source: source, store: st, filter: f, stats: stats, logger: logger}
}

func (r *SearchResults) HasNext() bool {
	if r.next != nil {
		return true
	}
	if r.done {
		return false
	}
	r.prefetch()
	return r.next != nil
}

func (r *SearchResults) prefetch() {
	for {
		id, ok, err := r.source.Next()
		if err != nil {
			r.fail(err)
			return
		}
		if !ok {
			r.done = true
			return
		}

		rec, err := r.store.Get(id)
		if errors.Is(err, store.ErrRecordNotFound) {
			r.logger.Warn("[Search] skipping dangling index entry", zap.Int64("id", id))
			r.stats.RecordMiss()
			continue
		}
		if err != nil {
			r.fail(err)
			return
		}

		match, err := r.filter.GeometryMatches(rec)
		if err != nil {
			r.fail(errors.Wrapf(err, "match record %d", id))
			return
		}
		if match {
			r.stats.RecordHit()
			r.next = rec
			return
		}
		r.stats.RecordMiss()
	}
}

func (r *SearchResults) fail(err error) {
	r.err = err
	r.done = true
}

// Next returns the next match, ErrNoSuchElement when there is none, or the
// error that ended the search.
func (r *SearchResults) Next() (*store.Record, error) {
	if !r.HasNext() {
		if r.err != nil {
			return nil, r.err
		}
		return nil, ErrNoSuchElement
	}
	rec := r.next
	r.next = nil
	return rec, nil
}

func (r *SearchResults) Err() error {
	return r.err
}

func (r *SearchResults) Collect() ([]*store.Record, error) {
	var recs []*store.Record
	for r.HasNext() {
		rec, _ := r.Next()
		recs = append(recs, rec)
	}
	return recs, r.err
}

func (r *SearchResults) IDs() ([]int64, error) {
	recs, err := r.Collect()
	ids := make([]int64, len(recs))
	for i, rec := range recs {
		ids[i] = rec.ID
	}
	return ids, err
}
