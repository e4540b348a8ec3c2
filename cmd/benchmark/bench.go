package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"geoindex/pkg/common"
	"geoindex/pkg/config"
	"geoindex/pkg/layer"
	"geoindex/pkg/store"
)

type benchOptions struct {
	points  int
	queries int
	workers int
	span    float64
	seed    int64
	backend string
	path    string
	indexes []string
}

type benchResult struct {
	index     string
	load      time.Duration
	query     time.Duration
	matches   int
	hitRatio  float64
	candidate uint64
}

func (r benchResult) qps(queries int) float64 {
	if r.query <= 0 {
		return 0
	}
	return float64(queries) / r.query.Seconds()
}

type workload struct {
	points  []orb.Point
	windows []common.Envelope
	// expected holds the brute force match count of every window
	expected []int
}

func newWorkload(opts benchOptions) workload {
	rnd := rand.New(rand.NewSource(opts.seed))
	w := workload{
		points:   make([]orb.Point, opts.points),
		windows:  make([]common.Envelope, opts.queries),
		expected: make([]int, opts.queries),
	}
	for i := range w.points {
		w.points[i] = orb.Point{rnd.Float64()*360 - 180, rnd.Float64()*180 - 90}
	}
	for i := range w.windows {
		x, y := rnd.Float64()*360-180, rnd.Float64()*180-90
		w.windows[i] = common.NewEnvelope(x, y, x+rnd.Float64()*opts.span, y+rnd.Float64()*opts.span)
		w.expected[i] = lo.CountBy(w.points, w.windows[i].ContainsPoint)
	}
	return w
}

func runBenchmark(ctx context.Context, opts benchOptions, logger *zap.Logger) ([]benchResult, error) {
	w := newWorkload(opts)
	results := make([]benchResult, 0, len(opts.indexes))
	for _, id := range opts.indexes {
		r, err := benchIndex(ctx, id, opts, w, logger)
		if err != nil {
			return results, errors.Wrapf(err, "benchmark %s", id)
		}
		results = append(results, r)
	}
	return results, nil
}

func benchIndex(ctx context.Context, id string, opts benchOptions, w workload, logger *zap.Logger) (benchResult, error) {
	cfg := &config.Config{
		Storage: config.StorageConfig{Backend: opts.backend, Path: opts.path},
		Index:   config.IndexConfig{MaxNodeReferences: 100, SplitMode: "quadratic"},
		Layers:  []config.LayerConfig{{Name: "bench_" + id, Index: id}},
	}
	db, err := layer.Open(cfg, logger)
	if err != nil {
		return benchResult{}, err
	}
	defer func() { _ = db.Close() }()

	l, err := db.Layer("bench_" + id)
	if err != nil {
		return benchResult{}, err
	}

	recs := make([]*store.Record, len(w.points))
	for i, p := range w.points {
		recs[i] = db.Store().Create(nil)
		if err := l.Encoder().EncodeGeometry(p, recs[i]); err != nil {
			return benchResult{}, err
		}
	}
	start := time.Now()
	if err := l.AddAll(recs); err != nil {
		return benchResult{}, err
	}
	res := benchResult{index: id, load: time.Since(start)}

	l.Stats().Reset()
	matches := make([]int, len(w.windows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.workers, 1))
	start = time.Now()
	for i, window := range w.windows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			found, err := l.SearchWindow(window)
			if err != nil {
				return err
			}
			if len(found) != w.expected[i] {
				return errors.Newf("window %s: %d matches, brute force found %d", window, len(found), w.expected[i])
			}
			matches[i] = len(found)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	res.query = time.Since(start)
	res.matches = lo.Sum(matches)

	stats := l.Stats()
	res.candidate = stats.Hits() + stats.Misses()
	res.hitRatio = stats.HitRatio()
	return res, nil
}

func printResults(out io.Writer, points, queries int, results []benchResult) {
	fmt.Fprintf(out, "Spatial Index Benchmark (points=%d, queries=%d)\n", points, queries)
	fmt.Fprintln(out, "---------------------------------------------------------------------")
	fmt.Fprintf(out, "%-10s %12s %12s %10s %10s %10s\n", "index", "load", "query", "qps", "matches", "hit ratio")
	for _, r := range results {
		fmt.Fprintf(out, "%-10s %12v %12v %10.0f %10d %9.1f%%\n",
			r.index, r.load.Round(time.Millisecond), r.query.Round(time.Millisecond),
			r.qps(queries), r.matches, 100*r.hitRatio)
	}
	fmt.Fprintln(out, "---------------------------------------------------------------------")
	if len(results) < 2 {
		return
	}
	fastest := lo.MaxBy(results, func(a, b benchResult) bool { return a.qps(queries) > b.qps(queries) })
	fmt.Fprintf(out, "Fastest queries: %s (%d candidates loaded)\n", fastest.index, fastest.candidate)
}
