package curve

import (
	"fmt"

	"github.com/paulmach/orb"

	"geoindex/pkg/common"
	"geoindex/pkg/index"
)

const (
	MaxGridLevel = common.MaxMortonLevel

	// A partially covered cell this many times smaller than the window on
	// both axes is emitted whole instead of being split further.
	stopRatio = 8
)

// tileKey orders the tiles of a 2^level grid. Every aligned block of w*w
// tiles must map onto w*w consecutive keys.
type tileKey func(level int, x, y uint32) int64

// grid is a curve over a 2^level x 2^level tiling of the domain.
type grid struct {
	name        string
	bounds      common.Envelope
	level       int
	searchDepth int
	key         tileKey
}

func newGrid(name string, key tileKey, defaultLevel int, bounds common.Envelope, opts index.Options) (*grid, error) {
	if err := opts.CheckKnown("maxLevel", "searchDepth"); err != nil {
		return nil, err
	}
	level, err := opts.Int("maxLevel", defaultLevel, 1, MaxGridLevel)
	if err != nil {
		return nil, err
	}
	depth, err := opts.Int("searchDepth", level, 1, level)
	if err != nil {
		return nil, err
	}
	return &grid{name: name, bounds: bounds, level: level, searchDepth: depth, key: key}, nil
}

func (g *grid) Name() string {
	return g.name
}

func (g *grid) Layout() string {
	return fmt.Sprintf("%s(level=%d,%s)", g.name, g.level, g.bounds)
}

func (g *grid) Level() int       { return g.level }
func (g *grid) SearchDepth() int { return g.searchDepth }

func (g *grid) Encode(p orb.Point) int64 {
	return g.key(g.level, g.tileX(p[0]), g.tileY(p[1]))
}

func (g *grid) tileX(x float64) uint32 {
	return tile(x, g.bounds.MinX, g.bounds.MaxX, g.level)
}

func (g *grid) tileY(y float64) uint32 {
	return tile(y, g.bounds.MinY, g.bounds.MaxY, g.level)
}

// tile maps v onto [0, 2^level). Values outside [low, high] land on the
// edge tiles.
func tile(v, low, high float64, level int) uint32 {
	n := uint64(1) << level
	f := (v - low) / (high - low) * float64(n)
	if !(f > 0) {
		return 0
	}
	if f >= float64(n) {
		return uint32(n - 1)
	}
	return uint32(f)
}

type tileWindow struct {
	x0, y0, x1, y1 uint32
}

func (w tileWindow) overlaps(x, y, size uint32) bool {
	return x <= w.x1 && x+size-1 >= w.x0 && y <= w.y1 && y+size-1 >= w.y0
}

func (w tileWindow) contains(x, y, size uint32) bool {
	return x >= w.x0 && x+size-1 <= w.x1 && y >= w.y0 && y+size-1 <= w.y1
}

// Decompose walks the quadtree of aligned blocks overlapping the window.
// A block is emitted as the key range it spans when it lies inside the
// window, when the search depth is reached, or when it is small enough
// relative to the window.
func (g *grid) Decompose(env common.Envelope) []common.CurveRange[int64] {
	if !env.IsValid() {
		return nil
	}
	w := tileWindow{
		x0: g.tileX(env.MinX), x1: g.tileX(env.MaxX),
		y0: g.tileY(env.MinY), y1: g.tileY(env.MaxY),
	}
	spanX, spanY := uint64(w.x1-w.x0)+1, uint64(w.y1-w.y0)+1

	var ranges []common.CurveRange[int64]
	var walk func(x, y uint32, depth int)
	walk = func(x, y uint32, depth int) {
		size := uint32(1) << (g.level - depth)
		if !w.overlaps(x, y, size) {
			return
		}
		small := uint64(size)*stopRatio <= spanX && uint64(size)*stopRatio <= spanY
		if depth >= g.searchDepth || small || w.contains(x, y, size) {
			block := int64(size) * int64(size)
			start := g.key(g.level, x, y) &^ (block - 1)
			ranges = append(ranges, common.CurveRange[int64]{Min: start, Max: start + block - 1})
			return
		}
		half := size / 2
		walk(x, y, depth+1)
		walk(x+half, y, depth+1)
		walk(x, y+half, depth+1)
		walk(x+half, y+half, depth+1)
	}
	walk(0, 0, 0)
	return common.MergeRanges(ranges, common.AdjacentInt64)
}
