package curve

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"

	"geoindex/pkg/common"
	"geoindex/pkg/index"
)

const (
	GeohashIdentifier = "geohash"

	MaxGeohashPrecision           = 12
	DefaultGeohashSearchPrecision = 6

	base32       = "0123456789bcdefghjkmnpqrstuvwxyz"
	bitsPerChar  = 5
	geohashFirst = '0'
	geohashLast  = 'z'
)

func init() {
	index.Register(GeohashIdentifier, func() index.Index { return NewGeohash() })
}

// NewGeohash indexes points by their geohash over the layer's CRS bounds.
func NewGeohash() *PointIndex[string] {
	return NewPointIndex[string](GeohashIdentifier, func(bounds common.Envelope, opts index.Options) (Curve[string], error) {
		g, err := newGeohash(bounds, opts)
		if err != nil {
			return nil, err
		}
		return g, nil
	})
}

// geohash bisects the domain alternately along x and y, x first, and spells
// every five bits as one base32 character.
type geohash struct {
	bounds          common.Envelope
	precision       int
	searchPrecision int
}

func newGeohash(bounds common.Envelope, opts index.Options) (*geohash, error) {
	if err := opts.CheckKnown("precision", "searchPrecision"); err != nil {
		return nil, err
	}
	precision, err := opts.Int("precision", MaxGeohashPrecision, 1, MaxGeohashPrecision)
	if err != nil {
		return nil, err
	}
	search, err := opts.Int("searchPrecision", min(DefaultGeohashSearchPrecision, precision), 1, precision)
	if err != nil {
		return nil, err
	}
	return &geohash{bounds: bounds, precision: precision, searchPrecision: search}, nil
}

func (g *geohash) Name() string {
	return GeohashIdentifier
}

func (g *geohash) Layout() string {
	return fmt.Sprintf("%s(precision=%d,%s)", GeohashIdentifier, g.precision, g.bounds)
}

func (g *geohash) Precision() int       { return g.precision }
func (g *geohash) SearchPrecision() int { return g.searchPrecision }

func (g *geohash) Encode(p orb.Point) string {
	var sb strings.Builder
	sb.Grow(g.precision)
	cell := g.bounds
	for i := 0; i < g.precision; i++ {
		var c int
		c, cell = descend(cell, i, p[0], p[1])
		sb.WriteByte(base32[c])
	}
	return sb.String()
}

// descend picks the child of cell containing (x, y), where cell is the
// cell of a prefix of length depth.
func descend(cell common.Envelope, depth int, x, y float64) (int, common.Envelope) {
	c := 0
	for b := 0; b < bitsPerChar; b++ {
		c <<= 1
		if (depth*bitsPerChar+b)%2 == 0 {
			mid := (cell.MinX + cell.MaxX) / 2
			if x >= mid {
				c |= 1
				cell.MinX = mid
			} else {
				cell.MaxX = mid
			}
		} else {
			mid := (cell.MinY + cell.MaxY) / 2
			if y >= mid {
				c |= 1
				cell.MinY = mid
			} else {
				cell.MaxY = mid
			}
		}
	}
	return c, cell
}

// child is the cell of character c below a cell at depth. It applies the
// same bisections as descend so cell edges agree exactly with encoding.
func child(cell common.Envelope, depth, c int) common.Envelope {
	for b := 0; b < bitsPerChar; b++ {
		high := c&(1<<(bitsPerChar-1-b)) != 0
		if (depth*bitsPerChar+b)%2 == 0 {
			mid := (cell.MinX + cell.MaxX) / 2
			if high {
				cell.MinX = mid
			} else {
				cell.MaxX = mid
			}
		} else {
			mid := (cell.MinY + cell.MaxY) / 2
			if high {
				cell.MinY = mid
			} else {
				cell.MaxY = mid
			}
		}
	}
	return cell
}

func (g *geohash) Decompose(env common.Envelope) []common.CurveRange[string] {
	if !env.IsValid() {
		return nil
	}
	var ranges []common.CurveRange[string]
	var walk func(prefix string, cell common.Envelope)
	walk = func(prefix string, cell common.Envelope) {
		if !env.Intersects(cell) {
			return
		}
		small := cell.Width()*stopRatio <= env.Width() && cell.Height()*stopRatio <= env.Height()
		if len(prefix) >= g.searchPrecision || small || env.Covers(cell) {
			ranges = append(ranges, g.prefixRange(prefix))
			return
		}
		for c := 0; c < len(base32); c++ {
			walk(prefix+string(base32[c]), child(cell, len(prefix), c))
		}
	}
	walk("", g.bounds)
	return common.MergeRanges(ranges, adjacentGeohash)
}

func (g *geohash) prefixRange(prefix string) common.CurveRange[string] {
	pad := g.precision - len(prefix)
	return common.CurveRange[string]{
		Min: prefix + strings.Repeat(string(geohashFirst), pad),
		Max: prefix + strings.Repeat(string(geohashLast), pad),
	}
}

// adjacentGeohash treats two equal length hashes as contiguous when min is
// the base32 successor of max.
func adjacentGeohash(max, min string) bool {
	next, ok := successor(max)
	return ok && next == min
}

func successor(hash string) (string, bool) {
	b := []byte(hash)
	for i := len(b) - 1; i >= 0; i-- {
		pos := strings.IndexByte(base32, b[i])
		if pos < 0 {
			return "", false
		}
		if pos < len(base32)-1 {
			b[i] = base32[pos+1]
			return string(b), true
		}
		b[i] = geohashFirst
	}
	return "", false
}
