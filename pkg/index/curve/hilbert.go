package curve

import (
	"geoindex/pkg/common"
	"geoindex/pkg/index"
)

const (
	HilbertIdentifier   = "hilbert"
	DefaultHilbertLevel = 12
)

func init() {
	index.Register(HilbertIdentifier, func() index.Index { return NewHilbert() })
}

// NewHilbert indexes points by the distance of their grid tile along a
// Hilbert curve.
func NewHilbert() *PointIndex[int64] {
	return NewPointIndex[int64](HilbertIdentifier, func(bounds common.Envelope, opts index.Options) (Curve[int64], error) {
		g, err := newGrid(HilbertIdentifier, hilbertKey, DefaultHilbertLevel, bounds, opts)
		if err != nil {
			return nil, err
		}
		return g, nil
	})
}

func hilbertKey(level int, x, y uint32) int64 {
	n := uint32(1) << level
	var d int64
	for s := n / 2; s > 0; s /= 2 {
		var rx, ry uint32
		if x&s != 0 {
			rx = 1
		}
		if y&s != 0 {
			ry = 1
		}
		d += int64(s) * int64(s) * int64((3*rx)^ry)
		x, y = rotate(n, x, y, rx, ry)
	}
	return d
}

// rotate turns the quadrant so the sub-curve starts where the parent enters.
func rotate(n, x, y, rx, ry uint32) (uint32, uint32) {
	if ry == 0 {
		if rx == 1 {
			x = n - 1 - x
			y = n - 1 - y
		}
		return y, x
	}
	return x, y
}
