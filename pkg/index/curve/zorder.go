package curve

import (
	"geoindex/pkg/common"
	"geoindex/pkg/index"
)

const (
	ZOrderIdentifier   = "zorder"
	DefaultZOrderLevel = 16
)

func init() {
	index.Register(ZOrderIdentifier, func() index.Index { return NewZOrder() })
}

// NewZOrder indexes points by the Morton code of their grid tile.
func NewZOrder() *PointIndex[int64] {
	return NewPointIndex[int64](ZOrderIdentifier, func(bounds common.Envelope, opts index.Options) (Curve[int64], error) {
		g, err := newGrid(ZOrderIdentifier, zorderKey, DefaultZOrderLevel, bounds, opts)
		if err != nil {
			return nil, err
		}
		return g, nil
	})
}

func zorderKey(_ int, x, y uint32) int64 {
	return common.Encode2D(x, y)
}
