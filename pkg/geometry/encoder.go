// Package geometry is the boundary to the geometry model. Records carry their
// geometry in native properties; an Encoder turns them into orb geometries and
// back. Indexes depend only on EnvelopeDecoder.
package geometry

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/planar"
	"github.com/spf13/cast"

	"geoindex/pkg/common"
	"geoindex/pkg/store"
)

var (
	ErrNoGeometry          = errors.New("record has no geometry")
	ErrInvalidConfig       = errors.New("invalid encoder configuration")
	ErrUnsupportedGeometry = errors.New("unsupported geometry type")
)

// EnvelopeDecoder derives the bounding box of a record's geometry.
type EnvelopeDecoder interface {
	DecodeEnvelope(rec *store.Record) (common.Envelope, error)
}

type Encoder interface {
	EnvelopeDecoder
	DecodeGeometry(rec *store.Record) (orb.Geometry, error)
	EncodeGeometry(geom orb.Geometry, rec *store.Record) error
	// Config returns the configuration string the encoder was built from.
	Config() string
}

// Centroid reduces any geometry to a single point. Point indexes encode this.
func Centroid(g orb.Geometry) orb.Point {
	switch v := g.(type) {
	case orb.Point:
		return v
	case orb.Bound:
		return v.Center()
	}
	c, _ := planar.CentroidArea(g)
	return c
}

// SimplePointEncoder keeps points in two numeric properties.
// Configuration: "<xProperty>:<yProperty>[:<bboxProperty>]".
type SimplePointEncoder struct {
	xProp    string
	yProp    string
	bboxProp string
}

func NewSimplePointEncoder(config string) (*SimplePointEncoder, error) {
	e := &SimplePointEncoder{xProp: "longitude", yProp: "latitude", bboxProp: "bbox"}
	if config == "" {
		return e, nil
	}
	parts := strings.Split(config, ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return nil, errors.Wrapf(ErrInvalidConfig, "simple point encoder expects <x>:<y>[:<bbox>], got %q", config)
	}
	e.xProp, e.yProp = parts[0], parts[1]
	if len(parts) == 3 && parts[2] != "" {
		e.bboxProp = parts[2]
	}
	return e, nil
}

func (e *SimplePointEncoder) Config() string {
	return e.xProp + ":" + e.yProp + ":" + e.bboxProp
}

func (e *SimplePointEncoder) DecodeGeometry(rec *store.Record) (orb.Geometry, error) {
	rawX, okX := rec.Properties[e.xProp]
	rawY, okY := rec.Properties[e.yProp]
	if !okX || !okY {
		return nil, errors.Wrapf(ErrNoGeometry, "record %d lacks %s/%s", rec.ID, e.xProp, e.yProp)
	}
	x, err := cast.ToFloat64E(rawX)
	if err != nil {
		return nil, errors.Wrapf(err, "record %d property %s", rec.ID, e.xProp)
	}
	y, err := cast.ToFloat64E(rawY)
	if err != nil {
		return nil, errors.Wrapf(err, "record %d property %s", rec.ID, e.yProp)
	}
	return orb.Point{x, y}, nil
}

func (e *SimplePointEncoder) DecodeEnvelope(rec *store.Record) (common.Envelope, error) {
	g, err := e.DecodeGeometry(rec)
	if err != nil {
		return common.Envelope{}, err
	}
	return common.FromBound(g.Bound()), nil
}

func (e *SimplePointEncoder) EncodeGeometry(geom orb.Geometry, rec *store.Record) error {
	p, ok := geom.(orb.Point)
	if !ok {
		return errors.Wrapf(ErrUnsupportedGeometry, "simple point encoder cannot store %s", geom.GeoJSONType())
	}
	rec.Properties[e.xProp] = p[0]
	rec.Properties[e.yProp] = p[1]
	rec.Properties[e.bboxProp] = []float64{p[0], p[1], p[0], p[1]}
	return nil
}

// WKBEncoder stores any geometry as WKB bytes, with the bounding box kept
// next to it so envelopes decode without parsing the geometry.
// Configuration: "<property>:<bboxProperty>[:<crsName>]".
type WKBEncoder struct {
	geomProp string
	bboxProp string
	crsName  string
}

func NewWKBEncoder(config string) (*WKBEncoder, error) {
	e := &WKBEncoder{geomProp: "geometry", bboxProp: "bbox"}
	if config == "" {
		return e, nil
	}
	parts := strings.Split(config, ":")
	if len(parts) > 3 || parts[0] == "" {
		return nil, errors.Wrapf(ErrInvalidConfig, "wkb encoder expects <property>:<bbox>[:<crs>], got %q", config)
	}
	e.geomProp = parts[0]
	if len(parts) > 1 && parts[1] != "" {
		e.bboxProp = parts[1]
	}
	if len(parts) > 2 {
		e.crsName = parts[2]
	}
	return e, nil
}

// CRSName is the reference system named in the configuration, if any.
func (e *WKBEncoder) CRSName() string {
	return e.crsName
}

func (e *WKBEncoder) Config() string {
	cfg := e.geomProp + ":" + e.bboxProp
	if e.crsName != "" {
		cfg += ":" + e.crsName
	}
	return cfg
}

func (e *WKBEncoder) DecodeGeometry(rec *store.Record) (orb.Geometry, error) {
	raw, ok := rec.Properties[e.geomProp]
	if !ok {
		return nil, errors.Wrapf(ErrNoGeometry, "record %d lacks %s", rec.ID, e.geomProp)
	}
	data, ok := raw.([]byte)
	if !ok {
		return nil, errors.Newf("record %d property %s is %T, not WKB bytes", rec.ID, e.geomProp, raw)
	}
	g, err := wkb.Unmarshal(data)
	if err != nil {
		return nil, errors.Wrapf(err, "decode wkb of record %d", rec.ID)
	}
	return g, nil
}

func (e *WKBEncoder) DecodeEnvelope(rec *store.Record) (common.Envelope, error) {
	if raw, ok := rec.Properties[e.bboxProp]; ok {
		if env, err := envelopeFromBBox(raw); err == nil {
			return env, nil
		}
	}
	g, err := e.DecodeGeometry(rec)
	if err != nil {
		return common.Envelope{}, err
	}
	return common.FromBound(g.Bound()), nil
}

func (e *WKBEncoder) EncodeGeometry(geom orb.Geometry, rec *store.Record) error {
	data, err := wkb.Marshal(geom)
	if err != nil {
		return errors.Wrap(err, "encode wkb")
	}
	b := geom.Bound()
	rec.Properties[e.geomProp] = data
	rec.Properties[e.bboxProp] = []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
	return nil
}

// envelopeFromBBox reads a [minX, minY, maxX, maxY] property.
func envelopeFromBBox(raw any) (common.Envelope, error) {
	var vals []float64
	switch v := raw.(type) {
	case []float64:
		vals = v
	case []any:
		for _, item := range v {
			f, err := cast.ToFloat64E(item)
			if err != nil {
				return common.Envelope{}, err
			}
			vals = append(vals, f)
		}
	default:
		return common.Envelope{}, errors.Newf("unsupported bbox type %T", raw)
	}
	if len(vals) != 4 {
		return common.Envelope{}, errors.Newf("bbox needs 4 values, got %d", len(vals))
	}
	return common.NewEnvelope(vals[0], vals[1], vals[2], vals[3]), nil
}

// Constructor builds an encoder from its configuration string.
type Constructor func(config string) (Encoder, error)

var encoders = map[string]Constructor{
	"simplepoint": func(config string) (Encoder, error) { return NewSimplePointEncoder(config) },
	"wkb":         func(config string) (Encoder, error) { return NewWKBEncoder(config) },
}

// NewEncoder resolves an encoder by name.
func NewEncoder(name, config string) (Encoder, error) {
	ctor, ok := encoders[strings.ToLower(name)]
	if !ok {
		return nil, errors.Wrapf(ErrInvalidConfig, "unknown encoder %q", name)
	}
	return ctor(config)
}
