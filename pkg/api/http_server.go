// Package api serves the layers of a database over HTTP, exchanging
// geometries as GeoJSON.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"geoindex/pkg/common"
	"geoindex/pkg/geometry"
	"geoindex/pkg/index"
	"geoindex/pkg/index/rtree"
	"geoindex/pkg/layer"
	"geoindex/pkg/store"
)

type Server struct {
	db       *layer.Database
	registry *prometheus.Registry
	logger   *zap.Logger
	mux      *http.ServeMux
}

func NewServer(db *layer.Database, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	if err := db.RegisterMetrics(reg); err != nil {
		return nil, err
	}
	s := &Server{db: db, registry: reg, logger: logger, mux: http.NewServeMux()}

	s.mux.HandleFunc("GET /api/layers", s.handleLayers)
	s.mux.HandleFunc("GET /api/layers/{layer}/stats", s.handleStats)
	s.mux.HandleFunc("POST /api/layers/{layer}/features", s.handleAdd)
	s.mux.HandleFunc("DELETE /api/layers/{layer}/features/{id}", s.handleRemove)
	s.mux.HandleFunc("GET /api/layers/{layer}/search", s.handleSearch)
	s.mux.HandleFunc("GET /api/layers/{layer}/near", s.handleNear)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	s.mux.ServeHTTP(w, r)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("[API] listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.logger.Info("[API] shutting down")
	return srv.Shutdown(shutdownCtx)
}

type layerInfo struct {
	Name        string     `json:"name"`
	Index       string     `json:"index"`
	CRS         string     `json:"crs"`
	Count       int        `json:"count"`
	BoundingBox *orb.Bound `json:"bbox,omitempty"`
}

func (s *Server) handleLayers(w http.ResponseWriter, r *http.Request) {
	infos := make([]layerInfo, 0)
	for _, name := range s.db.LayerNames() {
		l, err := s.db.Layer(name)
		if err != nil {
			// dropped since LayerNames
			continue
		}
		info := layerInfo{Name: name, Index: l.IndexType(), CRS: l.CRS().Name, Count: l.Count()}
		if env, ok := l.BoundingBox(); ok {
			b := env.Bound()
			info.BoundingBox = &b
		}
		infos = append(infos, info)
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	l, ok := s.layer(w, r)
	if !ok {
		return
	}
	stats := l.Stats()
	resp := map[string]any{
		"reads":     stats.Reads(),
		"writes":    stats.Writes(),
		"hits":      stats.Hits(),
		"misses":    stats.Misses(),
		"hit_ratio": stats.HitRatio(),
	}
	if l.IndexType() == rtree.Identifier {
		m := l.Monitor()
		resp["height"] = m.Height()
		resp["splits"] = m.NbrSplit()
		resp["rebuilds"] = m.NbrRebuilt()
		resp["cases"] = m.CaseCounts()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	l, ok := s.layer(w, r)
	if !ok {
		return
	}
	var f geojson.Feature
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		http.Error(w, "Invalid GeoJSON feature", http.StatusBadRequest)
		return
	}
	if f.Geometry == nil {
		http.Error(w, "Feature has no geometry", http.StatusBadRequest)
		return
	}

	start := time.Now()
	rec, err := l.AddGeometry(f.Geometry, f.Properties)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         rec.ID,
		"latency_ns": time.Since(start).Nanoseconds(),
	})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	l, ok := s.layer(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid id", http.StatusBadRequest)
		return
	}
	deleteRecord := cast.ToBool(r.URL.Query().Get("delete"))
	if err := l.Remove(id, deleteRecord); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSearch answers ?bbox=minX,minY,maxX,maxY. With exact=true records
// must intersect the window, not just their envelope.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	l, ok := s.layer(w, r)
	if !ok {
		return
	}
	window, err := parseBBox(r.URL.Query().Get("bbox"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	search := l.SearchWindow
	if cast.ToBool(r.URL.Query().Get("exact")) {
		search = l.SearchIntersect
	}
	recs, err := search(window)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeFeatures(w, l, recs)
}

func (s *Server) handleNear(w http.ResponseWriter, r *http.Request) {
	l, ok := s.layer(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	x, errX := cast.ToFloat64E(q.Get("x"))
	y, errY := cast.ToFloat64E(q.Get("y"))
	distance, errD := cast.ToFloat64E(q.Get("distance"))
	if err := errors.CombineErrors(errX, errors.CombineErrors(errY, errD)); err != nil || distance < 0 {
		http.Error(w, "Invalid x, y or distance", http.StatusBadRequest)
		return
	}
	recs, err := l.SearchWithinDistance(orb.Point{x, y}, distance)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeFeatures(w, l, recs)
}

func (s *Server) layer(w http.ResponseWriter, r *http.Request) (*layer.Layer, bool) {
	l, err := s.db.Layer(r.PathValue("layer"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return nil, false
	}
	return l, true
}

func (s *Server) writeFeatures(w http.ResponseWriter, l *layer.Layer, recs []*store.Record) {
	fc := geojson.NewFeatureCollection()
	for _, rec := range recs {
		g, err := l.Encoder().DecodeGeometry(rec)
		if err != nil {
			s.fail(w, err)
			return
		}
		f := geojson.NewFeature(g)
		f.ID = rec.ID
		// encoded geometry blobs stay server side
		f.Properties = lo.OmitBy(rec.Properties, func(_ string, v any) bool {
			_, raw := v.([]byte)
			return raw
		})
		fc.Append(f)
	}
	w.Header().Set("Content-Type", "application/geo+json")
	if err := json.NewEncoder(w).Encode(fc); err != nil {
		s.logger.Warn("[API] write response", zap.Error(err))
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, index.ErrNotFound), errors.Is(err, layer.ErrLayerNotFound):
		status = http.StatusNotFound
	case errors.Is(err, index.ErrUnsupportedFilter), errors.Is(err, index.ErrConfiguration),
		errors.Is(err, geometry.ErrUnsupportedGeometry), errors.Is(err, index.ErrInvalidEnvelope):
		status = http.StatusBadRequest
	case errors.Is(err, index.ErrCorrupted):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("[API] request failed", zap.Error(err))
	}
	http.Error(w, err.Error(), status)
}

func parseBBox(raw string) (common.Envelope, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return common.Envelope{}, errors.Newf("bbox needs minX,minY,maxX,maxY, got %q", raw)
	}
	v := make([]float64, 4)
	for i, p := range parts {
		f, err := cast.ToFloat64E(strings.TrimSpace(p))
		if err != nil {
			return common.Envelope{}, errors.Wrapf(err, "bbox value %d", i)
		}
		v[i] = f
	}
	return common.NewEnvelope(v[0], v[1], v[2], v[3]), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
