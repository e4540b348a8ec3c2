package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"geoindex/pkg/config"
	"geoindex/pkg/layer"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		Storage: config.StorageConfig{Backend: "memory"},
		Index:   config.IndexConfig{MaxNodeReferences: 10, SplitMode: "quadratic"},
		Layers: []config.LayerConfig{
			{Name: "pois", Index: "rtree"},
			{Name: "roads", Index: "rtree", Encoder: "wkb", EncoderConfig: "geom:bbox"},
		},
	}
	db, err := layer.Open(cfg, nil)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	s, err := NewServer(db, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return s
}

func do(s *Server, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func addFeature(t *testing.T, s *Server, layerName string, g orb.Geometry, props map[string]any) int64 {
	t.Helper()
	f := geojson.NewFeature(g)
	f.Properties = props
	body, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal feature: %v", err)
	}
	rec := do(s, http.MethodPost, "/api/layers/"+layerName+"/features", string(body))
	if rec.Code != http.StatusCreated {
		t.Fatalf("add expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode add response: %v", err)
	}
	return resp.ID
}

func decodeFeatures(t *testing.T, rec *httptest.ResponseRecorder) *geojson.FeatureCollection {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	fc, err := geojson.UnmarshalFeatureCollection(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("decode feature collection: %v", err)
	}
	return fc
}

func TestSearchWindow(t *testing.T) {
	s := newTestServer(t)
	addFeature(t, s, "pois", orb.Point{0, 0}, nil)
	mid := addFeature(t, s, "pois", orb.Point{5, 5}, map[string]any{"name": "mid"})
	addFeature(t, s, "pois", orb.Point{9, 9}, nil)

	fc := decodeFeatures(t, do(s, http.MethodGet, "/api/layers/pois/search?bbox=4,4,6,6", ""))
	if len(fc.Features) != 1 {
		t.Fatalf("expected 1 feature, got %d", len(fc.Features))
	}
	f := fc.Features[0]
	if id, _ := f.ID.(float64); int64(id) != mid {
		t.Fatalf("expected id %d, got %v", mid, f.ID)
	}
	if f.Properties.MustString("name", "") != "mid" {
		t.Fatalf("expected name=mid, got %v", f.Properties)
	}
	if p, ok := f.Geometry.(orb.Point); !ok || !p.Equal(orb.Point{5, 5}) {
		t.Fatalf("expected point (5,5), got %v", f.Geometry)
	}
}

func TestSearchExactAndNear(t *testing.T) {
	s := newTestServer(t)
	// the diagonal's envelope covers the window, the line itself misses it
	addFeature(t, s, "roads", orb.LineString{{0, 0}, {10, 10}}, nil)
	addFeature(t, s, "roads", orb.Point{8, 1.5}, nil)

	fc := decodeFeatures(t, do(s, http.MethodGet, "/api/layers/roads/search?bbox=7,1,9,2", ""))
	if len(fc.Features) != 2 {
		t.Fatalf("envelope search expected 2 features, got %d", len(fc.Features))
	}
	fc = decodeFeatures(t, do(s, http.MethodGet, "/api/layers/roads/search?bbox=7,1,9,2&exact=true", ""))
	if len(fc.Features) != 1 {
		t.Fatalf("exact search expected 1 feature, got %d", len(fc.Features))
	}
	for _, f := range fc.Features {
		if _, ok := f.Properties["geom"]; ok {
			t.Fatalf("wkb blob leaked into properties: %v", f.Properties)
		}
	}

	fc = decodeFeatures(t, do(s, http.MethodGet, "/api/layers/roads/near?x=8&y=0&distance=2", ""))
	if len(fc.Features) != 1 {
		t.Fatalf("near expected 1 feature, got %d", len(fc.Features))
	}
}

func TestRemoveFeature(t *testing.T) {
	s := newTestServer(t)
	id := addFeature(t, s, "pois", orb.Point{1, 1}, nil)

	path := fmt.Sprintf("/api/layers/pois/features/%d?delete=true", id)
	if rec := do(s, http.MethodDelete, path, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("remove expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := do(s, http.MethodDelete, path, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("second remove expected 404, got %d", rec.Code)
	}
	if rec := do(s, http.MethodDelete, "/api/layers/pois/features/abc", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id expected 400, got %d", rec.Code)
	}
}

func TestBadRequests(t *testing.T) {
	s := newTestServer(t)

	cases := []struct {
		method, target, body string
		want                 int
	}{
		{http.MethodGet, "/api/layers/missing/search?bbox=0,0,1,1", "", http.StatusNotFound},
		{http.MethodGet, "/api/layers/pois/search?bbox=0,0,1", "", http.StatusBadRequest},
		{http.MethodGet, "/api/layers/pois/search?bbox=0,0,1,x", "", http.StatusBadRequest},
		{http.MethodGet, "/api/layers/pois/near?x=1&y=1&distance=-1", "", http.StatusBadRequest},
		{http.MethodPost, "/api/layers/pois/features", "{not json", http.StatusBadRequest},
		{http.MethodPost, "/api/layers/pois/features", `{"type":"Feature","geometry":null,"properties":{}}`, http.StatusBadRequest},
		{http.MethodPost, "/api/layers/pois/features", `{"type":"Feature","geometry":{"type":"LineString","coordinates":[[0,0],[1,1]]},"properties":{}}`, http.StatusBadRequest},
	}
	for _, c := range cases {
		if rec := do(s, c.method, c.target, c.body); rec.Code != c.want {
			t.Errorf("%s %s expected %d, got %d: %s", c.method, c.target, c.want, rec.Code, rec.Body.String())
		}
	}
}

func TestLayersStatsAndMetrics(t *testing.T) {
	s := newTestServer(t)
	addFeature(t, s, "pois", orb.Point{2, 3}, nil)
	do(s, http.MethodGet, "/api/layers/pois/search?bbox=0,0,5,5", "")

	rec := do(s, http.MethodGet, "/api/layers", "")
	var infos []layerInfo
	if err := json.NewDecoder(rec.Body).Decode(&infos); err != nil {
		t.Fatalf("decode layers: %v", err)
	}
	if len(infos) != 2 || infos[0].Name != "pois" || infos[0].Count != 1 || infos[0].BoundingBox == nil {
		t.Fatalf("unexpected layers: %+v", infos)
	}
	if infos[1].Name != "roads" || infos[1].BoundingBox != nil {
		t.Fatalf("empty layer should have no bbox: %+v", infos[1])
	}

	rec = do(s, http.MethodGet, "/api/layers/pois/stats", "")
	var stats map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats["reads"] != float64(1) || stats["height"] != float64(1) {
		t.Fatalf("unexpected stats: %v", stats)
	}

	rec = do(s, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, m := range []string{"geoindex_index_searches_total", "geoindex_index_height"} {
		if !strings.Contains(body, m) {
			t.Fatalf("expected metrics output to contain %q, body=%s", m, body)
		}
	}
}
