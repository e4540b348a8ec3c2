// Package client talks to the layer API served by pkg/api.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/spf13/cast"
)

var ErrNotFound = errors.New("not found")

type Client struct {
	base string
	http *http.Client
}

type LayerInfo struct {
	Name        string     `json:"name"`
	Index       string     `json:"index"`
	CRS         string     `json:"crs"`
	Count       int        `json:"count"`
	BoundingBox *orb.Bound `json:"bbox,omitempty"`
}

// New returns a client for the server at addr, given as host:port or a URL.
func New(addr string) *Client {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return &Client{
		base: strings.TrimSuffix(addr, "/"),
		http: &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *Client) Layers(ctx context.Context) ([]LayerInfo, error) {
	var infos []LayerInfo
	if err := c.do(ctx, http.MethodGet, "/api/layers", nil, &infos); err != nil {
		return nil, err
	}
	return infos, nil
}

func (c *Client) Stats(ctx context.Context, layer string) (map[string]any, error) {
	var stats map[string]any
	if err := c.do(ctx, http.MethodGet, "/api/layers/"+url.PathEscape(layer)+"/stats", nil, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// Add stores g with props in layer and returns the new record id.
func (c *Client) Add(ctx context.Context, layer string, g orb.Geometry, props map[string]any) (int64, error) {
	f := geojson.NewFeature(g)
	if props != nil {
		f.Properties = props
	}
	body, err := json.Marshal(f)
	if err != nil {
		return 0, errors.Wrap(err, "encode feature")
	}
	var resp struct {
		ID int64 `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/layers/"+url.PathEscape(layer)+"/features", body, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

func (c *Client) Remove(ctx context.Context, layer string, id int64, deleteRecord bool) error {
	path := fmt.Sprintf("/api/layers/%s/features/%d?delete=%t", url.PathEscape(layer), id, deleteRecord)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// Search returns the features whose envelope intersects window. With exact
// set the geometry itself must intersect it.
func (c *Client) Search(ctx context.Context, layer string, window orb.Bound, exact bool) (*geojson.FeatureCollection, error) {
	q := url.Values{}
	q.Set("bbox", fmt.Sprintf("%v,%v,%v,%v", window.Min[0], window.Min[1], window.Max[0], window.Max[1]))
	if exact {
		q.Set("exact", "true")
	}
	return c.features(ctx, "/api/layers/"+url.PathEscape(layer)+"/search?"+q.Encode())
}

func (c *Client) Near(ctx context.Context, layer string, p orb.Point, distance float64) (*geojson.FeatureCollection, error) {
	q := url.Values{}
	q.Set("x", cast.ToString(p[0]))
	q.Set("y", cast.ToString(p[1]))
	q.Set("distance", cast.ToString(distance))
	return c.features(ctx, "/api/layers/"+url.PathEscape(layer)+"/near?"+q.Encode())
}

func (c *Client) features(ctx context.Context, path string) (*geojson.FeatureCollection, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, errors.Wrap(err, "decode features")
	}
	return fc, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/geo+json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		text := strings.TrimSpace(string(msg))
		if resp.StatusCode == http.StatusNotFound {
			return errors.Wrapf(ErrNotFound, "%s", text)
		}
		return errors.Newf("%s %s: %s: %s", method, path, resp.Status, text)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}
