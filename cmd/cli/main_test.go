package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoindex/pkg/api"
	"geoindex/pkg/client"
	"geoindex/pkg/config"
	"geoindex/pkg/layer"
)

func TestReplSession(t *testing.T) {
	db, err := layer.Open(&config.Config{
		Storage: config.StorageConfig{Backend: "memory"},
		Index:   config.IndexConfig{MaxNodeReferences: 10, SplitMode: "quadratic"},
		Layers:  []config.LayerConfig{{Name: "pois", Index: "hilbert"}},
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	srv, err := api.NewServer(db, nil)
	require.NoError(t, err)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	script := strings.Join([]string{
		"add pois 5 5 town hall",
		"add pois 9 9",
		"add pois x 1",
		"search pois 4 4 6 6",
		"near pois 9 9 0.5",
		"del pois 1",
		"del pois 1",
		"layers",
		"stats pois",
		"bogus",
		"quit",
		"search pois 0 0 1 1",
	}, "\n")
	var out bytes.Buffer
	repl(context.Background(), client.New(ts.URL), strings.NewReader(script), &out)
	text := out.String()

	assert.Contains(t, text, "OK id=1")
	assert.Contains(t, text, "OK id=2")
	assert.Contains(t, text, "Error: x and y must be numbers")
	assert.Contains(t, text, `Found 1 feature(s)`)
	assert.Contains(t, text, `"town hall"`)
	assert.Contains(t, text, "Deleted")
	assert.Contains(t, text, "not found")
	assert.Contains(t, text, "pois         hilbert  WGS84    1 record(s)")
	assert.Contains(t, text, "reads")
	assert.Contains(t, text, "Unknown command: 'bogus'")
	assert.True(t, strings.HasSuffix(text, "Bye!\n"), "commands after quit are ignored")
}
