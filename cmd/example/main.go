package main

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"geoindex/pkg/common"
	"geoindex/pkg/config"
	"geoindex/pkg/layer"
	"geoindex/pkg/log"
)

func main() {
	logger, err := log.New("info", true)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	cfg := &config.Config{
		Storage: config.StorageConfig{Backend: "memory"},
		Index:   config.IndexConfig{MaxNodeReferences: 100, SplitMode: "quadratic"},
		Layers: []config.LayerConfig{
			{Name: "tree", Index: "rtree"},
			{Name: "hilbert", Index: "hilbert", IndexConfig: "maxLevel: 12"},
		},
	}
	db, err := layer.Open(cfg, logger)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer db.Close()

	window := common.NewEnvelope(4, 4, 6, 6)
	for _, name := range db.LayerNames() {
		l, err := db.Layer(name)
		if err != nil {
			logger.Fatal("layer", zap.Error(err))
		}

		fmt.Printf("Layer %s (%s): adding (0,0), (5,5), (9,9)\n", name, l.IndexType())
		for _, p := range []orb.Point{{0, 0}, {5, 5}, {9, 9}} {
			if _, err := l.AddGeometry(p, map[string]any{"label": fmt.Sprintf("%v", p)}); err != nil {
				logger.Fatal("add", zap.Error(err))
			}
		}

		start := time.Now()
		found, err := l.SearchWindow(window)
		if err != nil {
			logger.Fatal("search", zap.Error(err))
		}
		fmt.Printf("Search %s found %d record(s) in %v\n", window, len(found), time.Since(start))
		for _, rec := range found {
			fmt.Printf("  id=%d label=%v\n", rec.ID, rec.Properties["label"])
		}
	}
}
