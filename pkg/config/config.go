package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Index   IndexConfig   `yaml:"index"`
	Logging LoggingConfig `yaml:"logging"`
	Layers  []LayerConfig `yaml:"layers"`
}

type ServerConfig struct {
	Address string `yaml:"address"`
}

type StorageConfig struct {
	Backend string `yaml:"backend"` // memory, sqlite or badger
	Path    string `yaml:"path"`    // directory holding index.db or badger/
}

// IndexConfig holds the defaults for rtree layers without an index_config.
type IndexConfig struct {
	MaxNodeReferences int    `yaml:"max_node_references"`
	SplitMode         string `yaml:"split_mode"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type LayerConfig struct {
	Name          string    `yaml:"name"`
	Index         string    `yaml:"index"`
	IndexConfig   string    `yaml:"index_config"`
	Encoder       string    `yaml:"encoder"`
	EncoderConfig string    `yaml:"encoder_config"`
	CRS           CRSConfig `yaml:"crs"`
}

// CRSConfig names a known CRS, or declares a planar one when Bounds holds
// minX, minY, maxX, maxY.
type CRSConfig struct {
	Name   string    `yaml:"name"`
	Bounds []float64 `yaml:"bounds"`
}

var ErrInvalidConfig = errors.New("invalid configuration")

func Load(configPath string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Address: ":8080",
		},
		Storage: StorageConfig{
			Backend: "memory",
			Path:    "geoindex_data",
		},
		Index: IndexConfig{
			MaxNodeReferences: 100,
			SplitMode:         "quadratic",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}

	if configPath == "" {
		for _, p := range []string{"configs/geoindex.yaml", "geoindex.yaml"} {
			data, err := os.ReadFile(p)
			if err == nil {
				if err := yaml.Unmarshal(data, cfg); err != nil {
					return cfg, errors.Wrapf(err, "parse %s", p)
				}
				applyDefaults(cfg)
				return cfg, cfg.Validate()
			}
		}
		applyDefaults(cfg)
		return cfg, nil // no file found: use defaults
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse %s", configPath)
	}

	applyDefaults(cfg)
	return cfg, cfg.Validate()
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "memory"
	}
	if cfg.Index.MaxNodeReferences <= 0 {
		cfg.Index.MaxNodeReferences = 100
	}
	if cfg.Index.SplitMode == "" {
		cfg.Index.SplitMode = "quadratic"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	for i := range cfg.Layers {
		l := &cfg.Layers[i]
		if l.Index == "" {
			l.Index = "rtree"
		}
		if l.Encoder == "" {
			l.Encoder = "simplepoint"
		}
		if l.CRS.Name == "" {
			l.CRS.Name = "WGS84"
		}
	}
}

// Validate checks what can be checked without building the layers.
func (c *Config) Validate() error {
	for i, l := range c.Layers {
		if l.Name == "" {
			return errors.Wrapf(ErrInvalidConfig, "layer %d has no name", i)
		}
		if n := len(l.CRS.Bounds); n != 0 && n != 4 {
			return errors.Wrapf(ErrInvalidConfig, "layer %s: crs bounds need 4 values, got %d", l.Name, n)
		}
	}
	names := lo.Map(c.Layers, func(l LayerConfig, _ int) string { return l.Name })
	if dup := lo.FindDuplicates(names); len(dup) > 0 {
		return errors.Wrapf(ErrInvalidConfig, "duplicate layers %v", dup)
	}
	return nil
}
