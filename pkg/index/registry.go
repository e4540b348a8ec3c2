package index

import (
	"slices"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

// Constructor returns a fresh, uninitialised index.
type Constructor func() Index

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Constructor)
)

// Register makes an index type available under id. Implementations call it
// from init; registering the same id twice panics.
func Register(id string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()

	id = strings.ToLower(id)
	if ctor == nil {
		panic("index: Register constructor is nil")
	}
	if _, dup := registry[id]; dup {
		panic("index: Register called twice for " + id)
	}
	registry[id] = ctor
}

// Identifiers lists the registered index types in sorted order.
func Identifiers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	ids := lo.Keys(registry)
	slices.Sort(ids)
	return ids
}

// New constructs, initialises and, when config is non-empty, configures
// the index registered under id.
func New(id string, ctx LayerContext, config string) (Index, error) {
	registryMu.RLock()
	ctor, ok := registry[strings.ToLower(id)]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrUnknownIndexType, "%q (known: %s)", id, strings.Join(Identifiers(), ", "))
	}

	idx := ctor()
	if err := idx.Init(ctx); err != nil {
		return nil, errors.Wrapf(err, "init %s index for layer %s", id, ctx.Name)
	}
	if config == "" {
		return idx, nil
	}
	c, ok := idx.(Configurable)
	if !ok {
		return nil, errors.Wrapf(ErrConfiguration, "%s index takes no configuration", id)
	}
	if err := c.Configure(config); err != nil {
		return nil, errors.Wrapf(err, "configure %s index for layer %s", id, ctx.Name)
	}
	return idx, nil
}
