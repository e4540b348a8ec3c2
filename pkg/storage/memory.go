package storage

import (
	"cmp"
	"math"
	"sync"

	"github.com/google/btree"

	"geoindex/pkg/common"
)

type item[K Key] struct {
	Key K
	ID  int64
}

func lessItem[K Key](a, b item[K]) bool {
	if c := cmp.Compare(a.Key, b.Key); c != 0 {
		return c < 0
	}
	return a.ID < b.ID
}

// MemoryIndex keeps (key, id) pairs in a B-tree plus an id -> key map.
type MemoryIndex[K Key] struct {
	tree *btree.BTreeG[item[K]]
	keys map[int64]K
	lock sync.RWMutex
}

func NewMemoryIndex[K Key](degree int) *MemoryIndex[K] {
	return &MemoryIndex[K]{
		tree: btree.NewG(degree, lessItem[K]),
		keys: make(map[int64]K),
	}
}

func (mi *MemoryIndex[K]) Add(id int64, key K) error {
	mi.lock.Lock()
	defer mi.lock.Unlock()

	mi.putLocked(id, key)
	return nil
}

func (mi *MemoryIndex[K]) AddBatch(entries []Entry[K]) error {
	mi.lock.Lock()
	defer mi.lock.Unlock()

	for _, e := range entries {
		mi.putLocked(e.ID, e.Key)
	}
	return nil
}

func (mi *MemoryIndex[K]) putLocked(id int64, key K) {
	if old, ok := mi.keys[id]; ok {
		mi.tree.Delete(item[K]{Key: old, ID: id})
	}
	mi.keys[id] = key
	mi.tree.ReplaceOrInsert(item[K]{Key: key, ID: id})
}

func (mi *MemoryIndex[K]) Remove(id int64) (bool, error) {
	mi.lock.Lock()
	defer mi.lock.Unlock()

	key, ok := mi.keys[id]
	if !ok {
		return false, nil
	}
	delete(mi.keys, id)
	mi.tree.Delete(item[K]{Key: key, ID: id})
	return true, nil
}

func (mi *MemoryIndex[K]) Lookup(id int64) (K, bool, error) {
	mi.lock.RLock()
	defer mi.lock.RUnlock()

	key, ok := mi.keys[id]
	return key, ok, nil
}

func (mi *MemoryIndex[K]) QueryRange(r common.CurveRange[K]) ([]int64, error) {
	mi.lock.RLock()
	defer mi.lock.RUnlock()

	var ids []int64
	mi.tree.AscendGreaterOrEqual(item[K]{Key: r.Min, ID: math.MinInt64}, func(it item[K]) bool {
		if it.Key > r.Max {
			return false
		}
		ids = append(ids, it.ID)
		return true
	})
	return ids, nil
}

func (mi *MemoryIndex[K]) QueryAll() ([]int64, error) {
	mi.lock.RLock()
	defer mi.lock.RUnlock()

	ids := make([]int64, 0, mi.tree.Len())
	mi.tree.Ascend(func(it item[K]) bool {
		ids = append(ids, it.ID)
		return true
	})
	return ids, nil
}

func (mi *MemoryIndex[K]) Count() (int, error) {
	mi.lock.RLock()
	defer mi.lock.RUnlock()
	return mi.tree.Len(), nil
}

func (mi *MemoryIndex[K]) Drop() error {
	mi.lock.Lock()
	defer mi.lock.Unlock()

	mi.tree.Clear(false)
	mi.keys = make(map[int64]K)
	return nil
}
