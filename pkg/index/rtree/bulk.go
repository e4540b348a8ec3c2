package rtree

import (
	"math"
	"slices"

	"geoindex/pkg/common"
)

// buildSTR replaces the tree with one packed bottom-up from entries using
// Sort-Tile-Recursive: sort by x, cut into vertical slices, sort each slice
// by y and pack consecutive runs into nodes.
func (t *Index) buildSTR(entries []entry) {
	t.root = &node{leaf: true}
	t.height = 1
	t.leafOf = make(map[int64]*node, len(entries))
	t.count = len(entries)
	if len(entries) == 0 {
		return
	}

	fanout := t.maxNodeReferences
	var level []*node
	for _, group := range strGroups(entries, fanout, func(e entry) common.Envelope { return e.env }) {
		leaf := &node{leaf: true, entries: group}
		for _, e := range group {
			t.leafOf[e.id] = leaf
		}
		leaf.recomputeEnvelope()
		level = append(level, leaf)
	}

	for len(level) > 1 {
		var parents []*node
		for _, group := range strGroups(level, fanout, func(n *node) common.Envelope { return n.env }) {
			parent := &node{children: group}
			for _, c := range group {
				c.parent = parent
			}
			parent.recomputeEnvelope()
			parents = append(parents, parent)
		}
		level = parents
		t.height++
	}
	t.root = level[0]
}

// strGroups packs items into groups of at most fanout, spreading items evenly
// so that no group is left nearly empty.
func strGroups[T any](items []T, fanout int, envOf func(T) common.Envelope) [][]T {
	items = slices.Clone(items)
	byCentre := func(dim int) func(a, b T) int {
		return func(a, b T) int {
			return compareFloat(envOf(a).CentreOf(dim), envOf(b).CentreOf(dim))
		}
	}

	nodes := int(math.Ceil(float64(len(items)) / float64(fanout)))
	slicesCount := int(math.Ceil(math.Sqrt(float64(nodes))))

	slices.SortStableFunc(items, byCentre(0))
	var groups [][]T
	start := 0
	for _, sliceLen := range evenSizes(len(items), slicesCount*fanout) {
		slice := items[start : start+sliceLen]
		start += sliceLen
		slices.SortStableFunc(slice, byCentre(1))

		offset := 0
		for _, size := range evenSizes(len(slice), fanout) {
			groups = append(groups, slice[offset:offset+size:offset+size])
			offset += size
		}
	}
	return groups
}

// evenSizes splits n into the fewest parts of at most limit whose sizes
// differ by at most one.
func evenSizes(n, limit int) []int {
	if n == 0 {
		return nil
	}
	parts := (n + limit - 1) / limit
	base, rem := n/parts, n%parts
	sizes := make([]int, parts)
	for i := range sizes {
		sizes[i] = base
		if i < rem {
			sizes[i]++
		}
	}
	return sizes
}
