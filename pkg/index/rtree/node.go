package rtree

import (
	"slices"

	"geoindex/pkg/common"
)

type entry struct {
	id  int64
	env common.Envelope
}

// node is a leaf holding entries or an internal node holding children.
// env is the union of its contents and meaningless while the node is empty.
type node struct {
	parent   *node
	leaf     bool
	env      common.Envelope
	children []*node
	entries  []entry
}

func (n *node) size() int {
	if n.leaf {
		return len(n.entries)
	}
	return len(n.children)
}

func (n *node) recomputeEnvelope() {
	if n.leaf {
		for i, e := range n.entries {
			if i == 0 {
				n.env = e.env
			} else {
				n.env.ExpandToInclude(e.env)
			}
		}
	} else {
		for i, c := range n.children {
			if i == 0 {
				n.env = c.env
			} else {
				n.env.ExpandToInclude(c.env)
			}
		}
	}
	if n.size() == 0 {
		n.env = common.Envelope{}
	}
}

// envelopes lists the envelopes of the node's contents in stored order.
func (n *node) envelopes() []common.Envelope {
	envs := make([]common.Envelope, 0, n.size())
	if n.leaf {
		for _, e := range n.entries {
			envs = append(envs, e.env)
		}
	} else {
		for _, c := range n.children {
			envs = append(envs, c.env)
		}
	}
	return envs
}

func (n *node) removeChild(child *node) {
	if i := slices.Index(n.children, child); i >= 0 {
		n.children = slices.Delete(n.children, i, i+1)
	}
}

func (n *node) removeEntry(id int64) bool {
	i := slices.IndexFunc(n.entries, func(e entry) bool { return e.id == id })
	if i < 0 {
		return false
	}
	n.entries = slices.Delete(n.entries, i, i+1)
	return true
}

// collectEntries appends every entry below n.
func (n *node) collectEntries(out []entry) []entry {
	if n.leaf {
		return append(out, n.entries...)
	}
	for _, c := range n.children {
		out = c.collectEntries(out)
	}
	return out
}

// chooseSubtree picks the child needing the least enlargement to cover env,
// then the smallest, then the first in stored order.
func (n *node) chooseSubtree(env common.Envelope) *node {
	var best *node
	var bestEnlargement, bestArea float64
	for _, c := range n.children {
		enlargement := c.env.Enlargement(env)
		area := c.env.Area()
		if best == nil ||
			enlargement < bestEnlargement ||
			(enlargement == bestEnlargement && area < bestArea) {
			best, bestEnlargement, bestArea = c, enlargement, area
		}
	}
	return best
}
