package rtree

import (
	"geoindex/pkg/common"
	"geoindex/pkg/filter"
	"geoindex/pkg/monitor"
)

type frame struct {
	n     *node
	level int
	next  int
}

// cursor walks the tree lazily, depth first, descending only into nodes the
// filter needs to visit. Entries are pruned on their own envelope too.
type cursor struct {
	f       filter.SearchFilter
	monitor monitor.TreeMonitor
	stack   []frame
}

func (t *Index) newCursor(f filter.SearchFilter, m monitor.TreeMonitor) *cursor {
	c := &cursor{f: f, monitor: m}
	m.ClearMatchedTreeNodes()
	if t.count > 0 && f.NeedsToVisit(t.root.env) {
		m.MatchedTreeNode(0, t.root.env)
		c.stack = append(c.stack, frame{n: t.root})
	}
	return c
}

func (c *cursor) Next() (int64, bool, error) {
	for len(c.stack) > 0 {
		top := &c.stack[len(c.stack)-1]
		n := top.n

		if n.leaf {
			for top.next < len(n.entries) {
				e := n.entries[top.next]
				top.next++
				if c.f.NeedsToVisit(e.env) {
					c.monitor.AddCase("Index Matches")
					return e.id, true, nil
				}
			}
			c.stack = c.stack[:len(c.stack)-1]
			continue
		}

		if top.next < len(n.children) {
			child := n.children[top.next]
			top.next++
			if c.f.NeedsToVisit(child.env) {
				c.monitor.MatchedTreeNode(top.level+1, child.env)
				c.stack = append(c.stack, frame{n: child, level: top.level + 1})
			}
			continue
		}
		c.stack = c.stack[:len(c.stack)-1]
	}
	return 0, false, nil
}

// Visitor drives Visit: subtrees it does not need to visit are skipped and
// every reached entry is reported.
type Visitor interface {
	NeedsToVisit(env common.Envelope) bool
	OnIndexReference(id int64)
}

func (t *Index) Visit(v Visitor) {
	if t.count == 0 {
		return
	}
	var walk func(n *node)
	walk = func(n *node) {
		if !v.NeedsToVisit(n.env) {
			return
		}
		if n.leaf {
			for _, e := range n.entries {
				if v.NeedsToVisit(e.env) {
					v.OnIndexReference(e.id)
				}
			}
			return
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(t.root)
}

// WarmUp touches every node once and returns how many there are.
func (t *Index) WarmUp() int {
	return t.NodeCount()
}

func (t *Index) NodeCount() int {
	var count func(n *node) int
	count = func(n *node) int {
		total := 1
		for _, c := range n.children {
			total += count(c)
		}
		return total
	}
	return count(t.root)
}
