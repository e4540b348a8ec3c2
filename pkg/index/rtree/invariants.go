package rtree

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"geoindex/pkg/index"
)

// corrupt latches the index into a read-only state.
func (t *Index) corrupt(err error) error {
	t.corrupted = errors.Mark(errors.Wrapf(err, "layer %s", t.name), index.ErrCorrupted)
	t.logger.Error("[RTree] corruption detected, rejecting further writes", zap.Error(err))
	return t.corrupted
}

// verifyPath checks that every ancestor of n covers its child.
func (t *Index) verifyPath(n *node) error {
	for ; n != nil && n.parent != nil; n = n.parent {
		if !n.parent.env.Covers(n.env) {
			return t.corrupt(errors.Newf("node %s not covered by parent %s", n.env, n.parent.env))
		}
	}
	return nil
}

// CheckInvariants walks the whole tree: envelopes cover their contents,
// parent links are consistent, nodes respect the fanout, leaves sit at the
// same depth and the entry map and count agree with the tree.
func (t *Index) CheckInvariants() error {
	if t.corrupted != nil {
		return t.corrupted
	}
	if t.root.parent != nil {
		return t.corrupt(errors.New("root has a parent"))
	}

	entries := 0
	leafDepth := -1
	var check func(n *node, depth int) error
	check = func(n *node, depth int) error {
		if n.size() > t.maxNodeReferences {
			return errors.Newf("node at depth %d holds %d > %d", depth, n.size(), t.maxNodeReferences)
		}
		if n != t.root && n.size() == 0 {
			return errors.Newf("empty non-root node at depth %d", depth)
		}
		if n.leaf {
			if leafDepth == -1 {
				leafDepth = depth
			} else if leafDepth != depth {
				return errors.Newf("leaves at depths %d and %d", leafDepth, depth)
			}
			for _, e := range n.entries {
				if !n.env.Covers(e.env) {
					return errors.Newf("leaf %s does not cover entry %d %s", n.env, e.id, e.env)
				}
				if t.leafOf[e.id] != n {
					return errors.Newf("entry %d not mapped to its leaf", e.id)
				}
			}
			entries += len(n.entries)
			return nil
		}
		for _, c := range n.children {
			if c.parent != n {
				return errors.Newf("broken parent link at depth %d", depth+1)
			}
			if !n.env.Covers(c.env) {
				return errors.Newf("node %s does not cover child %s", n.env, c.env)
			}
			if err := check(c, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	if err := check(t.root, 1); err != nil {
		return t.corrupt(err)
	}
	if leafDepth != t.height {
		return t.corrupt(errors.Newf("height %d but leaves at depth %d", t.height, leafDepth))
	}
	if entries != t.count || len(t.leafOf) != t.count {
		return t.corrupt(errors.Newf("count %d, tree holds %d, map holds %d", t.count, entries, len(t.leafOf)))
	}
	return nil
}
