package rtree

import (
	"math"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"geoindex/pkg/common"
	"geoindex/pkg/index"
)

type SplitMode string

const (
	// QuadraticSplit is Guttman's quadratic-cost split.
	QuadraticSplit SplitMode = "quadratic"
	// GreeneSplit sorts along the widest axis and cuts in half.
	GreeneSplit SplitMode = "greene"
)

func ParseSplitMode(s string) (SplitMode, error) {
	switch m := SplitMode(s); m {
	case QuadraticSplit, GreeneSplit:
		return m, nil
	}
	return "", errors.Wrapf(index.ErrConfiguration, "unknown split mode %q", s)
}

// split moves part of an overflowing node into a new sibling and returns it.
func (t *Index) split(n *node) *node {
	envs := n.envelopes()

	var left, right []int
	switch t.splitMode {
	case GreeneSplit:
		left, right = greeneSplit(envs)
	default:
		left, right = quadraticSplit(envs, t.minNodeReferences())
	}
	t.monitor.AddSplit()
	t.monitor.AddCase("Split " + string(t.splitMode))

	sibling := &node{leaf: n.leaf}
	if n.leaf {
		entries := n.entries
		n.entries = pick(entries, left)
		sibling.entries = pick(entries, right)
		for _, e := range sibling.entries {
			t.leafOf[e.id] = sibling
		}
	} else {
		children := n.children
		n.children = pick(children, left)
		sibling.children = pick(children, right)
		for _, c := range sibling.children {
			c.parent = sibling
		}
	}
	n.recomputeEnvelope()
	sibling.recomputeEnvelope()
	return sibling
}

func pick[T any](items []T, positions []int) []T {
	return lo.Map(positions, func(p int, _ int) T { return items[p] })
}

// quadraticSplit partitions envs into two groups of at least minFill.
// Seeds are the pair wasting the most area when grouped; the rest go one by
// one, most decisive first, to the group they enlarge least.
func quadraticSplit(envs []common.Envelope, minFill int) ([]int, []int) {
	seedA, seedB := pickSeeds(envs)
	a, b := []int{seedA}, []int{seedB}
	envA, envB := envs[seedA], envs[seedB]

	remaining := make([]int, 0, len(envs)-2)
	for i := range envs {
		if i != seedA && i != seedB {
			remaining = append(remaining, i)
		}
	}

	for len(remaining) > 0 {
		if len(a)+len(remaining) <= minFill {
			a = append(a, remaining...)
			break
		}
		if len(b)+len(remaining) <= minFill {
			b = append(b, remaining...)
			break
		}

		next, nextPos := -1, 0
		maxDiff := -1.0
		for pos, i := range remaining {
			diff := math.Abs(envA.Enlargement(envs[i]) - envB.Enlargement(envs[i]))
			if diff > maxDiff {
				next, nextPos, maxDiff = i, pos, diff
			}
		}
		remaining = slices.Delete(remaining, nextPos, nextPos+1)

		if preferFirst(envA, envB, len(a), len(b), envs[next]) {
			a = append(a, next)
			envA.ExpandToInclude(envs[next])
		} else {
			b = append(b, next)
			envB.ExpandToInclude(envs[next])
		}
	}
	return a, b
}

// preferFirst decides between two groups by least enlargement, then smaller
// area, then fewer members. Full ties go to the first group.
func preferFirst(envA, envB common.Envelope, sizeA, sizeB int, env common.Envelope) bool {
	dA, dB := envA.Enlargement(env), envB.Enlargement(env)
	if dA != dB {
		return dA < dB
	}
	if areaA, areaB := envA.Area(), envB.Area(); areaA != areaB {
		return areaA < areaB
	}
	return sizeA <= sizeB
}

func pickSeeds(envs []common.Envelope) (int, int) {
	seedA, seedB := 0, 1
	worst := math.Inf(-1)
	for i := 0; i < len(envs); i++ {
		for j := i + 1; j < len(envs); j++ {
			waste := envs[i].Union(envs[j]).Area() - envs[i].Area() - envs[j].Area()
			if waste > worst {
				seedA, seedB, worst = i, j, waste
			}
		}
	}
	return seedA, seedB
}

// greeneSplit sorts the envelopes along the axis where the union is widest
// and cuts the list in half. An odd middle element goes to the half it
// enlarges least.
func greeneSplit(envs []common.Envelope) ([]int, []int) {
	union := envs[0]
	for _, e := range envs[1:] {
		union.ExpandToInclude(e)
	}
	axis := 0
	if union.WidthOf(1) > union.WidthOf(0) {
		axis = 1
	}

	order := make([]int, len(envs))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(i, j int) int {
		if c := compareFloat(minOf(envs[i], axis), minOf(envs[j], axis)); c != 0 {
			return c
		}
		return compareFloat(envs[i].CentreOf(axis), envs[j].CentreOf(axis))
	})

	half := len(order) / 2
	a := slices.Clone(order[:half])
	b := slices.Clone(order[len(order)-half:])
	if len(order)%2 == 1 {
		middle := order[half]
		envA, envB := unionOf(envs, a), unionOf(envs, b)
		if preferFirst(envA, envB, len(a), len(b), envs[middle]) {
			a = append(a, middle)
		} else {
			b = append(b, middle)
		}
	}
	return a, b
}

func minOf(e common.Envelope, axis int) float64 {
	if axis == 0 {
		return e.MinX
	}
	return e.MinY
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func unionOf(envs []common.Envelope, positions []int) common.Envelope {
	u := envs[positions[0]]
	for _, p := range positions[1:] {
		u.ExpandToInclude(envs[p])
	}
	return u
}
