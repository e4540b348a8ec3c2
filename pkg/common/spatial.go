package common

import (
	"cmp"
	"slices"
)

// MaxMortonLevel is the largest number of bits per axis that still leaves
// the interleaved key a non-negative int64.
const MaxMortonLevel = 31

// Part1By1 spreads the low 32 bits of n so that bit i lands on bit 2i.
func Part1By1(n uint32) uint64 {
	x := uint64(n)
	x = (x | (x << 16)) & 0x0000ffff0000ffff
	x = (x | (x << 8)) & 0x00ff00ff00ff00ff
	x = (x | (x << 4)) & 0x0f0f0f0f0f0f0f0f
	x = (x | (x << 2)) & 0x3333333333333333
	x = (x | (x << 1)) & 0x5555555555555555
	return x
}

// Compact1By1 is the inverse of Part1By1.
func Compact1By1(x uint64) uint32 {
	x &= 0x5555555555555555
	x = (x | (x >> 1)) & 0x3333333333333333
	x = (x | (x >> 2)) & 0x0f0f0f0f0f0f0f0f
	x = (x | (x >> 4)) & 0x00ff00ff00ff00ff
	x = (x | (x >> 8)) & 0x0000ffff0000ffff
	x = (x | (x >> 16)) & 0x00000000ffffffff
	return uint32(x)
}

// Encode2D interleaves tile coordinates into a Morton code, x on the even bits.
func Encode2D(x, y uint32) int64 {
	return int64(Part1By1(y)<<1 | Part1By1(x))
}

func Decode2D(code int64) (uint32, uint32) {
	k := uint64(code)
	return Compact1By1(k), Compact1By1(k >> 1)
}

// CurveRange is a closed interval [Min, Max] of curve key space.
type CurveRange[K cmp.Ordered] struct {
	Min K
	Max K
}

func (r CurveRange[K]) Contains(k K) bool {
	return k >= r.Min && k <= r.Max
}

// MergeRanges sorts the ranges and joins overlapping ones, plus the ones the
// adjacent func declares contiguous. adjacent may be nil.
func MergeRanges[K cmp.Ordered](ranges []CurveRange[K], adjacent func(max, min K) bool) []CurveRange[K] {
	if len(ranges) == 0 {
		return ranges
	}
	slices.SortFunc(ranges, func(a, b CurveRange[K]) int {
		return cmp.Compare(a.Min, b.Min)
	})

	merged := make([]CurveRange[K], 0, len(ranges))
	curr := ranges[0]

	for i := 1; i < len(ranges); i++ {
		next := ranges[i]
		if next.Min <= curr.Max || (adjacent != nil && adjacent(curr.Max, next.Min)) {
			if next.Max > curr.Max {
				curr.Max = next.Max
			}
		} else {
			merged = append(merged, curr)
			curr = next
		}
	}
	merged = append(merged, curr)
	return merged
}

// AdjacentInt64 treats [a, n] and [n+1, b] as one range.
func AdjacentInt64(max, min int64) bool {
	return max+1 == min
}

// InRanges reports whether k falls inside any of the sorted ranges.
func InRanges[K cmp.Ordered](k K, ranges []CurveRange[K]) bool {
	i, _ := slices.BinarySearchFunc(ranges, k, func(r CurveRange[K], k K) int {
		if r.Max < k {
			return -1
		}
		if r.Min > k {
			return 1
		}
		return 0
	})
	return i < len(ranges) && ranges[i].Contains(k)
}
