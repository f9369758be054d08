// Package hierarchy implements the hierarchisation/dehierarchisation
// transform between the nodal and hierarchical bases of a full grid. The
// specification treats this as a pure function supplied externally by the
// numerical kernel library; this package provides the reference
// implementation the coordination core needs to be independently testable
// (the paraboloid round-trip and combine-idempotence properties of §8
// cannot be exercised without one).
//
// The 1D transform follows the standard hierarchical-surplus recursion: at
// each level, from finest to coarsest, a point's value is replaced by its
// surplus over the linear interpolant of its two level-parents. Boundary
// points (when present) are left untouched by the per-dimension transform
// and are folded into hierarchical level 1 by the caller (see LevelOf).
package hierarchy

import "math/bits"

// Hierarchize1D transforms v (length n, n = NodalSize(level, boundary)) from
// nodal to hierarchical values in place, along one dimension at level l.
func Hierarchize1D(v []float64, l int, boundary bool) {
	n := len(v)
	for lvl := l; lvl >= 1; lvl-- {
		step := 1 << uint(l-lvl)
		start := step
		if !boundary {
			start = step - 1
		}
		for idx := start; idx < n; idx += 2 * step {
			left := idx - step
			right := idx + step
			var lv, rv float64
			if left >= 0 {
				lv = v[left]
			}
			if right < n {
				rv = v[right]
			}
			v[idx] -= 0.5 * (lv + rv)
		}
	}
}

// Dehierarchize1D is the inverse of Hierarchize1D.
func Dehierarchize1D(v []float64, l int, boundary bool) {
	n := len(v)
	for lvl := 1; lvl <= l; lvl++ {
		step := 1 << uint(l-lvl)
		start := step
		if !boundary {
			start = step - 1
		}
		for idx := start; idx < n; idx += 2 * step {
			left := idx - step
			right := idx + step
			var lv, rv float64
			if left >= 0 {
				lv = v[left]
			}
			if right < n {
				rv = v[right]
			}
			v[idx] += 0.5 * (lv + rv)
		}
	}
}

// NodalSize returns the number of nodal grid points along one dimension at
// the given level: 2^l+1 with a boundary, 2^l-1 without.
func NodalSize(l int, boundary bool) int {
	if boundary {
		return (1 << uint(l)) + 1
	}
	return (1 << uint(l)) - 1
}

// LevelOf returns the hierarchical level, the point's position within that
// level's ordered point list, and the total number of points at that level
// (along one dimension), for nodal index i at resolution l.
//
// Boundary points (i == 0 or i == n-1 in a boundary dimension) are folded
// into level 1, since LevelVector components must be positive per the data
// model — there is no level-0 subspace.
func LevelOf(i, l int, boundary bool) (level, pos, size int) {
	n := NodalSize(l, boundary)
	if boundary {
		if i == 0 {
			return 1, 0, levelSize(1, true)
		}
		if i == n-1 {
			return 1, levelSize(1, true) - 1, levelSize(1, true)
		}
		lvl := l - bits.TrailingZeros(uint(i))
		step := 1 << uint(l-lvl)
		p := (i/step - 1) / 2
		if lvl == 1 {
			// slot 0 and the last slot of level 1 are the two boundary
			// points handled above; the single true level-1 point takes
			// the slot in between.
			p++
		}
		return lvl, p, levelSize(lvl, true)
	}
	m := i + 1
	lvl := l - bits.TrailingZeros(uint(m))
	step := 1 << uint(l-lvl)
	p := (m/step - 1) / 2
	return lvl, p, levelSize(lvl, false)
}

// levelSize returns the number of points at hierarchical level l along one
// dimension: 2^(l-1), plus the two boundary points folded into level 1 when
// the dimension has a boundary.
func levelSize(l int, boundary bool) int {
	n := 1 << uint(l-1)
	if boundary && l == 1 {
		n += 2
	}
	return n
}

// LevelSize is the exported form of levelSize, used by pkg/sparsegrid to
// size subspace buffers without duplicating the boundary-folding rule.
func LevelSize(l int, boundary bool) int {
	return levelSize(l, boundary)
}
