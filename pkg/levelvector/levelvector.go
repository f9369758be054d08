// Package levelvector implements the LevelVector data type: an ordered,
// fixed-dimension sequence of positive integers identifying one anisotropic
// resolution. A LevelVector is immutable once it has been assigned to a
// Task — callers must treat every value returned from this package as
// read-only and clone before mutating.
package levelvector

import (
	"fmt"
	"strings"
)

// V is a LevelVector. Values are never negative or zero in a well-formed
// vector; Validate checks this.
type V []int

// New returns a copy of lvl as a V, so callers cannot mutate the caller's
// backing array through the returned value.
func New(lvl ...int) V {
	v := make(V, len(lvl))
	copy(v, lvl)
	return v
}

// Clone returns an independent copy.
func (v V) Clone() V {
	return New(v...)
}

// Dim returns the dimension d.
func (v V) Dim() int { return len(v) }

// Validate reports whether every component is a positive integer.
func (v V) Validate() error {
	if len(v) == 0 {
		return fmt.Errorf("levelvector: empty vector")
	}
	for i, c := range v {
		if c < 1 {
			return fmt.Errorf("levelvector: component %d = %d is not positive", i, c)
		}
	}
	return nil
}

// Equal reports componentwise equality.
func (v V) Equal(o V) bool {
	if len(v) != len(o) {
		return false
	}
	for i := range v {
		if v[i] != o[i] {
			return false
		}
	}
	return true
}

// Dominates reports whether v >= o componentwise (v dominates o).
func (v V) Dominates(o V) bool {
	if len(v) != len(o) {
		return false
	}
	for i := range v {
		if v[i] < o[i] {
			return false
		}
	}
	return true
}

// LessEq reports whether v <= o componentwise.
func (v V) LessEq(o V) bool {
	return o.Dominates(v)
}

// Max returns the componentwise maximum of v and o.
func Max(v, o V) V {
	m := make(V, len(v))
	for i := range v {
		if v[i] >= o[i] {
			m[i] = v[i]
		} else {
			m[i] = o[i]
		}
	}
	return m
}

// Min returns the componentwise minimum of v and o.
func Min(v, o V) V {
	m := make(V, len(v))
	for i := range v {
		if v[i] <= o[i] {
			m[i] = v[i]
		} else {
			m[i] = o[i]
		}
	}
	return m
}

// Sum returns the sum of the components (the total level, often used for
// sorting or as a sparse-grid cutoff).
func (v V) Sum() int {
	s := 0
	for _, c := range v {
		s += c
	}
	return s
}

// Less provides a deterministic total order (lexicographic) so that sets of
// LevelVectors can be sorted the same way on every participant — required
// for the common-subspace set to be produced in the same order on both
// systems of a third-level run.
func Less(a, b V) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// Key returns a canonical string form suitable for use as a map key.
func (v V) Key() string {
	parts := make([]string, len(v))
	for i, c := range v {
		parts[i] = fmt.Sprintf("%d", c)
	}
	return strings.Join(parts, ",")
}

func (v V) String() string {
	return "(" + v.Key() + ")"
}

// Enumerate returns every LevelVector lo <= sigma <= hi componentwise, in
// deterministic lexicographic order. Used by the scheme decomposer to walk
// the sparse grid at a given maximum level.
func Enumerate(lo, hi V) []V {
	d := len(hi)
	if d == 0 || len(lo) != d {
		return nil
	}
	var out []V
	cur := make(V, d)
	copy(cur, lo)
	var rec func(pos int)
	rec = func(pos int) {
		if pos == d {
			out = append(out, cur.Clone())
			return
		}
		for c := lo[pos]; c <= hi[pos]; c++ {
			cur[pos] = c
			rec(pos + 1)
		}
	}
	rec(0)
	return out
}
