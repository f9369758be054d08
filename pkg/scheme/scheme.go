// Package scheme implements the CombiScheme data model and the
// SchemeDecomposer: splitting a classical combination scheme across two
// HPC systems and computing the sparse-grid subspaces the two parts share.
package scheme

import (
	"math"
	"sort"

	"github.com/sgct-project/combi/pkg/errs"
	"github.com/sgct-project/combi/pkg/levelvector"
)

// Term is one (level, coefficient) pair of a combination scheme.
type Term struct {
	Level levelvector.V
	Coeff float64
	// Group, when >= 0, is the static process-group assignment for this
	// term's task (see the scheme-file format in pkg/scheme/schemefile.go).
	// -1 means dynamic assignment.
	Group int
}

// Scheme is a finite list of (LevelVector, coefficient) pairs.
type Scheme struct {
	Dim      int
	Boundary []bool // per-dimension boundary flag
	Terms    []Term
}

const coeffSumTolerance = 1e-9

// Validate checks the invariants of §3/§8: the scheme is non-empty, every
// level vector has the scheme's dimension, no level vector repeats, and the
// coefficients sum to 1 (the maximum-level completeness invariant).
func Validate(s Scheme) error {
	if len(s.Terms) == 0 {
		return errs.New(errs.InvalidScheme, "scheme has no terms")
	}
	if s.Dim <= 0 {
		return errs.New(errs.InvalidScheme, "scheme dimension must be positive, got %d", s.Dim)
	}
	seen := make(map[string]bool, len(s.Terms))
	sum := 0.0
	for _, t := range s.Terms {
		if t.Level.Dim() != s.Dim {
			return errs.New(errs.InvalidScheme, "term level %s has dimension %d, scheme dimension is %d", t.Level, t.Level.Dim(), s.Dim)
		}
		if err := t.Level.Validate(); err != nil {
			return errs.Wrap(errs.InvalidScheme, err, "invalid level vector")
		}
		key := t.Level.Key()
		if seen[key] {
			return errs.New(errs.InvalidScheme, "duplicate level vector %s", t.Level)
		}
		seen[key] = true
		sum += t.Coeff
	}
	if math.Abs(sum-1.0) > coeffSumTolerance {
		return errs.New(errs.InvalidScheme, "coefficients sum to %g, expected 1", sum)
	}
	return nil
}

// MaxLevel returns the componentwise maximum level vector across all terms.
func MaxLevel(s Scheme) levelvector.V {
	max := s.Terms[0].Level.Clone()
	for _, t := range s.Terms[1:] {
		max = levelvector.Max(max, t.Level)
	}
	return max
}

// SortedCopy returns a copy of s with Terms in a deterministic order
// (lexicographic by level vector), which is the order the midpoint-split
// decomposition policy operates over.
func SortedCopy(s Scheme) Scheme {
	out := Scheme{Dim: s.Dim, Boundary: append([]bool(nil), s.Boundary...), Terms: append([]Term(nil), s.Terms...)}
	sort.Slice(out.Terms, func(i, j int) bool {
		return levelvector.Less(out.Terms[i].Level, out.Terms[j].Level)
	})
	return out
}
