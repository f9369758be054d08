package scheme

import (
	"sort"

	"github.com/sgct-project/combi/pkg/errs"
	"github.com/sgct-project/combi/pkg/levelvector"
)

// DecomposeAll splits full across systemCount systems and computes the
// common-subspace set shared by every part, per §4.A.
//
// The decomposition policy for S=2 is the trivial midpoint split required
// by the specification: sort the input list, lower half to system 0, upper
// half to system 1. It is correct but not optimal — swap in a smarter
// partitioner here as long as the output contract holds (parts disjoint,
// union equal to the input) and the common-subspace computation below is
// left untouched.
//
// S > 2 is an open problem left unimplemented upstream; DecomposeAll
// reports an error rather than guessing at an unverified algorithm.
func DecomposeAll(full Scheme, systemCount int) (parts []Scheme, common []levelvector.V, err error) {
	if len(full.Terms) == 0 {
		return nil, nil, errs.New(errs.InvalidScheme, "cannot decompose an empty scheme")
	}
	if systemCount < 2 {
		// "If S < 2, no decomposition is performed."
		return []Scheme{full}, nil, nil
	}
	if systemCount > 2 {
		return nil, nil, errs.New(errs.InvalidScheme, "decomposeScheme for S=%d is unimplemented (S>2 is an open problem)", systemCount)
	}

	sorted := SortedCopy(full)
	mid := len(sorted.Terms) / 2
	part0 := Scheme{Dim: sorted.Dim, Boundary: sorted.Boundary, Terms: sorted.Terms[:mid]}
	part1 := Scheme{Dim: sorted.Dim, Boundary: sorted.Boundary, Terms: sorted.Terms[mid:]}
	parts = []Scheme{part0, part1}

	common = commonSubspaces(sorted.Dim, parts)
	return parts, common, nil
}

// Decompose is a convenience wrapper returning the part owned by one
// system index, plus the (system-index-independent) common-subspace set.
func Decompose(full Scheme, systemIndex, systemCount int) (part Scheme, common []levelvector.V, err error) {
	parts, common, err := DecomposeAll(full, systemCount)
	if err != nil {
		return Scheme{}, nil, err
	}
	if systemCount < 2 {
		return parts[0], common, nil
	}
	if systemIndex < 0 || systemIndex >= len(parts) {
		return Scheme{}, nil, errs.New(errs.InvalidScheme, "system index %d out of range [0,%d)", systemIndex, len(parts))
	}
	return parts[systemIndex], common, nil
}

// commonSubspaces implements the computation of §4.A: for each dimension,
// L_s[d] is the max level held by system s; M[d] is the min over systems of
// L_s[d]; every subspace sigma <= M that is dominated by at least one level
// in every system's part is retained.
func commonSubspaces(dim int, parts []Scheme) []levelvector.V {
	maxPerPart := make([]levelvector.V, len(parts))
	for i, p := range parts {
		l := make(levelvector.V, dim)
		for _, t := range p.Terms {
			l = levelvector.Max(l, t.Level)
		}
		maxPerPart[i] = l // zero vector if the part is empty
	}
	m := maxPerPart[0]
	for _, l := range maxPerPart[1:] {
		m = levelvector.Min(m, l)
	}

	lo := make(levelvector.V, dim)
	for i := range lo {
		lo[i] = 1
	}

	candidates := levelvector.Enumerate(lo, m)
	var out []levelvector.V
	for _, sigma := range candidates {
		retained := true
		for _, p := range parts {
			dominated := false
			for _, t := range p.Terms {
				if t.Level.Dominates(sigma) {
					dominated = true
					break
				}
			}
			if !dominated {
				retained = false
				break
			}
		}
		if retained {
			out = append(out, sigma)
		}
	}
	// deterministic order, stable across both systems (invariant 3 of §8).
	sort.Slice(out, func(i, j int) bool { return levelvector.Less(out[i], out[j]) })
	return out
}
