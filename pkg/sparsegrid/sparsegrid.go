// Package sparsegrid implements the DistributedSparseGrid (DSG): the union
// of hierarchical subspaces used by a process group's combined solution.
// Per §4.B the core only needs getSize, getSubspaceDataSizes,
// setSubspaceDataSizes, allocate, zero and deallocate from a DSG; this
// package supplies the concrete implementation for the same reason
// pkg/fullgrid does (no external numerical-kernel library exists in this
// standalone module).
package sparsegrid

import (
	"sort"

	"github.com/sgct-project/combi/pkg/fullgrid"
	"github.com/sgct-project/combi/pkg/hierarchy"
	"github.com/sgct-project/combi/pkg/levelvector"
)

// DSG holds one process group's combined hierarchical subspaces.
type DSG struct {
	Dim         int
	Boundary    []bool
	MaxLevel    levelvector.V
	ElementType fullgrid.ElementType

	order []levelvector.V  // deterministic subspace order
	index map[string]int   // level key -> position in order/sizes/data
	sizes []int            // scalar point count per subspace (not width-scaled)
	data  [][]float64      // per-subspace buffers (width-scaled); nil until Allocate
}

// New builds a DSG covering every subspace sigma <= maxLevel componentwise,
// in deterministic lexicographic order, with sizes computed from the
// standard hierarchical-level point counts of pkg/hierarchy.
func New(maxLevel levelvector.V, boundary []bool, et fullgrid.ElementType) *DSG {
	dim := maxLevel.Dim()
	lo := make(levelvector.V, dim)
	for i := range lo {
		lo[i] = 1
	}
	order := levelvector.Enumerate(lo, maxLevel)
	sort.Slice(order, func(i, j int) bool { return levelvector.Less(order[i], order[j]) })

	g := &DSG{
		Dim:         dim,
		Boundary:    append([]bool(nil), boundary...),
		MaxLevel:    maxLevel.Clone(),
		ElementType: et,
		order:       order,
		index:       make(map[string]int, len(order)),
		sizes:       make([]int, len(order)),
	}
	for i, lvl := range order {
		g.index[lvl.Key()] = i
		sz := 1
		for k, l := range lvl {
			sz *= hierarchy.LevelSize(l, boundary[k])
		}
		g.sizes[i] = sz
	}
	return g
}

func (g *DSG) width() int {
	if g.ElementType == fullgrid.Complex {
		return 2
	}
	return 1
}

// Subspaces returns the deterministic subspace order.
func (g *DSG) Subspaces() []levelvector.V {
	return append([]levelvector.V(nil), g.order...)
}

// GetSize returns the total number of scalar elements across every
// subspace (point count, not byte count).
func (g *DSG) GetSize() int {
	total := 0
	for _, s := range g.sizes {
		total += s
	}
	return total
}

// GetSubspaceDataSizes returns the point count of each subspace, in the
// deterministic subspace order.
func (g *DSG) GetSubspaceDataSizes() []int {
	return append([]int(nil), g.sizes...)
}

// SetSubspaceDataSizes overwrites the per-subspace sizes (used after the
// third-level size-unification handshake of REDUCE_SUBSPACE_SIZES_TL /
// WAIT_FOR_TL_SIZE_UPDATE). Existing allocated data is discarded — callers
// must Allocate and Zero again.
func (g *DSG) SetSubspaceDataSizes(sizes []int) {
	g.sizes = append([]int(nil), sizes...)
	g.data = nil
}

// Allocate allocates (or re-allocates, if sizes changed) every subspace
// buffer.
func (g *DSG) Allocate() {
	w := g.width()
	g.data = make([][]float64, len(g.order))
	for i, sz := range g.sizes {
		g.data[i] = make([]float64, sz*w)
	}
}

// Zero zeroes every subspace buffer.
func (g *DSG) Zero() {
	for _, buf := range g.data {
		for i := range buf {
			buf[i] = 0
		}
	}
}

// Deallocate releases every subspace buffer.
func (g *DSG) Deallocate() {
	g.data = nil
}

// IsAllocated reports whether Allocate has been called since the last
// Deallocate/SetSubspaceDataSizes.
func (g *DSG) IsAllocated() bool {
	return g.data != nil
}

// SubspaceData returns the buffer for the subspace at level sigma, or nil
// if sigma is not covered by this DSG's maximum level.
func (g *DSG) SubspaceData(sigma levelvector.V) []float64 {
	i, ok := g.index[sigma.Key()]
	if !ok || g.data == nil {
		return nil
	}
	return g.data[i]
}

// Flatten concatenates every subspace buffer, in subspace order, into a
// single slice — the layout the global/local/third-level communicators
// reduce, broadcast and gather over.
func (g *DSG) Flatten() []float64 {
	total := 0
	for _, buf := range g.data {
		total += len(buf)
	}
	out := make([]float64, 0, total)
	for _, buf := range g.data {
		out = append(out, buf...)
	}
	return out
}

// Unflatten is the inverse of Flatten: it copies flat back into the
// per-subspace buffers (which must already be sized correctly).
func (g *DSG) Unflatten(flat []float64) {
	off := 0
	for _, buf := range g.data {
		copy(buf, flat[off:off+len(buf)])
		off += len(buf)
	}
}

// FlattenSubspaces concatenates only the subspace buffers named by order,
// in that order — the restricted view COMBINE_THIRD_LEVEL exchanges with
// the peer system (§2, §4.G step 3), as opposed to Flatten's whole-DSG view
// used by the intra-system local/global reduce. A level in order this DSG
// doesn't cover contributes nothing (skipped, not zero-padded), since the
// two systems' common-subspace sets are defined to be identical in extent.
func (g *DSG) FlattenSubspaces(order []levelvector.V) []float64 {
	total := 0
	bufs := make([][]float64, 0, len(order))
	for _, sigma := range order {
		buf := g.SubspaceData(sigma)
		if buf == nil {
			continue
		}
		bufs = append(bufs, buf)
		total += len(buf)
	}
	out := make([]float64, 0, total)
	for _, buf := range bufs {
		out = append(out, buf...)
	}
	return out
}

// UnflattenSubspaces is the inverse of FlattenSubspaces: it copies flat
// back into the buffers of the subspaces named by order, in that order.
func (g *DSG) UnflattenSubspaces(order []levelvector.V, flat []float64) {
	off := 0
	for _, sigma := range order {
		buf := g.SubspaceData(sigma)
		if buf == nil {
			continue
		}
		copy(buf, flat[off:off+len(buf)])
		off += len(buf)
	}
}
