// Package fullgrid implements the DistributedFullGrid (DFG): a
// Cartesian-decomposed dense grid for one component. Per §4.B, the core
// only needs nrLocalElements, getCoordsLocal, getData, gatherFullGrid and
// getDecomposition from a DFG; this package supplies a concrete
// implementation since the numerical kernels themselves are external to
// the coordination core (§1) but something must exist for the core's own
// tests to drive.
package fullgrid

import (
	"github.com/sgct-project/combi/pkg/hierarchy"
	"github.com/sgct-project/combi/pkg/levelvector"
)

// ElementType selects the grid's scalar type, per the configuration struct
// of §9.
type ElementType int

// Element type values.
const (
	Real ElementType = iota
	Complex
)

// DFG is a Cartesian-decomposed dense grid for one component (one Task).
// Complex elements are carried as interleaved (real, imag) float64 pairs in
// Data so the same buffer type serves both element types throughout the
// engine (the relay wire format of §6 does the same).
type DFG struct {
	Level       levelvector.V
	Boundary    []bool
	ElementType ElementType

	procsPerDim []int
	cartCoords  []int
	globalShape []int // nodal points per dimension
	localShape  []int
	localOffset []int // first global index per dimension owned by this rank

	Data []float64
}

func scalarWidth(et ElementType) int {
	if et == Complex {
		return 2
	}
	return 1
}

// New builds the DFG for the given level/boundary, decomposed across a
// Cartesian grid of procsPerDim ranks, for the rank at cartesian index
// `rank` within that grid (row-major over procsPerDim).
func New(level levelvector.V, boundary []bool, et ElementType, procsPerDim []int, rank int) *DFG {
	d := level.Dim()
	g := &DFG{
		Level:       level.Clone(),
		Boundary:    append([]bool(nil), boundary...),
		ElementType: et,
		procsPerDim: append([]int(nil), procsPerDim...),
		globalShape: make([]int, d),
	}
	for k := 0; k < d; k++ {
		g.globalShape[k] = hierarchy.NodalSize(level[k], boundary[k])
	}
	g.cartCoords = unrankCartesian(rank, procsPerDim)
	g.localShape = make([]int, d)
	g.localOffset = make([]int, d)
	for k := 0; k < d; k++ {
		starts := blockStarts(g.globalShape[k], procsPerDim[k])
		c := g.cartCoords[k]
		g.localOffset[k] = starts[c]
		g.localShape[k] = starts[c+1] - starts[c]
	}
	n := scalarWidth(et)
	for _, s := range g.localShape {
		n *= s
	}
	g.Data = make([]float64, n)
	return g
}

// unrankCartesian converts a flat rank index into its row-major coordinate
// within a grid of the given per-dimension process counts.
func unrankCartesian(rank int, procsPerDim []int) []int {
	d := len(procsPerDim)
	coords := make([]int, d)
	for k := d - 1; k >= 0; k-- {
		coords[k] = rank % procsPerDim[k]
		rank /= procsPerDim[k]
	}
	return coords
}

// blockStarts returns p+1 cut points splitting n points into p
// near-even contiguous blocks.
func blockStarts(n, p int) []int {
	starts := make([]int, p+1)
	base := n / p
	rem := n % p
	acc := 0
	for i := 0; i < p; i++ {
		starts[i] = acc
		sz := base
		if i < rem {
			sz++
		}
		acc += sz
	}
	starts[p] = n
	return starts
}

// NrLocalElements returns the number of scalar grid points owned locally
// (not counting the real/imag width of complex elements).
func (d *DFG) NrLocalElements() int {
	n := 1
	for _, s := range d.localShape {
		n *= s
	}
	return n
}
