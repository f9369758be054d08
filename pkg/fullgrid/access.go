package fullgrid

import "github.com/sgct-project/combi/pkg/hierarchy"

// GetData returns the local data buffer (mutable; the caller owns in-place
// edits, matching the external contract of §4.B).
func (d *DFG) GetData() []float64 {
	return d.Data
}

// GetDecomposition returns, per dimension, the per-dimension partition
// points (cut points) of the Cartesian decomposition — spec §3's "per
// dimension partition points".
func (d *DFG) GetDecomposition() [][]int {
	dec := make([][]int, d.Level.Dim())
	for k := range dec {
		dec[k] = blockStarts(d.globalShape[k], d.procsPerDim[k])
	}
	return dec
}

// localMultiIndex converts a local linear index into local per-dimension
// coordinates (row-major).
func (d *DFG) localMultiIndex(i int) []int {
	dims := d.localShape
	idx := make([]int, len(dims))
	for k := len(dims) - 1; k >= 0; k-- {
		idx[k] = i % dims[k]
		i /= dims[k]
	}
	return idx
}

// GetCoordsLocal returns the physical coordinates in [0,1]^d of the local
// grid point at linear index i.
func (d *DFG) GetCoordsLocal(i int) []float64 {
	local := d.localMultiIndex(i)
	coords := make([]float64, len(local))
	for k, li := range local {
		gi := d.localOffset[k] + li
		coords[k] = position(gi, d.Level[k], d.Boundary[k])
	}
	return coords
}

func position(i, l int, boundary bool) float64 {
	n := hierarchy.NodalSize(l, boundary)
	if boundary {
		return float64(i) / float64(n-1)
	}
	return float64(i+1) / float64(int(1)<<uint(l))
}

// SetZero zeroes the local data buffer.
func (d *DFG) SetZero() {
	for i := range d.Data {
		d.Data[i] = 0
	}
}

// GlobalShape returns the nodal point count per dimension.
func (d *DFG) GlobalShape() []int { return append([]int(nil), d.globalShape...) }

// LocalShape returns this rank's local box shape per dimension.
func (d *DFG) LocalShape() []int { return append([]int(nil), d.localShape...) }

// LocalOffset returns this rank's local box's starting global index per dimension.
func (d *DFG) LocalOffset() []int { return append([]int(nil), d.localOffset...) }

// GlobalMultiIndex converts a global linear row-major index (over
// GlobalShape) into per-dimension global coordinates.
func GlobalMultiIndex(i int, shape []int) []int {
	idx := make([]int, len(shape))
	for k := len(shape) - 1; k >= 0; k-- {
		idx[k] = i % shape[k]
		i /= shape[k]
	}
	return idx
}

// GlobalLinearIndex is the inverse of GlobalMultiIndex.
func GlobalLinearIndex(idx, shape []int) int {
	li := 0
	for k := 0; k < len(idx); k++ {
		li = li*shape[k] + idx[k]
	}
	return li
}
