package sparsegrid

import (
	"github.com/sgct-project/combi/pkg/fullgrid"
	"github.com/sgct-project/combi/pkg/hierarchy"
	"github.com/sgct-project/combi/pkg/levelvector"
	"github.com/sgct-project/combi/pkg/mpi"
)

// AddDFG scatters a task's hierarchised DFG into this DSG, weighted by the
// task's combination coefficient: combine pipeline step 3 of §4.E. dfg must
// already be in the hierarchical basis (Hierarchize called first). Only the
// rank's local box is touched — points owned by other ranks in the same
// group are left untouched here and reconciled by ReduceLocal.
func (g *DSG) AddDFG(dfg *fullgrid.DFG, coeff float64) {
	local := dfg.LocalShape()
	offset := dfg.LocalOffset()
	level := dfg.Level
	boundary := dfg.Boundary
	w := g.width()
	data := dfg.GetData()

	forEachIndex(local, func(li []int) {
		gi := make([]int, len(li))
		sigma := make(levelvector.V, len(li))
		pos := make([]int, len(li))
		size := make([]int, len(li))
		for k := range li {
			gi[k] = offset[k] + li[k]
			lvl, p, sz := hierarchy.LevelOf(gi[k], level[k], boundary[k])
			sigma[k] = lvl
			pos[k] = p
			size[k] = sz
		}
		buf := g.SubspaceData(sigma)
		if buf == nil {
			return
		}
		dst := rowMajorIndex(pos, size)
		src := rowMajorIndex(li, local)
		for c := 0; c < w; c++ {
			buf[dst*w+c] += coeff * data[src*w+c]
		}
	})
}

// ExtractToDFG is the inverse of AddDFG: it adds the values found in this
// DSG's subspaces, weighted by coeff, into dfg's local box (callers zero
// the DFG first to get the DSG's values alone) — combine
// pipeline step 6 of §4.E (the group's combined solution is gathered back
// into each task's own hierarchical grid, then dehierarchised by the
// caller).
func (g *DSG) ExtractToDFG(dfg *fullgrid.DFG, coeff float64) {
	local := dfg.LocalShape()
	offset := dfg.LocalOffset()
	level := dfg.Level
	boundary := dfg.Boundary
	w := g.width()
	data := dfg.GetData()

	forEachIndex(local, func(li []int) {
		gi := make([]int, len(li))
		sigma := make(levelvector.V, len(li))
		pos := make([]int, len(li))
		size := make([]int, len(li))
		for k := range li {
			gi[k] = offset[k] + li[k]
			lvl, p, sz := hierarchy.LevelOf(gi[k], level[k], boundary[k])
			sigma[k] = lvl
			pos[k] = p
			size[k] = sz
		}
		buf := g.SubspaceData(sigma)
		if buf == nil {
			return
		}
		src := rowMajorIndex(pos, size)
		dst := rowMajorIndex(li, local)
		for c := 0; c < w; c++ {
			data[dst*w+c] += coeff * buf[src*w+c]
		}
	})
}

// ReduceLocal all-reduces this DSG's buffers over a process group's intra-
// group communicator, combining the disjoint per-rank contributions AddDFG
// left behind (each rank's Cartesian box covers different subspace
// positions) into one identical, complete copy of the group's DSG on every
// rank of the group. This happens before the inter-group reduce of
// ReduceGlobal — the combine pipeline's "local-and-global combine" named by
// ProcessGroupManager.combineLocalAndGlobal in §5.
func (g *DSG) ReduceLocal(localComm *mpi.Comm) {
	g.Unflatten(localComm.Allreduce(g.Flatten()))
}

// ReduceGlobal all-reduces this DSG's buffers over the inter-group
// communicator (only group masters participate) and broadcasts the result
// back out to the rest of each master's own group — combine pipeline step 4
// of §4.E, "All-reduce the DSG buffers over the global inter-group
// communicator".
func (g *DSG) ReduceGlobal(globalComm, localComm *mpi.Comm, isMaster bool, masterRank int) {
	if isMaster {
		g.Unflatten(globalComm.Allreduce(g.Flatten()))
	}
	g.Unflatten(localComm.BcastFloats(masterRank, g.Flatten()))
}

func rowMajorIndex(idx, shape []int) int {
	li := 0
	for k := range idx {
		li = li*shape[k] + idx[k]
	}
	return li
}

func forEachIndex(shape []int, fn func(idx []int)) {
	d := len(shape)
	idx := make([]int, d)
	for {
		fn(idx)
		pos := d - 1
		for pos >= 0 {
			idx[pos]++
			if idx[pos] < shape[pos] {
				break
			}
			idx[pos] = 0
			pos--
		}
		if pos < 0 {
			break
		}
	}
}
