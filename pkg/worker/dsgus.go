package worker

import (
	"github.com/sgct-project/combi/pkg/errs"
	"github.com/sgct-project/combi/pkg/mpi"
	"github.com/sgct-project/combi/pkg/sparsegrid"
)

// initDSGUs handles INIT_DSGUS: allocate the group's DSG, derive its
// subspace sizes, and unify them across groups over the global-reduce
// comm.
//
// In this implementation a subspace's size is a pure function of its level
// vector and the run's boundary configuration (hierarchy.LevelSize), so
// every group already computes identical sizes without needing any local
// DFG to tell it so — unlike the source, where a subspace belonging to a
// grid finer than a group's own tasks might only be discoverable by
// inspecting those tasks' actual decompositions. The all-reduce below is
// therefore idempotent here, but it is still performed (elementwise max,
// which is a no-op when every input already agrees) so the operation
// exercises the same communicator path a more elaborate size-discovery
// rule would need.
func (w *Worker) initDSGUs() error {
	if w.Params == nil {
		return errs.New(errs.MPIFailure, "worker: INIT_DSGUS before UPDATE_COMBI_PARAMETERS")
	}
	w.DSG = sparsegrid.New(w.Params.LMax, w.Params.Boundary, w.Params.ElementType)

	sizes := intsToFloats(w.DSG.GetSubspaceDataSizes())
	if w.IsMaster {
		sizes = w.GlobalComm.AllreduceMax(sizes)
	}
	sizes = w.LocalComm.BcastFloats(w.MasterRank, sizes)
	w.DSG.SetSubspaceDataSizes(floatsToInts(sizes))

	w.DSG.Allocate()
	w.DSG.Zero()
	return nil
}

// reduceSubspaceSizesTL handles REDUCE_SUBSPACE_SIZES_TL: only ranks that
// are part of the third-level reduce communicator (the designated manager
// and its own group) participate; tlComm is nil for everyone else, in
// which case this is a no-op (those groups get the update separately via
// WAIT_FOR_TL_SIZE_UPDATE).
func (w *Worker) reduceSubspaceSizesTL(tlComm *mpi.Comm) error {
	if tlComm == nil {
		return nil
	}
	if w.DSG == nil {
		return errs.New(errs.MPIFailure, "worker: REDUCE_SUBSPACE_SIZES_TL before INIT_DSGUS")
	}
	sizes := intsToFloats(w.DSG.GetSubspaceDataSizes())
	if w.IsMaster {
		sizes = tlComm.AllreduceMax(sizes)
	}
	sizes = w.LocalComm.BcastFloats(w.MasterRank, sizes)
	w.DSG.SetSubspaceDataSizes(floatsToInts(sizes))
	w.DSG.Allocate()
	w.DSG.Zero()
	return nil
}

// waitForTLSizeUpdate handles WAIT_FOR_TL_SIZE_UPDATE: every group, the
// designated one included, receives the sizes ProcessManager unified with
// the peer system over the relay (starting from the designated group's
// REDUCE_SUBSPACE_SIZES_TL result), pushed directly in the Message
// payload, and resizes its own DSG to match.
func (w *Worker) waitForTLSizeUpdate(sizes []int) error {
	if w.DSG == nil {
		return errs.New(errs.MPIFailure, "worker: WAIT_FOR_TL_SIZE_UPDATE before INIT_DSGUS")
	}
	w.DSG.SetSubspaceDataSizes(sizes)
	w.DSG.Allocate()
	w.DSG.Zero()
	return nil
}

func intsToFloats(ints []int) []float64 {
	out := make([]float64, len(ints))
	for i, v := range ints {
		out[i] = float64(v)
	}
	return out
}

func floatsToInts(floats []float64) []int {
	out := make([]int, len(floats))
	for i, v := range floats {
		out[i] = int(v)
	}
	return out
}

