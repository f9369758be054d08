package worker

import (
	"github.com/sgct-project/combi/pkg/errs"
)

// combine runs the six-step combine pipeline of §4.E. When ex is non-nil
// the worker additionally participates in the third-level exchange
// (COMBINE_THIRD_LEVEL); otherwise it's a local-and-global-only combine
// (COMBINE). Only the group master calls ex.Exchange and only the master
// holds GlobalComm, matching §5's communicator ownership.
func (w *Worker) combine(ex ThirdLevelExchanger) error {
	if w.DSG == nil {
		return errs.New(errs.MPIFailure, "worker: combine called before INIT_DSGUS")
	}

	// 1. Zero DSGs.
	w.DSG.Zero()

	// 2-3. Hierarchise each task's DFGs and scatter into the DSG, weighted
	// by the task's coefficient.
	for _, t := range w.Tasks {
		for g := 0; g < t.NumGrids(); g++ {
			dfg := t.GetDistributedFullGrid(g)
			dfg.Hierarchize(w.LocalComm)
			w.DSG.AddDFG(dfg, t.Coeff)
		}
	}

	// Reconcile the disjoint per-rank contributions within the group before
	// the inter-group reduce — see ReduceLocal's doc comment.
	w.DSG.ReduceLocal(w.LocalComm)

	// 4. All-reduce over the global inter-group communicator.
	w.DSG.ReduceGlobal(w.GlobalComm, w.LocalComm, w.IsMaster, w.MasterRank)

	// 5. Third-level exchange, if requested.
	if ex != nil {
		if err := w.exchangeThirdLevel(ex); err != nil {
			if !errs.Is(err, errs.RelayFailure) {
				return err
			}
			w.Log.Log("group", w.GroupID, "err", err, "third-level exchange failed, continuing with local+global reduction only")
		}
	}

	// 6. Overwrite each DFG from the combined DSG and dehierarchise.
	for _, t := range w.Tasks {
		for g := 0; g < t.NumGrids(); g++ {
			dfg := t.GetDistributedFullGrid(g)
			dfg.SetZero()
			w.DSG.ExtractToDFG(dfg, 1.0)
			dfg.Dehierarchize(w.LocalComm)
		}
	}
	return nil
}

// exchangeThirdLevel runs the master's side of the relay handshake and
// pushes the combined result back out to the rest of the group — per §4.G,
// only the designated manager (here: the group master acting for its
// group) talks to the relay. Only the CommonSubspaceSet crosses the relay
// (§2, §4.G step 3, §6) — this is gatherCommonSubspaces's data path (§4.F):
// the whole-DSG flatten used intra-system for the local/global reduce would
// leak non-shared subspace data across systems and defeats the minimised
// inter-system data volume the module exists for.
func (w *Worker) exchangeThirdLevel(ex ThirdLevelExchanger) error {
	order := w.Params.CommonSubspaces
	var combined []float64
	if w.IsMaster {
		local := w.DSG.FlattenSubspaces(order)
		var err error
		combined, err = ex.Exchange(local)
		if err != nil {
			return errs.Wrap(errs.RelayFailure, err, "worker: third-level exchange")
		}
	}
	flat := w.LocalComm.BcastFloats(w.MasterRank, combined)
	w.DSG.UnflattenSubspaces(order, flat)
	return nil
}
