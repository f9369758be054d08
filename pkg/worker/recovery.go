package worker

import (
	"github.com/sgct-project/combi/pkg/errs"
	"github.com/sgct-project/combi/pkg/fullgrid"
	"github.com/sgct-project/combi/pkg/task"
)

// recoverOrExclude implements §7's TaskFailure policy: a failed task is
// either re-initialised from the group's current combined solution
// (setCombinedSolutionUniform, when fault tolerance is enabled and the
// group already has an allocated DSG to draw from) or excluded from
// subsequent combines by zeroing its coefficient. Either way the task
// itself is marked Failed first so AddDFG/ExtractToDFG bookkeeping never
// observes a half-recovered state; recovery then brings it back to Created.
func (w *Worker) recoverOrExclude(t *task.Task) error {
	t.SetFailed()

	if w.Cfg != nil && w.Cfg.EnableFaultTolerance && w.DSG != nil && w.DSG.IsAllocated() {
		t.SetCombinedSolutionUniform(func(dfg *fullgrid.DFG) {
			w.DSG.ExtractToDFG(dfg, 1.0)
			dfg.Dehierarchize(w.LocalComm)
		})
		w.Log.Log("task", t.GetID(), "recovered from combined solution")
		return nil
	}

	t.Coeff = 0
	t.Exclude()
	w.Log.Log("task", t.GetID(), "excluded from subsequent combines")
	return errs.New(errs.TaskFailure, "worker: task %s excluded, no recovery available", t.GetID())
}
