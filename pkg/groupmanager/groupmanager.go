// Package groupmanager implements ProcessGroupManager (§4.F): the
// manager-side proxy for one process group. Every operation sends a signal
// to the group's workers, marks the group BUSY, and returns immediately;
// the caller polls GetStatus until it reports WAIT.
//
// A signal reaches every rank of the group at once — the manager's
// broadcast-to-master-then-re-broadcast-on-localComm path of §6 collapses
// to one send per worker inbox here, since there is no real network hop to
// save by routing through a single master first. What still genuinely
// needs localComm/globalComm collectives — and uses them — is the data
// each combine/DSGU step reduces, not the signal delivery itself.
package groupmanager

import (
	"runtime"
	"sync"

	"github.com/sgct-project/combi/pkg/config"
	"github.com/sgct-project/combi/pkg/errs"
	"github.com/sgct-project/combi/pkg/task"
	"github.com/sgct-project/combi/pkg/worker"
)

// ProcessGroupManager is the manager-side proxy for one process group.
type ProcessGroupManager struct {
	GroupID uint
	Workers []*worker.Worker

	mu      sync.Mutex
	pending int // acknowledgements not yet drained for the in-flight send
	lastErr error
}

// New builds a ProcessGroupManager over the given workers (one per rank of
// the group).
func New(groupID uint, workers []*worker.Worker) *ProcessGroupManager {
	return &ProcessGroupManager{GroupID: groupID, Workers: workers}
}

// GetStatus returns the group's aggregate status: BUSY while any
// acknowledgement from the most recent send is still outstanding, FAIL if
// any worker has reported failure, WAIT otherwise. Checking pending first —
// rather than only each worker's own StatusNow — closes the race where a
// send has returned but the targeted worker goroutine hasn't yet flipped
// its own status to BUSY.
func (gm *ProcessGroupManager) GetStatus() worker.Status {
	gm.mu.Lock()
	pending := gm.pending
	gm.mu.Unlock()
	if pending > 0 {
		return worker.Busy
	}
	agg := worker.Wait
	for _, w := range gm.Workers {
		switch w.StatusNow() {
		case worker.Fail:
			return worker.Fail
		case worker.Busy:
			agg = worker.Busy
		}
	}
	return agg
}

// LastError returns the most recently observed per-worker error, or nil.
func (gm *ProcessGroupManager) LastError() error {
	gm.mu.Lock()
	defer gm.mu.Unlock()
	return gm.lastErr
}

// send dispatches msg to every worker in the group and, for each one,
// starts a goroutine draining its Ready acknowledgement (recording any
// error) — the "sends a signal... and returns immediately" contract of
// §4.F. It does not block on completion; callers poll GetStatus.
func (gm *ProcessGroupManager) send(msg worker.Message) {
	gm.mu.Lock()
	gm.pending += len(gm.Workers)
	gm.mu.Unlock()

	for _, w := range gm.Workers {
		w := w
		w.Inbox() <- msg
		go func() {
			err := <-w.Ready()
			gm.mu.Lock()
			if err != nil {
				gm.lastErr = err
			}
			gm.pending--
			gm.mu.Unlock()
		}()
	}
}

// RunFirst sends RUN_FIRST with rec to every worker in the group.
func (gm *ProcessGroupManager) RunFirst(rec task.Record) {
	gm.send(worker.Message{Signal: worker.RunFirst, Payload: rec})
}

// RunNext sends RUN_NEXT.
func (gm *ProcessGroupManager) RunNext() {
	gm.send(worker.Message{Signal: worker.RunNext})
}

// Combine sends COMBINE (local-and-global combine, no third level).
func (gm *ProcessGroupManager) Combine() {
	gm.send(worker.Message{Signal: worker.Combine})
}

// CombineLocalAndGlobal is an alias for Combine, named to match the
// operation list of §4.F.
func (gm *ProcessGroupManager) CombineLocalAndGlobal() {
	gm.Combine()
}

// CombineThirdLevel sends COMBINE_THIRD_LEVEL with ex as the relay
// round-trip each group master performs.
func (gm *ProcessGroupManager) CombineThirdLevel(ex worker.ThirdLevelExchanger) {
	gm.send(worker.Message{Signal: worker.CombineThirdLevel, Payload: ex})
}

// InitDsgus sends INIT_DSGUS.
func (gm *ProcessGroupManager) InitDsgus() {
	gm.send(worker.Message{Signal: worker.InitDsgus})
}

// ReduceSubspaceSizesTL sends REDUCE_SUBSPACE_SIZES_TL with tlComm (nil for
// groups not part of the third-level reduce communicator).
func (gm *ProcessGroupManager) ReduceSubspaceSizesTL(tlComm interface{}) {
	gm.send(worker.Message{Signal: worker.ReduceSubspaceSizesTL, Payload: tlComm})
}

// WaitForTLSizeUpdate sends WAIT_FOR_TL_SIZE_UPDATE with the unified sizes.
func (gm *ProcessGroupManager) WaitForTLSizeUpdate(sizes []int) {
	gm.send(worker.Message{Signal: worker.WaitForTLSizeUpdate, Payload: sizes})
}

// GridEval sends GRID_EVAL.
func (gm *ProcessGroupManager) GridEval() {
	gm.send(worker.Message{Signal: worker.GridEval})
}

// ParallelEval sends PARALLEL_EVAL.
func (gm *ProcessGroupManager) ParallelEval() {
	gm.send(worker.Message{Signal: worker.ParallelEval})
}

// EvalNorm sends EVAL_NORM with spec. Each worker's result is collected
// after WaitIdle via its own NormResult (meaningful on the group's master
// worker, Workers[0]).
func (gm *ProcessGroupManager) EvalNorm(spec worker.NormSpec) {
	gm.send(worker.Message{Signal: worker.EvalNorm, Payload: spec})
}

// InterpolateValues sends INTERPOLATE_VALUES with coords. Each worker's
// result is collected after WaitIdle via its own InterpolatedValues
// (meaningful on the group's master worker, Workers[0]).
func (gm *ProcessGroupManager) InterpolateValues(coords [][]float64) {
	gm.send(worker.Message{Signal: worker.InterpolateValues, Payload: coords})
}

// UpdateCombiParameters sends UPDATE_COMBI_PARAMETERS with the encoded
// CombiParameters payload.
func (gm *ProcessGroupManager) UpdateCombiParameters(p config.CombiParameters) error {
	raw, err := config.EncodeCombiParameters(p)
	if err != nil {
		return err
	}
	gm.send(worker.Message{Signal: worker.UpdateCombiParameters, Payload: raw})
	return nil
}

// Exit sends EXIT.
func (gm *ProcessGroupManager) Exit() {
	gm.send(worker.Message{Signal: worker.Exit})
}

// WaitIdle busy-waits until the group's aggregate status is WAIT (or FAIL),
// per §5's "polling getStatus() is the caller's responsibility, busy-wait
// by design — groups are small, bounded by ncombi". Returns the group's
// last recorded per-worker error, if the group ended in FAIL.
func (gm *ProcessGroupManager) WaitIdle() error {
	for {
		switch gm.GetStatus() {
		case worker.Wait:
			return nil
		case worker.Fail:
			return errs.Wrap(errs.GroupFailure, gm.LastError(), "group failed")
		}
		runtime.Gosched()
	}
}
