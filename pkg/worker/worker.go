package worker

import (
	"math"
	"math/rand"
	"sync"

	"github.com/sgct-project/combi/pkg/clog"
	"github.com/sgct-project/combi/pkg/config"
	"github.com/sgct-project/combi/pkg/errs"
	"github.com/sgct-project/combi/pkg/mpi"
	"github.com/sgct-project/combi/pkg/sparsegrid"
	"github.com/sgct-project/combi/pkg/task"
)

// ThirdLevelExchanger is the capability a CombineThirdLevel payload must
// supply: a blocking round-trip of this system's common-subspace slice with
// the relay-mediated peer system, per §4.G. pkg/thirdlevel.Client
// implements this; the interface lives here (rather than an import of that
// package) so worker never depends on the network transport it drives.
type ThirdLevelExchanger interface {
	Exchange(local []float64) (combined []float64, err error)
}

// Worker is one rank's ProcessGroupWorker.
type Worker struct {
	GroupID    uint
	Rank       int
	IsMaster   bool
	MasterRank int

	LocalComm  *mpi.Comm
	GlobalComm *mpi.Comm // nil unless IsMaster

	Registry *task.Registry
	Cfg      *config.Config
	Log      clog.Logger

	Tasks  []*task.Task
	DSG    *sparsegrid.DSG
	Params *config.CombiParameters

	StaticAssignment bool
	StaticGroups     map[uint][]task.Record // group -> records, from a scheme file (§4.H)

	lastInterpolated []float64
	lastNorm         float64

	statusMu sync.Mutex
	status   Status

	inbox        chan Message
	ready        chan error
	pendingReady error
	havePending  bool
}

// New builds a worker for one rank of one group. log may be nil, in which
// case a discarding logger is used.
func New(groupID uint, rank int, isMaster bool, masterRank int, localComm, globalComm *mpi.Comm, reg *task.Registry, cfg *config.Config, log clog.Logger) *Worker {
	if log == nil {
		log = clog.Discard()
	}
	return &Worker{
		GroupID:    groupID,
		Rank:       rank,
		IsMaster:   isMaster,
		MasterRank: masterRank,
		LocalComm:  localComm,
		GlobalComm: globalComm,
		Registry:   reg,
		Cfg:        cfg,
		Log:        log,
		status:     Wait,
		inbox:      make(chan Message),
		ready:      make(chan error, 1),
	}
}

// Inbox is the send side of the worker's signal channel, given to the
// owning ProcessGroupManager.
func (w *Worker) Inbox() chan<- Message { return w.inbox }

// Ready is the channel a Message's sender reads from to learn when the
// worker has returned to WAIT (or FAIL) — the "READY" acknowledgement of
// §4.E, unless omitReadySignal defers it to an explicit SendReady call.
func (w *Worker) Ready() <-chan error { return w.ready }

// Wait blocks until a Message arrives, per the `wait() → Signal` contract
// of §4.E.
func (w *Worker) Wait() Message { return <-w.inbox }

// StatusNow returns the worker's current status, safe to call
// concurrently with Run — ProcessGroupManager's getStatus polls this.
func (w *Worker) StatusNow() Status {
	w.statusMu.Lock()
	defer w.statusMu.Unlock()
	return w.status
}

func (w *Worker) setStatus(s Status) {
	w.statusMu.Lock()
	w.status = s
	w.statusMu.Unlock()
}

// Run is the worker's main loop: Wait, dispatch, report, repeat, until
// EXIT. Intended to run in its own goroutine — one per rank, matching the
// single-threaded-per-rank model of §5.
func (w *Worker) Run() {
	for {
		msg := w.Wait()
		w.setStatus(Busy)
		err := w.dispatch(msg)
		if err != nil && errs.KindOf(err) == errs.TaskFailure {
			w.setStatus(Fail)
		} else {
			w.setStatus(Wait)
		}

		if msg.Signal == Exit {
			w.ready <- err
			return
		}
		if w.Cfg != nil && w.Cfg.OmitReadySignal {
			w.pendingReady = err
			w.havePending = true
			continue
		}
		w.ready <- err
	}
}

// SendReady flushes a pending acknowledgement withheld by omitReadySignal.
// No-op if nothing is pending.
func (w *Worker) SendReady() {
	if !w.havePending {
		return
	}
	w.havePending = false
	w.ready <- w.pendingReady
}

func (w *Worker) dispatch(msg Message) error {
	switch msg.Signal {
	case RunFirst:
		rec, _ := msg.Payload.(task.Record)
		return w.runFirst(rec)
	case RunNext:
		return w.runNext()
	case Combine:
		return w.combine(nil)
	case InitDsgus:
		return w.initDSGUs()
	case CombineThirdLevel:
		ex, _ := msg.Payload.(ThirdLevelExchanger)
		return w.combine(ex)
	case ReduceSubspaceSizesTL:
		tlComm, _ := msg.Payload.(*mpi.Comm)
		return w.reduceSubspaceSizesTL(tlComm)
	case WaitForTLSizeUpdate:
		sizes, _ := msg.Payload.([]int)
		return w.waitForTLSizeUpdate(sizes)
	case UpdateCombiParameters:
		raw, _ := msg.Payload.([]byte)
		return w.updateCombiParameters(raw)
	case GridEval, ParallelEval:
		// File-IO diagnostics (writing the combined grid out for external
		// visualisation) — out of scope without a concrete output target;
		// unlike EvalNorm/InterpolateValues nothing downstream in this
		// module consumes their result, so there's nothing to compute yet.
		return nil
	case EvalNorm:
		spec, _ := msg.Payload.(NormSpec)
		n, err := w.evalNorm(spec)
		w.lastNorm = n
		return err
	case InterpolateValues:
		coords, _ := msg.Payload.([][]float64)
		out, err := w.interpolateValues(coords)
		w.lastInterpolated = out
		return err
	case Exit:
		w.LocalComm.Barrier()
		return nil
	default:
		return errs.New(errs.MPIFailure, "worker: unknown signal %v", msg.Signal)
	}
}

func (w *Worker) runFirst(rec task.Record) error {
	if w.StaticAssignment {
		return ErrStaticAssignment
	}
	t, err := task.Rebuild(rec, w.Registry)
	if err != nil {
		return err
	}
	w.Tasks = append(w.Tasks, t)
	return w.initAndRunOnce(t)
}

// AdoptTasks rebuilds and runs a set of task records that belonged to a
// group ProcessManager has declared GroupFailure'd (§7): "remaining groups
// redistribute the failed group's tasks if static assignment allows".
// Called directly by ProcessManager outside the signal protocol, since
// RUN_FIRST is never issued under static assignment and there is no
// existing signal for "adopt someone else's tasks" — this is the
// redistribution path's own entry point, not a dispatch(msg) case.
func (w *Worker) AdoptTasks(recs []task.Record) error {
	for _, rec := range recs {
		t, err := task.Rebuild(rec, w.Registry)
		if err != nil {
			return err
		}
		w.Tasks = append(w.Tasks, t)
		if err := w.initAndRunOnce(t); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) initAndRunOnce(t *task.Task) error {
	decomposition := w.Params.Parallelization
	t.Init(w.Params.ElementType, decomposition, w.Rank)
	if err := t.Run(w.LocalComm); err != nil {
		return err
	}
	t.SetFinished(true)
	return nil
}

// runNext advances every local task by one step, per §4.E's RUN_NEXT. A
// task that fails does not abort the others — §7's TaskFailure policy is
// per-task, so one non-convergent task must not stall its groupmates.
// Recovery vs. exclusion is decided by recoverOrExclude; runNext itself
// only collects whether anything is left unrecovered, which is what
// escalates the worker to FAIL.
func (w *Worker) runNext() error {
	var failed error
	for _, t := range w.Tasks {
		if t.IsExcluded() {
			continue
		}
		if err := t.Run(w.LocalComm); err != nil {
			if recErr := w.recoverOrExclude(t); recErr != nil {
				failed = recErr
			}
		}
	}
	return failed
}

func (w *Worker) updateCombiParameters(raw []byte) error {
	p, err := config.DecodeCombiParameters(raw)
	if err != nil {
		return err
	}
	w.Params = &p
	if w.StaticAssignment {
		for _, rec := range w.StaticGroups[w.GroupID] {
			t, err := task.Rebuild(rec, w.Registry)
			if err != nil {
				return err
			}
			w.Tasks = append(w.Tasks, t)
			if err := w.initAndRunOnce(t); err != nil {
				return err
			}
		}
	}
	return nil
}

// InterpolatedValues returns the result of the most recent
// INTERPOLATE_VALUES dispatch (meaningful on the group master only —
// every other rank's result is a zeroed placeholder, see
// interpolateValues).
func (w *Worker) InterpolatedValues() []float64 { return w.lastInterpolated }

// NormResult returns the result of the most recent EVAL_NORM dispatch
// (meaningful on the group master only, same reason as InterpolatedValues).
func (w *Worker) NormResult() float64 { return w.lastNorm }

// referenceTask picks the non-excluded owned task with the largest level
// sum (the first one in w.Tasks on a tie) to answer point queries from. After a combine step, combine()'s final step
// re-extracts every owned task's DFG from the same combined DSG (weight
// 1.0), so every task's DFG already holds the group's combined solution at
// that task's own grid points — any one of them answers a point query,
// interpolating between that task's own grid points. Every rank of the group sees
// the same w.Tasks in the same order (RUN_FIRST/UPDATE_COMBI_PARAMETERS
// fan out identically to the whole group), so this picks the same task on
// every rank without any coordination.
func (w *Worker) referenceTask() *task.Task {
	var best *task.Task
	bestSum := -1
	for _, t := range w.Tasks {
		if t.IsExcluded() {
			continue
		}
		sum := 0
		for _, l := range t.Level {
			sum += l
		}
		if sum > bestSum {
			bestSum = sum
			best = t
		}
	}
	return best
}

// interpolateValues multilinearly interpolates the group's combined
// solution at each of coords, per §4.E's INTERPOLATE_VALUES. Gathering the
// reference task's DFG is a collective over LocalComm, so every rank must
// take part; only the master ends up holding the gathered buffer, so only
// its result is meaningful (the rest return a zeroed placeholder).
func (w *Worker) interpolateValues(coords [][]float64) ([]float64, error) {
	out := make([]float64, len(coords))
	ref := w.referenceTask()
	if ref == nil {
		return out, nil
	}
	dfg := ref.GetDistributedFullGrid(0)
	if dfg == nil {
		return out, nil
	}
	full := dfg.GatherFullGrid(w.MasterRank, w.LocalComm)
	if w.Rank != w.MasterRank {
		return out, nil
	}
	for i, c := range coords {
		out[i] = dfg.InterpolateAt(c, full)
	}
	return out, nil
}

// evalNorm estimates the Monte-Carlo Lp-norm error (§8 property 6, p=2 for
// the L² interpolation error) between the group's combined solution and
// the registered task kind's closed-form value, sampling Samples points
// uniformly at random from [0,1]^dim (dim taken from the reference task's
// level vector). If the task kind carries no ExactFunc, it falls back to
// the Lp-norm of the combined solution itself rather than an error.
func (w *Worker) evalNorm(spec NormSpec) (float64, error) {
	ref := w.referenceTask()
	if ref == nil {
		return 0, nil
	}
	dfg := ref.GetDistributedFullGrid(0)
	if dfg == nil {
		return 0, nil
	}
	full := dfg.GatherFullGrid(w.MasterRank, w.LocalComm)
	if w.Rank != w.MasterRank {
		return 0, nil
	}
	if spec.Samples <= 0 {
		return 0, nil
	}
	p := spec.P
	if p == 0 {
		p = 2
	}

	rng := rand.New(rand.NewSource(spec.Seed))
	dim := len(ref.Level)
	var sum float64
	for i := 0; i < spec.Samples; i++ {
		coords := make([]float64, dim)
		for k := range coords {
			coords[k] = rng.Float64()
		}
		approx := dfg.InterpolateAt(coords, full)
		diff := approx
		if exact, ok := ref.Exact(coords); ok {
			diff = approx - exact
		}
		sum += math.Pow(math.Abs(diff), p)
	}
	return math.Pow(sum/float64(spec.Samples), 1/p), nil
}
