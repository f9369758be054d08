// Package worker implements ProcessGroupWorker, the state machine that runs
// on every rank of every process group (§4.E). Each worker blocks in Wait
// for a Message from its ProcessGroupManager, dispatches it, and reports
// back — mirroring the source's signal-driven main loop without the
// process-wide singleton it used to reach the communicator topology (§9).
package worker

import "github.com/sgct-project/combi/pkg/errs"

// Signal is one of the integer-coded instructions a manager can broadcast
// to a group, per §6. Values must stay stable across the two systems of a
// third-level run since they cross the wire via the relay's peer system in
// spirit (though not directly — only subspace data and subspace-size
// vectors cross the relay itself).
type Signal int

// Signal values, in the order listed in §4.E.
const (
	RunFirst Signal = iota
	RunNext
	Combine
	InitDsgus
	CombineThirdLevel
	ReduceSubspaceSizesTL
	WaitForTLSizeUpdate
	UpdateCombiParameters
	GridEval
	ParallelEval
	EvalNorm
	InterpolateValues
	Exit
)

func (s Signal) String() string {
	switch s {
	case RunFirst:
		return "RUN_FIRST"
	case RunNext:
		return "RUN_NEXT"
	case Combine:
		return "COMBINE"
	case InitDsgus:
		return "INIT_DSGUS"
	case CombineThirdLevel:
		return "COMBINE_THIRD_LEVEL"
	case ReduceSubspaceSizesTL:
		return "REDUCE_SUBSPACE_SIZES_TL"
	case WaitForTLSizeUpdate:
		return "WAIT_FOR_TL_SIZE_UPDATE"
	case UpdateCombiParameters:
		return "UPDATE_COMBI_PARAMETERS"
	case GridEval:
		return "GRID_EVAL"
	case ParallelEval:
		return "PARALLEL_EVAL"
	case EvalNorm:
		return "EVAL_NORM"
	case InterpolateValues:
		return "INTERPOLATE_VALUES"
	case Exit:
		return "EXIT"
	default:
		return "UNKNOWN_SIGNAL"
	}
}

// Status is a group's (or a worker's) coordination state, per the status
// codes of §6.
type Status int

// Status values, fixed per §6.
const (
	Wait Status = 0
	Busy Status = 1
	Fail Status = 2
)

func (s Status) String() string {
	switch s {
	case Wait:
		return "WAIT"
	case Busy:
		return "BUSY"
	case Fail:
		return "FAIL"
	default:
		return "UNKNOWN_STATUS"
	}
}

// Message is one signal dispatch, with whatever payload that signal needs.
type Message struct {
	Signal  Signal
	Payload interface{}
}

// NormSpec configures an EVAL_NORM request: Samples Monte-Carlo points
// drawn uniformly from [0,1]^dim, seeded by Seed for repeatable tests, and
// the Lp exponent (2 for the L² error of §8 property 6; 0 defaults to 2).
type NormSpec struct {
	Samples int
	P       float64
	Seed    int64
}

// ErrStaticAssignment is returned when RUN_FIRST is dispatched to a worker
// configured for static task assignment, per §4.H's "must never be issued"
// assertion.
var ErrStaticAssignment = errs.New(errs.InvalidScheme, "worker: RUN_FIRST issued under static task assignment")
