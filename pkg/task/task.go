// Package task implements the Task abstraction of §4.D: an opaque
// simulation unit tied to one level vector, owning one or more
// DistributedFullGrids. The specification's design notes (§9) call for
// replacing the source's base-class-plus-derived-classes inheritance with a
// capability set over a tagged variant, serialised through a registry keyed
// by tag rather than runtime type inspection — that is the shape this
// package implements: Func is the capability set, Kind is the tag, and
// Registry resolves a Kind back to a fresh Func at deserialisation time.
package task

import (
	"github.com/sgct-project/combi/pkg/errs"
	"github.com/sgct-project/combi/pkg/fullgrid"
	"github.com/sgct-project/combi/pkg/idutils"
	"github.com/sgct-project/combi/pkg/levelvector"
	"github.com/sgct-project/combi/pkg/mpi"
)

// State is a Task's lifecycle state. It advances monotonically except on
// recovery (§3), where a failed task may be reset to Created by
// setCombinedSolutionUniform.
type State int

// State values.
const (
	Created State = iota
	Running
	Finished
	Failed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case Finished:
		return "finished"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Kind tags a concrete task implementation for registry-based
// reconstruction across the RUN_FIRST signal boundary (§9's "Polymorphic
// Task" re-architecture).
type Kind string

// Func is the capability set every concrete task kind must implement — the
// source's inheritance hierarchy flattened into an interface, per §9.
type Func interface {
	// Init prepares the task's DistributedFullGrids for the given level and
	// boundary, decomposed across decomposition ranks per dimension.
	Init(level levelvector.V, boundary []bool, et fullgrid.ElementType, decomposition []int, rank int) []*fullgrid.DFG
	// Run advances the simulation by one step over lcomm. The PDE solver
	// itself is an external collaborator (§1); concrete Func
	// implementations in this package are reference stand-ins that exercise
	// the coordination core's contract without one.
	Run(lcomm *mpi.Comm, dfgs []*fullgrid.DFG) error
}

// ExactFunc is a Func that also knows its own closed-form solution. It's
// optional — the external PDE solver §1 places out of scope won't have
// one — but the reference kinds in kinds.go do, which is what lets
// EvalNorm compute a real interpolation error (§8 property 6) instead of
// just the combined solution's own magnitude.
type ExactFunc interface {
	Func
	Exact(coords []float64) float64
}

// Registry resolves a Kind to a fresh Func, used to reconstruct a Task on
// the receiving side of RUN_FIRST without runtime type inspection.
type Registry struct {
	factories map[Kind]func() Func
}

// NewRegistry builds an empty registry. Use Register to populate it; see
// RegisterBuiltins for the reference task kinds this module ships with.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Kind]func() Func)}
}

// Register adds a factory for the given kind.
func (r *Registry) Register(kind Kind, factory func() Func) {
	r.factories[kind] = factory
}

// New constructs a fresh Func for kind, or an InvalidScheme error if the
// kind is unregistered.
func (r *Registry) New(kind Kind) (Func, error) {
	factory, ok := r.factories[kind]
	if !ok {
		return nil, errs.New(errs.InvalidScheme, "task: unregistered kind %q", kind)
	}
	return factory(), nil
}

// Task is one opaque simulation unit, per the data model of §3.
type Task struct {
	ID       idutils.GroupTaskID
	Level    levelvector.V
	Coeff    float64
	Boundary []bool
	Group    uint
	Kind     Kind
	State    State

	impl     Func
	dfgs     []*fullgrid.DFG
	excluded bool
}

// New constructs a Task in the Created state, not yet initialised.
func New(id idutils.GroupTaskID, level levelvector.V, coeff float64, boundary []bool, group uint, kind Kind, impl Func) *Task {
	return &Task{
		ID:       id,
		Level:    level.Clone(),
		Coeff:    coeff,
		Boundary: append([]bool(nil), boundary...),
		Group:    group,
		Kind:     kind,
		State:    Created,
		impl:     impl,
	}
}

// Init builds the task's DistributedFullGrids via the underlying Func, using
// decomposition as the per-dimension process count of a Cartesian
// decomposition and rank as this caller's position within it — the
// "decomposition" threaded in by ProcessGroupWorker.init per §4.B.
func (t *Task) Init(et fullgrid.ElementType, decomposition []int, rank int) {
	t.dfgs = t.impl.Init(t.Level, t.Boundary, et, decomposition, rank)
}

// Run advances the task's simulation by one step over lcomm.
func (t *Task) Run(lcomm *mpi.Comm) error {
	if t.State == Failed {
		return errs.New(errs.TaskFailure, "task %s: run called on failed task", t.ID)
	}
	t.State = Running
	if err := t.impl.Run(lcomm, t.dfgs); err != nil {
		t.State = Failed
		return errs.Wrap(errs.TaskFailure, err, "task "+t.ID.String())
	}
	return nil
}

// GetDistributedFullGrid returns the DFG at gridIndex (a Task may own more
// than one, per numGrids in CombiParameters).
func (t *Task) GetDistributedFullGrid(gridIndex int) *fullgrid.DFG {
	if gridIndex < 0 || gridIndex >= len(t.dfgs) {
		return nil
	}
	return t.dfgs[gridIndex]
}

// NumGrids returns the number of DFGs this task owns.
func (t *Task) NumGrids() int { return len(t.dfgs) }

// SetZero zeroes every DFG owned by the task. SetCombinedSolutionUniform
// zeroes each DFG itself and does not call this.
func (t *Task) SetZero() {
	for _, d := range t.dfgs {
		d.SetZero()
	}
}

// Exact returns the task kind's closed-form value at coords, if its Func
// implements ExactFunc, and whether one was available.
func (t *Task) Exact(coords []float64) (float64, bool) {
	ef, ok := t.impl.(ExactFunc)
	if !ok {
		return 0, false
	}
	return ef.Exact(coords), true
}

// GetID returns the task's identifier.
func (t *Task) GetID() idutils.GroupTaskID { return t.ID }

// IsFinished reports whether the task has completed its run without error.
func (t *Task) IsFinished() bool { return t.State == Finished }

// SetFinished marks (or unmarks) the task finished.
func (t *Task) SetFinished(finished bool) {
	if finished {
		t.State = Finished
	} else if t.State == Finished {
		t.State = Running
	}
}

// SetFailed marks the task Failed — entered from TaskFailure (§7); terminal
// for the task but not for the owning worker.
func (t *Task) SetFailed() { t.State = Failed }

// Exclude marks the task as permanently dropped from subsequent combines —
// the §7 TaskFailure policy's exclusion branch, used when no recovery is
// available. An excluded task is skipped by RUN_NEXT for the rest of the
// run rather than re-attempted every step.
func (t *Task) Exclude() { t.excluded = true }

// IsExcluded reports whether Exclude has been called.
func (t *Task) IsExcluded() bool { return t.excluded }

// SetCombinedSolutionUniform re-seeds every DFG this task owns from the
// group's current combined sparse grid, the recovery path §5 and §7 name
// but never define: rather than excluding a failed task from subsequent
// combines by zeroing its coefficient, the manager may choose to restart it
// from the solution the group has already converged on, so it rejoins the
// simulation instead of permanently dropping out. Resets the task to
// Created so the next RUN_NEXT treats it as freshly initialised.
func (t *Task) SetCombinedSolutionUniform(extract func(dfg *fullgrid.DFG)) {
	for _, d := range t.dfgs {
		d.SetZero()
		extract(d)
	}
	t.State = Created
}
