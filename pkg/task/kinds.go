package task

import (
	"github.com/sgct-project/combi/pkg/fullgrid"
	"github.com/sgct-project/combi/pkg/levelvector"
	"github.com/sgct-project/combi/pkg/mpi"
)

// ConstantFunc and ParaboloidFunc are the two reference Func
// implementations exercised by this module's own tests, standing in for
// the PDE solver that §1 places out of scope. They realise testable
// properties 4 and 5 of §8: a task seeded with a constant stays constant
// through any number of combine steps, and a task seeded with the
// paraboloid function keeps its grid-point values through combine steps of
// a classical scheme (between grid points the interpolant is only
// piecewise multilinear, so it is not exact there).

// KindConstant is the registry tag for ConstantFunc.
const KindConstant Kind = "constant"

// KindParaboloid is the registry tag for ParaboloidFunc.
const KindParaboloid Kind = "paraboloid"

// ConstantFunc seeds every grid point with a fixed value and never changes
// it across Run calls.
type ConstantFunc struct {
	Value float64
}

// Init builds one DFG and fills it with Value.
func (f *ConstantFunc) Init(level levelvector.V, boundary []bool, et fullgrid.ElementType, decomposition []int, rank int) []*fullgrid.DFG {
	d := fullgrid.New(level, boundary, et, decomposition, rank)
	for i := 0; i < d.NrLocalElements(); i++ {
		setScalar(d, i, f.Value)
	}
	return []*fullgrid.DFG{d}
}

// Run is a no-op: a constant function is already converged.
func (f *ConstantFunc) Run(lcomm *mpi.Comm, dfgs []*fullgrid.DFG) error {
	return nil
}

// Exact returns Value at every coordinate.
func (f *ConstantFunc) Exact(coords []float64) float64 {
	return f.Value
}

// ParaboloidFunc seeds every grid point with f(x) = sign * Prod_i x_i(x_i -
// 1), the function behind testable property 5 (the paraboloid round trip
// at grid points).
type ParaboloidFunc struct {
	Sign float64 // +1 or -1
}

// Init builds one DFG and fills it with the paraboloid function evaluated
// at each local point's physical coordinates.
func (f *ParaboloidFunc) Init(level levelvector.V, boundary []bool, et fullgrid.ElementType, decomposition []int, rank int) []*fullgrid.DFG {
	d := fullgrid.New(level, boundary, et, decomposition, rank)
	sign := f.Sign
	if sign == 0 {
		sign = 1
	}
	for i := 0; i < d.NrLocalElements(); i++ {
		coords := d.GetCoordsLocal(i)
		v := sign
		for _, x := range coords {
			v *= x * (x - 1)
		}
		setScalar(d, i, v)
	}
	return []*fullgrid.DFG{d}
}

// Run is a no-op: the paraboloid is a fixed function with no time
// evolution, so there is no simulation state to advance.
func (f *ParaboloidFunc) Run(lcomm *mpi.Comm, dfgs []*fullgrid.DFG) error {
	return nil
}

// Exact evaluates the closed-form paraboloid at coords, independent of
// level — the reference value EvalNorm's Monte-Carlo error is measured
// against.
func (f *ParaboloidFunc) Exact(coords []float64) float64 {
	sign := f.Sign
	if sign == 0 {
		sign = 1
	}
	v := sign
	for _, x := range coords {
		v *= x * (x - 1)
	}
	return v
}

// setScalar writes v into local point i of d's real component (and zeroes
// the imaginary component, if any).
func setScalar(d *fullgrid.DFG, i int, v float64) {
	w := 1
	if d.ElementType == fullgrid.Complex {
		w = 2
	}
	data := d.GetData()
	data[i*w] = v
	if w == 2 {
		data[i*w+1] = 0
	}
}

// RegisterBuiltins registers ConstantFunc and ParaboloidFunc under their
// reference kinds.
func RegisterBuiltins(r *Registry) {
	r.Register(KindConstant, func() Func { return &ConstantFunc{} })
	r.Register(KindParaboloid, func() Func { return &ParaboloidFunc{} })
}
