package fullgrid

import (
	"github.com/sgct-project/combi/pkg/hierarchy"
	"github.com/sgct-project/combi/pkg/mpi"
)

// Hierarchize transforms the DFG from nodal to hierarchical values in
// place. The hierarchisation kernel itself is, per §1, an external
// numerical collaborator treated as a pure function on a distributed full
// grid; this reference implementation realises that contract by gathering
// the (small, test-scale) grid to comm's root, running the pure 1D-per-
// dimension transform of pkg/hierarchy, and scattering the result back —
// correct for any decomposition, at the cost of not itself being a
// distributed kernel.
func (d *DFG) Hierarchize(comm *mpi.Comm) {
	d.transform(comm, hierarchy.HierarchizeND)
}

// Dehierarchize is the inverse of Hierarchize.
func (d *DFG) Dehierarchize(comm *mpi.Comm) {
	d.transform(comm, hierarchy.DehierarchizeND)
}

func (d *DFG) transform(comm *mpi.Comm, apply func(data []float64, shape, levels []int, boundary []bool)) {
	root := 0
	if scalarWidth(d.ElementType) != 1 {
		d.transformComplex(comm, apply, root)
		return
	}
	full := d.GatherFullGrid(root, comm)
	if comm.Rank() == root {
		apply(full, d.globalShape, []int(d.Level), d.Boundary)
	}
	d.ScatterFullGrid(root, comm, full)
}

// transformComplex applies the real-valued transform independently to the
// interleaved real and imaginary planes.
func (d *DFG) transformComplex(comm *mpi.Comm, apply func(data []float64, shape, levels []int, boundary []bool), root int) {
	full := d.GatherFullGrid(root, comm)
	if comm.Rank() == root {
		n := len(full) / 2
		re := make([]float64, n)
		im := make([]float64, n)
		for i := 0; i < n; i++ {
			re[i] = full[2*i]
			im[i] = full[2*i+1]
		}
		apply(re, d.globalShape, []int(d.Level), d.Boundary)
		apply(im, d.globalShape, []int(d.Level), d.Boundary)
		for i := 0; i < n; i++ {
			full[2*i] = re[i]
			full[2*i+1] = im[i]
		}
	}
	d.ScatterFullGrid(root, comm, full)
}
