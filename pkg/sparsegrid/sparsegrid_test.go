package sparsegrid

import (
	"math"
	"testing"

	"github.com/sgct-project/combi/pkg/fullgrid"
	"github.com/sgct-project/combi/pkg/levelvector"
	"github.com/sgct-project/combi/pkg/mpi"
)

func TestGetSizeMatchesSubspaceSizes(t *testing.T) {
	g := New(levelvector.New(3, 2), []bool{true, true}, fullgrid.Real)
	total := 0
	for _, s := range g.GetSubspaceDataSizes() {
		total += s
	}
	if total != g.GetSize() {
		t.Fatalf("GetSize() = %d, sum of subspace sizes = %d", g.GetSize(), total)
	}
}

func TestAllocateZeroDeallocate(t *testing.T) {
	g := New(levelvector.New(2, 2), []bool{false, false}, fullgrid.Real)
	if g.IsAllocated() {
		t.Fatal("expected not allocated before Allocate")
	}
	g.Allocate()
	if !g.IsAllocated() {
		t.Fatal("expected allocated after Allocate")
	}
	for _, sigma := range g.Subspaces() {
		buf := g.SubspaceData(sigma)
		for _, v := range buf {
			if v != 0 {
				t.Fatalf("expected freshly allocated buffer zeroed, subspace %v", sigma)
			}
		}
	}
	for _, sigma := range g.Subspaces() {
		buf := g.SubspaceData(sigma)
		for i := range buf {
			buf[i] = 1
		}
	}
	g.Zero()
	for _, sigma := range g.Subspaces() {
		for _, v := range g.SubspaceData(sigma) {
			if v != 0 {
				t.Fatalf("expected Zero to clear buffer, subspace %v", sigma)
			}
		}
	}
	g.Deallocate()
	if g.IsAllocated() {
		t.Fatal("expected not allocated after Deallocate")
	}
}

func TestFlattenUnflattenRoundTrip(t *testing.T) {
	g := New(levelvector.New(3, 1), []bool{true, false}, fullgrid.Real)
	g.Allocate()
	for i, sigma := range g.Subspaces() {
		buf := g.SubspaceData(sigma)
		for j := range buf {
			buf[j] = float64(i*100 + j)
		}
	}
	flat := g.Flatten()

	g2 := New(levelvector.New(3, 1), []bool{true, false}, fullgrid.Real)
	g2.Allocate()
	g2.Unflatten(flat)
	for _, sigma := range g.Subspaces() {
		a, b := g.SubspaceData(sigma), g2.SubspaceData(sigma)
		for i := range a {
			if a[i] != b[i] {
				t.Fatalf("round trip mismatch at subspace %v[%d]: %v != %v", sigma, i, a[i], b[i])
			}
		}
	}
}

// TestAddExtractIsIdentityForSingleTask checks that, for a single task whose
// level equals the DSG's maximum level and coefficient 1, scattering into
// the DSG and immediately gathering back out reproduces the original
// hierarchical values exactly — every nodal point maps into exactly one
// subspace slot (hierarchy.LevelOf's covering property), so combine with
// one task is a no-op round trip.
func TestAddExtractIsIdentityForSingleTask(t *testing.T) {
	level := levelvector.New(3, 2)
	boundary := []bool{true, true}
	comms := mpi.NewComm(1)

	dfg := fullgrid.New(level, boundary, fullgrid.Real, []int{1, 1}, 0)
	for i := range dfg.GetData() {
		dfg.GetData()[i] = math.Sin(float64(i))
	}
	dfg.Hierarchize(comms[0])

	want := append([]float64(nil), dfg.GetData()...)

	g := New(level, boundary, fullgrid.Real)
	g.Allocate()
	g.AddDFG(dfg, 1.0)
	g.ReduceLocal(comms[0])

	dfg.SetZero()
	g.ExtractToDFG(dfg, 1.0)

	got := dfg.GetData()
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Fatalf("round trip mismatch at %d: got %v want %v", i, got[i], want[i])
		}
	}
}
