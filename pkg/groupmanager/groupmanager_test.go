package groupmanager

import (
	"testing"

	"github.com/sgct-project/combi/pkg/config"
	"github.com/sgct-project/combi/pkg/fullgrid"
	"github.com/sgct-project/combi/pkg/levelvector"
	"github.com/sgct-project/combi/pkg/mpi"
	"github.com/sgct-project/combi/pkg/task"
	"github.com/sgct-project/combi/pkg/worker"
)

func newTestGroup(t *testing.T, nranks int) *ProcessGroupManager {
	t.Helper()
	localComms := mpi.NewComm(nranks)
	globalComms := mpi.NewComm(1)
	reg := task.NewRegistry()
	task.RegisterBuiltins(reg)
	cfg := &config.Config{ElementType: fullgrid.Real}

	workers := make([]*worker.Worker, nranks)
	for r := 0; r < nranks; r++ {
		w := worker.New(0, r, r == 0, 0, localComms[r], globalComms[0], reg, cfg, nil)
		workers[r] = w
		go w.Run()
	}
	return New(0, workers)
}

func TestGroupManagerCombineLifecycle(t *testing.T) {
	gm := newTestGroup(t, 2)

	params := config.CombiParameters{
		Dim:             2,
		LMax:            levelvector.New(3, 3),
		Boundary:        []bool{true, true},
		NumGrids:        1,
		Parallelization: []int{2, 1},
		ElementType:     fullgrid.Real,
	}
	if err := gm.UpdateCombiParameters(params); err != nil {
		t.Fatalf("UpdateCombiParameters: %v", err)
	}
	if err := gm.WaitIdle(); err != nil {
		t.Fatalf("WaitIdle after UpdateCombiParameters: %v", err)
	}

	gm.InitDsgus()
	if err := gm.WaitIdle(); err != nil {
		t.Fatalf("WaitIdle after InitDsgus: %v", err)
	}

	rec := task.Record{
		Level:    levelvector.New(3, 3),
		Coeff:    1.0,
		Boundary: []bool{true, true},
		Group:    0,
		Kind:     task.KindParaboloid,
	}
	gm.RunFirst(rec)
	if err := gm.WaitIdle(); err != nil {
		t.Fatalf("WaitIdle after RunFirst: %v", err)
	}

	gm.Combine()
	if err := gm.WaitIdle(); err != nil {
		t.Fatalf("WaitIdle after Combine: %v", err)
	}
	if gm.GetStatus() != worker.Wait {
		t.Fatalf("expected WAIT at teardown, got %v", gm.GetStatus())
	}

	gm.Exit()
	if err := gm.WaitIdle(); err != nil {
		t.Fatalf("WaitIdle after Exit: %v", err)
	}
}
