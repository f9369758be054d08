package worker

import (
	"math"
	"testing"

	"github.com/sgct-project/combi/pkg/config"
	"github.com/sgct-project/combi/pkg/fullgrid"
	"github.com/sgct-project/combi/pkg/idutils"
	"github.com/sgct-project/combi/pkg/levelvector"
	"github.com/sgct-project/combi/pkg/mpi"
	"github.com/sgct-project/combi/pkg/task"
)

func send(t *testing.T, w *Worker, sig Signal, payload interface{}) {
	t.Helper()
	w.Inbox() <- Message{Signal: sig, Payload: payload}
	if err := <-w.Ready(); err != nil {
		t.Fatalf("%v: %v", sig, err)
	}
}

func TestWorkerSingleTaskCombineIsIdentity(t *testing.T) {
	localComms := mpi.NewComm(1)
	globalComms := mpi.NewComm(1)

	reg := task.NewRegistry()
	task.RegisterBuiltins(reg)
	cfg := &config.Config{ElementType: fullgrid.Real}

	w := New(0, 0, true, 0, localComms[0], globalComms[0], reg, cfg, nil)
	go w.Run()

	params := config.CombiParameters{
		Dim:             2,
		LMin:            levelvector.New(3, 3),
		LMax:            levelvector.New(3, 3),
		Boundary:        []bool{true, true},
		NumGrids:        1,
		Parallelization: []int{1, 1},
		ElementType:     fullgrid.Real,
	}
	raw, err := config.EncodeCombiParameters(params)
	if err != nil {
		t.Fatalf("EncodeCombiParameters: %v", err)
	}
	send(t, w, UpdateCombiParameters, raw)
	send(t, w, InitDsgus, nil)

	rec := task.Record{
		ID:       idutils.GroupTaskID{Run: idutils.NewRunID(), Group: 0, Task: 0},
		Level:    levelvector.New(3, 3),
		Coeff:    1.0,
		Boundary: []bool{true, true},
		Group:    0,
		Kind:     task.KindParaboloid,
	}
	send(t, w, RunFirst, rec)

	before := append([]float64(nil), w.Tasks[0].GetDistributedFullGrid(0).GetData()...)

	send(t, w, Combine, nil)

	after := w.Tasks[0].GetDistributedFullGrid(0).GetData()
	for i := range before {
		if math.Abs(before[i]-after[i]) > 1e-12 {
			t.Fatalf("combine changed single-task value at %d: before=%v after=%v", i, before[i], after[i])
		}
	}

	send(t, w, Exit, nil)
}

func TestRunFirstRejectedUnderStaticAssignment(t *testing.T) {
	localComms := mpi.NewComm(1)
	reg := task.NewRegistry()
	task.RegisterBuiltins(reg)
	w := New(0, 0, true, 0, localComms[0], nil, reg, &config.Config{}, nil)
	w.StaticAssignment = true
	go w.Run()

	w.Inbox() <- Message{Signal: RunFirst, Payload: task.Record{}}
	err := <-w.Ready()
	if err == nil {
		t.Fatal("expected error dispatching RUN_FIRST under static assignment")
	}
	send(t, w, Exit, nil)
}
