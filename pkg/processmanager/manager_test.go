package processmanager

import (
	"testing"

	"github.com/sgct-project/combi/pkg/config"
	"github.com/sgct-project/combi/pkg/fullgrid"
	"github.com/sgct-project/combi/pkg/kv"
	"github.com/sgct-project/combi/pkg/levelvector"
	"github.com/sgct-project/combi/pkg/scheme"
	"github.com/sgct-project/combi/pkg/task"
)

func threeTermScheme() scheme.Scheme {
	return scheme.Scheme{
		Dim:      2,
		Boundary: []bool{true, true},
		Terms: []scheme.Term{
			{Level: levelvector.New(3, 2), Coeff: 1, Group: -1},
			{Level: levelvector.New(2, 3), Coeff: -1, Group: -1},
			{Level: levelvector.New(2, 2), Coeff: 1, Group: -1},
		},
	}
}

func TestManagerDynamicAssignmentCombineLoop(t *testing.T) {
	reg := task.NewRegistry()
	task.RegisterBuiltins(reg)

	m := New(&config.Config{}, []int{1, 1}, reg, nil, kv.NewMemKV())
	m.TaskKind = task.KindParaboloid

	full := threeTermScheme()
	if err := scheme.Validate(full); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	m.Scheme = full
	m.StaticAssignment = false

	params := m.BuildParams(levelvector.New(2, 2), levelvector.New(3, 3), 3, 1, fullgrid.Real, []int{1, 1}, nil, nil, nil)

	if err := m.Init(params); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := m.RunCombinationLoop(); err != nil {
		t.Fatalf("RunCombinationLoop: %v", err)
	}
	if err := m.Exit(); err != nil {
		t.Fatalf("Exit: %v", err)
	}
}

func TestManagerStaticAssignmentCombineLoop(t *testing.T) {
	reg := task.NewRegistry()
	task.RegisterBuiltins(reg)

	m := New(&config.Config{}, []int{1, 1}, reg, nil, kv.NewMemKV())
	m.TaskKind = task.KindParaboloid

	full := threeTermScheme()
	full.Terms[0].Group = 0
	full.Terms[1].Group = 1
	full.Terms[2].Group = 0
	m.Scheme = full
	m.StaticAssignment = true

	params := m.BuildParams(levelvector.New(2, 2), levelvector.New(3, 3), 2, 1, fullgrid.Real, []int{1, 1}, nil, nil, nil)

	if err := m.Init(params); err != nil {
		t.Fatalf("Init: %v", err)
	}
	for _, g := range m.groups {
		for _, w := range g.workers {
			if !w.StaticAssignment {
				t.Fatalf("group %d rank %d: expected StaticAssignment", g.id, w.Rank)
			}
		}
	}

	if err := m.RunCombinationLoop(); err != nil {
		t.Fatalf("RunCombinationLoop: %v", err)
	}
	if err := m.Exit(); err != nil {
		t.Fatalf("Exit: %v", err)
	}
}

func TestManagerLoadSchemeFileRejectsOutOfRangeGroup(t *testing.T) {
	reg := task.NewRegistry()
	task.RegisterBuiltins(reg)
	m := New(&config.Config{}, []int{1}, reg, nil, kv.NewMemKV())

	full := threeTermScheme()
	full.Terms[0].Group = 5
	full.Terms[1].Group = 0
	full.Terms[2].Group = 0

	path := t.TempDir() + "/scheme.json"
	if err := scheme.SaveFile(path, full, true); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	if err := m.LoadSchemeFile(path); err == nil {
		t.Fatal("expected an error for a group index beyond NumGroups()")
	}
}
