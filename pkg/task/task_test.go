package task

import (
	"math"
	"testing"

	"github.com/sgct-project/combi/pkg/fullgrid"
	"github.com/sgct-project/combi/pkg/idutils"
	"github.com/sgct-project/combi/pkg/levelvector"
)

func newTestID(n uint) idutils.GroupTaskID {
	return idutils.GroupTaskID{Run: idutils.NewRunID(), Group: 0, Task: n}
}

func TestConstantTaskStaysConstant(t *testing.T) {
	tk := New(newTestID(1), levelvector.New(3, 3), 1.0, []bool{true, true}, 0, KindConstant, &ConstantFunc{Value: 2.5})
	tk.Init(fullgrid.Real, []int{1, 1}, 0)
	d := tk.GetDistributedFullGrid(0)
	for _, v := range d.GetData() {
		if v != 2.5 {
			t.Fatalf("expected constant 2.5, got %v", v)
		}
	}
	if err := tk.Run(nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, v := range d.GetData() {
		if v != 2.5 {
			t.Fatalf("expected constant 2.5 after Run, got %v", v)
		}
	}
}

func TestParaboloidTaskMatchesFormula(t *testing.T) {
	tk := New(newTestID(2), levelvector.New(2, 2), 1.0, []bool{true, true}, 0, KindParaboloid, &ParaboloidFunc{Sign: 1})
	tk.Init(fullgrid.Real, []int{1, 1}, 0)
	d := tk.GetDistributedFullGrid(0)
	data := d.GetData()
	for i := 0; i < d.NrLocalElements(); i++ {
		coords := d.GetCoordsLocal(i)
		want := 1.0
		for _, x := range coords {
			want *= x * (x - 1)
		}
		if math.Abs(data[i]-want) > 1e-12 {
			t.Fatalf("point %d: got %v want %v", i, data[i], want)
		}
	}
}

func TestRecordRoundTrip(t *testing.T) {
	tk := New(newTestID(3), levelvector.New(4, 2, 3), 0.5, []bool{true, false, true}, 2, KindParaboloid, &ParaboloidFunc{Sign: -1})
	raw, err := Encode(tk.ToRecord())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	rec, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	reg := NewRegistry()
	RegisterBuiltins(reg)
	rebuilt, err := Rebuild(rec, reg)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if !rebuilt.Level.Equal(tk.Level) || rebuilt.Coeff != tk.Coeff || rebuilt.Group != tk.Group || rebuilt.Kind != tk.Kind {
		t.Fatalf("rebuilt task does not match original: %+v", rebuilt)
	}
}

func TestRebuildUnregisteredKindFails(t *testing.T) {
	reg := NewRegistry()
	_, err := Rebuild(Record{Kind: Kind("nonexistent")}, reg)
	if err == nil {
		t.Fatal("expected error for unregistered kind")
	}
}
