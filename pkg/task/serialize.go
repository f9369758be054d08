package task

import (
	"bytes"
	"encoding/gob"

	"github.com/sgct-project/combi/pkg/errs"
	"github.com/sgct-project/combi/pkg/idutils"
	"github.com/sgct-project/combi/pkg/levelvector"
)

// Record is the wire form of a Task sent across the RUN_FIRST signal
// boundary: just enough to look the Kind up in the receiver's Registry and
// rebuild a fresh Func, never a serialised runtime type (§9).
type Record struct {
	ID       idutils.GroupTaskID
	Level    levelvector.V
	Coeff    float64
	Boundary []bool
	Group    uint
	Kind     Kind
}

// ToRecord captures t's identity and tag, discarding its live Func and
// DFGs — the receiving worker rebuilds those from scratch via Init.
func (t *Task) ToRecord() Record {
	return Record{
		ID:       t.ID,
		Level:    t.Level.Clone(),
		Coeff:    t.Coeff,
		Boundary: append([]bool(nil), t.Boundary...),
		Group:    t.Group,
		Kind:     t.Kind,
	}
}

// Encode gob-encodes a Record for transmission over RUN_FIRST.
func Encode(rec Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, errs.Wrap(errs.MPIFailure, err, "task: encode record")
	}
	return buf.Bytes(), nil
}

// Decode reverses Encode.
func Decode(raw []byte) (Record, error) {
	var rec Record
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&rec); err != nil {
		return Record{}, errs.Wrap(errs.MPIFailure, err, "task: decode record")
	}
	return rec, nil
}

// Rebuild reconstructs a Task from a Record using reg to resolve its Kind
// to a fresh Func — the lazy instantiation RUN_FIRST performs on the
// receiving worker, per §3's lifecycle note.
func Rebuild(rec Record, reg *Registry) (*Task, error) {
	impl, err := reg.New(rec.Kind)
	if err != nil {
		return nil, err
	}
	return New(rec.ID, rec.Level, rec.Coeff, rec.Boundary, rec.Group, rec.Kind, impl), nil
}
