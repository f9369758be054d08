package config

import (
	"bytes"
	"encoding/gob"

	"github.com/sgct-project/combi/pkg/errs"
	"github.com/sgct-project/combi/pkg/fullgrid"
	"github.com/sgct-project/combi/pkg/idutils"
	"github.com/sgct-project/combi/pkg/levelvector"
)

// combiParamsVersion is bumped whenever the wire layout of CombiParameters
// changes, so a version mismatch between manager and worker binaries is
// caught at decode time instead of silently misreading fields.
const combiParamsVersion = 2

// ThirdLevel describes the external relay connection for a run that
// participates in third-level reduce, per §3.
type ThirdLevel struct {
	Host         string
	Port         int
	SystemNumber int
}

// CombiParameters is the immutable run configuration distributed once from
// manager to workers via UPDATE_COMBI_PARAMETERS, per §3. All fields appear
// in the fixed order given there.
type CombiParameters struct {
	Dim             int
	LMin            levelvector.V
	LMax            levelvector.V
	Boundary        []bool
	Levels          []levelvector.V
	Coeffs          []float64
	TaskIDs         []idutils.GroupTaskID
	NCombi          int
	NumGrids        int
	Parallelization []int
	ReduceDims      []bool
	ReduceRanges    [][]int
	ElementType     fullgrid.ElementType
	ThirdLevel      *ThirdLevel // nil when this run has no third level

	// CommonSubspaces is the CommonSubspaceSet of §3/§4.A, in
	// SchemeDecomposer order — the only positions COMBINE_THIRD_LEVEL is
	// permitted to exchange with the peer system (§2, §4.G step 3, §6).
	// Empty when this run has no third level.
	CommonSubspaces []levelvector.V
}

// wireCombiParameters is the gob-serialised form: identical field-for-field
// to CombiParameters, carried separately so the version tag can be checked
// before any field is trusted.
type wireCombiParameters struct {
	Version int
	Params  CombiParameters
}

// EncodeCombiParameters gob-encodes p with its version tag, for
// transmission as the UPDATE_COMBI_PARAMETERS signal payload.
func EncodeCombiParameters(p CombiParameters) ([]byte, error) {
	var buf bytes.Buffer
	w := wireCombiParameters{Version: combiParamsVersion, Params: p}
	if err := gob.NewEncoder(&buf).Encode(w); err != nil {
		return nil, errs.Wrap(errs.MPIFailure, err, "config: encode CombiParameters")
	}
	return buf.Bytes(), nil
}

// DecodeCombiParameters reverses EncodeCombiParameters, rejecting a payload
// whose version tag this binary does not recognise.
func DecodeCombiParameters(raw []byte) (CombiParameters, error) {
	var w wireCombiParameters
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&w); err != nil {
		return CombiParameters{}, errs.Wrap(errs.MPIFailure, err, "config: decode CombiParameters")
	}
	if w.Version != combiParamsVersion {
		return CombiParameters{}, errs.New(errs.MPIFailure, "config: CombiParameters version mismatch: got %d, want %d", w.Version, combiParamsVersion)
	}
	return w.Params, nil
}
