package processmanager

import (
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"math"
	"os"

	"github.com/sgct-project/combi/pkg/errs"
	"github.com/sgct-project/combi/pkg/fullgrid"
	"github.com/sgct-project/combi/pkg/levelvector"
)

// checkpointHeader is the `.raw_header` contract of §6: enough to
// reconstruct a DFG's shape and decomposition without re-running the
// combination scheme. One header/data pair is written per rank, since a
// DFG's local shape is rank-specific.
type checkpointHeader struct {
	Level       levelvector.V
	Boundary    []bool
	ElementType fullgrid.ElementType
	ProcsPerDim []int
	Rank        int
	ByteOrder   string
}

// WriteCheckpoint writes dfg's local data plus its header to
// pathPrefix+".raw" / pathPrefix+".raw_header". The data file is a flat
// little-endian float64 dump of GetData(), so ReadCheckpoint's only source
// of truth for shape is the header.
func WriteCheckpoint(pathPrefix string, dfg *fullgrid.DFG, procsPerDim []int, rank int) error {
	hdr := checkpointHeader{
		Level:       dfg.Level,
		Boundary:    dfg.Boundary,
		ElementType: dfg.ElementType,
		ProcsPerDim: procsPerDim,
		Rank:        rank,
		ByteOrder:   "little",
	}
	hf, err := os.Create(pathPrefix + ".raw_header")
	if err != nil {
		return errs.Wrap(errs.MPIFailure, err, "processmanager: create checkpoint header")
	}
	defer hf.Close()
	if err := gob.NewEncoder(hf).Encode(hdr); err != nil {
		return errs.Wrap(errs.MPIFailure, err, "processmanager: encode checkpoint header")
	}

	df, err := os.Create(pathPrefix + ".raw")
	if err != nil {
		return errs.Wrap(errs.MPIFailure, err, "processmanager: create checkpoint data")
	}
	defer df.Close()
	data := dfg.GetData()
	buf := make([]byte, 8*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	if _, err := df.Write(buf); err != nil {
		return errs.Wrap(errs.MPIFailure, err, "processmanager: write checkpoint data")
	}
	return nil
}

// ReadCheckpoint reconstructs a DFG from a checkpoint written by
// WriteCheckpoint, rebuilding it with fullgrid.New and overwriting its data
// buffer with the checkpointed values.
func ReadCheckpoint(pathPrefix string) (*fullgrid.DFG, error) {
	hf, err := os.Open(pathPrefix + ".raw_header")
	if err != nil {
		return nil, errs.Wrap(errs.MPIFailure, err, "processmanager: open checkpoint header")
	}
	defer hf.Close()
	var hdr checkpointHeader
	if err := gob.NewDecoder(hf).Decode(&hdr); err != nil {
		return nil, errs.Wrap(errs.MPIFailure, err, "processmanager: decode checkpoint header")
	}
	if hdr.ByteOrder != "little" {
		return nil, errs.New(errs.MPIFailure, "processmanager: checkpoint %s has unsupported byte order %q", pathPrefix, hdr.ByteOrder)
	}

	raw, err := os.ReadFile(pathPrefix + ".raw")
	if err != nil {
		return nil, errs.Wrap(errs.MPIFailure, err, "processmanager: read checkpoint data")
	}
	if len(raw)%8 != 0 {
		return nil, errs.New(errs.MPIFailure, "processmanager: checkpoint %s has a non-float64-aligned data file", pathPrefix)
	}
	values := make([]float64, len(raw)/8)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
	}

	dfg := fullgrid.New(hdr.Level, hdr.Boundary, hdr.ElementType, hdr.ProcsPerDim, hdr.Rank)
	dst := dfg.GetData()
	if len(dst) != len(values) {
		return nil, errs.New(errs.MPIFailure, "processmanager: checkpoint %s data length %d does not match rebuilt DFG's local size %d", pathPrefix, len(values), len(dst))
	}
	copy(dst, values)
	return dfg, nil
}

func checkpointPathPrefix(dir, taskID string, rank int) string {
	return fmt.Sprintf("%s/%s.rank%d", dir, taskID, rank)
}
