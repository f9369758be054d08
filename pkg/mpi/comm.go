package mpi

import (
	"encoding/binary"
	"math"
)

// Comm is one communicator: a group of ranks plus this caller's position
// in it. A Comm is cheap to pass around — many Comms can share the same
// underlying group as long as every rank agrees on which communicator a
// given call belongs to.
type Comm struct {
	rank int
	g    *group
}

// NewComm builds size independent Comm handles (rank 0..size-1) sharing one
// underlying rank group, i.e. one communicator.
func NewComm(size int) []*Comm {
	g := newGroup(size)
	comms := make([]*Comm, size)
	for r := 0; r < size; r++ {
		comms[r] = &Comm{rank: r, g: g}
	}
	return comms
}

// Rank returns this handle's rank within the communicator.
func (c *Comm) Rank() int { return c.rank }

// Size returns the communicator's size.
func (c *Comm) Size() int { return c.g.size }

// Barrier blocks until every rank has called Barrier.
func (c *Comm) Barrier() {
	c.g.barrier(c.rank)
}

// Bcast broadcasts root's data to every rank. Non-root callers' data
// argument is ignored; every rank (including root) returns the broadcast
// value.
func (c *Comm) Bcast(root int, data []byte) []byte {
	res := c.g.collective(c.rank, data, func(contrib []interface{}) []interface{} {
		payload, _ := contrib[root].([]byte)
		out := make([]interface{}, len(contrib))
		for i := range out {
			out[i] = payload
		}
		return out
	})
	b, _ := res.([]byte)
	return b
}

// Allreduce sums data elementwise across every rank and returns the sum to
// every rank. Every rank's data must be the same length.
func (c *Comm) Allreduce(data []float64) []float64 {
	res := c.g.collective(c.rank, data, func(contrib []interface{}) []interface{} {
		sum := sumAll(contrib)
		out := make([]interface{}, len(contrib))
		for i := range out {
			out[i] = sum
		}
		return out
	})
	f, _ := res.([]float64)
	return f
}

// AllreduceMax takes the elementwise maximum of data across every rank and
// returns it to every rank. Used to unify per-rank or per-group subspace
// sizes (INIT_DSGUS, REDUCE_SUBSPACE_SIZES_TL) where every participant must
// end up able to hold the largest size anyone reported.
func (c *Comm) AllreduceMax(data []float64) []float64 {
	res := c.g.collective(c.rank, data, func(contrib []interface{}) []interface{} {
		max := maxAll(contrib)
		out := make([]interface{}, len(contrib))
		for i := range out {
			out[i] = max
		}
		return out
	})
	f, _ := res.([]float64)
	return f
}

// Reduce sums data elementwise across every rank, landing the result only
// at root; other ranks get nil.
func (c *Comm) Reduce(root int, data []float64) []float64 {
	res := c.g.collective(c.rank, data, func(contrib []interface{}) []interface{} {
		sum := sumAll(contrib)
		out := make([]interface{}, len(contrib))
		out[root] = sum
		return out
	})
	f, _ := res.([]float64)
	return f
}

// Gatherv concatenates every rank's data, in rank order, landing the result
// only at root; other ranks get nil.
func (c *Comm) Gatherv(root int, data []float64) []float64 {
	res := c.g.collective(c.rank, data, func(contrib []interface{}) []interface{} {
		var out0 []float64
		for _, v := range contrib {
			f, _ := v.([]float64)
			out0 = append(out0, f...)
		}
		out := make([]interface{}, len(contrib))
		out[root] = out0
		return out
	})
	f, _ := res.([]float64)
	return f
}

// scattervPayload is root's input to Scatterv: the full buffer plus the
// per-rank chunk sizes, in rank order. Non-root callers pass nil.
type scattervPayload struct {
	data  []float64
	sizes []int
}

// Scatterv splits root's data into per-rank chunks of the given sizes (in
// rank order) and distributes one chunk to each rank. Non-root callers'
// data/sizes arguments are ignored.
func (c *Comm) Scatterv(root int, data []float64, sizes []int) []float64 {
	var payload interface{}
	if c.rank == root {
		payload = scattervPayload{data: data, sizes: sizes}
	}
	res := c.g.collective(c.rank, payload, func(contrib []interface{}) []interface{} {
		sp, _ := contrib[root].(scattervPayload)
		out := make([]interface{}, len(contrib))
		off := 0
		for r, n := range sp.sizes {
			out[r] = append([]float64(nil), sp.data[off:off+n]...)
			off += n
		}
		return out
	})
	f, _ := res.([]float64)
	return f
}

// BcastFloats broadcasts root's float64 slice to every rank, encoding it as
// bytes over Bcast so callers needn't round-trip through it themselves (used
// to push a group's combined DSG buffer out after a global reduce, and to
// share subspace sizes and the third-level exchange result within a group).
func (c *Comm) BcastFloats(root int, data []float64) []float64 {
	var raw []byte
	if c.rank == root {
		raw = encodeFloats(data)
	}
	raw = c.Bcast(root, raw)
	return decodeFloats(raw)
}

func encodeFloats(data []float64) []byte {
	buf := make([]byte, 8*len(data))
	for i, f := range data {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeFloats(buf []byte) []float64 {
	out := make([]float64, len(buf)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return out
}

func sumAll(contrib []interface{}) []float64 {
	var sum []float64
	for _, v := range contrib {
		f, _ := v.([]float64)
		if sum == nil {
			sum = make([]float64, len(f))
		}
		for i, x := range f {
			sum[i] += x
		}
	}
	return sum
}

func maxAll(contrib []interface{}) []float64 {
	var max []float64
	for _, v := range contrib {
		f, _ := v.([]float64)
		if max == nil {
			max = make([]float64, len(f))
			copy(max, f)
			continue
		}
		for i, x := range f {
			if x > max[i] {
				max[i] = x
			}
		}
	}
	return max
}
