package fullgrid

import "github.com/sgct-project/combi/pkg/mpi"

// GatherFullGrid gathers every rank's local box into a single row-major
// global buffer at root (scalarWidth(ElementType) floats per grid point).
// Non-root callers get nil, matching the external contract of §4.B. comm
// must be the DFG's owning group's local communicator.
func (d *DFG) GatherFullGrid(root int, comm *mpi.Comm) []float64 {
	concat := comm.Gatherv(root, d.Data)
	if comm.Rank() != root {
		return nil
	}
	w := scalarWidth(d.ElementType)
	total := 1
	for _, s := range d.globalShape {
		total *= s
	}
	full := make([]float64, total*w)

	off := 0
	for r := 0; r < comm.Size(); r++ {
		coords := unrankCartesian(r, d.procsPerDim)
		localShape := make([]int, len(coords))
		localOffset := make([]int, len(coords))
		n := 1
		for k, c := range coords {
			starts := blockStarts(d.globalShape[k], d.procsPerDim[k])
			localOffset[k] = starts[c]
			localShape[k] = starts[c+1] - starts[c]
			n *= localShape[k]
		}
		rankBuf := concat[off : off+n*w]
		off += n * w
		scatterIntoGlobal(rankBuf, localShape, localOffset, d.globalShape, w, full)
	}
	return full
}

// ScatterFullGrid is the inverse of GatherFullGrid: root provides the full
// row-major global buffer and every rank (including root) receives its
// local box copied out of it.
func (d *DFG) ScatterFullGrid(root int, comm *mpi.Comm, full []float64) {
	w := scalarWidth(d.ElementType)
	var data []float64
	var sizes []int
	if comm.Rank() == root {
		data = make([]float64, 0, len(full))
		sizes = make([]int, comm.Size())
		for r := 0; r < comm.Size(); r++ {
			coords := unrankCartesian(r, d.procsPerDim)
			localShape := make([]int, len(coords))
			localOffset := make([]int, len(coords))
			for k, c := range coords {
				starts := blockStarts(d.globalShape[k], d.procsPerDim[k])
				localOffset[k] = starts[c]
				localShape[k] = starts[c+1] - starts[c]
			}
			chunk := gatherFromGlobal(localShape, localOffset, d.globalShape, w, full)
			data = append(data, chunk...)
			sizes[r] = len(chunk)
		}
	}
	d.Data = comm.Scatterv(root, data, sizes)
}

// scatterIntoGlobal copies a rank's local row-major box into its place in
// the global row-major buffer.
func scatterIntoGlobal(local []float64, localShape, localOffset, globalShape []int, w int, global []float64) {
	forEachLocalPoint(localShape, func(li []int) {
		gi := make([]int, len(li))
		for k := range li {
			gi[k] = localOffset[k] + li[k]
		}
		srcIdx := rowMajorIndex(li, localShape)
		dstIdx := rowMajorIndex(gi, globalShape)
		copy(global[dstIdx*w:dstIdx*w+w], local[srcIdx*w:srcIdx*w+w])
	})
}

// gatherFromGlobal is the inverse: extract a rank's local box out of the
// global buffer.
func gatherFromGlobal(localShape, localOffset, globalShape []int, w int, global []float64) []float64 {
	n := 1
	for _, s := range localShape {
		n *= s
	}
	out := make([]float64, n*w)
	forEachLocalPoint(localShape, func(li []int) {
		gi := make([]int, len(li))
		for k := range li {
			gi[k] = localOffset[k] + li[k]
		}
		dstIdx := rowMajorIndex(li, localShape)
		srcIdx := rowMajorIndex(gi, globalShape)
		copy(out[dstIdx*w:dstIdx*w+w], global[srcIdx*w:srcIdx*w+w])
	})
	return out
}

func rowMajorIndex(idx, shape []int) int {
	li := 0
	for k := range idx {
		li = li*shape[k] + idx[k]
	}
	return li
}

func forEachLocalPoint(shape []int, fn func(idx []int)) {
	d := len(shape)
	idx := make([]int, d)
	for {
		fn(idx)
		pos := d - 1
		for pos >= 0 {
			idx[pos]++
			if idx[pos] < shape[pos] {
				break
			}
			idx[pos] = 0
			pos--
		}
		if pos < 0 {
			break
		}
	}
}
