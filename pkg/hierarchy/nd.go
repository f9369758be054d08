package hierarchy

// strides returns the row-major strides for shape.
func strides(shape []int) []int {
	s := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= shape[i]
	}
	return s
}

// forEachLine calls fn once per 1D line of data along dimension dim, for
// every combination of the other dimensions' indices. fn receives a
// scratch slice holding that line's values (in order along dim); whatever
// fn leaves in the slice is written back into data after it returns.
func forEachLine(data []float64, shape []int, dim int, fn func(line []float64)) {
	str := strides(shape)
	n := len(shape)
	total := len(data)
	lineLen := shape[dim]
	lineStride := str[dim]

	// iterate over every starting offset that is the first element (index 0
	// along dim) of some line.
	outerShape := make([]int, 0, n-1)
	outerStrides := make([]int, 0, n-1)
	for i := 0; i < n; i++ {
		if i == dim {
			continue
		}
		outerShape = append(outerShape, shape[i])
		outerStrides = append(outerStrides, str[i])
	}

	scratch := make([]float64, lineLen)
	idx := make([]int, len(outerShape))
	for {
		base := 0
		for i, v := range idx {
			base += v * outerStrides[i]
		}
		if base < total {
			for k := 0; k < lineLen; k++ {
				scratch[k] = data[base+k*lineStride]
			}
			fn(scratch)
			for k := 0; k < lineLen; k++ {
				data[base+k*lineStride] = scratch[k]
			}
		}
		// advance idx (odometer)
		pos := len(idx) - 1
		for pos >= 0 {
			idx[pos]++
			if idx[pos] < outerShape[pos] {
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

// HierarchizeND transforms data (row-major, shape per dimension) from
// nodal to hierarchical values in place, one dimension at a time
// (unidirectional principle) — each dimension's transform is an
// independent linear operator, so the order dimensions are processed in
// does not affect the result.
func HierarchizeND(data []float64, shape []int, levels []int, boundary []bool) {
	for d := range shape {
		forEachLine(data, shape, d, func(line []float64) {
			Hierarchize1D(line, levels[d], boundary[d])
		})
	}
}

// DehierarchizeND is the inverse of HierarchizeND.
func DehierarchizeND(data []float64, shape []int, levels []int, boundary []bool) {
	for d := range shape {
		forEachLine(data, shape, d, func(line []float64) {
			Dehierarchize1D(line, levels[d], boundary[d])
		})
	}
}
