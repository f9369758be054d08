package hierarchy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundTrip1DBoundary(t *testing.T) {
	l := 3
	n := NodalSize(l, true)
	orig := make([]float64, n)
	for i := range orig {
		orig[i] = math.Sin(float64(i))
	}
	v := append([]float64(nil), orig...)
	Hierarchize1D(v, l, true)
	Dehierarchize1D(v, l, true)
	for i := range orig {
		assert.InDelta(t, orig[i], v[i], 1e-12)
	}
}

func TestRoundTrip1DNoBoundary(t *testing.T) {
	l := 4
	n := NodalSize(l, false)
	orig := make([]float64, n)
	for i := range orig {
		orig[i] = float64(i*i) / 10
	}
	v := append([]float64(nil), orig...)
	Hierarchize1D(v, l, false)
	Dehierarchize1D(v, l, false)
	for i := range orig {
		assert.InDelta(t, orig[i], v[i], 1e-12)
	}
}

func TestConstantFunctionHierarchicalSurplusZeroAboveLevel1(t *testing.T) {
	l := 3
	n := NodalSize(l, true)
	v := make([]float64, n)
	for i := range v {
		v[i] = 7.0
	}
	Hierarchize1D(v, l, true)
	for i := 0; i < n; i++ {
		lvl, _, _ := LevelOf(i, l, true)
		if lvl > 1 {
			assert.InDelta(t, 0.0, v[i], 1e-12)
		}
	}
}

func TestLevelOfCoversEveryPositionExactlyOnce(t *testing.T) {
	for _, boundary := range []bool{true, false} {
		l := 4
		n := NodalSize(l, boundary)
		seen := map[[2]int]bool{}
		for i := 0; i < n; i++ {
			lvl, pos, size := LevelOf(i, l, boundary)
			assert.GreaterOrEqual(t, lvl, 1)
			assert.Less(t, pos, size)
			key := [2]int{lvl, pos}
			assert.False(t, seen[key], "duplicate (level,pos) %v for boundary=%v", key, boundary)
			seen[key] = true
		}
	}
}

func TestNDRoundTrip(t *testing.T) {
	shape := []int{NodalSize(2, true), NodalSize(3, false)}
	levels := []int{2, 3}
	boundary := []bool{true, false}
	data := make([]float64, shape[0]*shape[1])
	for i := range data {
		data[i] = math.Cos(float64(i) * 0.37)
	}
	orig := append([]float64(nil), data...)
	HierarchizeND(data, shape, levels, boundary)
	DehierarchizeND(data, shape, levels, boundary)
	for i := range data {
		assert.InDelta(t, orig[i], data[i], 1e-10)
	}
}
