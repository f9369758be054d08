package levelvector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDominates(t *testing.T) {
	a := New(3, 2)
	b := New(2, 2)
	assert.True(t, a.Dominates(b))
	assert.False(t, b.Dominates(a))
	assert.True(t, a.Dominates(a))
}

func TestMaxMin(t *testing.T) {
	a := New(3, 1)
	b := New(2, 4)
	assert.True(t, Max(a, b).Equal(New(3, 4)))
	assert.True(t, Min(a, b).Equal(New(2, 1)))
}

func TestEnumerateCount(t *testing.T) {
	lo := New(1, 1)
	hi := New(2, 3)
	got := Enumerate(lo, hi)
	assert.Len(t, got, 2*3)
}

func TestEnumerateEmptyWhenLoAboveHi(t *testing.T) {
	lo := New(2, 1)
	hi := New(1, 1)
	assert.Empty(t, Enumerate(lo, hi))
}

func TestLessIsTotalOrder(t *testing.T) {
	a := New(1, 2)
	b := New(1, 3)
	assert.True(t, Less(a, b))
	assert.False(t, Less(b, a))
}
