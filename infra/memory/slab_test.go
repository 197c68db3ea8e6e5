package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testNode struct {
	ID   uint64
	Next uint32
}

func TestAllocReleaseReuse(t *testing.T) {
	s := NewSlab[testNode](4)
	assert.Equal(t, 4, s.Cap())
	assert.Equal(t, 0, s.InUse())

	idx := s.Alloc()
	s.At(idx).ID = 7
	assert.Equal(t, 1, s.InUse())

	s.Release(idx)
	assert.Equal(t, 0, s.InUse())

	again := s.Alloc()
	assert.Equal(t, idx, again, "freed slot is reused first")
	assert.Equal(t, uint64(0), s.At(again).ID, "released slot is zeroed")
}

func TestIndicesAreStable(t *testing.T) {
	s := NewSlab[testNode](8)
	a := s.Alloc()
	b := s.Alloc()
	s.At(a).ID = 1
	s.At(b).ID = 2

	// Churn other slots; a and b must be untouched.
	for i := 0; i < 20; i++ {
		c := s.Alloc()
		s.Release(c)
	}
	assert.Equal(t, uint64(1), s.At(a).ID)
	assert.Equal(t, uint64(2), s.At(b).ID)
}

func TestExhaustionPanics(t *testing.T) {
	s := NewSlab[testNode](2)
	s.Alloc()
	s.Alloc()
	require.Panics(t, func() { s.Alloc() })
}
