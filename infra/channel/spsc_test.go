package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapacityRoundsToPowerOfTwo(t *testing.T) {
	assert.Equal(t, uint64(8), NewSPSC[int](5).Cap())
	assert.Equal(t, uint64(4), NewSPSC[int](4).Cap())
	assert.Equal(t, uint64(1), NewSPSC[int](0).Cap())
}

func TestPushPopFIFO(t *testing.T) {
	q := NewSPSC[int](16)
	for i := 0; i < 10; i++ {
		require.True(t, q.Push(i))
	}
	for i := 0; i < 10; i++ {
		var v int
		require.True(t, q.Pop(&v))
		assert.Equal(t, i, v)
	}
	var v int
	assert.False(t, q.Pop(&v))
}

func TestPushFailsWhenFull(t *testing.T) {
	q := NewSPSC[int](4)
	for i := 0; i < 4; i++ {
		require.True(t, q.Push(i))
	}
	assert.False(t, q.Push(99))

	var v int
	require.True(t, q.Pop(&v))
	assert.True(t, q.Push(99))
}

func TestApproxSizeTracksOccupancy(t *testing.T) {
	q := NewSPSC[int](64)
	for i := 0; i < 40; i++ {
		require.True(t, q.Push(i))
	}
	var v int
	for i := 0; i < 15; i++ {
		require.True(t, q.Pop(&v))
	}
	assert.Equal(t, uint64(25), q.ApproxSize())
}

func TestWrapAround(t *testing.T) {
	q := NewSPSC[int](4)
	var v int
	for round := 0; round < 100; round++ {
		require.True(t, q.Push(round))
		require.True(t, q.Pop(&v))
		assert.Equal(t, round, v)
	}
	assert.Equal(t, uint64(0), q.ApproxSize())
}

func TestConcurrentTransfer(t *testing.T) {
	const n = 100000
	q := NewSPSC[uint64](1024)

	go func() {
		for i := uint64(1); i <= n; i++ {
			for !q.Push(i) {
			}
		}
	}()

	var got uint64
	prev := uint64(0)
	var sum uint64
	for got < n {
		var v uint64
		if !q.Pop(&v) {
			continue
		}
		require.Equal(t, prev+1, v, "items must arrive in FIFO order")
		prev = v
		sum += v
		got++
	}
	assert.Equal(t, uint64(n)*(n+1)/2, sum)
}
