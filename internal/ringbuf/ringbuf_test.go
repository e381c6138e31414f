package ringbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushAndSnapshot(t *testing.T) {
	r := New(8)
	for i := 0; i < 5; i++ {
		r.Push(float64(i))
	}
	assert.Equal(t, 5, r.Len())

	got := r.SnapshotLast(3)
	assert.Equal(t, []float64{2, 3, 4}, got)

	// Snapshot does not consume.
	assert.Equal(t, 5, r.Len())
	assert.Equal(t, []float64{2, 3, 4}, r.SnapshotLast(3))
}

func TestEvictionWhenFull(t *testing.T) {
	r := New(4)
	for i := 0; i < 10; i++ {
		r.Push(float64(i))
	}
	assert.Equal(t, 4, r.Len())
	assert.Equal(t, []float64{6, 7, 8, 9}, r.SnapshotLast(4))
}

func TestAdvance(t *testing.T) {
	r := New(8)
	for i := 0; i < 8; i++ {
		r.Push(float64(i))
	}
	r.Advance(3)
	assert.Equal(t, 5, r.Len())
	assert.Equal(t, []float64{3, 4, 5, 6, 7}, r.SnapshotLast(5))

	// Advancing past the content just empties the ring.
	r.Advance(100)
	assert.Equal(t, 0, r.Len())
}

func TestSnapshotMoreThanBuffered(t *testing.T) {
	r := New(8)
	r.Push(1)
	r.Push(2)
	assert.Equal(t, []float64{1, 2}, r.SnapshotLast(5))
}

func TestOverlappingWindows(t *testing.T) {
	// The scheduler's snapshot+advance pattern: N=4, H=2.
	r := New(8)
	for i := 0; i < 4; i++ {
		r.Push(float64(i))
	}
	w1 := r.SnapshotLast(4)
	r.Advance(2)
	for i := 4; i < 6; i++ {
		r.Push(float64(i))
	}
	w2 := r.SnapshotLast(4)

	require.Equal(t, []float64{0, 1, 2, 3}, w1)
	require.Equal(t, []float64{2, 3, 4, 5}, w2)
}

func TestWrapAroundSnapshot(t *testing.T) {
	r := New(4)
	for i := 0; i < 6; i++ {
		r.Push(float64(i))
	}
	r.Advance(1)
	r.Push(6)
	assert.Equal(t, []float64{3, 4, 5, 6}, r.SnapshotLast(4))
}

func TestDualLockstep(t *testing.T) {
	d := NewDual(6)
	for i := 0; i < 4; i++ {
		d.Push(float64(i), float64(-i))
	}
	assert.Equal(t, 4, d.Len())

	l, r := d.SnapshotLast(2)
	assert.Equal(t, []float64{2, 3}, l)
	assert.Equal(t, []float64{-2, -3}, r)

	d.Advance(2)
	assert.Equal(t, 2, d.Len())
}
