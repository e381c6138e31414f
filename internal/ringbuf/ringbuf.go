// Package ringbuf provides the bounded sample FIFOs that back the sliding
// window scheduler.
//
// A Ring holds float64 samples in a fixed-capacity circular buffer. Pushing
// into a full ring evicts the oldest sample, so a slow consumer never blocks
// the producer. Overlapping windows are realized with SnapshotLast (read the
// most recent N without consuming) followed by Advance (drop the oldest H).
package ringbuf

// Ring is a fixed-capacity FIFO of samples with overwrite-on-full semantics.
// It is not safe for concurrent use; the scheduler owns it exclusively.
type Ring struct {
	buf   []float64
	head  int // index of oldest sample
	count int
}

// New creates a ring with the given capacity.
func New(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]float64, capacity)}
}

// Push appends a sample, evicting the oldest one when full.
func (r *Ring) Push(v float64) {
	tail := (r.head + r.count) % len(r.buf)
	r.buf[tail] = v
	if r.count == len(r.buf) {
		r.head = (r.head + 1) % len(r.buf)
	} else {
		r.count++
	}
}

// Len returns the number of buffered samples.
func (r *Ring) Len() int { return r.count }

// Cap returns the fixed capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// SnapshotLast copies the most recent n samples (oldest first) into a new
// slice without consuming them. If fewer than n samples are buffered, all of
// them are returned.
func (r *Ring) SnapshotLast(n int) []float64 {
	if n > r.count {
		n = r.count
	}
	out := make([]float64, n)
	start := (r.head + r.count - n) % len(r.buf)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}

// Advance drops the oldest h samples.
func (r *Ring) Advance(h int) {
	if h > r.count {
		h = r.count
	}
	r.head = (r.head + h) % len(r.buf)
	r.count -= h
}

// Clear drops all buffered samples.
func (r *Ring) Clear() {
	r.head = 0
	r.count = 0
}

// Dual keeps the two channel rings in lockstep.
type Dual struct {
	Left, Right *Ring
}

// NewDual creates a lockstep pair with identical capacities.
func NewDual(capacity int) *Dual {
	return &Dual{Left: New(capacity), Right: New(capacity)}
}

// Push appends one sample per channel.
func (d *Dual) Push(left, right float64) {
	d.Left.Push(left)
	d.Right.Push(right)
}

// Len returns the buffered sample count (both rings advance together).
func (d *Dual) Len() int { return d.Left.Len() }

// SnapshotLast snapshots both channels.
func (d *Dual) SnapshotLast(n int) (left, right []float64) {
	return d.Left.SnapshotLast(n), d.Right.SnapshotLast(n)
}

// Advance drops the oldest h samples from both channels.
func (d *Dual) Advance(h int) {
	d.Left.Advance(h)
	d.Right.Advance(h)
}
