package engine

import (
	"sync"
	"time"

	"github.com/visiona/neurolink/internal/features"
	"github.com/visiona/neurolink/internal/quality"
)

// windowJob is one window handed to the analysis worker.
type windowJob struct {
	index       uint64
	sampleCount uint64
	leftRaw     []float64
	rightRaw    []float64
}

// windowResult is the worker's output for one job.
type windowResult struct {
	job     windowJob
	left    channelAnalysis
	right   channelAnalysis
	elapsed time.Duration
}

// channelAnalysis bundles one channel's per-window outputs.
type channelAnalysis struct {
	features features.Set
	quality  quality.Report
}

// mailbox is a pair of single-slot, condition-variable slots carrying at
// most one outstanding window between the scheduling loop and the analysis
// worker. The single slot preserves window ordering by construction: the
// loop must collect result i before it can publish job i+1.
type mailbox struct {
	mu   sync.Mutex
	cond *sync.Cond

	job    *windowJob
	result *windowResult
	closed bool
}

func newMailbox() *mailbox {
	m := &mailbox{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// publish hands a job to the worker. The caller guarantees the previous
// result was already collected, so the slot is always free.
func (m *mailbox) publish(j windowJob) {
	m.mu.Lock()
	m.job = &j
	m.cond.Broadcast()
	m.mu.Unlock()
}

// take blocks until a job is available or the mailbox closes; ok is false
// on close.
func (m *mailbox) take() (windowJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.job == nil && !m.closed {
		m.cond.Wait()
	}
	if m.job == nil {
		return windowJob{}, false
	}
	j := *m.job
	m.job = nil
	return j, true
}

// post publishes the worker's result back to the loop.
func (m *mailbox) post(r windowResult) {
	m.mu.Lock()
	m.result = &r
	m.cond.Broadcast()
	m.mu.Unlock()
}

// collect blocks until the outstanding result arrives; ok is false when the
// mailbox closed with no result pending.
func (m *mailbox) collect() (windowResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.result == nil && !m.closed {
		m.cond.Wait()
	}
	if m.result == nil {
		return windowResult{}, false
	}
	r := *m.result
	m.result = nil
	return r, true
}

// close wakes every waiter; subsequent takes and collects drain whatever is
// already slotted and then report closure.
func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.cond.Broadcast()
	m.mu.Unlock()
}
