// Package sink delivers window records to their destinations. All sinks
// share the {WriteRecord, Flush, Close} capability set; the scheduler fans
// records out through a Multi sink in emission order.
package sink

import (
	"log/slog"
	"time"

	"github.com/visiona/neurolink/internal/decision"
	"github.com/visiona/neurolink/internal/quality"
)

// Record is the per-window result emitted by the scheduler.
type Record struct {
	Timestamp   time.Time
	WindowIndex uint64
	TraceID     string
	SampleCount uint64

	LeftAlphaPower  float64
	RightAlphaPower float64

	LI                float64
	Direction         decision.Direction
	Confidence        float64
	SmoothedDirection decision.Direction
	Calibrated        bool

	QualityScore  float64
	LeftSNRdB     float64
	RightSNRdB    float64
	LeftArtifact  quality.Artifact
	RightArtifact quality.Artifact

	// Terminal marks the final record of a run; Reason says why.
	Terminal bool
	Reason   string
}

// Sink is the destination contract for window records.
type Sink interface {
	// WriteRecord accepts one record. Implementations must not block the
	// scheduler on transient failures; a sink that cannot recover disables
	// itself and keeps returning nil.
	WriteRecord(r Record) error
	// Flush forces buffered records out.
	Flush() error
	// Close flushes and releases the destination.
	Close() error
}

// Multi fans records out to several sinks in order, isolating per-sink
// failures.
type Multi struct {
	sinks []Sink
}

// NewMulti wraps the given sinks; nil entries are skipped.
func NewMulti(sinks ...Sink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// WriteRecord delivers r to every sink; a failing sink is logged and the
// rest still receive the record.
func (m *Multi) WriteRecord(r Record) error {
	for _, s := range m.sinks {
		if err := s.WriteRecord(r); err != nil {
			slog.Error("sink: write failed", "error", err)
		}
	}
	return nil
}

// Flush flushes every sink.
func (m *Multi) Flush() error {
	for _, s := range m.sinks {
		if err := s.Flush(); err != nil {
			slog.Error("sink: flush failed", "error", err)
		}
	}
	return nil
}

// Close closes every sink.
func (m *Multi) Close() error {
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			slog.Error("sink: close failed", "error", err)
		}
	}
	return nil
}
