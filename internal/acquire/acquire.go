// Package acquire reads the two-channel sample stream from the serial
// device: CSV line parsing and validation, the connection state machine
// with exponential-backoff reconnect, endpoint auto-detection and
// acquisition statistics.
package acquire

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/visiona/neurolink/internal/config"
	"github.com/visiona/neurolink/internal/telemetry"
)

// State is the connection state of the source.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// ReadOutcome is the result variant of one ReadSample call.
type ReadOutcome int

const (
	// OutcomeEmpty means no complete line was available.
	OutcomeEmpty ReadOutcome = iota
	// OutcomeSample carries one validated sample.
	OutcomeSample
	// OutcomeCorrupt means a line was consumed but dropped.
	OutcomeCorrupt
	// OutcomeDisconnected means the source is terminally disconnected.
	OutcomeDisconnected
)

// Sample is one decoded frame from the device.
type Sample struct {
	// TMicros is the device's monotonic microsecond timestamp.
	TMicros uint64
	// Left and Right are the raw ADC readings, validated to [0, ADCMax].
	Left  float64
	Right float64
}

// Stats is a snapshot of acquisition counters.
type Stats struct {
	State            State
	PacketsReceived  uint64
	PacketsCorrupted uint64
	BytesRead        uint64
	Reconnects       uint32
	CorruptionRate   float64
	LastSampleAt     time.Time
}

const maxBackoff = 30 * time.Second
const backoffExponentCap = 5
const readChunk = 4096
const maxPendingBytes = 1 << 16

// Source owns the serial endpoint and decodes its line protocol.
type Source struct {
	cfg    config.Serial
	adcMax float64

	open      Opener
	enumerate Enumerator

	port     Port
	portName string
	state    State

	pending bytes.Buffer
	scratch [readChunk]byte

	packetsReceived  uint64
	packetsCorrupted uint64
	bytesRead        uint64
	reconnects       uint32
	lastSampleAt     time.Time
}

// New creates a source with the production serial transport.
func New(cfg config.Serial, adcMax int) *Source {
	return NewWithTransport(cfg, adcMax, OpenSerial, EnumeratePorts)
}

// NewWithTransport creates a source with an injected transport, used by
// tests and simulators.
func NewWithTransport(cfg config.Serial, adcMax int, open Opener, enumerate Enumerator) *Source {
	return &Source{
		cfg:       cfg,
		adcMax:    float64(adcMax),
		open:      open,
		enumerate: enumerate,
		state:     Disconnected,
	}
}

// State returns the current connection state.
func (s *Source) State() State { return s.state }

// Connect resolves the endpoint (running auto-detection when the configured
// port is empty or "auto") and opens it.
func (s *Source) Connect(ctx context.Context) error {
	s.state = Connecting

	name := s.cfg.Port
	if name == "" || strings.EqualFold(name, "auto") {
		detected, err := detectPort(s.enumerate)
		if err != nil {
			s.state = Disconnected
			return err
		}
		name = detected
	}

	slog.Info("acquire: connecting", "port", name, "baudrate", s.cfg.Baudrate)
	port, err := s.open(name, s.cfg.Baudrate, s.timeout())
	if err != nil {
		s.state = Disconnected
		return err
	}

	s.port = port
	s.portName = name
	s.state = Connected
	s.pending.Reset()
	slog.Info("acquire: connected", "port", name)
	return nil
}

// Disconnect closes the endpoint. Idempotent.
func (s *Source) Disconnect() {
	if s.port != nil {
		if err := s.port.Close(); err != nil {
			slog.Warn("acquire: close failed", "port", s.portName, "error", err)
		}
		s.port = nil
	}
	if s.state != Disconnected {
		slog.Info("acquire: disconnected", "port", s.portName)
	}
	s.state = Disconnected
}

// ReadSample attempts to decode one sample without blocking beyond the
// configured read timeout. A read failure triggers the reconnect policy
// inline; exhaustion leaves the source terminally disconnected.
func (s *Source) ReadSample(ctx context.Context) (Sample, ReadOutcome) {
	if s.state != Connected {
		return Sample{}, OutcomeDisconnected
	}

	// Serve from already-buffered bytes first.
	if line, ok := s.nextLine(); ok {
		return s.parseLine(line)
	}

	n, err := s.port.Read(s.scratch[:])
	if n > 0 {
		s.bytesRead += uint64(n)
		telemetry.BytesRead.Add(float64(n))
		s.pending.Write(s.scratch[:n])
		if s.pending.Len() > maxPendingBytes {
			// A stream with no line terminators is garbage; drop it.
			s.pending.Reset()
			s.packetsCorrupted++
			telemetry.PacketsCorrupted.Inc()
		}
	}
	if err != nil {
		slog.Warn("acquire: read failed", "port", s.portName, "error", err)
		if !s.reconnect(ctx) {
			return Sample{}, OutcomeDisconnected
		}
		return Sample{}, OutcomeEmpty
	}

	if line, ok := s.nextLine(); ok {
		return s.parseLine(line)
	}
	return Sample{}, OutcomeEmpty
}

// nextLine pops one LF-terminated line from the pending buffer.
func (s *Source) nextLine() (string, bool) {
	raw := s.pending.Bytes()
	idx := bytes.IndexByte(raw, '\n')
	if idx < 0 {
		return "", false
	}
	line := string(raw[:idx])
	s.pending.Next(idx + 1)
	return strings.TrimSuffix(line, "\r"), true
}

// parseLine decodes `t,left,right[,...]`. Lines with fewer than three
// numeric fields or out-of-range channel values are dropped and counted.
func (s *Source) parseLine(line string) (Sample, ReadOutcome) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) < 3 {
		return s.corrupt(line)
	}

	t, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
	if err != nil || t < 0 {
		return s.corrupt(line)
	}
	left, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return s.corrupt(line)
	}
	right, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
	if err != nil {
		return s.corrupt(line)
	}
	if left < 0 || left > s.adcMax || right < 0 || right > s.adcMax {
		return s.corrupt(line)
	}

	s.packetsReceived++
	s.lastSampleAt = time.Now()
	telemetry.PacketsReceived.Inc()
	return Sample{TMicros: uint64(t), Left: left, Right: right}, OutcomeSample
}

func (s *Source) corrupt(line string) (Sample, ReadOutcome) {
	s.packetsCorrupted++
	telemetry.PacketsCorrupted.Inc()
	if len(line) > 48 {
		line = line[:48]
	}
	slog.Debug("acquire: dropped malformed line", "line", line)
	return Sample{}, OutcomeCorrupt
}

// reconnect runs the backoff policy: close, wait delay·2^min(attempt, 5)
// capped at 30 s, retry, up to the configured attempt budget. Returns true
// once reconnected; false leaves the source terminally disconnected.
func (s *Source) reconnect(ctx context.Context) bool {
	s.state = Reconnecting
	if s.port != nil {
		s.port.Close()
		s.port = nil
	}

	base := time.Duration(s.cfg.ReconnectDelaySeconds * float64(time.Second))
	for attempt := 0; attempt < s.cfg.MaxReconnectAttempts; attempt++ {
		exp := attempt
		if exp > backoffExponentCap {
			exp = backoffExponentCap
		}
		delay := base * time.Duration(1<<uint(exp))
		if delay > maxBackoff {
			delay = maxBackoff
		}

		slog.Warn("acquire: reconnecting",
			"attempt", attempt+1,
			"max_attempts", s.cfg.MaxReconnectAttempts,
			"delay", delay,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			s.state = Disconnected
			return false
		}

		s.reconnects++
		telemetry.Reconnects.Inc()
		if err := s.Connect(ctx); err != nil {
			slog.Warn("acquire: reconnect attempt failed", "attempt", attempt+1, "error", err)
			continue
		}
		return true
	}

	slog.Error("acquire: reconnect attempts exhausted",
		"attempts", s.cfg.MaxReconnectAttempts,
		"port", s.portName,
	)
	s.state = Disconnected
	return false
}

func (s *Source) timeout() time.Duration {
	return time.Duration(s.cfg.TimeoutSeconds * float64(time.Second))
}

// Stats returns a snapshot of the acquisition counters.
func (s *Source) Stats() Stats {
	total := s.packetsReceived + s.packetsCorrupted
	var rate float64
	if total > 0 {
		rate = float64(s.packetsCorrupted) / float64(total)
	}
	return Stats{
		State:            s.state,
		PacketsReceived:  s.packetsReceived,
		PacketsCorrupted: s.packetsCorrupted,
		BytesRead:        s.bytesRead,
		Reconnects:       s.reconnects,
		CorruptionRate:   rate,
		LastSampleAt:     s.lastSampleAt,
	}
}

// Describe summarizes the source for log lines.
func (s *Source) Describe() string {
	return fmt.Sprintf("%s@%d", s.portName, s.cfg.Baudrate)
}
