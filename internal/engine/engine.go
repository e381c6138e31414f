// Package engine implements the realtime scheduler: it pulls samples from
// the acquisition source into the channel ring buffers, cuts overlapping
// analysis windows, dispatches them through the filter bank, feature
// extractor and quality assessor, applies the decision engine, and fans the
// per-window records out to the sinks.
//
// The loop is single-threaded and cooperative by default: it alternates
// non-blocking source reads with conditional window dispatch and never
// blocks inside the DSP path. An optional analysis worker can carry the
// filtering and feature work of one window off the I/O thread; a single
// mailbox slot keeps at most one window outstanding so records are always
// emitted in strictly increasing window order.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/visiona/neurolink/internal/acquire"
	"github.com/visiona/neurolink/internal/config"
	"github.com/visiona/neurolink/internal/decision"
	"github.com/visiona/neurolink/internal/dsp"
	"github.com/visiona/neurolink/internal/features"
	"github.com/visiona/neurolink/internal/quality"
	"github.com/visiona/neurolink/internal/ringbuf"
	"github.com/visiona/neurolink/internal/sink"
	"github.com/visiona/neurolink/internal/telemetry"
)

// OutcomeKind discriminates RunOutcome variants.
type OutcomeKind int

const (
	// Completed means the run ended at a deadline or stop signal.
	Completed OutcomeKind = iota
	// FatalError means the run ended on an unrecoverable failure.
	FatalError
)

// RunOutcome is the terminal result of one Run.
type RunOutcome struct {
	Kind OutcomeKind
	// ErrKind names the failure class (e.g. "source") when Kind is
	// FatalError.
	ErrKind string
	Detail  string
}

// Options tunes scheduler behavior beyond the shared configuration.
type Options struct {
	// AsyncWorker moves per-window filtering, features and quality off the
	// I/O thread, keeping at most one window outstanding.
	AsyncWorker bool
}

const idleSleep = 500 * time.Microsecond
const statusInterval = 5 * time.Second
const behindThreshold = 3

// Engine owns the ring buffers and all decision state; nothing else
// mutates them.
type Engine struct {
	cfg  config.Config
	opts Options

	source    *acquire.Source
	bank      *dsp.Bank
	extractor *features.Extractor
	assessor  *quality.Assessor
	decider   *decision.Engine
	out       sink.Sink

	rings *ringbuf.Dual

	windowN int
	hopH    int
	budget  time.Duration

	samplesTotal   uint64
	windowIndex    uint64
	newSinceWindow int
	behindStreak   int

	mb          *mailbox
	outstanding bool
}

// New validates the configuration, designs the filter bank and assembles
// the pipeline around the given source and sink.
func New(cfg config.Config, source *acquire.Source, out sink.Sink, opts Options) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	bank, err := dsp.NewBank(cfg.Signal)
	if err != nil {
		return nil, err
	}

	n := cfg.WindowSamples()
	h := cfg.HopSamples()
	e := &Engine{
		cfg:       cfg,
		opts:      opts,
		source:    source,
		bank:      bank,
		extractor: features.New(bank),
		assessor:  quality.New(cfg.Artifact, cfg.Signal.ADCMax, bank),
		decider:   decision.New(cfg.Decision),
		out:       out,
		rings:     ringbuf.NewDual(2 * n),
		windowN:   n,
		hopH:      h,
		budget:    time.Duration(float64(h) / cfg.Signal.SamplingRate * float64(time.Second)),
	}

	slog.Info("engine: scheduler ready",
		"window_samples", n,
		"hop_samples", h,
		"window_s", cfg.Signal.WindowSeconds,
		"overlap", cfg.Signal.WindowOverlap,
		"async_worker", opts.AsyncWorker,
	)
	return e, nil
}

// Decider exposes the decision engine for recalibration requests.
func (e *Engine) Decider() *decision.Engine { return e.decider }

// Run executes the processing loop until the context is cancelled, the
// duration (when positive) elapses, or the source goes terminally
// disconnected. Shutdown always disconnects the source and flushes and
// closes the sink.
func (e *Engine) Run(ctx context.Context, duration time.Duration) RunOutcome {
	defer func() {
		e.source.Disconnect()
		if err := e.out.Close(); err != nil {
			slog.Error("engine: sink close failed", "error", err)
		}
	}()

	if e.opts.AsyncWorker {
		e.mb = newMailbox()
		go e.analysisWorker()
		defer e.mb.close()
	}

	var deadline time.Time
	if duration > 0 {
		deadline = time.Now().Add(duration)
	}
	lastStatus := time.Now()

	for {
		if ctx.Err() != nil {
			slog.Info("engine: stop signal received")
			e.drainOutstanding()
			return RunOutcome{Kind: Completed, Detail: "stopped"}
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			slog.Info("engine: duration reached", "duration", duration)
			e.drainOutstanding()
			return RunOutcome{Kind: Completed, Detail: "duration elapsed"}
		}

		sample, outcome := e.source.ReadSample(ctx)
		switch outcome {
		case acquire.OutcomeSample:
			e.rings.Push(sample.Left, sample.Right)
			e.samplesTotal++
			e.newSinceWindow++
		case acquire.OutcomeDisconnected:
			e.drainOutstanding()
			e.emitTerminal("source disconnected")
			return RunOutcome{
				Kind:    FatalError,
				ErrKind: "source",
				Detail:  "reconnect attempts exhausted",
			}
		case acquire.OutcomeCorrupt:
			// Counted by the source; nothing to schedule.
		case acquire.OutcomeEmpty:
			if !e.windowReady() {
				time.Sleep(idleSleep)
			}
		}

		if e.windowReady() {
			e.dispatchWindow()
		}

		if time.Since(lastStatus) >= statusInterval {
			e.logStatus()
			lastStatus = time.Now()
		}
	}
}

func (e *Engine) windowReady() bool {
	return e.rings.Len() >= e.windowN && e.newSinceWindow >= e.hopH
}

// dispatchWindow snapshots the freshest N samples, advances the hop and
// hands the window to the analysis path.
func (e *Engine) dispatchWindow() {
	left, right := e.rings.SnapshotLast(e.windowN)
	e.rings.Advance(e.hopH)
	e.newSinceWindow -= e.hopH

	job := windowJob{
		index:       e.windowIndex,
		sampleCount: e.samplesTotal,
		leftRaw:     left,
		rightRaw:    right,
	}
	e.windowIndex++

	if e.mb == nil {
		start := time.Now()
		res := e.analyze(job)
		e.finalize(res, time.Since(start))
		return
	}

	// One outstanding window at most: collect the previous result before
	// publishing the next job.
	if e.outstanding {
		if res, ok := e.mb.collect(); ok {
			e.finalize(res, res.elapsed)
		}
	}
	e.mb.publish(job)
	e.outstanding = true
}

// drainOutstanding finalizes an in-flight window before shutdown.
func (e *Engine) drainOutstanding() {
	if e.mb == nil || !e.outstanding {
		return
	}
	if res, ok := e.mb.collect(); ok {
		e.finalize(res, res.elapsed)
	}
	e.outstanding = false
}

// analysisWorker runs filtering, features and quality for one window at a
// time, posting results back to the loop.
func (e *Engine) analysisWorker() {
	for {
		job, ok := e.mb.take()
		if !ok {
			return
		}
		start := time.Now()
		res := e.analyze(job)
		res.elapsed = time.Since(start)
		e.mb.post(res)
	}
}

// analyze runs the per-window DSP for both channels. Features and quality
// have no dependency on each other; both derive from the same preprocessed
// signal.
func (e *Engine) analyze(job windowJob) windowResult {
	return windowResult{
		job:   job,
		left:  e.analyzeChannel(quality.Left, job.leftRaw),
		right: e.analyzeChannel(quality.Right, job.rightRaw),
	}
}

func (e *Engine) analyzeChannel(ch quality.Channel, raw []float64) channelAnalysis {
	pre, ok := e.bank.Preprocess(raw)
	if !ok {
		slog.Warn("engine: window below filter support, passing through", "samples", len(raw))
	}
	alpha := e.bank.ExtractAlpha(pre)
	beta := e.bank.ExtractBeta(pre)

	feats := e.extractor.Extract(pre, alpha, beta)
	rep := e.assessor.Assess(ch, raw, pre)

	// Numeric breakdown in any feature invalidates the whole channel.
	if feats.HasNaN() {
		rep.Artifact = quality.HighVariance
		rep.QualityScore = 0
	}
	return channelAnalysis{features: feats, quality: rep}
}

// finalize applies the decision in emission order and writes the record.
func (e *Engine) finalize(res windowResult, elapsed time.Duration) {
	worst := res.left.quality.QualityScore
	if res.right.quality.QualityScore < worst {
		worst = res.right.quality.QualityScore
	}

	dec := e.decider.Decide(
		res.left.features.AlphaPower,
		res.right.features.AlphaPower,
		worst,
		res.left.quality.Artifact,
		res.right.quality.Artifact,
	)

	rec := sink.Record{
		Timestamp:         time.Now(),
		WindowIndex:       res.job.index,
		TraceID:           uuid.NewString(),
		SampleCount:       res.job.sampleCount,
		LeftAlphaPower:    res.left.features.AlphaPower,
		RightAlphaPower:   res.right.features.AlphaPower,
		LI:                dec.LI,
		Direction:         dec.Direction,
		Confidence:        dec.Confidence,
		SmoothedDirection: dec.SmoothedDirection,
		Calibrated:        dec.Calibrated,
		QualityScore:      worst,
		LeftSNRdB:         res.left.quality.SNRdB,
		RightSNRdB:        res.right.quality.SNRdB,
		LeftArtifact:      res.left.quality.Artifact,
		RightArtifact:     res.right.quality.Artifact,
	}
	if err := e.out.WriteRecord(rec); err != nil {
		slog.Error("engine: record write failed", "window", rec.WindowIndex, "error", err)
	}

	telemetry.WindowsProcessed.Inc()
	telemetry.ProcessingSeconds.Observe(elapsed.Seconds())
	telemetry.QualityScore.Set(worst)
	telemetry.LateralizationIndex.Set(dec.LI)

	// The loop keeps draining the source even when behind; old samples fall
	// off the ring instead of blocking the device.
	if elapsed >= e.budget {
		e.behindStreak++
		if e.behindStreak >= behindThreshold {
			slog.Warn("processing_behind",
				"streak", e.behindStreak,
				"elapsed", elapsed,
				"budget", e.budget,
			)
		}
	} else {
		e.behindStreak = 0
	}
}

// emitTerminal writes the final record of the run.
func (e *Engine) emitTerminal(reason string) {
	rec := sink.Record{
		Timestamp:   time.Now(),
		WindowIndex: e.windowIndex,
		SampleCount: e.samplesTotal,
		Terminal:    true,
		Reason:      reason,
	}
	if err := e.out.WriteRecord(rec); err != nil {
		slog.Error("engine: terminal record write failed", "error", err)
	}
	if err := e.out.Flush(); err != nil {
		slog.Error("engine: final flush failed", "error", err)
	}
	slog.Error("engine: run terminated", "reason", reason, "windows", e.windowIndex)
}

// logStatus summarizes throughput and calibration progress.
func (e *Engine) logStatus() {
	srcStats := e.source.Stats()
	cal := e.decider.Calibration()
	calState := fmt.Sprintf("%d/%d", cal.Collected, cal.Required)
	if cal.Calibrated {
		calState = "done"
	}
	slog.Info("engine: status",
		"samples", e.samplesTotal,
		"windows", e.windowIndex,
		"source_state", srcStats.State.String(),
		"corruption_rate", fmt.Sprintf("%.3f", srcStats.CorruptionRate),
		"calibration", calState,
	)
}
