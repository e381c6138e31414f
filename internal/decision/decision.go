// Package decision classifies instantaneous attention direction from the
// hemispheric alpha-power lateralization index, with adaptive threshold
// calibration and majority-vote smoothing.
package decision

import (
	"log/slog"
	"math"

	"github.com/visiona/neurolink/internal/config"
	"github.com/visiona/neurolink/internal/quality"
)

const liEpsilon = 1e-12

// Direction is the classified attention direction.
type Direction int

const (
	Unknown Direction = iota
	Left
	Right
	Neutral
)

// String returns the uppercase wire name of the direction.
func (d Direction) String() string {
	switch d {
	case Left:
		return "LEFT"
	case Right:
		return "RIGHT"
	case Neutral:
		return "NEUTRAL"
	default:
		return "UNKNOWN"
	}
}

// Result is the per-window decision output.
type Result struct {
	LI                float64
	Direction         Direction
	SmoothedDirection Direction
	Confidence        float64
	Calibrated        bool
}

// Statistics is a snapshot of the engine's history.
type Statistics struct {
	LIMean, LIStd, LIMin, LIMax       float64
	LeftCount, RightCount, NeutralCount int
}

// CalibrationStatus reports calibration progress.
type CalibrationStatus struct {
	Calibrated     bool
	Collected      int
	Required       int
	LeftThreshold  float64
	RightThreshold float64
}

const liHistoryCap = 200
const ewmaAlpha = 0.05

// Engine holds all decision state: the calibration buffer, the smoothing
// deque, the LI history and the per-channel alpha EWMAs. It is owned by the
// scheduler and mutated only from the scheduler loop.
type Engine struct {
	cfg config.Decision

	leftThreshold  float64
	rightThreshold float64
	calibrated     bool

	calibration []float64
	smoothing   []Direction
	liHistory   []float64

	leftAlphaEWMA  float64
	rightAlphaEWMA float64
	ewmaSeeded     bool

	leftCount, rightCount, neutralCount int
}

// New creates an engine with static thresholds; adaptive calibration takes
// over once the calibration buffer fills.
func New(cfg config.Decision) *Engine {
	return &Engine{
		cfg:            cfg,
		leftThreshold:  cfg.LILeftThreshold,
		rightThreshold: cfg.LIRightThreshold,
	}
}

// LateralizationIndex is (right − left) / (right + left + ε) clamped to
// [−1, 1].
func LateralizationIndex(leftAlpha, rightAlpha float64) float64 {
	li := (rightAlpha - leftAlpha) / (rightAlpha + leftAlpha + liEpsilon)
	return clamp(li, -1, 1)
}

// Decide processes one window. Gated windows (quality below the gate, or
// any non-clean artifact under strict gating) come back UNKNOWN with zero
// confidence and do not feed smoothing or calibration.
func (e *Engine) Decide(leftAlpha, rightAlpha, qualityScore float64, leftArtifact, rightArtifact quality.Artifact) Result {
	li := LateralizationIndex(leftAlpha, rightAlpha)

	if math.IsNaN(li) || math.IsInf(li, 0) {
		return Result{Direction: Unknown, SmoothedDirection: e.smoothed(), Calibrated: e.calibrated}
	}

	gated := qualityScore < e.cfg.QualityGate
	if e.cfg.StrictGating && (leftArtifact != quality.Clean || rightArtifact != quality.Clean) {
		gated = true
	}
	if gated {
		return Result{
			LI:                li,
			Direction:         Unknown,
			SmoothedDirection: e.smoothed(),
			Confidence:        0,
			Calibrated:        e.calibrated,
		}
	}

	e.feedCalibration(li)

	dir := e.classify(li)
	conf := e.confidence(li, dir)

	e.smoothing = append(e.smoothing, dir)
	if len(e.smoothing) > e.cfg.SmoothingWindow {
		e.smoothing = e.smoothing[len(e.smoothing)-e.cfg.SmoothingWindow:]
	}
	e.liHistory = append(e.liHistory, li)
	if len(e.liHistory) > liHistoryCap {
		e.liHistory = e.liHistory[len(e.liHistory)-liHistoryCap:]
	}
	e.updateEWMA(leftAlpha, rightAlpha)

	switch dir {
	case Left:
		e.leftCount++
	case Right:
		e.rightCount++
	case Neutral:
		e.neutralCount++
	}

	return Result{
		LI:                li,
		Direction:         dir,
		SmoothedDirection: e.smoothed(),
		Confidence:        conf,
		Calibrated:        e.calibrated,
	}
}

func (e *Engine) classify(li float64) Direction {
	switch {
	case li < e.leftThreshold:
		return Left
	case li > e.rightThreshold:
		return Right
	default:
		return Neutral
	}
}

// confidence maps the distance of LI from the nearer threshold onto [0, 1].
// Lateral calls saturate at half the remaining dynamic range beyond the
// threshold; NEUTRAL reaches 1 only at the band's center, half the band
// width inside either threshold.
func (e *Engine) confidence(li float64, dir Direction) float64 {
	switch dir {
	case Left:
		span := e.leftThreshold - (-1)
		if span <= 0 {
			return 1
		}
		return clamp(2*(e.leftThreshold-li)/span, 0, 1)
	case Right:
		span := 1 - e.rightThreshold
		if span <= 0 {
			return 1
		}
		return clamp(2*(li-e.rightThreshold)/span, 0, 1)
	case Neutral:
		width := e.rightThreshold - e.leftThreshold
		if width <= 0 {
			return 0.5
		}
		distNearer := math.Min(li-e.leftThreshold, e.rightThreshold-li)
		return clamp(2*distNearer/width, 0, 1)
	default:
		return 0
	}
}

// feedCalibration accumulates LI values until the buffer fills, then locks
// the adaptive thresholds at μ ± k·σ.
func (e *Engine) feedCalibration(li float64) {
	if e.calibrated || !e.cfg.AdaptiveThreshold {
		return
	}
	e.calibration = append(e.calibration, li)
	if len(e.calibration) < e.cfg.CalibrationSamples {
		return
	}

	mean, std := meanStd(e.calibration)
	e.leftThreshold = mean - e.cfg.AdaptiveK*std
	e.rightThreshold = mean + e.cfg.AdaptiveK*std
	e.calibrated = true

	slog.Info("decision: calibration complete",
		"samples", len(e.calibration),
		"li_mean", mean,
		"li_std", std,
		"left_threshold", e.leftThreshold,
		"right_threshold", e.rightThreshold,
	)
}

// smoothed returns the majority direction of the smoothing deque; ties and
// an empty deque resolve to NEUTRAL and UNKNOWN respectively.
func (e *Engine) smoothed() Direction {
	if len(e.smoothing) == 0 {
		return Unknown
	}
	counts := map[Direction]int{}
	for _, d := range e.smoothing {
		counts[d]++
	}
	best, bestCount, tied := Neutral, 0, false
	for _, d := range []Direction{Left, Right, Neutral} {
		switch {
		case counts[d] > bestCount:
			best, bestCount, tied = d, counts[d], false
		case counts[d] == bestCount && counts[d] > 0:
			tied = true
		}
	}
	if tied {
		return Neutral
	}
	return best
}

func (e *Engine) updateEWMA(leftAlpha, rightAlpha float64) {
	if !e.ewmaSeeded {
		e.leftAlphaEWMA = leftAlpha
		e.rightAlphaEWMA = rightAlpha
		e.ewmaSeeded = true
		return
	}
	e.leftAlphaEWMA = (1-ewmaAlpha)*e.leftAlphaEWMA + ewmaAlpha*leftAlpha
	e.rightAlphaEWMA = (1-ewmaAlpha)*e.rightAlphaEWMA + ewmaAlpha*rightAlpha
}

// Recalibrate clears all adaptive state and returns to the static
// thresholds.
func (e *Engine) Recalibrate() {
	e.calibration = nil
	e.smoothing = nil
	e.liHistory = nil
	e.leftAlphaEWMA, e.rightAlphaEWMA, e.ewmaSeeded = 0, 0, false
	e.leftThreshold = e.cfg.LILeftThreshold
	e.rightThreshold = e.cfg.LIRightThreshold
	e.calibrated = false
	slog.Info("decision: recalibrating, thresholds reset",
		"left_threshold", e.leftThreshold,
		"right_threshold", e.rightThreshold,
	)
}

// Calibration reports the current calibration progress and thresholds.
func (e *Engine) Calibration() CalibrationStatus {
	return CalibrationStatus{
		Calibrated:     e.calibrated,
		Collected:      len(e.calibration),
		Required:       e.cfg.CalibrationSamples,
		LeftThreshold:  e.leftThreshold,
		RightThreshold: e.rightThreshold,
	}
}

// Stats summarizes the LI history and the decision counts.
func (e *Engine) Stats() Statistics {
	s := Statistics{
		LeftCount:    e.leftCount,
		RightCount:   e.rightCount,
		NeutralCount: e.neutralCount,
	}
	if len(e.liHistory) == 0 {
		return s
	}
	mean, std := meanStd(e.liHistory)
	s.LIMean, s.LIStd = mean, std
	s.LIMin, s.LIMax = e.liHistory[0], e.liHistory[0]
	for _, v := range e.liHistory[1:] {
		s.LIMin = math.Min(s.LIMin, v)
		s.LIMax = math.Max(s.LIMax, v)
	}
	return s
}

// AlphaBaselines returns the per-channel running mean alpha powers.
func (e *Engine) AlphaBaselines() (left, right float64) {
	return e.leftAlphaEWMA, e.rightAlphaEWMA
}

func meanStd(x []float64) (mean, std float64) {
	for _, v := range x {
		mean += v
	}
	mean /= float64(len(x))
	for _, v := range x {
		d := v - mean
		std += d * d
	}
	std = math.Sqrt(std / float64(len(x)))
	return mean, std
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
