// Package quality assesses per-window signal quality: SNR, artifact
// classification and a scalar quality score used to gate decisions.
package quality

import (
	"math"
	"sort"

	"github.com/visiona/neurolink/internal/config"
	"github.com/visiona/neurolink/internal/dsp"
)

// Artifact classifies the dominant contamination of a window.
type Artifact int

const (
	Clean Artifact = iota
	HighVariance
	MuscleArtifact
	Saturation
	LineNoise
	LowSignal
)

// String returns the uppercase wire name of the artifact tag.
func (a Artifact) String() string {
	switch a {
	case Clean:
		return "CLEAN"
	case HighVariance:
		return "HIGH_VARIANCE"
	case MuscleArtifact:
		return "MUSCLE_ARTIFACT"
	case Saturation:
		return "SATURATION"
	case LineNoise:
		return "LINE_NOISE"
	case LowSignal:
		return "LOW_SIGNAL"
	default:
		return "HIGH_VARIANCE"
	}
}

// Channel selects which running-variance baseline a window updates.
type Channel int

const (
	Left Channel = iota
	Right
)

// Report is the per-channel quality verdict for one window.
type Report struct {
	SNRdB              float64
	Artifact           Artifact
	QualityScore       float64
	SaturationFraction float64
	LineNoiseRatio     float64
	RawVariance        float64
}

// Assessor computes quality reports. It retains only the per-channel raw
// variance history backing the running-median baseline; everything else is
// a pure function of the window.
type Assessor struct {
	cfg    config.Artifact
	adcMax float64
	bank   *dsp.Bank

	varHistory [2][]float64
}

// New creates an assessor with the given thresholds.
func New(cfg config.Artifact, adcMax int, bank *dsp.Bank) *Assessor {
	return &Assessor{cfg: cfg, adcMax: float64(adcMax), bank: bank}
}

// Assess grades one channel's window. raw is the unfiltered window as
// received from the device; preprocessed is its notch+wideband filtered
// form. The raw variance baseline for the channel is updated as a side
// effect.
func (a *Assessor) Assess(ch Channel, raw, preprocessed []float64) Report {
	var r Report
	if len(raw) == 0 || len(preprocessed) == 0 {
		r.Artifact = LowSignal
		return r
	}

	r.RawVariance = dsp.Variance(raw)
	r.SaturationFraction = a.saturationFraction(raw)

	alphaPower := a.bank.AlphaPower(preprocessed)
	betaPower := a.bank.BetaPower(preprocessed)

	// Line noise is measured on the mean-subtracted raw window; the notch
	// has already removed it from the preprocessed signal.
	centered := make([]float64, len(raw))
	rawMean := meanOf(raw)
	for i, v := range raw {
		centered[i] = v - rawMean
	}
	linePower := a.bank.LineNoisePower(centered)
	if alphaPower > 0 {
		r.LineNoiseRatio = linePower / alphaPower
	} else if linePower > 0 {
		r.LineNoiseRatio = math.Inf(1)
	}

	r.SNRdB = a.snr(preprocessed, alphaPower)

	medianVar := a.updateVariance(ch, r.RawVariance)

	switch {
	case anyNaN(r.RawVariance, alphaPower, betaPower, linePower, r.SNRdB):
		// Numeric breakdown: escalate and zero the score.
		r.Artifact = HighVariance
		r.QualityScore = 0
		r.SNRdB = 0
		return r
	case r.SaturationFraction > a.cfg.SaturationThreshold:
		r.Artifact = Saturation
	case betaPower > a.cfg.MuscleBetaThreshold:
		r.Artifact = MuscleArtifact
	case r.LineNoiseRatio > a.cfg.LineNoiseRatio:
		r.Artifact = LineNoise
	case r.RawVariance > a.cfg.VarianceMultiplier*medianVar:
		r.Artifact = HighVariance
	case r.RawVariance < a.cfg.LowSignalVariance:
		r.Artifact = LowSignal
	default:
		r.Artifact = Clean
	}

	r.QualityScore = a.score(r)
	return r
}

// snr is 10·log10(alpha power / noise power) with the noise taken from the
// 30–40 Hz band. Zero noise reports the +60 dB clamp.
func (a *Assessor) snr(preprocessed []float64, alphaPower float64) float64 {
	freqs, psd := a.bank.PowerSpectrum(preprocessed)
	noise := dsp.BandPower(freqs, psd, 30, 40)
	if noise <= 0 {
		return 60
	}
	if alphaPower <= 0 {
		return -60
	}
	snr := 10 * math.Log10(alphaPower/noise)
	if snr > 60 {
		snr = 60
	}
	return snr
}

func (a *Assessor) saturationFraction(raw []float64) float64 {
	saturated := 0
	for _, v := range raw {
		if v <= 0 || v >= a.adcMax {
			saturated++
		}
	}
	return float64(saturated) / float64(len(raw))
}

// updateVariance appends the window variance to the channel history,
// trimming to the configured window, and returns the running median.
func (a *Assessor) updateVariance(ch Channel, v float64) float64 {
	h := append(a.varHistory[ch], v)
	if len(h) > a.cfg.MedianWindow {
		h = h[len(h)-a.cfg.MedianWindow:]
	}
	a.varHistory[ch] = h

	sorted := make([]float64, len(h))
	copy(sorted, h)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func (a *Assessor) score(r Report) float64 {
	score := 100.0
	score -= r.SaturationFraction * 40
	if r.Artifact != Clean {
		score -= 25
	}
	if r.SNRdB < a.cfg.MinSNRdB {
		score -= (a.cfg.MinSNRdB - r.SNRdB) * 3
	}
	score -= r.LineNoiseRatio * 20

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// Reset clears the variance baselines, e.g. after a recalibration.
func (a *Assessor) Reset() {
	a.varHistory[Left] = nil
	a.varHistory[Right] = nil
}

func anyNaN(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return false
}

func meanOf(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v
	}
	return sum / float64(len(x))
}
