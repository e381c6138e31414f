// Package features computes the per-window, per-channel scalar feature set
// from a preprocessed signal and its band-limited derivatives.
//
// Extraction is a pure function of one window; the extractor keeps no state
// beyond its configuration and the shared filter bank.
package features

import (
	"math"

	"github.com/visiona/neurolink/internal/dsp"
)

// BandPowers holds the canonical EEG band powers integrated from the
// wideband spectrum.
type BandPowers struct {
	Delta float64
	Theta float64
	Alpha float64
	Beta  float64
	Gamma float64
}

// Set is the per-channel feature record for one window.
type Set struct {
	AlphaPower float64
	BetaPower  float64

	Bands BandPowers

	RMS              float64
	Variance         float64
	PeakToPeak       float64
	ZeroCrossingRate float64

	SpectralEdge95 float64
	MedianFreq     float64
	PeakAlphaFreq  float64

	EnvelopeMean float64
}

// Extractor derives feature sets from preprocessed windows using a shared
// filter bank.
type Extractor struct {
	bank *dsp.Bank
}

// New creates an extractor bound to the given filter bank.
func New(bank *dsp.Bank) *Extractor {
	return &Extractor{bank: bank}
}

// Extract computes the full feature set for one channel. The input is the
// preprocessed wideband signal; alpha and beta are its band-limited
// derivatives (passed in so the scheduler filters each window only once).
func (e *Extractor) Extract(preprocessed, alpha, beta []float64) Set {
	var s Set
	if len(preprocessed) == 0 {
		return s
	}

	s.AlphaPower = dsp.MeanSquare(alpha)
	s.BetaPower = dsp.MeanSquare(beta)
	s.RMS = math.Sqrt(dsp.MeanSquare(preprocessed))
	s.Variance = dsp.Variance(preprocessed)
	s.PeakToPeak = peakToPeak(preprocessed)
	s.ZeroCrossingRate = zeroCrossingRate(preprocessed)

	env := dsp.Envelope(alpha)
	s.EnvelopeMean = mean(env)

	freqs, psd := e.bank.PowerSpectrum(preprocessed)
	if len(freqs) == 0 {
		return s
	}

	fs := e.bank.Fs()
	gammaHigh := math.Min(45, fs/2)
	s.Bands = BandPowers{
		Delta: dsp.BandPower(freqs, psd, 0.5, 4),
		Theta: dsp.BandPower(freqs, psd, 4, 8),
		Alpha: dsp.BandPower(freqs, psd, 8, 12),
		Beta:  dsp.BandPower(freqs, psd, 13, 30),
		Gamma: dsp.BandPower(freqs, psd, 30, gammaHigh),
	}

	s.SpectralEdge95 = spectralFraction(freqs, psd, 0.95)
	s.MedianFreq = spectralFraction(freqs, psd, 0.5)
	alphaLo, alphaHi := e.bank.AlphaBand()
	s.PeakAlphaFreq = peakFrequency(freqs, psd, alphaLo, alphaHi)

	return s
}

// spectralFraction returns the smallest frequency at which the cumulative
// PSD reaches the given fraction of total power, 0 when total power is 0.
func spectralFraction(freqs, psd []float64, fraction float64) float64 {
	var total float64
	for _, p := range psd {
		total += p
	}
	if total <= 0 {
		return 0
	}
	var cum float64
	for i, p := range psd {
		cum += p
		if cum >= fraction*total {
			return freqs[i]
		}
	}
	return freqs[len(freqs)-1]
}

// peakFrequency returns the frequency of the largest PSD bin inside
// [lo, hi], 0 when the band is empty.
func peakFrequency(freqs, psd []float64, lo, hi float64) float64 {
	best := -1
	for i := range freqs {
		if freqs[i] < lo || freqs[i] > hi {
			continue
		}
		if best < 0 || psd[i] > psd[best] {
			best = i
		}
	}
	if best < 0 {
		return 0
	}
	return freqs[best]
}

func peakToPeak(x []float64) float64 {
	lo, hi := x[0], x[0]
	for _, v := range x[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return hi - lo
}

func zeroCrossingRate(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(x); i++ {
		if (x[i-1] >= 0) != (x[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(x))
}

func mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v
	}
	return sum / float64(len(x))
}

// HasNaN reports whether any feature value is NaN or infinite; the caller
// escalates such windows rather than letting the values propagate.
func (s Set) HasNaN() bool {
	vals := []float64{
		s.AlphaPower, s.BetaPower,
		s.Bands.Delta, s.Bands.Theta, s.Bands.Alpha, s.Bands.Beta, s.Bands.Gamma,
		s.RMS, s.Variance, s.PeakToPeak, s.ZeroCrossingRate,
		s.SpectralEdge95, s.MedianFreq, s.PeakAlphaFreq, s.EnvelopeMean,
	}
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return false
}
