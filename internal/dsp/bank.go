package dsp

import (
	"fmt"
	"log/slog"

	"github.com/visiona/neurolink/internal/config"
)

// Bank holds the precomputed SOS cascades for one sampling rate. The
// coefficient sets are immutable after construction and may be shared
// freely across windows and goroutines.
type Bank struct {
	fs    float64
	order int

	notch SOS
	wide  SOS
	alpha SOS
	beta  SOS

	lineFreq            float64
	alphaLow, alphaHigh float64
	betaLow, betaHigh   float64
}

// NewBank designs all cascades from the signal configuration, failing fast
// on any band the sampling rate cannot support.
func NewBank(cfg config.Signal) (*Bank, error) {
	if cfg.SamplingRate <= 2*cfg.BandpassHigh {
		return nil, fmt.Errorf("dsp: sampling rate %g Hz cannot represent the %g Hz bandpass edge",
			cfg.SamplingRate, cfg.BandpassHigh)
	}

	notch, err := Notch(cfg.NotchFreq, cfg.NotchQ, cfg.SamplingRate)
	if err != nil {
		return nil, err
	}
	wide, err := Bandpass(cfg.FilterOrder, cfg.BandpassLow, cfg.BandpassHigh, cfg.SamplingRate)
	if err != nil {
		return nil, fmt.Errorf("dsp: wideband design: %w", err)
	}
	alpha, err := Bandpass(cfg.FilterOrder, cfg.AlphaLow, cfg.AlphaHigh, cfg.SamplingRate)
	if err != nil {
		return nil, fmt.Errorf("dsp: alpha band design: %w", err)
	}
	beta, err := Bandpass(cfg.FilterOrder, cfg.BetaLow, cfg.BetaHigh, cfg.SamplingRate)
	if err != nil {
		return nil, fmt.Errorf("dsp: beta band design: %w", err)
	}

	b := &Bank{
		fs:        cfg.SamplingRate,
		order:     cfg.FilterOrder,
		notch:     notch,
		wide:      wide,
		alpha:     alpha,
		beta:      beta,
		lineFreq:  cfg.NotchFreq,
		alphaLow:  cfg.AlphaLow,
		alphaHigh: cfg.AlphaHigh,
		betaLow:   cfg.BetaLow,
		betaHigh:  cfg.BetaHigh,
	}

	slog.Info("dsp: filter bank ready",
		"fs", cfg.SamplingRate,
		"order", cfg.FilterOrder,
		"notch_hz", cfg.NotchFreq,
		"wide", fmt.Sprintf("%g-%g Hz", cfg.BandpassLow, cfg.BandpassHigh),
		"alpha", fmt.Sprintf("%g-%g Hz", cfg.AlphaLow, cfg.AlphaHigh),
		"beta", fmt.Sprintf("%g-%g Hz", cfg.BetaLow, cfg.BetaHigh),
	)
	return b, nil
}

// Fs returns the sampling rate the bank was designed for.
func (b *Bank) Fs() float64 { return b.fs }

// LineFreq returns the configured power line frequency.
func (b *Bank) LineFreq() float64 { return b.lineFreq }

// AlphaBand returns the alpha passband edges.
func (b *Bank) AlphaBand() (lo, hi float64) { return b.alphaLow, b.alphaHigh }

// BetaBand returns the beta passband edges.
func (b *Bank) BetaBand() (lo, hi float64) { return b.betaLow, b.betaHigh }

// Preprocess subtracts the window mean, removes the line frequency with the
// notch, then restricts to the wideband range. The second return is false
// when the window was too short and came back unfiltered.
func (b *Bank) Preprocess(x []float64) ([]float64, bool) {
	if len(x) == 0 {
		return nil, false
	}
	centered := make([]float64, len(x))
	var mean float64
	for _, v := range x {
		mean += v
	}
	mean /= float64(len(x))
	for i, v := range x {
		centered[i] = v - mean
	}

	notched, ok1 := b.notch.FiltFilt(centered)
	wide, ok2 := b.wide.FiltFilt(notched)
	return wide, ok1 && ok2
}

// ExtractAlpha applies the alpha bandpass to a preprocessed signal.
func (b *Bank) ExtractAlpha(x []float64) []float64 {
	y, _ := b.alpha.FiltFilt(x)
	return y
}

// ExtractBeta applies the beta bandpass to a preprocessed signal.
func (b *Bank) ExtractBeta(x []float64) []float64 {
	y, _ := b.beta.FiltFilt(x)
	return y
}

// PowerSpectrum estimates the PSD of x with the bank's default segmenting:
// nperseg = min(len(x), fs).
func (b *Bank) PowerSpectrum(x []float64) (freqs, psd []float64) {
	nperseg := len(x)
	if fsInt := int(b.fs); fsInt < nperseg && fsInt > 0 {
		nperseg = fsInt
	}
	return Welch(x, b.fs, nperseg)
}

// LineNoisePower integrates the PSD of x over ±1 Hz around the line
// frequency. Callers pass the mean-subtracted raw window so the notch has
// not already removed the component being measured.
func (b *Bank) LineNoisePower(x []float64) float64 {
	freqs, psd := b.PowerSpectrum(x)
	return BandPower(freqs, psd, b.lineFreq-1, b.lineFreq+1)
}

// AlphaPower is the mean square of the alpha-band signal extracted from a
// preprocessed window.
func (b *Bank) AlphaPower(preprocessed []float64) float64 {
	return MeanSquare(b.ExtractAlpha(preprocessed))
}

// BetaPower is the mean square of the beta-band signal.
func (b *Bank) BetaPower(preprocessed []float64) float64 {
	return MeanSquare(b.ExtractBeta(preprocessed))
}

// MeanSquare returns mean(x²), 0 for empty input.
func MeanSquare(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return sum / float64(len(x))
}

// Variance returns the population variance of x, 0 for empty input.
func Variance(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var mean float64
	for _, v := range x {
		mean += v
	}
	mean /= float64(len(x))
	var sum float64
	for _, v := range x {
		d := v - mean
		sum += d * d
	}
	return sum / float64(len(x))
}
