package dsp

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Welch estimates the one-sided power spectral density of x using Welch's
// method: Hann-windowed segments of nperseg samples with 50% overlap,
// per-segment mean removal, density scaling. Returns the frequency grid and
// the PSD; both are empty when the input is too short to form one segment.
func Welch(x []float64, fs float64, nperseg int) (freqs, psd []float64) {
	if nperseg > len(x) {
		nperseg = len(x)
	}
	if nperseg < 8 || fs <= 0 {
		return nil, nil
	}

	window := hann(nperseg)
	var winPower float64
	for _, w := range window {
		winPower += w * w
	}

	step := nperseg / 2
	if step < 1 {
		step = 1
	}

	fft := fourier.NewFFT(nperseg)
	nbins := nperseg/2 + 1
	acc := make([]float64, nbins)
	seg := make([]float64, nperseg)

	segments := 0
	for start := 0; start+nperseg <= len(x); start += step {
		copy(seg, x[start:start+nperseg])

		var mean float64
		for _, v := range seg {
			mean += v
		}
		mean /= float64(nperseg)
		for i := range seg {
			seg[i] = (seg[i] - mean) * window[i]
		}

		coeff := fft.Coefficients(nil, seg)
		for i, c := range coeff {
			acc[i] += real(c)*real(c) + imag(c)*imag(c)
		}
		segments++
	}
	if segments == 0 {
		return nil, nil
	}

	scale := 1 / (fs * winPower * float64(segments))
	psd = make([]float64, nbins)
	freqs = make([]float64, nbins)
	for i := range psd {
		psd[i] = acc[i] * scale
		// One-sided: double everything except DC and Nyquist.
		if i != 0 && !(nperseg%2 == 0 && i == nbins-1) {
			psd[i] *= 2
		}
		freqs[i] = float64(i) * fs / float64(nperseg)
	}
	return freqs, psd
}

// hann returns the periodic Hann window of length n.
func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n)))
	}
	return w
}

// BandPower integrates the PSD over [lo, hi] with the trapezoidal rule.
// Returns 0 when the band contains fewer than two bins.
func BandPower(freqs, psd []float64, lo, hi float64) float64 {
	var power float64
	prev := -1
	for i := range freqs {
		if freqs[i] < lo || freqs[i] > hi {
			continue
		}
		if prev >= 0 {
			power += (psd[prev] + psd[i]) / 2 * (freqs[i] - freqs[prev])
		}
		prev = i
	}
	return power
}

// Envelope returns the instantaneous amplitude of x: the magnitude of the
// analytic signal obtained by zeroing the negative-frequency half of the
// spectrum.
func Envelope(x []float64) []float64 {
	n := len(x)
	if n == 0 {
		return nil
	}
	if n == 1 {
		return []float64{math.Abs(x[0])}
	}

	fft := fourier.NewCmplxFFT(n)
	buf := make([]complex128, n)
	for i, v := range x {
		buf[i] = complex(v, 0)
	}
	coeff := fft.Coefficients(nil, buf)

	// Double the positive frequencies, zero the negative ones; DC (and the
	// Nyquist bin for even n) stay untouched.
	if n%2 == 0 {
		for i := 1; i < n/2; i++ {
			coeff[i] *= 2
		}
	} else {
		for i := 1; i <= n/2; i++ {
			coeff[i] *= 2
		}
	}
	for i := n/2 + 1; i < n; i++ {
		coeff[i] = 0
	}

	analytic := fft.Sequence(nil, coeff)
	env := make([]float64, n)
	for i, c := range analytic {
		env[i] = cmplx.Abs(c) / float64(n)
	}
	return env
}
