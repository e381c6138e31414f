package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visiona/neurolink/internal/config"
)

const testFs = 250.0

// sine produces n samples of amplitude·sin(2π·freq·t) around offset.
func sine(n int, freq, amplitude, offset float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = offset + amplitude*math.Sin(2*math.Pi*freq*float64(i)/testFs)
	}
	return out
}

// middle returns the central 80% of x, away from filter edge transients.
func middle(x []float64) []float64 {
	skip := len(x) / 10
	return x[skip : len(x)-skip]
}

func rmsOf(x []float64) float64 {
	return math.Sqrt(MeanSquare(x))
}

func testBank(t *testing.T) *Bank {
	t.Helper()
	b, err := NewBank(config.Default().Signal)
	require.NoError(t, err)
	return b
}

func TestNotchAttenuatesLineFrequency(t *testing.T) {
	notch, err := Notch(50, 30, testFs)
	require.NoError(t, err)

	x := sine(500, 50, 80, 0)
	y, ok := notch.FiltFilt(x)
	require.True(t, ok)

	in := rmsOf(middle(x))
	out := rmsOf(middle(y))
	attenuation := 20 * math.Log10(in/out)
	assert.GreaterOrEqual(t, attenuation, 20.0,
		"notch should reduce the 50 Hz component by at least 20 dB, got %.1f dB", attenuation)
}

func TestNotchPassesAlphaBand(t *testing.T) {
	notch, err := Notch(50, 30, testFs)
	require.NoError(t, err)

	x := sine(500, 10, 40, 0)
	y, ok := notch.FiltFilt(x)
	require.True(t, ok)

	ratio := rmsOf(middle(y)) / rmsOf(middle(x))
	assert.InDelta(t, 1.0, ratio, 0.05)
}

func TestBandpassUnityGainInPassband(t *testing.T) {
	bp, err := Bandpass(4, 8, 12, testFs)
	require.NoError(t, err)

	x := sine(500, 10, 40, 0)
	y, ok := bp.FiltFilt(x)
	require.True(t, ok)

	ratio := rmsOf(middle(y)) / rmsOf(middle(x))
	assert.InDelta(t, 1.0, ratio, 0.1)
}

func TestBandpassRejectsOutOfBand(t *testing.T) {
	bp, err := Bandpass(4, 8, 12, testFs)
	require.NoError(t, err)

	for _, freq := range []float64{2, 30, 50} {
		x := sine(500, freq, 40, 0)
		y, ok := bp.FiltFilt(x)
		require.True(t, ok)
		ratio := rmsOf(middle(y)) / rmsOf(middle(x))
		assert.Less(t, ratio, 0.2, "alpha bandpass should reject %g Hz", freq)
	}
}

func TestBandpassDesignFailsFast(t *testing.T) {
	cases := []struct {
		name   string
		lo, hi float64
	}{
		{"inverted band", 12, 8},
		{"zero low", 0, 12},
		{"above nyquist", 8, 130},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Bandpass(4, tc.lo, tc.hi, testFs)
			assert.Error(t, err)
		})
	}
}

func TestFiltFiltZeroPhase(t *testing.T) {
	bp, err := Bandpass(4, 8, 12, testFs)
	require.NoError(t, err)

	// An in-band sine must come through without phase shift: the output
	// tracks the input point-wise away from the edges.
	x := sine(500, 10, 40, 0)
	y, ok := bp.FiltFilt(x)
	require.True(t, ok)

	xm, ym := middle(x), middle(y)
	var diff float64
	for i := range xm {
		d := ym[i] - xm[i]
		diff += d * d
	}
	relRMS := math.Sqrt(diff/float64(len(xm))) / rmsOf(xm)
	assert.Less(t, relRMS, 0.1, "zero-phase output should track an in-band sine")
}

func TestFiltFiltUndersampledWindow(t *testing.T) {
	bp, err := Bandpass(4, 8, 12, testFs)
	require.NoError(t, err)

	x := sine(10, 10, 40, 0)
	y, ok := bp.FiltFilt(x)
	assert.False(t, ok)
	assert.Equal(t, x, y, "undersampled input comes back unmodified")
}

func TestPreprocessRemovesMeanAndLine(t *testing.T) {
	b := testBank(t)

	// 10 Hz signal riding on a DC offset with 50 Hz contamination.
	n := 500
	x := make([]float64, n)
	for i := range x {
		ti := float64(i) / testFs
		x[i] = 512 + 40*math.Sin(2*math.Pi*10*ti) + 80*math.Sin(2*math.Pi*50*ti)
	}

	y, ok := b.Preprocess(x)
	require.True(t, ok)

	// DC gone.
	var mean float64
	for _, v := range middle(y) {
		mean += v
	}
	mean /= float64(len(middle(y)))
	assert.InDelta(t, 0, mean, 1.0)

	// 50 Hz component pushed at least 20 dB below the alpha component (at the
	// input it was 6 dB above it).
	freqs, psd := b.PowerSpectrum(y)
	linePower := BandPower(freqs, psd, 49, 51)
	alphaPower := BandPower(freqs, psd, 8, 12)
	require.Greater(t, alphaPower, 0.0)
	assert.Less(t, linePower, alphaPower/100,
		"line component should be far below the alpha component after preprocessing")
}

func TestPreprocessIdempotent(t *testing.T) {
	b := testBank(t)

	x := sine(500, 10, 40, 512)
	once, ok := b.Preprocess(x)
	require.True(t, ok)
	twice, ok := b.Preprocess(once)
	require.True(t, ok)

	om, tm := middle(once), middle(twice)
	var diff float64
	for i := range om {
		d := om[i] - tm[i]
		diff += d * d
	}
	relRMS := math.Sqrt(diff/float64(len(om))) / rmsOf(om)
	assert.Less(t, relRMS, 0.05,
		"preprocessing an already-preprocessed in-band signal should be near-identity")
}

func TestWelchPeakAtSineFrequency(t *testing.T) {
	x := sine(500, 10, 40, 0)
	freqs, psd := Welch(x, testFs, 250)
	require.NotEmpty(t, freqs)

	best := 0
	for i := range psd {
		if psd[i] > psd[best] {
			best = i
		}
	}
	assert.InDelta(t, 10.0, freqs[best], 1.0)
}

func TestWelchBandPowerMatchesSinePower(t *testing.T) {
	// A sine of amplitude A carries power A²/2; the integral of the PSD
	// over a band containing it should recover that.
	amplitude := 40.0
	x := sine(1000, 10, amplitude, 0)
	freqs, psd := Welch(x, testFs, 250)
	require.NotEmpty(t, freqs)

	got := BandPower(freqs, psd, 8, 12)
	want := amplitude * amplitude / 2
	assert.InDelta(t, want, got, 0.3*want)
}

func TestWelchTooShort(t *testing.T) {
	freqs, psd := Welch([]float64{1, 2, 3}, testFs, 250)
	assert.Empty(t, freqs)
	assert.Empty(t, psd)
}

func TestBandPowerZeroGuard(t *testing.T) {
	assert.Equal(t, 0.0, BandPower(nil, nil, 8, 12))

	freqs := []float64{0, 1, 2}
	psd := []float64{0, 0, 0}
	assert.Equal(t, 0.0, BandPower(freqs, psd, 8, 12))
}

func TestEnvelopeOfSine(t *testing.T) {
	amplitude := 40.0
	x := sine(500, 10, amplitude, 0)
	env := Envelope(x)
	require.Len(t, env, len(x))

	m := middle(env)
	var mean float64
	for _, v := range m {
		mean += v
	}
	mean /= float64(len(m))
	assert.InDelta(t, amplitude, mean, 0.1*amplitude)
}

func TestEnvelopeEmptyAndSingle(t *testing.T) {
	assert.Empty(t, Envelope(nil))
	assert.Equal(t, []float64{3}, Envelope([]float64{-3}))
}

func TestMeanSquareAndVariance(t *testing.T) {
	assert.Equal(t, 0.0, MeanSquare(nil))
	assert.Equal(t, 0.0, Variance(nil))
	assert.InDelta(t, 4.0, MeanSquare([]float64{2, -2, 2, -2}), 1e-12)
	assert.InDelta(t, 4.0, Variance([]float64{2, -2, 2, -2}), 1e-12)
	assert.Equal(t, 0.0, Variance([]float64{5, 5, 5}))
}

func TestBankRejectsUnsupportedRate(t *testing.T) {
	cfg := config.Default().Signal
	cfg.SamplingRate = 60 // cannot carry a 40 Hz bandpass edge
	_, err := NewBank(cfg)
	assert.Error(t, err)
}
