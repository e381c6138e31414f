// Package dsp implements the filter bank and the spectral estimators used
// by the pipeline: second-order-section IIR cascades with zero-phase
// application over finite windows, Welch power spectral density, band power
// integration and the Hilbert envelope.
//
// All coefficient sets are computed once at construction and are immutable;
// every operation is a pure function of (coefficients, input window) and is
// safe to share across goroutines.
package dsp

// Section is a single biquad with the denominator normalized to a0 = 1.
type Section struct {
	B0, B1, B2 float64
	A1, A2     float64
}

// SOS is a cascade of second-order sections.
type SOS []Section

// Filt runs a single forward pass with zero initial state, using the
// Direct Form II Transposed update.
func (s SOS) Filt(x []float64) []float64 {
	y := make([]float64, len(x))
	copy(y, x)
	for i := range s {
		sec := s[i]
		var z1, z2 float64
		for n, v := range y {
			out := sec.B0*v + z1
			z1 = sec.B1*v - sec.A1*out + z2
			z2 = sec.B2*v - sec.A2*out
			y[n] = out
		}
	}
	return y
}

// minSamples is the shortest input FiltFilt will filter; below this the
// window cannot absorb the startup transients of the cascade.
func (s SOS) minSamples() int {
	return 3 * 2 * len(s)
}

// FiltFilt applies the cascade forward and backward, producing zero net
// phase shift over the window. The input is extended at both ends by an odd
// reflection before filtering so the startup transients land in the padding;
// residual edge effects are confined to roughly the first and last
// 3·order samples. Inputs shorter than the minimum support are returned
// unmodified with ok = false.
func (s SOS) FiltFilt(x []float64) (y []float64, ok bool) {
	n := len(x)
	if n < s.minSamples() || n < 3 {
		out := make([]float64, n)
		copy(out, x)
		return out, false
	}

	padlen := 3 * (2*len(s) + 1)
	if padlen > n-1 {
		padlen = n - 1
	}

	// Odd extension about the first and last samples.
	ext := make([]float64, padlen+n+padlen)
	for i := 0; i < padlen; i++ {
		ext[i] = 2*x[0] - x[padlen-i]
	}
	copy(ext[padlen:], x)
	for i := 0; i < padlen; i++ {
		ext[padlen+n+i] = 2*x[n-1] - x[n-2-i]
	}

	fwd := s.Filt(ext)
	reverse(fwd)
	bwd := s.Filt(fwd)
	reverse(bwd)

	y = make([]float64, n)
	copy(y, bwd[padlen:padlen+n])
	return y, true
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}
