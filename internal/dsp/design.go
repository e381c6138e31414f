package dsp

import (
	"fmt"
	"math"
	"math/cmplx"
)

// Notch designs a single-section IIR notch at freq with quality factor q,
// unity gain away from the notch.
func Notch(freq, q, fs float64) (SOS, error) {
	if freq <= 0 || freq >= fs/2 {
		return nil, fmt.Errorf("dsp: notch frequency %g Hz outside (0, %g)", freq, fs/2)
	}
	if q <= 0 {
		return nil, fmt.Errorf("dsp: notch Q must be positive, got %g", q)
	}
	w0 := 2 * math.Pi * freq / fs
	alpha := math.Sin(w0) / (2 * q)
	cosw := math.Cos(w0)

	a0 := 1 + alpha
	return SOS{{
		B0: 1 / a0,
		B1: -2 * cosw / a0,
		B2: 1 / a0,
		A1: -2 * cosw / a0,
		A2: (1 - alpha) / a0,
	}}, nil
}

// Bandpass designs an order-N Butterworth bandpass as an SOS cascade via
// the analog prototype and the bilinear transform, normalized to unity gain
// at the geometric center of the band.
func Bandpass(order int, low, high, fs float64) (SOS, error) {
	if order < 1 {
		return nil, fmt.Errorf("dsp: bandpass order must be >= 1, got %d", order)
	}
	if low <= 0 || high <= low {
		return nil, fmt.Errorf("dsp: bandpass band (%g, %g) must satisfy 0 < low < high", low, high)
	}
	if high >= fs/2 {
		return nil, fmt.Errorf("dsp: bandpass high cutoff %g Hz at or above Nyquist %g Hz", high, fs/2)
	}

	// Prewarped analog edge frequencies.
	w1 := 2 * fs * math.Tan(math.Pi*low/fs)
	w2 := 2 * fs * math.Tan(math.Pi*high/fs)
	w0 := math.Sqrt(w1 * w2)
	bw := w2 - w1

	// Analog Butterworth lowpass prototype poles on the unit circle,
	// then the lowpass→bandpass substitution s → (s² + w0²)/(bw·s),
	// which splits each prototype pole into two.
	analog := make([]complex128, 0, 2*order)
	for k := 1; k <= order; k++ {
		theta := math.Pi * float64(2*k+order-1) / float64(2*order)
		p := cmplx.Exp(complex(0, theta))
		pb := complex(bw, 0) * p / 2
		d := cmplx.Sqrt(pb*pb - complex(w0*w0, 0))
		analog = append(analog, pb+d, pb-d)
	}

	// Bilinear transform of the poles. The bandpass zeros (order at s=0,
	// order at s=∞) map to z=+1 and z=−1.
	digital := make([]complex128, len(analog))
	for i, p := range analog {
		digital[i] = (complex(2*fs, 0) + p) / (complex(2*fs, 0) - p)
	}

	sections, err := pairPoles(digital)
	if err != nil {
		return nil, err
	}

	// Each section carries one zero at +1 and one at −1: numerator (1, 0, −1).
	for i := range sections {
		sections[i].B0 = 1
		sections[i].B1 = 0
		sections[i].B2 = -1
	}

	// Normalize to unity magnitude at the band center.
	center := math.Sqrt(low * high)
	mag := SOS(sections).magnitudeAt(center, fs)
	if mag == 0 || math.IsNaN(mag) || math.IsInf(mag, 0) {
		return nil, fmt.Errorf("dsp: degenerate bandpass design for (%g, %g) Hz at fs=%g", low, high, fs)
	}
	gain := 1 / mag
	// Spread the gain across sections to keep intermediate values bounded.
	perSection := math.Pow(gain, 1/float64(len(sections)))
	for i := range sections {
		sections[i].B0 *= perSection
		sections[i].B1 *= perSection
		sections[i].B2 *= perSection
	}
	return sections, nil
}

// pairPoles groups digital poles into conjugate (or real) pairs, producing
// one denominator per section.
func pairPoles(poles []complex128) ([]Section, error) {
	const tol = 1e-10
	var complexPoles, realPoles []complex128
	for _, p := range poles {
		if math.Abs(imag(p)) > tol {
			if imag(p) > 0 {
				complexPoles = append(complexPoles, p)
			}
		} else {
			realPoles = append(realPoles, p)
		}
	}
	if len(realPoles)%2 != 0 {
		return nil, fmt.Errorf("dsp: unpaired real pole in bandpass design")
	}

	sections := make([]Section, 0, len(complexPoles)+len(realPoles)/2)
	for _, p := range complexPoles {
		sections = append(sections, Section{
			A1: -2 * real(p),
			A2: real(p)*real(p) + imag(p)*imag(p),
		})
	}
	for i := 0; i+1 < len(realPoles); i += 2 {
		r1, r2 := real(realPoles[i]), real(realPoles[i+1])
		sections = append(sections, Section{
			A1: -(r1 + r2),
			A2: r1 * r2,
		})
	}
	return sections, nil
}

// magnitudeAt evaluates |H(e^{jω})| of the cascade at frequency f.
func (s SOS) magnitudeAt(f, fs float64) float64 {
	w := 2 * math.Pi * f / fs
	z1 := cmplx.Exp(complex(0, -w))
	z2 := z1 * z1
	h := complex(1, 0)
	for _, sec := range s {
		num := complex(sec.B0, 0) + complex(sec.B1, 0)*z1 + complex(sec.B2, 0)*z2
		den := complex(1, 0) + complex(sec.A1, 0)*z1 + complex(sec.A2, 0)*z2
		h *= num / den
	}
	return cmplx.Abs(h)
}
