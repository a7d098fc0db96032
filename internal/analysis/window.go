// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"strings"

	applog "beatscope/internal/log"

	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc selects the taper applied to a frame before the FFT.
type WindowFunc int

const (
	Hann WindowFunc = iota
	Hamming
	Blackman
	BlackmanNuttall
	BartlettHann
	Nuttall
)

// String returns the configuration name of the window.
func (w WindowFunc) String() string {
	switch w {
	case Hann:
		return "hann"
	case Hamming:
		return "hamming"
	case Blackman:
		return "blackman"
	case BlackmanNuttall:
		return "blackmannuttall"
	case BartlettHann:
		return "bartletthann"
	case Nuttall:
		return "nuttall"
	default:
		return fmt.Sprintf("window(%d)", int(w))
	}
}

// ParseWindowFunc converts a name (case-insensitive) to a WindowFunc.
// Empty names select Hann. Unknown names return Hann and an error.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "hann", "hanning":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "bartletthann":
		return BartlettHann, nil
	case "nuttall":
		return Nuttall, nil
	default:
		return Hann, fmt.Errorf("unknown window function name: %q", name)
	}
}

// Windower multiplies frames by a precomputed coefficient table. For Hann
// the coefficient of sample i is 0.5*(1-cos(2πi/(N-1))).
type Windower struct {
	fn     WindowFunc
	coeffs []float64
}

// NewWindower precomputes coefficients for frames of length size.
func NewWindower(size int, fn WindowFunc) *Windower {
	coeffs := make([]float64, size)
	for i := range coeffs {
		coeffs[i] = 1.0
	}

	switch fn {
	case Hann:
		window.Hann(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	default:
		applog.Warnf("Analysis: unknown window function %d, defaulting to Hann", fn)
		fn = Hann
		window.Hann(coeffs)
	}

	return &Windower{fn: fn, coeffs: coeffs}
}

// Size returns the frame length the windower was built for.
func (w *Windower) Size() int { return len(w.coeffs) }

// Func returns the window in use.
func (w *Windower) Func() WindowFunc { return w.fn }

// Window returns a new windowed copy of frame. frame must have Size()
// samples.
func (w *Windower) Window(frame []float64) []float64 {
	return w.ApplyInto(make([]float64, len(w.coeffs)), frame)
}

// ApplyInto writes the windowed frame into dst and returns it. dst and
// frame must both have Size() samples; dst may alias frame.
func (w *Windower) ApplyInto(dst, frame []float64) []float64 {
	for i, c := range w.coeffs {
		dst[i] = frame[i] * c
	}
	return dst
}
