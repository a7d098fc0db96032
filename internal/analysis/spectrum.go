// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math/cmplx"

	"beatscope/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
)

// FFTSize is the fixed analysis frame length. The 250 Hz and 4000 Hz band
// boundaries are defined against this resolution.
const FFTSize = 2048

// SpectralTransform reduces a windowed frame to a half spectrum: size/2
// magnitudes and their bin center frequencies. Buffers are allocated once
// and reused; callers that keep results must copy them.
type SpectralTransform struct {
	fft        *fourier.FFT
	size       int
	sampleRate float64

	coeffs      []complex128 // FFT output, size/2+1 values.
	amplitudes  []float64    // Overwritten by every Transform.
	frequencies []float64    // Recomputed only when the sample rate changes.
}

// NewSpectralTransform prepares a transform for frames of length size,
// which must be a power of two.
func NewSpectralTransform(size int, sampleRate float64) (*SpectralTransform, error) {
	if !bitint.IsPowerOfTwo(size) || size < 2 {
		return nil, fmt.Errorf("fft size must be a power of 2, got %d", size)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", sampleRate)
	}

	t := &SpectralTransform{
		fft:         fourier.NewFFT(size),
		size:        size,
		coeffs:      make([]complex128, size/2+1),
		amplitudes:  make([]float64, size/2),
		frequencies: make([]float64, size/2),
	}
	t.SetSampleRate(sampleRate)
	return t, nil
}

// SetSampleRate recomputes the bin frequencies if the rate changed.
func (t *SpectralTransform) SetSampleRate(sampleRate float64) {
	if sampleRate == t.sampleRate {
		return
	}
	t.sampleRate = sampleRate

	// frequencies[i] = i * nyquist / binCount
	binCount := float64(len(t.frequencies))
	nyquist := sampleRate / 2
	for i := range t.frequencies {
		t.frequencies[i] = float64(i) * nyquist / binCount
	}
}

// Transform computes magnitudes for a windowed frame of Size() samples.
// The returned slice is owned by the transform. The Nyquist coefficient
// is computed but not reported.
func (t *SpectralTransform) Transform(windowed []float64) []float64 {
	t.fft.Coefficients(t.coeffs, windowed)
	for i := range t.amplitudes {
		t.amplitudes[i] = cmplx.Abs(t.coeffs[i])
	}
	return t.amplitudes
}

// Frequencies returns the bin center frequencies, owned by the transform.
func (t *SpectralTransform) Frequencies() []float64 { return t.frequencies }

// BinCount returns the number of reported bins (size/2).
func (t *SpectralTransform) BinCount() int { return len(t.amplitudes) }

// Size returns the frame length.
func (t *SpectralTransform) Size() int { return t.size }

// SampleRate returns the configured sample rate in Hz.
func (t *SpectralTransform) SampleRate() float64 { return t.sampleRate }

// Nyquist returns half the sample rate.
func (t *SpectralTransform) Nyquist() float64 { return t.sampleRate / 2 }

// BinWidth returns the spacing between bin centers in Hz.
func (t *SpectralTransform) BinWidth() float64 {
	return t.Nyquist() / float64(len(t.amplitudes))
}
