// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
	"strings"

	"beatscope/internal/config"

	"gonum.org/v1/gonum/floats"
)

// Band boundaries in Hz. Bass is [0, BassCutoff), mid is
// [BassCutoff, TrebleCutoff), treble is [TrebleCutoff, Nyquist].
const (
	BassCutoff   = 250.0
	TrebleCutoff = 4000.0

	// RolloffFraction is the share of spectral energy below the rolloff
	// frequency.
	RolloffFraction = 0.85
)

// FluxMode selects how spectral flux is computed.
type FluxMode int

const (
	// FluxSum reports the sum of the current frame's amplitudes.
	FluxSum FluxMode = iota
	// FluxDelta reports the sum of positive amplitude increases against
	// the previous frame.
	FluxDelta
)

// ParseFluxMode converts a configuration value to a FluxMode.
func ParseFluxMode(name string) (FluxMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", config.FluxSum:
		return FluxSum, nil
	case config.FluxDelta:
		return FluxDelta, nil
	default:
		return FluxSum, fmt.Errorf("%w: %q", config.ErrInvalidFluxMode, name)
	}
}

// Features are the per-chunk levels every analysis produces.
type Features struct {
	BassLevel         float64 `json:"bassLevel"`
	MidLevel          float64 `json:"midLevel"`
	TrebleLevel       float64 `json:"trebleLevel"`
	OverallLevel      float64 `json:"overallLevel"`
	BeatDetected      bool    `json:"beatDetected"`
	Tempo             float64 `json:"tempo"`             // BPM, 0 until two beats are known.
	DominantFrequency float64 `json:"dominantFrequency"` // Hz, DC excluded.
}

// ExtendedFeatures adds spectral shape descriptors and instrument
// confidences. The embedded Features are flattened when encoded.
type ExtendedFeatures struct {
	Features
	SpectralCentroid    float64     `json:"spectralCentroid"`
	SpectralRolloff     float64     `json:"spectralRolloff"`
	SpectralFlux        float64     `json:"spectralFlux"`
	ZeroCrossingRate    float64     `json:"zeroCrossingRate"`
	RMS                 float64     `json:"rms"`
	Peak                float64     `json:"peak"`
	InstrumentDetection Instruments `json:"instrumentDetection"`
}

// binRange is a half-open bin index interval [lo, hi).
type binRange struct {
	lo, hi int
}

func (r binRange) width() int { return r.hi - r.lo }

// FeatureExtractor derives Features from a magnitude spectrum and, when
// requested, ExtendedFeatures from the spectrum and the raw frame.
type FeatureExtractor struct {
	binCount int
	nyquist  float64

	bass, mid, treble binRange

	fluxMode FluxMode
	previous []float64 // Previous amplitudes for FluxDelta, zero before the first frame.
}

// NewFeatureExtractor returns an extractor for binCount bins at the given
// sample rate.
func NewFeatureExtractor(binCount int, sampleRate float64, mode FluxMode) *FeatureExtractor {
	e := &FeatureExtractor{
		binCount: binCount,
		fluxMode: mode,
		previous: make([]float64, binCount),
	}
	e.SetSampleRate(sampleRate)
	return e
}

// SetSampleRate recomputes the band boundaries. Each boundary is
// floor(hz/nyquist*binCount) clamped to [0, binCount], so the three
// ranges stay contiguous and always cover every bin.
func (e *FeatureExtractor) SetSampleRate(sampleRate float64) {
	e.nyquist = sampleRate / 2

	bassEnd := e.boundary(BassCutoff)
	midEnd := max(e.boundary(TrebleCutoff), bassEnd)

	e.bass = binRange{0, bassEnd}
	e.mid = binRange{bassEnd, midEnd}
	e.treble = binRange{midEnd, e.binCount}
}

func (e *FeatureExtractor) boundary(hz float64) int {
	if e.nyquist <= 0 {
		return 0
	}
	idx := int(math.Floor(hz / e.nyquist * float64(e.binCount)))
	return min(max(idx, 0), e.binCount)
}

// Reset forgets the previous frame used by FluxDelta.
func (e *FeatureExtractor) Reset() {
	for i := range e.previous {
		e.previous[i] = 0
	}
}

// Basic computes band levels, overall level and dominant frequency. Beat
// and tempo fields are left for the BeatTracker.
func (e *FeatureExtractor) Basic(amplitudes, frequencies []float64) Features {
	return Features{
		BassLevel:         meanOf(amplitudes, e.bass),
		MidLevel:          meanOf(amplitudes, e.mid),
		TrebleLevel:       meanOf(amplitudes, e.treble),
		OverallLevel:      meanOf(amplitudes, binRange{0, len(amplitudes)}),
		DominantFrequency: dominantFrequency(amplitudes, frequencies),
	}
}

// Extended computes the spectral and temporal descriptors. frame is the
// raw, unwindowed time-domain frame. InstrumentDetection is left zero.
func (e *FeatureExtractor) Extended(base Features, amplitudes, frequencies, frame []float64) ExtendedFeatures {
	rms, peak := rmsAndPeak(frame)
	return ExtendedFeatures{
		Features:         base,
		SpectralCentroid: spectralCentroid(amplitudes, frequencies),
		SpectralRolloff:  spectralRolloff(amplitudes, frequencies, RolloffFraction),
		SpectralFlux:     e.flux(amplitudes),
		ZeroCrossingRate: zeroCrossingRate(frame),
		RMS:              rms,
		Peak:             peak,
	}
}

func (e *FeatureExtractor) flux(amplitudes []float64) float64 {
	if e.fluxMode == FluxSum {
		return floats.Sum(amplitudes)
	}

	var sum float64
	for i, a := range amplitudes {
		if d := a - e.previous[i]; d > 0 {
			sum += d
		}
	}
	copy(e.previous, amplitudes)
	return sum
}

// BandRanges reports the [lo, hi) bin ranges of the three bands.
func (e *FeatureExtractor) BandRanges() (bass, mid, treble [2]int) {
	return [2]int{e.bass.lo, e.bass.hi}, [2]int{e.mid.lo, e.mid.hi}, [2]int{e.treble.lo, e.treble.hi}
}

// meanOf returns the mean amplitude over r, or 0 for an empty range.
func meanOf(amplitudes []float64, r binRange) float64 {
	if r.width() <= 0 {
		return 0
	}
	return floats.Sum(amplitudes[r.lo:r.hi]) / float64(r.width())
}

// dominantFrequency returns the frequency of the strongest bin in
// [1, len). The first maximum wins; an all-zero spectrum yields 0.
func dominantFrequency(amplitudes, frequencies []float64) float64 {
	if len(amplitudes) < 2 {
		return 0
	}
	idx := floats.MaxIdx(amplitudes[1:]) + 1
	if amplitudes[idx] <= 0 {
		return 0
	}
	return frequencies[idx]
}

func spectralCentroid(amplitudes, frequencies []float64) float64 {
	total := floats.Sum(amplitudes)
	if total == 0 {
		return 0
	}
	return floats.Dot(frequencies, amplitudes) / total
}

// spectralRolloff returns the first frequency at which the cumulative
// squared magnitude reaches fraction of the total, or the highest bin
// frequency if the threshold is never reached.
func spectralRolloff(amplitudes, frequencies []float64, fraction float64) float64 {
	if len(amplitudes) == 0 {
		return 0
	}
	threshold := fraction * floats.Dot(amplitudes, amplitudes)

	var cumulative float64
	for i, a := range amplitudes {
		cumulative += a * a
		if cumulative >= threshold {
			return frequencies[i]
		}
	}
	return frequencies[len(frequencies)-1]
}

// zeroCrossingRate counts sign changes between neighbours, treating 0 as
// positive, divided by the frame length.
func zeroCrossingRate(frame []float64) float64 {
	if len(frame) == 0 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(frame); i++ {
		if (frame[i-1] >= 0) != (frame[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(frame))
}

func rmsAndPeak(frame []float64) (rms, peak float64) {
	if len(frame) == 0 {
		return 0, 0
	}
	rms = math.Sqrt(floats.Dot(frame, frame) / float64(len(frame)))
	peak = math.Max(floats.Max(frame), -floats.Min(frame))
	return rms, peak
}
