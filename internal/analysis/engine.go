// SPDX-License-Identifier: MIT
/*
Package analysis turns mono PCM chunks into spectral and rhythmic features.

Pipeline per chunk (Engine.Analyze):
- Take the most recent FFTSize samples; shorter chunks are skipped
- Window (Hann by default) and run a real FFT
- Reduce to FFTSize/2 magnitudes and derive band levels
- Update the beat tracker and tempo estimate
- Optionally derive spectral descriptors and instrument confidences

Thread Safety:
- An Engine serves exactly one stream from one goroutine
- Workspaces are pre-allocated; only the returned Result is allocated
*/
package analysis

import (
	"fmt"
	"time"

	"beatscope/internal/config"
	applog "beatscope/internal/log"
)

// FrequencyData is the half spectrum of one frame.
type FrequencyData struct {
	Frequencies []float64 `json:"frequencies"`
	Amplitudes  []float64 `json:"amplitudes"`
	SampleRate  float64   `json:"sampleRate"`
	Nyquist     float64   `json:"nyquist"`
}

// Result is produced once per analysed chunk. The caller owns it; the
// engine keeps no reference to any of its slices.
type Result struct {
	FrequencyData    FrequencyData     `json:"frequencyData"`
	Features         Features          `json:"features"`
	ExtendedFeatures *ExtendedFeatures `json:"extendedFeatures,omitempty"`
	Timestamp        time.Time         `json:"timestamp"`
}

// Option configures an Engine at construction.
type Option func(*Engine) error

// WithClock replaces time.Now as the source of beat and result timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) error {
		if now == nil {
			return fmt.Errorf("clock cannot be nil")
		}
		e.now = now
		return nil
	}
}

// WithClassifier replaces the instrument heuristic.
func WithClassifier(c Classifier) Option {
	return func(e *Engine) error {
		if c == nil {
			return fmt.Errorf("classifier cannot be nil")
		}
		e.classifier = c
		return nil
	}
}

// WithExtended sets the initial extended analysis state.
func WithExtended(enabled bool) Option {
	return func(e *Engine) error {
		e.extended = enabled
		return nil
	}
}

// WithFluxMode selects the spectral flux definition.
func WithFluxMode(mode FluxMode) Option {
	return func(e *Engine) error {
		e.fluxMode = mode
		return nil
	}
}

// WithWindow selects the window function.
func WithWindow(fn WindowFunc) Option {
	return func(e *Engine) error {
		e.windowFunc = fn
		return nil
	}
}

// OptionsFromConfig translates the analysis section of the configuration.
func OptionsFromConfig(c config.AnalysisConfig) ([]Option, error) {
	mode, err := ParseFluxMode(c.FluxMode)
	if err != nil {
		return nil, err
	}
	fn, err := ParseWindowFunc(c.Window)
	if err != nil {
		return nil, err
	}
	return []Option{WithExtended(c.Extended), WithFluxMode(mode), WithWindow(fn)}, nil
}

// Engine owns one windower, spectral transform, feature extractor and
// beat tracker for a single stream.
type Engine struct {
	cfg config.AudioConfig

	windower   *Windower
	spectrum   *SpectralTransform
	extractor  *FeatureExtractor
	tracker    *BeatTracker
	classifier Classifier

	extended   bool
	fluxMode   FluxMode
	windowFunc WindowFunc
	now        func() time.Time

	// Pre-allocated frame buffers.
	frame    []float64 // Raw tail of the chunk.
	windowed []float64 // frame after windowing.
}

// NewEngine validates cfg and builds an engine for it.
func NewEngine(cfg config.AudioConfig, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("analysis: %w", err)
	}

	e := &Engine{
		cfg:        cfg,
		classifier: HeuristicClassifier{},
		now:        time.Now,
		windowFunc: Hann,
		frame:      make([]float64, FFTSize),
		windowed:   make([]float64, FFTSize),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("analysis: %w", err)
		}
	}

	spectrum, err := NewSpectralTransform(FFTSize, float64(cfg.SampleRate))
	if err != nil {
		return nil, fmt.Errorf("analysis: %w", err)
	}
	e.spectrum = spectrum
	e.windower = NewWindower(FFTSize, e.windowFunc)
	e.extractor = NewFeatureExtractor(spectrum.BinCount(), float64(cfg.SampleRate), e.fluxMode)
	e.tracker = NewBeatTracker()

	applog.Infof("Analysis: engine ready (SampleRate: %d Hz, Buffer: %d, FFT: %d, Window: %s, Extended: %v)",
		cfg.SampleRate, cfg.BufferSize, FFTSize, e.windower.Func(), e.extended)

	return e, nil
}

// Analyze processes one chunk. Only the last FFTSize samples are used.
// A chunk shorter than FFTSize is not an error: it yields (nil, false)
// and leaves all state untouched.
func (e *Engine) Analyze(chunk []float32) (*Result, bool) {
	if len(chunk) < FFTSize {
		if applog.Enabled(applog.LevelDebug) {
			applog.Debugf("Analysis: skipping chunk of %d samples (need %d)", len(chunk), FFTSize)
		}
		return nil, false
	}

	tail := chunk[len(chunk)-FFTSize:]
	for i, s := range tail {
		e.frame[i] = float64(s)
	}

	e.windower.ApplyInto(e.windowed, e.frame)
	amplitudes := e.spectrum.Transform(e.windowed)
	frequencies := e.spectrum.Frequencies()

	features := e.extractor.Basic(amplitudes, frequencies)
	now := e.now()
	features.BeatDetected = e.tracker.Update(features.BassLevel, now)
	features.Tempo = e.tracker.Tempo()

	result := &Result{
		FrequencyData: FrequencyData{
			Frequencies: append([]float64(nil), frequencies...),
			Amplitudes:  append([]float64(nil), amplitudes...),
			SampleRate:  e.spectrum.SampleRate(),
			Nyquist:     e.spectrum.Nyquist(),
		},
		Features:  features,
		Timestamp: now,
	}

	if e.extended {
		ext := e.extractor.Extended(features, amplitudes, frequencies, e.frame)
		ext.InstrumentDetection = e.classifier.Classify(features)
		result.ExtendedFeatures = &ext
	}

	return result, true
}

// UpdateConfig replaces the stream configuration. The bin frequency map
// follows the new sample rate and the beat tracker is reset to empty:
// beat and tempo history is discarded, never rescaled. An invalid config
// is rejected and leaves the engine unchanged.
func (e *Engine) UpdateConfig(cfg config.AudioConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("analysis: %w", err)
	}

	rate := float64(cfg.SampleRate)
	e.spectrum.SetSampleRate(rate)
	e.extractor.SetSampleRate(rate)
	e.extractor.Reset()
	e.tracker.Reset()

	applog.Infof("Analysis: reconfigured (SampleRate: %d -> %d Hz, Buffer: %d -> %d), beat history reset",
		e.cfg.SampleRate, cfg.SampleRate, e.cfg.BufferSize, cfg.BufferSize)
	e.cfg = cfg
	return nil
}

// EnableExtendedAnalysis toggles extended features from the next call.
// Turning it on starts spectral flux from an empty previous frame.
func (e *Engine) EnableExtendedAnalysis(enabled bool) {
	if enabled && !e.extended {
		e.extractor.Reset()
	}
	e.extended = enabled
}

// ExtendedEnabled reports whether extended features are computed.
func (e *Engine) ExtendedEnabled() bool { return e.extended }

// Config returns the current stream configuration.
func (e *Engine) Config() config.AudioConfig { return e.cfg }

// BandRanges exposes the current bass, mid and treble bin ranges.
func (e *Engine) BandRanges() (bass, mid, treble [2]int) { return e.extractor.BandRanges() }
