// SPDX-License-Identifier: MIT
package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"os"
	"reflect"
	"testing"
	"time"

	"beatscope/internal/config"
	applog "beatscope/internal/log"
	"beatscope/pkg/utils"
)

func TestMain(m *testing.M) {
	applog.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// fakeClock is advanced by hand so beat timing is deterministic.
type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Set(ms int) { c.now = at(ms) }

func testConfig(sampleRate int) config.AudioConfig {
	return config.AudioConfig{SampleRate: sampleRate, BufferSize: FFTSize, Channels: 1}
}

func newTestEngine(t *testing.T, sampleRate int, opts ...Option) (*Engine, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: epoch}
	e, err := NewEngine(testConfig(sampleRate), append([]Option{WithClock(clock.Now)}, opts...)...)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e, clock
}

func mustAnalyze(t *testing.T, e *Engine, chunk []float32) *Result {
	t.Helper()
	r, ok := e.Analyze(chunk)
	if !ok || r == nil {
		t.Fatalf("Analyze(%d samples) returned no result", len(chunk))
	}
	return r
}

func TestNewEngineValidation(t *testing.T) {
	tests := []struct {
		desc    string
		cfg     config.AudioConfig
		opts    []Option
		wantErr error
	}{
		{"zero sample rate", config.AudioConfig{BufferSize: 2048, Channels: 1}, nil, config.ErrInvalidSampleRate},
		{"zero buffer", config.AudioConfig{SampleRate: 44100, Channels: 1}, nil, config.ErrInvalidBufferSize},
		{"zero channels", config.AudioConfig{SampleRate: 44100, BufferSize: 2048}, nil, config.ErrInvalidChannels},
		{"nil clock", testConfig(44100), []Option{WithClock(nil)}, nil},
		{"nil classifier", testConfig(44100), []Option{WithClassifier(nil)}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			e, err := NewEngine(tt.cfg, tt.opts...)
			if err == nil || e != nil {
				t.Fatalf("NewEngine() = (%v, %v), want an error", e, err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error %v does not wrap %v", err, tt.wantErr)
			}
		})
	}
}

func TestInsufficientData(t *testing.T) {
	e, _ := newTestEngine(t, 44100)

	for _, n := range []int{0, 1, FFTSize - 1} {
		if r, ok := e.Analyze(make([]float32, n)); ok || r != nil {
			t.Errorf("Analyze(%d samples) = (%v, %v), want (nil, false)", n, r, ok)
		}
	}
	if _, ok := e.Analyze(make([]float32, FFTSize)); !ok {
		t.Errorf("Analyze(%d samples) should produce a result", FFTSize)
	}
}

func TestLongChunkUsesTail(t *testing.T) {
	sine := utils.GenerateSineWave(FFTSize, testSampleRate, 1000, 0.5)
	long := append(utils.GenerateConstant(952, 0.9), sine...)

	a, _ := newTestEngine(t, testSampleRate)
	b, _ := newTestEngine(t, testSampleRate)

	ra := mustAnalyze(t, a, long)
	rb := mustAnalyze(t, b, sine)
	if !reflect.DeepEqual(ra, rb) {
		t.Error("a long chunk should analyse exactly like its last FFTSize samples")
	}
}

func TestSineDominantFrequency(t *testing.T) {
	binWidth := float64(testSampleRate) / FFTSize

	tests := []struct {
		desc      string
		frequency float64
		exact     bool
	}{
		{"bin centered", 18 * binWidth, true},
		{"A4", 440, false},
		{"bass", 100, false},
		{"high", 9000, false},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			e, _ := newTestEngine(t, testSampleRate)
			r := mustAnalyze(t, e, utils.GenerateSineWave(FFTSize, testSampleRate, tt.frequency, 0.8))

			got := r.Features.DominantFrequency
			if tt.exact && got != tt.frequency {
				t.Errorf("DominantFrequency = %v, want exactly %v", got, tt.frequency)
			}
			if math.Abs(got-tt.frequency) > binWidth {
				t.Errorf("DominantFrequency = %v, want within %v of %v", got, binWidth, tt.frequency)
			}
		})
	}
}

func TestSilence(t *testing.T) {
	e, _ := newTestEngine(t, 44100, WithExtended(true))
	r := mustAnalyze(t, e, make([]float32, FFTSize))

	if r.Features != (Features{}) {
		t.Errorf("silence Features = %+v, want zero", r.Features)
	}
	ext := r.ExtendedFeatures
	if ext == nil {
		t.Fatal("ExtendedFeatures missing with extended analysis enabled")
	}
	if ext.SpectralCentroid != 0 || ext.SpectralFlux != 0 || ext.ZeroCrossingRate != 0 ||
		ext.RMS != 0 || ext.Peak != 0 || ext.SpectralRolloff != 0 {
		t.Errorf("silence extended = %+v, want zero descriptors", ext)
	}
	if ext.InstrumentDetection != (Instruments{}) {
		t.Errorf("silence instruments = %+v, want zero", ext.InstrumentDetection)
	}
	for i, a := range r.FrequencyData.Amplitudes {
		if a != 0 {
			t.Fatalf("Amplitudes[%d] = %v, want 0", i, a)
		}
	}
}

func TestConstantAmplitude(t *testing.T) {
	for _, a := range []float32{0.25, -0.25} {
		e, _ := newTestEngine(t, 44100, WithExtended(true))
		ext := mustAnalyze(t, e, utils.GenerateConstant(FFTSize, a)).ExtendedFeatures

		want := math.Abs(float64(a))
		if !nearlyEqual(ext.RMS, want, 1e-9) || !nearlyEqual(ext.Peak, want, 1e-9) {
			t.Errorf("constant %v: RMS=%v Peak=%v, want %v", a, ext.RMS, ext.Peak, want)
		}
	}
}

func TestDeterminism(t *testing.T) {
	inputs := [][]float32{
		utils.GenerateComplexWave(FFTSize, testSampleRate),
		utils.GenerateSineWave(FFTSize, testSampleRate, 100, 0.8),
		make([]float32, FFTSize),
		utils.GenerateSineWave(FFTSize, testSampleRate, 100, 0.8),
	}

	run := func() [][]byte {
		e, clock := newTestEngine(t, testSampleRate, WithExtended(true), WithFluxMode(FluxDelta))
		var out [][]byte
		for i, in := range inputs {
			clock.Set(i * 500)
			data, err := json.Marshal(mustAnalyze(t, e, in))
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			out = append(out, data)
		}
		return out
	}

	first, second := run(), run()
	for i := range first {
		if !bytes.Equal(first[i], second[i]) {
			t.Errorf("result %d differs between identical runs", i)
		}
	}
}

func TestTempoAndConfigReset(t *testing.T) {
	silence := make([]float32, FFTSize)
	tone := utils.GenerateSineWave(FFTSize, testSampleRate, 100, 0.8)
	e, clock := newTestEngine(t, testSampleRate)

	clock.Set(0)
	if mustAnalyze(t, e, silence).Features.BeatDetected {
		t.Fatal("silence produced a beat")
	}
	clock.Set(1000)
	if !mustAnalyze(t, e, tone).Features.BeatDetected {
		t.Fatal("expected a beat at 1000ms")
	}
	clock.Set(1500)
	r := mustAnalyze(t, e, tone)
	if !r.Features.BeatDetected || r.Features.Tempo != 120 {
		t.Fatalf("at 1500ms beat=%v tempo=%v, want true and 120", r.Features.BeatDetected, r.Features.Tempo)
	}
	clock.Set(1600)
	r = mustAnalyze(t, e, tone)
	if r.Features.BeatDetected {
		t.Error("beat inside the refractory period")
	}
	if r.Features.Tempo != 120 {
		t.Errorf("tempo = %v, want 120", r.Features.Tempo)
	}

	if err := e.UpdateConfig(testConfig(44100)); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	clock.Set(2000)
	r = mustAnalyze(t, e, silence)
	if r.Features.Tempo != 0 {
		t.Errorf("tempo after reset = %v, want 0", r.Features.Tempo)
	}
	if r.FrequencyData.SampleRate != 44100 || r.FrequencyData.Frequencies[1] != 22050.0/1024 {
		t.Errorf("frequency map not updated: rate=%v f[1]=%v", r.FrequencyData.SampleRate, r.FrequencyData.Frequencies[1])
	}
	clock.Set(2500)
	r = mustAnalyze(t, e, tone)
	if !r.Features.BeatDetected || r.Features.Tempo != 0 {
		t.Errorf("first beat after reset: beat=%v tempo=%v, want true and 0", r.Features.BeatDetected, r.Features.Tempo)
	}
}

func TestInvalidUpdateConfigLeavesEngineUnchanged(t *testing.T) {
	tone := utils.GenerateSineWave(FFTSize, testSampleRate, 100, 0.8)
	e, clock := newTestEngine(t, testSampleRate)

	mustAnalyze(t, e, make([]float32, FFTSize))
	clock.Set(1000)
	mustAnalyze(t, e, tone)
	clock.Set(1500)
	mustAnalyze(t, e, tone)

	bass, mid, treble := e.BandRanges()
	err := e.UpdateConfig(config.AudioConfig{SampleRate: -1, BufferSize: 2048, Channels: 1})
	if !errors.Is(err, config.ErrInvalidSampleRate) {
		t.Fatalf("UpdateConfig error = %v, want ErrInvalidSampleRate", err)
	}

	if e.Config() != testConfig(testSampleRate) {
		t.Errorf("Config() = %+v after a rejected update", e.Config())
	}
	b2, m2, t2 := e.BandRanges()
	if b2 != bass || m2 != mid || t2 != treble {
		t.Error("band ranges changed after a rejected update")
	}
	clock.Set(2000)
	if r := mustAnalyze(t, e, make([]float32, FFTSize)); r.Features.Tempo != 120 {
		t.Errorf("tempo = %v after a rejected update, want 120", r.Features.Tempo)
	}
}

func TestResultsDoNotAlias(t *testing.T) {
	e, _ := newTestEngine(t, testSampleRate)
	sine := utils.GenerateSineWave(FFTSize, testSampleRate, 1000, 0.5)

	first := mustAnalyze(t, e, sine)
	saved := append([]float64(nil), first.FrequencyData.Amplitudes...)

	mustAnalyze(t, e, utils.GenerateComplexWave(FFTSize, testSampleRate))
	if !reflect.DeepEqual(first.FrequencyData.Amplitudes, saved) {
		t.Fatal("a later Analyze modified an earlier result")
	}

	first.FrequencyData.Amplitudes[0] = 999
	first.FrequencyData.Frequencies[0] = 999
	again := mustAnalyze(t, e, sine)
	if again.FrequencyData.Amplitudes[0] != saved[0] || again.FrequencyData.Frequencies[0] != 0 {
		t.Error("mutating a result leaked into the engine")
	}
}

func TestEnableExtendedAnalysis(t *testing.T) {
	e, _ := newTestEngine(t, 44100)
	chunk := utils.GenerateComplexWave(FFTSize, 44100)

	if mustAnalyze(t, e, chunk).ExtendedFeatures != nil || e.ExtendedEnabled() {
		t.Fatal("extended analysis should be off by default")
	}

	e.EnableExtendedAnalysis(true)
	r := mustAnalyze(t, e, chunk)
	if r.ExtendedFeatures == nil {
		t.Fatal("ExtendedFeatures missing after EnableExtendedAnalysis(true)")
	}
	if r.ExtendedFeatures.Features != r.Features {
		t.Error("extended features should embed the basic features")
	}
	if r.ExtendedFeatures.SpectralCentroid <= 0 || r.ExtendedFeatures.RMS <= 0 {
		t.Errorf("unexpected descriptors %+v", r.ExtendedFeatures)
	}

	e.EnableExtendedAnalysis(false)
	if mustAnalyze(t, e, chunk).ExtendedFeatures != nil {
		t.Error("ExtendedFeatures present after EnableExtendedAnalysis(false)")
	}
}

func TestWithClassifier(t *testing.T) {
	c := ClassifierFunc(func(f Features) Instruments { return Instruments{Strings: 0.42} })
	e, _ := newTestEngine(t, 44100, WithExtended(true), WithClassifier(c))

	r := mustAnalyze(t, e, utils.GenerateComplexWave(FFTSize, 44100))
	if r.ExtendedFeatures.InstrumentDetection.Strings != 0.42 {
		t.Errorf("custom classifier not used: %+v", r.ExtendedFeatures.InstrumentDetection)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	opts, err := OptionsFromConfig(config.AnalysisConfig{Extended: true, FluxMode: "delta", Window: "hamming"})
	if err != nil {
		t.Fatalf("OptionsFromConfig: %v", err)
	}
	e, _ := newTestEngine(t, 44100, opts...)
	if !e.ExtendedEnabled() || e.fluxMode != FluxDelta || e.windower.Func() != Hamming {
		t.Errorf("options not applied: extended=%v flux=%v window=%v", e.ExtendedEnabled(), e.fluxMode, e.windower.Func())
	}

	for _, bad := range []config.AnalysisConfig{{FluxMode: "avg"}, {Window: "kaiser"}} {
		if _, err := OptionsFromConfig(bad); err == nil {
			t.Errorf("OptionsFromConfig(%+v) should fail", bad)
		}
	}
}

func TestResultJSON(t *testing.T) {
	e, _ := newTestEngine(t, 44100)
	chunk := utils.GenerateComplexWave(FFTSize, 44100)

	data, err := json.Marshal(mustAnalyze(t, e, chunk))
	if err != nil {
		t.Fatal(err)
	}
	var basic map[string]any
	if err := json.Unmarshal(data, &basic); err != nil {
		t.Fatal(err)
	}
	if _, ok := basic["extendedFeatures"]; ok {
		t.Error("extendedFeatures should be omitted when disabled")
	}

	e.EnableExtendedAnalysis(true)
	data, _ = json.Marshal(mustAnalyze(t, e, chunk))
	var extended struct {
		ExtendedFeatures map[string]any `json:"extendedFeatures"`
	}
	if err := json.Unmarshal(data, &extended); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"bassLevel", "spectralCentroid", "zeroCrossingRate", "instrumentDetection"} {
		if _, ok := extended.ExtendedFeatures[key]; !ok {
			t.Errorf("extendedFeatures missing %q", key)
		}
	}
}

func BenchmarkAnalyze(b *testing.B) {
	e, _ := NewEngine(testConfig(44100), WithExtended(true))
	chunk := utils.GenerateComplexWave(FFTSize, 44100)

	b.ReportAllocs()
	for b.Loop() {
		e.Analyze(chunk)
	}
}
