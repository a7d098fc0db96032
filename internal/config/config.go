// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Core configuration constants that define the boundaries and defaults
// for the analysis pipeline.
const (
	DefaultSampleRate = 44100 // CD-quality audio
	DefaultBufferSize = 2048  // One analysis frame per chunk
	DefaultChannels   = 1     // Mono input
	DefaultBitDepth   = 16    // Recording bit depth
	DefaultDeviceID   = -1    // System default capture device
	DefaultLogLevel   = "info"
	DefaultWindow     = "hann"
	DefaultFluxMode   = FluxSum

	DefaultWebSocketAddress = ":8080"
	DefaultUDPTarget        = "127.0.0.1:9090"
	DefaultUDPSendInterval  = 33 * time.Millisecond // ~30Hz

	// Hardware and processing limits.
	MinSampleRate = 8000
	MaxSampleRate = 192000
	MaxBufferSize = 1 << 16
	MaxChannels   = 32
)

// Spectral flux modes.
const (
	FluxSum   = "sum"   // Sum of current frame amplitudes.
	FluxDelta = "delta" // Sum of positive amplitude increases since the last frame.
)

// Validation errors, matched with errors.Is.
var (
	ErrInvalidSampleRate = errors.New("sample rate out of range")
	ErrInvalidBufferSize = errors.New("buffer size out of range")
	ErrInvalidChannels   = errors.New("channel count out of range")
	ErrInvalidBitDepth   = errors.New("unsupported bit depth")
	ErrInvalidFluxMode   = errors.New("unknown flux mode")
	ErrInvalidGate       = errors.New("gate threshold must be within [0,1]")
)

// Config represents the application configuration, loaded from YAML and
// overridden by environment variables and command line flags.
type Config struct {
	LogLevel  string          `yaml:"log_level"` // debug, info, warn, error.
	Audio     AudioConfig     `yaml:"audio"`     // Stream shape handed to the analysis engine.
	Analysis  AnalysisConfig  `yaml:"analysis"`  // Engine behaviour switches.
	Input     InputConfig     `yaml:"input"`     // Where chunks come from.
	Recording RecordingConfig `yaml:"recording"` // Optional WAV tap of the analysed stream.
	Transport TransportConfig `yaml:"transport"` // Where results go.
}

// AudioConfig describes the PCM stream. It is passed to the engine at
// construction and replaced wholesale on reconfiguration.
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"` // Hz.
	BufferSize int `yaml:"buffer_size"` // Samples per chunk, independent of the FFT size.
	Channels   int `yaml:"channels"`    // Channels before the mono downmix.
	BitDepth   int `yaml:"bit_depth"`   // Optional, 0 when unknown.
}

// AnalysisConfig holds engine switches.
type AnalysisConfig struct {
	Extended bool   `yaml:"extended"`  // Compute spectral descriptors and instrument confidences.
	FluxMode string `yaml:"flux_mode"` // "sum" or "delta".
	Window   string `yaml:"window"`    // gonum window name, "hann" by default.
}

// InputConfig selects and tunes the stream source.
type InputConfig struct {
	Device        int     `yaml:"device"`         // PortAudio device index, -1 for default.
	LowLatency    bool    `yaml:"low_latency"`    // Request the device's low input latency.
	File          string  `yaml:"file"`           // WAV file to analyse instead of capturing.
	Realtime      bool    `yaml:"realtime"`       // Pace file chunks at buffer_size/sample_rate.
	GateThreshold float64 `yaml:"gate_threshold"` // Noise gate peak threshold, 0 disables.
}

// RecordingConfig holds settings for the WAV tap.
type RecordingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // Output file, generated when empty.
}

// TransportConfig holds settings for publishing results.
type TransportConfig struct {
	WebSocketEnabled bool          `yaml:"websocket_enabled"`
	WebSocketAddress string        `yaml:"websocket_address"`
	UDPEnabled       bool          `yaml:"udp_enabled"`
	UDPTargetAddress string        `yaml:"udp_target_address"`
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`
	LogResults       bool          `yaml:"log_results"` // Log a summary of every result at debug level.
	TUI              bool          `yaml:"tui"`         // Show the live meter.
}

// NewConfig returns a Config populated with defaults. It is the base onto
// which a config file, environment and flags are applied.
func NewConfig() *Config {
	return &Config{
		LogLevel: DefaultLogLevel,
		Audio: AudioConfig{
			SampleRate: DefaultSampleRate,
			BufferSize: DefaultBufferSize,
			Channels:   DefaultChannels,
		},
		Analysis: AnalysisConfig{
			FluxMode: DefaultFluxMode,
			Window:   DefaultWindow,
		},
		Input: InputConfig{
			Device: DefaultDeviceID,
		},
		Recording: RecordingConfig{},
		Transport: TransportConfig{
			WebSocketAddress: DefaultWebSocketAddress,
			UDPTargetAddress: DefaultUDPTarget,
			UDPSendInterval:  DefaultUDPSendInterval,
		},
	}
}

// Validate checks the stream shape. Only positive values are accepted for
// sample rate, buffer size and channels; BitDepth may be left at zero.
func (a AudioConfig) Validate() error {
	if a.SampleRate <= 0 || a.SampleRate > MaxSampleRate {
		return fmt.Errorf("%w: %d Hz", ErrInvalidSampleRate, a.SampleRate)
	}
	if a.BufferSize <= 0 || a.BufferSize > MaxBufferSize {
		return fmt.Errorf("%w: %d samples", ErrInvalidBufferSize, a.BufferSize)
	}
	if a.Channels <= 0 || a.Channels > MaxChannels {
		return fmt.Errorf("%w: %d", ErrInvalidChannels, a.Channels)
	}
	switch a.BitDepth {
	case 0, 8, 16, 24, 32:
	default:
		return fmt.Errorf("%w: %d", ErrInvalidBitDepth, a.BitDepth)
	}
	return nil
}

// ChunkInterval is the wall-clock span of one chunk, the cadence at which
// sources deliver data to the engine.
func (a AudioConfig) ChunkInterval() time.Duration {
	if a.SampleRate <= 0 {
		return 0
	}
	return time.Duration(a.BufferSize) * time.Second / time.Duration(a.SampleRate)
}

// Nyquist returns half the sample rate.
func (a AudioConfig) Nyquist() float64 {
	return float64(a.SampleRate) / 2
}

// Validate checks the full configuration.
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	// Live capture below MinSampleRate is rejected by most devices; files
	// are taken at whatever rate their header declares.
	if c.Input.File == "" && c.Audio.SampleRate < MinSampleRate {
		return fmt.Errorf("audio: %w: %d Hz is below the capture minimum %d Hz",
			ErrInvalidSampleRate, c.Audio.SampleRate, MinSampleRate)
	}

	switch strings.ToLower(c.Analysis.FluxMode) {
	case "", FluxSum, FluxDelta:
	default:
		return fmt.Errorf("analysis: %w: %q", ErrInvalidFluxMode, c.Analysis.FluxMode)
	}

	if c.Input.GateThreshold < 0 || c.Input.GateThreshold > 1 {
		return fmt.Errorf("input: %w: %g", ErrInvalidGate, c.Input.GateThreshold)
	}

	if c.Transport.UDPEnabled {
		if !strings.Contains(c.Transport.UDPTargetAddress, ":") {
			return fmt.Errorf("transport.udp_target_address %q appears invalid (missing port?)",
				c.Transport.UDPTargetAddress)
		}
		if c.Transport.UDPSendInterval <= 0 {
			return fmt.Errorf("transport.udp_send_interval must be positive when UDP is enabled")
		}
	}

	return nil
}
