// SPDX-License-Identifier: MIT
/*
Package capture streams live microphone input through PortAudio.

The PortAudio callback runs on a host audio thread. It only downmixes into
pre-sized chunks and hands them over a bounded channel; when the consumer
falls behind, chunks are dropped and counted instead of blocking the
callback.
*/
package capture

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"beatscope/internal/config"
	applog "beatscope/internal/log"
	"beatscope/internal/source"

	"github.com/gordonklaus/portaudio"
)

// DefaultQueueDepth is the number of chunks buffered between the callback
// and the consumer.
const DefaultQueueDepth = 8

// Microphone is a source.Stream backed by a PortAudio input stream.
type Microphone struct {
	cfg     config.AudioConfig
	device  *portaudio.DeviceInfo
	latency time.Duration

	// Owned by the callback.
	chunker *source.Chunker
	ready   [][]float32

	out chan []float32

	mu     sync.Mutex
	stream *portaudio.Stream
	cancel context.CancelFunc
	done   chan struct{}
	err    error

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

var _ source.Stream = (*Microphone)(nil)

// NewMicrophone resolves the input device and prepares a stream for cfg.
// PortAudio must already be initialised.
func NewMicrophone(cfg config.AudioConfig, input config.InputConfig) (*Microphone, error) {
	device, err := InputDevice(input.Device)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	if device.MaxInputChannels < cfg.Channels {
		return nil, fmt.Errorf("capture: device %q supports %d input channels, %d requested",
			device.Name, device.MaxInputChannels, cfg.Channels)
	}

	m, err := newMicrophone(cfg, DefaultQueueDepth)
	if err != nil {
		return nil, err
	}
	m.device = device
	if input.LowLatency {
		m.latency = device.DefaultLowInputLatency
	} else {
		m.latency = device.DefaultHighInputLatency
	}
	return m, nil
}

func newMicrophone(cfg config.AudioConfig, queueDepth int) (*Microphone, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	chunker, err := source.NewChunker(cfg.Channels, cfg.BufferSize)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	return &Microphone{
		cfg:     cfg,
		chunker: chunker,
		ready:   make([][]float32, 0, 4),
		out:     make(chan []float32, queueDepth),
	}, nil
}

// Config returns the capture stream shape.
func (m *Microphone) Config() config.AudioConfig { return m.cfg }

// Start opens and starts the PortAudio stream. Delivery stops, and the
// channel is closed, when ctx is cancelled or Close is called.
func (m *Microphone) Start(ctx context.Context) (<-chan []float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done != nil {
		return nil, fmt.Errorf("capture: already started")
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: m.cfg.Channels,
			Device:   m.device,
			Latency:  m.latency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0,
			Device:   nil,
		},
		FramesPerBuffer: m.cfg.BufferSize,
		SampleRate:      float64(m.cfg.SampleRate),
	}

	stream, err := portaudio.OpenStream(params, m.process)
	if err != nil {
		return nil, fmt.Errorf("capture: opening stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("capture: starting stream: %w", err)
	}
	m.stream = stream

	applog.Infof("Capture: streaming from %q (SampleRate: %d Hz, Channels: %d, Buffer: %d, Latency: %v)",
		m.device.Name, m.cfg.SampleRate, m.cfg.Channels, m.cfg.BufferSize, m.latency)

	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.wait(ctx)

	return m.out, nil
}

// wait stops the stream once ctx ends. PortAudio's Stop returns only after
// the last callback, so closing the channel afterwards is safe.
func (m *Microphone) wait(ctx context.Context) {
	defer close(m.done)
	<-ctx.Done()

	m.mu.Lock()
	stream := m.stream
	m.stream = nil
	m.mu.Unlock()

	if stream != nil {
		if err := stream.Stop(); err != nil {
			m.setErr(fmt.Errorf("capture: stopping stream: %w", err))
		}
		if err := stream.Close(); err != nil {
			m.setErr(fmt.Errorf("capture: closing stream: %w", err))
		}
	}
	close(m.out)

	delivered, dropped := m.Stats()
	applog.Infof("Capture: stopped (%d chunks delivered, %d dropped)", delivered, dropped)
}

// process is the PortAudio callback.
// Performance Critical:
// - No locks and no logging
// - Allocates only the chunk handed to the consumer
func (m *Microphone) process(in []float32) {
	m.ready = m.chunker.Write(in, m.ready[:0])
	for _, chunk := range m.ready {
		select {
		case m.out <- chunk:
			m.delivered.Add(1)
		default:
			m.dropped.Add(1)
		}
	}
}

// Stats returns the number of chunks delivered and dropped so far.
func (m *Microphone) Stats() (delivered, dropped uint64) {
	return m.delivered.Load(), m.dropped.Load()
}

// Err reports a failure while stopping the stream.
func (m *Microphone) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *Microphone) setErr(err error) {
	m.mu.Lock()
	if m.err == nil {
		m.err = err
	}
	m.mu.Unlock()
}

// Close stops capture and waits for the stream to shut down.
func (m *Microphone) Close() error {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return m.Err()
}
