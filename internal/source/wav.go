// SPDX-License-Identifier: MIT
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"beatscope/internal/config"
	applog "beatscope/internal/log"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAV format tags accepted by WAVSource. Float WAV (3) is not supported.
const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

var (
	ErrInvalidWAV     = errors.New("not a valid WAV file")
	ErrUnsupportedWAV = errors.New("unsupported WAV encoding")
)

// WAVSource streams a WAV file as mono chunks. The stream shape comes from
// the file header; only the chunk size is chosen by the caller.
type WAVSource struct {
	path     string
	file     *os.File
	decoder  *wav.Decoder
	cfg      config.AudioConfig
	realtime bool

	mu     sync.Mutex
	err    error
	cancel context.CancelFunc
	done   chan struct{}
	chunks int
}

var _ Stream = (*WAVSource)(nil)

// OpenWAV opens path and reads its header. With realtime set, chunks are
// paced at the rate the audio would play back.
func OpenWAV(path string, bufferSize int, realtime bool) (*WAVSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		file.Close()
		return nil, fmt.Errorf("source: %s: %w", path, ErrInvalidWAV)
	}
	if decoder.WavAudioFormat != wavFormatPCM && decoder.WavAudioFormat != wavFormatExtensible {
		file.Close()
		return nil, fmt.Errorf("source: %s: %w (format tag %d)", path, ErrUnsupportedWAV, decoder.WavAudioFormat)
	}

	cfg := config.AudioConfig{
		SampleRate: int(decoder.SampleRate),
		BufferSize: bufferSize,
		Channels:   int(decoder.NumChans),
		BitDepth:   int(decoder.BitDepth),
	}
	if cfg.BitDepth == 0 {
		file.Close()
		return nil, fmt.Errorf("source: %s: %w (missing bit depth)", path, ErrUnsupportedWAV)
	}
	if err := cfg.Validate(); err != nil {
		file.Close()
		return nil, fmt.Errorf("source: %s: %w", path, err)
	}

	applog.Infof("Source: opened %s (SampleRate: %d Hz, Channels: %d, BitDepth: %d, Realtime: %v)",
		path, cfg.SampleRate, cfg.Channels, cfg.BitDepth, realtime)

	return &WAVSource{
		path:     path,
		file:     file,
		decoder:  decoder,
		cfg:      cfg,
		realtime: realtime,
	}, nil
}

// Config returns the stream shape taken from the header.
func (s *WAVSource) Config() config.AudioConfig { return s.cfg }

// Start launches the decode loop. It may be called once.
func (s *WAVSource) Start(ctx context.Context) (<-chan []float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return nil, fmt.Errorf("source: %s already started", s.path)
	}

	chunker, err := NewChunker(s.cfg.Channels, s.cfg.BufferSize)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	out := make(chan []float32, 4)

	go s.run(ctx, chunker, out)
	return out, nil
}

func (s *WAVSource) run(ctx context.Context, chunker *Chunker, out chan<- []float32) {
	defer close(s.done)
	defer close(out)

	var tick <-chan time.Time
	if s.realtime {
		ticker := time.NewTicker(s.cfg.ChunkInterval())
		defer ticker.Stop()
		tick = ticker.C
	}

	emit := func(chunk []float32) bool {
		if tick != nil {
			select {
			case <-ctx.Done():
				return false
			case <-tick:
			}
		}
		select {
		case out <- chunk:
			s.mu.Lock()
			s.chunks++
			s.mu.Unlock()
			return true
		case <-ctx.Done():
			return false
		}
	}

	readSize := s.cfg.BufferSize * s.cfg.Channels
	buf := &audio.IntBuffer{
		Format:         s.decoder.Format(),
		Data:           make([]int, readSize),
		SourceBitDepth: s.cfg.BitDepth,
	}
	samples := make([]float32, readSize)
	var ready [][]float32

	for {
		n, err := s.decoder.PCMBuffer(buf)
		if n > 0 {
			for i, v := range buf.Data[:n] {
				samples[i] = normalize(v, s.cfg.BitDepth)
			}
			ready = chunker.Write(samples[:n], ready[:0])
			for _, chunk := range ready {
				if !emit(chunk) {
					return
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				s.setErr(fmt.Errorf("source: decoding %s: %w", s.path, err))
			}
			break
		}
		if n == 0 {
			break
		}
	}

	if tail := chunker.Flush(); tail != nil {
		if !emit(tail) {
			return
		}
	}
	applog.Infof("Source: finished %s (%d chunks)", s.path, s.Chunks())
}

// Chunks returns the number of chunks delivered so far.
func (s *WAVSource) Chunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunks
}

// Err reports a decode failure.
func (s *WAVSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *WAVSource) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Close stops delivery, waits for the decode loop and closes the file.
func (s *WAVSource) Close() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if err := s.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("source: closing %s: %w", s.path, err)
	}
	return nil
}

// normalize maps a decoded PCM integer to [-1, 1]. 8-bit WAV is unsigned
// with a 128 midpoint; wider depths are signed.
func normalize(v, bitDepth int) float32 {
	var f float64
	switch bitDepth {
	case 8:
		f = float64(v-128) / 128
	default:
		f = float64(v) / float64(int64(1)<<(bitDepth-1))
	}
	return float32(min(max(f, -1), 1))
}
