// SPDX-License-Identifier: MIT
// Package recording writes the analysed mono stream to a WAV file.
package recording

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	applog "beatscope/internal/log"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// BitDepth of recorded files.
const BitDepth = 16

const (
	wavFormatPCM = 1
	fullScale    = 1<<(BitDepth-1) - 1
)

var ErrClosed = errors.New("recorder closed")

// DefaultPath names a recording after its start time.
func DefaultPath(now time.Time) string {
	return "recording-" + now.UTC().Format("02-01-2006-150405") + ".wav"
}

// Recorder encodes float32 chunks as 16-bit mono PCM. It is safe for
// concurrent use.
type Recorder struct {
	path       string
	sampleRate int

	mu      sync.Mutex
	file    *os.File
	encoder *wav.Encoder
	buf     *audio.IntBuffer // Reused conversion buffer.
	samples int
}

// Create opens path for writing and prepares a mono WAV encoder.
func Create(path string, sampleRate int) (*Recorder, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("recording: sample rate must be positive, got %d", sampleRate)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("recording: %w", err)
	}

	r := &Recorder{
		path:       path,
		sampleRate: sampleRate,
		file:       file,
		encoder:    wav.NewEncoder(file, sampleRate, BitDepth, 1, wavFormatPCM),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
			SourceBitDepth: BitDepth,
		},
	}
	applog.Infof("Recording: writing %s (SampleRate: %d Hz, BitDepth: %d)", path, sampleRate, BitDepth)
	return r, nil
}

// Write appends chunk. Samples outside [-1, 1] are clipped.
func (r *Recorder) Write(chunk []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.encoder == nil {
		return ErrClosed
	}

	if cap(r.buf.Data) < len(chunk) {
		r.buf.Data = make([]int, len(chunk))
	}
	r.buf.Data = r.buf.Data[:len(chunk)]
	for i, s := range chunk {
		r.buf.Data[i] = toPCM16(s)
	}

	if err := r.encoder.Write(r.buf); err != nil {
		return fmt.Errorf("recording: writing %s: %w", r.path, err)
	}
	r.samples += len(chunk)
	return nil
}

// Samples returns the number of samples written.
func (r *Recorder) Samples() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.samples
}

// Duration returns the recorded length.
func (r *Recorder) Duration() time.Duration {
	return time.Duration(r.Samples()) * time.Second / time.Duration(r.sampleRate)
}

// Path returns the output file name.
func (r *Recorder) Path() string { return r.path }

// Close finalises the WAV header and closes the file. Closing twice is a
// no-op.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.encoder == nil {
		return nil
	}

	encErr := r.encoder.Close()
	fileErr := r.file.Close()
	r.encoder = nil
	r.file = nil

	if err := errors.Join(encErr, fileErr); err != nil {
		return fmt.Errorf("recording: closing %s: %w", r.path, err)
	}
	applog.Infof("Recording: saved %s (%d samples)", r.path, r.samples)
	return nil
}

func toPCM16(s float32) int {
	v := math.Max(-1, math.Min(1, float64(s)))
	return int(math.Round(v * fullScale))
}
