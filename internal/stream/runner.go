// SPDX-License-Identifier: MIT
/*
Package stream drives one analysis stream.

A Runner owns the only goroutine that touches its analyzer. For every chunk
received from a source it:
- applies the optional noise gate
- appends the chunk to the optional recorder
- runs the analyzer
- forwards the result to the transport
*/
package stream

import (
	"context"
	"errors"
	"fmt"

	"beatscope/internal/analysis"
	applog "beatscope/internal/log"
	"beatscope/internal/transport"
)

// ChunkWriter receives every chunk that is analysed.
type ChunkWriter interface {
	Write(chunk []float32) error
}

// Stats counts what a Runner did with the chunks it received.
type Stats struct {
	Processed  uint64 // Chunks that produced a result.
	Skipped    uint64 // Chunks too short to analyse.
	Gated      uint64 // Chunks silenced by the gate.
	SendErrors uint64 // Failed transport deliveries.
}

// Option configures a Runner.
type Option func(*Runner)

// WithTransport delivers every result to t.
func WithTransport(t transport.Transport) Option {
	return func(r *Runner) { r.transport = t }
}

// WithRecorder writes every chunk, after gating, to w.
func WithRecorder(w ChunkWriter) Option {
	return func(r *Runner) { r.recorder = w }
}

// WithGate gates chunks before analysis.
func WithGate(g *Gate) Option {
	return func(r *Runner) { r.gate = g }
}

// Runner connects a chunk source to an analyzer and its consumers.
type Runner struct {
	analyzer  analysis.Analyzer
	transport transport.Transport
	recorder  ChunkWriter
	gate      *Gate

	stats Stats
}

// NewRunner returns a runner for a.
func NewRunner(a analysis.Analyzer, opts ...Option) (*Runner, error) {
	if a == nil {
		return nil, errors.New("stream: analyzer cannot be nil")
	}
	r := &Runner{analyzer: a}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run consumes chunks until the channel closes or ctx is cancelled. Both
// are a normal end of stream. A recorder failure stops the run and is
// returned; transport failures are counted and logged.
func (r *Runner) Run(ctx context.Context, chunks <-chan []float32) (Stats, error) {
	defer func() {
		applog.Infof("Stream: finished (processed: %d, skipped: %d, gated: %d, send errors: %d)",
			r.stats.Processed, r.stats.Skipped, r.stats.Gated, r.stats.SendErrors)
	}()

	for {
		select {
		case <-ctx.Done():
			return r.stats, nil
		case chunk, ok := <-chunks:
			if !ok {
				return r.stats, nil
			}
			if err := r.process(chunk); err != nil {
				return r.stats, err
			}
		}
	}
}

func (r *Runner) process(chunk []float32) error {
	if r.gate != nil && !r.gate.Apply(chunk) {
		r.stats.Gated++
	}

	if r.recorder != nil {
		if err := r.recorder.Write(chunk); err != nil {
			return fmt.Errorf("stream: recording: %w", err)
		}
	}

	result, ok := r.analyzer.Analyze(chunk)
	if !ok {
		r.stats.Skipped++
		return nil
	}
	r.stats.Processed++

	if r.transport == nil {
		return nil
	}
	if err := r.transport.Send(result); err != nil {
		r.stats.SendErrors++
		if r.stats.SendErrors == 1 {
			applog.Warnf("Stream: delivering result: %v", err)
		} else {
			applog.Debugf("Stream: delivering result: %v", err)
		}
	}
	return nil
}

// Stats returns the counters so far. It must not race with Run.
func (r *Runner) Stats() Stats { return r.stats }
