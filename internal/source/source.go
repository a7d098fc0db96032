// SPDX-License-Identifier: MIT
/*
Package source produces mono analysis chunks from audio inputs.

Every Stream delivers fixed-size chunks of float32 samples in [-1, 1] on a
channel. Multi-channel input is downmixed by averaging channels before it
reaches the channel, so consumers only ever see mono data.
*/
package source

import (
	"context"

	"beatscope/internal/config"
)

// Stream is a producer of mono chunks.
type Stream interface {
	// Start begins delivery. The channel is closed when the input ends,
	// fails or ctx is cancelled.
	Start(ctx context.Context) (<-chan []float32, error)
	// Config describes the delivered stream. Channels reports the input
	// channel count before downmixing.
	Config() config.AudioConfig
	// Err reports why delivery stopped. It is nil after a clean end of
	// input or a cancellation.
	Err() error
	Close() error
}
