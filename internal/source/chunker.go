// SPDX-License-Identifier: MIT
package source

import "fmt"

// Chunker turns interleaved PCM of any length into mono chunks of a fixed
// size. Partial frames and partial chunks are carried over between writes.
// It is not safe for concurrent use.
type Chunker struct {
	channels int
	size     int

	frame   []float32 // Interleaved samples of an incomplete frame.
	pending []float32 // Mono samples of the chunk being filled.
}

// NewChunker returns a chunker for the given channel count and chunk size.
func NewChunker(channels, size int) (*Chunker, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("chunker: channels must be positive, got %d", channels)
	}
	if size <= 0 {
		return nil, fmt.Errorf("chunker: chunk size must be positive, got %d", size)
	}
	return &Chunker{
		channels: channels,
		size:     size,
		frame:    make([]float32, 0, channels),
		pending:  make([]float32, 0, size),
	}, nil
}

// Write consumes interleaved samples and appends every completed chunk to
// dst. Returned chunks are owned by the caller.
func (c *Chunker) Write(interleaved []float32, dst [][]float32) [][]float32 {
	for _, s := range interleaved {
		c.frame = append(c.frame, s)
		if len(c.frame) < c.channels {
			continue
		}

		c.pending = append(c.pending, downmix(c.frame))
		c.frame = c.frame[:0]

		if len(c.pending) == c.size {
			dst = append(dst, c.pending)
			c.pending = make([]float32, 0, c.size)
		}
	}
	return dst
}

// Flush returns the buffered partial chunk, or nil if nothing is pending.
// An incomplete trailing frame is discarded.
func (c *Chunker) Flush() []float32 {
	c.frame = c.frame[:0]
	if len(c.pending) == 0 {
		return nil
	}
	tail := c.pending
	c.pending = make([]float32, 0, c.size)
	return tail
}

// Pending returns the number of mono samples waiting for a full chunk.
func (c *Chunker) Pending() int { return len(c.pending) }

// Size returns the chunk length in mono samples.
func (c *Chunker) Size() int { return c.size }

// downmix averages one interleaved frame.
func downmix(frame []float32) float32 {
	if len(frame) == 1 {
		return frame[0]
	}
	var sum float32
	for _, s := range frame {
		sum += s
	}
	return sum / float32(len(frame))
}
