// SPDX-License-Identifier: MIT
package stream

// Gate is a noise gate over whole chunks: a chunk whose peak amplitude is
// below the threshold is replaced with silence before analysis. It is used
// from the runner goroutine only.
type Gate struct {
	enabled   bool
	threshold float32
}

// NewGate returns an enabled gate. The threshold is clamped to [0, 1];
// 0 keeps the gate always open.
func NewGate(threshold float64) *Gate {
	g := &Gate{enabled: true}
	g.SetThreshold(threshold)
	return g
}

func (g *Gate) Enable() {
	g.enabled = true
}

func (g *Gate) Disable() {
	g.enabled = false
}

// Enabled reports whether Apply gates chunks.
func (g *Gate) Enabled() bool { return g.enabled }

// SetThreshold adjusts the noise gate threshold.
// The value is in the range of 0.0-1.0 where 0=always open, 1=closed for
// anything below full scale.
func (g *Gate) SetThreshold(threshold float64) {
	if threshold < 0.0 {
		threshold = 0.0
	}
	if threshold > 1.0 {
		threshold = 1.0
	}
	g.threshold = float32(threshold)
}

// Threshold returns the current threshold in [0, 1].
func (g *Gate) Threshold() float64 {
	return float64(g.threshold)
}

// Apply zeroes chunk in place when its peak is below the threshold and
// reports whether the gate was open.
func (g *Gate) Apply(chunk []float32) bool {
	if !g.enabled || g.threshold == 0 {
		return true
	}
	if peak(chunk) >= g.threshold {
		return true
	}
	clear(chunk)
	return false
}

func peak(chunk []float32) float32 {
	var p float32
	for _, s := range chunk {
		if s < 0 {
			s = -s
		}
		if s > p {
			p = s
		}
	}
	return p
}
