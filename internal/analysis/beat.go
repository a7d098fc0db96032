// SPDX-License-Identifier: MIT
package analysis

import (
	"time"

	"beatscope/pkg/ring"

	"gonum.org/v1/gonum/stat"
)

// Beat detection parameters.
const (
	EnergyHistorySize = 50                     // Recent bass levels kept for the running average.
	BeatHistorySize   = 10                     // Recent beat timestamps kept for tempo.
	BeatSensitivity   = 1.3                    // Bass must exceed the average by this factor.
	EnergyThreshold   = 0.1                    // Absolute bass floor for a beat.
	RefractoryPeriod  = 300 * time.Millisecond // Minimum spacing, caps tempo at 200 BPM.
)

// BeatTracker declares beats from a stream of bass levels and estimates
// tempo from the spacing of recent beats. It is stream specific and not
// safe for concurrent use.
type BeatTracker struct {
	energy   *ring.Buffer[float64]
	beats    *ring.Buffer[time.Time]
	lastBeat time.Time
	hasBeat  bool

	scratch []float64 // Reused copy of energy for the mean.
}

// NewBeatTracker returns a tracker with empty history.
func NewBeatTracker() *BeatTracker {
	return &BeatTracker{
		energy:  ring.New[float64](EnergyHistorySize),
		beats:   ring.New[time.Time](BeatHistorySize),
		scratch: make([]float64, 0, EnergyHistorySize),
	}
}

// Update records bassLevel observed at now and reports whether it is a
// beat. A beat needs all of:
//
//	bassLevel > BeatSensitivity * mean(history including bassLevel)
//	bassLevel > EnergyThreshold
//	now - lastBeat > RefractoryPeriod (always true before the first beat)
//
// Timestamps from time.Now carry a monotonic reading, so wall clock
// adjustments do not disturb the refractory check.
func (t *BeatTracker) Update(bassLevel float64, now time.Time) bool {
	t.energy.Push(bassLevel)
	t.scratch = t.energy.AppendTo(t.scratch[:0])
	avg := stat.Mean(t.scratch, nil)

	if bassLevel <= avg*BeatSensitivity || bassLevel <= EnergyThreshold {
		return false
	}
	if t.hasBeat && now.Sub(t.lastBeat) <= RefractoryPeriod {
		return false
	}

	t.beats.Push(now)
	t.lastBeat = now
	t.hasBeat = true
	return true
}

// Tempo returns 60000 divided by the mean interval between retained beats
// in milliseconds, or 0 with fewer than two beats.
func (t *BeatTracker) Tempo() float64 {
	n := t.beats.Len()
	if n < 2 {
		return 0
	}

	var totalMs float64
	for i := 1; i < n; i++ {
		totalMs += float64(t.beats.At(i).Sub(t.beats.At(i-1))) / float64(time.Millisecond)
	}
	meanMs := totalMs / float64(n-1)
	if meanMs <= 0 {
		return 0
	}
	return 60000 / meanMs
}

// BeatCount returns the number of retained beat timestamps.
func (t *BeatTracker) BeatCount() int { return t.beats.Len() }

// EnergyHistory returns a copy of the retained bass levels, oldest first.
func (t *BeatTracker) EnergyHistory() []float64 { return t.energy.Values() }

// BeatTimes returns a copy of the retained beat timestamps, oldest first.
func (t *BeatTracker) BeatTimes() []time.Time { return t.beats.Values() }

// Reset discards all history.
func (t *BeatTracker) Reset() {
	t.energy.Reset()
	t.beats.Reset()
	t.lastBeat = time.Time{}
	t.hasBeat = false
}
