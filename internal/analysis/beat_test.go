// SPDX-License-Identifier: MIT
package analysis

import (
	"testing"
	"time"
)

var epoch = time.Unix(0, 0)

func at(ms int) time.Time { return epoch.Add(time.Duration(ms) * time.Millisecond) }

func TestBeatRequiresFloorAndRatio(t *testing.T) {
	tests := []struct {
		desc   string
		levels []float64
		want   bool // Result of the final Update.
	}{
		{"first loud level is a beat", []float64{0, 1}, true},
		{"below absolute floor", []float64{0, 0.05}, false},
		{"steady level", []float64{1, 1, 1, 1}, false},
		{"silence", []float64{0, 0}, false},
		{"jump over steady level", []float64{1, 1, 1, 3}, true},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			tr := NewBeatTracker()
			var got bool
			for i, l := range tt.levels {
				got = tr.Update(l, at(i*1000))
			}
			if got != tt.want {
				t.Errorf("final Update = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTempo120BPM(t *testing.T) {
	tr := NewBeatTracker()

	if tr.Update(0, at(0)) {
		t.Fatal("silence should not be a beat")
	}
	if !tr.Update(1, at(1000)) {
		t.Fatal("expected a beat at 1000ms")
	}
	if got := tr.Tempo(); got != 0 {
		t.Errorf("Tempo with one beat = %v, want 0", got)
	}
	if !tr.Update(2, at(1500)) {
		t.Fatal("expected a beat at 1500ms")
	}
	if got := tr.Tempo(); got != 120 {
		t.Errorf("Tempo = %v, want 120", got)
	}
}

func TestRefractoryPeriod(t *testing.T) {
	tr := NewBeatTracker()
	tr.Update(0, at(0))

	var beats []time.Time
	level := 0.2
	for k := 1; k <= 17; k++ {
		if tr.Update(level, at(k*100)) {
			beats = append(beats, at(k*100))
		}
		level *= 2
	}

	want := []time.Time{at(100), at(500), at(900), at(1300), at(1700)}
	if len(beats) != len(want) {
		t.Fatalf("beats at %v, want %v", beats, want)
	}
	for i := range want {
		if !beats[i].Equal(want[i]) {
			t.Errorf("beat %d at %v, want %v", i, beats[i], want[i])
		}
		if i > 0 && beats[i].Sub(beats[i-1]) <= RefractoryPeriod {
			t.Errorf("beats %d and %d only %v apart", i-1, i, beats[i].Sub(beats[i-1]))
		}
	}
	if got := tr.Tempo(); got != 150 {
		t.Errorf("Tempo = %v, want 150", got)
	}
}

func TestBackwardClockIsRefractory(t *testing.T) {
	tr := NewBeatTracker()
	tr.Update(0, at(0))
	if !tr.Update(1, at(1000)) {
		t.Fatal("expected a beat at 1000ms")
	}
	if tr.Update(10, at(200)) {
		t.Error("a timestamp before the last beat must not produce a beat")
	}
	if tr.BeatCount() != 1 {
		t.Errorf("BeatCount = %d, want 1", tr.BeatCount())
	}
}

func TestBeatHistoryCapped(t *testing.T) {
	tr := NewBeatTracker()
	tr.Update(0, at(0))

	level := 0.2
	for k := 1; k <= 15; k++ {
		if !tr.Update(level, at(k*400)) {
			t.Fatalf("expected a beat at step %d", k)
		}
		level *= 2
	}

	if tr.BeatCount() != BeatHistorySize {
		t.Errorf("BeatCount = %d, want %d", tr.BeatCount(), BeatHistorySize)
	}
	times := tr.BeatTimes()
	if !times[0].Equal(at(6 * 400)) {
		t.Errorf("oldest retained beat = %v, want %v", times[0], at(6*400))
	}
	if got := tr.Tempo(); got != 150 {
		t.Errorf("Tempo = %v, want 150", got)
	}
}

func TestEnergyHistoryCapped(t *testing.T) {
	tr := NewBeatTracker()
	for i := range EnergyHistorySize + 1 {
		tr.Update(float64(i), at(i))
	}

	history := tr.EnergyHistory()
	if len(history) != EnergyHistorySize {
		t.Fatalf("history length = %d, want %d", len(history), EnergyHistorySize)
	}
	if history[0] != 1 || history[len(history)-1] != EnergyHistorySize {
		t.Errorf("history spans [%v, %v], want [1, %d]", history[0], history[len(history)-1], EnergyHistorySize)
	}
}

func TestBeatTrackerReset(t *testing.T) {
	tr := NewBeatTracker()
	tr.Update(0, at(0))
	tr.Update(1, at(1000))
	tr.Update(2, at(1500))

	tr.Reset()
	if tr.BeatCount() != 0 || len(tr.EnergyHistory()) != 0 || tr.Tempo() != 0 {
		t.Fatalf("Reset left state: beats=%d energy=%d tempo=%v",
			tr.BeatCount(), len(tr.EnergyHistory()), tr.Tempo())
	}

	// No refractory carry-over: a beat 100ms after the old one is allowed.
	tr.Update(0, at(1550))
	if !tr.Update(1, at(1600)) {
		t.Error("expected a beat right after Reset")
	}
}

func TestUpdateHotPath(t *testing.T) {
	tr := NewBeatTracker()
	now := epoch

	allocs := testing.AllocsPerRun(100, func() {
		now = now.Add(10 * time.Millisecond)
		tr.Update(0.5, now)
		tr.Tempo()
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in Update, got %.1f", allocs)
	}
}
