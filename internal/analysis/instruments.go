// SPDX-License-Identifier: MIT
package analysis

// Instruments holds presence confidences in [0,1]. They come from a fixed
// heuristic over band levels, not from a trained model.
type Instruments struct {
	Drums   float64 `json:"drums"`
	Guitar  float64 `json:"guitar"`
	Bass    float64 `json:"bass"`
	Vocals  float64 `json:"vocals"`
	Piano   float64 `json:"piano"`
	Strings float64 `json:"strings"`
}

// Map returns the confidences keyed by instrument name.
func (i Instruments) Map() map[string]float64 {
	return map[string]float64{
		"drums":   i.Drums,
		"guitar":  i.Guitar,
		"bass":    i.Bass,
		"vocals":  i.Vocals,
		"piano":   i.Piano,
		"strings": i.Strings,
	}
}

// Classifier maps a feature set to instrument confidences. Implementations
// must be deterministic functions of their input.
type Classifier interface {
	Classify(f Features) Instruments
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(f Features) Instruments

// Classify calls fn(f).
func (fn ClassifierFunc) Classify(f Features) Instruments { return fn(f) }

// HeuristicClassifier is the default Classifier: each confidence is a
// fixed linear combination of the band levels and the beat flag, clamped
// to [0,1].
type HeuristicClassifier struct{}

var _ Classifier = HeuristicClassifier{}

// Classify implements Classifier.
func (HeuristicClassifier) Classify(f Features) Instruments {
	beat := 0.0
	if f.BeatDetected {
		beat = 1.0
	}
	b, m, t := f.BassLevel, f.MidLevel, f.TrebleLevel

	return Instruments{
		Drums:   clamp01(0.6*b + 0.2*t + 0.4*beat),
		Guitar:  clamp01(0.7*m + 0.3*t - 0.2*b),
		Bass:    clamp01(0.9*b - 0.2*t),
		Vocals:  clamp01(0.8*m + 0.1*t - 0.1*b),
		Piano:   clamp01(0.3*b + 0.5*m + 0.2*t),
		Strings: clamp01(0.4*m + 0.5*t - 0.1*b),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
