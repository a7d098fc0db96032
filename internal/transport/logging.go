// SPDX-License-Identifier: MIT
package transport

import (
	"fmt"
	"sync/atomic"

	"beatscope/internal/analysis"
	applog "beatscope/internal/log"
)

// LoggingTransport implements the Transport interface by logging a one line
// summary of every result.
type LoggingTransport struct {
	level applog.LogLevel
	sent  atomic.Uint64
}

// NewLoggingTransport creates a LoggingTransport writing at level.
func NewLoggingTransport(level applog.LogLevel) *LoggingTransport {
	applog.Infof("Transport: Using LoggingTransport (level %s)", level)
	return &LoggingTransport{level: level}
}

// Send logs data. Formatting is skipped entirely when the level is off.
func (lt *LoggingTransport) Send(data any) error {
	n := lt.sent.Add(1)
	if !applog.Enabled(lt.level) {
		return nil
	}

	switch v := data.(type) {
	case *analysis.Result:
		applog.Logf(lt.level, "Result #%d: %s", n, Summary(v))
	default:
		applog.Logf(lt.level, "Result #%d (%T): %+v", n, data, data)
	}
	return nil
}

// Sent returns how many values were passed to Send.
func (lt *LoggingTransport) Sent() uint64 { return lt.sent.Load() }

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	applog.Debugf("Transport: LoggingTransport closed after %d results", lt.Sent())
	return nil
}

// Summary renders the headline features of r.
func Summary(r *analysis.Result) string {
	f := r.Features
	beat := " "
	if f.BeatDetected {
		beat = "*"
	}
	s := fmt.Sprintf("[%s] bass=%.3f mid=%.3f treble=%.3f overall=%.3f tempo=%.1f dominant=%.1fHz",
		beat, f.BassLevel, f.MidLevel, f.TrebleLevel, f.OverallLevel, f.Tempo, f.DominantFrequency)
	if x := r.ExtendedFeatures; x != nil {
		s += fmt.Sprintf(" centroid=%.1fHz rolloff=%.1fHz flux=%.3f zcr=%.4f rms=%.4f peak=%.4f",
			x.SpectralCentroid, x.SpectralRolloff, x.SpectralFlux, x.ZeroCrossingRate, x.RMS, x.Peak)
	}
	return s
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
