// SPDX-License-Identifier: MIT
package log

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := GetLevel()
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(prev)
	})
	return &buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  LogLevel
		ok    bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"Warning", LevelWarn, true},
		{" error ", LevelError, true},
		{"fatal", LevelFatal, true},
		{"verbose", LevelInfo, false},
		{"", LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseLevel(tt.input)
			if got != tt.want || ok != tt.ok {
				t.Errorf("ParseLevel(%q) = (%v, %v), want (%v, %v)", tt.input, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := captureOutput(t)
	SetLevel(LevelWarn)

	Debugf("debug %d", 1)
	Infof("info %d", 2)
	Warnf("warn %d", 3)
	Errorf("error %d", 4)

	out := buf.String()
	for _, hidden := range []string{"debug 1", "info 2"} {
		if strings.Contains(out, hidden) {
			t.Errorf("output contains %q below the configured level:\n%s", hidden, out)
		}
	}
	for _, shown := range []string{"[WARN ] warn 3", "[ERROR] error 4"} {
		if !strings.Contains(out, shown) {
			t.Errorf("output missing %q:\n%s", shown, out)
		}
	}
}

func TestConfigureUnknownLevelWarns(t *testing.T) {
	buf := captureOutput(t)

	Configure("loud")

	if GetLevel() != LevelInfo {
		t.Errorf("GetLevel() = %v, want %v", GetLevel(), LevelInfo)
	}
	if !strings.Contains(buf.String(), `unknown level "loud"`) {
		t.Errorf("expected warning about unknown level, got %q", buf.String())
	}
}

func TestDisabledDebugDoesNotAllocate(t *testing.T) {
	captureOutput(t)
	SetLevel(LevelInfo)

	allocs := testing.AllocsPerRun(100, func() {
		if Enabled(LevelDebug) {
			Debugf("never %d", 1)
		}
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations for a disabled debug check, got %.1f", allocs)
	}
}

func TestLogfExplicitLevel(t *testing.T) {
	buf := captureOutput(t)
	SetLevel(LevelWarn)

	Logf(LevelInfo, "hidden %d", 1)
	Logf(LevelError, "shown %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Info message emitted at Warn level: %q", out)
	}
	if !strings.Contains(out, "[ERROR] shown 2") {
		t.Errorf("missing error message: %q", out)
	}
}
