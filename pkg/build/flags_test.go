// SPDX-License-Identifier: MIT
package build

import (
	"os"
	"strings"
	"testing"
)

var origInfo Info

func TestMain(m *testing.M) {
	origInfo = *buildInfo
	exitCode := m.Run()
	*buildInfo = origInfo
	os.Exit(exitCode)
}

func resetBuildVars(name, tm, commit, version string) {
	*buildInfo = origInfo
	buildName = name
	buildTime = tm
	buildCommit = commit
	buildVersion = version
}

func TestInitialize(t *testing.T) {
	tests := []struct {
		name        string
		buildName   string
		buildTime   string
		buildCommit string
		buildVer    string
		wantErrs    []string
	}{
		{"Missing BuildName", "", "2026-10-16", "abcdef1", "v1.0.0", []string{"BuildName is required"}},
		{"Missing BuildTime", "scope", "", "abcdef1", "v1.0.0", []string{"BuildTime is required"}},
		{"Missing BuildCommit", "scope", "2026-10-16", "", "v1.0.0", []string{"BuildCommit is required"}},
		{"Missing BuildVersion", "scope", "2026-10-16", "abcdef1", "", []string{"BuildVersion is required"}},
		{"Missing everything", "", "", "", "", []string{"BuildName", "BuildTime", "BuildCommit", "BuildVersion"}},
		{"Success Case", "scope", "2026-10-16", "abcdef1", "v1.0.0", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetBuildVars(tt.buildName, tt.buildTime, tt.buildCommit, tt.buildVer)

			err := Initialize()

			if len(tt.wantErrs) == 0 {
				if err != nil {
					t.Fatalf("Initialize() unexpected error: %v", err)
				}
				info := GetBuildInfo()
				if info.Name != tt.buildName || info.Time != tt.buildTime ||
					info.Commit != tt.buildCommit || info.Version != tt.buildVer {
					t.Errorf("GetBuildInfo() = %+v, want values from ldflags", info)
				}
				return
			}

			if err == nil {
				t.Fatal("Initialize() expected error, got nil")
			}
			for _, want := range tt.wantErrs {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("Initialize() error %q does not mention %q", err, want)
				}
			}
		})
	}
}

func TestInitializeKeepsDefaultsForMissingFlags(t *testing.T) {
	resetBuildVars("", "", "", "")

	_ = Initialize()

	info := GetBuildInfo()
	if info.Name != "beatscope" {
		t.Errorf("Name = %q, want default %q", info.Name, "beatscope")
	}
	if info.Version != "dev" {
		t.Errorf("Version = %q, want default %q", info.Version, "dev")
	}
}

func TestInfoString(t *testing.T) {
	info := Info{Name: "scope", Version: "v1.2.3", Commit: "abc", Time: "today"}
	want := "scope v1.2.3 (commit abc, built today)"
	if got := info.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
