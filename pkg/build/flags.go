// SPDX-License-Identifier: MIT
//
// Package build holds metadata embedded at link time, for example:
//
//	go build -ldflags "-X beatscope/pkg/build.buildVersion=0.2.0 \
//	    -X beatscope/pkg/build.buildCommit=$(git rev-parse --short HEAD)"
//
// Development builds run with the defaults below.
package build

import (
	"errors"
	"fmt"
)

// Info describes the running binary.
type Info struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// String renders the one-line version banner used by the CLI.
func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}

var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildInfo    = &Info{
		Name:        "beatscope",
		Description: "Real-time spectral and rhythmic analysis of mono PCM streams",
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
)

// Initialize copies every non-empty ldflags variable into the build info.
// It returns an error naming each missing flag; the defaults stay in place
// for those fields, so callers may treat the error as a warning.
func Initialize() error {
	var errs []error
	set := func(dst *string, src, flag string) {
		if src == "" {
			errs = append(errs, fmt.Errorf("%s is required", flag))
			return
		}
		*dst = src
	}

	set(&buildInfo.Name, buildName, "BuildName")
	set(&buildInfo.Time, buildTime, "BuildTime")
	set(&buildInfo.Commit, buildCommit, "BuildCommit")
	set(&buildInfo.Version, buildVersion, "BuildVersion")

	return errors.Join(errs...)
}

// GetBuildInfo returns the current build information.
func GetBuildInfo() *Info {
	return buildInfo
}
