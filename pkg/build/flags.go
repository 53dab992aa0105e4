// SPDX-License-Identifier: MIT
//
// Package build carries the build metadata embedded at link time, for example:
//
//	go build -ldflags "-X audiolens/pkg/build.buildName=audiolens \
//	  -X audiolens/pkg/build.buildVersion=0.3.0 \
//	  -X audiolens/pkg/build.buildCommit=$(git rev-parse --short HEAD) \
//	  -X audiolens/pkg/build.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// Development builds run without ldflags and report "dev" values.
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

// String formats the info the way the CLI prints --version.
func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}

const description = "Real-time loudness, tempo, key and spectrum analysis for live audio"

// Populated by -ldflags.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildInfo    = devInfo()
)

// ErrMissingFlags is returned by Initialize when the binary was linked
// without build metadata. The dev defaults stay in place.
var ErrMissingFlags = errors.New("build metadata not set")

func devInfo() *Info {
	return &Info{
		Name:        "audiolens",
		Description: description,
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
}

// Initialize copies the ldflags values into the build info. Missing values
// are reported by name; the caller decides whether that is fatal.
func Initialize() error {
	var missing []string
	if buildName == "" {
		missing = append(missing, "BuildName")
	}
	if buildTime == "" {
		missing = append(missing, "BuildTime")
	}
	if buildCommit == "" {
		missing = append(missing, "BuildCommit")
	}
	if buildVersion == "" {
		missing = append(missing, "BuildVersion")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMissingFlags, missing)
	}

	buildInfo = &Info{
		Name:        buildName,
		Description: description,
		Time:        buildTime,
		Commit:      buildCommit,
		Version:     buildVersion,
	}
	return nil
}

// GetBuildInfo returns the current build information.
func GetBuildInfo() Info {
	return *buildInfo
}
