// SPDX-License-Identifier: MIT
//
// Package build carries the metadata embedded at link time:
//
//	go build -ldflags "-X tempo/pkg/build.buildName=tempo \
//	    -X tempo/pkg/build.buildVersion=v0.3.0 \
//	    -X tempo/pkg/build.buildCommit=$(git rev-parse --short HEAD) \
//	    -X tempo/pkg/build.buildTime=$(date -u +%FT%TZ)"
//
// Development builds have no ldflags; they keep the defaults and report
// Initialize's error at debug level only.
package build

import (
	"errors"
	"fmt"
)

// ErrMissingFlag reports a linker flag that was not set.
var ErrMissingFlag = errors.New("build flag not set")

// Info is the build metadata.
type Info struct {
	Name    string
	Time    string
	Commit  string
	Version string
}

// String formats the metadata for --version.
func (i *Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}

// Package-level variables for build information, populated by -ldflags.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildInfo    = defaultInfo()
)

func defaultInfo() *Info {
	return &Info{
		Name:    "tempo",
		Time:    "unknown",
		Commit:  "unknown",
		Version: "dev",
	}
}

// Initialize copies the ldflags variables into the build info. Every flag
// that is set is applied; the missing ones are reported together and keep
// their defaults.
func Initialize() error {
	var errs []error
	for _, f := range []struct {
		name  string
		value string
		dst   *string
	}{
		{"BuildName", buildName, &buildInfo.Name},
		{"BuildTime", buildTime, &buildInfo.Time},
		{"BuildCommit", buildCommit, &buildInfo.Commit},
		{"BuildVersion", buildVersion, &buildInfo.Version},
	} {
		if f.value == "" {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingFlag, f.name))
			continue
		}
		*f.dst = f.value
	}
	return errors.Join(errs...)
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *Info {
	return buildInfo
}
