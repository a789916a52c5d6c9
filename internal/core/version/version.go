// Package version reports the build of the rhat binary
package version

import (
	"fmt"
	"runtime/debug"
)

// BuildInfo holds version information about the build
type BuildInfo struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Set via -ldflags "-X 'rhat/internal/core/version.version=v0.1.0'
// -X 'rhat/internal/core/version.commit=abcd' -X 'rhat/internal/core/version.date=2026-01-02'"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Info returns the build information. Without ldflags the commit and date
// fall back to the vcs stamp of the module build
func Info() BuildInfo {
	bi := BuildInfo{Service: "rhat", Version: version, Commit: commit, Date: date}
	if commit != "none" {
		return bi
	}
	if info, ok := debug.ReadBuildInfo(); ok && info != nil {
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				bi.Commit = s.Value
			case "vcs.time":
				bi.Date = s.Value
			}
		}
	}
	return bi
}

// String renders the build on one line
func (b BuildInfo) String() string {
	c := b.Commit
	if len(c) > 7 {
		c = c[:7]
	}
	return fmt.Sprintf("%s (%s, %s)", b.Version, c, b.Date)
}
