// Package version reports the build identity of the binary.
package version

import (
	"runtime/debug"
	"strings"
)

// Set with -ldflags "-X github.com/fmueller/meetscribe/internal/version.Version=..." on release builds.
var (
	Version = "0.1.0"
	Commit  = ""
	Date    = ""
)

type Info struct {
	Version  string `json:"version"`
	Commit   string `json:"commit,omitempty"`
	Date     string `json:"date,omitempty"`
	Modified bool   `json:"modified,omitempty"`
}

// Resolve returns the version string shown by the CLI and /healthz.
func Resolve() string {
	return Current().String()
}

// Current combines the linker-stamped values with the VCS data the Go
// toolchain embeds in the binary.
func Current() Info {
	return resolve(Version, Commit, Date, debug.ReadBuildInfo)
}

func resolve(base, commit, date string, buildInfo func() (*debug.BuildInfo, bool)) Info {
	if base == "" {
		base = "0.0.0"
	}
	info := Info{Version: strings.TrimPrefix(base, "v"), Commit: commit, Date: date}

	bi, ok := buildInfo()
	if !ok || bi == nil {
		return info
	}

	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.Date == "" {
				info.Date = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

// String renders the version with a short commit suffix, e.g. 0.1.0+abc1234.dirty.
func (i Info) String() string {
	if i.Commit == "" {
		return i.Version
	}

	short := i.Commit
	if len(short) > 7 {
		short = short[:7]
	}
	out := i.Version + "+" + short
	if i.Modified {
		out += ".dirty"
	}
	return out
}
