// Package versions exposes the build version reported by the version
// subcommand and the /version endpoint.
package versions

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const unknown = "unknown"

// Set at build time via -ldflags.
var (
	// Version is the release version, "dev" for local builds
	Version = "dev"
	// Commit is the git commit the binary was built from
	Commit = unknown
	// BuildDate is when the binary was built, RFC3339
	BuildDate = unknown
)

// VersionInfo is the version payload served to clients.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersionInfo returns this build's version information.
func GetVersionInfo() VersionInfo {
	return buildVersionInfo(Version, Commit, BuildDate)
}

// buildVersionInfo assembles the payload from explicit values so tests
// can exercise the fallbacks.
func buildVersionInfo(version, commit, buildDate string) VersionInfo {
	// Local builds carry no ldflags values; fall back to the vcs metadata
	// embedded by the Go toolchain.
	if strings.HasPrefix(version, "dev") {
		commit, buildDate = fillFromBuildInfo(commit, buildDate)
	}

	if buildDate != unknown {
		if t, err := time.Parse(time.RFC3339, buildDate); err == nil {
			buildDate = t.Format("2006-01-02 15:04:05 MST")
		}
	}

	// Manufacture a version string for local builds from the commit.
	if version == "dev" {
		version = fmt.Sprintf("build-%.8s", commit)
	}

	return VersionInfo{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// fillFromBuildInfo substitutes vcs revision and time for values the
// ldflags did not set.
func fillFromBuildInfo(commit, buildDate string) (string, string) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return commit, buildDate
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if commit == unknown {
				commit = setting.Value
			}
		case "vcs.time":
			if buildDate == unknown {
				buildDate = setting.Value
			}
		}
	}
	return commit, buildDate
}
