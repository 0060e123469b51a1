// Package versions provides version and build information for the broker.
package versions

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

const unknownStr = "unknown"

var (
	// Version is the current version of the broker, set at build time.
	Version = "dev"
	// Commit is the git commit hash, set at build time.
	Commit = unknownStr
	// BuildDate is the date the binary was built, set at build time.
	BuildDate = unknownStr
)

// VersionInfo represents the version information of the broker.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersionInfo returns the version information of the broker.
func GetVersionInfo() VersionInfo {
	version := Version
	commit := Commit

	// For development builds, try to pull build info out of the binary.
	if version == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, setting := range info.Settings {
				if setting.Key == "vcs.revision" && commit == unknownStr {
					commit = setting.Value
				}
			}
		}
		if commit != unknownStr && len(commit) >= 8 {
			version = fmt.Sprintf("build-%s", commit[:8])
		} else {
			version = "build-" + unknownStr
		}
	}

	buildDate := BuildDate
	if buildDate != unknownStr {
		if t, err := time.Parse(time.RFC3339, buildDate); err == nil {
			buildDate = t.UTC().Format("2006-01-02 15:04:05 UTC")
		}
	}

	return VersionInfo{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}
