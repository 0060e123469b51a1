package versions

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetVersionInfo(t *testing.T) {
	info := GetVersionInfo()

	assert.NotEmpty(t, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Contains(t, info.Platform, runtime.GOOS)
}

func TestGetVersionInfoReleaseBuild(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, BuildDate
	defer func() { Version, Commit, BuildDate = origVersion, origCommit, origDate }()

	Version = "1.2.3"
	Commit = "0123456789abcdef"
	BuildDate = "2026-08-24T12:30:00Z"

	info := GetVersionInfo()
	assert.Equal(t, "1.2.3", info.Version)
	assert.Equal(t, "0123456789abcdef", info.Commit)
	assert.Equal(t, "2026-08-24 12:30:00 UTC", info.BuildDate)
}
