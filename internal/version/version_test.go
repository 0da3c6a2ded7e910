package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildInfo(settings ...debug.BuildSetting) func() (*debug.BuildInfo, bool) {
	return func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Settings: settings}, true
	}
}

func noBuildInfo() (*debug.BuildInfo, bool) {
	return nil, false
}

func TestResolve_ReleaseStamp(t *testing.T) {
	t.Parallel()
	info := resolve("v1.2.0", "0123456789abcdef", "2024-05-01", noBuildInfo)
	require.Equal(t, Info{Version: "1.2.0", Commit: "0123456789abcdef", Date: "2024-05-01"}, info)
	require.Equal(t, "1.2.0+0123456", info.String())
}

func TestResolve_VCSSettings(t *testing.T) {
	t.Parallel()
	info := resolve("0.1.0", "", "", buildInfo(
		debug.BuildSetting{Key: "vcs.revision", Value: "abcdef0123"},
		debug.BuildSetting{Key: "vcs.time", Value: "2024-01-02T10:00:00Z"},
		debug.BuildSetting{Key: "vcs.modified", Value: "true"},
	))
	require.Equal(t, "abcdef0123", info.Commit)
	require.Equal(t, "2024-01-02T10:00:00Z", info.Date)
	require.True(t, info.Modified)
	require.Equal(t, "0.1.0+abcdef0.dirty", info.String())
}

func TestResolve_StampWinsOverVCS(t *testing.T) {
	t.Parallel()
	info := resolve("0.1.0", "feedbee", "", buildInfo(
		debug.BuildSetting{Key: "vcs.revision", Value: "abcdef0123"},
	))
	require.Equal(t, "feedbee", info.Commit)
	require.Equal(t, "0.1.0+feedbee", info.String())
}

func TestResolve_NoBuildInfo(t *testing.T) {
	t.Parallel()
	info := resolve("0.1.0", "", "", noBuildInfo)
	require.Equal(t, "0.1.0", info.String())
}

func TestResolve_EmptyBaseFallsBackToZero(t *testing.T) {
	t.Parallel()
	require.Equal(t, "0.0.0", resolve("", "", "", noBuildInfo).Version)
}
