package version

import (
	"runtime/debug"
	"testing"
)

func TestGetVersionInfoPrefersLinkedValues(t *testing.T) {
	previous := []string{Version, GitCommit, Built}
	t.Cleanup(func() { Version, GitCommit, Built = previous[0], previous[1], previous[2] })

	Version, GitCommit, Built = "1.2.3", "abc123", "2026-01-11T12:34:56Z"

	info := GetVersionInfo()
	if info != (VersionInfo{Version: "1.2.3", GitCommit: "abc123", Built: "2026-01-11T12:34:56Z"}) {
		t.Fatalf("unexpected version info %+v", info)
	}
}

func TestFillFromBuildSettings(t *testing.T) {
	settings := []debug.BuildSetting{
		{Key: "vcs", Value: "git"},
		{Key: "vcs.revision", Value: "0123456789abcdef0123"},
		{Key: "vcs.time", Value: "2026-09-30T08:00:00Z"},
	}
	info := fillFromBuildSettings(VersionInfo{Version: "dev"}, settings)
	if info.GitCommit != "0123456789ab" || info.Built != "2026-09-30T08:00:00Z" {
		t.Fatalf("unexpected info %+v", info)
	}

	linked := fillFromBuildSettings(VersionInfo{GitCommit: "f00d"}, settings)
	if linked.GitCommit != "f00d" {
		t.Fatalf("expected linked commit to win, got %q", linked.GitCommit)
	}
}

func TestVersionInfoString(t *testing.T) {
	info := VersionInfo{Version: "0.4.1", GitCommit: "f00d", Built: "2026-10-01"}
	if got := info.String(); got != "0.4.1 (f00d) built 2026-10-01" {
		t.Fatalf("unexpected version string %q", got)
	}
	if got := (VersionInfo{Version: "dev"}).String(); got != "dev" {
		t.Fatalf("unexpected bare version string %q", got)
	}
}
