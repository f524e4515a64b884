package version

import (
	"fmt"
	"runtime/debug"
)

// Build metadata, set with -ldflags "-X latera/internal/version.Version=...".
var (
	Version   = "dev"
	GitCommit = ""
	Built     = ""
)

type VersionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	Built     string `json:"built,omitempty"`
}

// GetVersionInfo returns the linked metadata. Commit and build time fall back
// to the VCS stamp the Go toolchain embeds when they were not set at link time.
func GetVersionInfo() VersionInfo {
	info := VersionInfo{Version: Version, GitCommit: GitCommit, Built: Built}
	if info.GitCommit != "" && info.Built != "" {
		return info
	}
	build, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	return fillFromBuildSettings(info, build.Settings)
}

func fillFromBuildSettings(info VersionInfo, settings []debug.BuildSetting) VersionInfo {
	for _, setting := range settings {
		switch setting.Key {
		case "vcs.revision":
			if info.GitCommit == "" {
				info.GitCommit = shortRevision(setting.Value)
			}
		case "vcs.time":
			if info.Built == "" {
				info.Built = setting.Value
			}
		}
	}
	return info
}

func shortRevision(revision string) string {
	if len(revision) > 12 {
		return revision[:12]
	}
	return revision
}

// String renders the one-line form printed by -version.
func (info VersionInfo) String() string {
	text := info.Version
	if info.GitCommit != "" {
		text = fmt.Sprintf("%s (%s)", text, info.GitCommit)
	}
	if info.Built != "" {
		text += " built " + info.Built
	}
	return text
}
