package watcher

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultFolderName is the directory created inside the desktop folder when no
// override is configured.
const DefaultFolderName = "Latera"

// DesktopDir locates the current user's desktop directory. XDG_DESKTOP_DIR
// wins when it is set to an absolute path.
func DesktopDir() (string, error) {
	if value := strings.TrimSpace(os.Getenv("XDG_DESKTOP_DIR")); value != "" && filepath.IsAbs(value) {
		return value, nil
	}
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return "", rawf(variantDesktopNotFound, "")
	}
	return filepath.Join(home, "Desktop"), nil
}

func ensureDefaultDir(desktop func() (string, error)) (string, error) {
	if desktop == nil {
		desktop = DesktopDir
	}
	base, err := desktop()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(base, DefaultFolderName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", rawf(variantIO, "%v", err)
	}
	return dir, nil
}

func ensureOverrideDir(overridePath string) (string, error) {
	if strings.TrimSpace(overridePath) == "" {
		return "", rawf(variantInvalidPath, "empty override_path")
	}
	if !filepath.IsAbs(overridePath) {
		return "", rawf(variantInvalidPath, "override_path must be absolute: %s", overridePath)
	}
	dir := filepath.Clean(overridePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", rawf(variantIO, "%v", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", rawf(variantIO, "%v", err)
	}
	if !info.IsDir() {
		return "", rawf(variantInvalidPath, "override_path is not a directory: %s", overridePath)
	}
	return dir, nil
}

// resolveWatchDir picks the override when one was passed, the default otherwise.
func resolveWatchDir(overridePath string, desktop func() (string, error)) (string, error) {
	if overridePath == "" {
		return ensureDefaultDir(desktop)
	}
	return ensureOverrideDir(overridePath)
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
