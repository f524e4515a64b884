package watcher

import (
	"fmt"
	"strings"

	"latera/internal/coreerr"
)

// Failures inside the watcher are rendered as "Variant: message" text, the
// same shape that crosses the process boundary, and classified on the way out.
const (
	variantAlreadyRunning  = "WatcherAlreadyRunning"
	variantNotRunning      = "WatcherNotRunning"
	variantInvalidPath     = "InvalidPath"
	variantDesktopNotFound = "DesktopDirNotFound"
	variantFileNameMissing = "FileNameMissing"
	variantIO              = "Io"
	variantNotify          = "Notify"
)

type rawError struct {
	variant string
	message string
}

func (e *rawError) Error() string {
	if strings.TrimSpace(e.message) == "" {
		return e.variant
	}
	return e.variant + ": " + e.message
}

func rawf(variant, format string, args ...any) error {
	return &rawError{variant: variant, message: fmt.Sprintf(format, args...)}
}

// translate converts any failure text into a CoreError.
func translate(err error) *coreerr.Error {
	if err == nil {
		return nil
	}
	classified := coreerr.Classify(err.Error())
	if _, ok := err.(*rawError); !ok {
		classified.Cause = err
	}
	return classified
}
