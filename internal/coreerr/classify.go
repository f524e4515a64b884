package coreerr

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

const (
	CodeWatcherAlreadyRunning = "watcher_already_running"
	CodeWatcherNotRunning     = "watcher_not_running"
	CodeInvalidPath           = "invalid_path"
	CodeDesktopDirNotFound    = "desktop_dir_not_found"
	CodeFileNameMissing       = "file_name_missing"
	CodeIO                    = "io_error"
	CodeNotify                = "notify_error"
	CodePermissionDenied      = "permission_denied"
	CodeNotFound              = "not_found"
	CodeStream                = "stream_error"
	CodeCancelled             = "cancelled"
	CodeNotificationFailed    = "notification_failed"
	CodeInitializationFailed  = "initialization_failed"
	CodeConfigInvalid         = "config_invalid"
	CodePlatformUnsupported   = "platform_unsupported"
	CodeUnknown               = "unknown_error"
)

type variantRule struct {
	variant string
	kind    Kind
	code    string
	message string
}

// variantTable maps the structured "Variant: message" markers produced by the
// upstream watcher to a kind/code pair.
var variantTable = []variantRule{
	{variant: "WatcherAlreadyRunning", kind: KindWatcher, code: CodeWatcherAlreadyRunning, message: "Watcher is already running"},
	{variant: "WatcherNotRunning", kind: KindWatcher, code: CodeWatcherNotRunning, message: "Watcher is not running"},
	{variant: "InvalidPath", kind: KindFileSystem, code: CodeInvalidPath, message: "Invalid path"},
	{variant: "DesktopDirNotFound", kind: KindPlatform, code: CodeDesktopDirNotFound, message: "Desktop directory is not available on this OS/user"},
	{variant: "FileNameMissing", kind: KindFileSystem, code: CodeFileNameMissing, message: "Cannot determine file name"},
	{variant: "Io", kind: KindFileSystem, code: CodeIO, message: "I/O error"},
	{variant: "Notify", kind: KindWatcher, code: CodeNotify, message: "Notify error"},
	{variant: "Stream", kind: KindStream, code: CodeStream, message: "Stream error"},
	{variant: "Config", kind: KindConfig, code: CodeConfigInvalid, message: "Invalid configuration"},
	{variant: "Initialization", kind: KindInitialization, code: CodeInitializationFailed, message: "Initialization failed"},
	{variant: "Notification", kind: KindNotification, code: CodeNotificationFailed, message: "Notification failed"},
	{variant: "Platform", kind: KindPlatform, code: CodePlatformUnsupported, message: "Unsupported platform"},
}

type phraseRule struct {
	phrase string
	kind   Kind
	code   string
}

// phraseRules are consulted, in order, when no structured marker is present.
var phraseRules = []phraseRule{
	{phrase: "already running", kind: KindWatcher, code: CodeWatcherAlreadyRunning},
	{phrase: "not running", kind: KindWatcher, code: CodeWatcherNotRunning},
	{phrase: "permission denied", kind: KindFileSystem, code: CodePermissionDenied},
	{phrase: "no such file or directory", kind: KindFileSystem, code: CodeNotFound},
	{phrase: "cannot find the path", kind: KindFileSystem, code: CodeNotFound},
	{phrase: "too many open files", kind: KindWatcher, code: CodeNotify},
	{phrase: "inotify", kind: KindWatcher, code: CodeNotify},
}

var markerPattern = regexp.MustCompile(`^(?:[A-Za-z_][A-Za-z0-9_]*(?:::|\.))?([A-Za-z][A-Za-z0-9_]*)(?::\s*(.*)|\((.*)\))?$`)

// Classify maps opaque upstream failure text to exactly one Error. It never panics
// and never returns nil.
func Classify(text string) *Error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return New(KindPlatform, CodeUnknown, "unknown error")
	}

	firstLine, trace, _ := strings.Cut(trimmed, "\n")
	firstLine = strings.TrimSpace(firstLine)

	if rule, message, ok := matchVariant(firstLine); ok {
		if message == "" {
			message = rule.message
		}
		return New(rule.kind, rule.code, message).WithTrace(trace)
	}

	lowered := strings.ToLower(firstLine)
	for _, rule := range phraseRules {
		if strings.Contains(lowered, rule.phrase) {
			return New(rule.kind, rule.code, firstLine).WithTrace(trace)
		}
	}

	return New(KindPlatform, CodeUnknown, firstLine).WithTrace(trace)
}

func matchVariant(line string) (variantRule, string, bool) {
	matches := markerPattern.FindStringSubmatch(line)
	if matches == nil {
		return variantRule{}, "", false
	}
	variant := matches[1]
	message := strings.TrimSpace(matches[2])
	if message == "" {
		message = strings.TrimSpace(matches[3])
	}
	// Variants are PascalCase; lowercase Go package prefixes like "io:" are
	// plain text.
	for _, rule := range variantTable {
		if rule.variant == variant {
			return rule, message, true
		}
	}
	return variantRule{}, "", false
}

// From converts any error into an Error. Existing Errors pass through unchanged;
// anything else is classified from its text and kept as the cause.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var coreErr *Error
	if errors.As(err, &coreErr) && coreErr != nil {
		return coreErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Wrap(KindStream, CodeCancelled, "operation cancelled", err)
	}
	classified := Classify(err.Error())
	classified.Cause = err
	return classified
}

// FromStreamError is From for failures delivered asynchronously on an event
// stream: text with no recognizable marker becomes a KindStream error.
func FromStreamError(err error) *Error {
	if err == nil {
		return nil
	}
	converted := From(err)
	if converted.Code == CodeUnknown {
		converted = Wrap(KindStream, CodeStream, converted.Message, err).WithTrace(converted.Trace)
	}
	return converted
}

// Marker renders e in the "Variant: message" text form understood by
// Classify, so an error survives a hop across a text-only boundary with its
// kind and code intact.
func (e *Error) Marker() string {
	if e == nil {
		return ""
	}
	message := strings.ReplaceAll(strings.TrimSpace(e.Message), "\n", " ")
	for _, rule := range variantTable {
		if rule.kind == e.Kind && rule.code == e.Code {
			return rule.variant + ": " + message
		}
	}
	if e.Code == CodeUnknown {
		return message
	}
	if reclassified := Classify(message); reclassified.Kind == e.Kind && reclassified.Code == e.Code {
		return message
	}
	for _, rule := range variantTable {
		if rule.kind == e.Kind {
			return rule.variant + ": " + message
		}
	}
	return message
}
