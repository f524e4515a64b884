// Package coreerr defines the closed error taxonomy used for every failure that
// crosses the watcher boundary.
//
// Upstream failures arrive as opaque text (possibly from another process) and are
// classified into exactly one Kind before any other component sees them.
package coreerr

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind identifies one of the seven error families.
type Kind string

const (
	KindFileSystem     Kind = "file_system"
	KindWatcher        Kind = "watcher"
	KindConfig         Kind = "config"
	KindPlatform       Kind = "platform"
	KindInitialization Kind = "initialization"
	KindNotification   Kind = "notification"
	KindStream         Kind = "stream"
)

// Kinds lists every Kind in a stable order.
var Kinds = []Kind{
	KindFileSystem,
	KindWatcher,
	KindConfig,
	KindPlatform,
	KindInitialization,
	KindNotification,
	KindStream,
}

// Error lets a Kind be used as an errors.Is target.
func (kind Kind) Error() string {
	return string(kind) + " error"
}

func (kind Kind) valid() bool {
	for _, candidate := range Kinds {
		if candidate == kind {
			return true
		}
	}
	return false
}

// Error is the uniform shape shared by all kinds.
type Error struct {
	Kind    Kind
	Message string
	Code    string
	Cause   error
	Trace   string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	builder := strings.Builder{}
	builder.WriteString(string(e.Kind))
	if e.Code != "" {
		builder.WriteString(" [")
		builder.WriteString(e.Code)
		builder.WriteString("]")
	}
	builder.WriteString(": ")
	builder.WriteString(e.Message)
	if e.Cause != nil && e.Cause.Error() != e.Message {
		builder.WriteString(": ")
		builder.WriteString(e.Cause.Error())
	}
	return builder.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches a Kind target or another *Error with the same kind and code.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	switch typed := target.(type) {
	case Kind:
		return e.Kind == typed
	case *Error:
		return typed != nil && e.Kind == typed.Kind && e.Code == typed.Code
	default:
		return false
	}
}

// WithTrace returns a copy carrying the provided trace text.
func (e *Error) WithTrace(trace string) *Error {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Trace = strings.TrimSpace(trace)
	return &clone
}

// Fields flattens the error for structured logging.
func (e *Error) Fields() map[string]string {
	if e == nil {
		return nil
	}
	fields := map[string]string{
		"error.kind":    string(e.Kind),
		"error.code":    e.Code,
		"error.message": e.Message,
	}
	if e.Cause != nil {
		fields["error.cause"] = e.Cause.Error()
	}
	return fields
}

type jsonError struct {
	Kind    Kind   `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
	Trace   string `json:"trace,omitempty"`
}

// MarshalJSON renders the error for API payloads. The cause is flattened to text.
func (e *Error) MarshalJSON() ([]byte, error) {
	if e == nil {
		return []byte("null"), nil
	}
	payload := jsonError{
		Kind:    e.Kind,
		Code:    e.Code,
		Message: e.Message,
		Trace:   e.Trace,
	}
	if e.Cause != nil && e.Cause.Error() != e.Message {
		payload.Cause = e.Cause.Error()
	}
	return json.Marshal(payload)
}

// New builds an error of the given kind. Unknown kinds collapse to KindPlatform.
func New(kind Kind, code, message string) *Error {
	return Wrap(kind, code, message, nil)
}

// Wrap builds an error of the given kind around a cause.
func Wrap(kind Kind, code, message string, cause error) *Error {
	if !kind.valid() {
		kind = KindPlatform
	}
	code = strings.TrimSpace(code)
	if code == "" {
		code = CodeUnknown
	}
	message = strings.TrimSpace(message)
	if message == "" {
		if cause != nil {
			message = cause.Error()
		} else {
			message = defaultMessage(code)
		}
	}
	return &Error{
		Kind:    kind,
		Message: message,
		Code:    code,
		Cause:   cause,
	}
}

func defaultMessage(code string) string {
	for _, rule := range variantTable {
		if rule.code == code {
			return rule.message
		}
	}
	return "unknown error"
}

func WatcherAlreadyRunning() *Error {
	return New(KindWatcher, CodeWatcherAlreadyRunning, "Watcher is already running")
}

func WatcherNotRunning() *Error {
	return New(KindWatcher, CodeWatcherNotRunning, "Watcher is not running")
}

func InvalidPath(format string, args ...any) *Error {
	return New(KindFileSystem, CodeInvalidPath, "Invalid path: "+fmt.Sprintf(format, args...))
}

func DesktopDirNotFound() *Error {
	return New(KindPlatform, CodeDesktopDirNotFound, "Desktop directory is not available on this OS/user")
}

func FileNameMissing(path string) *Error {
	return New(KindFileSystem, CodeFileNameMissing, fmt.Sprintf("Cannot determine file name for path: %q", path))
}

func IO(cause error) *Error {
	return Wrap(KindFileSystem, CodeIO, "I/O error", cause)
}

func Notify(cause error) *Error {
	return Wrap(KindWatcher, CodeNotify, "Notify error", cause)
}

func Stream(message string, cause error) *Error {
	return Wrap(KindStream, CodeStream, message, cause)
}

func Notification(message string, cause error) *Error {
	return Wrap(KindNotification, CodeNotificationFailed, message, cause)
}

func Initialization(message string, cause error) *Error {
	return Wrap(KindInitialization, CodeInitializationFailed, message, cause)
}

func Config(message string) *Error {
	return New(KindConfig, CodeConfigInvalid, message)
}

func PlatformUnsupported(message string) *Error {
	return New(KindPlatform, CodePlatformUnsupported, message)
}
