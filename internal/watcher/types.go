package watcher

import (
	"context"
	"time"

	"latera/internal/coreerr"
)

// FileAddedEvent describes one regular file that appeared in the watched
// directory.
type FileAddedEvent struct {
	FileName   string    `json:"file_name"`
	FullPath   string    `json:"full_path"`
	OccurredAt time.Time `json:"occurred_at"`
}

type SignalKind string

const (
	SignalData  SignalKind = "data"
	SignalError SignalKind = "error"
	SignalDone  SignalKind = "done"
)

// Signal is one element of the watcher stream. Event is set only for
// SignalData and Err only for SignalError.
type Signal struct {
	Kind  SignalKind
	Event FileAddedEvent
	Err   *coreerr.Error
}

func (s Signal) Type() string {
	return string(s.Kind)
}

func DataSignal(event FileAddedEvent) Signal {
	return Signal{Kind: SignalData, Event: event}
}

func ErrorSignal(err *coreerr.Error) Signal {
	if err == nil {
		err = coreerr.Stream("stream error", nil)
	}
	return Signal{Kind: SignalError, Err: err}
}

func DoneSignal() Signal {
	return Signal{Kind: SignalDone}
}

// WatchResult reports the outcome of StartWatching. Exactly one of WatchDir
// and Err is meaningful.
type WatchResult struct {
	WatchDir string
	Err      *coreerr.Error
}

func Watched(dir string) WatchResult {
	return WatchResult{WatchDir: dir}
}

func WatchFailed(err *coreerr.Error) WatchResult {
	if err == nil {
		err = coreerr.New(coreerr.KindWatcher, coreerr.CodeUnknown, "watch failed")
	}
	return WatchResult{Err: err}
}

func (r WatchResult) OK() bool {
	return r.Err == nil
}

// Boundary is the contract every watcher implementation satisfies, whether it
// runs in-process or behind a process boundary.
type Boundary interface {
	// StartWatching begins a session. An empty overridePath selects the
	// platform default directory.
	StartWatching(ctx context.Context, overridePath string) WatchResult
	// StopWatching ends the current session. It is a no-op when not watching.
	StopWatching(ctx context.Context) *coreerr.Error
	Subscribe() (<-chan Signal, func())
	IsWatching() bool
}
