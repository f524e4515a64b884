package coordinator

import (
	"context"
	"errors"
	"time"

	"latera/internal/coreerr"
)

// ErrDisposed is returned by Start once the coordinator has been disposed.
var ErrDisposed = errors.New("coordinator disposed")

type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisposed State = "disposed"
)

const (
	UpdateFileAdded   = "file_added"
	UpdateStreamError = "stream_error"
)

// UiEvent is the presentation-facing projection of a file arrival.
type UiEvent struct {
	ID         string    `json:"id"`
	FileName   string    `json:"file_name"`
	FullPath   string    `json:"full_path"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Update is one element of the outward stream: exactly one of Event and Err
// is set.
type Update struct {
	Event *UiEvent       `json:"event,omitempty"`
	Err   *coreerr.Error `json:"error,omitempty"`
}

func (u Update) Type() string {
	if u.Err != nil {
		return UpdateStreamError
	}
	return UpdateFileAdded
}

type StartResult struct {
	WatchDir string         `json:"watch_dir,omitempty"`
	Err      *coreerr.Error `json:"error,omitempty"`
}

func Started(dir string) StartResult {
	return StartResult{WatchDir: dir}
}

func StartFailed(err *coreerr.Error) StartResult {
	if err == nil {
		err = coreerr.New(coreerr.KindWatcher, "", "start failed")
	}
	return StartResult{Err: err}
}

func (r StartResult) OK() bool {
	return r.Err == nil
}

// FileNotifier is the throttle-gated notification side effect. It reports
// whether a notification was actually shown.
type FileNotifier interface {
	FileAdded(ctx context.Context, fileName string) (bool, error)
}

// Snapshot is the status view served by the API.
type Snapshot struct {
	State                   State          `json:"state"`
	WatchDir                string         `json:"watch_dir,omitempty"`
	StartedAt               *time.Time     `json:"started_at,omitempty"`
	LastEventAt             *time.Time     `json:"last_event_at,omitempty"`
	LastError               *coreerr.Error `json:"last_error,omitempty"`
	Events                  int64          `json:"events"`
	NotificationsFired      int64          `json:"notifications_fired"`
	NotificationsSuppressed int64          `json:"notifications_suppressed"`
	NotificationsFailed     int64          `json:"notifications_failed"`
	StreamErrors            int64          `json:"stream_errors"`
	Subscribers             int            `json:"subscribers"`
}
