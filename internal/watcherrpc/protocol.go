// Package watcherrpc carries the watcher boundary over JSON-RPC 2.0 so the
// watcher can run in a child process. Failures cross the wire as opaque
// "Variant: message" strings and are classified again on the client side.
package watcherrpc

import (
	"io"
	"time"

	"latera/internal/watcher"
)

const (
	MethodStart  = "watcher.start"
	MethodStop   = "watcher.stop"
	MethodStatus = "watcher.status"

	NotifyFileAdded = "watcher.file_added"
	NotifyError     = "watcher.error"
	NotifyDone      = "watcher.done"
)

type StartParams struct {
	OverridePath string `json:"override_path,omitempty"`
}

type StartReply struct {
	WatchDir string `json:"watch_dir"`
}

type StatusReply struct {
	Watching bool   `json:"watching"`
	WatchDir string `json:"watch_dir,omitempty"`
}

type FileAddedParams struct {
	FileName     string `json:"file_name"`
	FullPath     string `json:"full_path"`
	OccurredAtMS int64  `json:"occurred_at_ms"`
}

type ErrorParams struct {
	Message string `json:"message"`
}

func fileAddedParams(event watcher.FileAddedEvent) FileAddedParams {
	return FileAddedParams{
		FileName:     event.FileName,
		FullPath:     event.FullPath,
		OccurredAtMS: event.OccurredAt.UnixMilli(),
	}
}

func (p FileAddedParams) event() watcher.FileAddedEvent {
	return watcher.FileAddedEvent{
		FileName:   p.FileName,
		FullPath:   p.FullPath,
		OccurredAt: time.UnixMilli(p.OccurredAtMS).UTC(),
	}
}

// pipeReadWriteCloser joins a reader and a writer, such as a child process's
// stdout and stdin, into one stream.
type pipeReadWriteCloser struct {
	reader io.ReadCloser
	writer io.WriteCloser
}

func (p *pipeReadWriteCloser) Read(b []byte) (int, error) {
	return p.reader.Read(b)
}

func (p *pipeReadWriteCloser) Write(b []byte) (int, error) {
	return p.writer.Write(b)
}

func (p *pipeReadWriteCloser) Close() error {
	rerr := p.reader.Close()
	werr := p.writer.Close()
	if rerr != nil {
		return rerr
	}
	return werr
}

// NewStdio wraps a reader/writer pair as a closable stream.
func NewStdio(reader io.ReadCloser, writer io.WriteCloser) io.ReadWriteCloser {
	return &pipeReadWriteCloser{reader: reader, writer: writer}
}
