package watcherrpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"latera/internal/logging"
)

const processStopTimeout = 3 * time.Second

// Spawn starts the watcher binary as a child process and connects a Client to
// its stdio. Closing the client closes the pipes and reaps the process.
func Spawn(ctx context.Context, binary string, args []string, options ClientOptions) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("watcher binary is required")
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("locate watcher binary: %w", err)
	}

	cmd := exec.Command(path, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("watcher stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("watcher stdout: %w", err)
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	cmd.Stderr = &stderrLogWriter{logger: logger.For("watcher_process")}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start watcher process: %w", err)
	}
	logger.Info("watcher process started", map[string]string{
		"path": path,
		"pid":  fmt.Sprint(cmd.Process.Pid),
	})

	waited := make(chan error, 1)
	go func() {
		waited <- cmd.Wait()
	}()

	previous := options.OnClose
	options.OnClose = func() error {
		var firstErr error
		if previous != nil {
			firstErr = previous()
		}
		select {
		case err := <-waited:
			if err != nil && firstErr == nil {
				firstErr = ignoreExitError(err)
			}
		case <-time.After(processStopTimeout):
			_ = cmd.Process.Kill()
			<-waited
		}
		return firstErr
	}
	return NewClient(ctx, NewStdio(stdout, stdin), options), nil
}

func ignoreExitError(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

// stderrLogWriter forwards child process stderr lines to the logger.
type stderrLogWriter struct {
	logger  *logging.Logger
	pending strings.Builder
}

func (w *stderrLogWriter) Write(p []byte) (int, error) {
	w.pending.Write(p)
	text := w.pending.String()
	for {
		index := strings.IndexByte(text, '\n')
		if index < 0 {
			break
		}
		if line := strings.TrimSpace(text[:index]); line != "" {
			w.logger.Debug(line, nil)
		}
		text = text[index+1:]
	}
	w.pending.Reset()
	w.pending.WriteString(text)
	return len(p), nil
}

var _ io.Writer = (*stderrLogWriter)(nil)
