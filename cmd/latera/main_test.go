package main

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"latera/internal/coordinator"
)

func noEnv(string) (string, bool) { return "", false }

func TestRunServesUntilSignalled(t *testing.T) {
	watchDir := t.TempDir()
	signals := make(chan os.Signal, 1)
	ready := make(chan string, 1)
	exited := make(chan int, 1)

	go func() {
		exited <- run(runOptions{
			Args:      []string{"-addr", "127.0.0.1:0", "-watch-dir", watchDir, "-log-level", "error"},
			LookupEnv: noEnv,
			Signals:   signals,
			Ready:     func(addr string) { ready <- addr },
		})
	}()

	var addr string
	select {
	case addr = <-ready:
	case code := <-exited:
		t.Fatalf("run exited early with %d", code)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not become ready")
	}

	resp, err := http.Get("http://" + addr + "/api/status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var snapshot coordinator.Snapshot
	err = json.NewDecoder(resp.Body).Decode(&snapshot)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snapshot.State != coordinator.StateRunning || snapshot.WatchDir != watchDir {
		t.Fatalf("unexpected snapshot %#v", snapshot)
	}

	signals <- os.Interrupt
	select {
	case code := <-exited:
		if code != exitOK {
			t.Fatalf("expected clean exit, got %d", code)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run did not exit after the signal")
	}
}

func TestRunNoStartLeavesCoordinatorIdle(t *testing.T) {
	signals := make(chan os.Signal, 1)
	ready := make(chan string, 1)
	exited := make(chan int, 1)

	go func() {
		exited <- run(runOptions{
			Args:      []string{"-addr", "127.0.0.1:0", "-watch-dir", t.TempDir(), "-no-start", "-log-level", "error"},
			LookupEnv: noEnv,
			Signals:   signals,
			Ready:     func(addr string) { ready <- addr },
		})
	}()

	addr := <-ready
	resp, err := http.Get("http://" + addr + "/api/status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var snapshot coordinator.Snapshot
	_ = json.NewDecoder(resp.Body).Decode(&snapshot)
	resp.Body.Close()
	if snapshot.State != coordinator.StateIdle {
		t.Fatalf("expected idle, got %s", snapshot.State)
	}

	signals <- os.Interrupt
	if code := <-exited; code != exitOK {
		t.Fatalf("expected clean exit, got %d", code)
	}
}

func TestRunPrintsVersion(t *testing.T) {
	var stdout strings.Builder
	code := run(runOptions{Args: []string{"-v"}, LookupEnv: noEnv, Stdout: &stdout})
	if code != exitOK {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.HasPrefix(stdout.String(), "latera ") {
		t.Fatalf("unexpected output %q", stdout.String())
	}
}

func TestRunRejectsInvalidSettings(t *testing.T) {
	var stderr strings.Builder
	code := run(runOptions{Args: []string{"-throttle", "sometimes"}, LookupEnv: noEnv, Stderr: &stderr})
	if code != exitUsage {
		t.Fatalf("expected usage exit, got %d", code)
	}
	if !strings.Contains(stderr.String(), "invalid settings") {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
}

func TestRunRejectsMissingConfigFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "latera.toml")
	code := run(runOptions{Args: []string{"-config", missing}, LookupEnv: noEnv, Stderr: io.Discard})
	if code != exitUsage {
		t.Fatalf("expected usage exit, got %d", code)
	}
}

func TestRunReadsEnvironment(t *testing.T) {
	env := map[string]string{"LATERA_LOG_LEVEL": "chatty"}
	var stderr strings.Builder
	code := run(runOptions{
		LookupEnv: func(name string) (string, bool) {
			value, ok := env[name]
			return value, ok
		},
		Stderr: &stderr,
	})
	if code != exitUsage || !strings.Contains(stderr.String(), "log.level") {
		t.Fatalf("expected log level rejection, got %d %q", code, stderr.String())
	}
}
