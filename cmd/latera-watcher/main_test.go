package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"latera/internal/event"
	"latera/internal/watcher"
	"latera/internal/watcherrpc"
)

func TestRunServesWatcherOverStdio(t *testing.T) {
	clientRead, serverWrite := io.Pipe()
	serverRead, clientWrite := io.Pipe()

	exited := make(chan int, 1)
	go func() {
		exited <- run(context.Background(), []string{"-log-level", "error"}, serverRead, serverWrite, io.Discard)
	}()

	client := watcherrpc.NewClient(context.Background(), watcherrpc.NewStdio(clientRead, clientWrite), watcherrpc.ClientOptions{})
	signals, cancel := client.Subscribe()
	defer cancel()

	dir := t.TempDir()
	result := client.StartWatching(context.Background(), dir)
	if !result.OK() {
		t.Fatalf("start: %v", result.Err)
	}
	if result.WatchDir != dir {
		t.Fatalf("expected %s, got %s", dir, result.WatchDir)
	}

	if err := os.WriteFile(filepath.Join(dir, "scan.png"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	signal := event.ReceiveWithTimeout(t, signals, 5*time.Second)
	if signal.Kind != watcher.SignalData || signal.Event.FileName != "scan.png" {
		t.Fatalf("unexpected signal %#v", signal)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case code := <-exited:
		if code != 0 {
			t.Fatalf("expected exit 0, got %d", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not exit after the peer disconnected")
	}
}

func TestRunPrintsVersion(t *testing.T) {
	var stderr strings.Builder
	code := run(context.Background(), []string{"-version"}, io.NopCloser(strings.NewReader("")), nopWriteCloser{io.Discard}, &stderr)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.HasPrefix(stderr.String(), "latera-watcher ") {
		t.Fatalf("unexpected output %q", stderr.String())
	}
}

func TestRunRejectsBadLogLevel(t *testing.T) {
	code := run(context.Background(), []string{"-log-level", "loud"}, io.NopCloser(strings.NewReader("")), nopWriteCloser{io.Discard}, io.Discard)
	if code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
}

func TestSplitPatterns(t *testing.T) {
	got := splitPatterns(" **/*.tmp, ,**/*.part ")
	if len(got) != 2 || got[0] != "**/*.tmp" || got[1] != "**/*.part" {
		t.Fatalf("unexpected patterns %v", got)
	}
	if splitPatterns("") != nil {
		t.Fatal("expected nil for empty input")
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
