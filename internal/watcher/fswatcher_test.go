package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fsnotify/fsnotify"

	"latera/internal/coreerr"
	"latera/internal/event"
	"latera/internal/metrics"
)

const signalTimeout = 3 * time.Second

func newTestWatcher(t *testing.T, options Options) *FSWatcher {
	t.Helper()
	if options.Registry == nil {
		options.Registry = &metrics.Registry{}
	}
	watcher := NewFSWatcher(options)
	t.Cleanup(func() {
		_ = watcher.Close()
	})
	return watcher
}

func startIn(t *testing.T, watcher *FSWatcher, dir string) {
	t.Helper()
	result := watcher.StartWatching(context.Background(), dir)
	if !result.OK() {
		t.Fatalf("start watching: %v", result.Err)
	}
	if result.WatchDir != dir {
		t.Fatalf("expected watch dir %q, got %q", dir, result.WatchDir)
	}
}

func TestFSWatcherReportsCreatedFile(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 3, 4, 5, 6, 7, 8_900_000, time.UTC))
	watcher := newTestWatcher(t, Options{Clock: mock})
	dir := t.TempDir()

	signals, cancel := watcher.Subscribe()
	defer cancel()
	startIn(t, watcher, dir)
	if !watcher.IsWatching() {
		t.Fatal("expected watcher to be running")
	}

	path := filepath.Join(dir, "report.pdf")
	if err := os.WriteFile(path, []byte("pdf"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	signal := event.ReceiveWithTimeout(t, signals, signalTimeout)
	if signal.Kind != SignalData {
		t.Fatalf("expected data signal, got %s (%v)", signal.Kind, signal.Err)
	}
	if signal.Event.FileName != "report.pdf" || signal.Event.FullPath != path {
		t.Fatalf("unexpected event %#v", signal.Event)
	}
	expected := time.Date(2026, 3, 4, 5, 6, 7, 8_000_000, time.UTC)
	if !signal.Event.OccurredAt.Equal(expected) {
		t.Fatalf("expected millisecond timestamp %s, got %s", expected, signal.Event.OccurredAt)
	}
}

func TestFSWatcherSkipsDirectoriesHiddenAndIgnoredFiles(t *testing.T) {
	watcher := newTestWatcher(t, Options{})
	dir := t.TempDir()

	signals, cancel := watcher.Subscribe()
	defer cancel()
	startIn(t, watcher, dir)

	if err := os.Mkdir(filepath.Join(dir, "folder"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{".hidden", "movie.crdownload", "draft.tmp", "~$budget.xlsx"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatalf("write notes: %v", err)
	}

	signal := event.ReceiveWithTimeout(t, signals, signalTimeout)
	if signal.Kind != SignalData || signal.Event.FileName != "notes.txt" {
		t.Fatalf("expected notes.txt first, got %#v", signal)
	}
	event.ExpectNoEvent(t, signals, 100*time.Millisecond)
}

func TestFSWatcherCoalescesDuplicateCreates(t *testing.T) {
	mock := clock.NewMock()
	watcher := newTestWatcher(t, Options{Clock: mock})
	dir := t.TempDir()

	signals, cancel := watcher.Subscribe()
	defer cancel()
	startIn(t, watcher, dir)

	path := filepath.Join(dir, "scan.png")
	if err := os.WriteFile(path, []byte("1"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	first := event.ReceiveWithTimeout(t, signals, signalTimeout)
	if first.Event.FileName != "scan.png" {
		t.Fatalf("unexpected first signal %#v", first)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := os.WriteFile(path, []byte("2"), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	event.ExpectNoEvent(t, signals, 150*time.Millisecond)

	mock.Add(time.Second)
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := os.WriteFile(path, []byte("3"), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	again := event.ReceiveWithTimeout(t, signals, signalTimeout)
	if again.Event.FileName != "scan.png" {
		t.Fatalf("expected scan.png after window, got %#v", again)
	}
}

func TestFSWatcherRejectsSecondStart(t *testing.T) {
	watcher := newTestWatcher(t, Options{})
	dir := t.TempDir()
	startIn(t, watcher, dir)

	result := watcher.StartWatching(context.Background(), dir)
	if result.OK() {
		t.Fatal("expected second start to fail")
	}
	if result.Err.Kind != coreerr.KindWatcher || result.Err.Code != coreerr.CodeWatcherAlreadyRunning {
		t.Fatalf("unexpected error %v", result.Err)
	}
	if !watcher.IsWatching() {
		t.Fatal("expected first session to keep running")
	}
}

func TestFSWatcherRejectsInvalidOverrides(t *testing.T) {
	watcher := newTestWatcher(t, Options{})

	for _, override := range []string{"relative/inbox", "   "} {
		result := watcher.StartWatching(context.Background(), override)
		if result.OK() {
			t.Fatalf("expected %q to be rejected", override)
		}
		if result.Err.Kind != coreerr.KindFileSystem || result.Err.Code != coreerr.CodeInvalidPath {
			t.Fatalf("override %q: unexpected error %v", override, result.Err)
		}
	}
	if watcher.IsWatching() {
		t.Fatal("expected watcher to stay idle")
	}
}

func TestFSWatcherCreatesMissingOverride(t *testing.T) {
	watcher := newTestWatcher(t, Options{})
	dir := filepath.Join(t.TempDir(), "nested", "inbox")

	startIn(t, watcher, dir)

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("expected override directory to exist: %v", err)
	}
}

func TestFSWatcherDefaultDirectory(t *testing.T) {
	watcher := newTestWatcher(t, Options{})
	desktop := t.TempDir()
	watcher.desktopDir = func() (string, error) {
		return desktop, nil
	}

	result := watcher.StartWatching(context.Background(), "")
	if !result.OK() {
		t.Fatalf("start: %v", result.Err)
	}
	expected := filepath.Join(desktop, DefaultFolderName)
	if result.WatchDir != expected || watcher.WatchDir() != expected {
		t.Fatalf("expected %q, got %q", expected, result.WatchDir)
	}
	if _, err := os.Stat(expected); err != nil {
		t.Fatalf("expected default directory to be created: %v", err)
	}
}

func TestFSWatcherMissingDesktop(t *testing.T) {
	watcher := newTestWatcher(t, Options{})
	watcher.desktopDir = func() (string, error) {
		return "", rawf(variantDesktopNotFound, "")
	}

	result := watcher.StartWatching(context.Background(), "")
	if result.OK() {
		t.Fatal("expected start to fail")
	}
	if result.Err.Kind != coreerr.KindPlatform || result.Err.Code != coreerr.CodeDesktopDirNotFound {
		t.Fatalf("unexpected error %v", result.Err)
	}
}

func TestFSWatcherStopIsIdempotentAndSilencesSession(t *testing.T) {
	watcher := newTestWatcher(t, Options{})
	dir := t.TempDir()

	signals, cancel := watcher.Subscribe()
	defer cancel()

	if err := watcher.StopWatching(context.Background()); err != nil {
		t.Fatalf("stop before start: %v", err)
	}
	startIn(t, watcher, dir)
	if err := watcher.StopWatching(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := watcher.StopWatching(context.Background()); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if watcher.IsWatching() {
		t.Fatal("expected watcher to be stopped")
	}

	if err := os.WriteFile(filepath.Join(dir, "late.txt"), []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	event.ExpectNoEvent(t, signals, 200*time.Millisecond)

	startIn(t, watcher, dir)
	if err := os.WriteFile(filepath.Join(dir, "fresh.txt"), []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	signal := event.ReceiveWithTimeout(t, signals, signalTimeout)
	if signal.Event.FileName != "fresh.txt" {
		t.Fatalf("expected fresh.txt after restart, got %#v", signal)
	}
}

func TestFSWatcherEndsSessionWhenRestartsAreExhausted(t *testing.T) {
	watcher := newTestWatcher(t, Options{})
	dir := t.TempDir()

	signals, cancel := watcher.Subscribe()
	defer cancel()
	startIn(t, watcher, dir)

	watcher.restartBase = time.Millisecond
	watcher.newSource = func() (*fsnotify.Watcher, error) {
		return nil, errors.New("too many open files")
	}
	watcher.mu.Lock()
	current := watcher.session
	watcher.mu.Unlock()
	current.errors <- errors.New("event queue overflow")

	first := event.ReceiveWithTimeout(t, signals, signalTimeout)
	if first.Kind != SignalError || first.Err.Code != coreerr.CodeNotify {
		t.Fatalf("expected notify error signal, got %#v", first)
	}
	done := event.ReceiveWithTimeout(t, signals, signalTimeout)
	if done.Kind != SignalDone {
		t.Fatalf("expected done signal, got %#v", done)
	}
	if watcher.IsWatching() {
		t.Fatal("expected watcher to stop after exhausting restarts")
	}

	result := watcher.StartWatching(context.Background(), dir)
	if result.OK() {
		t.Fatal("expected start to fail while sources cannot be created")
	}
}

func TestFSWatcherRestartsAfterUpstreamError(t *testing.T) {
	registry := &metrics.Registry{}
	watcher := newTestWatcher(t, Options{Registry: registry})
	watcher.restartBase = time.Millisecond
	dir := t.TempDir()

	signals, cancel := watcher.Subscribe()
	defer cancel()
	startIn(t, watcher, dir)

	watcher.mu.Lock()
	current := watcher.session
	watcher.mu.Unlock()
	current.errors <- errors.New("event queue overflow")

	signal := event.ReceiveWithTimeout(t, signals, signalTimeout)
	if signal.Kind != SignalError {
		t.Fatalf("expected error signal, got %#v", signal)
	}

	deadline := time.Now().Add(signalTimeout)
	for registry.Snapshot().WatcherRestarts == 0 {
		if time.Now().After(deadline) {
			t.Fatal("watcher did not restart")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !watcher.IsWatching() {
		t.Fatal("expected watcher to keep running after restart")
	}

	if err := os.WriteFile(filepath.Join(dir, "after.txt"), []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	added := event.ReceiveWithTimeout(t, signals, signalTimeout)
	if added.Kind != SignalData || added.Event.FileName != "after.txt" {
		t.Fatalf("expected after.txt, got %#v", added)
	}
}

func TestFSWatcherCloseClosesSubscribers(t *testing.T) {
	watcher := NewFSWatcher(Options{Registry: &metrics.Registry{}})
	signals, _ := watcher.Subscribe()
	startIn(t, watcher, t.TempDir())

	if err := watcher.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	event.ExpectClosed(t, signals, time.Second)

	result := watcher.StartWatching(context.Background(), t.TempDir())
	if result.OK() {
		t.Fatal("expected start after close to fail")
	}
}

func TestTranslateKeepsCauseForUnstructuredErrors(t *testing.T) {
	structured := translate(rawf(variantIO, "disk full"))
	if structured.Kind != coreerr.KindFileSystem || structured.Code != coreerr.CodeIO || structured.Message != "disk full" {
		t.Fatalf("unexpected structured translation %#v", structured)
	}
	if structured.Cause != nil {
		t.Fatal("expected no cause for structured errors")
	}

	cause := errors.New("open /root/x: permission denied")
	plain := translate(cause)
	if plain.Code != coreerr.CodePermissionDenied || !errors.Is(plain, cause) {
		t.Fatalf("unexpected plain translation %#v", plain)
	}
}
