package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"latera/internal/config"
	"latera/internal/coordinator"
	"latera/internal/coreerr"
	"latera/internal/event"
	"latera/internal/logging"
	"latera/internal/metrics"
	"latera/internal/notify"
	"latera/internal/watcher"
)

func noEnv(string) (string, bool) { return "", false }

func loadSettings(t *testing.T, overrides map[string]any) config.Settings {
	t.Helper()
	settings, err := config.Load("", noEnv, overrides)
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	return settings
}

func testLogger() *logging.Logger {
	return logging.NewLoggerWithOutput(logging.NewLogBuffer(100), logging.LevelDebug, io.Discard)
}

func TestBuildWiresCoordinatorToSinkAndAPI(t *testing.T) {
	fake := watcher.NewFakeBoundary("/watch/inbox")
	sink := notify.NewMemorySink()
	registry := &metrics.Registry{}

	services, err := Build(context.Background(), BuildOptions{
		Settings: loadSettings(t, nil),
		Logger:   testLogger(),
		Registry: registry,
		Watcher:  fake,
		Sink:     sink,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(func() { _ = services.Close(context.Background()) })

	updates, cancel := services.Coordinator.Subscribe()
	defer cancel()

	result, err := services.Coordinator.Start(context.Background())
	if err != nil || !result.OK() {
		t.Fatalf("start: %v %v", err, result.Err)
	}
	fake.EmitFile("report.pdf")

	update := event.ReceiveWithTimeout(t, updates, 2*time.Second)
	if update.Event == nil || update.Event.FileName != "report.pdf" {
		t.Fatalf("unexpected update %#v", update)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(sink.Events()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	events := sink.Events()
	if len(events) != 1 || events[0].Message != "New file: report.pdf" {
		t.Fatalf("unexpected notifications %#v", events)
	}
	if events[0].Title != "Latera" {
		t.Fatalf("unexpected title %q", events[0].Title)
	}

	server := httptest.NewServer(services.Handler)
	defer server.Close()
	resp, err := http.Get(server.URL + "/api/status")
	if err != nil {
		t.Fatalf("status request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var snapshot coordinator.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if snapshot.State != coordinator.StateRunning || snapshot.WatchDir != "/watch/inbox" {
		t.Fatalf("unexpected snapshot %#v", snapshot)
	}
}

func TestBuildPassesConfiguredWatchDir(t *testing.T) {
	fake := watcher.NewFakeBoundary("")
	services, err := Build(context.Background(), BuildOptions{
		Settings: loadSettings(t, map[string]any{config.KeyWatcherDir: "/srv/drop"}),
		Logger:   testLogger(),
		Registry: &metrics.Registry{},
		Watcher:  fake,
		Sink:     notify.NewMemorySink(),
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer services.Close(context.Background())

	result, _ := services.Coordinator.Start(context.Background())
	if result.WatchDir != "/srv/drop" {
		t.Fatalf("expected configured dir, got %q", result.WatchDir)
	}
}

func TestBuildRejectsInvalidSettings(t *testing.T) {
	settings := loadSettings(t, map[string]any{config.KeyNotifyThrottle: "sometimes"})
	_, err := Build(context.Background(), BuildOptions{
		Settings: settings,
		Watcher:  watcher.NewFakeBoundary(""),
	})
	var buildErr BuildError
	if !errors.As(err, &buildErr) {
		t.Fatalf("expected BuildError, got %v", err)
	}
	if buildErr.Stage != StageValidate {
		t.Fatalf("expected validate stage, got %q", buildErr.Stage)
	}
	if !errors.Is(err, coreerr.KindConfig) {
		t.Fatalf("expected config kind, got %v", err)
	}
}

func TestBuildReportsWatcherStage(t *testing.T) {
	settings := loadSettings(t, map[string]any{config.KeyWatcherProcess: "latera-watcher-does-not-exist"})
	_, err := Build(context.Background(), BuildOptions{
		Settings: settings,
		Logger:   testLogger(),
		Sink:     notify.NewMemorySink(),
	})
	var buildErr BuildError
	if !errors.As(err, &buildErr) || buildErr.Stage != StageWatcher {
		t.Fatalf("expected watcher stage error, got %v", err)
	}
}

func TestCloseDisposesCoordinator(t *testing.T) {
	services, err := Build(context.Background(), BuildOptions{
		Settings: loadSettings(t, nil),
		Logger:   testLogger(),
		Watcher:  watcher.NewFakeBoundary(""),
		Sink:     notify.NewMemorySink(),
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := services.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !services.Coordinator.IsDisposed() {
		t.Fatal("expected coordinator disposed")
	}
	if _, err := services.Coordinator.Start(context.Background()); !errors.Is(err, coordinator.ErrDisposed) {
		t.Fatalf("expected ErrDisposed, got %v", err)
	}
}

func TestNewSinkSelectsBySetting(t *testing.T) {
	cases := []struct {
		sink string
		want string
	}{
		{sink: config.SinkLog, want: "*notify.LogSink"},
		{sink: config.SinkRedis, want: "*notify.RedisSink"},
		{sink: config.SinkCommand, want: "*notify.CommandSink"},
	}
	for _, tc := range cases {
		settings := loadSettings(t, map[string]any{config.KeyNotifySink: tc.sink})
		sink, err := NewSink(settings, nil)
		if err != nil {
			t.Fatalf("%s: %v", tc.sink, err)
		}
		if got := fmt.Sprintf("%T", sink); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.sink, tc.want, got)
		}
		if closer, ok := sink.(io.Closer); ok {
			_ = closer.Close()
		}
	}

	settings := loadSettings(t, nil)
	settings.Notify.Sink = "pager"
	if _, err := NewSink(settings, nil); err == nil {
		t.Fatal("expected unknown sink error")
	}
}

func TestNewWatcherDefaultsToFSWatcher(t *testing.T) {
	boundary, err := NewWatcher(context.Background(), loadSettings(t, nil), nil, &metrics.Registry{}, nil)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	fsWatcher, ok := boundary.(*watcher.FSWatcher)
	if !ok {
		t.Fatalf("expected FSWatcher, got %T", boundary)
	}
	_ = fsWatcher.Close()

	_, err = NewWatcher(context.Background(), loadSettings(t, map[string]any{config.KeyWatcherProcess: "/nonexistent/latera-watcher"}), nil, nil, nil)
	if err == nil {
		t.Fatal("expected spawn error for a missing binary")
	}
}

func TestWatcherArgsCarrySettings(t *testing.T) {
	settings := loadSettings(t, map[string]any{
		config.KeyWatcherIgnore:  []string{"**/*.bak", "*.tmp"},
		config.KeyWatcherHidden:  true,
		config.KeyWatcherDedupMS: 900,
		config.KeyLogLevel:       "debug",
	})
	got := strings.Join(WatcherArgs(settings), " ")
	want := "-log-level=debug -watch-hidden=true -dedup-window-ms=900 -ignore=**/*.bak,*.tmp"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	defaults := strings.Join(WatcherArgs(loadSettings(t, nil)), " ")
	if defaults != "-log-level=info -watch-hidden=false -dedup-window-ms=300" {
		t.Fatalf("unexpected default args %q", defaults)
	}
}

func TestNewWatcherPassesSettingsToProcess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a shell script watcher")
	}
	dir := t.TempDir()
	argvPath := filepath.Join(dir, "argv")
	script := filepath.Join(dir, "fake-watcher")
	body := "#!/bin/sh\nprintf '%s\\n' \"$@\" > " + argvPath + ".tmp\nmv " + argvPath + ".tmp " + argvPath + "\ncat > /dev/null\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	settings := loadSettings(t, map[string]any{
		config.KeyWatcherProcess: script,
		config.KeyWatcherIgnore:  []string{"**/*.bak"},
		config.KeyWatcherHidden:  true,
		config.KeyWatcherDedupMS: 900,
	})
	boundary, err := NewWatcher(context.Background(), settings, nil, &metrics.Registry{}, nil)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	t.Cleanup(func() {
		if closer, ok := boundary.(io.Closer); ok {
			_ = closer.Close()
		}
	})

	var recorded []byte
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if recorded, err = os.ReadFile(argvPath); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("watcher process never recorded its argv: %v", err)
	}
	argv := strings.Fields(string(recorded))
	for _, want := range []string{"-ignore=**/*.bak", "-watch-hidden=true", "-dedup-window-ms=900", "-log-level=info"} {
		found := false
		for _, arg := range argv {
			if arg == want {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected %q in watcher argv %q", want, argv)
		}
	}
}
