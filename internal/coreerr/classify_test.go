package coreerr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestClassifyStructuredMarkers(t *testing.T) {
	cases := []struct {
		input   string
		kind    Kind
		code    string
		message string
	}{
		{input: "WatcherAlreadyRunning: Watcher is already running", kind: KindWatcher, code: CodeWatcherAlreadyRunning, message: "Watcher is already running"},
		{input: "WatcherNotRunning", kind: KindWatcher, code: CodeWatcherNotRunning, message: "Watcher is not running"},
		{input: "InvalidPath: override_path must be absolute: tmp", kind: KindFileSystem, code: CodeInvalidPath, message: "override_path must be absolute: tmp"},
		{input: "DesktopDirNotFound", kind: KindPlatform, code: CodeDesktopDirNotFound, message: "Desktop directory is not available on this OS/user"},
		{input: "Io: Permission denied (os error 13)", kind: KindFileSystem, code: CodeIO, message: "Permission denied (os error 13)"},
		{input: "Notify: inotify limit reached", kind: KindWatcher, code: CodeNotify, message: "inotify limit reached"},
		{input: "LateraError::FileNameMissing(\"/tmp/..\")", kind: KindFileSystem, code: CodeFileNameMissing, message: "\"/tmp/..\""},
		{input: "  Stream: pipe closed  ", kind: KindStream, code: CodeStream, message: "pipe closed"},
	}

	for _, testCase := range cases {
		got := Classify(testCase.input)
		if got.Kind != testCase.kind {
			t.Fatalf("%q: expected kind %s, got %s", testCase.input, testCase.kind, got.Kind)
		}
		if got.Code != testCase.code {
			t.Fatalf("%q: expected code %s, got %s", testCase.input, testCase.code, got.Code)
		}
		if got.Message != testCase.message {
			t.Fatalf("%q: expected message %q, got %q", testCase.input, testCase.message, got.Message)
		}
	}
}

func TestClassifyPhraseRules(t *testing.T) {
	got := Classify("open /home/u/Desktop/Latera: permission denied")
	if got.Kind != KindFileSystem || got.Code != CodePermissionDenied {
		t.Fatalf("unexpected classification: %+v", got)
	}
	if got.Message != "open /home/u/Desktop/Latera: permission denied" {
		t.Fatalf("expected raw text as message, got %q", got.Message)
	}
}

func TestClassifyIsTotal(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"something odd happened",
		"UnknownVariant: with a message",
		"::::",
		"(((",
		"\x00\xff",
		"Watcher is exploding\nat frame 1\nat frame 2",
	}
	for _, input := range inputs {
		got := Classify(input)
		if got == nil {
			t.Fatalf("%q: expected error value", input)
		}
		if got.Code == "" {
			t.Fatalf("%q: expected non-empty code", input)
		}
		if got.Message == "" {
			t.Fatalf("%q: expected non-empty message", input)
		}
	}

	unknown := Classify("something odd happened")
	if unknown.Kind != KindPlatform || unknown.Code != CodeUnknown {
		t.Fatalf("expected generic fallback, got %+v", unknown)
	}
	if unknown.Message != "something odd happened" {
		t.Fatalf("expected raw text message, got %q", unknown.Message)
	}
}

func TestClassifyKeepsTrace(t *testing.T) {
	got := Classify("Io: disk gone\n  at watcher.rs:42")
	if got.Code != CodeIO {
		t.Fatalf("expected io code, got %s", got.Code)
	}
	if got.Trace != "at watcher.rs:42" {
		t.Fatalf("expected trace, got %q", got.Trace)
	}
}

func TestFromPassesThroughCoreErrors(t *testing.T) {
	original := WatcherAlreadyRunning()
	wrapped := fmt.Errorf("start: %w", original)

	if got := From(wrapped); got != original {
		t.Fatalf("expected original error, got %v", got)
	}
	if From(nil) != nil {
		t.Fatal("expected nil for nil error")
	}
}

func TestFromKeepsCause(t *testing.T) {
	cause := errors.New("WatcherNotRunning: nothing to stop")
	got := From(cause)
	if got.Code != CodeWatcherNotRunning {
		t.Fatalf("expected not running code, got %s", got.Code)
	}
	if !errors.Is(got, cause) {
		t.Fatal("expected cause to be reachable through errors.Is")
	}
}

func TestFromContextErrors(t *testing.T) {
	got := From(context.Canceled)
	if got.Kind != KindStream || got.Code != CodeCancelled {
		t.Fatalf("unexpected classification: %+v", got)
	}
}

func TestFromStreamErrorFallsBackToStream(t *testing.T) {
	got := FromStreamError(errors.New("socket hang up"))
	if got.Kind != KindStream || got.Code != CodeStream {
		t.Fatalf("expected stream error, got %+v", got)
	}

	typed := FromStreamError(errors.New("Notify: queue overflow"))
	if typed.Kind != KindWatcher || typed.Code != CodeNotify {
		t.Fatalf("expected notify classification, got %+v", typed)
	}
}

func TestLowercasePackagePrefixesAreNotMarkers(t *testing.T) {
	inputs := []error{
		io.ErrClosedPipe,
		errors.New("config: missing key"),
		errors.New("notify: queue full"),
		errors.New("stream: reset"),
	}
	for _, input := range inputs {
		got := FromStreamError(input)
		if got.Kind != KindStream || got.Code != CodeStream {
			t.Fatalf("%q: expected stream error, got %s/%s", input, got.Kind, got.Code)
		}
		if got.Message != input.Error() {
			t.Fatalf("%q: expected raw text as message, got %q", input, got.Message)
		}
	}
}

func TestErrorsIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", InvalidPath("empty override_path"))
	if !errors.Is(err, KindFileSystem) {
		t.Fatal("expected kind match")
	}
	if errors.Is(err, KindWatcher) {
		t.Fatal("did not expect watcher kind match")
	}
	if !errors.Is(err, InvalidPath("other")) {
		t.Fatal("expected kind+code match")
	}
}

func TestWrapNormalizesInput(t *testing.T) {
	got := Wrap(Kind("bogus"), "", "", errors.New("boom"))
	if got.Kind != KindPlatform {
		t.Fatalf("expected platform kind, got %s", got.Kind)
	}
	if got.Code != CodeUnknown {
		t.Fatalf("expected unknown code, got %s", got.Code)
	}
	if got.Message != "boom" {
		t.Fatalf("expected cause message, got %q", got.Message)
	}
}

func TestMarkerRoundTripsThroughClassify(t *testing.T) {
	cases := []*Error{
		WatcherAlreadyRunning(),
		InvalidPath("override_path must be absolute: %s", "inbox"),
		IO(errors.New("disk full")),
		Stream("connection lost", nil),
		New(KindFileSystem, CodePermissionDenied, "open /x: permission denied"),
	}
	for _, original := range cases {
		marker := original.Marker()
		got := Classify(marker)
		if got.Kind != original.Kind || got.Code != original.Code {
			t.Fatalf("marker %q: expected %s/%s, got %s/%s", marker, original.Kind, original.Code, got.Kind, got.Code)
		}
	}
}
