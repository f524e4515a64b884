package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"latera/internal/coreerr"
)

func TestSinkChannelSharesConcurrentInit(t *testing.T) {
	sink := NewMemorySink()
	sink.SetInitDelay(50 * time.Millisecond)
	channel := NewSinkChannel(sink, ChannelOptions{})

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- channel.ShowFileAdded(context.Background(), "a.txt")
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("show: %v", err)
		}
	}
	if sink.InitCalls() != 1 {
		t.Fatalf("expected one init call, got %d", sink.InitCalls())
	}
	if len(sink.Events()) != 10 {
		t.Fatalf("expected 10 notifications, got %d", len(sink.Events()))
	}
}

func TestSinkChannelRetriesFailedInit(t *testing.T) {
	sink := NewMemorySink()
	sink.SetInitError(errors.New("notification daemon unavailable"))
	channel := NewSinkChannel(sink, ChannelOptions{})

	err := channel.ShowFileAdded(context.Background(), "a.txt")
	if !errors.Is(err, coreerr.KindInitialization) {
		t.Fatalf("expected initialization error, got %v", err)
	}
	if channel.Ready() {
		t.Fatal("expected failed init not to be cached")
	}

	sink.SetInitError(nil)
	if err := channel.ShowFileAdded(context.Background(), "b.txt"); err != nil {
		t.Fatalf("show after recovery: %v", err)
	}
	if err := channel.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if channel.InitAttempts() != 2 || sink.InitCalls() != 2 {
		t.Fatalf("expected 2 attempts, got %d/%d", channel.InitAttempts(), sink.InitCalls())
	}

	events := sink.Events()
	if len(events) != 1 || events[0].Message != "New file: b.txt" || events[0].Fields["file_name"] != "b.txt" {
		t.Fatalf("unexpected events %#v", events)
	}
	if events[0].Type != TypeFileAdded || events[0].Title != "Latera" {
		t.Fatalf("unexpected event header %#v", events[0])
	}
}

func TestSinkChannelWrapsEmitFailure(t *testing.T) {
	sink := NewMemorySink()
	sink.SetError(errors.New("toast rejected"))
	channel := NewSinkChannel(sink, ChannelOptions{Title: "Inbox"})

	err := channel.ShowFileAdded(context.Background(), "a.txt")
	var coreErr *coreerr.Error
	if !errors.As(err, &coreErr) || coreErr.Kind != coreerr.KindNotification {
		t.Fatalf("expected notification error, got %v", err)
	}
	if !channel.Ready() {
		t.Fatal("expected init to succeed even though emit failed")
	}
}
