package watcher

import (
	"context"
	"sync"
	"time"

	"latera/internal/coreerr"
	"latera/internal/event"
)

// FakeBoundary is a scriptable in-memory Boundary for tests.
type FakeBoundary struct {
	mu         sync.Mutex
	watching   bool
	watchDir   string
	startErr   *coreerr.Error
	stopErr    *coreerr.Error
	startCalls int
	stopCalls  int
	overrides  []string
	bus        *event.Bus[Signal]
}

var _ Boundary = (*FakeBoundary)(nil)

func NewFakeBoundary(watchDir string) *FakeBoundary {
	return NewFakeBoundaryWithBuffer(watchDir, 0)
}

// NewFakeBoundaryWithBuffer sizes each subscriber's signal buffer, so tests
// can make the emitting side block on a slow consumer. Zero keeps the bus
// default.
func NewFakeBoundaryWithBuffer(watchDir string, signalBuffer int) *FakeBoundary {
	if watchDir == "" {
		watchDir = "/fake/Desktop/Latera"
	}
	return &FakeBoundary{
		watchDir: watchDir,
		bus: event.NewBus[Signal](context.Background(), event.BusOptions{
			Name:                 "fake_watcher_signals",
			SubscriberBufferSize: signalBuffer,
			Delivery:             event.BlockWhenFull,
		}),
	}
}

// FailNextStart makes the next StartWatching call fail with err.
func (f *FakeBoundary) FailNextStart(err *coreerr.Error) {
	f.mu.Lock()
	f.startErr = err
	f.mu.Unlock()
}

// FailNextStop makes the next StopWatching call return err after stopping.
func (f *FakeBoundary) FailNextStop(err *coreerr.Error) {
	f.mu.Lock()
	f.stopErr = err
	f.mu.Unlock()
}

func (f *FakeBoundary) StartWatching(ctx context.Context, overridePath string) WatchResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	f.overrides = append(f.overrides, overridePath)
	if f.startErr != nil {
		err := f.startErr
		f.startErr = nil
		return WatchFailed(err)
	}
	if f.watching {
		return WatchFailed(coreerr.WatcherAlreadyRunning())
	}
	f.watching = true
	if overridePath != "" {
		return Watched(overridePath)
	}
	return Watched(f.watchDir)
}

func (f *FakeBoundary) StopWatching(ctx context.Context) *coreerr.Error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	f.watching = false
	if f.stopErr != nil {
		err := f.stopErr
		f.stopErr = nil
		return err
	}
	return nil
}

func (f *FakeBoundary) Subscribe() (<-chan Signal, func()) {
	return f.bus.Subscribe()
}

func (f *FakeBoundary) IsWatching() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watching
}

// EmitFile publishes a data signal for fileName inside the watch directory.
func (f *FakeBoundary) EmitFile(fileName string) FileAddedEvent {
	f.mu.Lock()
	dir := f.watchDir
	f.mu.Unlock()
	added := FileAddedEvent{
		FileName:   fileName,
		FullPath:   dir + "/" + fileName,
		OccurredAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	f.bus.Publish(DataSignal(added))
	return added
}

func (f *FakeBoundary) EmitError(err *coreerr.Error) {
	f.bus.Publish(ErrorSignal(err))
}

// EmitDone ends the session on the watcher side and publishes done.
func (f *FakeBoundary) EmitDone() {
	f.mu.Lock()
	f.watching = false
	f.mu.Unlock()
	f.bus.Publish(DoneSignal())
}

// CloseStream closes every subscriber channel without a done signal.
func (f *FakeBoundary) CloseStream() {
	f.bus.Close()
}

func (f *FakeBoundary) SubscriberCount() int {
	return f.bus.SubscriberCount()
}

func (f *FakeBoundary) StartCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startCalls
}

func (f *FakeBoundary) StopCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}

func (f *FakeBoundary) Overrides() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.overrides...)
}
