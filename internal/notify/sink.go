package notify

import (
	"context"
	"sync"
	"time"
)

// Event is one user-visible notification.
type Event struct {
	Type       string            `json:"type"`
	Title      string            `json:"title"`
	Message    string            `json:"message"`
	Fields     map[string]string `json:"fields,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Sink delivers notifications somewhere a user or another process can see them.
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

// Initializer is implemented by sinks that need one-time setup before the
// first Emit.
type Initializer interface {
	Init(ctx context.Context) error
}

type MemorySink struct {
	mu        sync.Mutex
	events    []Event
	err       error
	initErr   error
	initCalls int
	initDelay time.Duration
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (sink *MemorySink) Init(ctx context.Context) error {
	if sink == nil {
		return nil
	}
	sink.mu.Lock()
	sink.initCalls++
	err := sink.initErr
	delay := sink.initDelay
	sink.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (sink *MemorySink) Emit(_ context.Context, event Event) error {
	if sink == nil {
		return nil
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.err != nil {
		return sink.err
	}
	sink.events = append(sink.events, event)
	return nil
}

func (sink *MemorySink) Events() []Event {
	if sink == nil {
		return nil
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	events := make([]Event, len(sink.events))
	copy(events, sink.events)
	return events
}

func (sink *MemorySink) SetError(err error) {
	if sink == nil {
		return
	}
	sink.mu.Lock()
	sink.err = err
	sink.mu.Unlock()
}

// SetInitError makes Init fail with err until it is cleared.
func (sink *MemorySink) SetInitError(err error) {
	if sink == nil {
		return
	}
	sink.mu.Lock()
	sink.initErr = err
	sink.mu.Unlock()
}

// SetInitDelay makes Init wait before returning.
func (sink *MemorySink) SetInitDelay(delay time.Duration) {
	if sink == nil {
		return
	}
	sink.mu.Lock()
	sink.initDelay = delay
	sink.mu.Unlock()
}

func (sink *MemorySink) InitCalls() int {
	if sink == nil {
		return 0
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	return sink.initCalls
}
