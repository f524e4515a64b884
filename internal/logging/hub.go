package logging

import (
	"sync"
	"sync/atomic"
)

const defaultSubscriberBuffer = 256

// LogHub fans entries out to live subscribers, each with its own minimum
// level. A subscriber with a full buffer misses the entry and the logging
// caller never waits.
type LogHub struct {
	mu      sync.Mutex
	nextID  uint64
	subs    map[uint64]hubSubscriber
	closed  bool
	dropped atomic.Int64
}

type hubSubscriber struct {
	ch       chan LogEntry
	minLevel Level
}

func NewLogHub() *LogHub {
	return &LogHub{subs: make(map[uint64]hubSubscriber)}
}

// Subscribe delivers entries at or above minLevel. An empty level receives
// everything; buffer <= 0 selects the default.
func (h *LogHub) Subscribe(minLevel Level, buffer int) (<-chan LogEntry, func()) {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	if h == nil {
		return closedEntries(), func() {}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return closedEntries(), func() {}
	}
	h.nextID++
	id := h.nextID
	sub := hubSubscriber{ch: make(chan LogEntry, buffer), minLevel: minLevel}
	h.subs[id] = sub

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub.ch)
			}
		})
	}
}

func (h *LogHub) Broadcast(entry LogEntry) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, sub := range h.subs {
		if !LevelAtLeast(entry.Level, sub.minLevel) {
			continue
		}
		select {
		case sub.ch <- entry:
		default:
			h.dropped.Add(1)
		}
	}
}

// Dropped counts entries missed by full subscribers.
func (h *LogHub) Dropped() int64 {
	if h == nil {
		return 0
	}
	return h.dropped.Load()
}

func (h *LogHub) SubscriberCount() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription. Later subscribers get a closed channel.
func (h *LogHub) Close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
	}
}

func closedEntries() <-chan LogEntry {
	ch := make(chan LogEntry)
	close(ch)
	return ch
}
