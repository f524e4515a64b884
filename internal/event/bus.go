package event

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"latera/internal/logging"
	"latera/internal/metrics"
)

const defaultSubscriberBufferSize = 128

// Delivery decides what Publish does when a subscriber's buffer is full.
type Delivery int

const (
	// DropWhenFull skips the subscriber and counts a drop.
	DropWhenFull Delivery = iota
	// BlockWhenFull waits for room. With a WriteTimeout the subscriber is
	// evicted, its channel closed, once the timeout expires.
	BlockWhenFull
)

type BusOptions struct {
	Name                 string
	SubscriberBufferSize int
	Delivery             Delivery
	WriteTimeout         time.Duration
	Registry             *metrics.Registry
	Logger               *logging.Logger
}

// Bus is a multicast stream without replay. Every subscriber owns a buffered
// channel and a cancel func; Close closes all of them.
type Bus[T any] struct {
	name     string
	options  BusOptions
	registry *metrics.Registry
	logger   *logging.Logger

	// publishMu serializes publishers so every subscriber observes one order.
	publishMu sync.Mutex

	mu          sync.Mutex
	subscribers map[uint64]*subscriber[T]
	nextID      uint64
	closed      bool

	published atomic.Int64
	dropped   atomic.Int64
}

// subscriber closes ch only while holding sendMu, after done is closed, so
// no send can be in flight when the channel goes away.
type subscriber[T any] struct {
	id     uint64
	ch     chan T
	accept func(T) bool

	done     chan struct{}
	doneOnce sync.Once
	sendMu   sync.Mutex
	closed   bool
}

func newSubscriber[T any](size int, accept func(T) bool) *subscriber[T] {
	return &subscriber[T]{
		ch:     make(chan T, size),
		accept: accept,
		done:   make(chan struct{}),
	}
}

// shutdown releases a blocked send and then closes ch. Safe to call twice.
func (s *subscriber[T]) shutdown() {
	s.doneOnce.Do(func() { close(s.done) })
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// NewBus returns an open bus. Cancelling ctx closes it.
func NewBus[T any](ctx context.Context, opts BusOptions) *Bus[T] {
	if opts.SubscriberBufferSize <= 0 {
		opts.SubscriberBufferSize = defaultSubscriberBufferSize
	}
	name := opts.Name
	if name == "" {
		name = "event_bus"
	}
	registry := opts.Registry
	if registry == nil {
		registry = metrics.Default
	}
	bus := &Bus[T]{
		name:        name,
		options:     opts,
		registry:    registry,
		logger:      opts.Logger.For("event_bus"),
		subscribers: make(map[uint64]*subscriber[T]),
	}
	if ctx != nil && ctx.Done() != nil {
		context.AfterFunc(ctx, bus.Close)
	}
	return bus
}

func (b *Bus[T]) Subscribe() (<-chan T, func()) {
	return b.SubscribeFiltered(nil)
}

// SubscribeFiltered registers a subscriber that only receives values accept
// returns true for. A panicking accept func evicts its subscriber.
func (b *Bus[T]) SubscribeFiltered(accept func(T) bool) (<-chan T, func()) {
	if b == nil {
		return closedChannel[T](), func() {}
	}
	sub := newSubscriber(b.options.SubscriberBufferSize, accept)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.shutdown()
		return sub.ch, func() {}
	}
	b.nextID++
	sub.id = b.nextID
	b.subscribers[sub.id] = sub
	b.reportSubscribersLocked()
	b.mu.Unlock()

	return sub.ch, func() { b.evict(sub.id) }
}

// SubscribeTypes listens only to values implementing Event whose Type is
// one of types. With no non-empty type the returned channel is closed.
func (b *Bus[T]) SubscribeTypes(types ...string) (<-chan T, func()) {
	wanted := make(map[string]bool, len(types))
	for _, name := range types {
		if name != "" {
			wanted[name] = true
		}
	}
	if len(wanted) == 0 {
		return closedChannel[T](), func() {}
	}
	return b.SubscribeFiltered(func(value T) bool {
		typed, ok := any(value).(Event)
		return ok && wanted[typed.Type()]
	})
}

// Publish delivers value to every current subscriber. Nil values are ignored.
func (b *Bus[T]) Publish(value T) {
	if b == nil || isNil(value) {
		return
	}
	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	recipients := b.snapshot()
	if recipients == nil {
		return
	}

	eventType := typeOf(value)
	b.published.Add(1)
	b.registry.IncEventPublished(b.name, eventType)
	b.logger.Debug("event published", map[string]string{"bus": b.name, "type": eventType})

	for _, sub := range recipients {
		if !b.accepts(sub, value) {
			continue
		}
		delivered, expired := b.deliver(sub, value)
		if expired {
			b.logger.Warn("subscriber evicted after write timeout", map[string]string{
				"bus":     b.name,
				"timeout": b.options.WriteTimeout.String(),
			})
			b.evict(sub.id)
		}
		if !delivered {
			b.dropped.Add(1)
			b.registry.IncEventDropped(b.name, eventType)
		}
	}
}

func (b *Bus[T]) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subscribers := b.subscribers
	b.subscribers = make(map[uint64]*subscriber[T])
	b.reportSubscribersLocked()
	b.mu.Unlock()

	for _, sub := range subscribers {
		sub.shutdown()
	}
}

func (b *Bus[T]) Closed() bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Bus[T]) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Stats returns the published and dropped totals for this bus.
func (b *Bus[T]) Stats() (published, dropped int64) {
	if b == nil {
		return 0, 0
	}
	return b.published.Load(), b.dropped.Load()
}

// snapshot returns the current subscribers, or nil once the bus is closed.
func (b *Bus[T]) snapshot() []*subscriber[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	recipients := make([]*subscriber[T], 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		recipients = append(recipients, sub)
	}
	return recipients
}

// deliver reports whether value reached sub, and whether the write timeout
// expired first. It holds sendMu for the whole send; a cancelled subscriber
// releases it through done.
func (b *Bus[T]) deliver(sub *subscriber[T], value T) (delivered, expired bool) {
	sub.sendMu.Lock()
	defer sub.sendMu.Unlock()
	if sub.closed {
		return false, false
	}

	if b.options.Delivery == DropWhenFull {
		select {
		case sub.ch <- value:
			return true, false
		default:
			return false, false
		}
	}
	var timeout <-chan time.Time
	if b.options.WriteTimeout > 0 {
		timer := time.NewTimer(b.options.WriteTimeout)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case sub.ch <- value:
		return true, false
	case <-sub.done:
		return false, false
	case <-timeout:
		return false, true
	}
}

func (b *Bus[T]) accepts(sub *subscriber[T], value T) (ok bool) {
	if sub.accept == nil {
		return true
	}
	defer func() {
		if recover() != nil {
			b.logger.Warn("subscriber filter panicked", map[string]string{"bus": b.name})
			b.evict(sub.id)
			ok = false
		}
	}()
	return sub.accept(value)
}

func (b *Bus[T]) evict(id uint64) {
	b.mu.Lock()
	sub, found := b.subscribers[id]
	if found {
		delete(b.subscribers, id)
		b.reportSubscribersLocked()
	}
	b.mu.Unlock()
	if found {
		sub.shutdown()
	}
}

func (b *Bus[T]) reportSubscribersLocked() {
	filtered := 0
	for _, sub := range b.subscribers {
		if sub.accept != nil {
			filtered++
		}
	}
	b.registry.SetEventSubscriberCounts(b.name, filtered, len(b.subscribers)-filtered)
}

func typeOf(value any) string {
	if typed, ok := value.(Event); ok && typed.Type() != "" {
		return typed.Type()
	}
	return "unknown"
}

func closedChannel[T any]() chan T {
	ch := make(chan T)
	close(ch)
	return ch
}

func isNil[T any](value T) bool {
	v := reflect.ValueOf(value)
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Map, reflect.Pointer, reflect.Interface, reflect.Slice:
		return v.IsNil()
	}
	return false
}
