// Package coordinator bridges a watcher boundary to the outward update stream
// and the throttled notification channel, and owns the start/stop/dispose
// lifecycle.
package coordinator

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"latera/internal/coreerr"
	"latera/internal/event"
	"latera/internal/logging"
	"latera/internal/metrics"
	"latera/internal/watcher"
)

const (
	defaultNotifyTimeout = 5 * time.Second
	defaultWriteTimeout  = 10 * time.Second
	tracerName           = "latera/coordinator"
)

type Options struct {
	Watcher  watcher.Boundary
	Notifier FileNotifier
	Logger   *logging.Logger
	Registry *metrics.Registry
	Clock    clock.Clock
	Tracer   trace.Tracer
	// OverridePath is passed to StartWatching; empty selects the default
	// directory.
	OverridePath         string
	NotifyTimeout        time.Duration
	SubscriberBufferSize int
	// WriteTimeout bounds how long a slow outward subscriber can hold up the
	// stream before it is dropped. Negative waits forever.
	WriteTimeout time.Duration
}

// Coordinator owns one watcher subscription at a time. Lifecycle calls are
// serialized by lifecycleMu; mu guards the flags and is never held across I/O.
type Coordinator struct {
	lifecycleMu sync.Mutex

	mu          sync.Mutex
	running     bool
	disposed    bool
	watchDir    string
	startedAt   time.Time
	lastEventAt time.Time
	lastErr     *coreerr.Error
	sub         *subscription
	generation  uint64

	watcher       watcher.Boundary
	notifier      FileNotifier
	bus           *event.Bus[Update]
	logger        *logging.Logger
	registry      *metrics.Registry
	clock         clock.Clock
	tracer        trace.Tracer
	overridePath  string
	notifyTimeout time.Duration

	events       atomic.Int64
	fired        atomic.Int64
	suppressed   atomic.Int64
	failed       atomic.Int64
	streamErrors atomic.Int64
}

type subscription struct {
	generation  uint64
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	done        chan struct{}
}

func New(options Options) (*Coordinator, error) {
	if options.Watcher == nil {
		return nil, fmt.Errorf("coordinator: watcher is required")
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	registry := options.Registry
	if registry == nil {
		registry = metrics.Default
	}
	clk := options.Clock
	if clk == nil {
		clk = clock.New()
	}
	tracer := options.Tracer
	if tracer == nil {
		tracer = otelapi.Tracer(tracerName)
	}
	notifyTimeout := options.NotifyTimeout
	if notifyTimeout <= 0 {
		notifyTimeout = defaultNotifyTimeout
	}
	writeTimeout := options.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = defaultWriteTimeout
	}
	if writeTimeout < 0 {
		writeTimeout = 0
	}

	c := &Coordinator{
		watcher:       options.Watcher,
		notifier:      options.Notifier,
		logger:        logger.For("coordinator"),
		registry:      registry,
		clock:         clk,
		tracer:        tracer,
		overridePath:  options.OverridePath,
		notifyTimeout: notifyTimeout,
	}
	c.bus = event.NewBus[Update](context.Background(), event.BusOptions{
		Name:                 "coordinator_updates",
		SubscriberBufferSize: options.SubscriberBufferSize,
		Delivery:             event.BlockWhenFull,
		WriteTimeout:         writeTimeout,
		Registry:             registry,
		Logger:               logger,
	})
	return c, nil
}

// Start begins watching. A failed start leaves the coordinator in its previous
// state and records the failure in LastError, except for the already-running
// answer to a repeated start.
func (c *Coordinator) Start(ctx context.Context) (StartResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := c.tracer.Start(ctx, "coordinator.start",
		trace.WithAttributes(attribute.String("latera.override_path", c.overridePath)),
	)
	defer span.End()

	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.IsDisposed() {
		span.SetStatus(codes.Error, ErrDisposed.Error())
		return StartResult{}, ErrDisposed
	}

	logger, corrID := c.logger.WithCorrelation("start")
	span.SetAttributes(attribute.String("latera.correlation_id", corrID))
	logger.Info("coordinator starting", nil)

	c.mu.Lock()
	var stale *subscription
	if !c.running {
		stale = c.sub
		c.sub = nil
	}
	c.mu.Unlock()
	c.retire(stale)

	signals, unsubscribe := c.watcher.Subscribe()
	result := c.watcher.StartWatching(ctx, c.overridePath)
	if !result.OK() {
		unsubscribe()
		fields := result.Err.Fields()
		fields["override_path"] = c.overridePath
		// A repeated start leaves the running session and its health alone.
		c.mu.Lock()
		alreadyRunning := c.running && result.Err.Code == coreerr.CodeWatcherAlreadyRunning
		if !alreadyRunning {
			c.lastErr = result.Err
		}
		c.mu.Unlock()
		if alreadyRunning {
			logger.Info("coordinator already running", fields)
		} else {
			c.registry.IncCoordinatorStartFailure()
			logger.Error("coordinator start failed", fields)
		}
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, result.Err.Message)
		return StartFailed(result.Err), nil
	}

	subCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.generation++
	sub := &subscription{
		generation:  c.generation,
		ctx:         subCtx,
		cancel:      cancel,
		unsubscribe: unsubscribe,
		done:        make(chan struct{}),
	}
	stale = c.sub
	c.sub = sub
	c.running = true
	c.watchDir = result.WatchDir
	c.startedAt = c.clock.Now().UTC()
	c.lastErr = nil
	c.mu.Unlock()
	c.retire(stale)

	go c.consume(sub, signals)

	c.registry.IncCoordinatorStart()
	span.SetAttributes(attribute.String("latera.watch_dir", result.WatchDir))
	logger.Info("coordinator started", map[string]string{
		"watch_dir":  result.WatchDir,
		"generation": strconv.FormatUint(sub.generation, 10),
	})
	return Started(result.WatchDir), nil
}

// Stop ends the current subscription, waits for its handler goroutine, and
// then stops the watcher. It is idempotent and a no-op after Dispose.
func (c *Coordinator) Stop(ctx context.Context) *coreerr.Error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := c.tracer.Start(ctx, "coordinator.stop")
	defer span.End()

	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.IsDisposed() {
		return nil
	}
	err := c.stopLocked(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Message)
	}
	return err
}

func (c *Coordinator) stopLocked(ctx context.Context) *coreerr.Error {
	logger, _ := c.logger.WithCorrelation("stop")

	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	wasRunning := c.running
	c.mu.Unlock()

	c.retire(sub)
	err := c.watcher.StopWatching(ctx)

	c.mu.Lock()
	c.running = false
	if err != nil {
		c.lastErr = err
	}
	c.mu.Unlock()

	if wasRunning {
		c.registry.IncCoordinatorStop()
	}
	if err != nil {
		logger.Warn("watcher stop failed", err.Fields())
		return err
	}
	if wasRunning {
		logger.Info("coordinator stopped", nil)
	}
	return nil
}

// Dispose stops the coordinator and closes the outward stream. Every later
// lifecycle call is a no-op, and Start reports ErrDisposed.
func (c *Coordinator) Dispose(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := c.tracer.Start(ctx, "coordinator.dispose")
	defer span.End()

	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.IsDisposed() {
		return
	}
	if err := c.stopLocked(ctx); err != nil {
		span.RecordError(err)
	}
	c.bus.Close()

	c.mu.Lock()
	c.disposed = true
	c.mu.Unlock()
	c.logger.Info("coordinator disposed", nil)
}

// Subscribe returns a listener on the outward stream. Cancelling it does not
// affect other listeners.
func (c *Coordinator) Subscribe() (<-chan Update, func()) {
	return c.bus.Subscribe()
}

// SubscribeTypes listens only to the given update types.
func (c *Coordinator) SubscribeTypes(types ...string) (<-chan Update, func()) {
	return c.bus.SubscribeTypes(types...)
}

func (c *Coordinator) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Coordinator) IsDisposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Coordinator) stateLocked() State {
	switch {
	case c.disposed:
		return StateDisposed
	case c.running:
		return StateRunning
	default:
		return StateIdle
	}
}

// LastError returns the most recent start or stop failure, cleared by a
// successful start.
func (c *Coordinator) LastError() *coreerr.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	snapshot := Snapshot{
		State:     c.stateLocked(),
		WatchDir:  c.watchDir,
		LastError: c.lastErr,
	}
	if !c.startedAt.IsZero() {
		startedAt := c.startedAt
		snapshot.StartedAt = &startedAt
	}
	if !c.lastEventAt.IsZero() {
		lastEventAt := c.lastEventAt
		snapshot.LastEventAt = &lastEventAt
	}
	c.mu.Unlock()

	snapshot.Events = c.events.Load()
	snapshot.NotificationsFired = c.fired.Load()
	snapshot.NotificationsSuppressed = c.suppressed.Load()
	snapshot.NotificationsFailed = c.failed.Load()
	snapshot.StreamErrors = c.streamErrors.Load()
	snapshot.Subscribers = c.bus.SubscriberCount()
	return snapshot
}

// retire cancels a subscription and waits for its goroutine to exit.
func (c *Coordinator) retire(sub *subscription) {
	if sub == nil {
		return
	}
	sub.cancel()
	sub.unsubscribe()
	<-sub.done
}

func (c *Coordinator) isCurrent(sub *subscription) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sub != nil && c.sub.generation == sub.generation
}

func (c *Coordinator) consume(sub *subscription, signals <-chan watcher.Signal) {
	defer close(sub.done)
	for {
		select {
		case <-sub.ctx.Done():
			return
		case signal, ok := <-signals:
			if !ok {
				c.handleDone(sub, "closed")
				return
			}
			if !c.isCurrent(sub) {
				continue
			}
			switch signal.Kind {
			case watcher.SignalData:
				c.handleData(sub, signal.Event)
			case watcher.SignalError:
				c.handleError(signal.Err)
			case watcher.SignalDone:
				c.handleDone(sub, "done")
				return
			}
		}
	}
}

func (c *Coordinator) handleData(sub *subscription, added watcher.FileAddedEvent) {
	ui := UiEvent{
		ID:         uuid.NewString(),
		FileName:   added.FileName,
		FullPath:   added.FullPath,
		OccurredAt: added.OccurredAt,
	}
	c.events.Add(1)
	c.mu.Lock()
	c.lastEventAt = c.clock.Now().UTC()
	c.mu.Unlock()

	c.bus.Publish(Update{Event: &ui})
	c.notify(sub.ctx, ui)
}

// notify never lets a notification failure reach the stream.
func (c *Coordinator) notify(parent context.Context, ui UiEvent) {
	if c.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(parent, c.notifyTimeout)
	defer cancel()
	defer func() {
		if recovered := recover(); recovered != nil {
			c.failed.Add(1)
			c.registry.IncNotificationFailed()
			c.logger.Error("notification panicked", map[string]string{
				"file_name": ui.FileName,
				"panic":     fmt.Sprint(recovered),
			})
		}
	}()

	fired, err := c.notifier.FileAdded(ctx, ui.FileName)
	switch {
	case err != nil:
		c.failed.Add(1)
		fields := coreerr.From(err).Fields()
		fields["file_name"] = ui.FileName
		c.logger.Warn("notification failed", fields)
	case fired:
		c.fired.Add(1)
	default:
		c.suppressed.Add(1)
	}
}

func (c *Coordinator) handleError(err *coreerr.Error) {
	if err == nil {
		err = coreerr.Stream("watcher stream error", nil)
	}
	c.streamErrors.Add(1)
	c.registry.IncStreamError()
	c.logger.Warn("watcher stream error", err.Fields())
	c.bus.Publish(Update{Err: err})
}

// handleDone keeps the subscription so a later Stop or Start still releases it.
func (c *Coordinator) handleDone(sub *subscription, reason string) {
	c.mu.Lock()
	current := c.sub != nil && c.sub.generation == sub.generation
	if current {
		c.running = false
	}
	c.mu.Unlock()
	if !current {
		return
	}
	c.logger.Info("watcher stream ended", map[string]string{
		"reason":     reason,
		"generation": strconv.FormatUint(sub.generation, 10),
	})
}
