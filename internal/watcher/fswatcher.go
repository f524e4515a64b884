package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"latera/internal/coreerr"
	"latera/internal/event"
	"latera/internal/logging"
	"latera/internal/metrics"
)

const (
	defaultDedupWindow     = 300 * time.Millisecond
	defaultCleanupInterval = time.Minute
	defaultSignalBuffer    = 64
	maxRestartAttempts     = 3
	restartBaseDelay       = 200 * time.Millisecond
)

// DefaultIgnorePatterns skip partial downloads and editor scratch files.
var DefaultIgnorePatterns = []string{
	"**/*.tmp",
	"**/*.crdownload",
	"**/*.part",
	"**/~$*",
}

// Options controls FSWatcher behavior.
type Options struct {
	Logger   *logging.Logger
	Registry *metrics.Registry
	Clock    clock.Clock
	// DedupWindow coalesces repeated create events for the same path. Zero
	// selects the default and a negative value disables coalescing.
	DedupWindow          time.Duration
	IgnorePatterns       []string
	WatchHidden          bool
	CleanupInterval      time.Duration
	SubscriberBufferSize int
}

// FSWatcher is the in-process Boundary backed by fsnotify. It watches one
// directory non-recursively and reports regular files as they are created.
type FSWatcher struct {
	lifecycle sync.Mutex
	mu        sync.Mutex
	session   *session
	nextID    uint64
	closed    bool

	bus      *event.Bus[Signal]
	logger   *logging.Logger
	registry *metrics.Registry
	clock    clock.Clock
	options  Options

	newSource   func() (*fsnotify.Watcher, error)
	desktopDir  func() (string, error)
	restartBase time.Duration
}

type session struct {
	id        uint64
	dir       string
	events    chan fsnotify.Event
	errors    chan error
	restarts  chan error
	done      chan struct{}
	loopDone  chan struct{}
	dedup     *dedupWindow
	startedAt time.Time

	mu              sync.Mutex
	source          *fsnotify.Watcher
	ended           bool
	restartAttempts int
	restartTimer    *clock.Timer
}

var _ Boundary = (*FSWatcher)(nil)

func NewFSWatcher(options Options) *FSWatcher {
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
	if options.DedupWindow == 0 {
		options.DedupWindow = defaultDedupWindow
	}
	if options.IgnorePatterns == nil {
		options.IgnorePatterns = DefaultIgnorePatterns
	}
	if options.CleanupInterval <= 0 {
		options.CleanupInterval = defaultCleanupInterval
	}
	if options.SubscriberBufferSize <= 0 {
		options.SubscriberBufferSize = defaultSignalBuffer
	}

	return &FSWatcher{
		bus: event.NewBus[Signal](context.Background(), event.BusOptions{
			Name:                 "watcher_signals",
			SubscriberBufferSize: options.SubscriberBufferSize,
			Delivery:             event.BlockWhenFull,
			Registry:             registry,
			Logger:               logger,
		}),
		logger:      logger.For("watcher"),
		registry:    registry,
		clock:       clk,
		options:     options,
		newSource:   fsnotify.NewWatcher,
		desktopDir:  DesktopDir,
		restartBase: restartBaseDelay,
	}
}

func (w *FSWatcher) StartWatching(ctx context.Context, overridePath string) WatchResult {
	if ctx != nil && ctx.Err() != nil {
		return WatchFailed(coreerr.From(ctx.Err()))
	}
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	w.mu.Lock()
	closed := w.closed
	running := w.session != nil
	w.mu.Unlock()
	if closed {
		return WatchFailed(translate(rawf(variantNotify, "watcher closed")))
	}
	if running {
		return WatchFailed(translate(rawf(variantAlreadyRunning, "")))
	}

	dir, err := resolveWatchDir(overridePath, w.desktopDir)
	if err != nil {
		failure := translate(err)
		w.logger.Warn("watch directory unavailable", failure.Fields())
		return WatchFailed(failure)
	}

	source, err := w.openSource(dir)
	if err != nil {
		failure := translate(err)
		w.logger.Warn("watcher start failed", failure.Fields())
		return WatchFailed(failure)
	}

	w.mu.Lock()
	w.nextID++
	s := &session{
		id:        w.nextID,
		dir:       dir,
		events:    make(chan fsnotify.Event, 64),
		errors:    make(chan error, 4),
		restarts:  make(chan error, 1),
		done:      make(chan struct{}),
		loopDone:  make(chan struct{}),
		dedup:     newDedupWindow(w.options.DedupWindow),
		startedAt: w.clock.Now(),
		source:    source,
	}
	w.session = s
	w.mu.Unlock()

	w.forward(s, source)
	go w.run(s)
	go w.cleanupLoop(s)

	w.logger.Info("watcher started", map[string]string{
		"watch_dir": dir,
		"session":   strconv.FormatUint(s.id, 10),
	})
	return Watched(dir)
}

func (w *FSWatcher) StopWatching(ctx context.Context) *coreerr.Error {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	w.mu.Lock()
	s := w.session
	w.session = nil
	w.mu.Unlock()
	if s == nil {
		return nil
	}

	closeErr := s.end()
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-s.loopDone:
	case <-ctx.Done():
		return coreerr.From(ctx.Err())
	}

	w.logger.Info("watcher stopped", map[string]string{
		"watch_dir": s.dir,
		"session":   strconv.FormatUint(s.id, 10),
		"uptime":    w.clock.Since(s.startedAt).String(),
	})
	if closeErr != nil {
		return translate(rawf(variantNotify, "%v", closeErr))
	}
	return nil
}

func (w *FSWatcher) Subscribe() (<-chan Signal, func()) {
	return w.bus.Subscribe()
}

func (w *FSWatcher) IsWatching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.session != nil
}

// WatchDir returns the directory of the current session, if any.
func (w *FSWatcher) WatchDir() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.session == nil {
		return ""
	}
	return w.session.dir
}

// Close stops any session and closes every subscriber channel.
func (w *FSWatcher) Close() error {
	err := w.StopWatching(context.Background())
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.bus.Close()
	if err != nil {
		return err
	}
	return nil
}

func (w *FSWatcher) openSource(dir string) (*fsnotify.Watcher, error) {
	source, err := w.newSource()
	if err != nil {
		return nil, rawf(variantNotify, "%v", err)
	}
	if err := source.Add(dir); err != nil {
		_ = source.Close()
		return nil, rawf(variantNotify, "watch %s: %v", dir, err)
	}
	return source, nil
}

func (w *FSWatcher) run(s *session) {
	defer close(s.loopDone)
	for {
		select {
		case <-s.done:
			return
		default:
		}

		select {
		case change := <-s.events:
			w.handleEvent(s, change)
		case err := <-s.errors:
			w.handleError(s, err)
		case err := <-s.restarts:
			w.scheduleRestart(s, err)
		case <-s.done:
			return
		}
	}
}

func (w *FSWatcher) forward(s *session, source *fsnotify.Watcher) {
	if source == nil {
		return
	}

	go func() {
		for {
			select {
			case change, ok := <-source.Events:
				if !ok {
					return
				}
				select {
				case s.events <- change:
				case <-s.done:
					return
				}
			case err, ok := <-source.Errors:
				if !ok {
					return
				}
				select {
				case s.errors <- err:
				case <-s.done:
					return
				}
			case <-s.done:
				return
			}
		}
	}()
}

func (w *FSWatcher) handleEvent(s *session, change fsnotify.Event) {
	if filepath.Clean(change.Name) == s.dir && change.Has(fsnotify.Remove|fsnotify.Rename) {
		w.handleError(s, rawf(variantIO, "watch directory removed: %s", s.dir))
		return
	}
	if !change.Has(fsnotify.Create) {
		return
	}
	if w.ignored(s, change.Name) {
		w.logger.Debug("file ignored", map[string]string{"path": change.Name})
		return
	}
	info, err := os.Stat(change.Name)
	if err != nil || !info.Mode().IsRegular() {
		return
	}

	now := w.clock.Now()
	if !s.dedup.allow(change.Name, now) {
		w.logger.Debug("duplicate create coalesced", map[string]string{"path": change.Name})
		return
	}

	added, err := newFileAddedEvent(change.Name, now)
	if err != nil {
		w.logger.Warn("cannot build file added event", translate(err).Fields())
		return
	}
	w.bus.Publish(DataSignal(added))
}

func (w *FSWatcher) ignored(s *session, path string) bool {
	if !w.options.WatchHidden && isHidden(path) {
		return true
	}
	rel, err := filepath.Rel(s.dir, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range w.options.IgnorePatterns {
		if match, _ := doublestar.Match(pattern, rel); match {
			return true
		}
	}
	return false
}

func (w *FSWatcher) cleanupLoop(s *session) {
	ticker := w.clock.Ticker(w.options.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := s.dedup.prune(w.clock.Now()); removed > 0 {
				w.logger.Debug("dedup entries pruned", map[string]string{
					"removed":   strconv.Itoa(removed),
					"remaining": strconv.Itoa(s.dedup.size()),
				})
			}
		case <-s.done:
			return
		}
	}
}

// finish ends a session that failed on its own and announces it with a done
// signal. A session already taken by StopWatching ends silently.
func (w *FSWatcher) finish(s *session, cause error) {
	w.mu.Lock()
	current := w.session == s
	if current {
		w.session = nil
	}
	w.mu.Unlock()

	_ = s.end()
	if !current {
		return
	}
	fields := map[string]string{"watch_dir": s.dir}
	if cause != nil {
		fields["error"] = cause.Error()
	}
	w.logger.Warn("watcher session ended", fields)
	w.bus.Publish(DoneSignal())
}

func (s *session) end() error {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return nil
	}
	s.ended = true
	if s.restartTimer != nil {
		s.restartTimer.Stop()
		s.restartTimer = nil
	}
	source := s.source
	s.source = nil
	s.mu.Unlock()

	close(s.done)
	if source == nil {
		return nil
	}
	return source.Close()
}

func newFileAddedEvent(path string, now time.Time) (FileAddedEvent, error) {
	name := filepath.Base(path)
	if name == "" || name == "." || name == string(filepath.Separator) {
		return FileAddedEvent{}, rawf(variantFileNameMissing, "%s", path)
	}
	return FileAddedEvent{
		FileName:   name,
		FullPath:   path,
		OccurredAt: now.UTC().Truncate(time.Millisecond),
	}, nil
}
