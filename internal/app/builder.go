package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"

	"latera/internal/api"
	"latera/internal/config"
	"latera/internal/coordinator"
	"latera/internal/logging"
	"latera/internal/metrics"
	"latera/internal/notify"
	"latera/internal/throttle"
	"latera/internal/watcher"
)

type BuildOptions struct {
	Settings config.Settings
	Logger   *logging.Logger
	Registry *metrics.Registry
	Clock    clock.Clock
	// Watcher and Sink replace the ones Settings would select.
	Watcher watcher.Boundary
	Sink    notify.Sink
	// HeartbeatInterval is passed to the SSE stream; zero keeps its default.
	HeartbeatInterval time.Duration
}

// Services is the composed application. It is built once and handed to the
// binaries by reference.
type Services struct {
	Settings    config.Settings
	Logger      *logging.Logger
	Registry    *metrics.Registry
	Watcher     watcher.Boundary
	Sink        notify.Sink
	Channel     *notify.SinkChannel
	Throttle    *throttle.Throttle
	Notifier    *notify.Notifier
	Coordinator *coordinator.Coordinator
	Handler     http.Handler

	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

type BuildError struct {
	Stage string
	Err   error
}

func (e BuildError) Error() string {
	if e.Err == nil {
		return e.Stage
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e BuildError) Unwrap() error {
	return e.Err
}

const (
	StageValidate    = "validate"
	StageThrottle    = "throttle"
	StageSink        = "sink"
	StageWatcher     = "watcher"
	StageCoordinator = "coordinator"
)

func Build(ctx context.Context, options BuildOptions) (*Services, error) {
	settings := options.Settings
	if err := settings.Validate(); err != nil {
		return nil, BuildError{Stage: StageValidate, Err: err}
	}

	logger := options.Logger
	if logger == nil {
		logger = logging.NewLogger(logging.NewLogBuffer(logging.DefaultBufferSize), settings.LogLevel())
	}
	registry := options.Registry
	if registry == nil {
		registry = &metrics.Registry{}
	}
	clk := options.Clock
	if clk == nil {
		clk = clock.New()
	}

	services := &Services{
		Settings: settings,
		Logger:   logger,
		Registry: registry,
	}

	policy, err := settings.ThrottlePolicy()
	if err != nil {
		return nil, BuildError{Stage: StageThrottle, Err: err}
	}
	services.Throttle = throttle.New(policy, clk)

	sink := options.Sink
	if sink == nil {
		sink, err = NewSink(settings, logger)
		if err != nil {
			return nil, BuildError{Stage: StageSink, Err: err}
		}
		if closer, ok := sink.(interface{ Close() error }); ok {
			services.addCloser("sink", closer.Close)
		}
	}
	services.Sink = sink
	services.Channel = notify.NewSinkChannel(sink, notify.ChannelOptions{
		Title:  settings.Notify.Title,
		Clock:  clk,
		Logger: logger,
	})
	services.Notifier = notify.NewNotifier(services.Channel, services.Throttle, logger, registry)

	boundary := options.Watcher
	if boundary == nil {
		boundary, err = NewWatcher(ctx, settings, logger, registry, clk)
		if err != nil {
			services.closeAll(logger)
			return nil, BuildError{Stage: StageWatcher, Err: err}
		}
		if closer, ok := boundary.(interface{ Close() error }); ok {
			services.addCloser("watcher", closer.Close)
		}
	}
	services.Watcher = boundary

	coord, err := coordinator.New(coordinator.Options{
		Watcher:      boundary,
		Notifier:     services.Notifier,
		Logger:       logger,
		Registry:     registry,
		Clock:        clk,
		OverridePath: settings.Watcher.Dir,
	})
	if err != nil {
		services.closeAll(logger)
		return nil, BuildError{Stage: StageCoordinator, Err: err}
	}
	services.Coordinator = coord

	services.Handler = api.NewHandler(api.Options{
		Coordinator:       coord,
		Logger:            logger,
		Registry:          registry,
		AuthToken:         settings.Server.Token,
		RateLimit:         settings.Server.RateLimit,
		RateBurst:         int(settings.Server.RateBurst),
		HeartbeatInterval: options.HeartbeatInterval,
	})

	logger.Info("services built", map[string]string{
		"sink":     settings.Notify.Sink,
		"throttle": settings.Notify.Throttle,
		"watcher":  watcherKind(settings),
	})
	return services, nil
}

// Close disposes the coordinator and releases the watcher and sink in
// reverse construction order.
func (s *Services) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	if s.Coordinator != nil {
		s.Coordinator.Dispose(ctx)
	}
	return s.closeAll(s.Logger)
}

func (s *Services) addCloser(name string, close func() error) {
	s.closers = append(s.closers, namedCloser{name: name, close: close})
}

func (s *Services) closeAll(logger *logging.Logger) error {
	var closeErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		closer := s.closers[i]
		if err := closer.close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close %s: %w", closer.name, err))
			logger.Warn("close failed", map[string]string{
				"resource": closer.name,
				"error":    err.Error(),
			})
		}
	}
	s.closers = nil
	return closeErr
}

func watcherKind(settings config.Settings) string {
	if settings.Watcher.Process != "" {
		return "process"
	}
	return "fsnotify"
}
