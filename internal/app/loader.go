package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/benbjohnson/clock"

	"latera/internal/config"
	"latera/internal/logging"
	"latera/internal/metrics"
	"latera/internal/notify"
	"latera/internal/watcher"
	"latera/internal/watcherrpc"
)

// NewSink returns the notification sink named by settings.
func NewSink(settings config.Settings, logger *logging.Logger) (notify.Sink, error) {
	switch settings.Notify.Sink {
	case config.SinkLog, "":
		return notify.NewLogSink(logger), nil
	case config.SinkRedis:
		return notify.DialRedisSink(settings.Notify.RedisAddr, "", 0, settings.Notify.RedisChannel), nil
	case config.SinkCommand:
		return notify.NewCommandSink(), nil
	default:
		return nil, fmt.Errorf("unknown notification sink %q", settings.Notify.Sink)
	}
}

// NewWatcher returns the in-process fsnotify watcher, or a client for the
// watcher process when settings name one.
func NewWatcher(ctx context.Context, settings config.Settings, logger *logging.Logger, registry *metrics.Registry, clk clock.Clock) (watcher.Boundary, error) {
	if settings.Watcher.Process != "" {
		client, err := watcherrpc.Spawn(ctx, settings.Watcher.Process, WatcherArgs(settings), watcherrpc.ClientOptions{
			Logger:   logger,
			Registry: registry,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	ignore := settings.Watcher.Ignore
	if len(ignore) == 0 {
		ignore = nil
	}
	return watcher.NewFSWatcher(watcher.Options{
		Logger:         logger,
		Registry:       registry,
		Clock:          clk,
		DedupWindow:    settings.DedupWindow(),
		IgnorePatterns: ignore,
		WatchHidden:    settings.Watcher.WatchHidden,
	}), nil
}

// WatcherArgs renders the watcher settings as latera-watcher flags, so the
// process watcher filters and coalesces like the in-process one.
func WatcherArgs(settings config.Settings) []string {
	args := []string{
		"-log-level=" + string(settings.LogLevel()),
		"-watch-hidden=" + strconv.FormatBool(settings.Watcher.WatchHidden),
		"-dedup-window-ms=" + strconv.FormatInt(settings.Watcher.DedupWindowMS, 10),
	}
	if len(settings.Watcher.Ignore) > 0 {
		args = append(args, "-ignore="+strings.Join(settings.Watcher.Ignore, ","))
	}
	return args
}
