// Package config loads latera settings in layers: built-in defaults, then an
// optional TOML or YAML file, then LATERA_* environment variables, then
// explicit overrides (command-line flags). Sources records which layer won
// for every key.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"latera/internal/coreerr"
	"latera/internal/logging"
	"latera/internal/throttle"
)

type Source string

const (
	SourceDefault Source = "default"
	SourceFile    Source = "file"
	SourceEnv     Source = "env"
	SourceFlag    Source = "flag"
)

const (
	SinkLog     = "log"
	SinkRedis   = "redis"
	SinkCommand = "command"
)

const (
	KeyWatcherDir         = "watcher.dir"
	KeyWatcherProcess     = "watcher.process"
	KeyWatcherIgnore      = "watcher.ignore"
	KeyWatcherHidden      = "watcher.watch-hidden"
	KeyWatcherDedupMS     = "watcher.dedup-window-ms"
	KeyNotifySink         = "notify.sink"
	KeyNotifyTitle        = "notify.title"
	KeyNotifyThrottle     = "notify.throttle"
	KeyNotifyMinInterval  = "notify.min-interval-ms"
	KeyNotifyMaxInWindow  = "notify.max-in-window"
	KeyNotifyWindowMS     = "notify.window-ms"
	KeyNotifyRedisAddr    = "notify.redis-addr"
	KeyNotifyRedisChannel = "notify.redis-channel"
	KeyServerAddr         = "server.addr"
	KeyServerToken        = "server.token"
	KeyServerRateLimit    = "server.rate-limit"
	KeyServerRateBurst    = "server.rate-burst"
	KeyLogLevel           = "log.level"
	KeyTelemetryEndpoint  = "telemetry.otlp-endpoint"
	KeyTelemetryService   = "telemetry.service-name"
	KeyTelemetryResource  = "telemetry.resource-attributes"
)

// envKeys maps environment variables onto setting keys.
var envKeys = map[string]string{
	"LATERA_WATCH_DIR":       KeyWatcherDir,
	"LATERA_WATCHER_PROCESS": KeyWatcherProcess,
	"LATERA_NOTIFY_SINK":     KeyNotifySink,
	"LATERA_THROTTLE":        KeyNotifyThrottle,
	"LATERA_REDIS_ADDR":      KeyNotifyRedisAddr,
	"LATERA_ADDR":            KeyServerAddr,
	"LATERA_TOKEN":           KeyServerToken,
	"LATERA_LOG_LEVEL":       KeyLogLevel,

	"LATERA_OTEL_ENDPOINT":            KeyTelemetryEndpoint,
	"LATERA_OTEL_SERVICE_NAME":        KeyTelemetryService,
	"LATERA_OTEL_RESOURCE_ATTRIBUTES": KeyTelemetryResource,
}

type Settings struct {
	Watcher   WatcherSettings
	Notify    NotifySettings
	Server    ServerSettings
	Log       LogSettings
	Telemetry TelemetrySettings
	// Path is the settings file that was read, if any.
	Path    string
	Sources map[string]Source
}

type WatcherSettings struct {
	// Dir overrides the default watch directory when non-empty.
	Dir string
	// Process is the path of an out-of-process watcher binary. Empty keeps
	// the watcher in-process.
	Process       string
	Ignore        []string
	WatchHidden   bool
	DedupWindowMS int64
}

type NotifySettings struct {
	Sink          string
	Title         string
	Throttle      string
	MinIntervalMS int64
	MaxInWindow   int64
	WindowMS      int64
	RedisAddr     string
	RedisChannel  string
}

type ServerSettings struct {
	Addr      string
	Token     string
	RateLimit float64
	RateBurst int64
}

type LogSettings struct {
	Level string
}

// TelemetrySettings configures trace export. An empty Endpoint disables it.
type TelemetrySettings struct {
	Endpoint    string
	ServiceName string
	// ResourceAttributes is "k=v,k2=v2".
	ResourceAttributes string
}

// Defaults holds the built-in value of every key.
func Defaults() map[string]any {
	return map[string]any{
		KeyWatcherDir:         "",
		KeyWatcherProcess:     "",
		KeyWatcherIgnore:      []string{},
		KeyWatcherHidden:      false,
		KeyWatcherDedupMS:     int64(300),
		KeyNotifySink:         SinkLog,
		KeyNotifyTitle:        "Latera",
		KeyNotifyThrottle:     throttle.PolicyNameDefault,
		KeyNotifyMinInterval:  int64(0),
		KeyNotifyMaxInWindow:  int64(0),
		KeyNotifyWindowMS:     int64(0),
		KeyNotifyRedisAddr:    "127.0.0.1:6379",
		KeyNotifyRedisChannel: "latera:notifications",
		KeyServerAddr:         "127.0.0.1:7317",
		KeyServerToken:        "",
		KeyServerRateLimit:    float64(5),
		KeyServerRateBurst:    int64(10),
		KeyLogLevel:           string(logging.LevelInfo),
		KeyTelemetryEndpoint:  "",
		KeyTelemetryService:   "latera",
		KeyTelemetryResource:  "",
	}
}

// Load reads settings from path (skipped when empty; a missing file is an
// error only when it was named explicitly), the environment via lookupEnv,
// and overrides keyed by setting key.
func Load(path string, lookupEnv func(string) (string, bool), overrides map[string]any) (Settings, error) {
	store := NewStore()
	sources := make(map[string]Source)
	apply := func(key string, value any, source Source) {
		if normalized := store.Set(key, value); normalized != "" {
			sources[normalized] = source
		}
	}

	for key, value := range Defaults() {
		apply(key, value, SourceDefault)
	}

	path = strings.TrimSpace(path)
	if path != "" {
		payload, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, fmt.Errorf("read settings %s: %w", path, err)
		}
		file, err := DecodeFile(path, payload)
		if err != nil {
			return Settings{}, fmt.Errorf("parse settings %s: %w", filepath.Base(path), err)
		}
		for _, key := range file.Keys() {
			value, _ := file.lookup(key)
			apply(key, value, SourceFile)
		}
	}

	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	for name, key := range envKeys {
		if raw, ok := lookupEnv(name); ok && strings.TrimSpace(raw) != "" {
			apply(key, strings.TrimSpace(raw), SourceEnv)
		}
	}

	for key, value := range overrides {
		apply(key, value, SourceFlag)
	}

	return fromStore(store, path, sources), nil
}

func fromStore(store Store, path string, sources map[string]Source) Settings {
	settings := Settings{Path: path, Sources: sources}
	settings.Watcher = WatcherSettings{
		Dir:           store.String(KeyWatcherDir, ""),
		Process:       store.String(KeyWatcherProcess, ""),
		Ignore:        store.List(KeyWatcherIgnore),
		WatchHidden:   store.Bool(KeyWatcherHidden, false),
		DedupWindowMS: store.Int(KeyWatcherDedupMS, 300),
	}
	settings.Notify = NotifySettings{
		Sink:          strings.ToLower(store.String(KeyNotifySink, SinkLog)),
		Title:         store.String(KeyNotifyTitle, "Latera"),
		Throttle:      strings.ToLower(store.String(KeyNotifyThrottle, throttle.PolicyNameDefault)),
		MinIntervalMS: store.Int(KeyNotifyMinInterval, 0),
		MaxInWindow:   store.Int(KeyNotifyMaxInWindow, 0),
		WindowMS:      store.Int(KeyNotifyWindowMS, 0),
		RedisAddr:     store.String(KeyNotifyRedisAddr, ""),
		RedisChannel:  store.String(KeyNotifyRedisChannel, ""),
	}
	settings.Server = ServerSettings{
		Addr:      store.String(KeyServerAddr, ""),
		Token:     store.String(KeyServerToken, ""),
		RateLimit: store.Float(KeyServerRateLimit, 5),
		RateBurst: store.Int(KeyServerRateBurst, 10),
	}
	settings.Log.Level = store.String(KeyLogLevel, string(logging.LevelInfo))
	settings.Telemetry = TelemetrySettings{
		Endpoint:           store.String(KeyTelemetryEndpoint, ""),
		ServiceName:        store.String(KeyTelemetryService, "latera"),
		ResourceAttributes: store.String(KeyTelemetryResource, ""),
	}
	return settings
}

// Validate reports the first invalid value as a config-kind error.
func (s Settings) Validate() error {
	if dir := s.Watcher.Dir; dir != "" && !filepath.IsAbs(dir) {
		return coreerr.Config(fmt.Sprintf("%s must be an absolute path: %q", KeyWatcherDir, dir))
	}
	for _, pattern := range s.Watcher.Ignore {
		if !doublestar.ValidatePattern(pattern) {
			return coreerr.Config(fmt.Sprintf("%s has an invalid pattern: %q", KeyWatcherIgnore, pattern))
		}
	}
	if s.Watcher.DedupWindowMS < 0 {
		return coreerr.Config(KeyWatcherDedupMS + " must not be negative")
	}
	switch s.Notify.Sink {
	case SinkLog, SinkCommand:
	case SinkRedis:
		if s.Notify.RedisAddr == "" {
			return coreerr.Config(KeyNotifyRedisAddr + " is required for the redis sink")
		}
	default:
		return coreerr.Config(fmt.Sprintf("%s must be one of log, redis, command: %q", KeyNotifySink, s.Notify.Sink))
	}
	if _, err := s.ThrottlePolicy(); err != nil {
		return coreerr.Config(err.Error())
	}
	if strings.TrimSpace(s.Server.Addr) == "" {
		return coreerr.Config(KeyServerAddr + " cannot be empty")
	}
	if s.Server.RateLimit < 0 {
		return coreerr.Config(KeyServerRateLimit + " must not be negative")
	}
	if s.Server.RateLimit > 0 && s.Server.RateBurst < 1 {
		return coreerr.Config(KeyServerRateBurst + " must be at least 1")
	}
	if _, ok := logging.ParseLevel(s.Log.Level); !ok {
		return coreerr.Config(fmt.Sprintf("%s must be debug, info, warning or error: %q", KeyLogLevel, s.Log.Level))
	}
	return nil
}

// ThrottlePolicy resolves the named policy and applies any explicit fields
// on top of it.
func (s Settings) ThrottlePolicy() (throttle.Policy, error) {
	policy, err := throttle.PolicyByName(s.Notify.Throttle)
	if err != nil {
		return throttle.Policy{}, err
	}
	if s.Notify.MinIntervalMS > 0 {
		policy.MinInterval = time.Duration(s.Notify.MinIntervalMS) * time.Millisecond
	}
	if s.Notify.MaxInWindow > 0 {
		policy.MaxInWindow = int(s.Notify.MaxInWindow)
	}
	if s.Notify.WindowMS > 0 {
		policy.WindowSize = time.Duration(s.Notify.WindowMS) * time.Millisecond
	}
	if err := policy.Validate(); err != nil {
		return throttle.Policy{}, err
	}
	return policy, nil
}

func (s Settings) LogLevel() logging.Level {
	level, ok := logging.ParseLevel(s.Log.Level)
	if !ok {
		return logging.LevelInfo
	}
	return level
}

func (s Settings) DedupWindow() time.Duration {
	if s.Watcher.DedupWindowMS == 0 {
		return -1
	}
	return time.Duration(s.Watcher.DedupWindowMS) * time.Millisecond
}

func (s Settings) Source(key string) Source {
	if source, ok := s.Sources[NormalizeKey(key)]; ok {
		return source
	}
	return SourceDefault
}
