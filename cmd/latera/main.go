// Command latera watches a directory for new files, raises throttled
// notifications, and serves the status and event-stream API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"latera/internal/app"
	"latera/internal/config"
	"latera/internal/logging"
	"latera/internal/otel"
	"latera/internal/version"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

type runOptions struct {
	Args      []string
	LookupEnv func(string) (string, bool)
	Stdout    io.Writer
	Stderr    io.Writer
	Signals   <-chan os.Signal
	// Ready, when set, receives the bound listen address.
	Ready func(addr string)
}

func main() {
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	os.Exit(run(runOptions{
		Args:      os.Args[1:],
		LookupEnv: os.LookupEnv,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
		Signals:   signals,
	}))
}

func run(options runOptions) int {
	stderr := options.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	stdout := options.Stdout
	if stdout == nil {
		stdout = io.Discard
	}

	fs, flags, err := parseFlags(options.Args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	if flags.helpVersion.Handle(fs, "latera", stdout) {
		return exitOK
	}

	settings, err := config.Load(flags.ConfigPath, options.LookupEnv, flags.overrides())
	if err != nil {
		fmt.Fprintf(stderr, "load settings: %v\n", err)
		return exitUsage
	}
	if err := settings.Validate(); err != nil {
		fmt.Fprintf(stderr, "invalid settings: %v\n", err)
		return exitUsage
	}

	logger := logging.NewLoggerWithOutput(logging.NewLogBuffer(logging.DefaultBufferSize), settings.LogLevel(), stderr)
	logSettingsSources(logger, settings)

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()
	stopSignals := watchShutdownSignals(logger, shutdownCancel, options.Signals)
	defer stopSignals()

	shutdownTelemetry, err := otel.SetupSDK(shutdownCtx, otel.SDKOptions{
		Endpoint:           settings.Telemetry.Endpoint,
		ServiceName:        settings.Telemetry.ServiceName,
		ServiceVersion:     version.Version,
		ResourceAttributes: otel.ParseResourceAttributes(settings.Telemetry.ResourceAttributes),
	})
	if err != nil {
		logger.Error("telemetry setup failed", map[string]string{"error": err.Error()})
		return exitFailure
	}
	telemetryPhase := shutdownPhase{name: "telemetry", stop: shutdownTelemetry}

	services, err := app.Build(shutdownCtx, app.BuildOptions{Settings: settings, Logger: logger})
	if err != nil {
		logger.Error("build failed", map[string]string{"error": err.Error()})
		_ = shutdownTelemetry(context.Background())
		return exitFailure
	}

	if !flags.NoStart {
		startWatching(shutdownCtx, services)
	}

	if err := serve(shutdownCtx, services, options.Ready, telemetryPhase); err != nil {
		logger.Error("latera stopped with errors", map[string]string{"error": err.Error()})
		return exitFailure
	}
	logger.Info("latera stopped", nil)
	return exitOK
}

// startWatching starts the coordinator at boot. A failure is logged and left
// for a later POST /api/watcher/start to retry.
func startWatching(ctx context.Context, services *app.Services) {
	logger, _ := services.Logger.For("main").WithCorrelation("boot_start")
	result, err := services.Coordinator.Start(ctx)
	if err != nil {
		logger.Error("watcher start failed", map[string]string{"error": err.Error()})
		return
	}
	if !result.OK() {
		logger.Warn("watcher not started", result.Err.Fields())
		return
	}
	logger.Info("watching", map[string]string{"watch_dir": result.WatchDir})
}

func logSettingsSources(logger *logging.Logger, settings config.Settings) {
	fields := map[string]string{}
	if settings.Path != "" {
		fields["config"] = settings.Path
	}
	for _, key := range []string{config.KeyWatcherDir, config.KeyServerAddr, config.KeyNotifySink, config.KeyNotifyThrottle} {
		fields[key] = string(settings.Source(key))
	}
	logger.Debug("settings loaded", fields)
}
