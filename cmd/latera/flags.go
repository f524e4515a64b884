package main

import (
	"flag"
	"fmt"
	"io"

	"latera/internal/cli"
	"latera/internal/config"
)

type daemonFlags struct {
	ConfigPath     string
	WatchDir       string
	Addr           string
	Throttle       string
	WatcherProcess string
	LogLevel       string
	NoStart        bool

	helpVersion *cli.HelpVersionFlags
	set         map[string]bool
}

// flagKeys maps flag names onto the setting they override.
var flagKeys = map[string]string{
	"watch-dir":       config.KeyWatcherDir,
	"addr":            config.KeyServerAddr,
	"throttle":        config.KeyNotifyThrottle,
	"watcher-process": config.KeyWatcherProcess,
	"log-level":       config.KeyLogLevel,
}

func parseFlags(args []string, errOut io.Writer) (*flag.FlagSet, daemonFlags, error) {
	fs := flag.NewFlagSet("latera", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var flags daemonFlags
	fs.StringVar(&flags.ConfigPath, "config", "", "Settings file (.toml, .yaml or .yml)")
	fs.StringVar(&flags.WatchDir, "watch-dir", "", "Absolute directory to watch (default: Desktop/Latera)")
	fs.StringVar(&flags.Addr, "addr", "", "HTTP listen address (default 127.0.0.1:7317)")
	fs.StringVar(&flags.Throttle, "throttle", "", "Notification throttle policy: default or strict")
	fs.StringVar(&flags.WatcherProcess, "watcher-process", "", "Run the watcher as this child process")
	fs.StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warning or error")
	fs.BoolVar(&flags.NoStart, "no-start", false, "Wait for POST /api/watcher/start instead of watching at boot")
	flags.helpVersion = cli.AddHelpVersionFlags(fs, "", "")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: latera [flags]")
		fmt.Fprintln(fs.Output(), "Watches a directory for new files, notifies, and serves the status API.")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return fs, flags, err
	}
	if fs.NArg() > 0 {
		return fs, flags, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	flags.set = cli.SetFlags(fs)
	return fs, flags, nil
}

// overrides returns the settings given explicitly on the command line.
func (flags daemonFlags) overrides() map[string]any {
	values := map[string]string{
		"watch-dir":       flags.WatchDir,
		"addr":            flags.Addr,
		"throttle":        flags.Throttle,
		"watcher-process": flags.WatcherProcess,
		"log-level":       flags.LogLevel,
	}
	overrides := map[string]any{}
	for name, value := range values {
		if flags.set[name] {
			overrides[flagKeys[name]] = value
		}
	}
	return overrides
}
