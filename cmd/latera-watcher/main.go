// Command latera-watcher serves one fsnotify watcher over JSON-RPC on stdio.
// The latera daemon spawns it when watcher.process is configured.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"latera/internal/cli"
	"latera/internal/logging"
	"latera/internal/watcher"
	"latera/internal/watcherrpc"
)

type watcherFlags struct {
	LogLevel    string
	Ignore      string
	WatchHidden bool
	DedupMS     int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.ReadCloser, stdout io.WriteCloser, stderr io.Writer) int {
	fs := flag.NewFlagSet("latera-watcher", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var flags watcherFlags
	fs.StringVar(&flags.LogLevel, "log-level", string(logging.LevelInfo), "Log level written to stderr")
	fs.StringVar(&flags.Ignore, "ignore", "", "Comma-separated glob patterns to ignore")
	fs.BoolVar(&flags.WatchHidden, "watch-hidden", false, "Report dot files")
	fs.IntVar(&flags.DedupMS, "dedup-window-ms", 300, "Coalesce repeated events for one path (0 disables)")
	helpVersion := cli.AddHelpVersionFlags(fs, "", "")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: latera-watcher [flags]")
		fmt.Fprintln(fs.Output(), "Speaks JSON-RPC 2.0 on stdin/stdout; logs go to stderr.")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if helpVersion.Handle(fs, "latera-watcher", stderr) {
		return 0
	}

	level, ok := logging.ParseLevel(flags.LogLevel)
	if !ok {
		fmt.Fprintf(stderr, "invalid -log-level %q\n", flags.LogLevel)
		return 2
	}
	logger := logging.NewLoggerWithOutput(logging.NewLogBuffer(logging.DefaultBufferSize), level, stderr)

	dedup := time.Duration(flags.DedupMS) * time.Millisecond
	if flags.DedupMS <= 0 {
		dedup = -1
	}
	fsWatcher := watcher.NewFSWatcher(watcher.Options{
		Logger:         logger,
		DedupWindow:    dedup,
		IgnorePatterns: splitPatterns(flags.Ignore),
		WatchHidden:    flags.WatchHidden,
	})
	defer fsWatcher.Close()

	server := watcherrpc.NewServer(fsWatcher, logger)
	if err := server.Serve(ctx, watcherrpc.NewStdio(stdin, stdout)); err != nil {
		logger.Error("watcher rpc failed", map[string]string{"error": err.Error()})
		return 1
	}
	return 0
}

func splitPatterns(raw string) []string {
	var patterns []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			patterns = append(patterns, part)
		}
	}
	return patterns
}
