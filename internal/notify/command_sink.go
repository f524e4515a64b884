package notify

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"

	"latera/internal/coreerr"
)

type commandRunner func(ctx context.Context, name string, args ...string) error

// CommandSink shows desktop toasts through the platform's notification tool:
// notify-send on Linux and osascript on macOS.
type CommandSink struct {
	goos     string
	lookPath func(string) (string, error)
	run      commandRunner
	path     string
}

func NewCommandSink() *CommandSink {
	return &CommandSink{
		goos:     runtime.GOOS,
		lookPath: exec.LookPath,
		run:      runCommand,
	}
}

func (sink *CommandSink) tool() (string, error) {
	switch sink.goos {
	case "linux", "freebsd", "openbsd":
		return "notify-send", nil
	case "darwin":
		return "osascript", nil
	default:
		return "", coreerr.PlatformUnsupported("desktop notifications are not supported on " + sink.goos)
	}
}

func (sink *CommandSink) Init(ctx context.Context) error {
	name, err := sink.tool()
	if err != nil {
		return err
	}
	path, err := sink.lookPath(name)
	if err != nil {
		return fmt.Errorf("locate %s: %w", name, err)
	}
	sink.path = path
	return nil
}

func (sink *CommandSink) Emit(ctx context.Context, event Event) error {
	if sink.path == "" {
		return fmt.Errorf("command sink not initialized")
	}
	name, args := sink.command(event)
	if err := sink.run(ctx, name, args...); err != nil {
		return fmt.Errorf("run %s: %w", name, err)
	}
	return nil
}

func (sink *CommandSink) command(event Event) (string, []string) {
	if sink.goos == "darwin" {
		script := "display notification " + strconv.Quote(event.Message) + " with title " + strconv.Quote(event.Title)
		return sink.path, []string{"-e", script}
	}
	return sink.path, []string{"--app-name=Latera", event.Title, event.Message}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	output, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil && len(output) > 0 {
		return fmt.Errorf("%w: %s", err, output)
	}
	return err
}
