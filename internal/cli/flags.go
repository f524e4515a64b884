package cli

import (
	"flag"
	"fmt"
	"io"

	"latera/internal/version"
)

const (
	defaultHelpDesc    = "Show help"
	defaultVersionDesc = "Print version and exit"
)

type HelpVersionFlags struct {
	Help    bool
	Version bool
}

func AddHelpVersionFlags(fs *flag.FlagSet, helpDesc, versionDesc string) *HelpVersionFlags {
	if fs == nil {
		return &HelpVersionFlags{}
	}
	if helpDesc == "" {
		helpDesc = defaultHelpDesc
	}
	if versionDesc == "" {
		versionDesc = defaultVersionDesc
	}
	flags := &HelpVersionFlags{}
	fs.BoolVar(&flags.Help, "help", false, helpDesc)
	fs.BoolVar(&flags.Help, "h", false, helpDesc)
	fs.BoolVar(&flags.Version, "version", false, versionDesc)
	fs.BoolVar(&flags.Version, "v", false, versionDesc)
	return flags
}

// Handle prints usage or the version when requested and reports whether the
// caller should exit.
func (flags *HelpVersionFlags) Handle(fs *flag.FlagSet, name string, out io.Writer) bool {
	if flags == nil {
		return false
	}
	switch {
	case flags.Help:
		fs.SetOutput(out)
		fs.Usage()
		return true
	case flags.Version:
		fmt.Fprintf(out, "%s %s\n", name, version.GetVersionInfo())
		return true
	}
	return false
}

// SetFlags returns the names of flags given explicitly on the command line.
func SetFlags(fs *flag.FlagSet) map[string]bool {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	return set
}
