package cli

import (
	"flag"
	"io"
	"strings"
	"testing"
)

func TestHelpFlag(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	flags := AddHelpVersionFlags(fs, "", "")

	if err := fs.Parse([]string{"-h"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !flags.Help {
		t.Fatalf("expected help flag set")
	}
}

func TestVersionFlag(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	flags := AddHelpVersionFlags(fs, "", "")

	if err := fs.Parse([]string{"--version"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !flags.Version {
		t.Fatalf("expected version flag set")
	}
}

func TestHandlePrintsVersion(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	flags := AddHelpVersionFlags(fs, "", "")
	if err := fs.Parse([]string{"-v"}); err != nil {
		t.Fatalf("parse: %v", err)
	}

	var out strings.Builder
	if !flags.Handle(fs, "latera", &out) {
		t.Fatal("expected handle to request exit")
	}
	if !strings.HasPrefix(out.String(), "latera ") {
		t.Fatalf("unexpected version output %q", out.String())
	}
}

func TestHandleIgnoresPlainRuns(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	flags := AddHelpVersionFlags(fs, "", "")
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if flags.Handle(fs, "latera", io.Discard) {
		t.Fatal("expected no exit without help or version")
	}
}

func TestSetFlagsListsExplicitFlags(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.String("addr", "", "")
	fs.String("config", "", "")
	if err := fs.Parse([]string{"-addr", ":0"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	set := SetFlags(fs)
	if !set["addr"] || set["config"] {
		t.Fatalf("unexpected set flags %v", set)
	}
}
