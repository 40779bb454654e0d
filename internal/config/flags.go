package config

// This file implements CLI flag parsing and help text.
// Boolean override flags (--color, --no-color) are captured separately and
// applied after Parse so Config defaults hold unless the user passes them.

import (
	"flag"
	"fmt"
	"os"
)

// ParseFlags parses args (usually os.Args[1:]) into cfg. On --help or
// --version it prints and exits. On error it returns non-nil (e.g. unknown
// flag, unexpected positional argument).
func ParseFlags(cfg *Config, version string, args []string) error {
	fs := flag.NewFlagSet("gifprobe", flag.ContinueOnError)
	fs.Usage = func() { printUsage(fs) }

	var over overrideFlags

	fs.StringVar(&cfg.Input, "input", "", "GIF file path, or - for stdin")
	fs.StringVar(&cfg.Input, "i", "", "Same as --input")

	fs.Uint64Var(&cfg.MaxDuration, "max-duration", 0, "Stop scanning once cumulative delay reaches this many ticks")
	fs.Uint64Var(&cfg.MaxDuration, "j", 0, "Same as --max-duration")
	fs.Uint64Var(&cfg.MaxPixels, "max-pixels", 0, "Fail if canvas width*height exceeds this")
	fs.Uint64Var(&cfg.MaxPixels, "d", 0, "Same as --max-pixels")
	fs.Uint64Var(&cfg.MaxMemory, "max-memory", cfg.MaxMemory, "Decoder allocation ceiling in bytes")
	fs.Uint64Var(&cfg.MaxMemory, "m", cfg.MaxMemory, "Same as --max-memory")

	fs.BoolVar(&cfg.Pretty, "pretty", false, "Indent the JSON record")

	fs.BoolVar(&over.forceColor, "color", false, "Force colored diagnostics")
	fs.BoolVar(&over.noColor, "no-color", false, "Disable colored diagnostics")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "Verbose diagnostics on stderr")
	fs.BoolVar(&cfg.Verbose, "v", false, "Same as --verbose")
	fs.StringVar(&cfg.LogFile, "log", "", "Append diagnostics to file")
	fs.StringVar(&cfg.LogFile, "l", "", "Same as --log")

	fs.BoolVar(&over.showVersion, "version", false, "Print version and exit")
	fs.BoolVar(&over.showVersion, "V", false, "Same as --version")
	fs.BoolVar(&over.showHelp, "help", false, "Show this help and exit")
	fs.BoolVar(&over.showHelp, "h", false, "Same as --help")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if over.showHelp {
		printUsage(fs)
		os.Exit(0)
	}
	if over.showVersion {
		fmt.Fprintln(os.Stdout, "gifprobe v"+version)
		os.Exit(0)
	}

	if over.noColor {
		cfg.ColorMode = ColorNever
	} else if over.forceColor {
		cfg.ColorMode = ColorAlways
	}

	// Convenience: a single bare positional argument is accepted as the
	// input when -i was not given, so "gifprobe file.gif" works.
	switch rest := fs.Args(); {
	case len(rest) == 1 && cfg.Input == "":
		cfg.Input = rest[0]
	case len(rest) > 0:
		return fmt.Errorf("unexpected argument %q", rest[0])
	}
	return nil
}

// overrideFlags holds boolean flags that are applied after Parse.
type overrideFlags struct {
	forceColor  bool
	noColor     bool
	showVersion bool
	showHelp    bool
}

// printUsage writes the help text to stderr. Column-aligned for readability.
func printUsage(fs *flag.FlagSet) {
	const col1 = 28 // width of "  -x, --long-name <arg>  "
	lines := []struct {
		flags string
		desc  string
	}{
		{"", "gifprobe — report effective GIF transparency without a full decode"},
		{"", ""},
		{"  gifprobe [OPTIONS] -i <file.gif | ->", ""},
		{"", ""},
		{"Input", ""},
		{"  -i, --input <path|->", "GIF file, or - to read from stdin"},
		{"", ""},
		{"Limits", ""},
		{"  -j, --max-duration <ticks>", "Stop scanning at this cumulative delay (1 tick = 10 ms)"},
		{"  -d, --max-pixels <n>", "Fail if canvas width*height exceeds n (before any decode)"},
		{"  -m, --max-memory <bytes>", "Decoder allocation ceiling (default: 20 MiB)"},
		{"", ""},
		{"Output", ""},
		{"  --pretty", "Indent the JSON record"},
		{"", ""},
		{"Display", ""},
		{"  --color", "Force colored diagnostics"},
		{"  --no-color", "Disable colored diagnostics"},
		{"  -v, --verbose", "Verbose diagnostics on stderr"},
		{"", ""},
		{"Utility", ""},
		{"  -l, --log <path>", "Append diagnostics to file"},
		{"  -V, --version", "Print version and exit"},
		{"  -h, --help", "Show this help and exit"},
	}

	for _, l := range lines {
		if l.flags == "" && l.desc == "" {
			fmt.Fprintln(os.Stderr)
			continue
		}
		if l.desc == "" {
			fmt.Fprintln(os.Stderr, l.flags)
			continue
		}
		if l.flags == "" {
			fmt.Fprintln(os.Stderr, l.desc)
			continue
		}
		padding := col1 - len(l.flags)
		if padding < 1 {
			padding = 1
		}
		fmt.Fprintf(os.Stderr, "%s%*s%s\n", l.flags, padding, "", l.desc)
	}
}
