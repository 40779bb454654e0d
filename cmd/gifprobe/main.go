// Command gifprobe is the CLI entrypoint for the GIF transparency probe.
//
// It reports whether a GIF *actually* has transparent pixels — not merely a
// declared transparent index — plus frame count, total delay, maximum
// palette size, and canvas dimensions, decoding only the first frame in
// full. The result is a single JSON record on stdout; all diagnostics go
// to stderr. Any failure means no record and a non-zero exit.
package main

import (
	"fmt"
	"os"

	"github.com/backmassage/gifprobe/internal/config"
	"github.com/backmassage/gifprobe/internal/display"
	"github.com/backmassage/gifprobe/internal/logging"
	"github.com/backmassage/gifprobe/internal/probe"
)

// version and commit are injected at build time via -ldflags.
var (
	version = "1.0.0"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Phase 1: Bootstrap — the logger doesn't exist yet, so errors go
	// directly to stderr via fmt. Once NewLogger succeeds, all diagnostics
	// go through the logger for consistent formatting and log-file capture.
	cfg := config.DefaultConfig()
	if err := config.ParseFlags(&cfg, version, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "gifprobe: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "gifprobe: %v\n", err)
		return 1
	}

	log, err := logging.NewLogger(&cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gifprobe: %v\n", err)
		return 1
	}
	defer log.Close()

	// Phase 2: Open the input. "-" selects stdin; the scan never seeks,
	// so files and pipes share one code path.
	in := os.Stdin
	name := "stdin"
	if cfg.Input != config.StdinSentinel {
		name = cfg.Input
		f, err := os.Open(cfg.Input)
		if err != nil {
			log.Error("Cannot open input: %v", err)
			return 1
		}
		defer f.Close()
		in = f
	}

	log.Debug("gifprobe v%s (%s)", version, commit)
	log.Debug("Memory ceiling: %s", display.FormatBytes(cfg.MaxMemory))
	if cfg.MaxDuration > 0 {
		log.Debug("Duration ceiling: %s", display.FormatTicks(cfg.MaxDuration))
	}
	if cfg.MaxPixels > 0 {
		log.Debug("Pixel ceiling: %d px", cfg.MaxPixels)
	}

	// Phase 3: Scan. Any failure is fatal; there is no partial record.
	res, err := probe.Scan(in, probe.Limits{
		MaxPixels:   cfg.MaxPixels,
		MaxMemory:   cfg.MaxMemory,
		MaxDuration: cfg.MaxDuration,
	})
	if err != nil {
		log.Error("%s: %v", name, err)
		return 1
	}

	log.Debug("Scanned %d frame(s), %s of animation, alpha=%v",
		res.Frames, display.FormatTicks(res.Duration), res.Alpha)
	if res.LoopCount >= 0 {
		log.Debug("Loop count: %d", res.LoopCount)
	}

	// Phase 4: Emit the record. stdout carries nothing else.
	out, err := res.Record(cfg.Pretty)
	if err != nil {
		log.Error("%s: cannot serialize result: %v", name, err)
		return 1
	}
	fmt.Println(string(out))
	return 0
}
