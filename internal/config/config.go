// Package config holds runtime configuration: defaults, CLI flag parsing,
// and validation. Limit defaults match the reference probe behavior: memory
// capped at 20 MiB, duration and pixel area unbounded.
package config

import (
	"errors"

	"github.com/backmassage/gifprobe/internal/probe"
)

// ColorMode controls ANSI color output on stderr diagnostics.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"   // Enable colors when stderr is a TTY (default).
	ColorAlways ColorMode = "always" // Force colors on.
	ColorNever  ColorMode = "never"  // Disable colors entirely.
)

// StdinSentinel as the input path means "read the GIF from standard input".
const StdinSentinel = "-"

// Config holds all runtime settings. It is populated by [DefaultConfig] and
// then mutated by [ParseFlags] before being passed (by pointer) to packages
// that need it.
type Config struct {
	// Input is the GIF file path, or [StdinSentinel] for stdin.
	Input string

	// Limits. Zero means "unbounded" for MaxDuration and MaxPixels;
	// MaxMemory is always positive after Validate.
	MaxDuration uint64 // Cumulative delay ceiling, in GIF ticks (1/100 s).
	MaxPixels   uint64 // Canvas area ceiling (width * height).
	MaxMemory   uint64 // Decoder allocation ceiling in bytes. Default: 20 MiB.

	// Output shape.
	Pretty bool // Indent the JSON record instead of one line.

	// Display and logging.
	Verbose   bool
	ColorMode ColorMode // Default: "auto".
	LogFile   string    // Optional log file path.
}

// DefaultConfig returns a Config with all defaults. Used as the base before
// [ParseFlags] applies CLI overrides.
func DefaultConfig() Config {
	return Config{
		MaxMemory: probe.DefaultMemoryLimit,
		ColorMode: ColorAuto,
	}
}

// Validate checks that an input was given and the memory ceiling is usable.
func (c *Config) Validate() error {
	switch c.ColorMode {
	case ColorAuto, ColorAlways, ColorNever:
		// valid
	default:
		return errors.New("invalid color mode (use 'auto', 'always' or 'never')")
	}
	if c.Input == "" {
		return errors.New("no input (use -i <file.gif>, or -i - for stdin)")
	}
	if c.MaxMemory == 0 {
		return errors.New("memory limit must be greater than zero")
	}
	return nil
}
