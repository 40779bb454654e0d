package probe

import (
	"encoding/json"
	"errors"
	"math"
)

// DefaultMemoryLimit is the decoder allocation ceiling applied when
// Limits.MaxMemory is zero.
const DefaultMemoryLimit uint64 = 20 << 20 // 20 MiB

// Sentinel errors for conditions the probe itself detects. Decoder errors
// from gifwire pass through unchanged.
var (
	// ErrNotGIF is returned when the stream head does not sniff as a GIF.
	ErrNotGIF = errors.New("input does not look like a GIF")

	// ErrImageTooLarge is returned when the canvas area exceeds
	// Limits.MaxPixels; no frame has been requested at that point.
	ErrImageTooLarge = errors.New("image too large")

	// ErrPaletteOverflow is returned when a palette holds more triplets
	// than MaxColors can represent. Not reachable from well-formed GIF
	// data, which caps color tables at 256 entries.
	ErrPaletteOverflow = errors.New("palette size overflows result field")
)

// Limits bounds the work a single scan may perform. The zero value means
// unbounded duration and pixel area, with the default memory ceiling.
type Limits struct {
	MaxPixels   uint64 // Canvas area cap (width*height); 0 = unlimited.
	MaxMemory   uint64 // Decoder allocation cap in bytes; 0 = DefaultMemoryLimit.
	MaxDuration uint64 // Cumulative delay cap in ticks; 0 = unbounded.
}

// Result is the probe's accumulator and, once the scan finishes, its
// output record. JSON field order is the record's stable field order.
type Result struct {
	Alpha     bool   `json:"alpha"`      // Effectively visible transparency.
	MaxColors uint16 `json:"max_colors"` // Largest palette seen, in entries.
	Duration  uint64 `json:"duration"`   // Sum of visited frame delays, in ticks.
	Frames    uint64 `json:"frames"`     // Frames visited (may undercount if truncated).
	Width     uint16 `json:"width"`
	Height    uint16 `json:"height"`

	// LoopCount is the NETSCAPE2.0 animation loop count (-1 when absent).
	// Diagnostic only; not part of the record.
	LoopCount int `json:"-"`
}

// Record serializes the six-field result. Compact single-line form unless
// pretty is set. A pure projection: no validation happens here.
func (p *Result) Record(pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(p, "", "  ")
	}
	return json.Marshal(p)
}

// notePalette folds a raw RGB-triplet palette into MaxColors. The entry
// count is always the byte length divided by 3; declared size fields are
// never trusted, since the two can disagree in the wild.
func (p *Result) notePalette(pal []byte) error {
	if len(pal) == 0 {
		return nil
	}
	n := uint64(len(pal) / 3)
	if n > math.MaxUint16 {
		return ErrPaletteOverflow
	}
	if uint16(n) > p.MaxColors {
		p.MaxColors = uint16(n)
	}
	return nil
}
