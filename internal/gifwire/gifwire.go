// Package gifwire is a forward-only streaming decoder for the GIF block
// structure (GIF87a/GIF89a).
//
// It exists because the probe needs an operation no ready-made decoder
// offers: advancing past a frame by reading only its metadata (dimensions,
// delay, disposal, transparency flag, local palette) while skipping the LZW
// pixel data entirely. [Decoder.DecodeFrame] performs a full pixel decode;
// [Decoder.NextFrameInfo] performs the cheap header-only advance. The two
// can be mixed freely on one stream.
//
// The decoder never seeks, so it works identically on files and on piped
// stdin. It is strict about structure: unknown block and extension types
// are errors, and frame rectangles must fit inside the logical screen. A
// missing LZW end code is tolerated, since many real encoders omit it.
package gifwire

import (
	"errors"
	"fmt"
)

// Disposal is a frame's disposal method: what happens to the canvas after
// the frame's delay elapses. Values match the wire encoding.
type Disposal uint8

const (
	DisposalNone       Disposal = 0 // Unspecified.
	DisposalKeep       Disposal = 1 // Leave the frame in place.
	DisposalBackground Disposal = 2 // Restore the covered area to the background.
	DisposalPrevious   Disposal = 3 // Restore the covered area to the prior canvas.
)

// String returns the spec name of the disposal method.
func (d Disposal) String() string {
	switch d {
	case DisposalNone:
		return "none"
	case DisposalKeep:
		return "keep"
	case DisposalBackground:
		return "background"
	case DisposalPrevious:
		return "previous"
	}
	return fmt.Sprintf("disposal(%d)", uint8(d))
}

// FrameInfo is one frame's structural metadata, read without touching the
// pixel data. Valid only until the decoder advances again.
type FrameInfo struct {
	Left, Top     uint16
	Width, Height uint16

	Delay    uint16 // Display duration in ticks (1 tick = 10 ms).
	Disposal Disposal

	HasTransparency  bool  // A transparent color index was declared.
	TransparentIndex uint8 // Valid only when HasTransparency.

	Interlaced bool

	// Palette is the frame's local color table as raw RGB triplets, or nil
	// when the frame uses the global table. Kept raw so callers can count
	// entries as len/3 without trusting any declared size field.
	Palette []byte
}

// Frame is a fully decoded frame: metadata plus one palette index per pixel
// of the Width x Height frame rectangle, in row-major order.
type Frame struct {
	FrameInfo
	Pix []uint8
}

// Options configures a Decoder.
type Options struct {
	// MemoryLimit caps the pixel buffer a single DecodeFrame may allocate,
	// in bytes (one byte per pixel). Zero means no limit. Header-only
	// advances are unaffected; they allocate at most one 768-byte palette.
	MemoryLimit uint64
}

// ErrMemoryLimit is returned by DecodeFrame when the frame's pixel buffer
// would exceed Options.MemoryLimit.
var ErrMemoryLimit = errors.New("gifwire: frame pixel buffer exceeds memory limit")

var errNotEnough = errors.New("gifwire: not enough image data")
