// Package probe answers one question about a GIF stream — does it have
// *effectively* visible transparency — while accumulating frame count,
// total delay, maximum palette size, and canvas dimensions along the way.
//
// Only the first frame's pixels are ever decoded: transparency can be
// observed directly there, since nothing has been disposed yet. Every
// later frame is judged by its header alone, where the background-disposal
// heuristic suffices. Decoding all frames would give the same answer at
// many times the cost.
//
// The scan is single-threaded, forward-only, and all-or-nothing: any
// decoder failure aborts the probe with no partial result.
package probe

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/fumiama/imgsz"

	"github.com/backmassage/gifprobe/internal/gifwire"
)

// sniffLen is how many bytes of the stream head are peeked for format
// sniffing. Enough for every magic number imgsz knows.
const sniffLen = 64

// Scan probes the GIF stream r within the given limits. r may be
// non-seekable (e.g. stdin); the scan only ever reads forward.
func Scan(r io.Reader, lim Limits) (*Result, error) {
	br := bufio.NewReader(r)
	if err := sniffGIF(br); err != nil {
		return nil, err
	}

	mem := lim.MaxMemory
	if mem == 0 {
		mem = DefaultMemoryLimit
	}
	dec, err := gifwire.NewDecoder(br, gifwire.Options{MemoryLimit: mem})
	if err != nil {
		return nil, err
	}

	res := &Result{
		Width:     dec.Width(),
		Height:    dec.Height(),
		LoopCount: -1,
	}

	// Canvas area gate, strictly before any frame is requested.
	if area := uint64(res.Width) * uint64(res.Height); lim.MaxPixels > 0 && area > lim.MaxPixels {
		return nil, fmt.Errorf("%w: canvas %dx%d is %d pixels, limit is %d",
			ErrImageTooLarge, res.Width, res.Height, area, lim.MaxPixels)
	}

	if err := res.notePalette(dec.GlobalPalette()); err != nil {
		return nil, err
	}

	maxDuration := lim.MaxDuration
	if maxDuration == 0 {
		maxDuration = math.MaxUint64
	}

	// First frame: full decode, pixel-level transparency check.
	first, err := dec.DecodeFrame()
	if err != nil {
		return nil, err
	}
	if first == nil {
		// Zero frames. Unusual but structurally possible; report zeros.
		res.LoopCount = dec.LoopCount()
		return res, nil
	}
	res.Alpha = hasVisibleTransparency(first)
	if err := res.noteFrame(&first.FrameInfo); err != nil {
		return nil, err
	}

	// Later frames: header-only, disposal heuristic. The duration
	// ceiling is checked after accumulation, so the frame that crosses it
	// is still counted.
	for res.Duration < maxDuration {
		fi, err := dec.NextFrameInfo()
		if err != nil {
			return nil, err
		}
		if fi == nil {
			break
		}
		if revealsBackground(fi) {
			res.Alpha = true
		}
		if err := res.noteFrame(fi); err != nil {
			return nil, err
		}
	}

	res.LoopCount = dec.LoopCount()
	return res, nil
}

// noteFrame applies the per-frame bookkeeping shared by the full decode
// and the header-only path.
func (p *Result) noteFrame(fi *gifwire.FrameInfo) error {
	p.Frames++
	p.Duration += uint64(fi.Delay)
	return p.notePalette(fi.Palette)
}

// sniffGIF peeks at the stream head and verifies it is a GIF before the
// decoder commits to it, so a mislabeled PNG fails with a message naming
// the actual format instead of a low-level decode error.
func sniffGIF(br *bufio.Reader) error {
	head, err := br.Peek(sniffLen)
	if len(head) == 0 {
		// Distinguish "nothing there" from "the read itself failed".
		if err != nil && err != io.EOF {
			return fmt.Errorf("reading stream head: %w", err)
		}
		return fmt.Errorf("%w: empty input", ErrNotGIF)
	}
	_, format, err := imgsz.DecodeSize(bytes.NewReader(head))
	if err != nil {
		return ErrNotGIF
	}
	if format != "gif" {
		return fmt.Errorf("%w: input is %s", ErrNotGIF, format)
	}
	return nil
}
