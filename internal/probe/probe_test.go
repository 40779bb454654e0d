package probe

import (
	"bytes"
	"compress/lzw"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"strings"
	"testing"

	"github.com/backmassage/gifprobe/internal/gifwire"
)

// anim assembles GIF byte streams for probe tests. Frames are described
// declaratively so each test reads as a scenario, not as wire plumbing.
type anim struct {
	width, height int
	globalColors  int // global palette entry count, 0 for none
	loop          int // NETSCAPE loop count, -1 for none
	frames        []animFrame
}

type animFrame struct {
	width, height int
	delay         int
	disposal      gifwire.Disposal
	transparent   int // transparent index, -1 for none
	localColors   int // local palette entry count, 0 for none
	pix           []byte
}

func (a anim) bytes(t *testing.T) []byte {
	t.Helper()
	var b bytes.Buffer
	b.WriteString("GIF89a")
	writeUint16(&b, a.width)
	writeUint16(&b, a.height)
	if a.globalColors > 0 {
		b.WriteByte(0x80 | tableBits(a.globalColors))
	} else {
		b.WriteByte(0)
	}
	b.WriteByte(0)
	b.WriteByte(0)
	b.Write(rgbTriplets(a.globalColors))

	if a.loop >= 0 {
		b.Write([]byte{0x21, 0xFF, 11})
		b.WriteString("NETSCAPE2.0")
		b.Write([]byte{3, 1, byte(a.loop), byte(a.loop >> 8), 0})
	}

	for _, f := range a.frames {
		flags := byte(f.disposal) << 2
		idx := byte(0)
		if f.transparent >= 0 {
			flags |= 1
			idx = byte(f.transparent)
		}
		b.Write([]byte{0x21, 0xF9, 4, flags, byte(f.delay), byte(f.delay >> 8), idx, 0})

		b.WriteByte(0x2C)
		writeUint16(&b, 0)
		writeUint16(&b, 0)
		writeUint16(&b, f.width)
		writeUint16(&b, f.height)
		if f.localColors > 0 {
			b.WriteByte(0x80 | tableBits(f.localColors))
			b.Write(rgbTriplets(f.localColors))
		} else {
			b.WriteByte(0)
		}

		pix := f.pix
		if pix == nil {
			pix = make([]byte, f.width*f.height)
		}
		b.WriteByte(8)
		var lz bytes.Buffer
		w := lzw.NewWriter(&lz, lzw.LSB, 8)
		w.Write(pix)
		w.Close()
		data := lz.Bytes()
		for len(data) > 0 {
			n := len(data)
			if n > 255 {
				n = 255
			}
			b.WriteByte(byte(n))
			b.Write(data[:n])
			data = data[n:]
		}
		b.WriteByte(0)
	}
	b.WriteByte(0x3B)
	return b.Bytes()
}

func writeUint16(b *bytes.Buffer, v int) {
	b.WriteByte(byte(v))
	b.WriteByte(byte(v >> 8))
}

func tableBits(n int) byte {
	b := byte(0)
	for m := n; m > 2; m >>= 1 {
		b++
	}
	return b
}

func rgbTriplets(n int) []byte {
	p := make([]byte, 3*n)
	for i := range p {
		p[i] = byte(i)
	}
	return p
}

func mustScan(t *testing.T, raw []byte, lim Limits) *Result {
	t.Helper()
	res, err := Scan(bytes.NewReader(raw), lim)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	return res
}

func TestScan_OpaqueSingleFrame(t *testing.T) {
	raw := anim{
		width: 4, height: 4, globalColors: 4, loop: -1,
		frames: []animFrame{
			{width: 4, height: 4, delay: 12, transparent: -1},
		},
	}.bytes(t)

	res := mustScan(t, raw, Limits{})
	if res.Alpha {
		t.Error("Alpha = true for fully opaque frame")
	}
	if res.Frames != 1 || res.Duration != 12 {
		t.Errorf("frames/duration = %d/%d, want 1/12", res.Frames, res.Duration)
	}
	if res.MaxColors != 4 {
		t.Errorf("MaxColors = %d, want 4", res.MaxColors)
	}
	if res.Width != 4 || res.Height != 4 {
		t.Errorf("canvas = %dx%d", res.Width, res.Height)
	}
}

func TestScan_TransparentIndexUsed(t *testing.T) {
	raw := anim{
		width: 2, height: 2, globalColors: 4, loop: -1,
		frames: []animFrame{
			{width: 2, height: 2, transparent: 3, pix: []byte{0, 1, 3, 2}},
		},
	}.bytes(t)

	if res := mustScan(t, raw, Limits{}); !res.Alpha {
		t.Error("Alpha = false although the transparent index occurs in the pixels")
	}
}

func TestScan_TransparentIndexDeclaredButUnused(t *testing.T) {
	raw := anim{
		width: 2, height: 2, globalColors: 4, loop: -1,
		frames: []animFrame{
			{width: 2, height: 2, transparent: 3, pix: []byte{0, 1, 2, 0}},
		},
	}.bytes(t)

	if res := mustScan(t, raw, Limits{}); res.Alpha {
		t.Error("Alpha = true although no pixel uses the declared transparent index")
	}
}

func TestScan_OnePixelTransparent(t *testing.T) {
	raw := anim{
		width: 1, height: 1, globalColors: 2, loop: -1,
		frames: []animFrame{
			{width: 1, height: 1, transparent: 0, pix: []byte{0}},
		},
	}.bytes(t)

	if res := mustScan(t, raw, Limits{}); !res.Alpha {
		t.Error("Alpha = false for a 1x1 transparent pixel")
	}
}

func TestScan_BackgroundDisposalLaterFrame(t *testing.T) {
	// First frame opaque. A later frame disposed to background is taken as
	// transparency without decoding its pixels.
	raw := anim{
		width: 4, height: 4, globalColors: 4, loop: -1,
		frames: []animFrame{
			{width: 4, height: 4, delay: 10, transparent: -1},
			{width: 2, height: 2, delay: 10, transparent: -1, disposal: gifwire.DisposalBackground},
			{width: 4, height: 4, delay: 10, transparent: -1},
		},
	}.bytes(t)

	res := mustScan(t, raw, Limits{})
	if !res.Alpha {
		t.Error("Alpha = false despite background disposal on a later frame")
	}
	if res.Frames != 3 || res.Duration != 30 {
		t.Errorf("frames/duration = %d/%d, want 3/30", res.Frames, res.Duration)
	}
}

func TestScan_BackgroundDisposalFirstFrameHeaderIgnored(t *testing.T) {
	// On the first frame only actual pixels count; its disposal mode is
	// about what happens after it, so it alone must not set Alpha.
	raw := anim{
		width: 2, height: 2, globalColors: 4, loop: -1,
		frames: []animFrame{
			{width: 2, height: 2, transparent: -1, disposal: gifwire.DisposalBackground},
		},
	}.bytes(t)

	if res := mustScan(t, raw, Limits{}); res.Alpha {
		t.Error("Alpha = true from first frame disposal alone")
	}
}

func TestScan_LocalPaletteWins(t *testing.T) {
	raw := anim{
		width: 4, height: 4, globalColors: 16, loop: -1,
		frames: []animFrame{
			{width: 4, height: 4, transparent: -1},
			{width: 4, height: 4, transparent: -1, localColors: 256},
		},
	}.bytes(t)

	if res := mustScan(t, raw, Limits{}); res.MaxColors != 256 {
		t.Errorf("MaxColors = %d, want 256 from the local palette", res.MaxColors)
	}
}

func TestScan_DurationCeiling(t *testing.T) {
	frames := make([]animFrame, 40)
	for i := range frames {
		frames[i] = animFrame{width: 1, height: 1, delay: 7, transparent: -1}
	}
	raw := anim{width: 480, height: 270, globalColors: 256, loop: -1, frames: frames}.bytes(t)

	// Unlimited: all 40 frames, 280 ticks.
	res := mustScan(t, raw, Limits{})
	if res.Frames != 40 || res.Duration != 280 {
		t.Fatalf("frames/duration = %d/%d, want 40/280", res.Frames, res.Duration)
	}

	// Ceiling at 100 ticks: the scan stops after the crossing frame, which
	// is still counted. 15 frames * 7 ticks = 105.
	res = mustScan(t, raw, Limits{MaxDuration: 100})
	if res.Frames != 15 || res.Duration != 105 {
		t.Errorf("frames/duration = %d/%d, want 15/105", res.Frames, res.Duration)
	}
	if res.Frames >= 40 {
		t.Error("truncated scan visited every frame")
	}
}

func TestScan_PixelAreaCeiling(t *testing.T) {
	raw := anim{
		width: 480, height: 270, globalColors: 4, loop: -1,
		frames: []animFrame{
			{width: 480, height: 270, transparent: -1},
		},
	}.bytes(t)

	_, err := Scan(bytes.NewReader(raw), Limits{MaxPixels: 100000})
	if !errors.Is(err, ErrImageTooLarge) {
		t.Errorf("error = %v, want ErrImageTooLarge", err)
	}

	// At exactly the canvas area the scan proceeds.
	if res := mustScan(t, raw, Limits{MaxPixels: 480 * 270}); res.Frames != 1 {
		t.Errorf("Frames = %d, want 1", res.Frames)
	}
}

func TestScan_MemoryCeiling(t *testing.T) {
	frames := []animFrame{
		{width: 2, height: 2, transparent: -1},
		{width: 100, height: 100, transparent: -1},
	}
	raw := anim{width: 100, height: 100, globalColors: 4, loop: -1, frames: frames}.bytes(t)

	// A tiny ceiling fails on the first frame, which must be decoded.
	_, err := Scan(bytes.NewReader(raw), Limits{MaxMemory: 2})
	if !errors.Is(err, gifwire.ErrMemoryLimit) {
		t.Errorf("error = %v, want gifwire.ErrMemoryLimit", err)
	}

	// A ceiling big enough for the first frame succeeds: later frames are
	// header-only and never allocate.
	res := mustScan(t, raw, Limits{MaxMemory: 16})
	if res.Frames != 2 {
		t.Errorf("Frames = %d, want 2", res.Frames)
	}
}

func TestScan_NotGIF(t *testing.T) {
	t.Run("png input", func(t *testing.T) {
		var buf bytes.Buffer
		if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 1))); err != nil {
			t.Fatalf("png.Encode: %v", err)
		}
		_, err := Scan(&buf, Limits{})
		if !errors.Is(err, ErrNotGIF) {
			t.Errorf("error = %v, want ErrNotGIF", err)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := Scan(strings.NewReader(""), Limits{})
		if !errors.Is(err, ErrNotGIF) {
			t.Errorf("error = %v, want ErrNotGIF", err)
		}
	})

	t.Run("garbage input", func(t *testing.T) {
		_, err := Scan(strings.NewReader("certainly not an image"), Limits{})
		if !errors.Is(err, ErrNotGIF) {
			t.Errorf("error = %v, want ErrNotGIF", err)
		}
	})
}

// brokenReader fails every read with a fixed error.
type brokenReader struct{ err error }

func (r brokenReader) Read([]byte) (int, error) { return 0, r.err }

func TestScan_ReadErrorSurfaces(t *testing.T) {
	// An input that fails outright is an I/O problem, not a format problem;
	// the underlying error must come back, not a not-a-GIF verdict.
	readErr := errors.New("device unplugged")
	_, err := Scan(brokenReader{err: readErr}, Limits{})
	if !errors.Is(err, readErr) {
		t.Errorf("error = %v, want wrapped %v", err, readErr)
	}
	if errors.Is(err, ErrNotGIF) {
		t.Errorf("read failure misreported as ErrNotGIF: %v", err)
	}
}

func TestScan_LoopCount(t *testing.T) {
	raw := anim{
		width: 1, height: 1, globalColors: 2, loop: 5,
		frames: []animFrame{
			{width: 1, height: 1, transparent: -1},
		},
	}.bytes(t)

	if res := mustScan(t, raw, Limits{}); res.LoopCount != 5 {
		t.Errorf("LoopCount = %d, want 5", res.LoopCount)
	}
}

func TestScan_StdlibEncodedAnimation(t *testing.T) {
	pal := color.Palette{
		color.RGBA{0, 0, 0, 255},
		color.RGBA{255, 255, 255, 255},
	}
	g := &gif.GIF{}
	for i := 0; i < 3; i++ {
		m := image.NewPaletted(image.Rect(0, 0, 8, 8), pal)
		g.Image = append(g.Image, m)
		g.Delay = append(g.Delay, 20)
		g.Disposal = append(g.Disposal, gif.DisposalNone)
	}
	g.Disposal[2] = gif.DisposalBackground
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, g); err != nil {
		t.Fatalf("EncodeAll: %v", err)
	}

	res, err := Scan(&buf, Limits{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !res.Alpha {
		t.Error("Alpha = false despite a background-disposed later frame")
	}
	if res.Frames != 3 || res.Duration != 60 {
		t.Errorf("frames/duration = %d/%d, want 3/60", res.Frames, res.Duration)
	}
	if res.Width != 8 || res.Height != 8 {
		t.Errorf("canvas = %dx%d, want 8x8", res.Width, res.Height)
	}
}

func TestRecord_FieldOrder(t *testing.T) {
	frames := make([]animFrame, 40)
	for i := range frames {
		d := 6
		if i < 27 {
			d = 7
		}
		frames[i] = animFrame{width: 1, height: 1, delay: d, transparent: -1}
	}
	raw := anim{width: 480, height: 270, globalColors: 256, loop: -1, frames: frames}.bytes(t)

	res := mustScan(t, raw, Limits{})
	out, err := res.Record(false)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	want := `{"alpha":false,"max_colors":256,"duration":267,"frames":40,"width":480,"height":270}`
	if string(out) != want {
		t.Errorf("Record =\n  %s\nwant\n  %s", out, want)
	}
}

func TestRecord_Pretty(t *testing.T) {
	res := &Result{MaxColors: 2, Frames: 1, Width: 1, Height: 1}
	out, err := res.Record(true)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !bytes.Contains(out, []byte("\n")) || !bytes.Contains(out, []byte(`"alpha": false`)) {
		t.Errorf("pretty Record lacks indentation:\n%s", out)
	}
}

func TestNotePalette(t *testing.T) {
	tests := []struct {
		name string
		pals [][]byte
		want uint16
	}{
		{"nil palette leaves zero", [][]byte{nil}, 0},
		{"entry count is bytes over three", [][]byte{make([]byte, 3*256)}, 256},
		{"maximum wins", [][]byte{make([]byte, 3*4), make([]byte, 3*64), make([]byte, 3*16)}, 64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var res Result
			for _, pal := range tt.pals {
				if err := res.notePalette(pal); err != nil {
					t.Fatalf("notePalette: %v", err)
				}
			}
			if res.MaxColors != tt.want {
				t.Errorf("MaxColors = %d, want %d", res.MaxColors, tt.want)
			}
		})
	}
}

func TestRules(t *testing.T) {
	t.Run("visible transparency needs flag and pixel", func(t *testing.T) {
		f := &gifwire.Frame{
			FrameInfo: gifwire.FrameInfo{HasTransparency: true, TransparentIndex: 7},
			Pix:       []byte{1, 2, 7, 3},
		}
		if !hasVisibleTransparency(f) {
			t.Error("want true when the index occurs")
		}
		f.Pix = []byte{1, 2, 3}
		if hasVisibleTransparency(f) {
			t.Error("want false when the index never occurs")
		}
		f.Pix = []byte{7}
		f.HasTransparency = false
		if hasVisibleTransparency(f) {
			t.Error("want false without the header flag")
		}
	})

	t.Run("background reveal needs nonzero area", func(t *testing.T) {
		fi := &gifwire.FrameInfo{Disposal: gifwire.DisposalBackground, Width: 2, Height: 2}
		if !revealsBackground(fi) {
			t.Error("want true for background disposal with area")
		}
		fi.Width = 0
		if revealsBackground(fi) {
			t.Error("want false for zero-width frame")
		}
		fi.Width, fi.Disposal = 2, gifwire.DisposalKeep
		if revealsBackground(fi) {
			t.Error("want false for keep disposal")
		}
	})
}

func TestScan_ZeroFrames(t *testing.T) {
	raw := anim{width: 8, height: 8, globalColors: 16, loop: -1}.bytes(t)
	res := mustScan(t, raw, Limits{})
	if res.Frames != 0 || res.Duration != 0 || res.Alpha {
		t.Errorf("zero-frame result = %+v", res)
	}
	if res.MaxColors != 16 {
		t.Errorf("MaxColors = %d, want 16 from the global palette", res.MaxColors)
	}
	if res.Width != 8 || res.Height != 8 {
		t.Errorf("canvas = %dx%d", res.Width, res.Height)
	}
}
