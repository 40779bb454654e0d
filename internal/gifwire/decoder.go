package gifwire

// Wire-level parsing. Block grammar per the GIF89a specification,
// https://www.w3.org/Graphics/GIF/spec-gif89a.txt, Appendix B:
//
//	<GIF Data Stream> ::= Header <Logical Screen> <Data>* Trailer

import (
	"bufio"
	"compress/lzw"
	"fmt"
	"io"
)

// Section indicators.
const (
	sExtension       = 0x21
	sImageDescriptor = 0x2C
	sTrailer         = 0x3B
)

// Extension labels.
const (
	eText           = 0x01 // Plain Text
	eGraphicControl = 0xF9 // Graphic Control
	eComment        = 0xFE // Comment
	eApplication    = 0xFF // Application
)

// Packed-field masks.
const (
	fColorTable         = 1 << 7
	fInterlace          = 1 << 6
	fColorTableBitsMask = 7

	gcTransparentSet = 1 << 0
	gcDisposalMask   = 7 << 2
)

// reader is what the decoder needs from its input. ReadByte matters: it
// keeps the LZW layer from buffering past the end of a frame's data.
type reader interface {
	io.Reader
	io.ByteReader
}

// Decoder reads one GIF stream front to back. Construct with [NewDecoder],
// then call DecodeFrame or NextFrameInfo until either returns nil.
type Decoder struct {
	r    reader
	opts Options

	width, height uint16
	globalPalette []byte
	loopCount     int

	// Pending graphic control state, consumed by the next image descriptor.
	hasGC            bool
	delay            uint16
	disposal         Disposal
	hasTransparency  bool
	transparentIndex uint8

	sawTrailer bool

	tmp [1024]byte // must hold a 256-entry color table (768 bytes)
}

// NewDecoder reads the GIF signature, logical screen descriptor, and global
// color table (when present) from r. It fails on anything that is not a
// well-formed GIF preamble.
func NewDecoder(r io.Reader, opts Options) (*Decoder, error) {
	d := &Decoder{opts: opts, loopCount: -1}
	if rr, ok := r.(reader); ok {
		d.r = rr
	} else {
		d.r = bufio.NewReader(r)
	}
	if err := d.readHeaderAndScreenDescriptor(); err != nil {
		return nil, err
	}
	return d, nil
}

// Width returns the canvas width from the logical screen descriptor.
func (d *Decoder) Width() uint16 { return d.width }

// Height returns the canvas height from the logical screen descriptor.
func (d *Decoder) Height() uint16 { return d.height }

// GlobalPalette returns the global color table as raw RGB triplets, or nil
// when the stream has none.
func (d *Decoder) GlobalPalette() []byte { return d.globalPalette }

// LoopCount returns the NETSCAPE2.0 animation loop count, or -1 when no
// such extension has been seen yet. It may change as frames are consumed,
// since the extension can appear anywhere in the stream.
func (d *Decoder) LoopCount() int { return d.loopCount }

// DecodeFrame advances to the next frame and fully decodes its pixels.
// It returns (nil, nil) once the trailer has been reached.
func (d *Decoder) DecodeFrame() (*Frame, error) {
	return d.nextFrame(true)
}

// NextFrameInfo advances to the next frame reading only its metadata; the
// LZW pixel data is skipped without decompression. It returns (nil, nil)
// once the trailer has been reached.
func (d *Decoder) NextFrameInfo() (*FrameInfo, error) {
	f, err := d.nextFrame(false)
	if f == nil || err != nil {
		return nil, err
	}
	return &f.FrameInfo, nil
}

// nextFrame walks blocks until an image descriptor (one frame), the
// trailer, or an error. full selects pixel decode vs. skip.
func (d *Decoder) nextFrame(full bool) (*Frame, error) {
	if d.sawTrailer {
		return nil, nil
	}
	for {
		c, err := d.readByte()
		if err != nil {
			return nil, fmt.Errorf("gifwire: reading block: %w", err)
		}
		switch c {
		case sExtension:
			if err := d.readExtension(); err != nil {
				return nil, err
			}
		case sImageDescriptor:
			return d.readFrame(full)
		case sTrailer:
			d.sawTrailer = true
			return nil, nil
		default:
			return nil, fmt.Errorf("gifwire: unknown block type: 0x%.2x", c)
		}
	}
}

func (d *Decoder) readHeaderAndScreenDescriptor() error {
	if err := d.readFull(d.tmp[:13]); err != nil {
		return fmt.Errorf("gifwire: reading header: %w", err)
	}
	vers := string(d.tmp[:6])
	if vers != "GIF87a" && vers != "GIF89a" {
		return fmt.Errorf("gifwire: can't recognize format %q", vers)
	}
	d.width = uint16(d.tmp[6]) | uint16(d.tmp[7])<<8
	d.height = uint16(d.tmp[8]) | uint16(d.tmp[9])<<8
	if d.tmp[10]&fColorTable != 0 {
		p, err := d.readColorTable(d.tmp[10])
		if err != nil {
			return err
		}
		d.globalPalette = p
	}
	// d.tmp[11] is the background color index and d.tmp[12] the pixel
	// aspect ratio; neither affects frame metadata.
	return nil
}

// readColorTable reads a color table whose size is encoded in the low bits
// of fields, returning the raw RGB triplets in a fresh slice.
func (d *Decoder) readColorTable(fields byte) ([]byte, error) {
	n := 1 << (1 + uint(fields&fColorTableBitsMask))
	if err := d.readFull(d.tmp[:3*n]); err != nil {
		return nil, fmt.Errorf("gifwire: reading color table: %w", err)
	}
	p := make([]byte, 3*n)
	copy(p, d.tmp[:3*n])
	return p, nil
}

func (d *Decoder) readExtension() error {
	ext, err := d.readByte()
	if err != nil {
		return fmt.Errorf("gifwire: reading extension: %w", err)
	}
	size := 0
	switch ext {
	case eGraphicControl:
		return d.readGraphicControl()
	case eText:
		size = 13
	case eComment:
		// nothing to do but skip the data sub-blocks.
	case eApplication:
		b, err := d.readByte()
		if err != nil {
			return fmt.Errorf("gifwire: reading extension: %w", err)
		}
		// The spec requires size be 11, but Adobe sometimes uses 10.
		size = int(b)
	default:
		return fmt.Errorf("gifwire: unknown extension 0x%.2x", ext)
	}
	if size > 0 {
		if err := d.readFull(d.tmp[:size]); err != nil {
			return fmt.Errorf("gifwire: reading extension: %w", err)
		}
	}

	// Application Extension with "NETSCAPE2.0" as string and 1 in data
	// carries the animation loop count.
	if ext == eApplication && string(d.tmp[:size]) == "NETSCAPE2.0" {
		n, err := d.readBlock()
		if err != nil {
			return fmt.Errorf("gifwire: reading extension: %w", err)
		}
		if n == 0 {
			return nil
		}
		if n == 3 && d.tmp[0] == 1 {
			d.loopCount = int(d.tmp[1]) | int(d.tmp[2])<<8
		}
	}
	for {
		n, err := d.readBlock()
		if err != nil {
			return fmt.Errorf("gifwire: reading extension: %w", err)
		}
		if n == 0 {
			return nil
		}
	}
}

// readGraphicControl records delay, disposal, and transparency for the next
// image descriptor. When several appear before a descriptor, the last wins.
func (d *Decoder) readGraphicControl() error {
	if err := d.readFull(d.tmp[:6]); err != nil {
		return fmt.Errorf("gifwire: can't read graphic control: %w", err)
	}
	if d.tmp[0] != 4 {
		return fmt.Errorf("gifwire: invalid graphic control block size: %d", d.tmp[0])
	}
	if d.tmp[5] != 0 {
		return fmt.Errorf("gifwire: invalid graphic control block terminator: %d", d.tmp[5])
	}
	d.hasGC = true
	d.disposal = Disposal((d.tmp[1] & gcDisposalMask) >> 2)
	d.hasTransparency = d.tmp[1]&gcTransparentSet != 0
	d.delay = uint16(d.tmp[2]) | uint16(d.tmp[3])<<8
	if d.hasTransparency {
		d.transparentIndex = d.tmp[4]
	}
	return nil
}

// readFrame parses an image descriptor (and local color table), then either
// decodes or skips the pixel data. The pending graphic control state is
// consumed either way.
func (d *Decoder) readFrame(full bool) (*Frame, error) {
	f := &Frame{}
	if d.hasGC {
		f.Delay = d.delay
		f.Disposal = d.disposal
		f.HasTransparency = d.hasTransparency
		f.TransparentIndex = d.transparentIndex
		d.hasGC = false
	}

	if err := d.readFull(d.tmp[:9]); err != nil {
		return nil, fmt.Errorf("gifwire: can't read image descriptor: %w", err)
	}
	f.Left = uint16(d.tmp[0]) | uint16(d.tmp[1])<<8
	f.Top = uint16(d.tmp[2]) | uint16(d.tmp[3])<<8
	f.Width = uint16(d.tmp[4]) | uint16(d.tmp[5])<<8
	f.Height = uint16(d.tmp[6]) | uint16(d.tmp[7])<<8
	fields := d.tmp[8]
	f.Interlaced = fields&fInterlace != 0

	// The GIF89a spec, Section 20 (Image Descriptor): "Each image must fit
	// within the boundaries of the Logical Screen". Left/Top are unsigned,
	// so only the far edges need checking.
	if uint32(f.Left)+uint32(f.Width) > uint32(d.width) ||
		uint32(f.Top)+uint32(f.Height) > uint32(d.height) {
		return nil, fmt.Errorf("gifwire: frame bounds %dx%d+%d+%d larger than canvas %dx%d",
			f.Width, f.Height, f.Left, f.Top, d.width, d.height)
	}

	if fields&fColorTable != 0 {
		p, err := d.readColorTable(fields)
		if err != nil {
			return nil, err
		}
		f.Palette = p
	}

	litWidth, err := d.readByte()
	if err != nil {
		return nil, fmt.Errorf("gifwire: reading image data: %w", err)
	}
	if litWidth < 2 || litWidth > 8 {
		return nil, fmt.Errorf("gifwire: pixel size in decode out of range: %d", litWidth)
	}

	if !full {
		if err := d.skipImageData(); err != nil {
			return nil, err
		}
		return f, nil
	}
	if err := d.decodeImageData(f, int(litWidth)); err != nil {
		return nil, err
	}
	return f, nil
}

// skipImageData discards the LZW data sub-blocks of the current frame
// without decompressing them.
func (d *Decoder) skipImageData() error {
	for {
		n, err := d.readBlock()
		if err != nil {
			return fmt.Errorf("gifwire: skipping image data: %w", err)
		}
		if n == 0 {
			return nil
		}
	}
}

// decodeImageData LZW-decompresses exactly Width*Height palette indices
// into f.Pix, then drains whatever remains of the sub-block chain. A
// missing LZW end code is not an error; extra trailing data is ignored.
func (d *Decoder) decodeImageData(f *Frame, litWidth int) error {
	need := uint64(f.Width) * uint64(f.Height)
	if d.opts.MemoryLimit > 0 && need > d.opts.MemoryLimit {
		return fmt.Errorf("%w: frame needs %d bytes, limit is %d",
			ErrMemoryLimit, need, d.opts.MemoryLimit)
	}

	f.Pix = make([]uint8, need)
	br := &blockReader{r: d.r}
	lzwr := lzw.NewReader(br, lzw.LSB, litWidth)
	defer lzwr.Close()
	if _, err := io.ReadFull(lzwr, f.Pix); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return errNotEnough
		}
		return fmt.Errorf("gifwire: decoding image data: %w", err)
	}

	// Consume the rest of the sub-block chain, through the terminator, so
	// the stream is positioned at the next block.
	for {
		if _, err := br.Read(d.tmp[:]); err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("gifwire: draining image data: %w", err)
		}
	}

	if f.Interlaced {
		uninterlace(f)
	}
	return nil
}

// interlaceScan defines the ordering for one pass of the interlace scheme.
type interlaceScan struct {
	skip, start int
}

var interlacing = []interlaceScan{
	{8, 0}, // Every 8th row, starting with row 0.
	{8, 4}, // Every 8th row, starting with row 4.
	{4, 2}, // Every 4th row, starting with row 2.
	{2, 1}, // Every 2nd row, starting with row 1.
}

// uninterlace rearranges f.Pix into sequential scan-line order.
func uninterlace(f *Frame) {
	dx, dy := int(f.Width), int(f.Height)
	nPix := make([]uint8, dx*dy)
	offset := 0
	for _, pass := range interlacing {
		nOffset := pass.start * dx
		for y := pass.start; y < dy; y += pass.skip {
			copy(nPix[nOffset:nOffset+dx], f.Pix[offset:offset+dx])
			offset += dx
			nOffset += dx * pass.skip
		}
	}
	f.Pix = nPix
}

// readBlock reads one data sub-block (a length byte then that many bytes)
// into d.tmp, returning its length. Length zero is the block terminator.
func (d *Decoder) readBlock() (int, error) {
	n, err := d.readByte()
	if n == 0 || err != nil {
		return 0, err
	}
	if err := d.readFull(d.tmp[:n]); err != nil {
		return 0, err
	}
	return int(n), nil
}

func (d *Decoder) readByte() (byte, error) {
	b, err := d.r.ReadByte()
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return b, err
}

func (d *Decoder) readFull(b []byte) error {
	_, err := io.ReadFull(d.r, b)
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return err
}

// blockReader re-joins the (n, n bytes) sub-block chain of a frame's image
// data into one contiguous stream for the LZW decoder. It reports io.EOF at
// the zero-length terminator. Implementing io.ByteReader is load-bearing:
// it keeps compress/lzw from wrapping us in a bufio.Reader that would read
// past the terminator into the next block.
type blockReader struct {
	r     reader
	slice []byte
	err   error
	tmp   [256]byte
}

func (b *blockReader) fill() {
	if b.err != nil {
		return
	}
	var blockLen uint8
	blockLen, b.err = b.r.ReadByte()
	if b.err != nil {
		if b.err == io.EOF {
			b.err = io.ErrUnexpectedEOF
		}
		return
	}
	if blockLen == 0 {
		b.err = io.EOF
		return
	}
	b.slice = b.tmp[:blockLen]
	if _, err := io.ReadFull(b.r, b.slice); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		b.err = err
		b.slice = nil
	}
}

func (b *blockReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, b.err
	}
	if len(b.slice) == 0 {
		b.fill()
		if b.err != nil {
			return 0, b.err
		}
	}
	n := copy(p, b.slice)
	b.slice = b.slice[n:]
	return n, nil
}

func (b *blockReader) ReadByte() (byte, error) {
	if len(b.slice) == 0 {
		b.fill()
		if b.err != nil {
			return 0, b.err
		}
	}
	c := b.slice[0]
	b.slice = b.slice[1:]
	return c, nil
}
