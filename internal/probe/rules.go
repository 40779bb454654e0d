package probe

import (
	"bytes"

	"github.com/backmassage/gifprobe/internal/gifwire"
)

// hasVisibleTransparency reports whether a fully decoded frame contains at
// least one pixel that is actually transparent. A declared transparent
// index that never occurs in the pixel data does not count; trusting the
// header flag alone flags many GIFs that render fully opaque.
func hasVisibleTransparency(f *gifwire.Frame) bool {
	return f.HasTransparency && bytes.IndexByte(f.Pix, f.TransparentIndex) >= 0
}

// revealsBackground reports whether a frame's disposal exposes the canvas
// background, which in practice means transparency. The GIF89a spec says
// background disposal fills with the background color, but real encoders
// and viewers treat it as clearing to transparent, so we do too.
func revealsBackground(fi *gifwire.FrameInfo) bool {
	return fi.Disposal == gifwire.DisposalBackground && fi.Width > 0 && fi.Height > 0
}
