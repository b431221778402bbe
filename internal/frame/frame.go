// Package frame defines the decoded video frame shared by the decoder, the
// frame cache and the preview handlers.
package frame

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// BytesPerPixel is the size of one RGBA8 pixel.
const BytesPerPixel = 4

// Frame is an immutable RGBA8 picture taken at a point in a source video.
// Pixels are row-major with no row padding. Copying a Frame is cheap and
// safe: the pixel buffer is never written after construction and every
// accessor hands out copies.
type Frame struct {
	width     uint32
	height    uint32
	pix       []byte
	timestamp float64
}

// New builds a frame from an RGBA8 buffer. The buffer is copied.
func New(width, height uint32, pixels []byte, timestamp float64) (Frame, error) {
	want := int(width) * int(height) * BytesPerPixel
	if len(pixels) != want {
		return Frame{}, fmt.Errorf("frame %dx%d needs %d bytes, got %d", width, height, want, len(pixels))
	}
	pix := make([]byte, want)
	copy(pix, pixels)
	return Frame{width: width, height: height, pix: pix, timestamp: timestamp}, nil
}

// Blank returns a zeroed (transparent black) frame.
func Blank(width, height uint32, timestamp float64) Frame {
	return Frame{
		width:     width,
		height:    height,
		pix:       make([]byte, int(width)*int(height)*BytesPerPixel),
		timestamp: timestamp,
	}
}

// FromImage converts any image into a frame, normalising it to
// non-premultiplied RGBA8 with a tight stride.
func FromImage(img image.Image, timestamp float64) Frame {
	nrgba := imaging.Clone(img)
	b := nrgba.Bounds()
	return Frame{
		width:     uint32(b.Dx()),
		height:    uint32(b.Dy()),
		pix:       nrgba.Pix,
		timestamp: timestamp,
	}
}

// Width in pixels.
func (f Frame) Width() uint32 { return f.width }

// Height in pixels.
func (f Frame) Height() uint32 { return f.height }

// Timestamp in seconds from the start of the source.
func (f Frame) Timestamp() float64 { return f.timestamp }

// IsZero reports whether f is the zero Frame.
func (f Frame) IsZero() bool { return f.pix == nil }

// Len is the size of the pixel buffer in bytes.
func (f Frame) Len() int { return len(f.pix) }

// Pixels returns a copy of the RGBA8 buffer.
func (f Frame) Pixels() []byte {
	out := make([]byte, len(f.pix))
	copy(out, f.pix)
	return out
}

// Image returns a copy of the frame as an *image.NRGBA.
func (f Frame) Image() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, int(f.width), int(f.height)))
	copy(img.Pix, f.pix)
	return img
}

// Fit scales the frame down to fit within maxWidth x maxHeight, keeping
// the aspect ratio. Frames that already fit are returned unchanged.
func (f Frame) Fit(maxWidth, maxHeight int) Frame {
	if f.IsZero() || (int(f.width) <= maxWidth && int(f.height) <= maxHeight) {
		return f
	}
	return FromImage(imaging.Fit(f.Image(), maxWidth, maxHeight, imaging.Lanczos), f.timestamp)
}

// Equal reports whether two frames have the same size, timestamp and pixels.
func (f Frame) Equal(other Frame) bool {
	return f.width == other.width &&
		f.height == other.height &&
		f.timestamp == other.timestamp &&
		bytes.Equal(f.pix, other.pix)
}
