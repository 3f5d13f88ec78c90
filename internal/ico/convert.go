// Package ico decodes Windows icon containers and re-encodes the best
// embedded image as PNG.
//
// Selection prefers the widest entry, then the tallest, then the one with the
// most colors. Entries that already hold a PNG stream are passed through
// unchanged. Legacy bitmap entries (40-byte BITMAPINFOHEADER, 1/2/4/8/24/32
// bits per pixel) are rebuilt into RGBA and handed to an Emitter.
//
// All functions are pure and safe for concurrent use.
package ico

import (
	"bytes"

	"ico2png/internal/image/pngenc"
)

// Emitter turns a row-major RGBA buffer into a PNG stream with an alpha
// channel.
type Emitter interface {
	EncodePNG(width, height int, pix []byte) ([]byte, error)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(width, height int, pix []byte) ([]byte, error)

func (f EmitterFunc) EncodePNG(width, height int, pix []byte) ([]byte, error) {
	return f(width, height, pix)
}

// Result is a decoded icon. Exactly one of PNG and Pixels is set; DIB is
// only filled in alongside Pixels.
type Result struct {
	Entry  Entry
	PNG    []byte // embedded PNG, copied verbatim from the entry offset to the end of input
	DIB    DIBHeader
	Pixels *Pixels // reconstructed legacy bitmap
}

// Decode parses b, selects the best entry and decodes it without encoding.
func Decode(b []byte) (*Result, error) {
	h, err := ParseHeader(b)
	if err != nil {
		return nil, err
	}
	if h.Count == 0 {
		return nil, formatErr("no images in directory")
	}
	entries, err := ReadDirectory(b, int(h.Count))
	if err != nil {
		return nil, err
	}
	best := SelectBest(entries)

	if IsPNG(b, best.ImageOffset) {
		return &Result{Entry: best, PNG: bytes.Clone(b[best.ImageOffset:])}, nil
	}
	dib, err := ParseDIBHeader(b, best.ImageOffset)
	if err != nil {
		return nil, err
	}
	px, err := decodeBitmap(b, best, dib)
	if err != nil {
		return nil, err
	}
	return &Result{Entry: best, DIB: dib, Pixels: px}, nil
}

// Converter runs Decode and emits PNG through its Emitter.
type Converter struct {
	emitter Emitter
}

// NewConverter returns a Converter using e, or the standard PNG encoder when
// e is nil.
func NewConverter(e Emitter) *Converter {
	if e == nil {
		e = EmitterFunc(pngenc.EncodePNG)
	}
	return &Converter{emitter: e}
}

// Convert returns PNG bytes for the best image in icoBytes. Nothing is
// emitted when decoding fails.
func (c *Converter) Convert(icoBytes []byte) ([]byte, error) {
	res, err := Decode(icoBytes)
	if err != nil {
		return nil, err
	}
	if res.PNG != nil {
		return res.PNG, nil
	}
	return c.emitter.EncodePNG(res.Pixels.Width, res.Pixels.Height, res.Pixels.Pix)
}

var defaultConverter = NewConverter(nil)

// Convert converts with the standard PNG encoder.
func Convert(icoBytes []byte) ([]byte, error) {
	return defaultConverter.Convert(icoBytes)
}
