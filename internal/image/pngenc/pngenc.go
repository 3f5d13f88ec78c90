// Package pngenc writes PNG streams that always carry an alpha channel.
// It depends on nothing but the standard image packages so the ICO core can
// use it without pulling in the WebP and AVIF encoders.
package pngenc

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
)

var encoder = png.Encoder{CompressionLevel: png.BestCompression}

// withAlpha hides the opacity of the wrapped image, so image/png writes
// RGBA (color type 6) even when every pixel is opaque.
type withAlpha struct {
	image.Image
}

func (withAlpha) Opaque() bool { return false }

// Encode writes img as PNG with an alpha channel.
func Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := encoder.Encode(&buf, withAlpha{img}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodePNG encodes a row-major RGBA buffer (width*4 bytes per row, straight
// alpha) as PNG.
func EncodePNG(width, height int, pix []byte) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("png: invalid dimensions %dx%d", width, height)
	}
	if len(pix) != width*height*4 {
		return nil, fmt.Errorf("png: pixel buffer has %d bytes, want %d", len(pix), width*height*4)
	}
	return Encode(&image.NRGBA{Pix: pix, Stride: width * 4, Rect: image.Rect(0, 0, width, height)})
}
