// Package icotest builds small ICO files for tests.
package icotest

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
)

// Entry is one icon image. W, H and Colors are the raw directory bytes.
type Entry struct {
	W, H, Colors uint8
	BitCount     uint16
	Payload      []byte
}

// Build lays out header, directory and payloads back to back.
func Build(entries ...Entry) []byte {
	var buf bytes.Buffer
	le := binary.LittleEndian
	_ = binary.Write(&buf, le, [3]uint16{0, 1, uint16(len(entries))})

	offset := uint32(6 + 16*len(entries))
	for _, e := range entries {
		buf.Write([]byte{e.W, e.H, e.Colors, 0})
		_ = binary.Write(&buf, le, [2]uint16{1, e.BitCount})
		_ = binary.Write(&buf, le, [2]uint32{uint32(len(e.Payload)), offset})
		offset += uint32(len(e.Payload))
	}
	for _, e := range entries {
		buf.Write(e.Payload)
	}
	return buf.Bytes()
}

// DIBHeader returns a 40-byte BITMAPINFOHEADER with the icon-style doubled
// height.
func DIBHeader(width, height int32, bpp uint16, imageSize uint32) []byte {
	var buf bytes.Buffer
	le := binary.LittleEndian
	_ = binary.Write(&buf, le, uint32(40))
	_ = binary.Write(&buf, le, [2]int32{width, height * 2})
	_ = binary.Write(&buf, le, [2]uint16{1, bpp})
	_ = binary.Write(&buf, le, [2]uint32{0, imageSize})
	_ = binary.Write(&buf, le, [4]uint32{})
	return buf.Bytes()
}

// Solid32 returns a 32 bpp icon of a single color, BGRX on disk.
func Solid32(w, h uint8, c color.RGBA) []byte {
	pw, ph := int(w), int(h)
	if pw == 0 {
		pw = 256
	}
	if ph == 0 {
		ph = 256
	}
	pix := bytes.Repeat([]byte{c.B, c.G, c.R, 0}, pw*ph)
	payload := append(DIBHeader(int32(pw), int32(ph), 32, 0), pix...)
	return Build(Entry{W: w, H: h, BitCount: 32, Payload: payload})
}

// EmbeddedPNG returns an icon holding a single PNG stream, and that stream.
func EmbeddedPNG(w, h int) (ico, pngData []byte) {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	pngData = buf.Bytes()
	return Build(Entry{W: uint8(w), H: uint8(h), BitCount: 32, Payload: pngData}), pngData
}

// Unsupported16 returns a well-formed icon whose bitmap is 16 bpp.
func Unsupported16() []byte {
	payload := append(DIBHeader(1, 1, 16, 0), 0, 0, 0, 0)
	return Build(Entry{W: 1, H: 1, BitCount: 16, Payload: payload})
}
