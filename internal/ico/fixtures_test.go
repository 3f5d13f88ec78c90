package ico

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"testing"
)

// dibHeaderBytes builds a BITMAPINFOHEADER. The stored height is doubled
// the way icon files store it.
func dibHeaderBytes(size uint32, width, height int32, bpp uint16, imageSize uint32) []byte {
	var buf bytes.Buffer
	le := binary.LittleEndian
	_ = binary.Write(&buf, le, size)
	_ = binary.Write(&buf, le, width)
	_ = binary.Write(&buf, le, height*2)
	_ = binary.Write(&buf, le, uint16(1))
	_ = binary.Write(&buf, le, bpp)
	_ = binary.Write(&buf, le, uint32(0)) // compression
	_ = binary.Write(&buf, le, imageSize)
	_ = binary.Write(&buf, le, [4]uint32{})
	return buf.Bytes()
}

// paletteBytes stores colors as BGRX quads.
func paletteBytes(n int, colors ...color.RGBA) []byte {
	out := make([]byte, n*4)
	for i, c := range colors {
		out[i*4+0] = c.B
		out[i*4+1] = c.G
		out[i*4+2] = c.R
		out[i*4+3] = 0xEE // reserved, must be ignored
	}
	return out
}

func concat(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

func encodeTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 40), G: uint8(y * 40), B: 200, A: 128})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

type rgba [4]uint8

func pixelsOf(p *Pixels) []rgba {
	out := make([]rgba, 0, p.Width*p.Height)
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			r, g, b, a := p.RGBAAt(x, y)
			out = append(out, rgba{r, g, b, a})
		}
	}
	return out
}

var (
	red   = color.RGBA{R: 255, A: 255}
	green = color.RGBA{G: 255, A: 255}
	blue  = color.RGBA{B: 255, A: 255}
	white = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)
