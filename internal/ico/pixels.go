package ico

import (
	"fmt"
	"image"
)

// PaletteColor is one palette slot, reordered from the on-disk BGRX quad.
type PaletteColor struct {
	R, G, B uint8
}

// Pixels is a row-major RGBA buffer with its origin at the top left. Pix
// holds Width*4 bytes per row.
type Pixels struct {
	Width  int
	Height int
	Pix    []byte
}

func newPixels(width, height int) *Pixels {
	return &Pixels{Width: width, Height: height, Pix: make([]byte, width*height*4)}
}

func (p *Pixels) set(x, y int, r, g, b, a uint8) {
	i := (y*p.Width + x) * 4
	p.Pix[i+0] = r
	p.Pix[i+1] = g
	p.Pix[i+2] = b
	p.Pix[i+3] = a
}

// RGBAAt returns the channels at (x, y).
func (p *Pixels) RGBAAt(x, y int) (r, g, b, a uint8) {
	i := (y*p.Width + x) * 4
	return p.Pix[i], p.Pix[i+1], p.Pix[i+2], p.Pix[i+3]
}

// Image wraps the buffer as non-premultiplied RGBA without copying.
func (p *Pixels) Image() *image.NRGBA {
	return &image.NRGBA{Pix: p.Pix, Stride: p.Width * 4, Rect: image.Rect(0, 0, p.Width, p.Height)}
}

// andMaskStride is the byte length of one AND mask row, padded to 32 bits.
func andMaskStride(width int) int {
	return ((width + 31) >> 5) << 2
}

func readPalette(body []byte, n int) ([]PaletteColor, error) {
	if len(body) < n*4 {
		return nil, formatErr(fmt.Sprintf("palette of %d colors truncated", n))
	}
	pal := make([]PaletteColor, n)
	for i := range pal {
		q := body[i*4 : i*4+4]
		pal[i] = PaletteColor{R: q[2], G: q[1], B: q[0]}
	}
	return pal, nil
}

// decodeIndexed rebuilds a 1/2/4/8 bpp image. Layout after the header:
// palette, XOR map (dataSize bytes, rows bottom-up, no padding), AND mask
// (rows bottom-up, padded to 32 bits). A set mask bit yields a fully
// transparent black pixel.
func decodeIndexed(body []byte, width, height, bpp, dataSize int) (*Pixels, error) {
	colors := 1 << uint(bpp)
	pal, err := readPalette(body, colors)
	if err != nil {
		return nil, err
	}

	xorStart := colors * 4
	andStart := xorStart + dataSize
	andStride := andMaskStride(width)
	andEnd := andStart + andStride*height
	if dataSize < 0 || andEnd > len(body) {
		return nil, formatErr(fmt.Sprintf("bitmap needs %d bytes after the header, have %d", andEnd, len(body)))
	}
	xor := newBitReader(body[xorStart:andStart])
	and := newBitReader(body[andStart:andEnd])

	px := newPixels(width, height)
	for y := 0; y < height; y++ {
		src := height - y - 1
		for x := 0; x < width; x++ {
			masked, _ := and.BitAt(src*andStride*8 + x)
			if masked {
				px.set(x, y, 0, 0, 0, 0)
				continue
			}
			xor.Seek(bpp * (src*width + x))
			idx, ok := xor.ReadBits(bpp)
			if !ok {
				return nil, formatErr(fmt.Sprintf("XOR map too short for %dx%d at %d bpp", width, height, bpp))
			}
			c := pal[idx]
			px.set(x, y, c.R, c.G, c.B, 255)
		}
	}
	return px, nil
}

// decodeDirect rebuilds a 24 or 32 bpp image from unpadded bottom-up BGR(X)
// rows. Output is always opaque; the fourth byte of a 32 bpp pixel and the
// AND mask are ignored.
func decodeDirect(body []byte, width, height, bytesPerPixel int) (*Pixels, error) {
	stride := width * bytesPerPixel
	if stride*height > len(body) {
		return nil, formatErr(fmt.Sprintf("pixel data needs %d bytes, have %d", stride*height, len(body)))
	}
	px := newPixels(width, height)
	for y := 0; y < height; y++ {
		row := body[(height-y-1)*stride:]
		for x := 0; x < width; x++ {
			p := row[x*bytesPerPixel:]
			px.set(x, y, p[2], p[1], p[0], 255)
		}
	}
	return px, nil
}
