package ico

import (
	"encoding/binary"
	"fmt"
)

const dibHeaderSize = 40

// DIBHeader is the 40-byte BITMAPINFOHEADER found at the start of a
// non-PNG icon image.
type DIBHeader struct {
	HeaderSize      uint32
	Width           int32
	Height          int32
	Planes          uint16
	BitsPerPixel    uint16
	Compression     uint32
	ImageSize       uint32
	XPixelsPerMeter int32
	YPixelsPerMeter int32
	ColorsUsed      uint32
	ColorsImportant uint32
}

// ParseDIBHeader reads the bitmap header at offset. Any header size other
// than 40 is rejected before the rest is looked at.
func ParseDIBHeader(b []byte, offset uint32) (DIBHeader, error) {
	start := int(offset)
	if start < 0 || start+4 > len(b) {
		return DIBHeader{}, formatErr(fmt.Sprintf("image offset %d outside %d-byte buffer", offset, len(b)))
	}
	size := binary.LittleEndian.Uint32(b[start : start+4])
	if size != dibHeaderSize {
		return DIBHeader{}, unsupportedErr(fmt.Sprintf("DIB header size %d", size))
	}
	if start+dibHeaderSize > len(b) {
		return DIBHeader{}, formatErr("truncated DIB header")
	}
	h := b[start : start+dibHeaderSize]
	le := binary.LittleEndian
	return DIBHeader{
		HeaderSize:      size,
		Width:           int32(le.Uint32(h[4:8])),
		Height:          int32(le.Uint32(h[8:12])),
		Planes:          le.Uint16(h[12:14]),
		BitsPerPixel:    le.Uint16(h[14:16]),
		Compression:     le.Uint32(h[16:20]),
		ImageSize:       le.Uint32(h[20:24]),
		XPixelsPerMeter: int32(le.Uint32(h[24:28])),
		YPixelsPerMeter: int32(le.Uint32(h[28:32])),
		ColorsUsed:      le.Uint32(h[32:36]),
		ColorsImportant: le.Uint32(h[36:40]),
	}, nil
}

// DecodeDIB reconstructs the image that entry e points at. Dimensions are
// taken from the directory entry.
func DecodeDIB(b []byte, e Entry) (*Pixels, error) {
	h, err := ParseDIBHeader(b, e.ImageOffset)
	if err != nil {
		return nil, err
	}
	return decodeBitmap(b, e, h)
}

func decodeBitmap(b []byte, e Entry, h DIBHeader) (*Pixels, error) {
	width, height := int(e.Width), int(e.Height)
	bpp := int(h.BitsPerPixel)

	dataSize := int(h.ImageSize)
	if dataSize == 0 {
		// Truncating division.
		dataSize = width * height * bpp / 8
	}

	body := b[int(e.ImageOffset)+dibHeaderSize:]
	switch bpp {
	case 1, 2, 4, 8:
		return decodeIndexed(body, width, height, bpp, dataSize)
	case 24, 32:
		return decodeDirect(body, width, height, bpp/8)
	default:
		return nil, unsupportedErr(fmt.Sprintf("%d bits per pixel", bpp))
	}
}
