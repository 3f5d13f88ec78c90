package ico

import (
	"encoding/binary"
	"fmt"
)

const (
	headerSize = 6
	entrySize  = 16
)

// Header is the 6-byte ICONDIR that opens every ICO file.
type Header struct {
	Reserved uint16 // must be 0
	Type     uint16 // 1 for icons
	Count    uint16 // number of directory entries
}

// ParseHeader validates the ICO signature at the start of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < headerSize {
		return Header{}, formatErr(fmt.Sprintf("need %d header bytes, have %d", headerSize, len(b)))
	}
	h := Header{
		Reserved: binary.LittleEndian.Uint16(b[0:2]),
		Type:     binary.LittleEndian.Uint16(b[2:4]),
		Count:    binary.LittleEndian.Uint16(b[4:6]),
	}
	if h.Reserved != 0 || h.Type != 1 {
		return Header{}, formatErr(fmt.Sprintf("bad signature reserved=%d type=%d", h.Reserved, h.Type))
	}
	return h, nil
}
