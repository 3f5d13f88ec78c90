package ico

import (
	"encoding/binary"
	"fmt"
)

// Entry is one ICONDIRENTRY with the zero-as-256 fields already normalized.
type Entry struct {
	Width           uint16
	Height          uint16
	ColorCount      uint16
	Planes          uint16
	BitCount        uint16
	BytesInResource uint32
	ImageOffset     uint32
}

// Better reports whether e ranks above other. Width decides first, then
// height, then color count.
func (e Entry) Better(other Entry) bool {
	if e.Width != other.Width {
		return e.Width > other.Width
	}
	if e.Height != other.Height {
		return e.Height > other.Height
	}
	return e.ColorCount > other.ColorCount
}

// ReadDirectory reads count entries that follow the header.
func ReadDirectory(b []byte, count int) ([]Entry, error) {
	need := headerSize + count*entrySize
	if len(b) < need {
		return nil, formatErr(fmt.Sprintf("directory of %d entries needs %d bytes, have %d", count, need, len(b)))
	}
	entries := make([]Entry, 0, count)
	for i := 0; i < count; i++ {
		off := headerSize + i*entrySize
		entries = append(entries, parseEntry(b[off:off+entrySize]))
	}
	return entries, nil
}

// parseEntry decodes 4 bytes, 2 uint16 and 2 uint32. The fourth byte is
// reserved.
func parseEntry(r []byte) Entry {
	return Entry{
		Width:           sizeField(r[0]),
		Height:          sizeField(r[1]),
		ColorCount:      sizeField(r[2]),
		Planes:          binary.LittleEndian.Uint16(r[4:6]),
		BitCount:        binary.LittleEndian.Uint16(r[6:8]),
		BytesInResource: binary.LittleEndian.Uint32(r[8:12]),
		ImageOffset:     binary.LittleEndian.Uint32(r[12:16]),
	}
}

// sizeField maps the one-byte encoding where 0 stands for 256.
func sizeField(v uint8) uint16 {
	if v == 0 {
		return 256
	}
	return uint16(v)
}

// SelectBest folds over entries and keeps the best one. On a full tie the
// earlier entry wins. entries must not be empty.
func SelectBest(entries []Entry) Entry {
	best := entries[0]
	for _, e := range entries[1:] {
		if e.Better(best) {
			best = e
		}
	}
	return best
}
