package ico

import "bytes"

var pngSignature = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}

// IsPNG reports whether the image at offset is an embedded PNG stream.
func IsPNG(b []byte, offset uint32) bool {
	start := int(offset)
	if start < 0 || start > len(b) {
		return false
	}
	return bytes.HasPrefix(b[start:], pngSignature)
}
