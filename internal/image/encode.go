package image

import (
	"bytes"
	"errors"
	"image"
	"strings"

	"ico2png/internal/image/pngenc"

	"golang.org/x/image/bmp"
)

// Output formats understood by EncodeByFormat.
const (
	FormatPNG  = "png"
	FormatBMP  = "bmp"
	FormatWebP = "webp"
	FormatAVIF = "avif"
)

// EncodeByFormat encodes img in the requested format. AVIF falls back to
// WebP, and anything that fails falls back to PNG.
func EncodeByFormat(img image.Image, format string) ([]byte, string) {
	switch format {
	case FormatAVIF:
		if b, err := encodeAsAVIF(img, 75); err == nil && len(b) > 0 {
			return b, "image/avif"
		}
		fallthrough
	case FormatWebP:
		if b, err := encodeAsWebP(img, 85); err == nil && len(b) > 0 {
			return b, "image/webp"
		}
	case FormatBMP:
		var buf bytes.Buffer
		if err := bmp.Encode(&buf, img); err == nil {
			return buf.Bytes(), "image/bmp"
		}
	}

	if b, err := pngenc.Encode(img); err == nil {
		return b, "image/png"
	}
	return nil, ""
}

func ContentTypeFor(format string) string {
	switch format {
	case FormatAVIF:
		return "image/avif"
	case FormatWebP:
		return "image/webp"
	case FormatBMP:
		return "image/bmp"
	default:
		return "image/png"
	}
}

// ParseFormat normalizes a user supplied format name.
func ParseFormat(s string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(s)); f {
	case "", FormatPNG:
		return FormatPNG, nil
	case FormatBMP, FormatWebP, FormatAVIF:
		return f, nil
	default:
		return "", errors.New("unknown output format " + s)
	}
}

// Supported reports whether format can be produced by this build.
func Supported(format string) bool {
	switch format {
	case FormatPNG, FormatBMP:
		return true
	case FormatWebP:
		return isWebPSupported()
	case FormatAVIF:
		return isAVIFSupported()
	}
	return false
}
