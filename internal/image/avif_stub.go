//go:build noavif

package image

import (
	"errors"
	"image"
)

// encodeAsAVIF always fails when built with -tags noavif.
func encodeAsAVIF(img image.Image, quality int) ([]byte, error) {
	return nil, errors.New("avif encoder disabled (built with -tags noavif)")
}

func isAVIFSupported() bool {
	return false
}
