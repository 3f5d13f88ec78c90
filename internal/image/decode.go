package image

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"

	"github.com/gen2brain/avif"
	ico "github.com/sergeymakinen/go-ico"
	"golang.org/x/image/bmp"
	xwebp "golang.org/x/image/webp"
)

// DecodeICOLenient decodes an icon with the general purpose go-ico decoder.
// It accepts variants the strict converter rejects (larger DIB headers,
// 16 bpp) and is only used when a caller opts in.
func DecodeICOLenient(b []byte) (image.Image, error) {
	img, err := ico.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("lenient ico decode: %w", err)
	}
	return img, nil
}

// DecodeRaster decodes any of the formats EncodeByFormat produces.
func DecodeRaster(b []byte) (image.Image, error) {
	if img, err := png.Decode(bytes.NewReader(b)); err == nil {
		return img, nil
	}
	if img, err := bmp.Decode(bytes.NewReader(b)); err == nil {
		return img, nil
	}
	if img, err := xwebp.Decode(bytes.NewReader(b)); err == nil {
		return img, nil
	}
	if img, err := avif.Decode(bytes.NewReader(b)); err == nil {
		return img, nil
	}
	return nil, errors.New("unsupported raster format")
}

// DecodePNGConfig reads the dimensions of a PNG stream.
func DecodePNGConfig(b []byte) (image.Config, error) {
	return png.DecodeConfig(bytes.NewReader(b))
}
