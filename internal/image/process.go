package image

import (
	"image"

	"golang.org/x/image/draw"
)

// ResizeImage scales img to a size x size square with Catmull-Rom
// interpolation. Alpha is kept; nothing is composited.
func ResizeImage(img image.Image, size int) image.Image {
	b := img.Bounds()
	if b.Dx() == size && b.Dy() == size {
		return img
	}
	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// IsNearlyBlank reports whether fewer than a quarter of the sampled pixels
// are visible. Icons whose AND mask hides everything end up here.
func IsNearlyBlank(img image.Image) bool {
	if img == nil {
		return true
	}
	b := img.Bounds()
	stepX := max(b.Dx()/16, 1)
	stepY := max(b.Dy()/16, 1)

	sampled, visible := 0, 0
	for y := b.Min.Y; y < b.Max.Y; y += stepY {
		for x := b.Min.X; x < b.Max.X; x += stepX {
			sampled++
			if _, _, _, a := img.At(x, y).RGBA(); a > 0x0100 {
				visible++
			}
		}
	}
	return sampled == 0 || visible*4 < sampled
}
