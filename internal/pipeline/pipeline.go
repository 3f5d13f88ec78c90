// Package pipeline runs a full icon conversion: strict ICO decoding, the
// optional lenient fallback, resizing and output encoding. It records
// metrics for every run.
package pipeline

import (
	"errors"
	"fmt"
	"image"
	"time"

	"ico2png/internal/ico"
	imgpkg "ico2png/internal/image"
	"ico2png/internal/image/pngenc"
	"ico2png/pkg/logger"
	"ico2png/pkg/metrics"
)

const (
	MinSize = 16
	MaxSize = 256
)

// Options select the output. The zero value produces the plain PNG that
// ico.Convert would.
type Options struct {
	Format  string // png (default), bmp, webp or avif
	Size    int    // square output edge; 0 keeps the icon's size
	Lenient bool   // retry unsupported variants with the go-ico decoder
}

// Output is a converted image.
type Output struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
	BPP         int    // 0 for an embedded PNG or a lenient decode
	Lenient     bool   // produced by the fallback decoder
	Source      string // metrics.Source*
}

// ClampSize limits a requested edge to [MinSize, MaxSize]; 0 stays 0.
func ClampSize(n int) int {
	if n <= 0 {
		return 0
	}
	return min(max(n, MinSize), MaxSize)
}

// ErrorKind names an error for metrics and logs.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ico.ErrFormat):
		return "format"
	case errors.Is(err, ico.ErrUnsupported):
		return "unsupported"
	default:
		return "encode"
	}
}

// Run converts icoBytes according to opts.
func Run(icoBytes []byte, opts Options) (*Output, error) {
	start := time.Now()
	out, err := run(icoBytes, opts)
	m := metrics.Get()
	if err != nil {
		m.IncError(ErrorKind(err))
		return nil, err
	}
	m.RecordConversion(out.Source, out.BPP, len(icoBytes), len(out.Data), time.Since(start))
	return out, nil
}

func run(icoBytes []byte, opts Options) (*Output, error) {
	format := opts.Format
	if format == "" {
		format = imgpkg.FormatPNG
	}

	res, err := ico.Decode(icoBytes)
	if err != nil {
		if opts.Lenient && errors.Is(err, ico.ErrUnsupported) {
			logger.Info("Strict decode rejected icon (%v), trying lenient decoder", err)
			img, lerr := imgpkg.DecodeICOLenient(icoBytes)
			if lerr != nil {
				return nil, errors.Join(err, lerr)
			}
			out, err := encode(img, format, opts.Size)
			if err != nil {
				return nil, err
			}
			out.Lenient = true
			out.Source = metrics.SourceLenient
			return out, nil
		}
		return nil, err
	}

	bpp := int(res.DIB.BitsPerPixel)

	// Plain PNG at native size needs no re-encoding beyond the emitter.
	if format == imgpkg.FormatPNG && opts.Size == 0 {
		if res.PNG != nil {
			w, h := int(res.Entry.Width), int(res.Entry.Height)
			if cfg, err := imgpkg.DecodePNGConfig(res.PNG); err == nil {
				w, h = cfg.Width, cfg.Height
			}
			return &Output{Data: res.PNG, ContentType: imgpkg.ContentTypeFor(imgpkg.FormatPNG), Width: w, Height: h, Source: metrics.SourcePassthrough}, nil
		}
		data, err := pngenc.EncodePNG(res.Pixels.Width, res.Pixels.Height, res.Pixels.Pix)
		if err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		return &Output{Data: data, ContentType: imgpkg.ContentTypeFor(imgpkg.FormatPNG), Width: res.Pixels.Width, Height: res.Pixels.Height, BPP: bpp, Source: metrics.SourceBitmap}, nil
	}

	var img image.Image
	source := metrics.SourceBitmap
	if res.PNG != nil {
		if img, err = imgpkg.DecodeRaster(res.PNG); err != nil {
			return nil, fmt.Errorf("decode embedded png: %w", err)
		}
		source = metrics.SourcePNG
	} else {
		img = res.Pixels.Image()
	}
	out, err := encode(img, format, opts.Size)
	if err != nil {
		return nil, err
	}
	out.BPP = bpp
	out.Source = source
	return out, nil
}

func encode(img image.Image, format string, size int) (*Output, error) {
	if size > 0 {
		img = imgpkg.ResizeImage(img, size)
	}
	data, ct := imgpkg.EncodeByFormat(img, format)
	if len(data) == 0 {
		return nil, fmt.Errorf("encode %s failed", format)
	}
	b := img.Bounds()
	return &Output{Data: data, ContentType: ct, Width: b.Dx(), Height: b.Dy()}, nil
}
