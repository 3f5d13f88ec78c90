package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"ico2png/internal/discovery"
	"ico2png/internal/fetch"
	imgpkg "ico2png/internal/image"
	"ico2png/internal/pipeline"
	"ico2png/internal/security"
	"ico2png/pkg/logger"
)

// Converts an ICO file to PNG (or another raster format).
// Usage:
//
//	ico2png -file favicon.ico -out favicon.png
//	ico2png -url https://example.com/favicon.ico -size 64 > icon.png
//	ico2png -page example.com -format webp -out icon.webp
//	cat favicon.ico | ico2png > favicon.png

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			logger.Error("%v", err)
		}
		os.Exit(1)
	}
}

type options struct {
	file     string
	url      string
	page     string
	out      string
	format   string
	size     int
	lenient  bool
	logLevel string
	timeout  time.Duration
}

func parseFlags(args []string) (*options, error) {
	o := &options{}
	fs := flag.NewFlagSet("ico2png", flag.ContinueOnError)
	fs.StringVar(&o.file, "file", "", "ICO file to convert (default: stdin)")
	fs.StringVar(&o.url, "url", "", "URL of an ICO file to fetch")
	fs.StringVar(&o.page, "page", "", "page URL whose icon link is fetched")
	fs.StringVar(&o.out, "out", "", "output file (default: stdout)")
	fs.StringVar(&o.format, "format", "png", "output format: png, bmp, webp or avif")
	fs.IntVar(&o.size, "size", 0, "resize to a square of this edge, 16-256 (default: native size)")
	fs.BoolVar(&o.lenient, "lenient", false, "fall back to a general ICO decoder for unsupported bitmaps")
	fs.StringVar(&o.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	fs.DurationVar(&o.timeout, "timeout", 15*time.Second, "fetch timeout")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	n := 0
	for _, s := range []string{o.file, o.url, o.page} {
		if s != "" {
			n++
		}
	}
	if n > 1 {
		return nil, errors.New("use only one of -file, -url and -page")
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return o, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	o, err := parseFlags(args)
	if err != nil {
		return err
	}
	level, err := logger.ParseLevel(o.logLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(level)

	format, err := imgpkg.ParseFormat(o.format)
	if err != nil {
		return err
	}
	if !imgpkg.Supported(format) {
		return fmt.Errorf("format %s is not available in this build", format)
	}

	data, err := readInput(ctx, o, stdin)
	if err != nil {
		return err
	}
	logger.Debug("Read %d bytes of icon data", len(data))

	out, err := pipeline.Run(data, pipeline.Options{
		Format:  format,
		Size:    pipeline.ClampSize(o.size),
		Lenient: o.lenient,
	})
	if err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	logger.Info("Converted to %s %dx%d (%d bytes)", out.ContentType, out.Width, out.Height, len(out.Data))
	if out.Lenient {
		logger.Warn("Icon was decoded by the fallback decoder")
	}
	if img, err := imgpkg.DecodeRaster(out.Data); err == nil && imgpkg.IsNearlyBlank(img) {
		logger.Warn("Output appears nearly blank (mostly transparent)")
	}

	if o.out == "" {
		_, err = stdout.Write(out.Data)
		return err
	}
	return os.WriteFile(o.out, out.Data, 0644)
}

func readInput(ctx context.Context, o *options, stdin io.Reader) ([]byte, error) {
	switch {
	case o.file != "":
		return os.ReadFile(o.file)
	case o.url != "":
		u, err := security.ParseTarget(o.url)
		if err != nil {
			return nil, err
		}
		body, ct, err := fetch.NewClient(o.timeout, false).Fetch(ctx, u.String())
		if err != nil {
			return nil, err
		}
		if discovery.LooksLikeHTML(body, ct) {
			return nil, fmt.Errorf("%s is an HTML page, try -page", u)
		}
		return body, nil
	case o.page != "":
		u, err := security.ParseTarget(o.page)
		if err != nil {
			return nil, err
		}
		c := fetch.NewClient(o.timeout, false)
		for _, cand := range discovery.Discover(ctx, c, u) {
			body, ct, err := c.Fetch(ctx, cand.URL)
			if err != nil || discovery.LooksLikeHTML(body, ct) {
				continue
			}
			logger.Info("Using icon %s", cand.URL)
			return body, nil
		}
		return nil, fmt.Errorf("no icon found for %s", u)
	default:
		b, err := io.ReadAll(io.LimitReader(stdin, fetch.MaxFetchBytes+1))
		if err != nil {
			return nil, err
		}
		if len(b) > fetch.MaxFetchBytes {
			return nil, fetch.ErrTooLarge
		}
		return b, nil
	}
}
