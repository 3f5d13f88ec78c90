// Package handler exposes icon conversion over HTTP. Icons arrive either as
// a POST body or by reference (an icon URL or a page whose icon links are
// followed), and the converted image is served with HTTP caching headers.
package handler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ico2png/internal/discovery"
	"ico2png/internal/fetch"
	"ico2png/internal/ico"
	imgpkg "ico2png/internal/image"
	"ico2png/internal/pipeline"
	"ico2png/internal/security"
	"ico2png/pkg/logger"
	"ico2png/pkg/metrics"
	"ico2png/pkg/ratelimit"

	servertiming "github.com/mitchellh/go-server-timing"
)

const DefaultMaxBodyBytes = 4 << 20

// Config holds configuration for the conversion handler.
type Config struct {
	Fetcher       *fetch.Client
	MaxBodyBytes  int64
	BrowserMaxAge time.Duration
	CDNSMaxAge    time.Duration
	UseETag       bool
	Lenient       bool // allow the go-ico fallback for unsupported variants
}

// NewConfig creates a handler configuration. A nil fetcher disables
// conversion by URL.
func NewConfig(fetcher *fetch.Client, browserMaxAge, cdnSMaxAge time.Duration, useETag bool) *Config {
	return &Config{
		Fetcher:       fetcher,
		MaxBodyBytes:  DefaultMaxBodyBytes,
		BrowserMaxAge: browserMaxAge,
		CDNSMaxAge:    cdnSMaxAge,
		UseETag:       useETag,
	}
}

// NewMux wires the conversion, metrics and health endpoints behind request
// metrics and the optional rate limiter.
func NewMux(cfg *Config, limiter *ratelimit.Limiter) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/convert", ratelimit.Middleware(limiter, servertiming.Middleware(ConvertHandler(cfg), nil)))
	mux.Handle("/metrics", metrics.Get().Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "ok\n")
	})
	return metrics.Middleware(mux)
}

// ConvertHandler returns an HTTP handler function that converts icons.
//
// Input, one of:
//   - POST body: the ICO file
//   - GET ?url=: an ICO file to fetch
//   - GET ?page=: an HTML page whose icon links are tried in order
//
// Query parameters:
//   - format: png, bmp, webp or avif (default: negotiated from Accept)
//   - size or sz: square output edge, clamped to 16-256 (default: native)
//   - lenient=1: retry unsupported bitmap variants with a general decoder
//
// Errors: 400 malformed ICO or request, 413 body too large, 415 unsupported
// ICO variant, 502 upstream fetch failure.
func ConvertHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		opts := pipeline.Options{Lenient: cfg.Lenient || q.Get("lenient") == "1"}
		if f := q.Get("format"); f != "" {
			format, err := imgpkg.ParseFormat(f)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			opts.Format = format
		} else {
			opts.Format = pickFormatByAccept(r.Header.Get("Accept"))
		}
		szStr := q.Get("size")
		if szStr == "" {
			szStr = q.Get("sz")
		}
		if n, err := strconv.Atoi(szStr); err == nil {
			opts.Size = pipeline.ClampSize(n)
		}

		var (
			out *pipeline.Output
			err error
		)
		switch r.Method {
		case http.MethodPost:
			done := timed(r, "convert", "ICO decode and encode")
			out, err = convertBody(w, r, cfg, opts)
			done()
		case http.MethodGet, http.MethodHead:
			done := timed(r, "remote", "Fetch and convert")
			out, err = convertRemote(r.Context(), q.Get("url"), q.Get("page"), cfg, opts)
			done()
		default:
			w.Header().Set("Allow", "GET, HEAD, POST")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err != nil {
			status := statusFor(err)
			logger.Warn("Conversion failed (%d): %v", status, err)
			http.Error(w, err.Error(), status)
			return
		}

		serveBytes(w, r, out.Data, out.ContentType, time.Now(), cfg)
	}
}

var (
	errNoInput  = errors.New("missing icon: POST a body or pass url= or page=")
	errNotIcon  = errors.New("fetched resource is not an icon")
	errNoFetch  = errors.New("fetching by url is disabled")
	errTooLarge = errors.New("request body too large")
	errBadURL   = errors.New("invalid url")
)

// upstreamError marks failures talking to the remote host.
type upstreamError struct{ err error }

func (e *upstreamError) Error() string { return "upstream: " + e.err.Error() }
func (e *upstreamError) Unwrap() error { return e.err }

func convertBody(w http.ResponseWriter, r *http.Request, cfg *Config, opts pipeline.Options) (*pipeline.Output, error) {
	limit := cfg.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, errTooLarge
		}
		return nil, err
	}
	if len(body) == 0 {
		return nil, errNoInput
	}
	return pipeline.Run(body, opts)
}

func convertRemote(ctx context.Context, iconURL, pageURL string, cfg *Config, opts pipeline.Options) (*pipeline.Output, error) {
	if iconURL == "" && pageURL == "" {
		return nil, errNoInput
	}
	if cfg.Fetcher == nil {
		return nil, errNoFetch
	}

	if iconURL != "" {
		u, err := security.ParseTarget(iconURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errBadURL, err)
		}
		return fetchAndConvert(ctx, cfg.Fetcher, u.String(), opts)
	}

	u, err := security.ParseTarget(pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadURL, err)
	}
	var lastErr error
	for _, c := range discovery.Discover(ctx, cfg.Fetcher, u) {
		out, err := fetchAndConvert(ctx, cfg.Fetcher, c.URL, opts)
		if err == nil {
			logger.Debug("Converted %s found on %s", c.URL, u)
			return out, nil
		}
		logger.Debug("Candidate %s failed: %v", c.URL, err)
		lastErr = err
	}
	return nil, lastErr
}

func fetchAndConvert(ctx context.Context, f *fetch.Client, rawURL string, opts pipeline.Options) (*pipeline.Output, error) {
	m := metrics.Get()
	m.IncFetch()
	body, ct, err := f.Fetch(ctx, rawURL)
	if err != nil {
		m.IncFetchError()
		return nil, &upstreamError{err: err}
	}
	if discovery.LooksLikeHTML(body, ct) {
		return nil, errNotIcon
	}
	return pipeline.Run(body, opts)
}

func statusFor(err error) int {
	var ue *upstreamError
	switch {
	case errors.Is(err, ico.ErrFormat), errors.Is(err, errNoInput), errors.Is(err, errNotIcon), errors.Is(err, errBadURL):
		return http.StatusBadRequest
	case errors.Is(err, ico.ErrUnsupported):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, errTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errNoFetch):
		return http.StatusForbidden
	case errors.As(err, &ue):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func serveBytes(w http.ResponseWriter, r *http.Request, body []byte, contentType string, lastMod time.Time, cfg *Config) {
	w.Header().Set("Vary", "Accept")

	etag := makeETag(body)
	if cfg.UseETag {
		if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
			w.Header().Set("ETag", etag)
			setCacheHeaders(w, cfg)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
	}

	w.Header().Set("Content-Type", contentType)
	if !lastMod.IsZero() {
		w.Header().Set("Last-Modified", lastMod.UTC().Format(http.TimeFormat))
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	setCacheHeaders(w, cfg)
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(body)
	}
}

// timed starts a Server-Timing metric when the request carries a timing
// header and returns the function that stops it.
func timed(r *http.Request, name, desc string) func() {
	h := servertiming.FromContext(r.Context())
	if h == nil {
		return func() {}
	}
	m := h.NewMetric(name).WithDesc(desc).Start()
	return func() { m.Stop() }
}

// pickFormatByAccept prefers AVIF, then WebP, when the client and the build
// both support them.
func pickFormatByAccept(accept string) string {
	accept = strings.ToLower(accept)
	if strings.Contains(accept, "image/avif") && imgpkg.Supported(imgpkg.FormatAVIF) {
		return imgpkg.FormatAVIF
	}
	if strings.Contains(accept, "image/webp") && imgpkg.Supported(imgpkg.FormatWebP) {
		return imgpkg.FormatWebP
	}
	return imgpkg.FormatPNG
}

func makeETag(b []byte) string {
	s := sha256.Sum256(b)
	return "\"" + hex.EncodeToString(s[:16]) + "\""
}

func setCacheHeaders(w http.ResponseWriter, cfg *Config) {
	bsec := int(cfg.BrowserMaxAge.Seconds())
	csec := int(cfg.CDNSMaxAge.Seconds())
	if bsec <= 0 {
		bsec = 86400
	}
	if csec <= 0 {
		csec = bsec
	}
	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(bsec)+", s-maxage="+strconv.Itoa(csec))
	w.Header().Set("Expires", time.Now().Add(time.Duration(bsec)*time.Second).UTC().Format(http.TimeFormat))
}
