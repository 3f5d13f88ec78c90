// Package fetch downloads icon files and HTML pages over HTTP.
package fetch

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ico2png/internal/security"
	"ico2png/pkg/logger"
)

const (
	MaxFetchBytes = 4 << 20 // 4MB
	UserAgent     = "ico2png/1.0 (+https://github.com/ico2png)"
)

// ErrTooLarge is returned when a body exceeds the client's byte limit.
var ErrTooLarge = errors.New("response body too large")

// StatusError carries a non-2xx upstream status.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string { return "upstream status " + e.Status }

type Client struct {
	HTTP     *http.Client
	MaxBytes int64
}

// NewClient builds a client with the SSRF-checking dialer. allowPrivate
// skips that dialer and is meant for tests against local servers.
func NewClient(timeout time.Duration, allowPrivate bool) *Client {
	transport := &http.Transport{
		ForceAttemptHTTP2:   true,
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 4,
	}
	if !allowPrivate {
		transport.DialContext = security.ValidatedDialContext
	}
	return &Client{
		HTTP: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > 8 {
					return errors.New("too many redirects")
				}
				if !security.IsAllowedScheme(req.URL) {
					return errors.New("blocked redirect scheme")
				}
				return nil
			},
		},
		MaxBytes: MaxFetchBytes,
	}
}

// Fetch GETs rawURL and returns the body and its content type.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "image/x-icon,image/vnd.microsoft.icon,text/html;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip")

	logger.Debug("Fetching URL: %s", rawURL)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		logger.Warn("Fetch failed for %s: %v", rawURL, err)
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Warn("Fetch got status %d for %s", resp.StatusCode, rawURL)
		return nil, "", &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	body, err := c.readBody(resp)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", rawURL, err)
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(peek512(body))
	}
	logger.Debug("Fetched %s: %d bytes, content-type: %s", rawURL, len(body), ct)
	return body, ct, nil
}

func (c *Client) readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		reader = zr
	}
	body, err := io.ReadAll(io.LimitReader(reader, c.MaxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > c.MaxBytes {
		return nil, ErrTooLarge
	}
	return body, nil
}

func peek512(b []byte) []byte {
	if len(b) > 512 {
		return b[:512]
	}
	return b
}
