package handler

import (
	"bytes"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"ico2png/internal/fetch"
	"ico2png/internal/icotest"
	"ico2png/pkg/ratelimit"
)

func newTestConfig() *Config {
	return NewConfig(fetch.NewClient(5*time.Second, true), time.Hour, 2*time.Hour, true)
}

func postICO(t *testing.T, h http.Handler, target string, body []byte, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestConvertHandler_Post(t *testing.T) {
	h := ConvertHandler(newTestConfig())
	w := postICO(t, h, "/convert", icotest.Solid32(2, 2, color.RGBA{R: 200, A: 255}), nil)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected image/png, got %s", ct)
	}
	img, err := png.Decode(w.Body)
	if err != nil {
		t.Fatalf("Response is not a PNG: %v", err)
	}
	if r, _, _, _ := img.At(1, 1).RGBA(); r>>8 != 200 {
		t.Errorf("Expected red 200, got %d", r>>8)
	}
	if w.Header().Get("Cache-Control") == "" || w.Header().Get("Expires") == "" {
		t.Error("Expected cache headers")
	}
}

func TestConvertHandler_Errors(t *testing.T) {
	cfg := newTestConfig()
	cfg.MaxBodyBytes = 1024
	h := ConvertHandler(cfg)

	tests := []struct {
		name   string
		body   []byte
		target string
		want   int
	}{
		{"Not an ICO", []byte("GIF89a...."), "/convert", http.StatusBadRequest},
		{"Empty body", nil, "/convert", http.StatusBadRequest},
		{"Unsupported depth", icotest.Unsupported16(), "/convert", http.StatusUnsupportedMediaType},
		{"Too large", make([]byte, 2048), "/convert", http.StatusRequestEntityTooLarge},
		{"Bad format", icotest.Solid32(1, 1, color.RGBA{}), "/convert?format=gif", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postICO(t, h, tt.target, tt.body, nil)
			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestConvertHandler_MethodNotAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodDelete, "/convert", nil)
	w := httptest.NewRecorder()
	ConvertHandler(newTestConfig())(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", w.Code)
	}
}

func TestConvertHandler_ETag(t *testing.T) {
	h := ConvertHandler(newTestConfig())
	data := icotest.Solid32(4, 4, color.RGBA{G: 99, A: 255})

	w1 := postICO(t, h, "/convert", data, nil)
	etag := w1.Header().Get("ETag")
	if etag == "" {
		t.Fatal("Expected ETag header")
	}

	w2 := postICO(t, h, "/convert", data, map[string]string{"If-None-Match": etag})
	if w2.Code != http.StatusNotModified {
		t.Errorf("Expected status 304, got %d", w2.Code)
	}
	if w2.Body.Len() != 0 {
		t.Error("Expected empty body on 304")
	}
}

func TestConvertHandler_SizeAndAccept(t *testing.T) {
	h := ConvertHandler(newTestConfig())
	data := icotest.Solid32(16, 16, color.RGBA{B: 255, A: 255})

	w := postICO(t, h, "/convert?sz=512", data, map[string]string{"Accept": "image/webp,image/png"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	ct := w.Header().Get("Content-Type")
	if ct != "image/webp" && ct != "image/png" {
		t.Errorf("Unexpected content type: %s", ct)
	}
	if ct == "image/png" {
		cfg, err := png.DecodeConfig(w.Body)
		if err != nil || cfg.Width != 256 {
			t.Errorf("Expected size clamped to 256, got %d (%v)", cfg.Width, err)
		}
	}
}

func TestConvertHandler_ByURL(t *testing.T) {
	icon, embedded := icotest.EmbeddedPNG(6, 6)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/favicon.ico":
			w.Header().Set("Content-Type", "image/x-icon")
			_, _ = w.Write(icon)
		case "/page":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><head><link rel="icon" href="/missing.ico"><link rel="icon" href="/favicon.ico" sizes="6x6"></head></html>`))
		case "/html":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<!doctype html><p>nope"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer upstream.Close()

	// ParseTarget refuses loopback hosts, so requests go through a
	// hostname that the test client maps back to the local server.
	cfg := newTestConfig()
	up, _ := url.Parse(upstream.URL)
	cfg.Fetcher.HTTP.Transport = rewriteHost{host: up.Host}
	h := ConvertHandler(cfg)

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"icon url", "url=" + url.QueryEscape("http://icons.example/favicon.ico"), http.StatusOK},
		{"page", "page=" + url.QueryEscape("http://icons.example/page"), http.StatusOK},
		{"html instead of icon", "url=" + url.QueryEscape("http://icons.example/html"), http.StatusBadRequest},
		{"upstream 404", "url=" + url.QueryEscape("http://icons.example/gone.ico"), http.StatusBadGateway},
		{"loopback refused", "url=" + url.QueryEscape("http://127.0.0.1/favicon.ico"), http.StatusBadRequest},
		{"no input", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/convert?"+tt.query, nil)
			w := httptest.NewRecorder()
			h(w, req)
			if w.Code != tt.want {
				t.Fatalf("Expected status %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
			if tt.want == http.StatusOK && !bytes.Equal(w.Body.Bytes(), embedded) {
				t.Error("Expected the embedded PNG unchanged")
			}
		})
	}
}

// rewriteHost sends every request to a fixed host.
type rewriteHost struct{ host string }

func (rt rewriteHost) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.URL.Host = rt.host
	return http.DefaultTransport.RoundTrip(r)
}

func TestNewMux(t *testing.T) {
	limiter := ratelimit.NewLimiter(0, 0, 1, 1)
	defer limiter.Stop()
	mux := NewMux(newTestConfig(), limiter)

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	if w := get("/healthz"); w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "ok" {
		t.Errorf("healthz: %d %q", w.Code, w.Body.String())
	}

	if w := get("/convert"); w.Code != http.StatusBadRequest {
		t.Errorf("Expected first convert to reach the handler, got %d", w.Code)
	}
	if w := get("/convert"); w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected second convert to be rate limited, got %d", w.Code)
	}

	w := get("/metrics")
	if !strings.Contains(w.Body.String(), "ico2png_requests_total") {
		t.Errorf("Expected metrics exposition, got %q", w.Body.String())
	}
}

func TestNewMux_ServerTiming(t *testing.T) {
	mux := NewMux(newTestConfig(), nil)
	w := postICO(t, mux, "/convert", icotest.Solid32(2, 2, color.RGBA{A: 255}), nil)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if st := w.Header().Get("Server-Timing"); !strings.Contains(st, "convert") {
		t.Errorf("Expected a convert timing metric, got %q", st)
	}
}
