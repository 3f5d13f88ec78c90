package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"ico2png/internal/fetch"
)

const page = `<!doctype html>
<html><head>
<base href="/assets/">
<link rel="icon" type="image/png" href="icon.png">
<link rel="icon" href="small.ico" sizes="16x16">
<link rel="shortcut icon" href="big.ico" sizes="16x16 48x48">
<link rel="icon" href="favicon">
<link rel="stylesheet" href="site.css">
<link rel="apple-touch-icon" href="touch.ico">
</head><body></body></html>`

func TestParseLinks(t *testing.T) {
	pageURL, _ := url.Parse("https://example.com/docs/index.html")

	cands, err := ParseLinks(pageURL, strings.NewReader(page))
	if err != nil {
		t.Fatalf("ParseLinks failed: %v", err)
	}

	want := []string{
		"https://example.com/assets/big.ico",
		"https://example.com/assets/small.ico",
		"https://example.com/assets/favicon",
	}
	if len(cands) != len(want) {
		t.Fatalf("Expected %d candidates, got %d: %+v", len(want), len(cands), cands)
	}
	for i, w := range want {
		if cands[i].URL != w {
			t.Errorf("candidate %d = %s, want %s", i, cands[i].URL, w)
		}
	}
	if cands[0].MaxEdge != 48 {
		t.Errorf("Expected MaxEdge 48, got %d", cands[0].MaxEdge)
	}
}

func TestDiscoverFallsBackToRoot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><head><link rel="icon" href="/i.ico"></head></html>`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	pageURL, _ := url.Parse(srv.URL + "/")
	cands := Discover(context.Background(), fetch.NewClient(5*time.Second, true), pageURL)

	if len(cands) != 2 {
		t.Fatalf("Expected 2 candidates, got %+v", cands)
	}
	if !strings.HasSuffix(cands[0].URL, "/i.ico") || !strings.HasSuffix(cands[1].URL, "/favicon.ico") {
		t.Errorf("Unexpected candidate order: %+v", cands)
	}
}

func TestIsICO(t *testing.T) {
	tests := []struct {
		ct, path string
		want     bool
	}{
		{"image/x-icon", "", true},
		{"image/vnd.microsoft.icon; charset=binary", "/a", true},
		{"", "/favicon.ICO", true},
		{"image/png", "/favicon.png", false},
	}
	for _, tt := range tests {
		if got := IsICO(tt.ct, tt.path); got != tt.want {
			t.Errorf("IsICO(%q, %q) = %v, want %v", tt.ct, tt.path, got, tt.want)
		}
	}
}

func TestLooksLikeHTML(t *testing.T) {
	if !LooksLikeHTML([]byte("  <!DOCTYPE html><html>"), "") {
		t.Error("Expected doctype to be detected")
	}
	if !LooksLikeHTML(nil, "text/html; charset=utf-8") {
		t.Error("Expected content type to be detected")
	}
	if LooksLikeHTML([]byte{0, 0, 1, 0}, "image/x-icon") {
		t.Error("Expected ICO bytes not to look like HTML")
	}
}

func TestCanonicalizeURLString(t *testing.T) {
	tests := []struct{ in, want string }{
		{"HTTPS://Example.COM:443/a/../favicon.ico#x", "https://example.com/favicon.ico"},
		{"http://example.com:80", "http://example.com/"},
		{"http://example.com:8080/x//y.ico", "http://example.com:8080/x/y.ico"},
	}
	for _, tt := range tests {
		if got := CanonicalizeURLString(tt.in); got != tt.want {
			t.Errorf("CanonicalizeURLString(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
