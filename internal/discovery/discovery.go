// Package discovery finds ICO icons referenced by an HTML page.
package discovery

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"

	"ico2png/internal/fetch"
	"ico2png/internal/security"
	"ico2png/pkg/logger"

	"golang.org/x/net/html"
)

// Candidate is an icon link that may point at an ICO file. Lower Rank is
// tried first.
type Candidate struct {
	URL     string
	Type    string
	MaxEdge int
	Rank    int
}

const (
	rankICO     = 0 // declared or named as ICO
	rankUnknown = 1 // icon link without a telling type or extension
	rankRoot    = 2 // /favicon.ico fallback
)

// Discover fetches pageURL, collects its icon links and appends the
// conventional /favicon.ico. A page that cannot be fetched or parsed still
// yields the fallback.
func Discover(ctx context.Context, c *fetch.Client, pageURL *url.URL) []Candidate {
	var cands []Candidate
	body, ct, err := c.Fetch(ctx, pageURL.String())
	if err != nil {
		logger.Warn("Failed to fetch HTML for %s: %v", pageURL, err)
	} else if IsICO(ct, pageURL.Path) {
		// The page is the icon.
		cands = append(cands, Candidate{URL: pageURL.String(), Type: ct, Rank: rankICO})
	} else if cands, err = ParseLinks(pageURL, bytes.NewReader(body)); err != nil {
		logger.Warn("Failed to parse HTML for %s: %v", pageURL, err)
	}

	root := &url.URL{Scheme: pageURL.Scheme, Host: pageURL.Host, Path: "/favicon.ico"}
	cands = append(cands, Candidate{URL: root.String(), Rank: rankRoot})

	out := dedupe(cands)
	logger.Debug("Discovered %d ico candidates for %s", len(out), pageURL)
	return out
}

// ParseLinks returns the icon links of an HTML document, ICO-looking ones
// first and larger declared sizes before smaller. Links that clearly name
// another image format are skipped.
func ParseLinks(pageURL *url.URL, r io.Reader) ([]Candidate, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	base := pageURL
	var out []Candidate
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "base":
				if href := attr(n, "href"); href != "" {
					if bu, err := url.Parse(href); err == nil {
						base = pageURL.ResolveReference(bu)
					}
				}
			case "link":
				if c, ok := linkCandidate(n, base); ok {
					out = append(out, c)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank < out[j].Rank
		}
		return out[i].MaxEdge > out[j].MaxEdge
	})
	return out, nil
}

func linkCandidate(n *html.Node, base *url.URL) (Candidate, bool) {
	rel := strings.Fields(strings.ToLower(attr(n, "rel")))
	href := attr(n, "href")
	if href == "" || !hasToken(rel, "icon") {
		return Candidate{}, false
	}
	ru, err := url.Parse(href)
	if err != nil {
		return Candidate{}, false
	}
	resolved := base.ResolveReference(ru)
	if !security.IsAllowedScheme(resolved) {
		return Candidate{}, false
	}
	typ := strings.ToLower(attr(n, "type"))
	rank, ok := formatRank(typ, resolved.Path)
	if !ok {
		return Candidate{}, false
	}
	return Candidate{
		URL:     resolved.String(),
		Type:    typ,
		MaxEdge: maxEdge(strings.ToLower(attr(n, "sizes"))),
		Rank:    rank,
	}, true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func hasToken(toks []string, want string) bool {
	for _, t := range toks {
		if t == want {
			return true
		}
	}
	return false
}

func formatRank(typ, p string) (int, bool) {
	if IsICO(typ, p) {
		return rankICO, true
	}
	ct, _, _ := mime.ParseMediaType(typ)
	ext := strings.ToLower(path.Ext(p))
	if strings.HasPrefix(ct, "image/") {
		return 0, false
	}
	switch ext {
	case ".png", ".svg", ".webp", ".avif", ".gif", ".jpg", ".jpeg":
		return 0, false
	}
	return rankUnknown, true
}

// maxEdge returns the largest edge in a sizes attribute like "16x16 32x32".
func maxEdge(sizes string) int {
	best := 0
	for _, p := range strings.Fields(sizes) {
		w, _, ok := strings.Cut(p, "x")
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(w); err == nil && n > best {
			best = n
		}
	}
	return best
}

func dedupe(cands []Candidate) []Candidate {
	seen := make(map[string]struct{}, len(cands))
	out := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		k := CanonicalizeURLString(c.URL)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		c.URL = k
		out = append(out, c)
	}
	return out
}

// CanonicalizeURLString lowercases scheme and host, drops default ports and
// fragments, and cleans the path.
func CanonicalizeURLString(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	h := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		u.Host = h + ":" + port
	} else {
		u.Host = h
	}
	if u.Path == "" {
		u.Path = "/"
	}
	u.Path = path.Clean(u.Path)
	return u.String()
}

// IsICO reports whether a content type or path names an ICO file.
func IsICO(contentType, srcPath string) bool {
	ct, _, _ := mime.ParseMediaType(contentType)
	if ct == "image/x-icon" || ct == "image/vnd.microsoft.icon" || ct == "image/ico" {
		return true
	}
	return strings.EqualFold(path.Ext(srcPath), ".ico")
}

// LooksLikeHTML catches servers that answer icon requests with an error page.
func LooksLikeHTML(b []byte, contentType string) bool {
	if contentType != "" {
		ct, _, _ := mime.ParseMediaType(contentType)
		if strings.Contains(ct, "html") {
			return true
		}
	}
	if len(b) > 512 {
		b = b[:512]
	}
	s := strings.TrimSpace(strings.ToLower(string(b)))
	return strings.HasPrefix(s, "<!doctype html") || strings.HasPrefix(s, "<html")
}
