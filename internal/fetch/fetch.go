// Package fetch is the HTTP layer of the collector: homepage crawls, article
// downloads and candidate image screening all go through one Client.
package fetch

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"newscrunch/internal/config"
)

// Client wraps an http.Client with the crawl configuration.
type Client struct {
	http      *http.Client
	userAgent string
	cfg       config.Collector
}

// NewClient builds a Client from the collector configuration.
func NewClient(cfg config.Collector) *Client {
	return &Client{
		http:      &http.Client{Timeout: cfg.FetchTimeout},
		userAgent: cfg.UserAgent,
		cfg:       cfg,
	}
}

func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to fetch %s: status code %d", rawURL, resp.StatusCode)
	}
	return resp, nil
}

// Page downloads a URL and parses it as an HTML document.
func (c *Client) Page(ctx context.Context, rawURL string) (*goquery.Document, error) {
	resp, err := c.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "html") && !strings.Contains(ct, "xml") {
		return nil, fmt.Errorf("unexpected content type %q for %s", ct, rawURL)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", rawURL, err)
	}
	return doc, nil
}

// HomepageLinks downloads a provider homepage and returns every same-site
// http(s) link on it, absolute, deduplicated, in document order.
func (c *Client) HomepageLinks(ctx context.Context, homepage string) ([]string, error) {
	base, err := url.Parse(homepage)
	if err != nil {
		return nil, fmt.Errorf("bad homepage URL %s: %w", homepage, err)
	}

	doc, err := c.Page(ctx, homepage)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		resolved, err := base.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		if !sameSite(base.Hostname(), resolved.Hostname()) {
			return
		}
		u := resolved.String()
		if !seen[u] {
			seen[u] = true
			links = append(links, u)
		}
	})
	return links, nil
}

// sameSite compares hostnames ignoring subdomains, so www.example.com and
// edition.example.com both count as example.com.
func sameSite(a, b string) bool {
	return registrableDomain(a) == registrableDomain(b)
}

func registrableDomain(host string) string {
	parts := strings.Split(host, ".")
	if len(parts) <= 2 {
		return host
	}
	// Two-level public suffixes like co.uk and com.au keep three labels.
	last := parts[len(parts)-1]
	second := parts[len(parts)-2]
	if len(last) == 2 && (second == "co" || second == "com" || second == "net" || second == "org") {
		return strings.Join(parts[len(parts)-3:], ".")
	}
	return strings.Join(parts[len(parts)-2:], ".")
}

// ImageInfo describes a screened remote image.
type ImageInfo struct {
	Width  int
	Height int
	Format string
}

// ScreenImage downloads an image URL and reports whether it is usable as an
// article illustration: an image content type and at least 100px on each
// side. Logos and icons almost always fail the size gate.
func (c *Client) ScreenImage(ctx context.Context, rawURL string) (ImageInfo, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ImageGetTimeout)
	defer cancel()

	resp, err := c.get(ctx, rawURL)
	if err != nil {
		return ImageInfo{}, false
	}
	defer resp.Body.Close()

	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "image/") {
		return ImageInfo{}, false
	}

	cfg, format, err := image.DecodeConfig(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return ImageInfo{}, false
	}
	if cfg.Width < 100 || cfg.Height < 100 {
		return ImageInfo{}, false
	}
	return ImageInfo{Width: cfg.Width, Height: cfg.Height, Format: format}, true
}
