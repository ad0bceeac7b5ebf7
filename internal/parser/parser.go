// Package parser extracts article content from downloaded news pages: title,
// description, body text, publish time and images.
package parser

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ParseError reports a page that could not be interpreted as an article.
type ParseError struct {
	URL    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error for %s: %s", e.URL, e.Reason)
}

// Content is everything the collector keeps from one article page.
//
// Published is a wall-clock reading: publishers rarely agree on how they
// annotate zones, so the raw components are kept as-is and the collector
// interprets them in the provider's timezone.
type Content struct {
	Title        string
	Subtitle     string
	Body         string
	Published    time.Time
	HasPublished bool
	ImageURL     string
	ImageURLs    []string
}

// Selectors tried in order when looking for the main article body.
var bodySelectors = []string{
	"article",
	"main",
	"[role='main']",
	".article-body",
	".story-body",
	".entry-content",
	".post-content",
	"#content",
}

// ExtractArticle interprets a downloaded page as a news article.
func ExtractArticle(doc *goquery.Document, pageURL string) (Content, error) {
	var c Content

	c.Title = extractTitle(doc)
	c.Subtitle, _ = doc.Find("meta[name='description']").Attr("content")
	c.Subtitle = strings.TrimSpace(c.Subtitle)

	c.Body = extractBody(doc)
	if c.Body == "" {
		return Content{}, &ParseError{URL: pageURL, Reason: "no article body found"}
	}

	if ts, ok := extractPublished(doc); ok {
		c.Published = ts
		c.HasPublished = true
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return Content{}, &ParseError{URL: pageURL, Reason: "unparsable page URL"}
	}
	if og, ok := doc.Find("meta[property='og:image']").Attr("content"); ok {
		if abs := absolutize(base, og); abs != "" {
			c.ImageURL = abs
		}
	}
	c.ImageURLs = extractImages(doc, base)

	return c, nil
}

func extractTitle(doc *goquery.Document) string {
	if og, ok := doc.Find("meta[property='og:title']").Attr("content"); ok {
		if t := strings.TrimSpace(og); t != "" {
			return t
		}
	}
	if t := strings.TrimSpace(doc.Find("h1").First().Text()); t != "" {
		return t
	}
	return strings.TrimSpace(doc.Find("head title").First().Text())
}

func extractBody(doc *goquery.Document) string {
	cleaned := doc.Clone()
	cleaned.Find("script, style, nav, footer, header, aside, form, iframe, noscript, figure, figcaption").Remove()

	for _, selector := range bodySelectors {
		var paragraphs []string
		cleaned.Find(selector).First().Find("p").Each(func(_ int, s *goquery.Selection) {
			if p := strings.TrimSpace(s.Text()); p != "" {
				paragraphs = append(paragraphs, p)
			}
		})
		if len(paragraphs) > 0 {
			return strings.Join(paragraphs, "\n\n")
		}
	}

	// No recognised container; fall back to every paragraph on the page.
	var paragraphs []string
	cleaned.Find("body p").Each(func(_ int, s *goquery.Selection) {
		if p := strings.TrimSpace(s.Text()); p != "" {
			paragraphs = append(paragraphs, p)
		}
	})
	return strings.Join(paragraphs, "\n\n")
}

// Publish time sources tried in order.
var publishedMetaSelectors = []string{
	"meta[property='article:published_time']",
	"meta[name='article:published_time']",
	"meta[property='og:published_time']",
	"meta[name='date']",
	"meta[name='dc.date']",
	"meta[itemprop='datePublished']",
}

func extractPublished(doc *goquery.Document) (time.Time, bool) {
	for _, selector := range publishedMetaSelectors {
		if content, ok := doc.Find(selector).Attr("content"); ok {
			if ts, ok := parseClock(content); ok {
				return ts, true
			}
		}
	}
	if ts, ok := extractJSONLDPublished(doc); ok {
		return ts, true
	}
	if datetime, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
		if ts, ok := parseClock(datetime); ok {
			return ts, true
		}
	}
	return time.Time{}, false
}

func extractJSONLDPublished(doc *goquery.Document) (time.Time, bool) {
	var found time.Time
	ok := false
	doc.Find("script[type='application/ld+json']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if ts, hit := jsonLDDate([]byte(s.Text())); hit {
			found, ok = ts, true
			return false
		}
		return true
	})
	return found, ok
}

// jsonLDDate digs datePublished out of a JSON-LD blob, which may be a single
// object, an array, or a @graph wrapper.
func jsonLDDate(raw []byte) (time.Time, bool) {
	var node any
	if err := json.Unmarshal(raw, &node); err != nil {
		return time.Time{}, false
	}
	return walkJSONLD(node, 0)
}

func walkJSONLD(node any, depth int) (time.Time, bool) {
	if depth > 4 {
		return time.Time{}, false
	}
	switch v := node.(type) {
	case map[string]any:
		if s, ok := v["datePublished"].(string); ok {
			if ts, ok := parseClock(s); ok {
				return ts, true
			}
		}
		if graph, ok := v["@graph"]; ok {
			return walkJSONLD(graph, depth+1)
		}
	case []any:
		for _, item := range v {
			if ts, ok := walkJSONLD(item, depth+1); ok {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

// clockLayouts cover the datetime spellings seen across provider pages. Zone
// suffixes are parsed but discarded: only the wall-clock components survive.
var clockLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.999Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02",
	"January 2, 2006",
	"2 January 2006",
}

func parseClock(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range clockLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			// Strip any parsed offset, keeping the wall clock.
			return time.Date(ts.Year(), ts.Month(), ts.Day(),
				ts.Hour(), ts.Minute(), ts.Second(), 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

func extractImages(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]bool)
	var images []string
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		abs := absolutize(base, src)
		if abs == "" || seen[abs] {
			return
		}
		seen[abs] = true
		images = append(images, abs)
	})
	return images
}

func absolutize(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "data:") {
		return ""
	}
	resolved, err := base.Parse(ref)
	if err != nil {
		return ""
	}
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}
