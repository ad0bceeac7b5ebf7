// Package collector implements the homepage-crawl stage: it discovers
// candidate article URLs per provider, downloads and validates them, and
// writes the accepted articles to the store.
package collector

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"newscrunch/internal/config"
	"newscrunch/internal/core"
	"newscrunch/internal/fetch"
	"newscrunch/internal/logger"
	"newscrunch/internal/parser"
	"newscrunch/internal/persistence"
	"newscrunch/internal/providers"
)

// retryBackoff is the pause before the single parse retry.
var retryBackoff = 2 * time.Second

// ArticleRejected explains why a candidate URL did not become an article.
type ArticleRejected struct {
	URL    string
	Reason string
}

func (e *ArticleRejected) Error() string {
	return fmt.Sprintf("rejected %s: %s", e.URL, e.Reason)
}

// ProviderCount is the per-provider tally of one run.
type ProviderCount struct {
	Provider   string
	Candidates int
	Accepted   int
	Written    int
}

// Stats summarises one collector run.
type Stats struct {
	RunID    string
	Counts   []ProviderCount
	Accepted int
	Written  int
}

// Collector crawls every provider homepage and stores new articles.
type Collector struct {
	store  persistence.Store
	client *fetch.Client
	cfg    config.Collector
	now    func() time.Time
}

// New builds a collector over the given store and HTTP client.
func New(store persistence.Store, client *fetch.Client, cfg config.Collector) *Collector {
	return &Collector{store: store, client: client, cfg: cfg, now: time.Now}
}

// Run executes one full collection pass. With dryRun set, articles are
// validated and counted but never written.
func (c *Collector) Run(ctx context.Context, dryRun bool) (Stats, error) {
	log := logger.Get()
	stats := Stats{RunID: uuid.NewString()}

	provs, err := c.store.Providers().List(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list providers: %w", err)
	}
	known, err := c.store.Articles().URLSet(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to load known URLs: %w", err)
	}

	log.Info("Starting collection", "run_id", stats.RunID, "providers", len(provs))

	var (
		mu       sync.Mutex
		accepted []core.Article
		counts   = make([]ProviderCount, len(provs))
		wg       sync.WaitGroup
	)

	for i, provider := range provs {
		wg.Add(1)
		go func(i int, provider core.Provider) {
			defer wg.Done()
			articles, count := c.collectProvider(ctx, provider, known)
			mu.Lock()
			counts[i] = count
			accepted = append(accepted, articles...)
			mu.Unlock()
		}(i, provider)
	}
	wg.Wait()

	stats.Counts = counts
	stats.Accepted = len(accepted)
	log.Info("Collection finished", "run_id", stats.RunID, "accepted", stats.Accepted)

	if dryRun {
		return stats, nil
	}

	for _, article := range accepted {
		article := article
		inserted, err := c.store.Articles().Create(ctx, &article)
		if err != nil {
			return stats, fmt.Errorf("failed to insert article %s: %w", article.URL, err)
		}
		if !inserted {
			continue
		}
		stats.Written++
		for j := range stats.Counts {
			if provs[j].ID == article.ProviderID {
				stats.Counts[j].Written++
			}
		}
	}
	log.Info("Articles written", "run_id", stats.RunID, "written", stats.Written)
	return stats, nil
}

// collectProvider crawls one provider. Failures are logged and counted, never
// propagated: a broken provider yields zero articles.
func (c *Collector) collectProvider(ctx context.Context, provider core.Provider, known map[string]struct{}) ([]core.Article, ProviderCount) {
	log := logger.Get()
	count := ProviderCount{Provider: provider.Name}

	loc, err := providers.Zone(provider)
	if err != nil {
		logger.Error("Provider has no usable timezone", err, "provider", provider.Name)
		return nil, count
	}

	links, err := c.client.HomepageLinks(ctx, provider.URL)
	if err != nil {
		logger.Error("Homepage crawl failed", err, "provider", provider.Name)
		return nil, count
	}

	seen := make(map[string]bool)
	var candidates []string
	for _, link := range links {
		u := Canonicalise(link)
		if seen[u] {
			continue
		}
		seen[u] = true
		if !providers.Allowed(provider.Name, u) {
			continue
		}
		if _, exists := known[u]; exists {
			continue
		}
		candidates = append(candidates, u)
	}
	count.Candidates = len(candidates)

	var articles []core.Article
	for _, u := range candidates {
		if ctx.Err() != nil {
			break
		}
		article, err := c.downloadArticle(ctx, provider, loc, u)
		if err != nil {
			log.Debug("Candidate dropped", "provider", provider.Name, "url", u, "reason", err.Error())
			continue
		}
		articles = append(articles, article)
		count.Accepted++
		if c.cfg.SourceDelay > 0 {
			time.Sleep(c.cfg.SourceDelay)
		}
	}

	log.Info("Provider collected", "provider", provider.Name,
		"candidates", count.Candidates, "accepted", count.Accepted)
	return articles, count
}

func (c *Collector) downloadArticle(ctx context.Context, provider core.Provider, loc *time.Location, u string) (core.Article, error) {
	doc, err := c.client.Page(ctx, u)
	if err != nil {
		return core.Article{}, &ArticleRejected{URL: u, Reason: err.Error()}
	}

	content, err := parser.ExtractArticle(doc, u)
	if err != nil {
		time.Sleep(retryBackoff)
		content, err = parser.ExtractArticle(doc, u)
		if err != nil {
			return core.Article{}, &ArticleRejected{URL: u, Reason: err.Error()}
		}
	}

	if err := c.validate(provider, loc, u, content); err != nil {
		return core.Article{}, err
	}

	ts, date := NormaliseClock(content.Published, loc)

	article := core.Article{
		ProviderID: provider.ID,
		TS:         ts,
		Date:       date,
		Title:      content.Title,
		Subtitle:   content.Subtitle,
		URL:        u,
		Body:       core.CollapseWhitespace(content.Body),
		ImageURL:   content.ImageURL,
	}
	for _, img := range content.ImageURLs {
		if _, ok := c.client.ScreenImage(ctx, img); ok {
			article.ImageURLs = append(article.ImageURLs, img)
		}
	}
	return article, nil
}

func (c *Collector) validate(provider core.Provider, loc *time.Location, u string, content parser.Content) error {
	if !content.HasPublished {
		return &ArticleRejected{URL: u, Reason: "no publish date"}
	}
	today := c.now().In(loc)
	published := content.Published
	cutoff := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -3)
	if time.Date(published.Year(), published.Month(), published.Day(), 0, 0, 0, 0, time.UTC).Before(cutoff) {
		return &ArticleRejected{URL: u, Reason: "publish date too old"}
	}
	if core.WordCount(content.Title) < 6 {
		return &ArticleRejected{URL: u, Reason: "title too short"}
	}
	if core.WordCount(content.Body) < 18 {
		return &ArticleRejected{URL: u, Reason: "body too short"}
	}
	if !providers.Allowed(provider.Name, u) {
		return &ArticleRejected{URL: u, Reason: "provider filter"}
	}
	return nil
}

// Canonicalise strips the query string and fragment from a URL.
func Canonicalise(rawURL string) string {
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}

// NormaliseClock interprets a parsed wall-clock publish time in the
// provider's timezone and converts it to UTC. A time of exactly midnight
// almost always means the publisher only stamped a date, so it is read as
// noon local to keep the UTC conversion on the same day.
func NormaliseClock(published time.Time, loc *time.Location) (ts time.Time, date time.Time) {
	date = time.Date(published.Year(), published.Month(), published.Day(), 0, 0, 0, 0, time.UTC)
	hour, min, sec := published.Hour(), published.Minute(), published.Second()
	if hour == 0 && min == 0 && sec == 0 {
		hour = 12
	}
	local := time.Date(published.Year(), published.Month(), published.Day(), hour, min, sec, 0, loc)
	return local.UTC(), date
}
