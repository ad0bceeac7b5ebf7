// Package images collects illustrations for stories through the Google
// Custom Search image API.
package images

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"newscrunch/internal/config"
	"newscrunch/internal/core"
	"newscrunch/internal/logger"
	"newscrunch/internal/persistence"
)

const searchEndpoint = "https://www.googleapis.com/customsearch/v1"

// Searcher finds candidate images for a query.
type Searcher interface {
	SearchImages(ctx context.Context, query string) ([]core.StoryImage, error)
}

// GoogleSearcher implements Searcher over the Custom Search API.
type GoogleSearcher struct {
	apiKey     string
	engineID   string
	maxResults int
	client     *http.Client
	rateLimit  time.Duration
	lastCall   time.Time
}

// NewGoogleSearcher builds a searcher from configuration.
func NewGoogleSearcher(cfg config.ImageSearch) *GoogleSearcher {
	return &GoogleSearcher{
		apiKey:     cfg.APIKey,
		engineID:   cfg.EngineID,
		maxResults: cfg.MaxResults,
		client:     &http.Client{Timeout: 30 * time.Second},
		rateLimit:  100 * time.Millisecond,
	}
}

// SearchImages runs one image search and returns the results without a
// story id; the caller assigns them.
func (g *GoogleSearcher) SearchImages(ctx context.Context, query string) ([]core.StoryImage, error) {
	if elapsed := time.Since(g.lastCall); elapsed < g.rateLimit {
		time.Sleep(g.rateLimit - elapsed)
	}
	g.lastCall = time.Now()

	num := g.maxResults
	if num <= 0 || num > 10 {
		num = 10
	}
	params := url.Values{}
	params.Set("key", g.apiKey)
	params.Set("cx", g.engineID)
	params.Set("q", query)
	params.Set("searchType", "image")
	params.Set("num", strconv.Itoa(num))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create image search request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image search request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image search failed with status %d", resp.StatusCode)
	}

	var apiResponse struct {
		Items []struct {
			Title string `json:"title"`
			Link  string `json:"link"`
			Mime  string `json:"mime"`
			Image struct {
				ContextLink string `json:"contextLink"`
				Height      int    `json:"height"`
				Width       int    `json:"width"`
			} `json:"image"`
		} `json:"items"`
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error,omitempty"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, fmt.Errorf("failed to parse image search response: %w", err)
	}
	if apiResponse.Error.Code != 0 {
		return nil, fmt.Errorf("image search API error (%d): %s", apiResponse.Error.Code, apiResponse.Error.Message)
	}

	results := make([]core.StoryImage, 0, len(apiResponse.Items))
	for _, item := range apiResponse.Items {
		results = append(results, core.StoryImage{
			Title:      item.Title,
			URL:        item.Link,
			SourcePage: item.Image.ContextLink,
			Height:     item.Image.Height,
			Width:      item.Image.Width,
			Format:     item.Mime,
		})
	}
	return results, nil
}

// Stage collects images for every story of a digest that has none.
type Stage struct {
	store    persistence.Store
	searcher Searcher
}

// New builds an image collection stage. A nil searcher makes the stage a
// no-op, so the pipeline still advances without search credentials.
func New(store persistence.Store, searcher Searcher) *Stage {
	return &Stage{store: store, searcher: searcher}
}

// Run searches images for every image-less story of the digest and records
// the results. Per-story search failures are logged and skipped.
func (s *Stage) Run(ctx context.Context, d core.Digest, dryRun bool) (int, error) {
	log := logger.Get()
	if s.searcher == nil {
		log.Warn("Image search is not configured; skipping image collection", "digest_id", d.ID)
		return 0, nil
	}

	stories, err := s.store.Images().StoriesWithout(ctx, d.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to list stories without images: %w", err)
	}
	log.Info("Collecting images", "digest_id", d.ID, "stories", len(stories))

	written := 0
	for _, story := range stories {
		results, err := s.searcher.SearchImages(ctx, story.Title)
		if err != nil {
			logger.Error("Image search failed", err, "story_id", story.ID)
			continue
		}
		if dryRun {
			written += len(results)
			continue
		}
		for _, img := range results {
			img.StoryID = story.ID
			if err := s.store.Images().Create(ctx, img); err != nil {
				return written, fmt.Errorf("failed to store image for story %d: %w", story.ID, err)
			}
			written++
		}
	}
	log.Info("Images collected", "digest_id", d.ID, "images", written)
	return written, nil
}
