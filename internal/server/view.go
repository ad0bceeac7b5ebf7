package server

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"newscrunch/internal/logger"
	"newscrunch/internal/persistence"
)

// maxSampledImages caps the illustrations shown per story.
const maxSampledImages = 3

// ProviderView is the provider block embedded in article views.
type ProviderView struct {
	Name       string `json:"name"`
	URL        string `json:"url"`
	FaviconURL string `json:"favicon_url"`
	Country    string `json:"country"`
}

// ArticleView is one member article of a story, newest first.
type ArticleView struct {
	ID       int          `json:"id"`
	TS       time.Time    `json:"ts"`
	Title    string       `json:"title"`
	Subtitle string       `json:"subtitle,omitempty"`
	URL      string       `json:"url"`
	Provider ProviderView `json:"provider"`
}

// ImageView is one sampled story illustration with its source attribution.
type ImageView struct {
	URL        string `json:"url"`
	ArticleURL string `json:"article_url"`
	Provider   string `json:"provider"`
}

// SearchedImageView is one externally searched story illustration.
type SearchedImageView struct {
	Title      string `json:"title"`
	URL        string `json:"url"`
	SourcePage string `json:"source_page"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Format     string `json:"format"`
}

// StoryView is the read API's story shape. Summary and coverage are
// sentence arrays so clients can lay them out line by line.
type StoryView struct {
	ID            int                 `json:"id"`
	TS            time.Time           `json:"ts"`
	Title         string              `json:"title"`
	Summary       []string            `json:"summary"`
	Coverage      []string            `json:"coverage"`
	NArticles     int                 `json:"n_articles"`
	NProviders    int                 `json:"n_providers"`
	NCountries    int                 `json:"n_countries"`
	Articles      []ArticleView       `json:"articles"`
	Images        []ImageView         `json:"images"`
	Illustrations []SearchedImageView `json:"illustrations,omitempty"`
}

// snapshot is one immutable view of the latest READY digest. Readers swap
// between whole snapshots, never see a partial update.
type snapshot struct {
	digestID int
	ready    bool
	stories  []StoryView
	byID     map[int]int
	builtAt  time.Time
}

// Assembler builds and serves ranked story snapshots.
type Assembler struct {
	store persistence.Store
	snap  atomic.Pointer[snapshot]
	rng   func(n int) int
	now   func() time.Time
}

// NewAssembler builds an assembler over the store with an empty snapshot.
func NewAssembler(store persistence.Store) *Assembler {
	a := &Assembler{store: store, rng: rand.Intn, now: time.Now}
	a.snap.Store(&snapshot{byID: map[int]int{}})
	return a
}

// Refresh rebuilds the snapshot from the latest READY digest and swaps it
// in. Without a READY digest the snapshot is empty. Image samples are drawn
// here, once, so a story's images are stable until the next refresh.
func (a *Assembler) Refresh(ctx context.Context) error {
	log := logger.Get()

	d, err := a.store.Digests().LatestReady(ctx)
	if err != nil {
		if persistence.IsNotFound(err) {
			a.snap.Store(&snapshot{byID: map[int]int{}, builtAt: a.now()})
			log.Info("No ready digest; serving empty snapshot")
			return nil
		}
		return fmt.Errorf("failed to find ready digest: %w", err)
	}

	joined, err := a.store.Stories().WithArticles(ctx, d.ID)
	if err != nil {
		return fmt.Errorf("failed to load digest %d stories: %w", d.ID, err)
	}

	next := &snapshot{
		digestID: d.ID,
		ready:    true,
		byID:     make(map[int]int, len(joined)),
		builtAt:  a.now(),
	}
	for _, swa := range joined {
		view := a.buildStoryView(swa)
		searched, err := a.store.Images().ListByStory(ctx, swa.Story.ID)
		if err != nil {
			return fmt.Errorf("failed to load story %d images: %w", swa.Story.ID, err)
		}
		for _, img := range searched {
			view.Illustrations = append(view.Illustrations, SearchedImageView{
				Title:      img.Title,
				URL:        img.URL,
				SourcePage: img.SourcePage,
				Width:      img.Width,
				Height:     img.Height,
				Format:     img.Format,
			})
		}
		next.stories = append(next.stories, view)
	}
	// Broad stories first: many providers, many articles.
	sort.SliceStable(next.stories, func(i, j int) bool {
		return next.stories[i].NProviders*next.stories[i].NArticles >
			next.stories[j].NProviders*next.stories[j].NArticles
	})
	for i, story := range next.stories {
		next.byID[story.ID] = i
	}

	a.snap.Store(next)
	log.Info("Snapshot refreshed", "digest_id", d.ID, "stories", len(next.stories))
	return nil
}

func (a *Assembler) buildStoryView(swa persistence.StoryWithArticles) StoryView {
	view := StoryView{
		ID:       swa.Story.ID,
		TS:       swa.Story.TS,
		Title:    swa.Story.Title,
		Summary:  SplitSentences(swa.Story.Summary),
		Coverage: SplitSentences(swa.Story.Coverage),
	}

	providers := make(map[string]struct{})
	countries := make(map[string]struct{})
	var illustrated []persistence.ArticleWithProvider
	for _, awp := range swa.Articles {
		providers[awp.Provider.Name] = struct{}{}
		countries[awp.Provider.Country] = struct{}{}
		view.Articles = append(view.Articles, ArticleView{
			ID:       awp.Article.ID,
			TS:       awp.Article.TS,
			Title:    awp.Article.Title,
			Subtitle: awp.Article.Subtitle,
			URL:      awp.Article.URL,
			Provider: ProviderView{
				Name:       awp.Provider.Name,
				URL:        awp.Provider.URL,
				FaviconURL: awp.Provider.FaviconURL,
				Country:    awp.Provider.Country,
			},
		})
		if articleImage(awp) != "" {
			illustrated = append(illustrated, awp)
		}
	}
	sort.Slice(view.Articles, func(i, j int) bool { return view.Articles[i].TS.After(view.Articles[j].TS) })

	view.NArticles = len(swa.Articles)
	view.NProviders = len(providers)
	view.NCountries = len(countries)
	view.Images = a.sampleImages(illustrated)
	return view
}

// sampleImages draws up to three articles uniformly without replacement.
func (a *Assembler) sampleImages(illustrated []persistence.ArticleWithProvider) []ImageView {
	if len(illustrated) == 0 {
		return nil
	}
	pool := append([]persistence.ArticleWithProvider(nil), illustrated...)
	n := maxSampledImages
	if len(pool) < n {
		n = len(pool)
	}
	images := make([]ImageView, 0, n)
	for i := 0; i < n; i++ {
		j := i + a.rng(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
		images = append(images, ImageView{
			URL:        articleImage(pool[i]),
			ArticleURL: pool[i].Article.URL,
			Provider:   pool[i].Provider.Name,
		})
	}
	return images
}

func articleImage(awp persistence.ArticleWithProvider) string {
	if awp.Article.ImageURL != "" {
		return awp.Article.ImageURL
	}
	if len(awp.Article.ImageURLs) > 0 {
		return awp.Article.ImageURLs[0]
	}
	return ""
}

// Stories returns the ranked stories of the current snapshot.
func (a *Assembler) Stories() []StoryView {
	return a.snap.Load().stories
}

// Story returns one story by id from the current snapshot.
func (a *Assembler) Story(id int) (StoryView, bool) {
	snap := a.snap.Load()
	idx, ok := snap.byID[id]
	if !ok {
		return StoryView{}, false
	}
	return snap.stories[idx], true
}

// Status describes the current snapshot for the status endpoint.
func (a *Assembler) Status() (digestID int, ready bool, stories int, builtAt time.Time) {
	snap := a.snap.Load()
	return snap.digestID, snap.ready, len(snap.stories), snap.builtAt
}

// sentenceEnders terminate a sentence when followed by whitespace.
const sentenceEnders = ".!?"

// SplitSentences tokenises prose into sentences. A sentence ends at a
// terminator followed by whitespace; trailing punctuation stays attached.
func SplitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var sentences []string
	start := 0
	for i := 0; i < len(text); i++ {
		if !strings.ContainsRune(sentenceEnders, rune(text[i])) {
			continue
		}
		// Swallow runs like "?!" or "...".
		end := i + 1
		for end < len(text) && strings.ContainsRune(sentenceEnders, rune(text[end])) {
			end++
		}
		if end < len(text) && text[end] != ' ' && text[end] != '\n' && text[end] != '\t' {
			i = end - 1
			continue
		}
		if s := strings.TrimSpace(text[start:end]); s != "" {
			sentences = append(sentences, s)
		}
		start = end
		i = end - 1
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
