// Package persistence is the store gateway: every other component reads and
// writes the relational store through the interfaces defined here.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"newscrunch/internal/core"
)

// ErrorKind classifies a StoreError.
type ErrorKind string

const (
	KindTransport  ErrorKind = "transport"
	KindConstraint ErrorKind = "constraint"
	KindNotFound   ErrorKind = "not_found"
	KindScan       ErrorKind = "scan"
)

// StoreError is the typed failure every repository method returns.
type StoreError struct {
	Kind  ErrorKind
	Table string
	Cause error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error (%s) on %s: %v", e.Kind, e.Table, e.Cause)
}

func (e *StoreError) Unwrap() error { return e.Cause }

// IsNotFound reports whether err is a StoreError of kind not_found.
func IsNotFound(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Kind == KindNotFound
}

// ArticleVector is an article embedding joined with the ranking attributes
// the clusterer needs.
type ArticleVector struct {
	ArticleID int
	TS        time.Time
	Title     string
	Body      string
	Provider  string
	Country   string
	Embedding []float64
}

// StoryVector is a story embedding joined with the attributes the timeline
// builder needs.
type StoryVector struct {
	StoryID   int
	TS        time.Time
	Title     string
	Summary   string
	DigestID  int
	Embedding []float64
}

// StoryWithArticles is the read model the view assembler consumes.
type StoryWithArticles struct {
	Story    core.Story
	Articles []ArticleWithProvider
}

// ArticleWithProvider pairs an article with its provider row.
type ArticleWithProvider struct {
	Article  core.Article
	Provider core.Provider
}

// ProviderRepository reads the static provider seed.
type ProviderRepository interface {
	List(ctx context.Context) ([]core.Provider, error)
}

// ArticleRepository stores collected articles.
type ArticleRepository interface {
	// Create inserts the article and fills in its id. Duplicate URLs are
	// ignored; inserted reports whether a row was actually written.
	Create(ctx context.Context, article *core.Article) (inserted bool, err error)
	// URLSet returns every article URL currently stored.
	URLSet(ctx context.Context) (map[string]struct{}, error)
	// ListUnembedded returns articles without an embedding row.
	ListUnembedded(ctx context.Context) ([]core.Article, error)
}

// EmbeddingRepository stores article and story vectors.
type EmbeddingRepository interface {
	CreateArticleEmbedding(ctx context.Context, e core.ArticleEmbedding) error
	CreateStoryEmbedding(ctx context.Context, e core.StoryEmbedding) error
	// ArticleVectors returns embeddings of articles published since the
	// given instant.
	ArticleVectors(ctx context.Context, since time.Time) ([]ArticleVector, error)
	// StoryVectors returns embeddings of stories created since the given
	// instant.
	StoryVectors(ctx context.Context, since time.Time) ([]StoryVector, error)
}

// StoryRepository stores admitted stories and their article mappings.
type StoryRepository interface {
	Create(ctx context.Context, story *core.Story) error
	AddArticle(ctx context.Context, storyID, articleID int) error
	// MaxDigestID returns the highest digest id any story carries; ok is
	// false when there are no stories.
	MaxDigestID(ctx context.Context) (id int, ok bool, err error)
	ListByDigest(ctx context.Context, digestID int) ([]core.Story, error)
	ListUnembedded(ctx context.Context) ([]core.Story, error)
	// WithArticles returns every story of the digest joined with its
	// articles and their providers.
	WithArticles(ctx context.Context, digestID int) ([]StoryWithArticles, error)
}

// KeywordRepository upserts keywords and links them to stories and timelines.
type KeywordRepository interface {
	// Upsert returns the id of the (text, type) keyword, inserting it first
	// if absent.
	Upsert(ctx context.Context, text string, kind core.KeywordType) (int, error)
	LinkStory(ctx context.Context, storyID, keywordID int) error
	LinkTimeline(ctx context.Context, timelineID, keywordID int) error
}

// DigestRepository stores digest lifecycle rows.
type DigestRepository interface {
	Create(ctx context.Context, digest core.Digest) error
	// MaxID returns the highest digest id; ok is false when no digest exists.
	MaxID(ctx context.Context) (id int, ok bool, err error)
	// LatestIncomplete returns the newest digest whose state is not READY.
	// Returns a not_found StoreError when every digest is READY.
	LatestIncomplete(ctx context.Context) (core.Digest, error)
	// LatestReady returns the newest READY digest.
	LatestReady(ctx context.Context) (core.Digest, error)
	// AdvanceState moves the digest from expected to final, bumping its
	// timestamp. moved is false when the digest was not in expected.
	AdvanceState(ctx context.Context, id int, expected, final core.DigestState, ts time.Time) (moved bool, err error)
}

// RundownRepository stores digest rundowns.
type RundownRepository interface {
	Create(ctx context.Context, rundown core.DigestRundown) error
	ListByDigest(ctx context.Context, digestID int) ([]core.DigestRundown, error)
}

// TimelineRepository stores timelines, their events and story mappings.
type TimelineRepository interface {
	Create(ctx context.Context, timeline *core.Timeline) error
	AddEvent(ctx context.Context, event core.TimelineEvent) error
	AddStory(ctx context.Context, timelineID, storyID int) error
	ListByDigest(ctx context.Context, digestID int) ([]core.Timeline, error)
}

// ImageRepository stores searched story images.
type ImageRepository interface {
	Create(ctx context.Context, image core.StoryImage) error
	// StoriesWithout returns stories of the digest that have no image rows.
	StoriesWithout(ctx context.Context, digestID int) ([]core.Story, error)
	ListByStory(ctx context.Context, storyID int) ([]core.StoryImage, error)
}

// Store bundles every repository behind one connection pool.
type Store interface {
	Providers() ProviderRepository
	Articles() ArticleRepository
	Embeddings() EmbeddingRepository
	Stories() StoryRepository
	Keywords() KeywordRepository
	Digests() DigestRepository
	Rundowns() RundownRepository
	Timelines() TimelineRepository
	Images() ImageRepository
	Ping(ctx context.Context) error
	Close() error
}
