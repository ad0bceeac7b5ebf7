// Package core defines the entities shared across the digest pipeline.
package core

import (
	"fmt"
	"strings"
	"time"
)

// Provider is a news outlet whose homepage the collector crawls.
type Provider struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	URL        string `json:"url"`         // Homepage URL
	FaviconURL string `json:"favicon_url"` // Favicon for the read API
	Country    string `json:"country"`     // Used by the story admission rule
	Timezone   string `json:"timezone"`    // IANA name; empty means the country default applies
}

// Article is one collected news article. Articles are immutable after insertion.
type Article struct {
	ID         int       `json:"id"`
	ProviderID int       `json:"provider_id"`
	TS         time.Time `json:"ts"`   // Publish timestamp, normalised to UTC
	Date       time.Time `json:"date"` // Publish date in the provider's local zone
	Title      string    `json:"title"`
	Subtitle   string    `json:"subtitle"` // Meta description, may be empty
	URL        string    `json:"url"`      // Canonical: no query string, no fragment
	Body       string    `json:"body"`     // Whitespace collapsed to single spaces
	ImageURL   string    `json:"image_url,omitempty"`
	ImageURLs  []string  `json:"image_urls,omitempty"` // Screened candidate images, document order
}

// ArticleEmbedding is the dense vector for one article (1:1).
type ArticleEmbedding struct {
	ArticleID int       `json:"article_id"`
	Embedding []float64 `json:"embedding"`
}

// Story is an admitted cluster of articles about one event.
type Story struct {
	ID          int       `json:"id"`
	TS          time.Time `json:"ts"`
	DigestID    int       `json:"digest_id"`
	DigestLabel string    `json:"digest_label"` // Human label, "YYYYMMDD-<digest_id>"
	Title       string    `json:"title"`        // Headline, at most 15 words
	Summary     string    `json:"summary"`      // At most 150 words
	Coverage    string    `json:"coverage"`     // Coverage comparison, at most 100 words
}

// StoryEmbedding is the dense vector for one story (1:1).
type StoryEmbedding struct {
	StoryID   int       `json:"story_id"`
	Embedding []float64 `json:"embedding"`
}

// KeywordType classifies a named-entity keyword.
type KeywordType string

const (
	KeywordPerson      KeywordType = "PERSON"
	KeywordPlace       KeywordType = "PLACE"
	KeywordEvent       KeywordType = "EVENT"
	KeywordInstitution KeywordType = "INSTITUTION"
	KeywordConcept     KeywordType = "CONCEPT"
	KeywordOther       KeywordType = "OTHER"
)

// ValidKeywordType reports whether t is one of the enumerated keyword types.
func ValidKeywordType(t KeywordType) bool {
	switch t {
	case KeywordPerson, KeywordPlace, KeywordEvent, KeywordInstitution, KeywordConcept, KeywordOther:
		return true
	}
	return false
}

// Keyword is a lemmatised named entity shared across stories and timelines.
// (Text, Type) is unique across the store.
type Keyword struct {
	ID   int         `json:"id"`
	Text string      `json:"text"`
	Type KeywordType `json:"type"`
}

// DigestState is the lifecycle state of a digest. States are strictly ordered;
// a digest only ever moves forward.
type DigestState string

const (
	StateCreated           DigestState = "CREATED"
	StateArticlesCollected DigestState = "ARTICLES_COLLECTED"
	StateArticlesEmbedded  DigestState = "ARTICLES_EMBEDDED"
	StateStoriesGenerated  DigestState = "STORIES_GENERATED"
	StateStoriesEmbedded   DigestState = "STORIES_EMBEDDED"
	StateImagesCollected   DigestState = "IMAGES_COLLECTED"
	StateRundownsGenerated DigestState = "RUNDOWNS_GENERATED"
	StateReady             DigestState = "READY"
)

// DigestStates lists all states in transition order.
var DigestStates = []DigestState{
	StateCreated,
	StateArticlesCollected,
	StateArticlesEmbedded,
	StateStoriesGenerated,
	StateStoriesEmbedded,
	StateImagesCollected,
	StateRundownsGenerated,
	StateReady,
}

// Digest is one periodic batch of stories with its own lifecycle.
type Digest struct {
	ID    int         `json:"id"`
	TS    time.Time   `json:"ts"` // Creation or last state-change time, UTC
	State DigestState `json:"state"`
}

// Label returns the human digest label used on stories, "YYYYMMDD-<id>".
func (d Digest) Label() string {
	return fmt.Sprintf("%s-%d", d.TS.UTC().Format("20060102"), d.ID)
}

// RundownType is one of the fixed digest rundown categories.
type RundownType string

const (
	RundownDaily      RundownType = "Daily News"
	RundownAustralian RundownType = "Australian News"
	RundownUS         RundownType = "US News"
)

// RundownTypes lists every category a digest rundown call must return.
var RundownTypes = []RundownType{RundownDaily, RundownAustralian, RundownUS}

// DigestRundown is a category-scoped prose overview of one digest.
type DigestRundown struct {
	DigestID int         `json:"digest_id"`
	Type     RundownType `json:"type"`
	Text     string      `json:"text"`
}

// Timeline is a multi-day super-story with dated events.
// (DigestID, Subject) is unique.
type Timeline struct {
	ID       int       `json:"id"`
	TS       time.Time `json:"ts"`
	DigestID int       `json:"digest_id"`
	Subject  string    `json:"subject"`  // 2-5 words
	Headline string    `json:"headline"` // At most 15 words
	Summary  string    `json:"summary"`  // At most 250 words
}

// DatePrecision tags how much of a timeline event date the model supplied.
type DatePrecision string

const (
	PrecisionDay   DatePrecision = "D"
	PrecisionMonth DatePrecision = "M"
	PrecisionYear  DatePrecision = "Y"
)

// TimelineEvent is one dated entry of a timeline.
// (TimelineID, Description) is unique.
type TimelineEvent struct {
	TimelineID  int           `json:"timeline_id"`
	StoryID     int           `json:"story_id"`
	Description string        `json:"description"` // At most 10 words
	Date        time.Time     `json:"date"`
	Precision   DatePrecision `json:"precision"`
}

// StoryImage is an externally searched illustration for a story.
type StoryImage struct {
	StoryID    int    `json:"story_id"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	SourcePage string `json:"source_page"`
	Height     int    `json:"height"`
	Width      int    `json:"width"`
	Format     string `json:"format"`
}

// WordCount returns the number of whitespace-separated tokens in s.
// Article validation and LLM payload truncation both count words this way.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// FirstWords returns at most n leading whitespace-separated tokens of s,
// re-joined with single spaces.
func FirstWords(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}

// CollapseWhitespace folds every whitespace run in s into a single space.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
