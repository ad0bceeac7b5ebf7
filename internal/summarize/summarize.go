// Package summarize wraps the chat model for the three structured
// summarisation shapes the pipeline needs: per-story digests, whole-digest
// rundowns and super-story timelines. Every call is schema-constrained,
// validated, and retried on a bounded budget.
package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"newscrunch/internal/core"
	"newscrunch/internal/llm"
	"newscrunch/internal/logger"
)

// maxRetries is how many times a failed call is repeated before giving up.
const maxRetries = 2

// maxOutputTokens caps every summarisation response.
const maxOutputTokens = 2048

// maxKeywords bounds the keyword list on stories and timelines.
const maxKeywords = 10

// payloadBodyWords is how much article body feeds the story digest prompt.
const payloadBodyWords = 200

// SummariserError reports a summarisation task that failed even after
// retries. It aborts the running stage.
type SummariserError struct {
	Task  string
	Cause error
}

func (e *SummariserError) Error() string {
	return fmt.Sprintf("summariser failed on %s: %v", e.Task, e.Cause)
}

func (e *SummariserError) Unwrap() error { return e.Cause }

// KeywordItem is one named entity returned by the model.
type KeywordItem struct {
	Keyword string           `json:"keyword"`
	Type    core.KeywordType `json:"type"`
}

// StoryDigest is the validated per-story summarisation result.
type StoryDigest struct {
	Headline        string        `json:"headline"`
	StorySummary    string        `json:"story_summary"`
	CoverageSummary string        `json:"coverage_summary"`
	Keywords        []KeywordItem `json:"keywords"`
}

// ArticlePayload is one article's contribution to the story digest prompt.
type ArticlePayload struct {
	TS       time.Time
	Provider string
	Title    string
	Body     string
}

// TimelineEventDraft is one validated, date-parsed timeline event.
type TimelineEventDraft struct {
	StoryID     int
	Description string
	Date        time.Time
	Precision   core.DatePrecision
}

// TimelineDraft is the validated timeline summarisation result.
type TimelineDraft struct {
	Subject  string
	Headline string
	Summary  string
	Events   []TimelineEventDraft
	Keywords []KeywordItem
}

// StoryLine is one story's contribution to the rundown or timeline prompt.
type StoryLine struct {
	ID      int
	TS      time.Time
	Title   string
	Summary string
}

// Summariser issues the structured summarisation calls.
type Summariser struct {
	model llm.Generator
}

// New builds a summariser over a generator.
func New(model llm.Generator) *Summariser {
	return &Summariser{model: model}
}

const storyDigestSystem = "You read news articles from several providers covering one news story. " +
	"Return a headline, a summary of the story, a comparison of how the providers cover it, " +
	"and up to 10 named-entity keywords. Keywords are lemmatised English words."

// StoryDigest summarises one cluster of articles.
func (s *Summariser) StoryDigest(ctx context.Context, articles []ArticlePayload) (StoryDigest, error) {
	var b strings.Builder
	b.WriteString("Here are the latest articles about the story:\n")
	for _, a := range articles {
		fmt.Fprintf(&b, "%s\t%s\t%s\n%s\n",
			a.TS.UTC().Format("2006-01-02"), a.Provider, a.Title,
			core.FirstWords(a.Body, payloadBodyWords))
	}

	opts := llm.GenerateOptions{
		System:    storyDigestSystem,
		Schema:    storyDigestSchema(),
		MaxTokens: maxOutputTokens,
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		raw, err := s.model.GenerateJSON(ctx, b.String(), opts)
		if err != nil {
			lastErr = err
			continue
		}
		var digest StoryDigest
		if err := json.Unmarshal([]byte(raw), &digest); err != nil {
			lastErr = err
			continue
		}
		if err := validateStoryDigest(&digest); err != nil {
			lastErr = err
			continue
		}
		return digest, nil
	}
	return StoryDigest{}, &SummariserError{Task: "story digest", Cause: lastErr}
}

func validateStoryDigest(d *StoryDigest) error {
	if d.Headline == "" || d.StorySummary == "" || d.CoverageSummary == "" {
		return fmt.Errorf("missing required field")
	}
	keywords, err := validateKeywords(d.Keywords)
	if err != nil {
		return err
	}
	d.Keywords = keywords
	return nil
}

const rundownSystem = "You take in text from todays news stories and generate rundowns based on given themes."

// Rundowns produces the category-keyed digest rundowns. The response must
// carry exactly the fixed category set.
func (s *Summariser) Rundowns(ctx context.Context, stories []StoryLine) (map[core.RundownType]string, error) {
	var b strings.Builder
	for _, story := range stories {
		fmt.Fprintf(&b, "%s\n%s\n\n", story.Title, story.Summary)
	}

	opts := llm.GenerateOptions{
		System:    rundownSystem,
		Schema:    rundownSchema(),
		MaxTokens: maxOutputTokens,
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		raw, err := s.model.GenerateJSON(ctx, b.String(), opts)
		if err != nil {
			lastErr = err
			continue
		}
		var content map[string]string
		if err := json.Unmarshal([]byte(raw), &content); err != nil {
			lastErr = err
			continue
		}
		rundowns, err := validateRundowns(content)
		if err != nil {
			lastErr = err
			continue
		}
		return rundowns, nil
	}
	return nil, &SummariserError{Task: "digest rundowns", Cause: lastErr}
}

func validateRundowns(content map[string]string) (map[core.RundownType]string, error) {
	if len(content) != len(core.RundownTypes) {
		return nil, fmt.Errorf("expected %d rundown categories, got %d", len(core.RundownTypes), len(content))
	}
	rundowns := make(map[core.RundownType]string, len(core.RundownTypes))
	for _, rt := range core.RundownTypes {
		text, ok := content[string(rt)]
		if !ok || text == "" {
			return nil, fmt.Errorf("missing rundown for %q", rt)
		}
		rundowns[rt] = text
	}
	return rundowns, nil
}

const timelineSystem = "You read several related news stories, published across many days or weeks. " +
	"From the information contained in the stories you will write a subject line, headline, story summary and keywords, " +
	"and then extract important events to build a timeline. " +
	"The subject should describe the specific story and the category of the story. " +
	"The headline should be a newspaper-style attention-grabbing title for the story. " +
	"The story summary should be a concise overview of the story. Include the most important information, and specify dates of specific events. " +
	"The timeline should be a list of events, each with a date, description and story reference. " +
	"Each description should be a single short sentence, the date should be in YYYY-MM-DD format, " +
	"and the story reference is an ID of a story that describes the event."

// eventDateRe is the restricted date grammar: a year, optionally a month,
// optionally a day.
var eventDateRe = regexp.MustCompile(`^\d{4}(-\d{2})?(-\d{2})?$`)

type rawTimeline struct {
	Subject        string        `json:"subject"`
	Headline       string        `json:"headline"`
	Summary        string        `json:"summary"`
	TimelineEvents []rawEvent    `json:"timeline_events"`
	Keywords       []KeywordItem `json:"keywords"`
}

type rawEvent struct {
	Date             string `json:"date"`
	EventDescription string `json:"event_description"`
	StoryReference   int    `json:"story_reference"`
}

// Timeline summarises one super-story into a dated timeline. Stories are
// presented to the model oldest first.
func (s *Summariser) Timeline(ctx context.Context, stories []StoryLine) (TimelineDraft, error) {
	ordered := append([]StoryLine(nil), stories...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].TS.Before(ordered[j].TS) })

	var b strings.Builder
	b.WriteString("Here are the headlines and summaries of the articles about the story:\n")
	for _, story := range ordered {
		fmt.Fprintf(&b, "%s\tID:%d\t%s\n%s\n",
			story.TS.UTC().Format("2006-01-02"), story.ID, story.Title, story.Summary)
	}

	opts := llm.GenerateOptions{
		System:    timelineSystem,
		Schema:    timelineSchema(),
		MaxTokens: maxOutputTokens,
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			logger.Get().Debug("Retrying timeline generation", "attempt", attempt)
		}
		raw, err := s.model.GenerateJSON(ctx, b.String(), opts)
		if err != nil {
			lastErr = err
			continue
		}
		var content rawTimeline
		if err := json.Unmarshal([]byte(raw), &content); err != nil {
			lastErr = err
			continue
		}
		draft, err := validateTimeline(content)
		if err != nil {
			lastErr = err
			continue
		}
		return draft, nil
	}
	return TimelineDraft{}, &SummariserError{Task: "timeline", Cause: lastErr}
}

func validateTimeline(content rawTimeline) (TimelineDraft, error) {
	if content.Subject == "" || content.Headline == "" || content.Summary == "" {
		return TimelineDraft{}, fmt.Errorf("missing required field")
	}
	if len(content.TimelineEvents) == 0 {
		return TimelineDraft{}, fmt.Errorf("no timeline events")
	}

	draft := TimelineDraft{
		Subject:  content.Subject,
		Headline: content.Headline,
		Summary:  content.Summary,
	}
	for _, event := range content.TimelineEvents {
		if event.EventDescription == "" {
			return TimelineDraft{}, fmt.Errorf("empty event description")
		}
		date, precision, err := ParseEventDate(event.Date)
		if err != nil {
			return TimelineDraft{}, err
		}
		draft.Events = append(draft.Events, TimelineEventDraft{
			StoryID:     event.StoryReference,
			Description: event.EventDescription,
			Date:        date,
			Precision:   precision,
		})
	}

	keywords, err := validateKeywords(content.Keywords)
	if err != nil {
		return TimelineDraft{}, err
	}
	if len(keywords) == 0 {
		return TimelineDraft{}, fmt.Errorf("no keywords")
	}
	draft.Keywords = keywords
	return draft, nil
}

// ParseEventDate parses a restricted-grammar date and reports its precision:
// a full date, a month, or a bare year.
func ParseEventDate(s string) (time.Time, core.DatePrecision, error) {
	if !eventDateRe.MatchString(s) {
		return time.Time{}, "", fmt.Errorf("bad event date %q", s)
	}
	switch len(s) {
	case 10:
		date, err := time.Parse("2006-01-02", s)
		return date, core.PrecisionDay, err
	case 7:
		date, err := time.Parse("2006-01", s)
		return date, core.PrecisionMonth, err
	default:
		date, err := time.Parse("2006", s)
		return date, core.PrecisionYear, err
	}
}

func validateKeywords(keywords []KeywordItem) ([]KeywordItem, error) {
	if len(keywords) > maxKeywords {
		keywords = keywords[:maxKeywords]
	}
	for _, k := range keywords {
		if k.Keyword == "" {
			return nil, fmt.Errorf("empty keyword")
		}
		if !core.ValidKeywordType(k.Type) {
			return nil, fmt.Errorf("bad keyword type %q", k.Type)
		}
	}
	return keywords, nil
}
