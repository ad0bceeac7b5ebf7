package summarize

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newscrunch/internal/core"
	"newscrunch/internal/llm"
)

// fakeGenerator replays canned responses in order.
type fakeGenerator struct {
	responses []string
	prompts   []string
	systems   []string
}

func (f *fakeGenerator) GenerateJSON(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	f.prompts = append(f.prompts, prompt)
	f.systems = append(f.systems, opts.System)
	if len(f.responses) == 0 {
		return "", assert.AnError
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

const validStoryDigest = `{
	"headline": "Council approves light rail extension",
	"story_summary": "The council voted to approve the extension on Thursday.",
	"coverage_summary": "Local outlets led with the cost, national outlets with the politics.",
	"keywords": [{"keyword": "light rail", "type": "CONCEPT"}, {"keyword": "City Council", "type": "INSTITUTION"}]
}`

func TestStoryDigest(t *testing.T) {
	gen := &fakeGenerator{responses: []string{validStoryDigest}}
	s := New(gen)

	digest, err := s.StoryDigest(context.Background(), []ArticlePayload{
		{TS: time.Date(2025, 8, 20, 9, 0, 0, 0, time.UTC), Provider: "ABC", Title: "Rail approved", Body: "body text"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Council approves light rail extension", digest.Headline)
	assert.Len(t, digest.Keywords, 2)
	assert.Equal(t, core.KeywordConcept, digest.Keywords[0].Type)
	assert.Contains(t, gen.prompts[0], "2025-08-20\tABC\tRail approved")
}

func TestStoryDigestRetriesThenSucceeds(t *testing.T) {
	gen := &fakeGenerator{responses: []string{
		`not json`,
		`{"headline": "", "story_summary": "s", "coverage_summary": "c", "keywords": []}`,
		validStoryDigest,
	}}
	s := New(gen)

	digest, err := s.StoryDigest(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Council approves light rail extension", digest.Headline)
	assert.Len(t, gen.prompts, 3)
}

func TestStoryDigestExhaustsRetryBudget(t *testing.T) {
	gen := &fakeGenerator{responses: []string{`bad`, `bad`, `bad`, validStoryDigest}}
	s := New(gen)

	_, err := s.StoryDigest(context.Background(), nil)
	var se *SummariserError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "story digest", se.Task)
	// The fourth response is never requested.
	assert.Len(t, gen.prompts, 3)
}

func TestStoryDigestRejectsBadKeywordType(t *testing.T) {
	gen := &fakeGenerator{responses: []string{
		`{"headline": "h", "story_summary": "s", "coverage_summary": "c",
		  "keywords": [{"keyword": "x", "type": "ANIMAL"}]}`,
	}}
	s := New(gen)
	_, err := s.StoryDigest(context.Background(), nil)
	assert.Error(t, err)
}

func TestRundowns(t *testing.T) {
	gen := &fakeGenerator{responses: []string{
		`{"Daily News": "The day in brief.", "Australian News": "Australia in brief.", "US News": "The US in brief."}`,
	}}
	s := New(gen)

	rundowns, err := s.Rundowns(context.Background(), []StoryLine{
		{Title: "Rail approved", Summary: "The council approved it."},
	})
	require.NoError(t, err)
	assert.Equal(t, "The day in brief.", rundowns[core.RundownDaily])
	assert.Equal(t, "Australia in brief.", rundowns[core.RundownAustralian])
	assert.Equal(t, "The US in brief.", rundowns[core.RundownUS])
}

func TestRundownsRejectsMissingCategory(t *testing.T) {
	gen := &fakeGenerator{responses: []string{
		`{"Daily News": "x", "Australian News": "y"}`,
		`{"Daily News": "x", "Australian News": "y"}`,
		`{"Daily News": "x", "Australian News": "y"}`,
	}}
	s := New(gen)
	_, err := s.Rundowns(context.Background(), nil)
	var se *SummariserError
	require.ErrorAs(t, err, &se)
}

const validTimeline = `{
	"subject": "Light rail politics",
	"headline": "Rail fight ends after months of delay",
	"summary": "A long dispute over the extension ended this week.",
	"timeline_events": [
		{"date": "2025-06-10", "event_description": "Extension first proposed", "story_reference": 4},
		{"date": "2025-07", "event_description": "Funding dispute stalls project", "story_reference": 9},
		{"date": "2025-08-20", "event_description": "Council approves extension", "story_reference": 12}
	],
	"keywords": [{"keyword": "light rail", "type": "CONCEPT"}]
}`

func TestTimeline(t *testing.T) {
	gen := &fakeGenerator{responses: []string{validTimeline}}
	s := New(gen)

	draft, err := s.Timeline(context.Background(), []StoryLine{
		{ID: 12, TS: time.Date(2025, 8, 20, 0, 0, 0, 0, time.UTC), Title: "newest", Summary: "s"},
		{ID: 4, TS: time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC), Title: "oldest", Summary: "s"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Light rail politics", draft.Subject)
	require.Len(t, draft.Events, 3)
	assert.Equal(t, core.PrecisionDay, draft.Events[0].Precision)
	assert.Equal(t, core.PrecisionMonth, draft.Events[1].Precision)
	assert.Equal(t, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), draft.Events[1].Date)
	assert.Equal(t, 9, draft.Events[1].StoryID)

	// Stories are presented oldest first.
	oldestIdx := len("Here are the headlines and summaries of the articles about the story:\n")
	assert.Contains(t, gen.prompts[0][oldestIdx:], "ID:4")
	assert.Less(t,
		indexOf(gen.prompts[0], "ID:4"),
		indexOf(gen.prompts[0], "ID:12"))
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

func TestTimelineRejectsBadDate(t *testing.T) {
	bad := `{
		"subject": "s", "headline": "h", "summary": "sum",
		"timeline_events": [{"date": "June 2025", "event_description": "d", "story_reference": 1}],
		"keywords": [{"keyword": "k", "type": "OTHER"}]
	}`
	gen := &fakeGenerator{responses: []string{bad, bad, bad}}
	s := New(gen)
	_, err := s.Timeline(context.Background(), nil)
	var se *SummariserError
	require.ErrorAs(t, err, &se)
}

func TestParseEventDate(t *testing.T) {
	date, precision, err := ParseEventDate("2025-08-20")
	require.NoError(t, err)
	assert.Equal(t, core.PrecisionDay, precision)
	assert.Equal(t, time.Date(2025, 8, 20, 0, 0, 0, 0, time.UTC), date)

	date, precision, err = ParseEventDate("2025-08")
	require.NoError(t, err)
	assert.Equal(t, core.PrecisionMonth, precision)
	assert.Equal(t, time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC), date)

	date, precision, err = ParseEventDate("2025")
	require.NoError(t, err)
	assert.Equal(t, core.PrecisionYear, precision)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), date)

	_, _, err = ParseEventDate("08-20-2025")
	assert.Error(t, err)
}
