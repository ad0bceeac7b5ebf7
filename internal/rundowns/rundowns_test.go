package rundowns

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newscrunch/internal/core"
	"newscrunch/internal/llm"
	"newscrunch/internal/persistence"
	"newscrunch/internal/summarize"
)

type fakeGenerator struct {
	response string
	prompts  []string
}

func (f *fakeGenerator) GenerateJSON(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.response, nil
}

func TestRunWritesAllCategories(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemoryStore()
	s := core.Story{TS: time.Now(), DigestID: 4, Title: "Rail approved", Summary: "The council approved it."}
	require.NoError(t, store.Stories().Create(ctx, &s))

	gen := &fakeGenerator{response: `{
		"Daily News": "The day in brief.",
		"Australian News": "Australia in brief.",
		"US News": "The US in brief."
	}`}
	written, err := New(store, summarize.New(gen)).Run(ctx, core.Digest{ID: 4}, false)
	require.NoError(t, err)
	assert.Equal(t, 3, written)

	stored, err := store.Rundowns().ListByDigest(ctx, 4)
	require.NoError(t, err)
	require.Len(t, stored, 3)

	byType := make(map[core.RundownType]string)
	for _, r := range stored {
		byType[r.Type] = r.Text
	}
	assert.Equal(t, "Australia in brief.", byType[core.RundownAustralian])
	assert.Contains(t, gen.prompts[0], "Rail approved")
}

func TestRunFailsWithoutStories(t *testing.T) {
	store := persistence.NewMemoryStore()
	_, err := New(store, summarize.New(&fakeGenerator{})).Run(context.Background(), core.Digest{ID: 1}, false)
	assert.Error(t, err)
}

func TestRunDryRun(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemoryStore()
	s := core.Story{TS: time.Now(), DigestID: 4, Title: "t", Summary: "s"}
	require.NoError(t, store.Stories().Create(ctx, &s))

	gen := &fakeGenerator{response: `{
		"Daily News": "x", "Australian News": "y", "US News": "z"
	}`}
	written, err := New(store, summarize.New(gen)).Run(ctx, core.Digest{ID: 4}, true)
	require.NoError(t, err)
	assert.Equal(t, 3, written)

	stored, err := store.Rundowns().ListByDigest(ctx, 4)
	require.NoError(t, err)
	assert.Empty(t, stored)
}
