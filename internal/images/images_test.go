package images

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newscrunch/internal/core"
	"newscrunch/internal/persistence"
)

type fakeSearcher struct {
	queries []string
	fail    map[string]bool
}

func (f *fakeSearcher) SearchImages(ctx context.Context, query string) ([]core.StoryImage, error) {
	f.queries = append(f.queries, query)
	if f.fail[query] {
		return nil, errors.New("quota exceeded")
	}
	return []core.StoryImage{
		{Title: "img for " + query, URL: "https://img.example/" + query, Width: 800, Height: 600, Format: "image/jpeg"},
	}, nil
}

func seedStory(t *testing.T, store *persistence.MemoryStore, digestID int, title string) int {
	t.Helper()
	s := core.Story{TS: time.Now(), DigestID: digestID, Title: title, Summary: "s"}
	require.NoError(t, store.Stories().Create(context.Background(), &s))
	return s.ID
}

func TestRunCollectsForImagelessStories(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemoryStore()
	first := seedStory(t, store, 2, "first headline")
	second := seedStory(t, store, 2, "second headline")
	// A story that already has an image is skipped.
	require.NoError(t, store.Images().Create(ctx, core.StoryImage{StoryID: second, URL: "https://x/y"}))

	searcher := &fakeSearcher{}
	written, err := New(store, searcher).Run(ctx, core.Digest{ID: 2}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, written)
	assert.Equal(t, []string{"first headline"}, searcher.queries)

	imgs, err := store.Images().ListByStory(ctx, first)
	require.NoError(t, err)
	require.Len(t, imgs, 1)
	assert.Equal(t, first, imgs[0].StoryID)
}

func TestRunSkipsFailedSearches(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemoryStore()
	seedStory(t, store, 1, "failing headline")
	ok := seedStory(t, store, 1, "working headline")

	searcher := &fakeSearcher{fail: map[string]bool{"failing headline": true}}
	written, err := New(store, searcher).Run(ctx, core.Digest{ID: 1}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	imgs, err := store.Images().ListByStory(ctx, ok)
	require.NoError(t, err)
	assert.Len(t, imgs, 1)
}

func TestRunWithoutSearcher(t *testing.T) {
	store := persistence.NewMemoryStore()
	seedStory(t, store, 1, "headline")

	written, err := New(store, nil).Run(context.Background(), core.Digest{ID: 1}, false)
	require.NoError(t, err)
	assert.Equal(t, 0, written)
}
