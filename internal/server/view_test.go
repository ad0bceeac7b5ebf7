package server

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newscrunch/internal/core"
	"newscrunch/internal/persistence"
)

func seedReadyDigest(t *testing.T, store *persistence.MemoryStore, id int) core.Digest {
	t.Helper()
	ctx := context.Background()
	d := core.Digest{ID: id, TS: time.Now().UTC(), State: core.StateCreated}
	require.NoError(t, store.Digests().Create(ctx, d))
	for i, state := range core.DigestStates[:len(core.DigestStates)-1] {
		moved, err := store.Digests().AdvanceState(ctx, id, state, core.DigestStates[i+1], d.TS)
		require.NoError(t, err)
		require.True(t, moved)
	}
	d.State = core.StateReady
	return d
}

// seedStory writes one story with nArticles articles spread over nProviders
// providers; withImages of them carry an image URL.
func seedStory(t *testing.T, store *persistence.MemoryStore, digestID, nProviders, nArticles, withImages int, title string) int {
	t.Helper()
	ctx := context.Background()

	providers := make([]core.Provider, nProviders)
	existing, err := store.Providers().List(ctx)
	require.NoError(t, err)
	base := len(existing)
	for i := range providers {
		providers[i] = core.Provider{
			ID:      base + i + 1,
			Name:    fmt.Sprintf("Provider %d-%d", digestID, base+i),
			URL:     fmt.Sprintf("https://p%d-%d.example", digestID, base+i),
			Country: "Australia",
		}
	}
	store.SeedProviders(append(existing, providers...))

	s := core.Story{TS: time.Now().UTC(), DigestID: digestID, Title: title,
		Summary: "First thing happened. Second thing happened.", Coverage: "Outlets agree."}
	require.NoError(t, store.Stories().Create(ctx, &s))

	for i := 0; i < nArticles; i++ {
		a := core.Article{
			ProviderID: providers[i%nProviders].ID,
			TS:         time.Now().UTC().Add(-time.Duration(i) * time.Hour),
			Title:      fmt.Sprintf("%s article %d", title, i),
			URL:        fmt.Sprintf("https://p.example/%s/%d", title, i),
			Body:       "body",
		}
		if i < withImages {
			a.ImageURL = fmt.Sprintf("https://img.example/%s/%d.jpg", title, i)
		}
		inserted, err := store.Articles().Create(ctx, &a)
		require.NoError(t, err)
		require.True(t, inserted)
		require.NoError(t, store.Stories().AddArticle(ctx, s.ID, a.ID))
	}
	return s.ID
}

func TestRefreshWithoutReadyDigest(t *testing.T) {
	a := NewAssembler(persistence.NewMemoryStore())
	require.NoError(t, a.Refresh(context.Background()))

	assert.Empty(t, a.Stories())
	_, ready, stories, _ := a.Status()
	assert.False(t, ready)
	assert.Zero(t, stories)
}

func TestRefreshRanksBroadStoriesFirst(t *testing.T) {
	store := persistence.NewMemoryStore()
	seedReadyDigest(t, store, 3)
	narrow := seedStory(t, store, 3, 2, 3, 0, "narrow")
	broad := seedStory(t, store, 3, 5, 8, 0, "broad")
	middle := seedStory(t, store, 3, 3, 4, 0, "middle")

	a := NewAssembler(store)
	require.NoError(t, a.Refresh(context.Background()))

	stories := a.Stories()
	require.Len(t, stories, 3)
	assert.Equal(t, []int{broad, middle, narrow},
		[]int{stories[0].ID, stories[1].ID, stories[2].ID})
	assert.Equal(t, 5, stories[0].NProviders)
	assert.Equal(t, 8, stories[0].NArticles)
	assert.Equal(t, 1, stories[0].NCountries)

	got, ok := a.Story(middle)
	require.True(t, ok)
	assert.Equal(t, "middle", got.Title)
	_, ok = a.Story(9999)
	assert.False(t, ok)
}

func TestStoryViewShape(t *testing.T) {
	store := persistence.NewMemoryStore()
	seedReadyDigest(t, store, 1)
	id := seedStory(t, store, 1, 3, 4, 0, "flood")

	a := NewAssembler(store)
	require.NoError(t, a.Refresh(context.Background()))

	view, ok := a.Story(id)
	require.True(t, ok)
	assert.Equal(t, []string{"First thing happened.", "Second thing happened."}, view.Summary)
	assert.Equal(t, []string{"Outlets agree."}, view.Coverage)
	require.Len(t, view.Articles, 4)
	for i := 1; i < len(view.Articles); i++ {
		assert.False(t, view.Articles[i].TS.After(view.Articles[i-1].TS), "articles must be newest first")
	}
	assert.NotEmpty(t, view.Articles[0].Provider.Name)
}

func TestSampleImagesCapAndFreeze(t *testing.T) {
	store := persistence.NewMemoryStore()
	seedReadyDigest(t, store, 1)
	id := seedStory(t, store, 1, 4, 10, 4, "storm")

	a := NewAssembler(store)
	a.rng = func(n int) int { return n - 1 } // deterministic draws
	require.NoError(t, a.Refresh(context.Background()))

	view, ok := a.Story(id)
	require.True(t, ok)
	require.Len(t, view.Images, 3)
	seen := make(map[string]struct{})
	for _, img := range view.Images {
		assert.Contains(t, img.URL, "img.example")
		seen[img.URL] = struct{}{}
	}
	assert.Len(t, seen, 3, "images must be distinct")

	// Repeated reads return the same frozen sample.
	again, _ := a.Story(id)
	assert.Equal(t, view.Images, again.Images)
}

func TestSampleImagesFewerThanCap(t *testing.T) {
	store := persistence.NewMemoryStore()
	seedReadyDigest(t, store, 1)
	id := seedStory(t, store, 1, 2, 5, 2, "fire")

	a := NewAssembler(store)
	require.NoError(t, a.Refresh(context.Background()))

	view, _ := a.Story(id)
	assert.Len(t, view.Images, 2)
}

func TestSearchedIllustrationsAttached(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemoryStore()
	seedReadyDigest(t, store, 1)
	id := seedStory(t, store, 1, 3, 3, 0, "summit")
	require.NoError(t, store.Images().Create(ctx, core.StoryImage{
		StoryID: id, Title: "leaders meet", URL: "https://img.example/summit.jpg",
		SourcePage: "https://news.example/summit", Width: 1200, Height: 800, Format: "image/jpeg",
	}))

	a := NewAssembler(store)
	require.NoError(t, a.Refresh(ctx))

	view, ok := a.Story(id)
	require.True(t, ok)
	require.Len(t, view.Illustrations, 1)
	assert.Equal(t, "https://img.example/summit.jpg", view.Illustrations[0].URL)
	assert.Equal(t, 1200, view.Illustrations[0].Width)
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"single", "The vote passed.", []string{"The vote passed."}},
		{"multiple", "It rained. Then it stopped. Flooding followed.",
			[]string{"It rained.", "Then it stopped.", "Flooding followed."}},
		{"mixed terminators", "Really?! Yes. Go on...",
			[]string{"Really?!", "Yes.", "Go on..."}},
		{"decimal stays intact", "Growth hit 3.5 percent. Markets rose.",
			[]string{"Growth hit 3.5 percent.", "Markets rose."}},
		{"no trailing terminator", "One. Two without end",
			[]string{"One.", "Two without end"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitSentences(tt.in))
		})
	}
}
