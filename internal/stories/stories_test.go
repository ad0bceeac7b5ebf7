package stories

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newscrunch/internal/core"
	"newscrunch/internal/llm"
	"newscrunch/internal/persistence"
	"newscrunch/internal/summarize"
)

func vec(provider, country string, v []float64) persistence.ArticleVector {
	return persistence.ArticleVector{Provider: provider, Country: country, Embedding: v}
}

func TestAdmit(t *testing.T) {
	tests := []struct {
		name    string
		members []persistence.ArticleVector
		want    bool
	}{
		{
			name: "five providers across countries",
			members: []persistence.ArticleVector{
				vec("ABC", "Australia", nil), vec("BBC", "UK", nil), vec("CNN", "USA", nil),
				vec("NPR", "USA", nil), vec("DW", "Europe", nil),
			},
			want: true,
		},
		{
			name: "three providers one country",
			members: []persistence.ArticleVector{
				vec("ABC", "Australia", nil), vec("SBS", "Australia", nil), vec("9 News", "Australia", nil),
			},
			want: true,
		},
		{
			name: "four providers two countries",
			members: []persistence.ArticleVector{
				vec("ABC", "Australia", nil), vec("SBS", "Australia", nil),
				vec("BBC", "UK", nil), vec("The Guardian", "UK", nil),
			},
			want: true,
		},
		{
			name: "three providers two countries",
			members: []persistence.ArticleVector{
				vec("ABC", "Australia", nil), vec("SBS", "Australia", nil), vec("BBC", "UK", nil),
			},
			want: false,
		},
		{
			name: "one provider many articles",
			members: []persistence.ArticleVector{
				vec("ABC", "Australia", nil), vec("ABC", "Australia", nil),
				vec("ABC", "Australia", nil), vec("ABC", "Australia", nil),
			},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Admit(tt.members))
		})
	}
}

type scriptedGenerator struct {
	calls int
}

func (g *scriptedGenerator) GenerateJSON(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	g.calls++
	return fmt.Sprintf(`{
		"headline": "Generated headline number %d for the story",
		"story_summary": "A summary of the story.",
		"coverage_summary": "How outlets covered it.",
		"keywords": [{"keyword": "shared topic", "type": "CONCEPT"}]
	}`, g.calls), nil
}

// seedCluster inserts count articles near the base coordinates, one per
// provider id in providerIDs (cycled), all published now.
func seedCluster(t *testing.T, store *persistence.MemoryStore, providerIDs []int, base []float64, count int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < count; i++ {
		a := core.Article{
			ProviderID: providerIDs[i%len(providerIDs)],
			TS:         time.Now().UTC().Add(-time.Duration(i) * time.Minute),
			URL:        fmt.Sprintf("https://example.com/%f/%d", base[0], i),
			Title:      "An article title",
			Body:       "Some body text.",
		}
		_, err := store.Articles().Create(ctx, &a)
		require.NoError(t, err)
		offset := float64(i) * 0.01
		require.NoError(t, store.Embeddings().CreateArticleEmbedding(ctx, core.ArticleEmbedding{
			ArticleID: a.ID,
			Embedding: []float64{base[0] + offset, base[1] - offset},
		}))
	}
}

func TestRunWritesAdmittedClusters(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemoryStore()
	store.SeedProviders([]core.Provider{
		{ID: 1, Name: "ABC", Country: "Australia"},
		{ID: 2, Name: "SBS", Country: "Australia"},
		{ID: 3, Name: "9 News", Country: "Australia"},
		{ID: 4, Name: "BBC", Country: "UK"},
		{ID: 5, Name: "CNN", Country: "USA"},
	})

	// Admitted: five articles, three Australian providers, one country.
	seedCluster(t, store, []int{1, 2, 3}, []float64{0, 0}, 5)
	// Rejected: three articles from three providers in three countries.
	seedCluster(t, store, []int{1, 4, 5}, []float64{50, 50}, 3)

	gen := &scriptedGenerator{}
	stage := New(store, summarize.New(gen))
	d := core.Digest{ID: 7, TS: time.Date(2025, 8, 20, 0, 0, 0, 0, time.UTC), State: core.StateArticlesEmbedded}

	written, err := stage.Run(ctx, d, false)
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	stored, err := store.Stories().ListByDigest(ctx, 7)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "20250820-7", stored[0].DigestLabel)
	assert.NotEmpty(t, stored[0].Title)
	assert.Len(t, store.ArticlesByStory(stored[0].ID), 5)
	assert.Equal(t, 1, store.KeywordCount())
}

func TestRunNoClusters(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemoryStore()
	stage := New(store, summarize.New(&scriptedGenerator{}))

	written, err := stage.Run(ctx, core.Digest{ID: 1}, false)
	require.NoError(t, err)
	assert.Equal(t, 0, written)
}

func TestRunDryRun(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemoryStore()
	store.SeedProviders([]core.Provider{
		{ID: 1, Name: "ABC", Country: "Australia"},
		{ID: 2, Name: "SBS", Country: "Australia"},
		{ID: 3, Name: "9 News", Country: "Australia"},
	})
	seedCluster(t, store, []int{1, 2, 3}, []float64{0, 0}, 5)

	gen := &scriptedGenerator{}
	stage := New(store, summarize.New(gen))
	written, err := stage.Run(ctx, core.Digest{ID: 1}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, written)
	assert.Equal(t, 0, gen.calls, "dry run must not invoke the model")

	stored, err := store.Stories().ListByDigest(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestResolveDigest(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 8, 20, 10, 0, 0, 0, time.UTC)

	// No digest rows and no stories: id 0.
	store := persistence.NewMemoryStore()
	d, err := ResolveDigest(ctx, store, now)
	require.NoError(t, err)
	assert.Equal(t, 0, d.ID)

	// Stories exist but no digest row: follow on from the stories.
	s := core.Story{TS: now, DigestID: 4, Title: "t", Summary: "s"}
	require.NoError(t, store.Stories().Create(ctx, &s))
	d, err = ResolveDigest(ctx, store, now)
	require.NoError(t, err)
	assert.Equal(t, 5, d.ID)

	// An incomplete digest wins over the fallback.
	require.NoError(t, store.Digests().Create(ctx, core.Digest{ID: 9, TS: now, State: core.StateArticlesEmbedded}))
	d, err = ResolveDigest(ctx, store, now)
	require.NoError(t, err)
	assert.Equal(t, 9, d.ID)
}
