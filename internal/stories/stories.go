// Package stories turns recent article embeddings into stories: cluster,
// admit, summarise, persist.
package stories

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"newscrunch/internal/clustering"
	"newscrunch/internal/core"
	"newscrunch/internal/logger"
	"newscrunch/internal/persistence"
	"newscrunch/internal/summarize"
)

// articleWindow bounds how far back clustered articles may reach.
const articleWindow = 48 * time.Hour

// maxPayloadArticles caps how many articles feed one story digest prompt.
const maxPayloadArticles = 20

// Stage generates the stories of one digest.
type Stage struct {
	store      persistence.Store
	summariser *summarize.Summariser
	now        func() time.Time
}

// New builds a story generation stage.
func New(store persistence.Store, summariser *summarize.Summariser) *Stage {
	return &Stage{store: store, summariser: summariser, now: time.Now}
}

// Run clusters the last 48 hours of article embeddings and writes one story
// per admitted cluster, tagged with the given digest. Returns how many
// stories were written.
func (s *Stage) Run(ctx context.Context, d core.Digest, dryRun bool) (int, error) {
	log := logger.Get()

	vectors, err := s.store.Embeddings().ArticleVectors(ctx, s.now().Add(-articleWindow))
	if err != nil {
		return 0, fmt.Errorf("failed to load article vectors: %w", err)
	}
	log.Info("Clustering articles", "digest_id", d.ID, "articles", len(vectors))

	points := make([]clustering.Point, len(vectors))
	byID := make(map[int]persistence.ArticleVector, len(vectors))
	for i, v := range vectors {
		points[i] = clustering.Point{ID: v.ArticleID, Vector: v.Embedding}
		byID[v.ArticleID] = v
	}

	clusters, err := clustering.Run(points)
	if err != nil {
		var empty *clustering.ClusterEmpty
		if errors.As(err, &empty) {
			log.Info("No clusters found", "digest_id", d.ID, "articles", empty.Points)
			return 0, nil
		}
		return 0, fmt.Errorf("clustering failed: %w", err)
	}

	written := 0
	for _, cluster := range clusters {
		members := make([]persistence.ArticleVector, 0, len(cluster.IDs))
		for _, id := range cluster.IDs {
			if v, ok := byID[id]; ok {
				members = append(members, v)
			}
		}
		if !Admit(members) {
			log.Debug("Cluster rejected", "articles", len(members))
			continue
		}
		if dryRun {
			written++
			continue
		}
		if err := s.writeStory(ctx, d, members); err != nil {
			return written, err
		}
		written++
	}

	log.Info("Stories generated", "digest_id", d.ID, "clusters", len(clusters), "stories", written)
	return written, nil
}

// Admit decides whether a cluster of articles becomes a story. Breadth of
// coverage is the signal: many providers, or unanimous coverage within one
// or two countries.
func Admit(members []persistence.ArticleVector) bool {
	providers := make(map[string]struct{})
	countries := make(map[string]struct{})
	for _, m := range members {
		providers[m.Provider] = struct{}{}
		countries[m.Country] = struct{}{}
	}
	nProviders, nCountries := len(providers), len(countries)
	switch {
	case nProviders >= 5:
		return true
	case nCountries == 1 && nProviders >= 3:
		return true
	case nCountries == 2 && nProviders >= 4:
		return true
	}
	return false
}

func (s *Stage) writeStory(ctx context.Context, d core.Digest, members []persistence.ArticleVector) error {
	// Newest articles carry the freshest details; only they feed the prompt.
	sorted := append([]persistence.ArticleVector(nil), members...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TS.After(sorted[j].TS) })
	payload := sorted
	if len(payload) > maxPayloadArticles {
		payload = payload[:maxPayloadArticles]
	}

	articles := make([]summarize.ArticlePayload, len(payload))
	for i, m := range payload {
		articles[i] = summarize.ArticlePayload{
			TS:       m.TS,
			Provider: m.Provider,
			Title:    m.Title,
			Body:     m.Body,
		}
	}

	digest, err := s.summariser.StoryDigest(ctx, articles)
	if err != nil {
		return err
	}

	story := core.Story{
		TS:          s.now().UTC(),
		DigestID:    d.ID,
		DigestLabel: d.Label(),
		Title:       digest.Headline,
		Summary:     digest.StorySummary,
		Coverage:    digest.CoverageSummary,
	}
	if err := s.store.Stories().Create(ctx, &story); err != nil {
		return fmt.Errorf("failed to insert story: %w", err)
	}
	for _, m := range members {
		if err := s.store.Stories().AddArticle(ctx, story.ID, m.ArticleID); err != nil {
			return fmt.Errorf("failed to map article %d to story %d: %w", m.ArticleID, story.ID, err)
		}
	}
	for _, k := range digest.Keywords {
		keywordID, err := s.store.Keywords().Upsert(ctx, k.Keyword, k.Type)
		if err != nil {
			return fmt.Errorf("failed to upsert keyword %q: %w", k.Keyword, err)
		}
		if err := s.store.Keywords().LinkStory(ctx, story.ID, keywordID); err != nil {
			return fmt.Errorf("failed to link keyword %d to story %d: %w", keywordID, story.ID, err)
		}
	}

	logger.Get().Info("Story written", "story_id", story.ID, "articles", len(members), "title", story.Title)
	return nil
}

// ResolveDigest returns the digest stories should attach to: the controller's
// current digest when one exists, otherwise a synthetic digest numbered after
// the highest digest id any story carries.
func ResolveDigest(ctx context.Context, store persistence.Store, now time.Time) (core.Digest, error) {
	d, err := store.Digests().LatestIncomplete(ctx)
	if err == nil {
		return d, nil
	}
	if !persistence.IsNotFound(err) {
		return core.Digest{}, err
	}

	id := 0
	if maxID, ok, serr := store.Stories().MaxDigestID(ctx); serr != nil {
		return core.Digest{}, serr
	} else if ok {
		id = maxID + 1
	}
	return core.Digest{ID: id, TS: now.UTC(), State: core.StateArticlesEmbedded}, nil
}
