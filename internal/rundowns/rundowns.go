// Package rundowns generates the category rundowns of a digest from its
// stories.
package rundowns

import (
	"context"
	"fmt"

	"newscrunch/internal/core"
	"newscrunch/internal/logger"
	"newscrunch/internal/persistence"
	"newscrunch/internal/summarize"
)

// Stage generates and stores the rundowns of one digest.
type Stage struct {
	store      persistence.Store
	summariser *summarize.Summariser
}

// New builds a rundown stage.
func New(store persistence.Store, summariser *summarize.Summariser) *Stage {
	return &Stage{store: store, summariser: summariser}
}

// Run produces one rundown per category for the digest. All categories are
// written or none.
func (s *Stage) Run(ctx context.Context, d core.Digest, dryRun bool) (int, error) {
	log := logger.Get()

	stories, err := s.store.Stories().ListByDigest(ctx, d.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to list digest stories: %w", err)
	}
	if len(stories) == 0 {
		return 0, fmt.Errorf("digest %d has no stories to run down", d.ID)
	}
	log.Info("Generating rundowns", "digest_id", d.ID, "stories", len(stories))

	lines := make([]summarize.StoryLine, len(stories))
	for i, story := range stories {
		lines[i] = summarize.StoryLine{ID: story.ID, TS: story.TS, Title: story.Title, Summary: story.Summary}
	}

	generated, err := s.summariser.Rundowns(ctx, lines)
	if err != nil {
		return 0, err
	}
	if dryRun {
		return len(generated), nil
	}

	written := 0
	for _, rt := range core.RundownTypes {
		err := s.store.Rundowns().Create(ctx, core.DigestRundown{
			DigestID: d.ID,
			Type:     rt,
			Text:     generated[rt],
		})
		if err != nil {
			return written, fmt.Errorf("failed to store %q rundown: %w", rt, err)
		}
		written++
	}
	log.Info("Rundowns written", "digest_id", d.ID, "rundowns", written)
	return written, nil
}
