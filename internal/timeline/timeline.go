// Package timeline aggregates stories across days into timelines: cluster
// story embeddings, pick the super-stories, summarise each into dated events.
package timeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"newscrunch/internal/clustering"
	"newscrunch/internal/core"
	"newscrunch/internal/logger"
	"newscrunch/internal/persistence"
	"newscrunch/internal/summarize"
)

// storyWindow bounds how far back clustered stories may reach.
const storyWindow = 14 * 24 * time.Hour

// Super-story admission: enough stories, spread over enough days, still live.
const (
	minStories       = 6
	minStoryDates    = 4
	storyFreshness   = 24 * time.Hour
	minEvents        = 3
	minEventRangeDay = 2
	eventFreshness   = 36 * time.Hour
)

// Stage generates the timelines of one digest.
type Stage struct {
	store      persistence.Store
	summariser *summarize.Summariser
	now        func() time.Time
}

// New builds a timeline stage.
func New(store persistence.Store, summariser *summarize.Summariser) *Stage {
	return &Stage{store: store, summariser: summariser, now: time.Now}
}

// Run clusters the last two weeks of story embeddings and writes a timeline
// for every super-story whose generated timeline passes acceptance. Returns
// how many timelines were written.
func (s *Stage) Run(ctx context.Context, d core.Digest, dryRun bool) (int, error) {
	log := logger.Get()
	now := s.now()

	vectors, err := s.store.Embeddings().StoryVectors(ctx, now.Add(-storyWindow))
	if err != nil {
		return 0, fmt.Errorf("failed to load story vectors: %w", err)
	}
	log.Info("Clustering stories into timelines", "digest_id", d.ID, "stories", len(vectors))

	points := make([]clustering.Point, len(vectors))
	byID := make(map[int]persistence.StoryVector, len(vectors))
	for i, v := range vectors {
		points[i] = clustering.Point{ID: v.StoryID, Vector: v.Embedding}
		byID[v.StoryID] = v
	}

	clusters, err := clustering.Run(points)
	if err != nil {
		var empty *clustering.ClusterEmpty
		if errors.As(err, &empty) {
			log.Info("No story clusters found", "digest_id", d.ID)
			return 0, nil
		}
		return 0, fmt.Errorf("story clustering failed: %w", err)
	}

	written := 0
	for _, cluster := range clusters {
		members := make([]persistence.StoryVector, 0, len(cluster.IDs))
		for _, id := range cluster.IDs {
			if v, ok := byID[id]; ok {
				members = append(members, v)
			}
		}
		if !SuperStory(members, now) {
			continue
		}

		lines := make([]summarize.StoryLine, len(members))
		for i, m := range members {
			lines[i] = summarize.StoryLine{ID: m.StoryID, TS: m.TS, Title: m.Title, Summary: m.Summary}
		}
		draft, err := s.summariser.Timeline(ctx, lines)
		if err != nil {
			return written, err
		}
		if !Accept(draft, now) {
			log.Debug("Timeline rejected", "subject", draft.Subject, "events", len(draft.Events))
			continue
		}
		if dryRun {
			written++
			continue
		}
		if err := s.writeTimeline(ctx, d, draft, members); err != nil {
			var se *persistence.StoreError
			if errors.As(err, &se) && se.Kind == persistence.KindConstraint {
				log.Warn("Skipping duplicate timeline subject", "subject", draft.Subject)
				continue
			}
			return written, err
		}
		written++
	}

	log.Info("Timelines generated", "digest_id", d.ID, "clusters", len(clusters), "timelines", written)
	return written, nil
}

// SuperStory reports whether a cluster of stories is worth a timeline: at
// least six stories over at least four distinct dates, with the newest story
// under 24 hours old.
func SuperStory(members []persistence.StoryVector, now time.Time) bool {
	if len(members) < minStories {
		return false
	}
	dates := make(map[string]struct{})
	var newest time.Time
	for _, m := range members {
		dates[m.TS.UTC().Format("2006-01-02")] = struct{}{}
		if m.TS.After(newest) {
			newest = m.TS
		}
	}
	if len(dates) < minStoryDates {
		return false
	}
	return newest.After(now.Add(-storyFreshness))
}

// Accept reports whether a generated timeline stands on its own: at least
// three events spanning at least two days, with the latest event under 36
// hours old.
func Accept(draft summarize.TimelineDraft, now time.Time) bool {
	if len(draft.Events) < minEvents {
		return false
	}
	earliest, latest := draft.Events[0].Date, draft.Events[0].Date
	for _, e := range draft.Events[1:] {
		if e.Date.Before(earliest) {
			earliest = e.Date
		}
		if e.Date.After(latest) {
			latest = e.Date
		}
	}
	if latest.Sub(earliest) < minEventRangeDay*24*time.Hour {
		return false
	}
	cutoff := now.UTC().Add(-eventFreshness)
	cutoffDate := time.Date(cutoff.Year(), cutoff.Month(), cutoff.Day(), 0, 0, 0, 0, time.UTC)
	return !latest.Before(cutoffDate)
}

func (s *Stage) writeTimeline(ctx context.Context, d core.Digest, draft summarize.TimelineDraft, members []persistence.StoryVector) error {
	t := core.Timeline{
		TS:       s.now().UTC(),
		DigestID: d.ID,
		Subject:  draft.Subject,
		Headline: draft.Headline,
		Summary:  draft.Summary,
	}
	if err := s.store.Timelines().Create(ctx, &t); err != nil {
		return err
	}
	for _, e := range draft.Events {
		err := s.store.Timelines().AddEvent(ctx, core.TimelineEvent{
			TimelineID:  t.ID,
			StoryID:     e.StoryID,
			Description: e.Description,
			Date:        e.Date,
			Precision:   e.Precision,
		})
		if err != nil {
			var se *persistence.StoreError
			if errors.As(err, &se) && se.Kind == persistence.KindConstraint {
				// The model occasionally repeats an event; keep the first.
				continue
			}
			return err
		}
	}
	for _, m := range members {
		if err := s.store.Timelines().AddStory(ctx, t.ID, m.StoryID); err != nil {
			return err
		}
	}
	for _, k := range draft.Keywords {
		keywordID, err := s.store.Keywords().Upsert(ctx, k.Keyword, k.Type)
		if err != nil {
			return err
		}
		if err := s.store.Keywords().LinkTimeline(ctx, t.ID, keywordID); err != nil {
			return err
		}
	}
	logger.Get().Info("Timeline written", "timeline_id", t.ID, "subject", t.Subject, "events", len(draft.Events))
	return nil
}
