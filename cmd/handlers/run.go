package handlers

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"newscrunch/internal/collector"
	"newscrunch/internal/config"
	"newscrunch/internal/core"
	"newscrunch/internal/digest"
	"newscrunch/internal/embed"
	"newscrunch/internal/fetch"
	"newscrunch/internal/images"
	"newscrunch/internal/logger"
	"newscrunch/internal/persistence"
	"newscrunch/internal/rundowns"
	"newscrunch/internal/stories"
	"newscrunch/internal/timeline"
)

// NewRunCmd creates the run command, which executes the whole pipeline.
func NewRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run every pipeline stage until the digest is READY",
		Long: `Create a digest if none is in flight, then run every remaining stage in
order: collect, embed articles, generate stories, embed stories, collect
images, generate rundowns, assemble timelines. A digest left half-done by an
earlier failure resumes from its current state.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			return runPipeline(ctx, store)
		},
	}
}

func runPipeline(ctx context.Context, store persistence.Store) error {
	log := logger.Get()
	ctrl := digest.NewController(store)

	d, err := ctrl.Current(ctx)
	if persistence.IsNotFound(err) {
		if d, err = ctrl.Create(ctx); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	log.Info("Running pipeline", "digest_id", d.ID, "state", d.State)

	model, err := newModelClient(ctx)
	if err != nil {
		return err
	}
	summariser, err := newSummariser(ctx)
	if err != nil {
		return err
	}
	collectorCfg := config.Get().Collector

	type transition struct {
		expected core.DigestState
		final    core.DigestState
		stage    digest.StageFn
	}
	transitions := []transition{
		{core.StateCreated, core.StateArticlesCollected, func(ctx context.Context, d core.Digest) error {
			stats, err := collector.New(store, fetch.NewClient(collectorCfg), collectorCfg).Run(ctx, false)
			if err != nil {
				return err
			}
			fmt.Printf("Collected %d articles\n", stats.Written)
			return nil
		}},
		{core.StateArticlesCollected, core.StateArticlesEmbedded, func(ctx context.Context, d core.Digest) error {
			n, err := embed.New(store, model).Run(ctx, embed.ModeArticles)
			if err != nil {
				return err
			}
			fmt.Printf("Embedded %d articles\n", n)
			return nil
		}},
		{core.StateArticlesEmbedded, core.StateStoriesGenerated, func(ctx context.Context, d core.Digest) error {
			n, err := stories.New(store, summariser).Run(ctx, d, false)
			if err != nil {
				return err
			}
			fmt.Printf("Generated %d stories\n", n)
			return nil
		}},
		{core.StateStoriesGenerated, core.StateStoriesEmbedded, func(ctx context.Context, d core.Digest) error {
			n, err := embed.New(store, model).Run(ctx, embed.ModeStories)
			if err != nil {
				return err
			}
			fmt.Printf("Embedded %d stories\n", n)
			return nil
		}},
		{core.StateStoriesEmbedded, core.StateImagesCollected, func(ctx context.Context, d core.Digest) error {
			n, err := images.New(store, imageSearcher()).Run(ctx, d, false)
			if err != nil {
				return err
			}
			fmt.Printf("Collected images for %d stories\n", n)
			return nil
		}},
		{core.StateImagesCollected, core.StateRundownsGenerated, func(ctx context.Context, d core.Digest) error {
			n, err := rundowns.New(store, summariser).Run(ctx, d, false)
			if err != nil {
				return err
			}
			fmt.Printf("Generated %d rundowns\n", n)
			return nil
		}},
		{core.StateRundownsGenerated, core.StateReady, func(ctx context.Context, d core.Digest) error {
			n, err := timeline.New(store, summariser).Run(ctx, d, false)
			if err != nil {
				return err
			}
			fmt.Printf("Assembled %d timelines\n", n)
			return nil
		}},
	}

	for _, tr := range transitions {
		if stateIndex(d.State) > stateIndex(tr.expected) {
			continue
		}
		if err := ctrl.Advance(ctx, tr.expected, tr.final, tr.stage); err != nil {
			return fmt.Errorf("stage %s -> %s failed: %w", tr.expected, tr.final, err)
		}
		d.State = tr.final
	}

	fmt.Printf("Digest %d is READY\n", d.ID)
	return nil
}

func stateIndex(s core.DigestState) int {
	for i, state := range core.DigestStates {
		if state == s {
			return i
		}
	}
	return -1
}
