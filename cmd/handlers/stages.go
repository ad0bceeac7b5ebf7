package handlers

import (
	"context"
	"fmt"

	"newscrunch/internal/config"
	"newscrunch/internal/core"
	"newscrunch/internal/digest"
	"newscrunch/internal/llm"
	"newscrunch/internal/persistence"
	"newscrunch/internal/summarize"
)

// runStage executes one pipeline stage against the current digest. Normally
// the stage runs under the state machine: the digest must be in expected and
// moves to final on success. With dryRun the stage body runs against the
// current digest without touching its state.
func runStage(ctx context.Context, store persistence.Store, expected, final core.DigestState, dryRun bool, stage digest.StageFn) error {
	ctrl := digest.NewController(store)
	if dryRun {
		d, err := ctrl.Current(ctx)
		if err != nil {
			return fmt.Errorf("no digest in flight: %w", err)
		}
		return stage(ctx, d)
	}
	return ctrl.Advance(ctx, expected, final, stage)
}

// newModelClient builds the Gemini client shared by the embedding and
// summarisation stages.
func newModelClient(ctx context.Context) (*llm.Client, error) {
	return llm.NewClient(ctx, config.Get().Gemini)
}

// newSummariser builds the production summariser.
func newSummariser(ctx context.Context) (*summarize.Summariser, error) {
	client, err := newModelClient(ctx)
	if err != nil {
		return nil, err
	}
	return summarize.New(client), nil
}
