package handlers

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"newscrunch/internal/config"
	"newscrunch/internal/core"
	"newscrunch/internal/images"
)

// NewImagesCmd creates the images command.
func NewImagesCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "images",
		Short: "Search illustrations for stories without one",
		Long: `Search the image API for every story of the current digest that has no
stored image yet. Moves the digest from STORIES_EMBEDDED to IMAGES_COLLECTED.

Without image search credentials the stage records zero images and the digest
still advances.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			stage := images.New(store, imageSearcher())

			return runStage(ctx, store, core.StateStoriesEmbedded, core.StateImagesCollected, dryRun,
				func(ctx context.Context, d core.Digest) error {
					n, err := stage.Run(ctx, d, dryRun)
					if err != nil {
						return err
					}
					fmt.Printf("Collected images for %d stories of digest %d\n", n, d.ID)
					return nil
				})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Search without writing images")
	return cmd
}

// imageSearcher returns the configured searcher, or nil when credentials are
// absent so the stage degrades to a no-op.
func imageSearcher() images.Searcher {
	cfg := config.Get().ImageSearch
	if cfg.APIKey == "" || cfg.EngineID == "" {
		return nil
	}
	return images.NewGoogleSearcher(cfg)
}
