package handlers

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"newscrunch/internal/core"
	"newscrunch/internal/embed"
)

// NewEmbedCmd creates the embed command.
func NewEmbedCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Embed pending articles or stories",
		Long: `Generate an embedding vector for every article or story that does not
have one yet.

With --mode articles the digest moves from ARTICLES_COLLECTED to
ARTICLES_EMBEDDED; with --mode stories it moves from STORIES_GENERATED to
STORIES_EMBEDDED.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			parsed, err := embed.ParseMode(mode)
			if err != nil {
				return err
			}
			expected, final := core.StateArticlesCollected, core.StateArticlesEmbedded
			if parsed == embed.ModeStories {
				expected, final = core.StateStoriesGenerated, core.StateStoriesEmbedded
			}

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			model, err := newModelClient(ctx)
			if err != nil {
				return err
			}
			stage := embed.New(store, model)

			return runStage(ctx, store, expected, final, false,
				func(ctx context.Context, d core.Digest) error {
					n, err := stage.Run(ctx, parsed)
					if err != nil {
						return err
					}
					fmt.Printf("Embedded %d %s\n", n, parsed)
					return nil
				})
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "articles", "What to embed: articles or stories")
	return cmd
}
