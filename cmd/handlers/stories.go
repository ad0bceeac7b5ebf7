package handlers

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"newscrunch/internal/core"
	"newscrunch/internal/stories"
)

// NewStoriesCmd creates the stories command.
func NewStoriesCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "stories",
		Short: "Cluster recent articles into stories and summarise them",
		Long: `Cluster the embeddings of recent articles, admit the clusters with broad
enough coverage and summarise each admitted cluster into a story. Moves the
digest from ARTICLES_EMBEDDED to STORIES_GENERATED.

With --dry-run clusters are formed and admission is evaluated but no model
calls are made and nothing is written.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			summariser, err := newSummariser(ctx)
			if err != nil {
				return err
			}
			stage := stories.New(store, summariser)

			return runStage(ctx, store, core.StateArticlesEmbedded, core.StateStoriesGenerated, dryRun,
				func(ctx context.Context, d core.Digest) error {
					n, err := stage.Run(ctx, d, dryRun)
					if err != nil {
						return err
					}
					fmt.Printf("Generated %d stories for digest %d\n", n, d.ID)
					return nil
				})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Cluster and admit without summarising or writing")
	return cmd
}
