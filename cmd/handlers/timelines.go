package handlers

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"newscrunch/internal/core"
	"newscrunch/internal/timeline"
)

// NewTimelinesCmd creates the timelines command.
func NewTimelinesCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "timelines",
		Short: "Assemble multi-day timelines from recent stories",
		Long: `Cluster the embeddings of recent stories, keep the clusters that span
several days of sustained coverage and summarise each into a dated timeline.
Moves the digest from RUNDOWNS_GENERATED to READY, completing the pipeline.`,
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
			stage := timeline.New(store, summariser)

			return runStage(ctx, store, core.StateRundownsGenerated, core.StateReady, dryRun,
				func(ctx context.Context, d core.Digest) error {
					n, err := stage.Run(ctx, d, dryRun)
					if err != nil {
						return err
					}
					fmt.Printf("Assembled %d timelines for digest %d\n", n, d.ID)
					return nil
				})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Assemble timelines without writing")
	return cmd
}
