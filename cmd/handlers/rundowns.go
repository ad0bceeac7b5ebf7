package handlers

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"newscrunch/internal/core"
	"newscrunch/internal/rundowns"
)

// NewRundownsCmd creates the rundowns command.
func NewRundownsCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "rundowns",
		Short: "Generate the category rundowns of the current digest",
		Long: `Summarise the digest's stories into one prose rundown per category.
Moves the digest from IMAGES_COLLECTED to RUNDOWNS_GENERATED.`,
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
			stage := rundowns.New(store, summariser)

			return runStage(ctx, store, core.StateImagesCollected, core.StateRundownsGenerated, dryRun,
				func(ctx context.Context, d core.Digest) error {
					n, err := stage.Run(ctx, d, dryRun)
					if err != nil {
						return err
					}
					fmt.Printf("Generated %d rundowns for digest %d\n", n, d.ID)
					return nil
				})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Generate rundowns without writing")
	return cmd
}
