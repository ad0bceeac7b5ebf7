package handlers

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"newscrunch/internal/collector"
	"newscrunch/internal/config"
	"newscrunch/internal/core"
	"newscrunch/internal/fetch"
)

// NewCollectCmd creates the collect command.
func NewCollectCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Crawl provider homepages and store new articles",
		Long: `Crawl every provider homepage, download and validate candidate articles
and store the accepted ones. Moves the digest from CREATED to
ARTICLES_COLLECTED.

With --dry-run articles are validated and counted but nothing is written and
the digest state does not change.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			cfg := config.Get().Collector
			col := collector.New(store, fetch.NewClient(cfg), cfg)

			return runStage(ctx, store, core.StateCreated, core.StateArticlesCollected, dryRun,
				func(ctx context.Context, d core.Digest) error {
					stats, err := col.Run(ctx, dryRun)
					if err != nil {
						return err
					}
					for _, count := range stats.Counts {
						fmt.Printf("%-24s %4d candidates, %3d accepted, %3d written\n",
							count.Provider, count.Candidates, count.Accepted, count.Written)
					}
					fmt.Printf("Collected %d articles (%d written)\n", stats.Accepted, stats.Written)
					return nil
				})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate and count articles without writing")
	return cmd
}
