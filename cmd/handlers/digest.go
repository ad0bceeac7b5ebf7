package handlers

import (
	"fmt"

	"github.com/spf13/cobra"

	"newscrunch/internal/digest"
	"newscrunch/internal/persistence"
)

// NewDigestCmd creates the digest command with its create and status
// subcommands.
func NewDigestCmd() *cobra.Command {
	digestCmd := &cobra.Command{
		Use:   "digest",
		Short: "Manage the digest lifecycle",
		Long: `Inspect and manage digests. A digest is one batch of stories moving
through the pipeline; at most one digest is in flight at a time.`,
	}
	digestCmd.AddCommand(newDigestCreateCmd())
	digestCmd.AddCommand(newDigestStatusCmd())
	return digestCmd
}

func newDigestCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create the next digest",
		Long: `Allocate the next digest id and insert it in state CREATED. Fails while
a previous digest has not reached READY.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			d, err := digest.NewController(store).Create(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Created digest %d (%s)\n", d.ID, d.Label())
			return nil
		},
	}
}

func newDigestStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current digest state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if d, err := digest.NewController(store).Current(ctx); err == nil {
				fmt.Printf("Digest %d (%s): %s\n", d.ID, d.Label(), d.State)
				return nil
			} else if !persistence.IsNotFound(err) {
				return err
			}

			ready, err := store.Digests().LatestReady(ctx)
			if err != nil {
				if persistence.IsNotFound(err) {
					fmt.Println("No digests exist yet; run 'newscrunch digest create'")
					return nil
				}
				return err
			}
			fmt.Printf("No digest in flight; latest READY digest is %d (%s)\n", ready.ID, ready.Label())
			return nil
		},
	}
}
