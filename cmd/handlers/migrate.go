package handlers

import (
	"fmt"

	"github.com/spf13/cobra"

	"newscrunch/internal/persistence"
)

// NewMigrateCmd creates the migrate command.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Long: `Apply every schema migration that has not run yet, in version order.
Running migrate on an up-to-date database is a no-op, so it is safe to run
before every deployment.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := persistence.NewMigrationManager(store).Migrate(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Println("Database schema is up to date")
			return nil
		},
	}
}
