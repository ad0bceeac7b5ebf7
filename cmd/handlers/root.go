// Package handlers wires the CLI commands to the pipeline stages.
package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"newscrunch/internal/config"
	"newscrunch/internal/logger"
	"newscrunch/internal/persistence"
)

var cfgFile string

// NewRootCmd creates the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "newscrunch",
		Short: "Newscrunch crawls news providers and builds clustered daily digests.",
		Long: `Newscrunch collects articles from news provider homepages, embeds and
clusters them into stories, summarises each story, assembles multi-day
timelines and serves the finished digest over a read API.

The pipeline is a state machine over digests: each stage command moves the
current digest one state forward, and 'run' executes every stage in order.`,
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.newscrunch.yaml)")

	rootCmd.AddCommand(NewMigrateCmd())
	rootCmd.AddCommand(NewDigestCmd())
	rootCmd.AddCommand(NewCollectCmd())
	rootCmd.AddCommand(NewEmbedCmd())
	rootCmd.AddCommand(NewStoriesCmd())
	rootCmd.AddCommand(NewImagesCmd())
	rootCmd.AddCommand(NewRundownsCmd())
	rootCmd.AddCommand(NewTimelinesCmd())
	rootCmd.AddCommand(NewRunCmd())
	rootCmd.AddCommand(NewServeCmd())

	return rootCmd
}

// Execute runs the root command.
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig reads the config file and environment, then initialises logging.
func initConfig() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.App.LogLevel)
}

// openStore connects to the configured postgres database and verifies the
// connection.
func openStore(ctx context.Context) (*persistence.PostgresStore, error) {
	dsn, err := config.Get().Store.DSN()
	if err != nil {
		return nil, err
	}
	store, err := persistence.NewPostgresStore(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("database ping failed: %w\n\n"+
			"Make sure PostgreSQL is running and run 'newscrunch migrate' to initialise the schema.", err)
	}
	return store, nil
}
