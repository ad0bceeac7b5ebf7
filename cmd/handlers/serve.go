package handlers

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"newscrunch/internal/config"
	"newscrunch/internal/server"
)

// NewServeCmd creates the serve command for the read API.
func NewServeCmd() *cobra.Command {
	var (
		port int
		host string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the read API",
		Long: `Serve the latest READY digest over HTTP. The snapshot refreshes on a
fixed interval and on POST /refresh, so the server picks up new digests
produced by 'newscrunch run' without restarting.

Endpoints:
  GET  /stories     ranked stories of the latest READY digest
  GET  /story/{id}  one story with its articles and images
  POST /refresh     rebuild the snapshot immediately
  GET  /api/status  snapshot metadata
  GET  /health      liveness check`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			serverCfg := config.Get().Server
			if port != 0 {
				serverCfg.Port = port
			}
			if host != "" {
				serverCfg.Host = host
			}

			return server.New(store, serverCfg).Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP server port (default from config: 8080)")
	cmd.Flags().StringVar(&host, "host", "", "HTTP server host (default from config: 0.0.0.0)")
	return cmd
}
