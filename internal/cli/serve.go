package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mithrel/nettransport/internal/daemon"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the echo daemon on the configured port",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := getApp(cmd) // initialized via PersistentPreRunE
			defer func() { _ = app.Log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Starting nettransport daemon on port %d...\n", app.Cfg.GetInt("listen_port"))
			return daemon.Run(ctx, app)
		},
	}
	cmd.Flags().Uint16("port", 0, "override listen_port (0 picks an ephemeral port)")
	return cmd
}
