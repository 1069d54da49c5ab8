package cli

import (
	"github.com/RealZimboGuy/govflow/internal/config"
	"github.com/spf13/cobra"
)

func newServeCommand(app *App) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the SLA monitor",
		Long: `Migrates the configured database, then serves the JSON API and runs the
SLA monitor until interrupted.

Database and engine settings come from GFLOW_* environment variables or the
--config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != "" {
				config.Set(config.ENGINE_SERVER_WEB_PORT, port)
			}
			return app.Serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "HTTP port, overrides GFLOW_ENGINE_SERVER_WEB_PORT")
	return cmd
}
