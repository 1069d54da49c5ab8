// Package cli implements the govflow command line: serve, migrate, definitions and users.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/RealZimboGuy/govflow/internal/config"
	"github.com/RealZimboGuy/govflow/pkg/govflow"
	"github.com/spf13/cobra"
)

// ConfigFileEnv names the YAML config file when --config is not given.
const ConfigFileEnv = "GFLOW_CONFIG_FILE"

// App holds what the commands need from the outside world.
type App struct {
	Out io.Writer
	Err io.Writer
	// OpenServer migrates and opens the configured database and wires the engine.
	OpenServer func() (*govflow.Server, error)
	// Serve blocks running the HTTP server until ctx is cancelled.
	Serve func(ctx context.Context) error
}

func NewApp() *App {
	return &App{
		Out: os.Stdout,
		Err: os.Stderr,
		OpenServer: func() (*govflow.Server, error) {
			db, dialect, err := govflow.OpenDatabase()
			if err != nil {
				return nil, err
			}
			return govflow.New(db, dialect, nil), nil
		},
		Serve: func(ctx context.Context) error {
			return govflow.Start(ctx, nil)
		},
	}
}

func NewRootCommand(app *App) *cobra.Command {
	var configFile, logLevel string
	root := &cobra.Command{
		Use:           "govflow",
		Short:         "Governance workflow engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile == "" {
				configFile = os.Getenv(ConfigFileEnv)
			}
			if err := config.LoadFile(configFile); err != nil {
				return fmt.Errorf("config %s: %w", configFile, err)
			}
			if logLevel != "" {
				config.Set(config.LOG_LEVEL, logLevel)
			}
			govflow.SetupLogger()
			return nil
		},
	}
	root.SetOut(app.Out)
	root.SetErr(app.Err)
	root.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (default $"+ConfigFileEnv+")")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(
		newServeCommand(app),
		newMigrateCommand(app),
		newDefinitionsCommand(app),
		newUsersCommand(app),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := NewApp()
	if err := NewRootCommand(app).ExecuteContext(ctx); err != nil {
		if code, ok := IsExitError(err); ok {
			return code
		}
		fmt.Fprintln(app.Err, "Error:", err)
		return 1
	}
	return 0
}
