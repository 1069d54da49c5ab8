package cli

import (
	"fmt"

	"github.com/RealZimboGuy/govflow/internal/migrations"
	"github.com/RealZimboGuy/govflow/internal/repository"
	"github.com/RealZimboGuy/govflow/pkg/govflow"
	"github.com/spf13/cobra"
)

func migrationTarget() (string, string, error) {
	dialect, err := repository.DialectFromConfig()
	if err != nil {
		return "", "", err
	}
	return govflow.MigrationTarget(dialect)
}

func newMigrateCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := govflow.RunMigrations(); err != nil {
				return err
			}
			fmt.Fprintln(app.Out, "schema is up to date")
			return nil
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1")
			}
			path, dbURL, err := migrationTarget()
			if err != nil {
				return err
			}
			if err := migrations.Down(path, dbURL, steps); err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "rolled back %d migration(s)\n", steps)
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, dbURL, err := migrationTarget()
			if err != nil {
				return err
			}
			v, dirty, err := migrations.Version(path, dbURL)
			if err != nil {
				return err
			}
			if dirty {
				fmt.Fprintf(app.Out, "version %d (dirty)\n", v)
				return NewExitError(2)
			}
			fmt.Fprintf(app.Out, "version %d\n", v)
			return nil
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}
