package cli

import (
	"fmt"

	"github.com/RealZimboGuy/govflow/internal/definitions"
	"github.com/spf13/cobra"
)

func newDefinitionsCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "definitions",
		Aliases: []string{"defs"},
		Short:   "Validate and publish workflow definition files",
	}
	cmd.AddCommand(newDefinitionsValidateCommand(app), newDefinitionsImportCommand(app))
	return cmd
}

// checkFiles prints every violation and reports whether all files are valid.
func checkFiles(app *App, files []definitions.File) bool {
	ok := true
	for _, f := range files {
		violations := definitions.Check(f.Definition)
		if len(violations) == 0 {
			fmt.Fprintf(app.Out, "ok      %s\n", f.Path)
			continue
		}
		ok = false
		fmt.Fprintf(app.Out, "invalid %s\n", f.Path)
		for _, v := range violations {
			fmt.Fprintf(app.Out, "        %s: %s\n", v.Field, v.Message)
		}
	}
	return ok
}

func newDefinitionsValidateCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file-or-dir>...",
		Short: "Check definition files without touching the database",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			valid := true
			for _, path := range args {
				files, err := definitions.Load(path)
				if err != nil {
					return err
				}
				if !checkFiles(app, files) {
					valid = false
				}
			}
			if !valid {
				return NewExitError(1)
			}
			return nil
		},
	}
}

func newDefinitionsImportCommand(app *App) *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "import <file-or-dir>...",
		Short: "Publish definition files as new versions",
		Long: `Validates every file first and publishes nothing if any is invalid.
Each published file becomes the latest active version of its key.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var files []definitions.File
			for _, path := range args {
				loaded, err := definitions.Load(path)
				if err != nil {
					return err
				}
				files = append(files, loaded...)
			}
			if !checkFiles(app, files) {
				return NewExitError(1)
			}

			srv, err := app.OpenServer()
			if err != nil {
				return err
			}
			defer srv.DB.Close()

			for _, f := range files {
				def, err := srv.Definitions.Create(cmd.Context(), actor, f.Definition)
				if err != nil {
					return fmt.Errorf("%s: %w", f.Path, err)
				}
				fmt.Fprintf(app.Out, "published %s version %d (%s)\n", def.Key, def.Version, def.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "cli", "username recorded as creator")
	return cmd
}
