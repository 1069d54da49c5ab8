package cli

import (
	"fmt"

	"github.com/RealZimboGuy/govflow/internal/controllers"
	"github.com/RealZimboGuy/govflow/pkg/govflow/domain"
	"github.com/spf13/cobra"
)

func newUsersCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage API users",
	}
	cmd.AddCommand(newUsersCreateCommand(app))
	return cmd
}

func newUsersCreateCommand(app *App) *cobra.Command {
	var (
		username, password, level string
		roles, committees         []string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user and print its API key",
		Example: `  govflow users create --username admin --password secret --level admin
  govflow users create --username jo --password pw --roles investigator --committees ethics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := controllers.NewUser(username, password, domain.AccessLevel(level), roles, committees)
			if err != nil {
				return err
			}
			srv, err := app.OpenServer()
			if err != nil {
				return err
			}
			defer srv.DB.Close()

			existing, err := srv.Users.FindByUsername(cmd.Context(), user.Username)
			if err != nil {
				return err
			}
			if existing != nil {
				return fmt.Errorf("user %q already exists", user.Username)
			}
			id, err := srv.Users.Save(cmd.Context(), user)
			if err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "created user %s (id %d, level %s)\n", user.Username, id, user.AccessLevel)
			fmt.Fprintf(app.Out, "api key: %s\n", user.ApiKey.String)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "login name (required)")
	cmd.Flags().StringVar(&password, "password", "", "password (required)")
	cmd.Flags().StringVar(&level, "level", string(domain.AccessRead), "read, write, approve or admin")
	cmd.Flags().StringSliceVar(&roles, "roles", nil, "comma separated roles")
	cmd.Flags().StringSliceVar(&committees, "committees", nil, "comma separated committee ids")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
