package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/syno/internal/chat"
	"github.com/felixgeelhaar/syno/internal/conversation"
	"github.com/felixgeelhaar/syno/internal/httpapi"
	"github.com/felixgeelhaar/syno/internal/observe"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage chat users",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users by name",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeFn, err := userService(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		users, err := svc.ListUsers(cmd.Context())
		if err != nil {
			return err
		}
		if len(users) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No users yet.")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tCREATED")
		for _, u := range users {
			fmt.Fprintf(w, "%s\t%s\t%s\n", u.ID, u.Name, u.CreatedAt.Format(httpapi.TimeLayout))
		}
		return w.Flush()
	},
}

var usersCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a user and print its id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeFn, err := userService(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		u, greeting, err := svc.CreateUser(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), u.ID)
		fmt.Fprintln(cmd.OutOrStdout(), greeting)
		return nil
	},
}

// userService opens only the store; user management needs no model or corpus.
func userService(ctx context.Context) (*chat.Service, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	s, _, err := openVault(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	svc := chat.NewService(s, conversation.NewManager(), nil, observe.New(io.Discard, false), nil)
	return svc, func() { s.Close() }, nil
}

func init() {
	RootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(usersCreateCmd)
}
