package cli

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/syno/internal/chat"
	"github.com/felixgeelhaar/syno/internal/store"
	"github.com/felixgeelhaar/syno/internal/ui/tui"
)

var (
	chatName string
	chatID   string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open an interactive chat in the terminal",
	Long: `Open the chat for an existing user (--id) or for the user with the given
name (--name), creating that user when none exists yet.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if chatName == "" && chatID == "" {
			return errors.New("either --name or --id is required")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		app, err := buildApp(ctx, cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer app.Close()

		user, err := resolveUser(cmd, app, chatID, chatName)
		if err != nil {
			return err
		}
		greeting, resumed, err := app.Chat.OpenChat(ctx, user.ID)
		if err != nil {
			return err
		}

		msgs, err := app.Chat.Messages(ctx, user.ID)
		if err != nil {
			return err
		}
		history := make([]tui.Line, 0, len(msgs)+1)
		if !resumed {
			history = append(history, tui.Line{Sender: chat.SenderBot, Text: greeting})
		}
		for _, m := range msgs {
			history = append(history, tui.Line{Sender: m.Sender, Text: m.Text})
		}

		p := tea.NewProgram(tui.NewModel(ctx, app.Chat, user.ID, user.Name, history), tea.WithAltScreen(), tea.WithContext(ctx))
		_, err = p.Run()
		return err
	},
}

// resolveUser finds the chat owner by id, else by name, creating a new user
// for an unknown name.
func resolveUser(cmd *cobra.Command, app *App, id, name string) (*store.User, error) {
	ctx := cmd.Context()
	if id != "" {
		u, err := app.Store.GetUser(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", chat.ErrUserNotFound, id)
		}
		return u, err
	}

	users, err := app.Chat.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.Name == name {
			return u, nil
		}
	}
	u, _, err := app.Chat.CreateUser(ctx, name)
	return u, err
}

func init() {
	chatCmd.Flags().StringVar(&chatName, "name", "", "Doctor name; created when unknown")
	chatCmd.Flags().StringVar(&chatID, "id", "", "Existing user id")
	RootCmd.AddCommand(chatCmd)
}
