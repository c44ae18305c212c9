package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/syno/internal/conversation"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question without storing a conversation",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
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

		question := strings.Join(args, " ")
		sess := conversation.NewSession(uuid.NewString())
		sess.AppendSystemGreeting("Doctor")

		reply := app.Generator.Generate(ctx, sess, question)

		out := cmd.OutOrStdout()
		if jsonOutput {
			evidence := app.Retriever.Retrieve(ctx, question, cfg.Generation.TopK)
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"question": question,
				"reply":    reply,
				"evidence": evidence,
			})
		}
		fmt.Fprintln(out, reply)
		return nil
	},
}

func init() {
	RootCmd.AddCommand(askCmd)
}
