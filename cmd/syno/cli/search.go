package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/syno/internal/rag"
)

var searchK int

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Show the corpus entries closest to a query",
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

		k := searchK
		if k < 1 {
			k = rag.DefaultTopK
		}
		hits := app.Retriever.Retrieve(ctx, strings.Join(args, " "), k)

		out := cmd.OutOrStdout()
		if jsonOutput {
			return json.NewEncoder(out).Encode(hits)
		}
		if len(hits) == 0 {
			fmt.Fprintln(out, "No matching corpus entries.")
			return nil
		}
		for i, h := range hits {
			fmt.Fprintf(out, "%d. [%.4f] %s\n", i+1, h.Score, h.Text)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVar(&searchK, "k", rag.DefaultTopK, "Number of entries to show")
	RootCmd.AddCommand(searchCmd)
}
