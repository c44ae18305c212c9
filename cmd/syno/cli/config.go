package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/syno/internal/credential"
)

var revealSecret bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage stored configuration",
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Long: `Set a value in the configuration table. Keys ending in api_key, _secret or
password are encrypted at rest, e.g. "openai.api_key".`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, vault, err := openVault(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := vault.Set(cmd.Context(), args[0], args[1]); err != nil {
			return fmt.Errorf("failed to set config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration saved: %s\n", args[0])
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, vault, err := openVault(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		val, err := vault.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		switch {
		case val == "":
			fmt.Fprintln(cmd.OutOrStdout(), "(not set)")
		case credential.IsSecretKey(args[0]) && !revealSecret:
			fmt.Fprintln(cmd.OutOrStdout(), credential.MaskSecret(val))
		default:
			fmt.Fprintln(cmd.OutOrStdout(), val)
		}
		return nil
	},
}

func init() {
	configGetCmd.Flags().BoolVar(&revealSecret, "reveal", false, "Print secrets in plain text")
	RootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
}
