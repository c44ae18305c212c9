package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/syno/internal/config"
)

var (
	configPath   string
	verbose      bool
	jsonOutput   bool
	providerType string
	modelName    string
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "syno",
	Short: "Retrieval-augmented medical assistant for clinicians",
	Long: `Syno answers a doctor's questions about medicines from a fixed reference
corpus. It keeps one conversation per clinician, retrieves the closest corpus
entries for every message and asks a language model for a short answer.`,
	SilenceUsage: true,
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath(), "Path to the YAML config file")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	RootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "JSON logs and output")
	RootCmd.PersistentFlags().StringVarP(&providerType, "provider", "p", "", "Model provider (ollama, openai, gemini, anthropic, cli, stub)")
	RootCmd.PersistentFlags().StringVarP(&modelName, "model", "m", "", "Model name (default depends on provider)")
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", configPath, err)
	}
	if providerType != "" {
		cfg.Provider.Type = providerType
	}
	if modelName != "" {
		cfg.Provider.Model = modelName
	}
	if verbose {
		cfg.Log.Verbose = true
	}
	if jsonOutput {
		cfg.Log.Format = "json"
	}
	return cfg, nil
}
