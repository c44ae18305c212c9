// Package config loads the YAML configuration and applies environment
// overrides.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/syno/internal/corpus"
	"github.com/felixgeelhaar/syno/internal/provider"
	"github.com/felixgeelhaar/syno/internal/store"
)

// ProviderConfig selects a model backend.
type ProviderConfig struct {
	Type           string   `yaml:"type"`
	Model          string   `yaml:"model,omitempty"`
	EmbeddingModel string   `yaml:"embedding_model,omitempty"`
	APIKey         string   `yaml:"api_key,omitempty"`
	BaseURL        string   `yaml:"base_url,omitempty"`
	CLIPath        string   `yaml:"cli_path,omitempty"`
	CLIArgs        []string `yaml:"cli_args,omitempty"`
}

// Settings converts to the provider factory input.
func (p ProviderConfig) Settings() provider.Settings {
	return provider.Settings{
		Type:           p.Type,
		Model:          p.Model,
		EmbeddingModel: p.EmbeddingModel,
		APIKey:         p.APIKey,
		BaseURL:        p.BaseURL,
		CLIPath:        p.CLIPath,
		CLIArgs:        p.CLIArgs,
	}
}

// GenerationConfig tunes reply generation.
type GenerationConfig struct {
	MaxTokens   int           `yaml:"max_tokens"`
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"`
	TopK        int           `yaml:"top_k"`
	// Empty keeps the built-in persona.
	RolePrompt string `yaml:"role_prompt,omitempty"`
}

// CorpusConfig lists the bundle sources loaded at startup.
type CorpusConfig struct {
	Sources []string        `yaml:"sources"`
	S3      corpus.S3Config `yaml:"s3,omitempty"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr        string        `yaml:"addr"`
	SessionIdle time.Duration `yaml:"session_idle"`
}

// LogConfig configures the observer.
type LogConfig struct {
	Format  string `yaml:"format"`
	Verbose bool   `yaml:"verbose"`
}

// Config is the root configuration.
type Config struct {
	Provider ProviderConfig `yaml:"provider"`
	// Embedder defaults to Provider when Type is empty. It must produce
	// vectors in the same space as the corpus.
	Embedder   ProviderConfig   `yaml:"embedder,omitempty"`
	Generation GenerationConfig `yaml:"generation"`
	Corpus     CorpusConfig     `yaml:"corpus"`
	Store      store.Config     `yaml:"store"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
}

// DataDir is where the default database and config live.
func DataDir() string {
	if dir := os.Getenv("SYNO_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".syno"
	}
	return filepath.Join(home, ".syno")
}

// DefaultPath is the config file used when none is given.
func DefaultPath() string {
	return filepath.Join(DataDir(), "config.yaml")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{Type: "ollama"},
		Generation: GenerationConfig{
			MaxTokens:   150,
			MaxAttempts: 3,
			TopK:        3,
		},
		Corpus: CorpusConfig{
			Sources: []string{filepath.Join(DataDir(), "corpus", "*.json")},
		},
		Store: store.Config{
			Driver: "sqlite",
			DSN:    filepath.Join(DataDir(), "syno.db"),
		},
		Server: ServerConfig{
			Addr:        ":8080",
			SessionIdle: 30 * time.Minute,
		},
		Log: LogConfig{Format: "console"},
	}
}

// Load reads path, fills defaults and applies the environment. A missing
// file yields the defaults. A .env file in the working directory is loaded
// first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	data, err := os.ReadFile(path) // #nosec G304
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	applyDefaults(cfg)
	applyEnv(cfg)
	return cfg, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func applyDefaults(cfg *Config) {
	d := Default()
	if cfg.Provider.Type == "" {
		cfg.Provider.Type = d.Provider.Type
	}
	if cfg.Generation.MaxTokens <= 0 {
		cfg.Generation.MaxTokens = d.Generation.MaxTokens
	}
	if cfg.Generation.MaxAttempts <= 0 {
		cfg.Generation.MaxAttempts = d.Generation.MaxAttempts
	}
	if cfg.Generation.TopK <= 0 {
		cfg.Generation.TopK = d.Generation.TopK
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = d.Store.Driver
	}
	if cfg.Store.DSN == "" && cfg.Store.Driver == "sqlite" {
		cfg.Store.DSN = d.Store.DSN
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = d.Server.Addr
	}
	if cfg.Server.SessionIdle <= 0 {
		cfg.Server.SessionIdle = d.Server.SessionIdle
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = d.Log.Format
	}
}

var apiKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"gemini":    "GEMINI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SYNO_PROVIDER"); v != "" {
		cfg.Provider.Type = v
	}
	if v := os.Getenv("SYNO_MODEL"); v != "" {
		cfg.Provider.Model = v
	}
	applyProviderEnv(&cfg.Provider)
	applyProviderEnv(&cfg.Embedder)

	if v := os.Getenv("SYNO_DATABASE_DSN"); v != "" {
		cfg.Store.DSN = v
		if strings.HasPrefix(v, "postgres://") || strings.HasPrefix(v, "postgresql://") {
			cfg.Store.Driver = "postgres"
		}
	}
	if v := os.Getenv("SYNO_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
}

func applyProviderEnv(p *ProviderConfig) {
	if env, ok := apiKeyEnv[p.Type]; ok && p.APIKey == "" {
		p.APIKey = os.Getenv(env)
	}
	if p.Type == "ollama" && p.BaseURL == "" {
		p.BaseURL = os.Getenv("OLLAMA_HOST")
	}
}

// EmbedderConfig returns the embedder settings, falling back to the chat
// provider when no separate embedder is configured.
func (c *Config) EmbedderConfig() ProviderConfig {
	if c.Embedder.Type == "" {
		return c.Provider
	}
	return c.Embedder
}
