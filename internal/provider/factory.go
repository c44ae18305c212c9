package provider

import (
	"fmt"
	"os/exec"
)

// Settings selects and configures a provider.
type Settings struct {
	Type           string
	Model          string
	EmbeddingModel string
	APIKey         string
	BaseURL        string
	CLIPath        string
	CLIArgs        []string
}

// New builds the provider named by s.Type.
func New(s Settings) (Provider, error) {
	switch s.Type {
	case "openai":
		return NewOpenAIProvider(s.APIKey, s.BaseURL, s.Model, s.EmbeddingModel)
	case "ollama":
		return NewOllamaProvider(s.BaseURL, s.Model, s.EmbeddingModel)
	case "gemini":
		return NewGeminiProvider(s.APIKey, s.Model, s.EmbeddingModel)
	case "anthropic":
		p, err := NewAnthropicProvider(s.APIKey, s.Model)
		if err != nil {
			return nil, err
		}
		if s.BaseURL != "" {
			p.SetBaseURL(s.BaseURL)
		}
		return p, nil
	case "cli":
		return detectCLIProvider(s.CLIPath, s.CLIArgs)
	case "stub":
		return NewStubProvider(), nil
	default:
		return nil, fmt.Errorf("unknown provider: %q", s.Type)
	}
}

func detectCLIProvider(path string, args []string) (Provider, error) {
	if path != "" {
		return NewCLIProvider(path, args)
	}

	tools := []string{"llm", "ollama", "gemini"}
	for _, t := range tools {
		if found, err := exec.LookPath(t); err == nil {
			return NewCLIProvider(found, args)
		}
	}

	return nil, fmt.Errorf("no local CLI assistants detected (tried llm, ollama, gemini)")
}
