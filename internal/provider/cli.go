package provider

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CLIProvider shells out to a local assistant binary, passing the whole
// transcript as a single prompt argument.
type CLIProvider struct {
	binaryPath string
	args       []string
	timeout    time.Duration
}

func NewCLIProvider(binaryPath string, args []string) (*CLIProvider, error) {
	if binaryPath == "" {
		return nil, fmt.Errorf("binary path is required for CLI provider")
	}
	return &CLIProvider{
		binaryPath: binaryPath,
		args:       args,
		timeout:    2 * time.Minute,
	}, nil
}

func (p *CLIProvider) Name() string {
	return "cli-" + p.binaryPath
}

func (p *CLIProvider) Chat(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	prompt := renderTranscript(messages)

	fullArgs := append(append([]string{}, p.args...), prompt)

	execCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, p.binaryPath, fullArgs...) // #nosec G204
	output, err := cmd.CombinedOutput()
	result := string(output)

	if err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			return nil, &Error{Provider: p.Name(), Kind: KindTimeout, Err: fmt.Errorf("cli agent timed out: %w", err)}
		}
		return nil, &Error{Provider: p.Name(), Kind: KindAPI, Err: fmt.Errorf("cli agent failed: %w\nOutput: %s", err, result)}
	}

	words := strings.Fields(result)
	if opts.MaxTokens > 0 && len(words) > opts.MaxTokens {
		result = strings.Join(words[:opts.MaxTokens], " ")
		words = words[:opts.MaxTokens]
	}

	return &Response{
		Content: result,
		Usage: Usage{
			CompletionTokens: len(words),
			TotalTokens:      len(words),
		},
	}, nil
}

func (p *CLIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("embeddings not supported by CLI provider")
}

func renderTranscript(messages []Message) string {
	var sb strings.Builder
	for i, m := range messages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(strings.ToUpper(m.Role))
		sb.WriteString(": ")
		sb.WriteString(m.Content)
	}
	return sb.String()
}
