package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

type GeminiProvider struct {
	client         *genai.Client
	model          string
	embeddingModel string
}

func NewGeminiProvider(apiKey, model, embeddingModel string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, errors.New("API key is required")
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	if model == "" {
		model = "gemini-1.5-flash"
	}
	if embeddingModel == "" {
		embeddingModel = "text-embedding-004"
	}

	return &GeminiProvider{
		client:         client,
		model:          model,
		embeddingModel: embeddingModel,
	}, nil
}

func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Chat maps the leading system message onto the system instruction. Later
// system messages (retrieved evidence) travel as user content since Gemini
// has no mid-conversation system role.
func (p *GeminiProvider) Chat(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	if len(messages) == 0 {
		return nil, &Error{Provider: p.Name(), Kind: KindInvalidRequest, Err: errors.New("no messages")}
	}

	geminiModel := p.client.GenerativeModel(p.model)
	if opts.MaxTokens > 0 {
		geminiModel.SetMaxOutputTokens(int32(opts.MaxTokens))
	}

	rest := messages
	if rest[0].Role == "system" {
		geminiModel.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(rest[0].Content)},
		}
		rest = rest[1:]
	}
	if len(rest) == 0 {
		return nil, &Error{Provider: p.Name(), Kind: KindInvalidRequest, Err: errors.New("no conversational messages")}
	}

	cs := geminiModel.StartChat()
	var history []*genai.Content
	for _, m := range rest[:len(rest)-1] {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		if m.Content == "" {
			continue
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}
	cs.History = history

	lastMsg := rest[len(rest)-1]
	resp, err := cs.SendMessage(ctx, genai.Text(lastMsg.Content))
	if err != nil {
		return nil, p.wrapErr(fmt.Errorf("gemini completion failed: %w", err))
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, &Error{Provider: p.Name(), Kind: KindAPI, Err: errors.New("no candidates returned")}
	}

	var contentStr string
	for _, part := range resp.Candidates[0].Content.Parts {
		if v, ok := part.(genai.Text); ok {
			contentStr += string(v)
		}
	}

	var usage Usage
	if resp.UsageMetadata != nil {
		usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	return &Response{
		Content: contentStr,
		Usage:   usage,
	}, nil
}

func (p *GeminiProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	em := p.client.EmbeddingModel(p.embeddingModel)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, p.wrapErr(err)
	}
	if res.Embedding == nil {
		return nil, fmt.Errorf("no embedding returned")
	}
	return res.Embedding.Values, nil
}

// Close releases the underlying client connection.
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

func (p *GeminiProvider) wrapErr(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return &Error{Provider: p.Name(), Kind: KindFromStatus(gErr.Code), Err: err}
	}
	return wrap(p.Name(), err)
}
