// Package generate produces the assistant's reply for one user message:
// it gathers evidence, renders the prompt and calls the model under a
// bounded retry policy, falling back to a fixed apology when every attempt
// fails.
package generate

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/felixgeelhaar/syno/internal/conversation"
	"github.com/felixgeelhaar/syno/internal/observe"
	"github.com/felixgeelhaar/syno/internal/provider"
	"github.com/felixgeelhaar/syno/internal/rag"
)

const (
	// RolePrompt is the assistant persona sent as the first system turn.
	RolePrompt = "Your name is Syno and you're a medical assistant. Your main task is assisting a doctor with medical information. " +
		"Provide accurate and concise answers based on the provided RAG dataset. " +
		"Your goal is to help the doctor with their queries and provide necessary medical information efficiently. " +
		"Engage in small talk if necessary, but always return to important questions and answer briefly in compact sentences. " +
		"Don't ask more than one question at a time. Be persistent and help the doctor with his questions. " +
		"If you can't prescribe a medicine, advise them on what to do. " +
		"The conversation ends if the doctor has no more questions and is satisfied with the prognosis and prescribed medicine. " +
		"When prescribing a medicine, tell the user how regularly and how many times the medicine should be taken. " +
		"Decide what the further steps are. " +
		"If the provided concern is not health-related and cannot be treated with medicine, advise that another health department is needed for the problem. " +
		"If you've served the doctor, try to end the conversation politely and tell him what to do next."

	// NoEvidence replaces the evidence turn when retrieval finds nothing.
	NoEvidence = "I couldn't find any relevant information in my database to address your query."

	// Fallback is returned once every attempt has failed.
	Fallback = "I'm sorry, but I couldn't process your request at the moment. Please try again later."

	DefaultMaxTokens = 150
)

// Policy bounds the model calls made for one reply.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultPolicy makes three immediate attempts.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3}
}

// Retryable is the closed set of failure kinds worth another attempt.
var Retryable = map[provider.Kind]bool{
	provider.KindRateLimit:      true,
	provider.KindTimeout:        true,
	provider.KindAPI:            true,
	provider.KindInvalidRequest: true,
	provider.KindAuthentication: true,
}

// EvidenceSource supplies corpus passages for a query.
type EvidenceSource interface {
	Retrieve(ctx context.Context, query string, k int) []rag.Evidence
}

// Generator is safe for concurrent use; it holds no per-conversation state.
type Generator struct {
	provider   provider.Provider
	evidence   EvidenceSource
	obs        *observe.Observer
	policy     Policy
	maxTokens  int
	topK       int
	rolePrompt string
}

// Option tunes a Generator.
type Option func(*Generator)

func WithPolicy(p Policy) Option {
	return func(g *Generator) { g.policy = p }
}

func WithMaxTokens(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

func WithTopK(k int) Option {
	return func(g *Generator) { g.topK = k }
}

func WithRolePrompt(prompt string) Option {
	return func(g *Generator) {
		if prompt != "" {
			g.rolePrompt = prompt
		}
	}
}

// New creates a Generator. A nil evidence source always yields NoEvidence.
func New(p provider.Provider, evidence EvidenceSource, obs *observe.Observer, opts ...Option) *Generator {
	g := &Generator{
		provider:   p,
		evidence:   evidence,
		obs:        obs,
		policy:     DefaultPolicy(),
		maxTokens:  DefaultMaxTokens,
		topK:       rag.DefaultTopK,
		rolePrompt: RolePrompt,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// EvidenceText joins retrieved passages with newlines, or returns NoEvidence.
func (g *Generator) EvidenceText(ctx context.Context, userInput string) string {
	if g.evidence == nil {
		return NoEvidence
	}
	hits := g.evidence.Retrieve(ctx, userInput, g.topK)
	if len(hits) == 0 {
		return NoEvidence
	}
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	return strings.Join(texts, "\n")
}

// Generate returns the reply to userInput given the session's transcript.
// The result is never empty and the session is not modified.
func (g *Generator) Generate(ctx context.Context, session *conversation.Session, userInput string) string {
	ctx, span := g.obs.StartSpan(ctx, "generate.Generate")
	defer span.End()

	evidence := g.EvidenceText(ctx, userInput)
	prompt := session.RenderPrompt(g.rolePrompt, userInput, evidence)
	messages := toMessages(prompt)
	span.SetAttributes(
		attribute.String("syno.provider", g.provider.Name()),
		attribute.Int("syno.prompt_turns", len(messages)),
	)

	attempts := 0
	var reply string
	err := retry.Do(ctx, g.backoff(), func(ctx context.Context) error {
		attempts++
		content, err := g.call(ctx, messages)
		if err == nil {
			reply = content
			return nil
		}

		kind := provider.Classify(err)
		log := g.obs.Log().Warn().
			Str("provider", g.provider.Name()).
			Int("attempt", attempts).
			Str("kind", string(kind)).
			Err(err)
		if !Retryable[kind] || ctx.Err() != nil {
			log.Msg("model call failed, not retrying")
			return err
		}
		log.Msg("model call failed, retrying")
		return retry.RetryableError(err)
	})
	span.SetAttributes(attribute.Int("syno.attempts", attempts))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fallback")
		g.obs.Log().Error().
			Str("provider", g.provider.Name()).
			Int("attempts", attempts).
			Err(err).
			Msg("returning fallback reply")
		return Fallback
	}

	g.obs.Log().Debug().Int("attempts", attempts).Msg("reply generated")
	return reply
}

func (g *Generator) call(ctx context.Context, messages []provider.Message) (string, error) {
	resp, err := g.provider.Chat(ctx, messages, provider.Options{MaxTokens: g.maxTokens})
	if err != nil {
		return "", err
	}
	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return "", &provider.Error{Provider: g.provider.Name(), Kind: provider.KindAPI, Err: errors.New("empty completion")}
	}
	return content, nil
}

func (g *Generator) backoff() retry.Backoff {
	attempts := g.policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var b retry.Backoff
	if g.policy.Backoff > 0 {
		b = retry.NewConstant(g.policy.Backoff)
	} else {
		b = retry.BackoffFunc(func() (time.Duration, bool) { return 0, false })
	}
	return retry.WithMaxRetries(uint64(attempts-1), b)
}

func toMessages(turns []conversation.Turn) []provider.Message {
	out := make([]provider.Message, len(turns))
	for i, t := range turns {
		out[i] = provider.Message{Role: string(t.Role), Content: t.Content}
	}
	return out
}
