package generate

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/syno/internal/conversation"
	"github.com/felixgeelhaar/syno/internal/observe"
	"github.com/felixgeelhaar/syno/internal/provider"
	"github.com/felixgeelhaar/syno/internal/rag"
)

type staticEvidence []rag.Evidence

func (s staticEvidence) Retrieve(ctx context.Context, query string, k int) []rag.Evidence {
	return s
}

type recordingProvider struct {
	mu   sync.Mutex
	opts []provider.Options
}

func (r *recordingProvider) Chat(ctx context.Context, messages []provider.Message, opts provider.Options) (*provider.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opts = append(r.opts, opts)
	return &provider.Response{Content: "ok"}, nil
}

func (r *recordingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, nil
}

func (r *recordingProvider) Name() string { return "recording" }

func fail(kind provider.Kind) provider.StubStep {
	return provider.StubStep{Err: &provider.Error{Provider: "stub", Kind: kind, Err: errors.New(string(kind))}}
}

func reply(content string) provider.StubStep {
	return provider.StubStep{Response: provider.Response{Content: content}}
}

func newObserver() *observe.Observer {
	return observe.New(&bytes.Buffer{}, false)
}

func TestGenerate_SucceedsOnSecondAttempt(t *testing.T) {
	p := provider.NewStubProvider(fail(provider.KindTimeout), reply("  Take 500mg every 6 hours.  "))
	g := New(p, staticEvidence{{Score: 1, Text: "Paracetamol: pain relief"}}, newObserver())
	s := conversation.NewSession("c1")

	got := g.Generate(context.Background(), s, "fever 3 days")
	if got != "Take 500mg every 6 hours." {
		t.Errorf("expected trimmed reply, got %q", got)
	}
	if p.Calls() != 2 {
		t.Errorf("expected 2 calls, got %d", p.Calls())
	}
}

func TestGenerate_FallbackAfterThreeAttempts(t *testing.T) {
	p := provider.NewStubProvider(
		fail(provider.KindRateLimit),
		fail(provider.KindAPI),
		fail(provider.KindAuthentication),
		reply("never reached"),
	)
	g := New(p, nil, newObserver())

	got := g.Generate(context.Background(), conversation.NewSession("c1"), "hi")
	if got != Fallback {
		t.Errorf("expected fallback, got %q", got)
	}
	if p.Calls() != 3 {
		t.Errorf("expected exactly 3 calls, got %d", p.Calls())
	}
}

func TestGenerate_RetryableKinds(t *testing.T) {
	kinds := []provider.Kind{
		provider.KindRateLimit,
		provider.KindTimeout,
		provider.KindAPI,
		provider.KindInvalidRequest,
		provider.KindAuthentication,
	}
	for _, k := range kinds {
		t.Run(string(k), func(t *testing.T) {
			p := provider.NewStubProvider(fail(k), reply("recovered"))
			g := New(p, nil, newObserver())
			if got := g.Generate(context.Background(), conversation.NewSession("c"), "hi"); got != "recovered" {
				t.Errorf("expected retry to recover, got %q", got)
			}
		})
	}
}

func TestGenerate_UnclassifiedErrorStops(t *testing.T) {
	p := provider.NewStubProvider(provider.StubStep{Err: errors.New("mystery")}, reply("never reached"))
	g := New(p, nil, newObserver())

	if got := g.Generate(context.Background(), conversation.NewSession("c"), "hi"); got != Fallback {
		t.Errorf("expected fallback, got %q", got)
	}
	if p.Calls() != 1 {
		t.Errorf("expected 1 call, got %d", p.Calls())
	}
}

func TestGenerate_EmptyCompletionIsRetried(t *testing.T) {
	p := provider.NewStubProvider(reply("   "), reply(""), reply("\n"))
	g := New(p, nil, newObserver())

	got := g.Generate(context.Background(), conversation.NewSession("c"), "hi")
	if got != Fallback {
		t.Errorf("expected fallback after empty completions, got %q", got)
	}
	if p.Calls() != 3 {
		t.Errorf("expected 3 calls, got %d", p.Calls())
	}
}

func TestGenerate_CanceledContext(t *testing.T) {
	p := provider.NewStubProvider(reply("never reached"))
	g := New(p, nil, newObserver())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got := g.Generate(ctx, conversation.NewSession("c"), "hi")
	if got != Fallback {
		t.Errorf("expected fallback on canceled context, got %q", got)
	}
	if p.Calls() > 1 {
		t.Errorf("expected at most 1 call, got %d", p.Calls())
	}
}

func TestGenerate_PromptShape(t *testing.T) {
	p := provider.NewStubProvider(reply("ok"))
	g := New(p, staticEvidence{{Text: "Paracetamol: pain relief"}, {Text: "Ibuprofen: inflammation"}}, newObserver())

	s := conversation.NewSession("c1")
	s.AppendSystemGreeting("Dr. Lee")
	s.AppendUserTurn("fever 3 days")
	before := s.Turns()

	g.Generate(context.Background(), s, "fever 3 days")

	msgs := p.LastMessages()
	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d: %+v", len(msgs), msgs)
	}
	if msgs[0].Role != "system" || msgs[0].Content != RolePrompt {
		t.Errorf("expected role prompt first, got %+v", msgs[0])
	}
	if msgs[1].Content != "Hello, Dr. Lee! How can I assist you today?" {
		t.Errorf("expected greeting second, got %+v", msgs[1])
	}
	if msgs[2] != msgs[3] || msgs[3].Role != "user" {
		t.Errorf("expected duplicated user input, got %+v %+v", msgs[2], msgs[3])
	}
	if msgs[4].Role != "system" || msgs[4].Content != "Paracetamol: pain relief\nIbuprofen: inflammation" {
		t.Errorf("expected joined evidence last, got %+v", msgs[4])
	}

	after := s.Turns()
	if len(after) != len(before) {
		t.Errorf("expected session untouched, had %d turns now %d", len(before), len(after))
	}
}

func TestGenerate_NoEvidence(t *testing.T) {
	p := provider.NewStubProvider(reply("ok"))
	g := New(p, staticEvidence{}, newObserver())

	g.Generate(context.Background(), conversation.NewSession("c"), "hi")
	msgs := p.LastMessages()
	if last := msgs[len(msgs)-1]; last.Content != NoEvidence {
		t.Errorf("expected no-evidence sentinel, got %q", last.Content)
	}
	if !strings.Contains(NoEvidence, "relevant information") {
		t.Error("sentinel must say no relevant information was found")
	}
}

func TestGenerate_Options(t *testing.T) {
	p := &recordingProvider{}
	g := New(p, nil, newObserver(), WithMaxTokens(64), WithRolePrompt("custom"))
	g.Generate(context.Background(), conversation.NewSession("c"), "hi")
	if p.opts[0].MaxTokens != 64 {
		t.Errorf("expected max tokens 64, got %d", p.opts[0].MaxTokens)
	}

	p = &recordingProvider{}
	New(p, nil, newObserver()).Generate(context.Background(), conversation.NewSession("c"), "hi")
	if p.opts[0].MaxTokens != DefaultMaxTokens {
		t.Errorf("expected default max tokens, got %d", p.opts[0].MaxTokens)
	}
}

func TestGenerate_PolicyBackoff(t *testing.T) {
	p := provider.NewStubProvider(fail(provider.KindTimeout), fail(provider.KindTimeout), fail(provider.KindTimeout), fail(provider.KindTimeout))
	g := New(p, nil, newObserver(), WithPolicy(Policy{MaxAttempts: 4, Backoff: time.Millisecond}))

	start := time.Now()
	if got := g.Generate(context.Background(), conversation.NewSession("c"), "hi"); got != Fallback {
		t.Errorf("expected fallback, got %q", got)
	}
	if p.Calls() != 4 {
		t.Errorf("expected 4 calls, got %d", p.Calls())
	}
	if time.Since(start) < 3*time.Millisecond {
		t.Error("expected backoff between attempts")
	}
}

func TestGenerate_FallbackIsLogged(t *testing.T) {
	buf := &bytes.Buffer{}
	p := provider.NewStubProvider(fail(provider.KindAPI), fail(provider.KindAPI), fail(provider.KindAPI))
	g := New(p, nil, observe.New(buf, false))

	g.Generate(context.Background(), conversation.NewSession("c"), "hi")
	if !strings.Contains(buf.String(), "returning fallback reply") {
		t.Errorf("expected fallback log, got %q", buf.String())
	}
}
