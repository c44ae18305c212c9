package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIProvider(t *testing.T) {
	var gotMaxTokens int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			MaxTokens int `json:"max_tokens"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotMaxTokens = body.MaxTokens

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"choices": [{"message": {"content": "  take 500mg twice daily  ", "role": "assistant"}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer server.Close()

	p, _ := NewOpenAIProvider("test-key", server.URL, "gpt-3.5-turbo", "")
	if p.Name() != "openai" {
		t.Errorf("Expected 'openai', got '%s'", p.Name())
	}

	resp, err := p.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, Options{MaxTokens: 150})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "  take 500mg twice daily  " {
		t.Errorf("Expected raw content, got '%s'", resp.Content)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("Expected 15 total tokens, got %d", resp.Usage.TotalTokens)
	}
	if gotMaxTokens != 150 {
		t.Errorf("Expected max_tokens 150 on the wire, got %d", gotMaxTokens)
	}
}

func TestOpenAIProvider_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object": "list", "data": [{"object": "embedding", "index": 0, "embedding": [0.5, 0.25]}]}`))
	}))
	defer server.Close()

	p, _ := NewOpenAIProvider("test-key", server.URL, "", "")
	vec, err := p.Embed(context.Background(), "paracetamol")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 2 || vec[0] != 0.5 {
		t.Errorf("Expected [0.5 0.25], got %v", vec)
	}
}

func TestOpenAIProvider_Init(t *testing.T) {
	_, err := NewOpenAIProvider("", "", "", "")
	if err == nil {
		t.Error("Expected error for empty key")
	}
}

func TestOpenAIProvider_ErrorKinds(t *testing.T) {
	cases := []struct {
		status int
		want   Kind
	}{
		{http.StatusTooManyRequests, KindRateLimit},
		{http.StatusUnauthorized, KindAuthentication},
		{http.StatusBadRequest, KindInvalidRequest},
		{http.StatusInternalServerError, KindAPI},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				w.Write([]byte(`{"error": {"message": "nope", "type": "test_error"}}`))
			}))
			defer server.Close()

			p, _ := NewOpenAIProvider("key", server.URL, "", "")
			_, err := p.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, Options{})
			if err == nil {
				t.Fatal("Expected error")
			}
			if got := Classify(err); got != tc.want {
				t.Errorf("Expected kind %s, got %s (%v)", tc.want, got, err)
			}
			var pErr *Error
			if !errors.As(err, &pErr) || pErr.Provider != "openai" {
				t.Errorf("Expected *provider.Error from openai, got %T", err)
			}
		})
	}
}

func TestOllamaProvider(t *testing.T) {
	var gotOptions map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Options map[string]any `json:"options"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotOptions = body.Options

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message": {"role": "assistant", "content": "hi from ollama"}, "done": true, "eval_count": 10, "prompt_eval_count": 5}`))
	}))
	defer server.Close()

	p, err := NewOllamaProvider(server.URL, "llama3", "")
	if err != nil {
		t.Fatalf("NewOllamaProvider failed: %v", err)
	}
	if p.Name() != "ollama" {
		t.Errorf("Expected 'ollama', got '%s'", p.Name())
	}

	resp, err := p.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, Options{MaxTokens: 42})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "hi from ollama" {
		t.Errorf("Expected 'hi from ollama', got '%s'", resp.Content)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("Expected 15 total tokens, got %d", resp.Usage.TotalTokens)
	}
	if v, ok := gotOptions["num_predict"].(float64); !ok || v != 42 {
		t.Errorf("Expected num_predict 42, got %v", gotOptions["num_predict"])
	}
}

func TestAnthropicProvider(t *testing.T) {
	var got anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_123",
			"content": [{"type": "text", "text": "hello from claude"}],
			"usage": {"input_tokens": 5, "output_tokens": 5}
		}`))
	}))
	defer server.Close()

	p, _ := NewAnthropicProvider("test-key", "claude-3")
	p.SetBaseURL(server.URL)
	if p.Name() != "anthropic" {
		t.Errorf("Expected 'anthropic', got '%s'", p.Name())
	}

	msgs := []Message{
		{Role: "system", Content: "persona"},
		{Role: "user", Content: "fever"},
		{Role: "user", Content: "fever"},
		{Role: "system", Content: "evidence"},
	}
	resp, err := p.Chat(context.Background(), msgs, Options{MaxTokens: 150})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "hello from claude" {
		t.Errorf("Expected 'hello from claude', got '%s'", resp.Content)
	}
	if got.System != "persona" {
		t.Errorf("Expected system 'persona', got %q", got.System)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" {
		t.Fatalf("Expected one merged user message, got %+v", got.Messages)
	}
	if got.Messages[0].Content != "fever\n\nfever\n\nevidence" {
		t.Errorf("Unexpected merged content %q", got.Messages[0].Content)
	}
	if got.MaxTokens != 150 {
		t.Errorf("Expected max_tokens 150, got %d", got.MaxTokens)
	}
}

func TestAnthropicProvider_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
	}))
	defer server.Close()

	p, _ := NewAnthropicProvider("key", "")
	p.SetBaseURL(server.URL)

	_, err := p.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, Options{})
	if err == nil {
		t.Fatal("Expected error")
	}
	if Classify(err) != KindAuthentication {
		t.Errorf("Expected authentication kind, got %s", Classify(err))
	}
}

func TestGeminiProvider_Name(t *testing.T) {
	// genai.NewClient does not dial on construction.
	p, err := NewGeminiProvider("fake-key", "gemini-pro", "")
	if err != nil {
		t.Logf("Skipping Gemini Name test due to client init error: %v", err)
		return
	}
	defer p.Close()
	if p.Name() != "gemini" {
		t.Errorf("Expected 'gemini', got '%s'", p.Name())
	}
}

func TestStubProvider(t *testing.T) {
	boom := &Error{Provider: "stub", Kind: KindTimeout, Err: errors.New("slow")}
	p := NewStubProvider(
		StubStep{Err: boom},
		StubStep{Response: Response{Content: "scripted"}},
	)
	if p.Name() != "stub" {
		t.Errorf("Expected 'stub', got '%s'", p.Name())
	}

	if _, err := p.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, Options{}); !errors.Is(err, boom) {
		t.Fatalf("Expected scripted error, got %v", err)
	}
	resp, err := p.Chat(context.Background(), []Message{{Role: "user", Content: "again"}}, Options{})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "scripted" {
		t.Errorf("Expected 'scripted', got '%s'", resp.Content)
	}
	resp, _ = p.Chat(context.Background(), nil, Options{})
	if resp.Content == "" {
		t.Error("Expected default content once the script runs out")
	}
	if p.Calls() != 3 {
		t.Errorf("Expected 3 calls, got %d", p.Calls())
	}
	if last := p.LastMessages(); len(last) != 0 {
		t.Errorf("Expected last call to carry no messages, got %v", last)
	}
}

func TestStubProvider_Canceled(t *testing.T) {
	p := NewStubProvider()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Chat(ctx, []Message{{Content: "hi"}}, Options{})
	if err == nil {
		t.Error("Expected error on canceled context")
	}
}

func TestHashEmbedding(t *testing.T) {
	a := HashEmbedding("Paracetamol: pain relief", 32)
	b := HashEmbedding("paracetamol pain relief!", 32)
	if len(a) != 32 {
		t.Fatalf("Expected 32 dimensions, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Expected punctuation and case to be ignored, differ at %d", i)
		}
	}

	empty := HashEmbedding("   ", 8)
	for _, v := range empty {
		if v != 0 {
			t.Fatal("Expected zero vector for blank text")
		}
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"canceled", context.Canceled, KindUnknown},
		{"wrapped kind", fmt.Errorf("outer: %w", &Error{Kind: KindRateLimit, Err: errors.New("slow down")}), KindRateLimit},
		{"plain", errors.New("mystery"), KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Errorf("Expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestNew(t *testing.T) {
	p, err := New(Settings{Type: "stub"})
	if err != nil || p.Name() != "stub" {
		t.Fatalf("Expected stub provider, got %v, %v", p, err)
	}
	if _, err := New(Settings{Type: "openai"}); err == nil {
		t.Error("Expected error for openai without key")
	}
	if _, err := New(Settings{Type: "nope"}); err == nil {
		t.Error("Expected error for unknown provider")
	}
}
