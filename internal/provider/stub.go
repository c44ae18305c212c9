package provider

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
)

// StubStep is one scripted reply: either an error or a response.
type StubStep struct {
	Response Response
	Err      error
}

// StubProvider replays scripted steps and embeds text with a deterministic
// hashing trick, so it can run offline against a corpus built the same way.
type StubProvider struct {
	mu       sync.Mutex
	steps    []StubStep
	calls    int
	last     []Message
	dim      int
	fallback Response
}

func NewStubProvider(steps ...StubStep) *StubProvider {
	return &StubProvider{
		steps: steps,
		dim:   64,
		fallback: Response{
			Content: "Please share the patient's symptoms, age and any current medication.",
			Usage:   Usage{PromptTokens: 100, CompletionTokens: 12, TotalTokens: 112},
		},
	}
}

// Calls returns the number of Chat invocations so far.
func (m *StubProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastMessages returns a copy of the messages of the most recent Chat call.
func (m *StubProvider) LastMessages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.last))
	copy(out, m.last)
	return out
}

func (m *StubProvider) Chat(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	m.last = append(m.last[:0], messages...)

	if len(m.steps) == 0 {
		resp := m.fallback
		return &resp, nil
	}

	step := m.steps[0]
	m.steps = m.steps[1:]
	if step.Err != nil {
		return nil, step.Err
	}
	resp := step.Response
	return &resp, nil
}

// Embed hashes lower-cased words into a fixed number of buckets and
// L2-normalises the result.
func (m *StubProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return HashEmbedding(text, m.dim), nil
}

func (m *StubProvider) Name() string {
	return "stub"
}

// HashEmbedding is the bag-of-words embedding used by StubProvider.
func HashEmbedding(text string, dim int) []float32 {
	vec := make([]float32, dim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,:;!?()\"'")
		if w == "" {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%uint32(dim)] += 1.0
	}

	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
