package rag

import (
	"bytes"
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/felixgeelhaar/syno/internal/corpus"
	"github.com/felixgeelhaar/syno/internal/index"
	"github.com/felixgeelhaar/syno/internal/observe"
	"github.com/felixgeelhaar/syno/internal/provider"
)

type fixedEmbedder struct {
	vec []float32
	err error
}

func (f fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}

func buildIndex(t *testing.T, texts []string, vecs [][]float32) *index.Index {
	t.Helper()
	recs := make([]corpus.Record, len(texts))
	for i, txt := range texts {
		recs[i] = corpus.Record{Text: txt}
	}
	idx, err := index.Build(recs, vecs)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return idx
}

func TestRetrieve_SingleRecord(t *testing.T) {
	idx := buildIndex(t, []string{"Paracetamol: pain relief"}, [][]float32{{1.0}})
	r := NewRetriever(fixedEmbedder{vec: []float32{1.0}}, idx, observe.New(&bytes.Buffer{}, false))

	got := r.Retrieve(context.Background(), "fever medicine", 0)
	if len(got) != 1 {
		t.Fatalf("expected 1 evidence, got %d", len(got))
	}
	if got[0].Score != 1.0 || got[0].Text != "Paracetamol: pain relief" {
		t.Errorf("unexpected evidence %+v", got[0])
	}
}

func TestRetrieve_DefaultTopK(t *testing.T) {
	idx := buildIndex(t, []string{"a", "b", "c", "d", "e"}, [][]float32{{1, 0}, {0.9, 0.1}, {0.8, 0.2}, {0.1, 0.9}, {0, 1}})
	r := NewRetriever(fixedEmbedder{vec: []float32{1, 0}}, idx, observe.New(&bytes.Buffer{}, false))

	got := r.Retrieve(context.Background(), "q", -1)
	if len(got) != DefaultTopK {
		t.Fatalf("expected %d evidence, got %d", DefaultTopK, len(got))
	}
	if got[0].Text != "a" || got[2].Text != "c" {
		t.Errorf("unexpected order %+v", got)
	}
}

func TestRetrieve_Failures(t *testing.T) {
	idx := buildIndex(t, []string{"a"}, [][]float32{{1, 0}})

	cases := []struct {
		name     string
		embedder Embedder
		idx      *index.Index
	}{
		{"embedder error", fixedEmbedder{err: errors.New("model offline")}, idx},
		{"dimension mismatch", fixedEmbedder{vec: []float32{1, 0, 0}}, idx},
		{"nil index", fixedEmbedder{vec: []float32{1, 0}}, nil},
		{"empty index", fixedEmbedder{vec: []float32{1, 0}}, buildIndex(t, nil, nil)},
		{"non-finite query", fixedEmbedder{vec: []float32{float32(math.NaN()), 0}}, idx},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			r := NewRetriever(tc.embedder, tc.idx, observe.New(buf, false))
			got := r.Retrieve(context.Background(), "q", 3)
			if got == nil || len(got) != 0 {
				t.Errorf("expected empty non-nil evidence, got %v", got)
			}
		})
	}
}

func TestRetrieve_LogsWarning(t *testing.T) {
	idx := buildIndex(t, []string{"a"}, [][]float32{{1, 0}})
	buf := &bytes.Buffer{}
	r := NewRetriever(fixedEmbedder{err: errors.New("model offline")}, idx, observe.New(buf, false))

	r.Retrieve(context.Background(), "q", 3)
	if !strings.Contains(buf.String(), "query embedding failed") {
		t.Errorf("expected warning in log, got %q", buf.String())
	}
}

func TestRetrieve_WithHashEmbedding(t *testing.T) {
	texts := []string{
		"Medicine Name: Paracetamol, Uses: fever and pain relief",
		"Medicine Name: Cetirizine, Uses: allergy and hay fever",
		"Medicine Name: Omeprazole, Uses: acid reflux",
	}
	vecs := make([][]float32, len(texts))
	for i, txt := range texts {
		vecs[i] = provider.HashEmbedding(txt, 64)
	}
	idx := buildIndex(t, texts, vecs)

	r := NewRetriever(provider.NewStubProvider(), idx, observe.New(&bytes.Buffer{}, false))
	got := r.Retrieve(context.Background(), "acid reflux", 1)
	if len(got) != 1 || !strings.Contains(got[0].Text, "Omeprazole") {
		t.Errorf("expected Omeprazole, got %+v", got)
	}
}

func TestRetrieve_Deterministic(t *testing.T) {
	idx := buildIndex(t, []string{"Crocin", "Dolo 650", "Calpol", "Cetirizine"}, [][]float32{{1, 0}, {2, 0}, {1, 1}, {0.5, 0}})
	r := NewRetriever(fixedEmbedder{vec: []float32{1, 0}}, idx, observe.New(&bytes.Buffer{}, false))
	ctx := context.Background()

	first := r.Retrieve(ctx, "fever", 3)
	want := []string{"Crocin", "Dolo 650", "Cetirizine"}
	for i, ev := range first {
		if ev.Text != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], ev.Text)
		}
	}
	if second := r.Retrieve(ctx, "fever", 3); !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated retrieval differs: %+v vs %+v", first, second)
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := r.Retrieve(ctx, "fever", 3); !reflect.DeepEqual(first, got) {
				t.Errorf("concurrent retrieval differs: %+v", got)
			}
		}()
	}
	wg.Wait()
}
