// Package rag turns a user query into evidence text from the medicine corpus.
package rag

import (
	"context"

	"github.com/felixgeelhaar/syno/internal/index"
	"github.com/felixgeelhaar/syno/internal/observe"
)

// DefaultTopK is used when callers pass k <= 0.
const DefaultTopK = 3

// Embedder converts query text into the corpus embedding space. Every
// provider satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Evidence is one retrieved corpus passage.
type Evidence struct {
	Score float64 `json:"score"`
	Text  string  `json:"text"`
}

// Retriever embeds queries and looks them up in the index.
type Retriever struct {
	embedder Embedder
	index    *index.Index
	obs      *observe.Observer
}

// NewRetriever wires an embedder to an index. A nil index behaves as an
// empty corpus.
func NewRetriever(e Embedder, idx *index.Index, obs *observe.Observer) *Retriever {
	return &Retriever{embedder: e, index: idx, obs: obs}
}

// Retrieve returns up to k passages, best first. Failures are logged and
// yield no evidence; Retrieve never fails the caller.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) []Evidence {
	if k <= 0 {
		k = DefaultTopK
	}
	if r.index == nil || r.index.Len() == 0 || r.embedder == nil {
		return []Evidence{}
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.obs.Log().Warn().Err(err).Msg("query embedding failed, continuing without evidence")
		return []Evidence{}
	}

	hits, err := r.index.Query(vec, k)
	if err != nil {
		r.obs.Log().Warn().Err(err).Int("dimension", len(vec)).Msg("index query failed, continuing without evidence")
		return []Evidence{}
	}

	out := make([]Evidence, len(hits))
	for i, h := range hits {
		out[i] = Evidence{Score: h.Score, Text: h.Record.Text}
	}
	r.obs.Log().Debug().Int("hits", len(out)).Msg("retrieved evidence")
	return out
}
