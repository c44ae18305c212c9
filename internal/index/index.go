// Package index answers top-k cosine similarity queries over a fixed set of
// corpus records and their embeddings.
package index

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/felixgeelhaar/syno/internal/corpus"
)

// ErrInvalidK is returned when a query asks for fewer than one hit.
var ErrInvalidK = errors.New("k must be at least 1")

// DimensionMismatchError reports vectors whose shape does not line up with
// the index.
type DimensionMismatchError struct {
	Reason   string
	Expected int
	Got      int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: %s (expected %d, got %d)", e.Reason, e.Expected, e.Got)
}

// NonFiniteError reports a NaN or infinite vector component. Position is
// the corpus position, or -1 for a query vector.
type NonFiniteError struct {
	Position  int
	Component int
}

func (e *NonFiniteError) Error() string {
	if e.Position < 0 {
		return fmt.Sprintf("non-finite value in query vector at component %d", e.Component)
	}
	return fmt.Sprintf("non-finite value in vector %d at component %d", e.Position, e.Component)
}

// Hit is one query result. Position is the record's corpus order.
type Hit struct {
	Record   corpus.Record
	Score    float64
	Position int
}

// Index is immutable after Build and safe for concurrent queries.
type Index struct {
	records []corpus.Record
	vectors [][]float32
	norms   []float64
	dim     int
}

// Build pairs records[i] with vectors[i]. Every vector must have the
// dimension of the first one.
func Build(records []corpus.Record, vectors [][]float32) (*Index, error) {
	if len(records) != len(vectors) {
		return nil, &DimensionMismatchError{Reason: "record and vector counts differ", Expected: len(records), Got: len(vectors)}
	}

	idx := &Index{
		records: make([]corpus.Record, len(records)),
		vectors: make([][]float32, len(vectors)),
		norms:   make([]float64, len(vectors)),
	}
	copy(idx.records, records)

	if len(vectors) == 0 {
		return idx, nil
	}

	idx.dim = len(vectors[0])
	if idx.dim == 0 {
		return nil, &DimensionMismatchError{Reason: "empty vector at position 0", Expected: 1, Got: 0}
	}

	for i, v := range vectors {
		if len(v) != idx.dim {
			return nil, &DimensionMismatchError{Reason: fmt.Sprintf("vector at position %d", i), Expected: idx.dim, Got: len(v)}
		}
		if c := nonFinite(v); c >= 0 {
			return nil, &NonFiniteError{Position: i, Component: c}
		}
		vec := make([]float32, len(v))
		copy(vec, v)
		idx.vectors[i] = vec
		idx.norms[i] = magnitude(vec)
	}

	return idx, nil
}

// FromBundle builds an index over a loaded corpus bundle.
func FromBundle(b *corpus.Bundle) (*Index, error) {
	idx, err := Build(b.Records, b.Vectors)
	if err != nil {
		return nil, err
	}
	if b.Dimension != 0 && idx.Len() > 0 && b.Dimension != idx.dim {
		return nil, &DimensionMismatchError{Reason: "declared corpus dimension", Expected: b.Dimension, Got: idx.dim}
	}
	return idx, nil
}

// Len returns the number of indexed records.
func (idx *Index) Len() int {
	return len(idx.records)
}

// Dimension returns the vector length, or 0 for an empty index.
func (idx *Index) Dimension() int {
	return idx.dim
}

// Query returns the min(k, Len()) records closest to vector, best first.
// Equal scores keep corpus order.
func (idx *Index) Query(vector []float32, k int) ([]Hit, error) {
	if k < 1 {
		return nil, ErrInvalidK
	}
	if len(idx.records) == 0 {
		return []Hit{}, nil
	}
	if len(vector) != idx.dim {
		return nil, &DimensionMismatchError{Reason: "query vector", Expected: idx.dim, Got: len(vector)}
	}
	if c := nonFinite(vector); c >= 0 {
		return nil, &NonFiniteError{Position: -1, Component: c}
	}

	qNorm := magnitude(vector)
	hits := make([]Hit, len(idx.records))
	for i := range idx.records {
		hits[i] = Hit{
			Record:   idx.records[i],
			Score:    cosine(vector, idx.vectors[i], qNorm, idx.norms[i]),
			Position: i,
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// nonFinite returns the first NaN or infinite component, or -1.
func nonFinite(v []float32) int {
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return i
		}
	}
	return -1
}

func magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Zero-magnitude vectors score 0 against everything.
func cosine(a, b []float32, magA, magB float64) float64 {
	if magA == 0 || magB == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	score := dot / (magA * magB)
	return math.Max(-1, math.Min(1, score))
}
