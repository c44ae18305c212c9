// Package corpus holds the medicine reference records and their precomputed
// embeddings, and loads them from local files or object storage.
package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Record is one immutable corpus entry. Text is what gets embedded and shown
// as evidence; the descriptive fields are folded into it when Text is empty.
type Record struct {
	ID          string `json:"id" yaml:"id"`
	Text        string `json:"text,omitempty" yaml:"text,omitempty"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Composition string `json:"composition,omitempty" yaml:"composition,omitempty"`
	Uses        string `json:"uses,omitempty" yaml:"uses,omitempty"`
	SideEffects string `json:"side_effects,omitempty" yaml:"side_effects,omitempty"`
}

// ComposeText renders the descriptive fields the same way the embeddings
// were computed.
func (r Record) ComposeText() string {
	return fmt.Sprintf("Medicine Name: %s, Composition: %s, Uses: %s, Side Effects: %s",
		r.Name, r.Composition, r.Uses, r.SideEffects)
}

// Bundle is a versioned (records, vectors) pair. Vectors[i] belongs to
// Records[i].
type Bundle struct {
	Version   string      `json:"version,omitempty" yaml:"version,omitempty"`
	Model     string      `json:"model,omitempty" yaml:"model,omitempty"`
	Dimension int         `json:"dimension,omitempty" yaml:"dimension,omitempty"`
	Records   []Record    `json:"records" yaml:"records"`
	Vectors   [][]float32 `json:"vectors" yaml:"vectors"`
}

var (
	ErrIncompatibleShards = errors.New("incompatible corpus shards")
	ErrDuplicateID        = errors.New("duplicate corpus record id")
)

// Normalize fills in Text and IDs for records that omit them and checks
// that IDs are unique. It runs after shards are merged so generated IDs
// follow corpus position.
func (b *Bundle) Normalize() error {
	seen := make(map[string]int, len(b.Records))
	for i := range b.Records {
		r := &b.Records[i]
		if strings.TrimSpace(r.Text) == "" {
			r.Text = r.ComposeText()
		}
		if r.ID == "" {
			r.ID = fmt.Sprint(i)
		}
		if prev, ok := seen[r.ID]; ok {
			return fmt.Errorf("%w: %q at positions %d and %d", ErrDuplicateID, r.ID, prev, i)
		}
		seen[r.ID] = i
	}
	return nil
}

// Merge appends other after b. other must pair every record with a vector;
// model and dimension must agree when both sides declare them.
func (b *Bundle) Merge(other *Bundle) error {
	if len(other.Records) != len(other.Vectors) {
		return fmt.Errorf("%w: shard has %d records and %d vectors", ErrIncompatibleShards, len(other.Records), len(other.Vectors))
	}
	if b.Model != "" && other.Model != "" && b.Model != other.Model {
		return fmt.Errorf("%w: model %q vs %q", ErrIncompatibleShards, b.Model, other.Model)
	}
	if b.Dimension != 0 && other.Dimension != 0 && b.Dimension != other.Dimension {
		return fmt.Errorf("%w: dimension %d vs %d", ErrIncompatibleShards, b.Dimension, other.Dimension)
	}
	if b.Model == "" {
		b.Model = other.Model
	}
	if b.Dimension == 0 {
		b.Dimension = other.Dimension
	}
	if b.Version == "" {
		b.Version = other.Version
	}
	b.Records = append(b.Records, other.Records...)
	b.Vectors = append(b.Vectors, other.Vectors...)
	return nil
}

// Decode parses a bundle; name picks the format by extension.
func Decode(name string, data []byte) (*Bundle, error) {
	var b Bundle
	ext := strings.ToLower(filepath.Ext(name))

	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("failed to unmarshal JSON corpus %s: %w", name, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("failed to unmarshal YAML corpus %s: %w", name, err)
		}
	default:
		return nil, fmt.Errorf("unsupported corpus format: %s (use .json or .yaml)", ext)
	}

	return &b, nil
}
