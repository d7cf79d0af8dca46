package vectordb

import (
	"maps"
	"slices"

	"github.com/bububa/catalogue-rag/components/embedder"
)

type SearchOptions struct {
	Namespace string
	TopK      int
	MinScore  float64
	Meta      map[string]string
}

type SearchOption func(*SearchOptions)

func SearchWithNamespace(name string) SearchOption {
	return func(r *SearchOptions) {
		r.Namespace = name
	}
}

func SearchWithTopK(topK int) SearchOption {
	return func(r *SearchOptions) {
		r.TopK = topK
	}
}

func SearchWithMinScore(score float64) SearchOption {
	return func(r *SearchOptions) {
		r.MinScore = score
	}
}

func SearchWithMeta(meta map[string]string) SearchOption {
	return func(r *SearchOptions) {
		r.Meta = meta
	}
}

// NewSearchOptions applies opts over the engine defaults
func NewSearchOptions(defaults Options, opts ...SearchOption) SearchOptions {
	ret := SearchOptions{
		TopK:     defaults.TopK,
		MinScore: defaults.MinScore,
	}
	for _, opt := range opts {
		opt(&ret)
	}
	if ret.TopK <= 0 {
		ret.TopK = DefaultTopK
	}
	return ret
}

// DefaultTopK is used when neither the engine nor the query sets TopK
const DefaultTopK = 10

// Record represents a single result from a vector similarity search.
type Record struct {
	// ID is the identifier for the result
	ID string
	// Score is the similarity score for the result
	Score float64
	// Embedding embeddings for doc
	Embedding embedder.Embedding
}

// Text is the chunk text stored with the record
func (r Record) Text() string {
	if v, ok := r.Embedding.Meta[embedder.MetaText]; ok {
		return v
	}
	return r.Embedding.Object
}

// Clone returns a copy that shares no vector or metadata storage with r
func (r Record) Clone() Record {
	r.Embedding.Embedding = slices.Clone(r.Embedding.Embedding)
	r.Embedding.Meta = maps.Clone(r.Embedding.Meta)
	return r
}

// NewRecord stores an embedded chunk under its chunk id
func NewRecord(v embedder.EmbeddedChunk) Record {
	ret := Record{Embedding: v.Embedding}
	if v.Chunk != nil {
		ret.ID = v.Chunk.ID
	}
	if ret.ID == "" {
		ret.ID = v.Embedding.UUID()
	}
	return ret
}
