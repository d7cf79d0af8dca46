package embedder

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/bububa/catalogue-rag/components"
)

// Embedder requests vector embeddings from a remote model.
// BatchEmbed returns one embedding per part, in the order of parts.
type Embedder interface {
	Provider() Provider
	Model() string
	Embed(context.Context, string, *Embedding, *components.LLMUsage) error
	BatchEmbed(ctx context.Context, parts []string, usage *components.LLMUsage) ([]Embedding, error)
}

// EmbedChunks embeds a batch of chunks with a single request and pairs
// every vector with its chunk. Vectors are matched by Index, so providers
// returning data out of order are handled; a count mismatch is a ServiceError.
func EmbedChunks(ctx context.Context, e Embedder, chunks []Chunk, usage *components.LLMUsage) ([]EmbeddedChunk, error) {
	parts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		parts = append(parts, chunk.Text)
	}
	ret, err := e.BatchEmbed(ctx, parts, usage)
	if err != nil {
		return nil, NewServiceError(e, len(parts), 0, err)
	}
	if err := Ordered(ret, len(parts)); err != nil {
		return nil, NewServiceError(e, len(parts), 0, err)
	}
	embeddedChunks := make([]EmbeddedChunk, 0, len(ret))
	for _, v := range ret {
		chunk := &chunks[v.Index]
		v.Object = chunk.Text
		v.Meta = chunk.Meta()
		embeddedChunks = append(embeddedChunks, EmbeddedChunk{
			Embedding: v,
			Chunk:     chunk,
		})
	}
	return embeddedChunks, nil
}

// Ordered sorts embeddings by Index and checks they map one-to-one onto
// want inputs.
func Ordered(list []Embedding, want int) error {
	if len(list) != want {
		return fmt.Errorf("got %d embeddings for %d inputs", len(list), want)
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Index < list[j].Index
	})
	for i, v := range list {
		if v.Index != i {
			return fmt.Errorf("embedding index %d missing", i)
		}
		if len(v.Embedding) == 0 {
			return fmt.Errorf("embedding %d is empty", i)
		}
	}
	return nil
}

// DotProduct calculates the dot product of the embedding vector with another
// embedding vector. Both vectors must have the same length.
func (e *Embedding) DotProduct(other *Embedding) (float64, error) {
	if len(e.Embedding) != len(other.Embedding) {
		return 0, errors.New("vector length mismatch")
	}

	var dotProduct float64
	for i := range e.Embedding {
		dotProduct += e.Embedding[i] * other.Embedding[i]
	}

	return dotProduct, nil
}
