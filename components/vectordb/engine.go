package vectordb

import (
	"context"
)

type EngineType string

const (
	Memory  EngineType = "memory"
	Chromem EngineType = "chromem"
	Milvus  EngineType = "milvus"
	Qdrant  EngineType = "qdrant"
)

// Engine stores embeddings under a namespace and serves nearest neighbour
// queries. Upsert replaces records with the same id in the same namespace.
// Search returns at most TopK records in non-increasing score order.
type Engine interface {
	Upsert(ctx context.Context, namespace string, records ...Record) error
	Search(ctx context.Context, vector []float64, opts ...SearchOption) ([]Record, error)
}
