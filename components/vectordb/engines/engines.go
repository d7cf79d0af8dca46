// Package engines builds a vectordb.Engine from configuration
package engines

import (
	"context"
	"fmt"

	chromemgo "github.com/philippgille/chromem-go"

	"github.com/bububa/catalogue-rag/components/vectordb"
	"github.com/bububa/catalogue-rag/components/vectordb/engines/chromem"
	"github.com/bububa/catalogue-rag/components/vectordb/engines/memory"
	"github.com/bububa/catalogue-rag/components/vectordb/engines/milvus"
	"github.com/bububa/catalogue-rag/components/vectordb/engines/qdrant"
)

type Config struct {
	Engine     vectordb.EngineType
	Path       string // chromem persistence directory, empty keeps it in memory
	Address    string // milvus address
	Host       string // qdrant host
	Port       int    // qdrant gRPC port
	Collection string // qdrant collection
	APIKey     string
}

// New returns the engine and a release func that is always safe to call
func New(ctx context.Context, cfg Config, opts ...vectordb.Option) (vectordb.Engine, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Engine {
	case vectordb.Memory, "":
		return memory.New(opts...), noop, nil
	case vectordb.Chromem:
		if cfg.Path == "" {
			return chromem.New(chromemgo.NewDB(), opts...), noop, nil
		}
		e, err := chromem.NewPersistent(cfg.Path, opts...)
		if err != nil {
			return nil, noop, err
		}
		return e, noop, nil
	case vectordb.Milvus:
		e, err := milvus.Connect(ctx, cfg.Address, cfg.APIKey, opts...)
		if err != nil {
			return nil, noop, err
		}
		return e, e.Close, nil
	case vectordb.Qdrant:
		e, err := qdrant.Connect(cfg.Host, cfg.Port, cfg.Collection, cfg.APIKey, opts...)
		if err != nil {
			return nil, noop, err
		}
		return e, e.Close, nil
	}
	return nil, noop, fmt.Errorf("unknown vector engine %q", cfg.Engine)
}
