package memory

import (
	"context"
	"sync"

	"github.com/bububa/catalogue-rag/components/vectordb"
)

// Engine implements the vectordb Engine interface using in-memory storage.
// Every stored vector is scored by cosine similarity against the query;
// equal scores keep insertion order.
type Engine struct {
	// collections maps a namespace to its *Collection
	collections *sync.Map
	vectordb.Options
}

var _ vectordb.Engine = (*Engine)(nil)

// Collection holds the records of one namespace in a contiguous slice.
// An upserted id keeps the slot of its first insertion.
type Collection struct {
	records []vectordb.Record
	slots   map[string]int
	// mu allows concurrent searches and serialises upserts
	mu sync.RWMutex
}

func newCollection() *Collection {
	return &Collection{
		slots: make(map[string]int),
	}
}

// Upsert stores copies of records, replacing those whose id is already stored
func (c *Collection) Upsert(records ...vectordb.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, record := range records {
		record = record.Clone()
		if slot, ok := c.slots[record.ID]; ok {
			c.records[slot] = record
			continue
		}
		c.slots[record.ID] = len(c.records)
		c.records = append(c.records, record)
	}
}

// Records returns a copy of the stored records in insertion order
func (c *Collection) Records() []vectordb.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ret := make([]vectordb.Record, len(c.records))
	for idx, record := range c.records {
		ret[idx] = record.Clone()
	}
	return ret
}

// Count returns the number of stored records
func (c *Collection) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

func (c *Collection) search(vector []float64, opts *vectordb.SearchOptions) []vectordb.Record {
	c.mu.RLock()
	ret := make([]vectordb.Record, 0, len(c.records))
	for _, record := range c.records {
		if !recordMatchesFilters(&record, opts) {
			continue
		}
		record.Score = vectordb.Cosine(vector, record.Embedding.Embedding)
		ret = append(ret, record)
	}
	c.mu.RUnlock()
	ret = vectordb.Rank(ret, opts.TopK, opts.MinScore)
	for idx := range ret {
		ret[idx] = ret[idx].Clone()
	}
	return ret
}

// New creates a new in-memory vector database instance.
func New(opts ...vectordb.Option) *Engine {
	ret := &Engine{
		collections: new(sync.Map),
	}
	vectordb.WithEngine(vectordb.Memory)(&ret.Options)
	for _, opt := range opts {
		opt(&ret.Options)
	}
	return ret
}

// HasCollection checks if a namespace holds a collection.
func (e *Engine) HasCollection(name string) bool {
	_, exists := e.collections.Load(name)
	return exists
}

// DropCollection removes a namespace and all its data.
func (e *Engine) DropCollection(name string) {
	e.collections.Delete(name)
}

// Collection returns the collection of a namespace, creating it when missing.
func (e *Engine) Collection(name string) *Collection {
	if col, ok := e.collections.Load(name); ok {
		return col.(*Collection)
	}
	col, _ := e.collections.LoadOrStore(name, newCollection())
	return col.(*Collection)
}

func (e *Engine) Upsert(ctx context.Context, namespace string, records ...vectordb.Record) error {
	if err := ctx.Err(); err != nil {
		return vectordb.Unavailable(e.EngineType, "upsert", namespace, err)
	}
	stored := make([]vectordb.Record, len(records))
	for idx, record := range records {
		if record.ID == "" {
			record.ID = record.Embedding.UUID()
		}
		stored[idx] = record
	}
	e.Collection(namespace).Upsert(stored...)
	return nil
}

func (e *Engine) Search(ctx context.Context, vector []float64, opts ...vectordb.SearchOption) ([]vectordb.Record, error) {
	option := vectordb.NewSearchOptions(e.Options, opts...)
	if err := ctx.Err(); err != nil {
		return nil, vectordb.Unavailable(e.EngineType, "search", option.Namespace, err)
	}
	col, ok := e.collections.Load(option.Namespace)
	if !ok {
		return nil, nil
	}
	return col.(*Collection).search(vector, &option), nil
}

// recordMatchesFilters checks if a record's metadata has all the fields of the filter.
func recordMatchesFilters(record *vectordb.Record, opts *vectordb.SearchOptions) bool {
	for k, v := range opts.Meta {
		if record.Embedding.Meta[k] != v {
			return false
		}
	}
	return true
}
