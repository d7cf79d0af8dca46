package chromem

import (
	"context"
	"runtime"

	"github.com/philippgille/chromem-go"

	"github.com/bububa/catalogue-rag/components/vectordb"
)

// Engine stores each namespace as a chromem collection.
// chromem keys documents by id, so adding an existing id replaces it.
type Engine struct {
	db *chromem.DB
	vectordb.Options
}

var _ vectordb.Engine = (*Engine)(nil)

func New(db *chromem.DB, opts ...vectordb.Option) *Engine {
	ret := &Engine{
		db: db,
	}
	vectordb.WithEngine(vectordb.Chromem)(&ret.Options)
	for _, opt := range opts {
		opt(&ret.Options)
	}
	return ret
}

// NewPersistent opens (or creates) a gzip compressed chromem database in dir
func NewPersistent(dir string, opts ...vectordb.Option) (*Engine, error) {
	db, err := chromem.NewPersistentDB(dir, true)
	if err != nil {
		return nil, vectordb.Unavailable(vectordb.Chromem, "open", dir, err)
	}
	return New(db, opts...), nil
}

func (e *Engine) Collection(_ context.Context, name string) (*chromem.Collection, error) {
	return e.db.GetOrCreateCollection(name, nil, nil)
}

func (e *Engine) Upsert(ctx context.Context, namespace string, records ...vectordb.Record) error {
	if len(records) == 0 {
		return nil
	}
	col, err := e.Collection(ctx, namespace)
	if err != nil {
		return vectordb.Unavailable(e.EngineType, "upsert", namespace, err)
	}
	docs := make([]chromem.Document, 0, len(records))
	for _, record := range records {
		var doc chromem.Document
		recordToDocument(&record, &doc)
		docs = append(docs, doc)
	}
	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return vectordb.Unavailable(e.EngineType, "upsert", namespace, err)
	}
	return nil
}

// Search performs vector similarity search on a collection.
func (e *Engine) Search(ctx context.Context, vectors []float64, opts ...vectordb.SearchOption) ([]vectordb.Record, error) {
	option := vectordb.NewSearchOptions(e.Options, opts...)
	col, err := e.Collection(ctx, option.Namespace)
	if err != nil {
		return nil, vectordb.Unavailable(e.EngineType, "search", option.Namespace, err)
	}
	// chromem rejects a result count above the collection size
	topK := min(option.TopK, col.Count())
	if topK == 0 {
		return nil, nil
	}
	results, err := col.QueryEmbedding(ctx, vectordb.Float32s(vectors), topK, option.Meta, nil)
	if err != nil {
		return nil, vectordb.Unavailable(e.EngineType, "search", option.Namespace, err)
	}
	searchResults := make([]vectordb.Record, 0, len(results))
	for _, result := range results {
		var rec vectordb.Record
		resultToRecord(&result, &rec)
		searchResults = append(searchResults, rec)
	}
	return vectordb.Rank(searchResults, option.TopK, option.MinScore), nil
}

func resultToRecord(res *chromem.Result, record *vectordb.Record) {
	record.ID = res.ID
	record.Score = float64(res.Similarity)
	record.Embedding.Object = res.Content
	record.Embedding.Meta = res.Metadata
	record.Embedding.Embedding = vectordb.Float64s(res.Embedding)
}

func recordToDocument(record *vectordb.Record, doc *chromem.Document) {
	if record.ID == "" {
		record.ID = record.Embedding.UUID()
	}
	doc.ID = record.ID
	doc.Content = record.Text()
	doc.Metadata = record.Embedding.Meta
	doc.Embedding = vectordb.Float32s(record.Embedding.Embedding)
}
