package milvus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	milvusClient "github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/bububa/catalogue-rag/components/vectordb"
)

const (
	fieldID        = "id"
	fieldEmbedding = "embedding"
	fieldText      = "text"
	fieldMeta      = "meta"

	// MaxTextLength is the byte capacity of the text column
	MaxTextLength = 65535
)

// Engine keeps one milvus collection per namespace with an HNSW cosine index.
// Writes go through Upsert so a repeated id replaces its row.
type Engine struct {
	db milvusClient.Client
	vectordb.Options

	mu    sync.Mutex
	ready map[string]struct{}
}

var _ vectordb.Engine = (*Engine)(nil)

func New(db milvusClient.Client, opts ...vectordb.Option) *Engine {
	ret := &Engine{
		db:    db,
		ready: make(map[string]struct{}),
	}
	vectordb.WithEngine(vectordb.Milvus)(&ret.Options)
	for _, opt := range opts {
		opt(&ret.Options)
	}
	return ret
}

// Connect dials a milvus server
func Connect(ctx context.Context, address string, apiKey string, opts ...vectordb.Option) (*Engine, error) {
	clt, err := milvusClient.NewClient(ctx, milvusClient.Config{
		Address: address,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, vectordb.Unavailable(vectordb.Milvus, "connect", address, err)
	}
	return New(clt, opts...), nil
}

// CollectionName maps a namespace onto milvus naming rules:
// letters, digits and underscores, not starting with a digit.
func CollectionName(namespace string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, namespace)
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		name = "ns_" + name
	}
	return name
}

func (e *Engine) CreateCollection(ctx context.Context, name string, dim int64) error {
	idField := entity.NewField().WithName(fieldID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(64).WithIsPrimaryKey(true).WithIsAutoID(false)
	vectorField := entity.NewField().WithName(fieldEmbedding).WithDataType(entity.FieldTypeFloatVector).WithDim(dim)
	textField := entity.NewField().WithName(fieldText).WithDataType(entity.FieldTypeVarChar).WithMaxLength(MaxTextLength)
	metaField := entity.NewField().WithName(fieldMeta).WithDataType(entity.FieldTypeJSON)
	schema := entity.NewSchema().WithName(name).WithAutoID(false).WithField(idField).WithField(vectorField).WithField(textField).WithField(metaField)
	if err := e.db.CreateCollection(ctx, schema, 0); err != nil {
		return err
	}
	idxHnsw, err := entity.NewIndexHNSW(entity.COSINE, 8, 200)
	if err != nil {
		return err
	}
	return e.db.CreateIndex(ctx, name, fieldEmbedding, idxHnsw, false, milvusClient.WithIndexName("embedding_idx"))
}

func (e *Engine) ensureCollection(ctx context.Context, name string, dim int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.ready[name]; ok {
		return nil
	}
	exists, err := e.db.HasCollection(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		if dim == 0 {
			dim = int64(e.Dimension)
		}
		if err := e.CreateCollection(ctx, name, dim); err != nil {
			return err
		}
	}
	if err := e.db.LoadCollection(ctx, name, false); err != nil {
		return err
	}
	e.ready[name] = struct{}{}
	return nil
}

func (e *Engine) Upsert(ctx context.Context, namespace string, records ...vectordb.Record) error {
	if len(records) == 0 {
		return nil
	}
	name := CollectionName(namespace)
	dim := len(records[0].Embedding.Embedding)
	if err := e.ensureCollection(ctx, name, int64(dim)); err != nil {
		return vectordb.Unavailable(e.EngineType, "upsert", namespace, err)
	}
	var (
		ids     = make([]string, 0, len(records))
		vectors = make([][]float32, 0, len(records))
		texts   = make([]string, 0, len(records))
		metas   = make([][]byte, 0, len(records))
	)
	for _, record := range records {
		if record.ID == "" {
			record.ID = record.Embedding.UUID()
		}
		if len(record.Embedding.Embedding) != dim {
			return vectordb.Unavailable(e.EngineType, "upsert", namespace, fmt.Errorf("record %s has dimension %d, want %d", record.ID, len(record.Embedding.Embedding), dim))
		}
		bs, err := json.Marshal(record.Embedding.Meta)
		if err != nil {
			return err
		}
		ids = append(ids, record.ID)
		vectors = append(vectors, vectordb.Float32s(record.Embedding.Embedding))
		texts = append(texts, TruncateText(record.Text()))
		metas = append(metas, bs)
	}
	_, err := e.db.Upsert(ctx, name, "",
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnFloatVector(fieldEmbedding, dim, vectors),
		entity.NewColumnVarChar(fieldText, texts),
		entity.NewColumnJSONBytes(fieldMeta, metas),
	)
	return vectordb.Unavailable(e.EngineType, "upsert", namespace, err)
}

// TruncateText cuts s to at most MaxTextLength bytes without splitting a
// character. The full text stays in the meta column.
func TruncateText(s string) string {
	if len(s) <= MaxTextLength {
		return s
	}
	cut := MaxTextLength
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Search performs vector similarity search on a collection.
func (e *Engine) Search(ctx context.Context, vectors []float64, opts ...vectordb.SearchOption) ([]vectordb.Record, error) {
	option := vectordb.NewSearchOptions(e.Options, opts...)
	name := CollectionName(option.Namespace)
	if err := e.ensureCollection(ctx, name, int64(len(vectors))); err != nil {
		return nil, vectordb.Unavailable(e.EngineType, "search", option.Namespace, err)
	}
	searchParams, err := entity.NewIndexHNSWSearchParam(max(option.TopK, 64))
	if err != nil {
		return nil, err
	}
	query := entity.FloatVector(vectordb.Float32s(vectors))
	results, err := e.db.Search(ctx, name, nil, metaExpr(option.Meta), []string{fieldText, fieldMeta}, []entity.Vector{query}, fieldEmbedding, entity.COSINE, option.TopK, searchParams)
	if err != nil {
		return nil, vectordb.Unavailable(e.EngineType, "search", option.Namespace, err)
	}
	var ret []vectordb.Record
	for _, result := range results {
		ret = append(ret, searchResultToRecords(&result)...)
	}
	return vectordb.Rank(ret, option.TopK, option.MinScore), nil
}

func metaExpr(meta map[string]string) string {
	parts := make([]string, 0, len(meta))
	for k, v := range meta {
		parts = append(parts, fmt.Sprintf("%s[%q] == %q", fieldMeta, k, v))
	}
	return strings.Join(parts, " && ")
}

func searchResultToRecords(result *milvusClient.SearchResult) []vectordb.Record {
	ret := make([]vectordb.Record, 0, result.ResultCount)
	textCol := result.Fields.GetColumn(fieldText)
	metaCol := result.Fields.GetColumn(fieldMeta)
	for i := 0; i < result.ResultCount; i++ {
		var record vectordb.Record
		if result.IDs != nil {
			record.ID, _ = result.IDs.GetAsString(i)
		}
		if i < len(result.Scores) {
			record.Score = float64(result.Scores[i])
		}
		if textCol != nil {
			record.Embedding.Object, _ = textCol.GetAsString(i)
		}
		if metaCol != nil {
			if v, err := metaCol.Get(i); err == nil {
				if bs, ok := v.([]byte); ok {
					_ = json.Unmarshal(bs, &record.Embedding.Meta)
				}
			}
		}
		ret = append(ret, record)
	}
	return ret
}

func (e *Engine) Close() error {
	return e.db.Close()
}
