package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bububa/catalogue-rag/components/embedder"
	"github.com/bububa/catalogue-rag/components/vectordb"
)

func record(id string, text string, vector ...float64) vectordb.Record {
	return vectordb.Record{
		ID: id,
		Embedding: embedder.Embedding{
			Object:    text,
			Embedding: vector,
			Meta:      map[string]string{embedder.MetaText: text},
		},
	}
}

func TestSearchRanking(t *testing.T) {
	ctx := context.Background()
	e := New(vectordb.WithTopK(3))
	require.NoError(t, e.Upsert(ctx, "catalogue",
		record("a", "far", 0, 1),
		record("b", "close", 1, 0.1),
		record("c", "exact", 1, 0),
		record("d", "tie with exact", 2, 0),
		record("e", "opposite", -1, 0),
	))
	got, err := e.Search(ctx, []float64{1, 0}, vectordb.SearchWithNamespace("catalogue"))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"c", "d", "b"}, []string{got[0].ID, got[1].ID, got[2].ID})
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)
	assert.Equal(t, "exact", got[0].Text())
}

func TestSearchTopKAndMinScore(t *testing.T) {
	ctx := context.Background()
	e := New()
	for i := 0; i < 20; i++ {
		require.NoError(t, e.Upsert(ctx, "ns", record(fmt.Sprint(i), "t", 1, float64(i))))
	}
	got, err := e.Search(ctx, []float64{1, 0}, vectordb.SearchWithNamespace("ns"), vectordb.SearchWithTopK(5))
	require.NoError(t, err)
	assert.Len(t, got, 5)
	assert.Equal(t, "0", got[0].ID)

	got, err = e.Search(ctx, []float64{1, 0}, vectordb.SearchWithNamespace("ns"), vectordb.SearchWithTopK(50), vectordb.SearchWithMinScore(0.5))
	require.NoError(t, err)
	for _, r := range got {
		assert.GreaterOrEqual(t, r.Score, 0.5)
	}
	assert.Len(t, got, 2)
}

func TestUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	e := New()
	require.NoError(t, e.Upsert(ctx, "ns", record("x", "old", 1, 0), record("y", "other", 0, 1)))
	require.NoError(t, e.Upsert(ctx, "ns", record("x", "new", 0, 1)))
	col := e.Collection("ns")
	require.Equal(t, 2, col.Count())
	records := col.Records()
	assert.Equal(t, "x", records[0].ID)
	assert.Equal(t, []float64{0, 1}, records[0].Embedding.Embedding)
	assert.Equal(t, "new", records[0].Text())
}

func TestUpsertCopiesRecords(t *testing.T) {
	ctx := context.Background()
	e := New()
	records := []vectordb.Record{record("", "generated id", 1, 0)}
	require.NoError(t, e.Upsert(ctx, "ns", records...))
	assert.Empty(t, records[0].ID)

	records[0].Embedding.Embedding[0] = -1
	records[0].Embedding.Meta[embedder.MetaText] = "changed by caller"
	stored := e.Collection("ns").Records()
	require.Len(t, stored, 1)
	assert.Equal(t, record("", "generated id", 1, 0).Embedding.UUID(), stored[0].ID)
	assert.Equal(t, []float64{1, 0}, stored[0].Embedding.Embedding)
	assert.Equal(t, "generated id", stored[0].Text())

	got, err := e.Search(ctx, []float64{1, 0}, vectordb.SearchWithNamespace("ns"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	got[0].Embedding.Meta[embedder.MetaText] = "changed by reader"
	assert.Equal(t, "generated id", e.Collection("ns").Records()[0].Text())
}

func TestNamespacesIsolated(t *testing.T) {
	ctx := context.Background()
	e := New()
	require.NoError(t, e.Upsert(ctx, "one", record("a", "one", 1, 0)))
	require.NoError(t, e.Upsert(ctx, "two", record("b", "two", 1, 0)))
	got, err := e.Search(ctx, []float64{1, 0}, vectordb.SearchWithNamespace("two"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)

	got, err = e.Search(ctx, []float64{1, 0}, vectordb.SearchWithNamespace("missing"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMetaFilter(t *testing.T) {
	ctx := context.Background()
	e := New()
	a := record("a", "a", 1, 0)
	a.Embedding.Meta[embedder.MetaHeader] = "Biology"
	b := record("b", "b", 1, 0)
	b.Embedding.Meta[embedder.MetaHeader] = "Chemistry"
	require.NoError(t, e.Upsert(ctx, "ns", a, b))
	got, err := e.Search(ctx, []float64{1, 0}, vectordb.SearchWithNamespace("ns"), vectordb.SearchWithMeta(map[string]string{embedder.MetaHeader: "Chemistry"}))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}

func TestConcurrentUpsertSearch(t *testing.T) {
	ctx := context.Background()
	e := New()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = e.Upsert(ctx, "ns", record(fmt.Sprint(i), fmt.Sprint(w), float64(w), 1))
			}
		}(w)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, _ = e.Search(ctx, []float64{1, 1}, vectordb.SearchWithNamespace("ns"))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, e.Collection("ns").Count())
}

func TestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := New()
	err := e.Upsert(ctx, "ns", record("a", "a", 1))
	assert.ErrorIs(t, err, vectordb.ErrUnavailable)
	_, err = e.Search(ctx, []float64{1}, vectordb.SearchWithNamespace("ns"))
	assert.ErrorIs(t, err, vectordb.ErrUnavailable)
}
