package milvus

import (
	"context"
	"os"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bububa/catalogue-rag/components/embedder"
	"github.com/bububa/catalogue-rag/components/vectordb"
)

func TestCollectionName(t *testing.T) {
	tests := []struct {
		namespace string
		want      string
	}{
		{namespace: "howard-catalogue", want: "howard_catalogue"},
		{namespace: "catalogue_2024", want: "catalogue_2024"},
		{namespace: "2024 catalogue", want: "ns_2024_catalogue"},
		{namespace: "", want: "ns_"},
	}
	for _, tt := range tests {
		if got := CollectionName(tt.namespace); got != tt.want {
			t.Errorf("CollectionName(%q), want %s, got %s", tt.namespace, tt.want, got)
		}
	}
}

func TestMetaExpr(t *testing.T) {
	assert.Equal(t, "", metaExpr(nil))
	assert.Equal(t, `meta["header"] == "Biology"`, metaExpr(map[string]string{"header": "Biology"}))
}

func TestTruncateText(t *testing.T) {
	short := "Biology 101"
	assert.Equal(t, short, TruncateText(short))

	exact := strings.Repeat("a", MaxTextLength)
	assert.Equal(t, exact, TruncateText(exact))

	long := strings.Repeat("a", MaxTextLength-1) + "学分"
	got := TruncateText(long)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", MaxTextLength-1), got)

	cjk := strings.Repeat("学", MaxTextLength)
	got = TruncateText(cjk)
	assert.LessOrEqual(t, len(got), MaxTextLength)
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasPrefix(cjk, got))
}

// TestLive runs against the server in MILVUS_ADDRESS when set.
func TestLive(t *testing.T) {
	addr := os.Getenv("MILVUS_ADDRESS")
	if addr == "" {
		t.Skip("MILVUS_ADDRESS not set")
	}
	ctx := context.Background()
	e, err := Connect(ctx, addr, os.Getenv("MILVUS_API_KEY"))
	require.NoError(t, err)
	rec := vectordb.Record{ID: "a", Embedding: embedder.Embedding{Object: "text", Embedding: []float64{1, 0, 0, 0}, Meta: map[string]string{embedder.MetaText: "text"}}}
	require.NoError(t, e.Upsert(ctx, "catalogue-rag-test", rec))
	require.NoError(t, e.Upsert(ctx, "catalogue-rag-test", rec))
	got, err := e.Search(ctx, []float64{1, 0, 0, 0}, vectordb.SearchWithNamespace("catalogue-rag-test"), vectordb.SearchWithTopK(5))
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "a", got[0].ID)
}
