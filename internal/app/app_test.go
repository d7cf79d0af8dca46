package app

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bububa/catalogue-rag/components/document"
	"github.com/bububa/catalogue-rag/components/embedder"
	"github.com/bububa/catalogue-rag/components/llm/anthropic"
	"github.com/bububa/catalogue-rag/components/llm/openai"
	"github.com/bububa/catalogue-rag/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Unanswered.Path = filepath.Join(t.TempDir(), "unanswered.txt")
	return cfg
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "n", 1)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	logger = NewLogger(config.LogConfig{Level: "debug", Format: "text"}, &buf)
	logger.Debug("detail")
	assert.Contains(t, buf.String(), "msg=detail")
}

func TestNewLLM(t *testing.T) {
	client, opts, err := NewLLM(config.LLMConfig{Provider: "openai", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.IsType(t, &openai.Client{}, client)
	assert.Len(t, opts, 3)

	client, _, err = NewLLM(config.LLMConfig{Provider: "anthropic"})
	require.NoError(t, err)
	assert.IsType(t, &anthropic.Client{}, client)

	client, opts, err = NewLLM(config.LLMConfig{Provider: "none"})
	require.NoError(t, err)
	assert.Nil(t, client)
	assert.Nil(t, opts)

	_, _, err = NewLLM(config.LLMConfig{Provider: "gemini"})
	assert.Error(t, err)
}

func TestNewEmbedder(t *testing.T) {
	cfg := testConfig(t)
	emb, release, err := NewEmbedder(t.Context(), cfg.Embedding, nil)
	require.NoError(t, err)
	assert.Equal(t, cfg.Embedding.Model, emb.Model())
	assert.NoError(t, release())

	cfg.Embedding.Provider = "voyageai"
	emb, release, err = NewEmbedder(t.Context(), cfg.Embedding, nil)
	require.NoError(t, err)
	assert.Equal(t, embedder.ProviderVoyageAI, emb.Provider())
	assert.NoError(t, release())

	cfg.Embedding.Provider = "unknown"
	_, _, err = NewEmbedder(t.Context(), cfg.Embedding, nil)
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(t.Context(), cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, a.RAG)
	require.NotNil(t, a.Chunker)
	assert.Equal(t, cfg.Vector.Namespace, a.RAG.Namespace())

	s := a.Sessions.Create()
	assert.NotEmpty(t, s.ID())
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	_, err = os.Stat(cfg.Unanswered.Path)
	assert.NoError(t, err)
}

func TestNewUnknownEngine(t *testing.T) {
	cfg := testConfig(t)
	cfg.Vector.Engine = "pinecone"
	_, err := New(t.Context(), cfg, nil)
	assert.Error(t, err)
}

func TestSource(t *testing.T) {
	a := &App{Config: testConfig(t)}

	src, err := a.Source("catalogue.csv")
	require.NoError(t, err)
	assert.IsType(t, &document.File{}, src)

	src, err = a.Source("https://example.com/catalogue.pdf")
	require.NoError(t, err)
	assert.IsType(t, &document.Http{}, src)

	src, err = a.Source("s3://bucket/catalogue.xlsx")
	require.NoError(t, err)
	assert.IsType(t, &document.S3{}, src)
	assert.Equal(t, "catalogue.xlsx", src.Name())

	_, err = a.Source("s3://bucket")
	assert.Error(t, err)
}
