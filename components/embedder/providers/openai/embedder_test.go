package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bububa/catalogue-rag/components"
	"github.com/bububa/catalogue-rag/components/embedder"
)

func newTestEmbedder(t *testing.T, handler http.HandlerFunc) *Embedder {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	clt := openai.NewClient(
		option.WithAPIKey("test"),
		option.WithBaseURL(srv.URL+"/"),
		option.WithMaxRetries(0),
	)
	return New(&clt, embedder.WithModel("text-embedding-3-small"))
}

func TestBatchEmbed(t *testing.T) {
	e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)
		assert.Equal(t, []string{"alpha", "beta"}, req.Input)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","model":"text-embedding-3-small",
			"data":[
				{"object":"embedding","index":1,"embedding":[0.0,1.0]},
				{"object":"embedding","index":0,"embedding":[1.0,0.0]}
			],
			"usage":{"prompt_tokens":2,"total_tokens":2}}`))
	})
	usage := new(components.LLMUsage)
	ret, err := e.BatchEmbed(context.Background(), []string{"alpha", "beta"}, usage)
	require.NoError(t, err)
	require.Len(t, ret, 2)
	assert.Equal(t, "alpha", ret[0].Object)
	assert.Equal(t, []float64{1, 0}, ret[0].Embedding)
	assert.Equal(t, "beta", ret[1].Object)
	assert.EqualValues(t, 2, usage.InputTokens)
	assert.Equal(t, embedder.ProviderOpenAI, e.Provider())
}

func TestBatchEmbedError(t *testing.T) {
	e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad input","type":"invalid_request_error"}}`))
	})
	_, err := e.BatchEmbed(context.Background(), []string{"alpha"}, nil)
	var svcErr *embedder.ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, http.StatusBadRequest, svcErr.StatusCode)
	assert.False(t, svcErr.Retryable())
}
