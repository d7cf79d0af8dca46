package openai

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bububa/catalogue-rag/components"
	"github.com/bububa/catalogue-rag/components/llm"
)

func newTestServer(t *testing.T, got *openai.ChatCompletionRequest) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(got))
		if !got.Stream {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"id":"chat-1","object":"chat.completion","created":1700000000,"model":"gpt-3.5-turbo",
"choices":[{"index":0,"message":{"role":"assistant","content":"Biology 101."},"finish_reason":"stop"}],
"usage":{"prompt_tokens":12,"completion_tokens":3,"total_tokens":15}}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Biology", " 101", "."} {
			fmt.Fprintf(w, "data: {\"id\":\"chat-1\",\"object\":\"chat.completion.chunk\",\"created\":1700000000,\"model\":\"gpt-3.5-turbo\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestChat(t *testing.T) {
	var req openai.ChatCompletionRequest
	srv := newTestServer(t, &req)
	c := New(NewClient("test", srv.URL+"/v1"))

	resp, err := c.Chat(t.Context(), "be concise", []components.Message{
		*components.NewMessage(components.UserRole, "Which course covers cells?"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Biology 101.", resp.Text)
	assert.Equal(t, components.AssistantRole, resp.Role)
	assert.Equal(t, int64(15), resp.Usage.Total())

	require.Len(t, req.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
	assert.Equal(t, "Which course covers cells?", req.Messages[1].Content)
	assert.Equal(t, DefaultModel, req.Model)
	assert.NotZero(t, req.Temperature)
}

func TestStream(t *testing.T) {
	var req openai.ChatCompletionRequest
	srv := newTestServer(t, &req)
	c := New(NewClient("test", srv.URL+"/v1"), llm.WithModel("gpt-4o-mini"))

	var sb strings.Builder
	for part, err := range c.Stream(t.Context(), "", []components.Message{*components.NewMessage(components.UserRole, "q")}) {
		require.NoError(t, err)
		sb.WriteString(part)
	}
	assert.Equal(t, "Biology 101.", sb.String())
	assert.Equal(t, "gpt-4o-mini", req.Model)
	assert.Len(t, req.Messages, 1)

	var first string
	for part := range c.Stream(t.Context(), "", nil) {
		first = part
		break
	}
	assert.Equal(t, "Biology", first)
}
