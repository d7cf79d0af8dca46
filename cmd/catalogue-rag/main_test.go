package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/bububa/catalogue-rag/agents/rag"
	"github.com/bububa/catalogue-rag/components/embedder"
)

const catalogueCSV = `Header,Sub-header,Content
Biology,Intro,Biology 101 covers cells and genetics.
Chemistry,,Chemistry 110 covers atoms and bonds.
`

// letters embeds text as its letter histogram
func letters(text string) []float64 {
	vec := make([]float64, 26)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			vec[r-'a']++
		}
	}
	return vec
}

func newFakeAPI(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/embeddings"):
			var req struct {
				Input []string `json:"input"`
			}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			data := make([]map[string]any, 0, len(req.Input))
			for i, in := range req.Input {
				data = append(data, map[string]any{"object": "embedding", "index": i, "embedding": letters(in)})
			}
			json.NewEncoder(w).Encode(map[string]any{
				"object": "list",
				"model":  "text-embedding-3-small",
				"data":   data,
				"usage":  map[string]any{"prompt_tokens": 3, "total_tokens": 3},
			})
		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			fmt.Fprint(w, `{"id":"c1","object":"chat.completion","model":"gpt-3.5-turbo",
				"choices":[{"index":0,"message":{"role":"assistant","content":"Biology 101."},"finish_reason":"stop"}],
				"usage":{"prompt_tokens":10,"completion_tokens":3,"total_tokens":13}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeFixtures(t *testing.T, apiURL string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	csv := filepath.Join(dir, "catalogue.csv")
	require.NoError(t, os.WriteFile(csv, []byte(catalogueCSV), 0o644))
	cfg := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(fmt.Sprintf(`
log:
  level: error
chunk:
  model: uax29-graphemes
  max_tokens: 60
embedding:
  api_key: test
  base_url: %[1]s/v1/
  dimensions: 0
  max_retries: 0
prompt:
  model: uax29-graphemes
  max_tokens: 2000
llm:
  api_key: test
  base_url: %[1]s/v1
unanswered:
  path: %[2]s
`, apiURL, filepath.Join(dir, "unanswered.txt"))), 0o644))
	return cfg, csv
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

func TestChunkCommand(t *testing.T) {
	cfg, csv := writeFixtures(t, "http://127.0.0.1:1")
	out, err := run(t, "", "chunk", "--config", cfg, "--source", csv, "--format", "json")
	require.NoError(t, err)

	var chunks []embedder.Chunk
	require.NoError(t, json.Unmarshal([]byte(out), &chunks))
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, c.TokenSize, 60)
		assert.NotEmpty(t, c.ID)
	}
	assert.Equal(t, "Biology", chunks[0].Source.Header)
}

func TestIngestCommand(t *testing.T) {
	srv := newFakeAPI(t)
	cfg, csv := writeFixtures(t, srv.URL)
	out, err := run(t, "", "ingest", "--config", cfg, "--source", csv, "--format", "yaml")
	require.NoError(t, err)

	var report rag.IngestReport
	require.NoError(t, yaml.Unmarshal([]byte(out), &report))
	assert.Equal(t, "howard-catalogue", report.Namespace)
	assert.Equal(t, 2, report.Records)
	assert.Equal(t, report.Chunks, report.Upserted)
	assert.Empty(t, report.Skipped)
}

func TestPromptCommand(t *testing.T) {
	srv := newFakeAPI(t)
	cfg, csv := writeFixtures(t, srv.URL)
	out, err := run(t, "", "prompt", "--config", cfg, "--source", csv, "What", "covers", "genetics?")
	require.NoError(t, err)
	assert.Contains(t, out, "Biology 101 covers cells and genetics.")
	assert.Contains(t, out, "Question: What covers genetics?")
}

func TestAskCommand(t *testing.T) {
	srv := newFakeAPI(t)
	cfg, csv := writeFixtures(t, srv.URL)
	out, err := run(t, "Which course covers cells?\n\nAnd bonds?\n", "ask", "--config", cfg, "--source", csv)
	require.NoError(t, err)
	assert.Equal(t, "Biology 101.\nBiology 101.\n", out)
}

func TestMissingSource(t *testing.T) {
	_, err := run(t, "", "ingest")
	assert.Error(t, err)
}

func TestUnknownFormat(t *testing.T) {
	cfg, csv := writeFixtures(t, "http://127.0.0.1:1")
	_, err := run(t, "", "chunk", "--config", cfg, "--source", csv, "--format", "xml")
	assert.Error(t, err)
}
