package rag

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bububa/catalogue-rag/components"
	"github.com/bububa/catalogue-rag/components/embedder"
	"github.com/bububa/catalogue-rag/components/embedder/splitter"
	"github.com/bububa/catalogue-rag/components/llm"
	"github.com/bububa/catalogue-rag/components/prompt"
	"github.com/bububa/catalogue-rag/components/tokenizer"
	"github.com/bububa/catalogue-rag/components/vectordb"
	"github.com/bububa/catalogue-rag/components/vectordb/engines/memory"
)

// letterEmbedder embeds text as its letter histogram
type letterEmbedder struct {
	fail  func(parts []string) error
	calls atomic.Int32
}

var _ embedder.Embedder = (*letterEmbedder)(nil)

func (e *letterEmbedder) Provider() embedder.Provider { return "letters" }
func (e *letterEmbedder) Model() string              { return "letters-26" }

func letters(text string) []float64 {
	ret := make([]float64, 26)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			ret[r-'a']++
		}
	}
	return ret
}

func (e *letterEmbedder) Embed(ctx context.Context, text string, embedding *embedder.Embedding, usage *components.LLMUsage) error {
	list, err := e.BatchEmbed(ctx, []string{text}, usage)
	if err != nil {
		return err
	}
	*embedding = list[0]
	return nil
}

func (e *letterEmbedder) BatchEmbed(ctx context.Context, parts []string, usage *components.LLMUsage) ([]embedder.Embedding, error) {
	e.calls.Add(1)
	if e.fail != nil {
		if err := e.fail(parts); err != nil {
			return nil, err
		}
	}
	ret := make([]embedder.Embedding, len(parts))
	for i, part := range parts {
		ret[i] = embedder.Embedding{Object: part, Embedding: letters(part), Index: i}
		usage.InputTokens += int64(len(strings.FieldsFunc(part, unicode.IsSpace)))
	}
	return ret, nil
}

// scriptedChat replies with a fixed text and keeps what it was sent
type scriptedChat struct {
	reply string
	mu    sync.Mutex
	calls int
	sys   string
	msgs  []components.Message
}

var _ llm.Client = (*scriptedChat)(nil)

func (c *scriptedChat) Chat(_ context.Context, system string, messages []components.Message, _ ...llm.Option) (*components.LLMResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.sys = system
	c.msgs = messages
	return &components.LLMResponse{
		Role:  components.AssistantRole,
		Text:  c.reply,
		Usage: &components.LLMUsage{InputTokens: 100, OutputTokens: 5},
	}, nil
}

func (c *scriptedChat) Stream(ctx context.Context, system string, messages []components.Message, opts ...llm.Option) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		resp, err := c.Chat(ctx, system, messages, opts...)
		if err != nil {
			yield("", err)
			return
		}
		for _, word := range strings.SplitAfter(resp.Text, " ") {
			if !yield(word, nil) {
				return
			}
		}
	}
}

type failingIndex struct {
	attempts atomic.Int32
}

func (f *failingIndex) Upsert(_ context.Context, namespace string, _ ...vectordb.Record) error {
	f.attempts.Add(1)
	return vectordb.Unavailable(vectordb.Qdrant, "upsert", namespace, errors.New("connection refused"))
}

func (f *failingIndex) Search(_ context.Context, _ []float64, opts ...vectordb.SearchOption) ([]vectordb.Record, error) {
	f.attempts.Add(1)
	return nil, vectordb.Unavailable(vectordb.Qdrant, "search", "", errors.New("connection refused"))
}

// hangingIndex never answers before the request context ends
type hangingIndex struct {
	attempts atomic.Int32
}

func (h *hangingIndex) Upsert(ctx context.Context, _ string, _ ...vectordb.Record) error {
	h.attempts.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func (h *hangingIndex) Search(ctx context.Context, _ []float64, _ ...vectordb.SearchOption) ([]vectordb.Record, error) {
	h.attempts.Add(1)
	<-ctx.Done()
	return nil, ctx.Err()
}

type memoryLog struct {
	mu      sync.Mutex
	queries []string
}

func (l *memoryLog) Record(query string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queries = append(l.queries, query)
	return nil
}

var catalogue = []embedder.SourceRecord{
	{Header: "Biology", Subheader: "Courses", Content: "Biology 101 introduces cells and tissues."},
	{Header: "Chemistry", Content: "Chemistry majors complete four laboratory courses in organic chemistry."},
	{Header: "Admissions", Subheader: "Deadlines", Content: "Applications for fall admission are due in February."},
}

type fixture struct {
	rag      *RAG
	embedder *letterEmbedder
	index    *memory.Engine
	chat     *scriptedChat
	log      *memoryLog
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	graphemes := tokenizer.NewGraphemes()
	f := &fixture{
		embedder: new(letterEmbedder),
		index:    memory.New(vectordb.WithTopK(5)),
		chat:     &scriptedChat{reply: "Biology 101 covers cells."},
		log:      new(memoryLog),
	}
	base := []Option{
		WithNamespace("test-catalogue"),
		WithEmbedder(f.embedder),
		WithVectorDB(f.index),
		WithChunker(splitter.NewRecursive(
			splitter.WithTokenizer(graphemes),
			splitter.WithModel(tokenizer.GraphemesModel),
			splitter.WithMaxTokens(40),
		)),
		WithAssembler(prompt.NewAssembler(
			prompt.WithTokenizer(graphemes),
			prompt.WithBudget(prompt.Budget{Model: tokenizer.GraphemesModel, MaxTokens: 2000}),
		)),
		WithLLM(f.chat),
		WithUnanswered(f.log),
		WithBatchSize(2),
		WithConcurrency(2),
		WithRetry(1, time.Millisecond),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	r, err := New(append(base, opts...)...)
	require.NoError(t, err)
	f.rag = r
	return f
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(WithVectorDB(memory.New()))
	assert.Error(t, err)
	_, err = New(WithEmbedder(new(letterEmbedder)))
	assert.Error(t, err)
}

func TestAsk(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.rag.Ingest(ctx, catalogue)
	require.NoError(t, err)

	history := []components.Message{
		*components.NewMessage(components.UserRole, "Hello"),
		*components.NewMessage(components.AssistantRole, "Hello, how may I help you?"),
	}
	ans, err := f.rag.Ask(ctx, "Which course covers cells?", history)
	require.NoError(t, err)
	assert.Equal(t, "Biology 101 covers cells.", ans.Text)
	assert.True(t, ans.Answered)
	assert.NoError(t, ans.Err())
	assert.Greater(t, ans.Prompt.Included, 0)
	assert.Equal(t, int64(5), ans.Usage.OutputTokens)
	assert.Greater(t, ans.Usage.InputTokens, int64(100))

	require.Equal(t, 1, f.chat.calls)
	assert.Contains(t, f.chat.sys, NoAnswer)
	require.Len(t, f.chat.msgs, 3)
	assert.Equal(t, "Hello", f.chat.msgs[0].Content())
	last := f.chat.msgs[2]
	assert.Equal(t, components.UserRole, last.Role())
	assert.Contains(t, last.Content(), "Catalogue segment:")
	assert.True(t, strings.HasSuffix(last.Content(), "\n\nQuestion: Which course covers cells?"))
	assert.Empty(t, f.log.queries)
	assert.Len(t, history, 2)
}

func TestAskEmptyIndex(t *testing.T) {
	f := newFixture(t)
	ans, err := f.rag.Ask(context.Background(), "Is there a fencing team?", nil)
	require.NoError(t, err)
	assert.Equal(t, NoAnswer, ans.Text)
	assert.False(t, ans.Answered)
	assert.ErrorIs(t, ans.Err(), ErrNoContext)
	assert.Zero(t, f.chat.calls)
	assert.Equal(t, []string{"Is there a fencing team?"}, f.log.queries)
}

func TestAskModelCannotAnswer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.chat.reply = NoAnswer
	_, err := f.rag.Ingest(ctx, catalogue)
	require.NoError(t, err)

	ans, err := f.rag.Ask(ctx, "Who coaches fencing?", nil)
	require.NoError(t, err)
	assert.False(t, ans.Answered)
	assert.Equal(t, 1, f.chat.calls)
	assert.Equal(t, []string{"Who coaches fencing?"}, f.log.queries)
}

func TestAskWithoutModel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithLLM(nil))
	_, err := f.rag.Ingest(ctx, catalogue)
	require.NoError(t, err)
	_, err = f.rag.Ask(ctx, "Which course covers cells?", nil)
	assert.ErrorIs(t, err, ErrNoLLM)
}

func TestRetrieveIndexFailure(t *testing.T) {
	index := new(failingIndex)
	f := newFixture(t, WithVectorDB(index))
	_, err := f.rag.Ask(context.Background(), "Which course covers cells?", nil)
	assert.ErrorIs(t, err, ErrRetrieval)
	assert.ErrorIs(t, err, vectordb.ErrUnavailable)
	assert.Equal(t, int32(2), index.attempts.Load())
	assert.Zero(t, f.chat.calls)
}

func TestRetrieveIndexTimeout(t *testing.T) {
	index := new(hangingIndex)
	f := newFixture(t, WithVectorDB(index), WithTimeout(20*time.Millisecond))
	start := time.Now()
	_, err := f.rag.Prompt(context.Background(), "which courses")
	assert.ErrorIs(t, err, ErrRetrieval)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(2), index.attempts.Load())
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRetrieveEmbeddingFailure(t *testing.T) {
	f := newFixture(t)
	f.embedder.fail = func([]string) error { return errors.New("embedding service down") }
	_, err := f.rag.Prompt(context.Background(), "q")
	assert.ErrorIs(t, err, ErrRetrieval)
}

func TestRetrieveCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := f.rag.Retrieve(ctx, "q")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.embedder.calls.Load())
}

func TestRetrieveRanked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.rag.Ingest(ctx, catalogue)
	require.NoError(t, err)

	records, usage, err := f.rag.Retrieve(ctx, "Chemistry majors laboratory")
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.NotZero(t, usage.InputTokens)
	for i := 1; i < len(records); i++ {
		assert.GreaterOrEqual(t, records[i-1].Score, records[i].Score)
	}
}

func TestPrompt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	empty, err := f.rag.Prompt(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, prompt.DefaultIntroduction+"\n\nQuestion: q", empty.Message)

	_, err = f.rag.Ingest(ctx, catalogue)
	require.NoError(t, err)
	got, err := f.rag.Prompt(ctx, "When are applications due?")
	require.NoError(t, err)
	assert.Contains(t, got.Message, "February")
	assert.Zero(t, f.chat.calls)
}

func TestStream(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.rag.Ingest(ctx, catalogue)
	require.NoError(t, err)

	seq := f.rag.Stream(ctx, "Which course covers cells?", nil)
	for range 2 {
		var sb strings.Builder
		for part, err := range seq {
			require.NoError(t, err)
			sb.WriteString(part)
		}
		assert.Equal(t, "Biology 101 covers cells.", sb.String())
	}
	assert.Equal(t, 2, f.chat.calls)

	for part := range seq {
		assert.Equal(t, "Biology ", part)
		break
	}
}

func TestStreamNoContext(t *testing.T) {
	f := newFixture(t)
	var parts []string
	for part, err := range f.rag.Stream(context.Background(), "Is there a fencing team?", nil) {
		require.NoError(t, err)
		parts = append(parts, part)
	}
	assert.Equal(t, []string{NoAnswer}, parts)
	assert.Equal(t, []string{"Is there a fencing team?"}, f.log.queries)
}
