// Package rag drives the catalogue pipeline: ingestion of source records into
// the vector index, and retrieval, prompt assembly and answering at query time.
//
// RAG holds no per-conversation state; callers pass history explicitly.
package rag

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/bububa/catalogue-rag/components"
	"github.com/bububa/catalogue-rag/components/embedder"
	"github.com/bububa/catalogue-rag/components/embedder/splitter"
	"github.com/bububa/catalogue-rag/components/prompt"
	"github.com/bububa/catalogue-rag/components/systemprompt"
	"github.com/bububa/catalogue-rag/components/vectordb"
	"github.com/bububa/catalogue-rag/internal/observability"
)

// NoAnswer is the answer when the catalogue holds nothing usable
const NoAnswer = prompt.NoAnswer

var (
	// ErrRetrieval wraps query time embedding and index failures
	ErrRetrieval = errors.New("unable to retrieve context")
	// ErrNoContext marks an answer that could not be grounded in the catalogue
	ErrNoContext = errors.New("no catalogue context for question")
	ErrNoLLM     = errors.New("no chat model configured")
)

type RAG struct {
	Options
}

func New(opts ...Option) (*RAG, error) {
	ret := &RAG{
		Options: Options{
			namespace:   DefaultNamespace,
			batchSize:   embedder.DefaultBatchSize,
			concurrency: DefaultConcurrency,
			maxRetries:  DefaultMaxRetries,
			retryDelay:  DefaultRetryDelay,
			timeout:     DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(&ret.Options)
	}
	if ret.embedder == nil {
		return nil, errors.New("rag: embedder is required")
	}
	if ret.vectordb == nil {
		return nil, errors.New("rag: vector index is required")
	}
	if ret.chunker == nil {
		ret.chunker = splitter.NewRecursive()
	}
	if ret.assembler == nil {
		ret.assembler = prompt.NewAssembler()
	}
	if ret.systemPrompt == nil {
		ret.systemPrompt = systemprompt.New()
	}
	if ret.logger == nil {
		ret.logger = slog.Default()
	}
	ret.batchSize = max(ret.batchSize, 1)
	ret.concurrency = max(ret.concurrency, 1)
	ret.maxRetries = max(ret.maxRetries, 0)
	if ret.timeout <= 0 {
		ret.timeout = DefaultTimeout
	}
	return ret, nil
}

// Answer is the outcome of one question
type Answer struct {
	Text     string              `json:"text"`
	Prompt   *prompt.Assembled   `json:"prompt,omitempty"`
	Records  []vectordb.Record   `json:"-"`
	Usage    components.LLMUsage `json:"usage"`
	Answered bool                `json:"answered"`
}

// Err is ErrNoContext for an answer the catalogue could not ground
func (a *Answer) Err() error {
	if a.Answered {
		return nil
	}
	return ErrNoContext
}

// Retrieve embeds the query and returns its nearest chunks, best first
func (r *RAG) Retrieve(ctx context.Context, query string) ([]vectordb.Record, *components.LLMUsage, error) {
	opts := append([]vectordb.SearchOption{vectordb.SearchWithNamespace(r.namespace)}, r.searchOptions...)
	option := vectordb.NewSearchOptions(vectordb.Options{}, opts...)
	ctx, span := observability.StartRetrieveSpan(ctx, r.namespace, option.TopK)
	records, usage, err := r.retrieve(ctx, query, opts)
	observability.RecordUsage(span, usage)
	observability.EndSpan(span, err)
	return records, usage, err
}

func (r *RAG) retrieve(ctx context.Context, query string, opts []vectordb.SearchOption) ([]vectordb.Record, *components.LLMUsage, error) {
	usage := new(components.LLMUsage)
	if err := ctx.Err(); err != nil {
		return nil, usage, err
	}
	var embedding embedder.Embedding
	if err := r.embedder.Embed(ctx, query, &embedding, usage); err != nil {
		return nil, usage, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}
	var records []vectordb.Record
	err := r.retry(ctx, "search", func(attemptCtx context.Context) error {
		var err error
		records, err = r.vectordb.Search(attemptCtx, embedding.Embedding, opts...)
		return err
	})
	if err != nil {
		return nil, usage, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}
	return records, usage, nil
}

// Prompt retrieves and assembles the prompt without calling the chat model.
// An empty retrieval still yields the introduction and question.
func (r *RAG) Prompt(ctx context.Context, query string) (*prompt.Assembled, error) {
	ans, err := r.prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	return ans.Prompt, nil
}

func (r *RAG) prepare(ctx context.Context, query string) (*Answer, error) {
	records, usage, err := r.Retrieve(ctx, query)
	if err != nil {
		return nil, err
	}
	budget := r.assembler.Budget()
	_, span := observability.StartAssembleSpan(ctx, budget.Model, budget.MaxTokens)
	assembled, err := r.assembler.Assemble(query, records)
	observability.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	if assembled.Overflow {
		r.logger.Warn("prompt exceeds budget without segments",
			"tokens", assembled.Tokens, "max_tokens", budget.MaxTokens)
	}
	ret := &Answer{Prompt: assembled, Records: records}
	ret.Usage.Merge(usage)
	return ret, nil
}

func (r *RAG) messages(history []components.Message, assembled *prompt.Assembled) []components.Message {
	ret := make([]components.Message, 0, len(history)+1)
	ret = append(ret, history...)
	return append(ret, *components.NewMessage(components.UserRole, assembled.Message))
}

// Ask answers query from the catalogue. When no segment fits the prompt the
// chat model is not called and the answer is NoAnswer.
func (r *RAG) Ask(ctx context.Context, query string, history []components.Message) (*Answer, error) {
	ans, err := r.prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	if ans.Prompt.Included == 0 {
		ans.Text = NoAnswer
		r.recordUnanswered(query)
		return ans, nil
	}
	if r.llm == nil {
		return nil, ErrNoLLM
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx, span := observability.StartLLMSpan(ctx, r.assembler.Budget().Model)
	start := time.Now()
	resp, err := r.llm.Chat(ctx, r.systemPrompt.Generate(), r.messages(history, ans.Prompt), r.llmOptions...)
	if err == nil {
		observability.RecordUsage(span, resp.Usage)
	}
	observability.EndSpan(span, err)
	if err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}
	r.logger.Debug("question answered", "segments", ans.Prompt.Included, "elapsed", time.Since(start))
	ans.Usage.Merge(resp.Usage)
	ans.Text = resp.Text
	ans.Answered = !strings.Contains(resp.Text, NoAnswer)
	if !ans.Answered {
		r.recordUnanswered(query)
	}
	return ans, nil
}

// Stream is Ask as a lazy sequence of text fragments. Each range over the
// sequence runs the whole pipeline again.
func (r *RAG) Stream(ctx context.Context, query string, history []components.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ans, err := r.prepare(ctx, query)
		if err != nil {
			yield("", err)
			return
		}
		if ans.Prompt.Included == 0 {
			r.recordUnanswered(query)
			yield(NoAnswer, nil)
			return
		}
		if r.llm == nil {
			yield("", ErrNoLLM)
			return
		}
		var sb strings.Builder
		for part, err := range r.llm.Stream(ctx, r.systemPrompt.Generate(), r.messages(history, ans.Prompt), r.llmOptions...) {
			if err != nil {
				yield("", fmt.Errorf("chat: %w", err))
				return
			}
			sb.WriteString(part)
			if !yield(part, nil) {
				return
			}
		}
		if strings.Contains(sb.String(), NoAnswer) {
			r.recordUnanswered(query)
		}
	}
}

func (r *RAG) recordUnanswered(query string) {
	if r.unanswered == nil {
		return
	}
	if err := r.unanswered.Record(query); err != nil {
		r.logger.Error("failed to log unanswered question", "error", err)
	}
}

// retry runs fn until it succeeds, the context ends or maxRetries is spent.
// Every attempt gets its own deadline; an attempt that times out is retried
// while ctx is live.
func (r *RAG) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.retryDelay
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := ctx.Err(); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		err := fn(attemptCtx)
		if err != nil && ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(r.maxRetries+1)),
		backoff.WithNotify(func(err error, d time.Duration) {
			r.logger.Warn("index request failed, retrying", "op", op, "namespace", r.namespace, "error", err, "backoff", d)
		}),
	)
	return err
}
