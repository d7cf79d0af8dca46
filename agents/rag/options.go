package rag

import (
	"log/slog"
	"time"

	"github.com/bububa/catalogue-rag/components/embedder"
	"github.com/bububa/catalogue-rag/components/llm"
	"github.com/bububa/catalogue-rag/components/prompt"
	"github.com/bububa/catalogue-rag/components/systemprompt"
	"github.com/bububa/catalogue-rag/components/unanswered"
	"github.com/bububa/catalogue-rag/components/vectordb"
)

const (
	// DefaultNamespace partitions the catalogue in a shared index
	DefaultNamespace   = "howard-catalogue"
	DefaultConcurrency = 1
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = time.Second
	// DefaultTimeout bounds one index request attempt
	DefaultTimeout = 30 * time.Second
)

type Options struct {
	namespace     string
	chunker       embedder.Chunker
	embedder      embedder.Embedder
	vectordb      vectordb.Engine
	assembler     *prompt.Assembler
	llm           llm.Client
	llmOptions    []llm.Option
	systemPrompt  *systemprompt.Generator
	unanswered    unanswered.Recorder
	searchOptions []vectordb.SearchOption
	batchSize     int
	concurrency   int
	maxRetries    int
	retryDelay    time.Duration
	timeout       time.Duration
	logger        *slog.Logger
}

type Option func(*Options)

func WithNamespace(namespace string) Option {
	return func(r *Options) {
		r.namespace = namespace
	}
}

func WithChunker(chunker embedder.Chunker) Option {
	return func(r *Options) {
		r.chunker = chunker
	}
}

func WithEmbedder(e embedder.Embedder) Option {
	return func(r *Options) {
		r.embedder = e
	}
}

func WithVectorDB(v vectordb.Engine) Option {
	return func(r *Options) {
		r.vectordb = v
	}
}

func WithAssembler(a *prompt.Assembler) Option {
	return func(r *Options) {
		r.assembler = a
	}
}

// WithLLM sets the chat model Ask and Stream answer with
func WithLLM(client llm.Client, opts ...llm.Option) Option {
	return func(r *Options) {
		r.llm = client
		r.llmOptions = opts
	}
}

func WithSystemPrompt(g *systemprompt.Generator) Option {
	return func(r *Options) {
		r.systemPrompt = g
	}
}

// WithUnanswered logs questions that got no answer
func WithUnanswered(rec unanswered.Recorder) Option {
	return func(r *Options) {
		r.unanswered = rec
	}
}

func WithSearchOptions(opts ...vectordb.SearchOption) Option {
	return func(r *Options) {
		r.searchOptions = opts
	}
}

// WithBatchSize sets how many chunks go into one embedding request
func WithBatchSize(size int) Option {
	return func(r *Options) {
		r.batchSize = size
	}
}

// WithConcurrency bounds how many batches are in flight during ingestion
func WithConcurrency(n int) Option {
	return func(r *Options) {
		r.concurrency = n
	}
}

// WithRetry sets how often a failed index call is retried and the first backoff delay
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(r *Options) {
		r.maxRetries = maxRetries
		r.retryDelay = delay
	}
}

// WithTimeout bounds every index request attempt, d <= 0 keeps DefaultTimeout
func WithTimeout(d time.Duration) Option {
	return func(r *Options) {
		r.timeout = d
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Options) {
		r.logger = logger
	}
}

func (o Options) Namespace() string {
	return o.namespace
}
