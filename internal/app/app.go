// Package app assembles the catalogue pipeline from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/bububa/catalogue-rag/agents/rag"
	"github.com/bububa/catalogue-rag/components/document"
	"github.com/bububa/catalogue-rag/components/embedder"
	"github.com/bububa/catalogue-rag/components/embedder/providers"
	"github.com/bububa/catalogue-rag/components/embedder/splitter"
	"github.com/bububa/catalogue-rag/components/llm"
	"github.com/bububa/catalogue-rag/components/llm/anthropic"
	"github.com/bububa/catalogue-rag/components/llm/openai"
	"github.com/bububa/catalogue-rag/components/prompt"
	"github.com/bububa/catalogue-rag/components/session"
	"github.com/bububa/catalogue-rag/components/systemprompt"
	"github.com/bububa/catalogue-rag/components/tokenizer"
	"github.com/bububa/catalogue-rag/components/unanswered"
	"github.com/bububa/catalogue-rag/components/vectordb"
	"github.com/bububa/catalogue-rag/components/vectordb/engines"
	"github.com/bububa/catalogue-rag/internal/config"
	"github.com/bububa/catalogue-rag/internal/observability"
)

// App is a configured pipeline and the resources it holds
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	RAG      *rag.RAG
	Sessions *session.Store
	Chunker  *splitter.Recursive

	closers []func() error
}

// NewLogger builds the root logger from the log section
func NewLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewEmbedder wraps the configured provider with retries and pacing.
// release frees the provider's connections.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingConfig, logger *slog.Logger) (embedder.Embedder, func() error, error) {
	inner, release, err := providers.New(ctx, providers.Config{
		Provider:   cfg.Provider,
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
	})
	if err != nil {
		return nil, nil, err
	}
	retry := embedder.DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries
	if cfg.RetryDelay > 0 {
		retry.RetryDelay = cfg.RetryDelay
	}
	retry.Timeout = cfg.Timeout
	retry.RequestsPerSecond = cfg.RequestsPerSecond
	return embedder.NewRetrying(inner, retry, logger), release, nil
}

// NewLLM returns nil for provider "none"
func NewLLM(cfg config.LLMConfig) (llm.Client, []llm.Option, error) {
	opts := []llm.Option{
		llm.WithTemperature(float32(cfg.Temperature)),
		llm.WithMaxTokens(cfg.MaxTokens),
	}
	if cfg.Model != "" {
		opts = append(opts, llm.WithModel(cfg.Model))
	}
	switch llm.Provider(cfg.Provider) {
	case llm.ProviderOpenAI:
		return openai.New(openai.NewClient(cfg.APIKey, cfg.BaseURL)), opts, nil
	case llm.ProviderAnthropic:
		return anthropic.New(anthropic.NewClient(cfg.APIKey, cfg.BaseURL)), opts, nil
	case "none":
		return nil, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
}

// New wires every component named in cfg. Close releases what it opened.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ret := &App{
		Config:   cfg,
		Logger:   logger,
		Sessions: session.NewStore(cfg.Session.MaxMessages),
	}
	tp, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    "catalogue-rag",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, err
	}
	ret.closers = append(ret.closers, func() error { return tp.Shutdown(context.Background()) })

	if err := ret.build(ctx, cfg, logger); err != nil {
		ret.Close()
		return nil, err
	}
	return ret, nil
}

func (a *App) build(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.Chunk.OfflineBPE {
		tokenizer.UseOfflineBPE()
	}
	tokens := tokenizer.Default()
	a.Chunker = splitter.NewRecursive(
		splitter.WithTokenizer(tokens),
		splitter.WithModel(cfg.Chunk.Model),
		splitter.WithMaxTokens(cfg.Chunk.MaxTokens),
	)

	emb, releaseEmbedder, err := NewEmbedder(ctx, cfg.Embedding, logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, releaseEmbedder)

	engine, release, err := engines.New(ctx, engines.Config{
		Engine:     vectordb.EngineType(cfg.Vector.Engine),
		Path:       cfg.Vector.Path,
		Address:    cfg.Vector.Address,
		Host:       cfg.Vector.Host,
		Port:       cfg.Vector.Port,
		Collection: cfg.Vector.Collection,
		APIKey:     cfg.Vector.APIKey,
	},
		vectordb.WithTopK(cfg.Vector.TopK),
		vectordb.WithMinScore(cfg.Vector.MinScore),
		vectordb.WithDimension(cfg.Embedding.Dimensions),
	)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, release)

	assemblerOpts := []prompt.Option{
		prompt.WithTokenizer(tokens),
		prompt.WithBudget(prompt.Budget{Model: cfg.Prompt.Model, MaxTokens: cfg.Prompt.MaxTokens}),
	}
	if cfg.Prompt.Introduction != "" {
		assemblerOpts = append(assemblerOpts, prompt.WithIntroduction(cfg.Prompt.Introduction))
	}

	chat, chatOpts, err := NewLLM(cfg.LLM)
	if err != nil {
		return err
	}

	opts := []rag.Option{
		rag.WithNamespace(cfg.Vector.Namespace),
		rag.WithChunker(a.Chunker),
		rag.WithEmbedder(emb),
		rag.WithVectorDB(engine),
		rag.WithAssembler(prompt.NewAssembler(assemblerOpts...)),
		rag.WithSystemPrompt(systemprompt.New(systemprompt.WithContextProviders(
			systemprompt.NewStatic("Catalogue", cfg.Vector.Namespace),
		))),
		rag.WithBatchSize(cfg.Embedding.BatchSize),
		rag.WithConcurrency(cfg.Ingest.Concurrency),
		rag.WithRetry(cfg.Embedding.MaxRetries, cfg.Embedding.RetryDelay),
		rag.WithTimeout(cfg.Vector.Timeout),
		rag.WithLogger(logger),
	}
	if chat != nil {
		opts = append(opts, rag.WithLLM(chat, chatOpts...))
	}
	if cfg.Unanswered.Path != "" {
		log, err := unanswered.Open(cfg.Unanswered.Path)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, log.Close)
		opts = append(opts, rag.WithUnanswered(log))
	}
	a.RAG, err = rag.New(opts...)
	return err
}

// Source opens a file, s3:// or http(s):// catalogue source
func (a *App) Source(uri string) (document.Source, error) {
	if !strings.HasPrefix(uri, "s3://") {
		return document.Open(uri, nil)
	}
	return document.Open(uri, document.NewS3Client(document.S3Config{
		Region:          a.Config.S3.Region,
		Endpoint:        a.Config.S3.Endpoint,
		AccessKeyID:     a.Config.S3.AccessKeyID,
		SecretAccessKey: a.Config.S3.SecretAccessKey,
	}))
}

// Close releases resources in reverse order of acquisition
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
