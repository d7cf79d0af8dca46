package providers

import (
	"context"
	"fmt"

	"github.com/bububa/catalogue-rag/components/embedder"
	"github.com/bububa/catalogue-rag/components/embedder/providers/cohere"
	"github.com/bububa/catalogue-rag/components/embedder/providers/gemini"
	"github.com/bububa/catalogue-rag/components/embedder/providers/huggingface"
	"github.com/bububa/catalogue-rag/components/embedder/providers/openai"
	"github.com/bububa/catalogue-rag/components/embedder/providers/voyageai"
)

var (
	FromOpenAI      = openai.New
	FromCohere      = cohere.New
	FromGemini      = gemini.New
	FromVoyageAI    = voyageai.New
	FromHuggingFace = huggingface.New
)

// Config selects and configures an embedding provider
type Config struct {
	Provider   string
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

func nop() error { return nil }

// New builds the embedder named by cfg.Provider: openai (the default),
// cohere, gemini, voyageai or huggingface. release frees the provider's
// connections and is never nil.
func New(ctx context.Context, cfg Config) (embedder.Embedder, func() error, error) {
	var opts []embedder.Option
	if cfg.Model != "" {
		opts = append(opts, embedder.WithModel(cfg.Model))
	}
	opts = append(opts, embedder.WithDimensions(cfg.Dimensions))
	switch cfg.Provider {
	case "", "openai":
		return FromOpenAI(openai.NewClient(cfg.APIKey, cfg.BaseURL), opts...), nop, nil
	case "cohere":
		return FromCohere(cohere.NewClient(cfg.APIKey, cfg.BaseURL), opts...), nop, nil
	case "gemini":
		clt, err := gemini.NewClient(ctx, cfg.APIKey, cfg.BaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("gemini client: %w", err)
		}
		return FromGemini(clt, opts...), clt.Close, nil
	case "voyageai":
		clt := voyageai.NewClient(voyageai.WithAPIKey(cfg.APIKey), voyageai.WithBaseURL(cfg.BaseURL))
		return FromVoyageAI(clt, opts...), nop, nil
	case "huggingface":
		clt := huggingface.NewClient(huggingface.WithAPIKey(cfg.APIKey), huggingface.WithBaseURL(cfg.BaseURL))
		return FromHuggingFace(clt, opts...), nop, nil
	}
	return nil, nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
}
