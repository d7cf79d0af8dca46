// Package llm is the chat model seam of the question answering pipeline
package llm

import (
	"context"
	"iter"

	"github.com/bububa/catalogue-rag/components"
)

type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Client answers a conversation. Stream yields text fragments lazily; every
// range over the returned sequence issues a fresh request.
type Client interface {
	Chat(ctx context.Context, system string, messages []components.Message, opts ...Option) (*components.LLMResponse, error)
	Stream(ctx context.Context, system string, messages []components.Message, opts ...Option) iter.Seq2[string, error]
}

type Options struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

type Option func(*Options)

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

func WithTemperature(t float32) Option {
	return func(o *Options) {
		o.Temperature = t
	}
}

func WithMaxTokens(n int) Option {
	return func(o *Options) {
		o.MaxTokens = n
	}
}

// NewOptions applies opts over defaults
func NewOptions(defaults Options, opts ...Option) Options {
	for _, opt := range opts {
		opt(&defaults)
	}
	return defaults
}
