package splitter

import (
	"github.com/bububa/catalogue-rag/components/tokenizer"
)

const (
	// DefaultMaxTokens is the chunk budget when none is configured
	DefaultMaxTokens = 1000
	// DefaultModel is the model whose tokenizer measures chunks
	DefaultModel = "text-embedding-3-small"
)

type Options struct {
	maxTokens int
	model     string
	tokenizer tokenizer.Tokenizer
}

// Option is a function type for configuring splitter Options.
// This follows the functional options pattern for clean and flexible configuration.
type Option func(*Options)

// WithMaxTokens sets the token budget of a chunk, header and sub-header included
func WithMaxTokens(size int) Option {
	return func(o *Options) {
		o.maxTokens = size
	}
}

// WithModel sets the model name handed to the tokenizer
func WithModel(model string) Option {
	return func(o *Options) {
		o.model = model
	}
}

func WithTokenizer(t tokenizer.Tokenizer) Option {
	return func(o *Options) {
		o.tokenizer = t
	}
}

func (o Options) MaxTokens() int {
	return o.maxTokens
}

func (o Options) Model() string {
	return o.model
}
