package prompt

import (
	"github.com/bububa/catalogue-rag/components/tokenizer"
)

const (
	// NoAnswer is what the model is told to reply when the segments do not hold the answer
	NoAnswer = "I could not find an answer."
	// DefaultModel is the chat model whose tokenizer measures the prompt
	DefaultModel = "gpt-3.5-turbo"
	// DefaultMaxTokens bounds the assembled prompt
	DefaultMaxTokens = 4096
	// DefaultIntroduction opens every assembled prompt
	DefaultIntroduction = `Use the below segments of the university catalogue to answer the subsequent question. If the answer cannot be found in the segments, write "` + NoAnswer + `"`
)

// Budget is the model a prompt is measured with and the tokens it may take
type Budget struct {
	Model     string
	MaxTokens int
}

type Options struct {
	tokenizer    tokenizer.Tokenizer
	budget       Budget
	introduction string
}

type Option func(*Options)

func WithTokenizer(t tokenizer.Tokenizer) Option {
	return func(o *Options) {
		o.tokenizer = t
	}
}

func WithBudget(budget Budget) Option {
	return func(o *Options) {
		o.budget = budget
	}
}

func WithIntroduction(intro string) Option {
	return func(o *Options) {
		o.introduction = intro
	}
}

func (o Options) Tokenizer() tokenizer.Tokenizer {
	return o.tokenizer
}

func (o Options) Budget() Budget {
	return o.budget
}

func (o Options) Introduction() string {
	return o.introduction
}
