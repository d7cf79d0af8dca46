// Package tokenizer counts, encodes and decodes text into model specific tokens.
package tokenizer

import (
	"errors"
	"fmt"
	"sync"
)

// Tokenizer turns text into model tokens and back.
// Implementations are deterministic: Decode(Encode(t)) == t for the same model.
type Tokenizer interface {
	Count(text string, model string) (int, error)
	Encode(text string, model string) ([]int, error)
	Decode(ids []int, model string) (string, error)
}

// ErrUnsupportedModel is matched by every UnsupportedModelError
var ErrUnsupportedModel = errors.New("unsupported model")

// UnsupportedModelError is returned when a tokenizer does not know the model name
type UnsupportedModelError struct {
	Model string
	Err   error
}

func (e *UnsupportedModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tokenizer: unsupported model %q: %v", e.Model, e.Err)
	}
	return fmt.Sprintf("tokenizer: unsupported model %q", e.Model)
}

func (e *UnsupportedModelError) Unwrap() error {
	return e.Err
}

func (e *UnsupportedModelError) Is(target error) bool {
	return target == ErrUnsupportedModel
}

// Registry dispatches to a backend by model name.
// Unregistered names go to the fallback, when one is set.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Tokenizer
	fallback Tokenizer
}

var _ Tokenizer = (*Registry)(nil)

// NewRegistry returns a Registry which falls back to the given tokenizer for unknown models
func NewRegistry(fallback Tokenizer) *Registry {
	return &Registry{
		backends: make(map[string]Tokenizer),
		fallback: fallback,
	}
}

// Register binds model names to a backend
func (r *Registry) Register(backend Tokenizer, models ...string) *Registry {
	r.mu.Lock()
	for _, m := range models {
		r.backends[m] = backend
	}
	r.mu.Unlock()
	return r
}

func (r *Registry) backend(model string) (Tokenizer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b, ok := r.backends[model]; ok {
		return b, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, &UnsupportedModelError{Model: model}
}

func (r *Registry) Count(text string, model string) (int, error) {
	b, err := r.backend(model)
	if err != nil {
		return 0, err
	}
	return b.Count(text, model)
}

func (r *Registry) Encode(text string, model string) ([]int, error) {
	b, err := r.backend(model)
	if err != nil {
		return nil, err
	}
	return b.Encode(text, model)
}

func (r *Registry) Decode(ids []int, model string) (string, error) {
	b, err := r.backend(model)
	if err != nil {
		return "", err
	}
	return b.Decode(ids, model)
}

// Default returns the registry used by the pipeline: segmenter models by name,
// everything else resolved by tiktoken.
func Default() *Registry {
	reg := NewRegistry(NewTikToken())
	reg.Register(NewWords(), WordsModel)
	reg.Register(NewGraphemes(), GraphemesModel)
	return reg
}
