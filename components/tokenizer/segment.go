package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/clipperhouse/uax29/graphemes"
	"github.com/clipperhouse/uax29/words"
)

const (
	// WordsModel names the Unicode word boundary tokenizer
	WordsModel = "uax29-words"
	// GraphemesModel names the Unicode grapheme cluster tokenizer
	GraphemesModel = "uax29-graphemes"
)

// Segments is an offline tokenizer built on Unicode text segmentation.
// Every segment is a token; ids come from an append-only vocabulary, so an
// id never changes meaning once assigned. Segments cover the whole input,
// whitespace included, which keeps Decode(Encode(t)) == t.
type Segments struct {
	model   string
	segment func([]byte) [][]byte

	mu    sync.RWMutex
	vocab map[string]int
	words []string
}

var _ Tokenizer = (*Segments)(nil)

// NewWords segments on UAX #29 word boundaries
func NewWords() *Segments {
	return newSegments(WordsModel, words.SegmentAll)
}

// NewGraphemes segments on UAX #29 grapheme clusters, roughly one token per visible character
func NewGraphemes() *Segments {
	return newSegments(GraphemesModel, graphemes.SegmentAll)
}

func newSegments(model string, fn func([]byte) [][]byte) *Segments {
	return &Segments{
		model:   model,
		segment: fn,
		vocab:   make(map[string]int),
	}
}

func (s *Segments) check(model string) error {
	if model != "" && model != s.model {
		return &UnsupportedModelError{Model: model}
	}
	return nil
}

func (s *Segments) Count(text string, model string) (int, error) {
	if err := s.check(model); err != nil {
		return 0, err
	}
	return len(s.segment([]byte(text))), nil
}

func (s *Segments) Encode(text string, model string) ([]int, error) {
	if err := s.check(model); err != nil {
		return nil, err
	}
	segs := s.segment([]byte(text))
	ids := make([]int, len(segs))
	for i, seg := range segs {
		ids[i] = s.id(string(seg))
	}
	return ids, nil
}

func (s *Segments) Decode(ids []int, model string) (string, error) {
	if err := s.check(model); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sb strings.Builder
	for _, id := range ids {
		if id < 0 || id >= len(s.words) {
			return "", fmt.Errorf("tokenizer: unknown token id %d for %s", id, s.model)
		}
		sb.WriteString(s.words[id])
	}
	return sb.String(), nil
}

func (s *Segments) id(seg string) int {
	s.mu.RLock()
	id, ok := s.vocab[seg]
	s.mu.RUnlock()
	if ok {
		return id
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.vocab[seg]; ok {
		return id
	}
	id = len(s.words)
	s.vocab[seg] = id
	s.words = append(s.words, seg)
	return id
}
