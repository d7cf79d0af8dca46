package splitter

import (
	"fmt"
	"unicode/utf8"

	"github.com/bububa/catalogue-rag/components/embedder"
	"github.com/bububa/catalogue-rag/components/tokenizer"
)

// InvariantViolationError is returned when halving a record's content does
// not reduce its token count, which would otherwise recurse forever.
type InvariantViolationError struct {
	Header string
	// Tokens is the token count of the content that failed to shrink
	Tokens int
	// Half is the token count of the offending half after re-encoding
	Half int
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("chunking invariant violated under %q: content of %d tokens split into a half of %d tokens", e.Header, e.Tokens, e.Half)
}

// Recursive splits a record into chunks of at most maxTokens tokens.
// Every chunk repeats the record's header and sub-header. Content that does
// not fit is split at its token midpoint and both halves are split again,
// left first. A record whose header and sub-header alone exceed the budget
// is kept whole as one oversized chunk, and so is content of a single token.
type Recursive struct {
	Options
}

var _ embedder.Chunker = (*Recursive)(nil)

func NewRecursive(opts ...Option) *Recursive {
	ret := new(Recursive)
	for _, opt := range opts {
		opt(&ret.Options)
	}
	if ret.maxTokens <= 0 {
		ret.maxTokens = DefaultMaxTokens
	}
	if ret.model == "" {
		ret.model = DefaultModel
	}
	if ret.tokenizer == nil {
		ret.tokenizer = tokenizer.Default()
	}
	return ret
}

// Split converts one record into chunks in content order
func (r *Recursive) Split(record embedder.SourceRecord) ([]embedder.Chunk, error) {
	return r.split(record, nil)
}

// SplitAll chunks records in order
func (r *Recursive) SplitAll(records []embedder.SourceRecord) ([]embedder.Chunk, error) {
	var ret []embedder.Chunk
	for idx, record := range records {
		var err error
		if ret, err = r.split(record, ret); err != nil {
			return nil, fmt.Errorf("record %d (%s): %w", idx, record.Header, err)
		}
	}
	return ret, nil
}

// Oversized reports whether chunk is over budget, which only happens for the
// header overflow and single token escapes.
func (r *Recursive) Oversized(chunk embedder.Chunk) bool {
	return chunk.TokenSize > r.maxTokens
}

func (r *Recursive) split(record embedder.SourceRecord, dist []embedder.Chunk) ([]embedder.Chunk, error) {
	total, err := r.tokenizer.Count(record.Text(), r.model)
	if err != nil {
		return nil, err
	}
	if total <= r.maxTokens {
		return append(dist, embedder.NewChunk(record, total)), nil
	}
	headerTokens, err := r.tokenizer.Count(record.Title(), r.model)
	if err != nil {
		return nil, err
	}
	if headerTokens > r.maxTokens {
		return append(dist, embedder.NewChunk(record, total)), nil
	}
	ids, err := r.tokenizer.Encode(record.Content, r.model)
	if err != nil {
		return nil, err
	}
	if len(ids) <= 1 {
		return append(dist, embedder.NewChunk(record, total)), nil
	}
	halves, err := r.halve(ids)
	if err != nil {
		return nil, err
	}
	for _, text := range halves {
		n, err := r.tokenizer.Count(text, r.model)
		if err != nil {
			return nil, err
		}
		if n >= len(ids) {
			return nil, &InvariantViolationError{Header: record.Title(), Tokens: len(ids), Half: n}
		}
	}
	for _, half := range halves {
		part := record
		part.Content = half
		if dist, err = r.split(part, dist); err != nil {
			return nil, err
		}
	}
	return dist, nil
}

// maxBoundaryShift bounds how far the split point moves away from the token
// midpoint looking for a cut between whole characters. A UTF-8 character is
// at most four bytes, so byte level tokens straddle at most three cuts.
const maxBoundaryShift = 4

// halve decodes ids into two halves cut as close to the midpoint as possible
// where neither half ends or starts inside a multi-byte character. When no
// such cut exists nearby the raw midpoint is used.
func (r *Recursive) halve(ids []int) ([]string, error) {
	mid := len(ids) / 2
	var fallback []string
	for shift := 0; shift <= maxBoundaryShift; shift++ {
		cuts := []int{mid - shift, mid + shift}
		if shift == 0 {
			cuts = cuts[:1]
		}
		for _, at := range cuts {
			if at <= 0 || at >= len(ids) {
				continue
			}
			halves, err := r.decodeAt(ids, at)
			if err != nil {
				return nil, err
			}
			if utf8.ValidString(halves[0]) && utf8.ValidString(halves[1]) {
				return halves, nil
			}
			if fallback == nil {
				fallback = halves
			}
		}
	}
	return fallback, nil
}

func (r *Recursive) decodeAt(ids []int, at int) ([]string, error) {
	halves := make([]string, 2)
	for i, part := range [][]int{ids[:at], ids[at:]} {
		text, err := r.tokenizer.Decode(part, r.model)
		if err != nil {
			return nil, err
		}
		halves[i] = text
	}
	return halves, nil
}
