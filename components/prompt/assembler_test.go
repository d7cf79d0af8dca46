package prompt

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bububa/catalogue-rag/components/embedder"
	"github.com/bububa/catalogue-rag/components/tokenizer"
	"github.com/bububa/catalogue-rag/components/vectordb"
)

func result(text string, score float64) vectordb.Record {
	return vectordb.Record{
		ID:    text,
		Score: score,
		Embedding: embedder.Embedding{
			Meta: map[string]string{embedder.MetaText: text},
		},
	}
}

func newTestAssembler(maxTokens int, intro string) *Assembler {
	return NewAssembler(
		WithTokenizer(tokenizer.NewGraphemes()),
		WithBudget(Budget{Model: tokenizer.GraphemesModel, MaxTokens: maxTokens}),
		WithIntroduction(intro),
	)
}

func TestAssembleFitsFirstSegmentOnly(t *testing.T) {
	intro := "Answer from the catalogue."
	query := "Which courses?"
	budget := utf8.RuneCountInString(intro + Segment("seg1") + Question(query))
	a := newTestAssembler(budget, intro)

	got, err := a.Assemble(query, []vectordb.Record{result("seg1", 0.9), result("seg2", 0.8)})
	require.NoError(t, err)
	assert.Contains(t, got.Message, `"""seg1"""`)
	assert.NotContains(t, got.Message, "seg2")
	assert.True(t, strings.HasSuffix(got.Message, "\n\nQuestion: "+query))
	assert.Equal(t, 1, got.Included)
	assert.Equal(t, budget, got.Tokens)
	assert.False(t, got.Overflow)
}

func TestAssembleRanksByScore(t *testing.T) {
	a := newTestAssembler(1000, "I")
	got, err := a.Assemble("q", []vectordb.Record{result("low", 0.1), result("high", 0.9), result("mid", 0.5)})
	require.NoError(t, err)
	assert.Equal(t, 3, got.Included)
	high := strings.Index(got.Message, "high")
	mid := strings.Index(got.Message, "mid")
	low := strings.Index(got.Message, "low")
	assert.Less(t, high, mid)
	assert.Less(t, mid, low)
}

func TestAssembleStopsAtFirstOverflow(t *testing.T) {
	intro := "I"
	budget := utf8.RuneCountInString(intro+Segment("small")+Question("q")) + 2
	a := newTestAssembler(budget, intro)

	got, err := a.Assemble("q", []vectordb.Record{
		result(strings.Repeat("big ", 50), 0.9),
		result("small", 0.5),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, got.Included)
	assert.Equal(t, intro+Question("q"), got.Message)
}

func TestAssembleMinimalOverflow(t *testing.T) {
	intro := strings.Repeat("x", 40)
	a := newTestAssembler(10, intro)
	got, err := a.Assemble("q", []vectordb.Record{result("seg1", 0.9)})
	require.NoError(t, err)
	assert.True(t, got.Overflow)
	assert.Equal(t, 0, got.Included)
	assert.Equal(t, intro+Question("q"), got.Message)
}

func TestAssembleBudget(t *testing.T) {
	records := []vectordb.Record{
		result("Biology 101 introduces cells.", 0.93),
		result("Chemistry majors take four labs.", 0.81),
		result("The library opens at eight.", 0.81),
		result("", 0.4),
		result(strings.Repeat("Long text ", 30), 0.2),
	}
	intro := "Use the segments."
	minimal := utf8.RuneCountInString(intro + Question("what?"))
	for budget := 1; budget < 600; budget += 7 {
		a := newTestAssembler(budget, intro)
		got, err := a.Assemble("what?", records)
		require.NoError(t, err)
		assert.Equal(t, utf8.RuneCountInString(got.Message), got.Tokens)
		if budget < minimal {
			assert.True(t, got.Overflow, "budget %d", budget)
			continue
		}
		assert.False(t, got.Overflow, "budget %d", budget)
		assert.LessOrEqual(t, got.Tokens, budget, "budget %d", budget)
	}
}

func TestAssembleEmpty(t *testing.T) {
	a := newTestAssembler(100, "I")
	got, err := a.Assemble("q", nil)
	require.NoError(t, err)
	assert.Equal(t, "I\n\nQuestion: q", got.Message)
	assert.Equal(t, 0, got.Included)
}

func TestAssembleInvalidBudget(t *testing.T) {
	a := newTestAssembler(0, "I")
	_, err := a.Assemble("q", nil)
	assert.ErrorIs(t, err, ErrInvalidBudget)
}

func TestAssembleUnsupportedModel(t *testing.T) {
	a := NewAssembler(
		WithTokenizer(tokenizer.NewGraphemes()),
		WithBudget(Budget{Model: "gpt-9", MaxTokens: 10}),
	)
	_, err := a.Assemble("q", nil)
	assert.ErrorIs(t, err, tokenizer.ErrUnsupportedModel)
}
