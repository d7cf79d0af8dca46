// Package prompt builds the question prompt from retrieved catalogue segments
// without exceeding a token budget.
package prompt

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bububa/catalogue-rag/components/tokenizer"
	"github.com/bububa/catalogue-rag/components/vectordb"
)

const (
	SegmentTemplate  = "\n\nCatalogue segment:\n\"\"\"%s\"\"\"\n"
	QuestionTemplate = "\n\nQuestion: %s"
)

// ErrInvalidBudget is returned for a budget without a positive MaxTokens
var ErrInvalidBudget = errors.New("prompt budget must be positive")

// Assembled is a prompt ready for the chat model
type Assembled struct {
	Message string `json:"message"`
	// Tokens is the token count of Message under the budget model
	Tokens int `json:"tokens"`
	// Included is how many segments made it into Message
	Included int `json:"included"`
	// Overflow is set when the introduction and question alone exceed the budget
	Overflow bool `json:"overflow,omitempty"`
}

type Assembler struct {
	Options
}

func NewAssembler(opts ...Option) *Assembler {
	ret := &Assembler{
		Options: Options{
			budget:       Budget{Model: DefaultModel, MaxTokens: DefaultMaxTokens},
			introduction: DefaultIntroduction,
		},
	}
	for _, opt := range opts {
		opt(&ret.Options)
	}
	if ret.tokenizer == nil {
		ret.tokenizer = tokenizer.Default()
	}
	return ret
}

// Segment renders one retrieved text the way it appears in a prompt
func Segment(text string) string {
	return fmt.Sprintf(SegmentTemplate, text)
}

// Question renders the suffix that closes every prompt
func Question(query string) string {
	return fmt.Sprintf(QuestionTemplate, query)
}

// Assemble appends segments best score first and stops at the first one that
// would push the prompt over budget. Later, smaller segments are not tried.
func (a *Assembler) Assemble(query string, records []vectordb.Record) (*Assembled, error) {
	if a.budget.MaxTokens <= 0 {
		return nil, ErrInvalidBudget
	}
	ranked := make([]vectordb.Record, len(records))
	copy(ranked, records)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	suffix := Question(query)
	var message strings.Builder
	message.WriteString(a.introduction)
	ret := new(Assembled)
	for _, record := range ranked {
		segment := Segment(record.Text())
		tokens, err := a.tokenizer.Count(message.String()+segment+suffix, a.budget.Model)
		if err != nil {
			return nil, err
		}
		if tokens > a.budget.MaxTokens {
			break
		}
		message.WriteString(segment)
		ret.Included++
	}
	message.WriteString(suffix)
	ret.Message = message.String()
	tokens, err := a.tokenizer.Count(ret.Message, a.budget.Model)
	if err != nil {
		return nil, err
	}
	ret.Tokens = tokens
	ret.Overflow = tokens > a.budget.MaxTokens
	return ret, nil
}
