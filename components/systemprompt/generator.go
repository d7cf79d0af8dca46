// Package systemprompt renders the system message the chat model receives
// with every catalogue question.
package systemprompt

import (
	"fmt"
	"slices"
	"strings"

	"github.com/bububa/catalogue-rag/components/prompt"
)

const (
	sectionPurpose = "IDENTITY and PURPOSE"
	sectionSteps   = "INTERNAL ASSISTANT STEPS"
	sectionOutput  = "OUTPUT INSTRUCTIONS"
	sectionContext = "EXTRA INFORMATION AND CONTEXT"
)

// Generator is the catalogue assistant system prompt generator
type Generator struct {
	background       []string
	steps            []string
	outputInstructs  []string
	contextProviders []ContextProvider
}

// New returns a new system prompt Generator
func New(options ...Option) *Generator {
	ret := new(Generator)
	for _, opt := range options {
		opt(ret)
	}
	if len(ret.background) == 0 {
		ret.background = []string{
			"- You are a helpful and concise assistant answering questions about a university catalogue.",
		}
	}
	if len(ret.steps) == 0 {
		ret.steps = []string{
			"- Read the catalogue segments in the user message.",
			"- Find the segments that answer the question.",
		}
	}
	ret.outputInstructs = append(ret.outputInstructs,
		"- Answer only from the catalogue segments and the conversation so far.",
		fmt.Sprintf("- If the segments do not contain the answer, reply exactly: %s", prompt.NoAnswer),
	)
	return ret
}

func (g *Generator) Generate() string {
	var (
		sections = map[string][]string{
			sectionPurpose: g.background,
			sectionSteps:   g.steps,
			sectionOutput:  g.outputInstructs,
		}
		promptParts []string
	)
	for _, title := range []string{sectionPurpose, sectionSteps, sectionOutput} {
		content := sections[title]
		if len(content) > 0 {
			promptParts = append(promptParts, fmt.Sprintf("# %s", title))
			promptParts = append(promptParts, content...)
			promptParts = append(promptParts, "")
		}
	}
	if len(g.contextProviders) > 0 {
		promptParts = append(promptParts, fmt.Sprintf("# %s", sectionContext))
		for _, provider := range g.contextProviders {
			if info := provider.Info(); info != "" {
				promptParts = append(promptParts, fmt.Sprintf("## %s", provider.Title()), info, "")
			}
		}
	}
	return strings.TrimSpace(strings.Join(promptParts, "\n"))
}

func (g *Generator) ContextProviders() []ContextProvider {
	return g.contextProviders
}

// ContextProvider retrieves a context provider by name.
// If the context provider is not found returns not found error
func (g *Generator) ContextProvider(title string) (ContextProvider, error) {
	for _, p := range g.contextProviders {
		if p.Title() == title {
			return p, nil
		}
	}
	return nil, fmt.Errorf("context provider '%s' not found", title)
}

// AddContextProviders registers new context providers, titles already present are ignored
func (g *Generator) AddContextProviders(providers ...ContextProvider) {
	for _, provider := range providers {
		if _, err := g.ContextProvider(provider.Title()); err != nil {
			g.contextProviders = append(g.contextProviders, provider)
		}
	}
}

// RemoveContextProviders Unregisters existing context providers.
func (g *Generator) RemoveContextProviders(titles ...string) {
	g.contextProviders = slices.DeleteFunc(g.contextProviders, func(p ContextProvider) bool {
		return slices.Contains(titles, p.Title())
	})
}
