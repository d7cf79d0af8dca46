package systemprompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bububa/catalogue-rag/components/prompt"
)

func TestGenerate(t *testing.T) {
	g := New(WithOutputInstructs([]string{"- Respond in 200 characters or less."}))
	out := g.Generate()
	assert.True(t, strings.HasPrefix(out, "# IDENTITY and PURPOSE\n"))
	assert.Contains(t, out, "# INTERNAL ASSISTANT STEPS")
	assert.Contains(t, out, "- Respond in 200 characters or less.")
	assert.Contains(t, out, prompt.NoAnswer)
	assert.NotContains(t, out, "EXTRA INFORMATION")
}

func TestContextProviders(t *testing.T) {
	g := New(WithContextProviders(
		NewStatic("Catalogue", "Howard University 2023-2024"),
		NewStatic("Catalogue", "duplicate"),
		NewStatic("Empty", ""),
	))
	require.Len(t, g.ContextProviders(), 2)

	out := g.Generate()
	assert.Contains(t, out, "## Catalogue\nHoward University 2023-2024")
	assert.NotContains(t, out, "duplicate")
	assert.NotContains(t, out, "## Empty")

	p, err := g.ContextProvider("Catalogue")
	require.NoError(t, err)
	assert.Equal(t, "Howard University 2023-2024", p.Info())

	g.RemoveContextProviders("Catalogue", "Empty")
	assert.Empty(t, g.ContextProviders())
	_, err = g.ContextProvider("Catalogue")
	assert.Error(t, err)
}
