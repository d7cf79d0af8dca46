package document

import (
	"context"
	"strings"

	"gitlab.com/golang-commonmark/markdown"

	"github.com/bububa/catalogue-rag/components/embedder"
)

// ParseMarkdown yields one record per section. A level one heading sets the
// header, a level two heading the sub-header; deeper headings stay in the content.
func ParseMarkdown(_ context.Context, name string, data []byte) ([]embedder.SourceRecord, error) {
	var (
		records []embedder.SourceRecord
		body    []string
		level   int
		current = embedder.SourceRecord{Header: title(name)}
	)
	flush := func() {
		if content := strings.TrimSpace(strings.Join(body, "\n")); content != "" {
			current.Content = content
			records = append(records, current)
		}
		body = body[:0]
	}
	for _, tok := range markdown.New().Parse(data) {
		switch t := tok.(type) {
		case *markdown.HeadingOpen:
			level = t.HLevel
		case *markdown.HeadingClose:
			level = 0
		case *markdown.Inline:
			text := strings.TrimSpace(t.Content)
			switch level {
			case 0:
				body = append(body, t.Content)
			case 1:
				flush()
				current.Header, current.Subheader = text, ""
			case 2:
				flush()
				current.Subheader = text
			default:
				body = append(body, text)
			}
		case *markdown.Fence:
			body = append(body, t.Content)
		case *markdown.CodeBlock:
			body = append(body, t.Content)
		}
	}
	flush()
	return records, nil
}
