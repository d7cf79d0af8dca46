package document

import (
	"bytes"
	"context"
	"strings"

	"github.com/fumiama/go-docx"

	"github.com/bububa/catalogue-rag/components/embedder"
)

// ParseDocx keeps the paragraphs and tables of a Word document as one record
func ParseDocx(_ context.Context, name string, data []byte) ([]embedder.SourceRecord, error) {
	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	parts := make([]string, 0, len(doc.Document.Body.Items))
	for _, it := range doc.Document.Body.Items {
		var text string
		switch t := it.(type) {
		case *docx.Paragraph:
			text = t.String()
		case *docx.Table:
			text = t.String()
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return nil, nil
	}
	return []embedder.SourceRecord{{Header: title(name), Content: strings.Join(parts, "\n\n")}}, nil
}
