// Package document reads a catalogue source into SourceRecords.
//
// Every supported format is one Kind with one parse function; Records
// detects the kind and dispatches.
package document

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/bububa/catalogue-rag/components/embedder"
)

type Kind int

const (
	Unsupported Kind = iota
	PlainText
	Pdf
	Csv
	Xlsx
	Html
	Docx
	Markdown
)

func (k Kind) String() string {
	switch k {
	case PlainText:
		return "text"
	case Pdf:
		return "pdf"
	case Csv:
		return "csv"
	case Xlsx:
		return "xlsx"
	case Html:
		return "html"
	case Docx:
		return "docx"
	case Markdown:
		return "markdown"
	}
	return "unsupported"
}

const (
	mimeXlsx = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Detect sniffs data first and falls back to the file extension
func Detect(name string, data []byte) Kind {
	mt := mimetype.Detect(data)
	switch {
	case mt.Is("application/pdf"):
		return Pdf
	case mt.Is(mimeXlsx):
		return Xlsx
	case mt.Is(mimeDocx):
		return Docx
	case mt.Is("text/html"):
		return Html
	case mt.Is("text/csv"):
		return Csv
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return Csv
	case ".pdf":
		return Pdf
	case ".xlsx":
		return Xlsx
	case ".docx":
		return Docx
	case ".html", ".htm":
		return Html
	case ".md", ".markdown":
		return Markdown
	case ".txt":
		return PlainText
	}
	if mt.Is("text/plain") {
		return PlainText
	}
	return Unsupported
}

// UnsupportedError is returned for a source no parser understands
type UnsupportedError struct {
	Name string
	MIME string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("unsupported document %s (%s)", e.Name, e.MIME)
}

// ParseFunc reads one kind of document
type ParseFunc func(ctx context.Context, name string, data []byte) ([]embedder.SourceRecord, error)

// Parser returns the parse function of a kind, nil for Unsupported
func Parser(kind Kind) ParseFunc {
	switch kind {
	case PlainText:
		return ParseText
	case Pdf:
		return ParsePDF
	case Csv:
		return ParseCSV
	case Xlsx:
		return ParseXLSX
	case Html:
		return ParseHTML
	case Docx:
		return ParseDocx
	case Markdown:
		return ParseMarkdown
	}
	return nil
}

// Records turns raw document bytes into source records
func Records(ctx context.Context, name string, data []byte) ([]embedder.SourceRecord, error) {
	parse := Parser(Detect(name, data))
	if parse == nil {
		return nil, &UnsupportedError{Name: name, MIME: mimetype.Detect(data).String()}
	}
	records, err := parse(ctx, name, data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	return records, nil
}

// Load reads a source and parses it
func Load(ctx context.Context, src Source) ([]embedder.SourceRecord, error) {
	data, err := src.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", src.Name(), err)
	}
	return Records(ctx, src.Name(), data)
}

// ParseText keeps the whole text as one record headed by the document name
func ParseText(_ context.Context, name string, data []byte) ([]embedder.SourceRecord, error) {
	content := strings.TrimSpace(string(data))
	if content == "" {
		return nil, nil
	}
	return []embedder.SourceRecord{{Header: title(name), Content: content}}, nil
}

func title(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
