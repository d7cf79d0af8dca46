package document

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/bububa/catalogue-rag/components/embedder"
)

// Column names of the structured catalogue
const (
	ColumnHeader    = "Header"
	ColumnSubheader = "Sub-header"
	ColumnContent   = "Content"
)

var ErrMissingColumn = errors.New("missing column")

type columns struct {
	header    int
	subheader int
	content   int
}

func findColumns(row []string) (columns, error) {
	ret := columns{header: -1, subheader: -1, content: -1}
	for idx, name := range row {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case "header":
			ret.header = idx
		case "sub-header", "subheader":
			ret.subheader = idx
		case "content":
			ret.content = idx
		}
	}
	if ret.header < 0 {
		return ret, fmt.Errorf("%w %q", ErrMissingColumn, ColumnHeader)
	}
	if ret.content < 0 {
		return ret, fmt.Errorf("%w %q", ErrMissingColumn, ColumnContent)
	}
	return ret, nil
}

// cell is "" for an absent column, a blank value or one written as NaN.
// Any other value is kept as written, surrounding whitespace included.
func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	v := strings.TrimSpace(row[idx])
	if v == "" || strings.EqualFold(v, "nan") {
		return ""
	}
	return row[idx]
}

// TableRecords maps rows under a Header / Sub-header / Content header row
func TableRecords(rows [][]string) ([]embedder.SourceRecord, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	cols, err := findColumns(rows[0])
	if err != nil {
		return nil, err
	}
	ret := make([]embedder.SourceRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		record := embedder.SourceRecord{
			Header:    cell(row, cols.header),
			Subheader: cell(row, cols.subheader),
			Content:   cell(row, cols.content),
		}
		if record.Header == "" && record.Subheader == "" && record.Content == "" {
			continue
		}
		ret = append(ret, record)
	}
	return ret, nil
}

func ParseCSV(_ context.Context, _ string, data []byte) ([]embedder.SourceRecord, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	var rows [][]string
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return TableRecords(rows)
}

// ParseXLSX reads the first sheet of a workbook
func ParseXLSX(_ context.Context, _ string, data []byte) ([]embedder.SourceRecord, error) {
	doc, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer doc.Close()
	sheets := doc.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := doc.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	return TableRecords(rows)
}
