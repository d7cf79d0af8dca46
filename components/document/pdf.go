package document

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/bububa/catalogue-rag/components/embedder"
)

// ParsePDF emits one record per page with text, sub-headed by the page number.
// Layout is not interpreted.
func ParsePDF(ctx context.Context, name string, data []byte) ([]embedder.SourceRecord, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	header := title(name)
	var ret []embedder.SourceRecord
	for pageIndex := 1; pageIndex <= r.NumPage(); pageIndex++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(pageIndex)
		if p.V.IsNull() {
			continue
		}
		rows, err := p.GetTextByRow()
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", pageIndex, err)
		}
		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			var sb strings.Builder
			for _, word := range row.Content {
				sb.WriteString(word.S)
			}
			if line := strings.TrimSpace(sb.String()); line != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) == 0 {
			continue
		}
		ret = append(ret, embedder.SourceRecord{
			Header:    header,
			Subheader: fmt.Sprintf("Page %d", pageIndex),
			Content:   strings.Join(lines, " "),
		})
	}
	return ret, nil
}
