package document

import (
	"bytes"
	"context"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"

	"github.com/bububa/catalogue-rag/components/embedder"
)

var (
	blankLines = regexp.MustCompile(`\r?\n{2,}`)
	// page chrome that never carries catalogue text
	chromeTags = []string{"script", "style", "noscript", "nav", "header", "footer"}
	// tried in order, the first match is the page content
	contentSelectors = []string{"main", "#content, #main", ".content, .main", "article", "body"}
)

// ParseHTML keeps the main content of the page as one markdown record,
// headed by the page title
func ParseHTML(_ context.Context, name string, data []byte) ([]embedder.SourceRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	header := strings.TrimSpace(doc.Find("head title").First().Text())
	if header == "" {
		header = title(name)
	}
	bs, err := htmltomarkdown.ConvertString(mainContent(doc))
	if err != nil {
		return nil, err
	}
	content := cleanMarkdown(bs)
	if content == "" {
		return nil, nil
	}
	return []embedder.SourceRecord{{Header: header, Content: content}}, nil
}

func mainContent(doc *goquery.Document) string {
	for _, tag := range chromeTags {
		doc.Find(tag).Remove()
	}
	for _, selector := range contentSelectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		if html, err := sel.Html(); err == nil {
			return html
		}
	}
	html, _ := doc.Html()
	return html
}

func cleanMarkdown(content string) string {
	content = blankLines.ReplaceAllString(content, "\n\n")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
