// Package markdown inspects imported markdown files: document title and
// section outline extraction for the batch importer.
package markdown

import (
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// Inspector parses markdown documents with a shared goldmark parser.
type Inspector struct {
	parser goldmark.Markdown
}

// NewInspector creates a markdown inspector.
func NewInspector() *Inspector {
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &Inspector{parser: md}
}

// ExtractTitle returns the first top-level heading of the document, or an
// empty string when the document has no headings.
func (in *Inspector) ExtractTitle(source []byte) (string, error) {
	items, err := in.outline(source)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "", nil
	}
	return string(items[0].Title), nil
}

// SectionTitles returns the H1 and H2 heading texts in document order.
// Importers use these as keyword seeds for documents without metadata.
func (in *Inspector) SectionTitles(source []byte) ([]string, error) {
	items, err := in.outline(source)
	if err != nil {
		return nil, err
	}
	var titles []string
	var walk func(toc.Items)
	walk = func(items toc.Items) {
		for _, item := range items {
			titles = append(titles, string(item.Title))
			walk(item.Items)
		}
	}
	walk(items)
	return titles, nil
}

func (in *Inspector) outline(source []byte) (toc.Items, error) {
	reader := text.NewReader(source)
	doc := in.parser.Parser().Parse(reader)

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(2),
		toc.Compact(true),
	)
	if err != nil {
		return nil, fmt.Errorf("inspect TOC: %w", err)
	}
	return tree.Items, nil
}
