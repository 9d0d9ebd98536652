// Package render turns an assembled digest into markdown and HTML for
// the HTTP API and the CLI.
package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"curio/internal/core"
)

// Item is one digest entry joined with its article metadata.
type Item struct {
	Title       string
	URL         string
	Relevance   float64
	Reason      string
	Serendipity bool
}

// Markdown renders a digest as a markdown document, ordered as the
// digest was assembled. Serendipity picks are marked inline.
func Markdown(dg *core.Digest, items []Item) string {
	var b strings.Builder

	dateStr := dg.Generated.UTC().Format("2006-01-02")
	fmt.Fprintf(&b, "# Digest — %s\n\n", dateStr)
	fmt.Fprintf(&b, "%d articles selected.\n\n", dg.ArticleCount)

	if len(items) == 0 {
		b.WriteString("No articles qualified for this digest.\n")
		return b.String()
	}

	for i, item := range items {
		marker := ""
		if item.Serendipity {
			marker = " ✨"
		}
		fmt.Fprintf(&b, "### %d. [%s](%s)%s\n\n", i+1, item.Title, item.URL, marker)
		fmt.Fprintf(&b, "%s (%.2f)\n\n", item.Reason, item.Relevance)
		b.WriteString("---\n\n")
	}
	return b.String()
}

// HTML converts markdown to HTML with common extensions enabled.
func HTML(md string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse([]byte(md))

	opts := html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank}
	renderer := html.NewRenderer(opts)

	return markdown.Render(doc, renderer)
}

// WriteFile writes rendered digest content under outputDir, creating
// the directory if needed, and returns the written path.
func WriteFile(content, outputDir string, dg *core.Digest) (string, error) {
	if outputDir == "" {
		outputDir = "digests"
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}

	filename := fmt.Sprintf("digest_%s_%s.md", dg.Generated.UTC().Format("2006-01-02"), dg.ID)
	filePath := filepath.Join(outputDir, filename)
	if err := os.WriteFile(filePath, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write digest file %s: %w", filePath, err)
	}
	return filePath, nil
}
