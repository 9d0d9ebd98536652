package embedding

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"curio/internal/core"
)

const maxContentChars = 500

// ArticleText builds the canonical embedding input for an article:
// "{title}. {first 500 chars of stripped content}", or the title alone
// when the article has no body.
func ArticleText(a core.Article) string {
	content := strings.TrimSpace(stripHTML(a.Content))
	if content == "" {
		return a.Title
	}
	if len(content) > maxContentChars {
		content = content[:maxContentChars]
	}
	return fmt.Sprintf("%s. %s", a.Title, content)
}

// InterestText builds the canonical embedding input for an interest: the
// expanded description when present, else "{category}: {description}",
// else just the category.
func InterestText(category, description, expanded string) string {
	if expanded != "" {
		return expanded
	}
	if description != "" {
		return fmt.Sprintf("%s: %s", category, description)
	}
	return category
}

// stripHTML flattens markup to text. Feed content is frequently HTML;
// embedding tags wastes the input window.
func stripHTML(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
