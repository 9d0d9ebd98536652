package genscore

import (
	"fmt"
	"strings"

	"curio/internal/core"
	"curio/internal/embedding"
	"curio/internal/scoring"
)

// buildPrompt renders one batch: the reader's weighted interests, any
// learned preferences, then the main candidates and a delimited
// serendipity section with its own judging instructions.
func buildPrompt(interests []core.Interest, prefs []core.LearnedPreference, main, serendipity []promptArticle) string {
	var b strings.Builder

	b.WriteString("You are scoring articles for one reader's personalized digest.\n\n")

	b.WriteString("READER INTERESTS (name, weight, description):\n")
	for _, in := range interests {
		fmt.Fprintf(&b, "- %s (weight %.1f): %s\n",
			in.Category, in.Weight, embedding.InterestText(in.Category, in.Description, in.Expanded))
	}

	if len(prefs) > 0 {
		b.WriteString("\nLEARNED PREFERENCES from this reader's past feedback:\n")
		for _, p := range prefs {
			fmt.Fprintf(&b, "- %s (confidence %.2f)\n", p.Text, p.Confidence)
		}
	}

	b.WriteString("\nARTICLES TO SCORE:\n")
	for _, a := range main {
		writePromptArticle(&b, a)
	}

	if len(serendipity) > 0 {
		b.WriteString("\n--- SERENDIPITY CANDIDATES ---\n")
		b.WriteString("The following articles scored below the reader's usual interests. ")
		b.WriteString("Judge them for unexpected value: score highly only if the article ")
		b.WriteString("would genuinely surprise and delight this reader despite not matching ")
		b.WriteString("a stated interest. Use is_serendipity sparingly, at most one or two per batch.\n")
		for _, a := range serendipity {
			writePromptArticle(&b, a)
		}
	}

	b.WriteString(`
Respond with ONLY a JSON array, one object per article:
[{"article_id": "<id>", "score": <0.0-1.0>, "reason": "Matches: <InterestName>" or "Serendipity", "is_serendipity": <bool>}]
`)
	return b.String()
}

type promptArticle struct {
	ID      string
	Title   string
	Excerpt string
}

func writePromptArticle(b *strings.Builder, a promptArticle) {
	fmt.Fprintf(b, "\n[%s] %s\n%s\n", a.ID, a.Title, a.Excerpt)
}

func toPromptArticles(candidates []scoring.Candidate, articles map[string]*core.Article, serendipity bool) []promptArticle {
	var out []promptArticle
	for _, c := range candidates {
		if c.Serendipity != serendipity {
			continue
		}
		a := articles[c.Score.ArticleID]
		if a == nil {
			continue
		}
		out = append(out, promptArticle{
			ID:      a.ID,
			Title:   a.Title,
			Excerpt: excerpt(a.Content, 300),
		})
	}
	return out
}

func excerpt(content string, max int) string {
	content = strings.TrimSpace(content)
	if len(content) > max {
		content = content[:max]
	}
	return content
}
