// internal/render/markdown.go
package render

import (
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

const maxRenderedChars = 50000

// Normalize converts agent reply text to markdown for terminal and
// Telegram display. The service occasionally emits HTML fragments;
// plain text and existing markdown pass through untouched.
func Normalize(text string) string {
	if !looksLikeHTML(text) {
		return text
	}
	md, err := htmltomarkdown.ConvertString(text)
	if err != nil {
		// Keep the original text rather than losing the reply.
		return text
	}
	md = strings.TrimSpace(md)
	if len(md) > maxRenderedChars {
		md = md[:maxRenderedChars] + "\n\n[Content truncated]"
	}
	return md
}

// looksLikeHTML detects markup worth converting. A lone angle bracket
// in prose or code is not enough; we want a closing tag or a known
// block element.
func looksLikeHTML(text string) bool {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "</") {
		return true
	}
	for _, tag := range []string{"<p>", "<br", "<div", "<ul>", "<ol>", "<li>", "<h1", "<h2", "<h3", "<table", "<a "} {
		if strings.Contains(lower, tag) {
			return true
		}
	}
	return false
}
