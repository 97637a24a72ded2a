package render

import (
	"fmt"
	"html"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/microcosm-cc/bluemonday"
	"github.com/russross/blackfriday"

	"github.com/dskvich/scholarai/pkg/domain"
)

var policy = bluemonday.UGCPolicy()

// HTML renders Markdown answer text as a sanitized HTML fragment. Raw HTML,
// scripts and unsafe link schemes in the source are dropped.
func HTML(markdown string) string {
	return string(policy.SanitizeBytes(blackfriday.MarkdownCommon([]byte(markdown))))
}

// TranscriptHTML renders a session transcript as a standalone HTML page.
func TranscriptHTML(title string, transcript []domain.Turn) string {
	var b strings.Builder

	fmt.Fprintf(&b, "<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>%s</title></head><body>\n", html.EscapeString(title))
	fmt.Fprintf(&b, "<h1>%s</h1>\n", html.EscapeString(title))

	for _, t := range transcript {
		fmt.Fprintf(&b, "<section class=\"turn %s\">\n<p class=\"meta\">%s · %s</p>\n",
			html.EscapeString(t.Role), html.EscapeString(t.Role), t.At.Format("2006-01-02 15:04:05"))
		if t.Role == domain.RoleAssistant {
			b.WriteString(HTML(t.Text))
		} else {
			fmt.Fprintf(&b, "<p>%s</p>\n", html.EscapeString(t.Text))
		}
		b.WriteString("</section>\n")
	}

	b.WriteString("</body></html>\n")
	return b.String()
}

// Terminal renders Markdown for an ANSI terminal of the given width.
func Terminal(markdown string, width int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("creating terminal renderer: %w", err)
	}

	out, err := r.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return out, nil
}
