package render

import (
	"strings"
	"testing"
	"time"

	"github.com/dskvich/scholarai/pkg/domain"
)

func TestTranscriptHTML(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	page := TranscriptHTML("paper.pdf", []domain.Turn{
		{Role: domain.RoleUser, Text: "What is <b>this</b>?", At: at},
		{Role: domain.RoleAssistant, Text: "It is **important**.", At: at},
	})

	for _, want := range []string{
		"<title>paper.pdf</title>",
		"What is &lt;b&gt;this&lt;/b&gt;?",
		"<strong>important</strong>",
		"2024-05-01 10:00:00",
	} {
		if !strings.Contains(page, want) {
			t.Errorf("page does not contain %q", want)
		}
	}
}

func TestTerminal(t *testing.T) {
	out, err := Terminal("# Title\n\nSome *text*.", 80)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Title") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestHTMLDropsActiveContent(t *testing.T) {
	out := HTML("<script>alert(document.cookie)</script>\n\n[x](javascript:alert(1))\n\n<img src=x onerror=alert(1)> **kept**")

	for _, banned := range []string{"<script", "javascript:", "onerror"} {
		if strings.Contains(out, banned) {
			t.Errorf("output %q contains %q", out, banned)
		}
	}
	if !strings.Contains(out, "<strong>kept</strong>") {
		t.Errorf("formatting lost: %q", out)
	}
}

func TestTranscriptHTMLSanitizesAnswers(t *testing.T) {
	page := TranscriptHTML("x", []domain.Turn{{Role: domain.RoleAssistant, Text: "<script>steal()</script>"}})
	if strings.Contains(page, "<script") {
		t.Errorf("page contains a script: %q", page)
	}
}
