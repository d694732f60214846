package tools

import (
	"strings"
	"testing"
)

func TestExtractVisibleTextStripsScriptsAndHidden(t *testing.T) {
	raw := []byte(`<html><head><title>t</title><style>body{}</style></head>
<body>
<script>var secret = "nope";</script>
<div style="display: none">invisible</div>
<p aria-hidden="true">also invisible</p>
<h1>Heading</h1>
<p>Visible paragraph.</p>
<ul><li>first</li><li>second</li></ul>
</body></html>`)

	text := ExtractVisibleText(raw, "text/html; charset=utf-8")

	if strings.Contains(text, "secret") {
		t.Errorf("script content leaked: %q", text)
	}
	if strings.Contains(text, "invisible") {
		t.Errorf("hidden content leaked: %q", text)
	}
	if !strings.Contains(text, "# Heading") {
		t.Errorf("expected markdown heading prefix, got %q", text)
	}
	if !strings.Contains(text, "- first") || !strings.Contains(text, "- second") {
		t.Errorf("expected list bullets, got %q", text)
	}
	if !strings.Contains(text, "Visible paragraph.") {
		t.Errorf("visible text missing: %q", text)
	}
}

func TestExtractVisibleTextPassthrough(t *testing.T) {
	raw := []byte(`{"key": "value"}`)
	if got := ExtractVisibleText(raw, "application/json"); got != string(raw) {
		t.Errorf("non-HTML should pass through, got %q", got)
	}
}

func TestExtractVisibleTextCollapsesWhitespace(t *testing.T) {
	raw := []byte("<html><body><p>a    b</p><div></div><div></div><div></div><p>c</p></body></html>")
	text := ExtractVisibleText(raw, "text/html")

	if strings.Contains(text, "  ") {
		t.Errorf("spaces not collapsed: %q", text)
	}
	if strings.Contains(text, "\n\n\n") {
		t.Errorf("newlines not collapsed: %q", text)
	}
}
