package tools

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// skipTags are elements whose entire subtree is discarded.
var skipTags = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Svg:      true,
	atom.Template: true,
	atom.Iframe:   true,
	atom.Head:     true,
}

// collapseSpaceRe collapses runs of spaces and tabs into a single space.
var collapseSpaceRe = regexp.MustCompile(`[ \t]+`)

// multiNewlineRe collapses 3+ newlines into 2.
var multiNewlineRe = regexp.MustCompile(`\n{3,}`)

// ExtractVisibleText parses HTML and returns only the text a reader would
// see: scripts, styles, and hidden elements are stripped, headings keep a
// markdown-like prefix. Non-HTML content passes through unchanged.
func ExtractVisibleText(raw []byte, contentType string) string {
	if !strings.Contains(strings.ToLower(contentType), "html") {
		return string(raw)
	}

	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		// Better the raw markup than nothing.
		return string(raw)
	}

	var buf strings.Builder
	buf.Grow(len(raw) / 3)
	walkVisible(doc, &buf)

	lines := strings.Split(buf.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRightFunc(collapseSpaceRe.ReplaceAllString(line, " "), unicode.IsSpace)
	}
	text := multiNewlineRe.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(text)
}

// walkVisible writes the visible text of the subtree rooted at n.
func walkVisible(n *html.Node, buf *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		buf.WriteString(n.Data)
		return

	case html.ElementNode:
		if skipTags[n.DataAtom] || isHiddenNode(n) {
			return
		}

		block := isBlockTag(n.DataAtom)
		if block {
			buf.WriteString("\n")
		}
		if level := headingLevel(n.DataAtom); level > 0 {
			buf.WriteString(strings.Repeat("#", level))
			buf.WriteString(" ")
		}
		if n.DataAtom == atom.Li {
			buf.WriteString("- ")
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walkVisible(c, buf)
		}

		if n.DataAtom == atom.Br || n.DataAtom == atom.Hr {
			buf.WriteString("\n")
		}
		if block {
			buf.WriteString("\n")
		}

	default:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walkVisible(c, buf)
		}
	}
}

// isHiddenNode reports elements hidden via attributes or inline style.
func isHiddenNode(n *html.Node) bool {
	for _, a := range n.Attr {
		switch a.Key {
		case "hidden":
			return true
		case "aria-hidden":
			if a.Val == "true" {
				return true
			}
		case "style":
			style := strings.ToLower(strings.ReplaceAll(a.Val, " ", ""))
			if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
				return true
			}
		}
	}
	return false
}

func isBlockTag(a atom.Atom) bool {
	switch a {
	case atom.Div, atom.P, atom.Section, atom.Article, atom.Aside,
		atom.Header, atom.Footer, atom.Nav, atom.Main, atom.Figure,
		atom.Figcaption, atom.Blockquote, atom.Pre, atom.Ul, atom.Ol,
		atom.Li, atom.Dl, atom.Dt, atom.Dd, atom.Table, atom.Tr,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Details, atom.Summary, atom.Form:
		return true
	}
	return false
}

func headingLevel(a atom.Atom) int {
	switch a {
	case atom.H1:
		return 1
	case atom.H2:
		return 2
	case atom.H3:
		return 3
	case atom.H4:
		return 4
	case atom.H5:
		return 5
	case atom.H6:
		return 6
	}
	return 0
}
