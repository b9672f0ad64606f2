// Package mailtext turns email bodies into plain text that line-oriented patterns can search.
package mailtext

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	htmlMarker = regexp.MustCompile(`(?i)<\s*(?:html|body|div|table|td|p|br|span|b)\b`)
	spaceRun   = regexp.MustCompile(`[ \t\f\v\x{00a0}\x{200b}]+`)
	blankLines = regexp.MustCompile(`\n{3,}`)
)

// LooksLikeHTML reports whether s appears to contain HTML markup.
func LooksLikeHTML(s string) bool {
	return htmlMarker.MatchString(s)
}

// StripHTML converts an HTML document into plain text. Block-level tags become
// line breaks, table cells become spaces, entities are decoded and the result
// is normalized. Text inside script, style, title and comments is dropped.
func StripHTML(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	z.AllowCDATA(true)

	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			// A string reader only ends with io.EOF.
			return Normalize(b.String())
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if hidden(a) {
				skip++
				continue
			}
			b.WriteString(separator(a))
		case html.SelfClosingTagToken:
			name, _ := z.TagName()
			b.WriteString(separator(atom.Lookup(name)))
		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if hidden(a) {
				if skip > 0 {
					skip--
				}
				continue
			}
			b.WriteString(separator(a))
		}
	}
}

func hidden(a atom.Atom) bool {
	switch a {
	case atom.Script, atom.Style, atom.Title, atom.Noscript:
		return true
	}
	return false
}

func separator(a atom.Atom) string {
	switch a {
	case atom.Br, atom.P, atom.Div, atom.Tr, atom.Li, atom.Table,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		return "\n"
	case atom.Td, atom.Th:
		return " "
	}
	return ""
}

// Normalize unifies line endings, collapses horizontal whitespace, trims every
// line and squeezes runs of blank lines. Line structure is kept.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
	}

	s = strings.Join(lines, "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// PlainText returns a normalized plain-text view of body, stripping markup
// when the body looks like HTML.
func PlainText(body string) string {
	if LooksLikeHTML(body) {
		return StripHTML(body)
	}
	return Normalize(body)
}
