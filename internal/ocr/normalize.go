package ocr

import (
	"html"
	"regexp"
	"strings"

	xhtml "golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// Only these tags trigger HTML parsing; a bare "<" in a formula must survive.
var layoutTagRe = regexp.MustCompile(`(?i)</?(br|p|div|li|sup|sub|table|tr|td|th)\b[^>]*>`)

// NormalizeText flattens the HTML fragments some engines emit, composes
// Unicode to NFC, strips trailing spaces and collapses runs of blank lines.
func NormalizeText(s string) string {
	if layoutTagRe.MatchString(s) {
		s = flattenHTML(s)
	}
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\u00a0", " ")

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, l := range lines {
		l = strings.TrimRight(l, " \t")
		if l == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// flattenHTML keeps the text of s and maps layout tags to plain text: line
// breaks and rows become newlines, cells are separated by pipes and
// superscripts become "^".
func flattenHTML(s string) string {
	z := xhtml.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case xhtml.ErrorToken:
			return b.String()
		case xhtml.TextToken:
			b.WriteString(html.UnescapeString(string(z.Raw())))
		case xhtml.StartTagToken, xhtml.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "br", "p", "div", "li":
				b.WriteByte('\n')
			case "sup":
				b.WriteByte('^')
			case "sub":
				b.WriteByte('_')
			case "td", "th":
				b.WriteString("| ")
			}
		case xhtml.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "tr":
				b.WriteString("|\n")
			case "td", "th":
				b.WriteByte(' ')
			case "p", "div":
				b.WriteByte('\n')
			}
		}
	}
}
