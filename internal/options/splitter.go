// Package options splits OCR text of a multiple-choice question into its
// statement and the five lettered option bodies.
package options

import (
	"regexp"
	"strings"
)

// Letters are the option slots in order.
var Letters = []string{"A", "B", "C", "D", "E"}

var (
	// Line-start anchors, tried in order.
	anchors = []*regexp.Regexp{
		regexp.MustCompile(`^[ \t|]*\(([A-E])\)[ \t]+`),
		regexp.MustCompile(`^[ \t|]*\((?:\\mathbf\{)?([A-E])(?:\})?\)[ \t]+`),
		regexp.MustCompile(`^[ \t|]*(?:\\mathbf\{)?([A-E])(?:\})?[\)\.:\-][ \t]+`),
		regexp.MustCompile(`^[ \t|]*([A-E])[ \t]+–[ \t]+`),
	}

	// Prefixes removed from an option body, applied in order after the
	// anchors themselves.
	bodyPrefixes = []*regexp.Regexp{
		regexp.MustCompile(`^[ \t]*\\mathbf\{([A-E])\}[ \t]+`),
		regexp.MustCompile(`^[ \t]*\*\*([A-E])\*\*[ \t]+`),
		regexp.MustCompile(`^[ \t]*\|[ \t]*([A-E])[\)\.:\-]?[ \t]*\|[ \t]+`),
		regexp.MustCompile(`^[ \t]*\|[ \t]*\\mathbf\{([A-E])\}[ \t]*\|[ \t]+`),
		regexp.MustCompile(`^[ \t]*([A-E])[ \t]+[\-–—][ \t]+`),
	}

	boldParenRe  = regexp.MustCompile(`\(\s*\\?mathbf\{([A-E])\}\s*\)`)
	boldCloseRe  = regexp.MustCompile(`\\?mathbf\{([A-E])\}\)`)
	inlineAnchor = regexp.MustCompile(`\((?:\\mathbf\{)?([A-E])(?:\})?\)\s*|\b([A-E])\)\s*`)
)

// Split returns the problem statement and the option bodies keyed by
// letter. The options map is either complete (all five letters) or empty,
// in which case the statement is the whole trimmed text.
//
// Exactly five distinct line anchors split on lines. Fewer, or five with a
// repeated letter, fall back to inline anchors anywhere in the text. More
// than five line anchors are treated as a failed parse.
func Split(text string) (string, map[string]string) {
	t := normalize(text)
	lines := strings.Split(t, "\n")

	var idxs []int
	var letters []string
	for i, raw := range lines {
		line := strings.TrimLeft(raw, " |")
		for _, re := range anchors {
			if m := re.FindStringSubmatch(line); m != nil {
				idxs = append(idxs, i)
				letters = append(letters, m[1])
				break
			}
		}
	}

	switch {
	case len(letters) == len(Letters) && distinct(letters):
		return splitLines(lines, idxs, letters)
	case len(letters) > len(Letters):
		return strings.TrimSpace(text), map[string]string{}
	}
	if stem, parts, ok := splitInline(t); ok {
		return stem, parts
	}
	return strings.TrimSpace(text), map[string]string{}
}

func normalize(text string) string {
	t := strings.ReplaceAll(text, "\r\n", "\n")
	t = strings.ReplaceAll(t, "\r", "\n")
	t = boldParenRe.ReplaceAllString(t, "($1)")
	return boldCloseRe.ReplaceAllString(t, "$1)")
}

func splitLines(lines []string, idxs []int, letters []string) (string, map[string]string) {
	parts := make(map[string]string, len(letters))
	for j, letter := range letters {
		end := len(lines)
		if j+1 < len(idxs) {
			end = idxs[j+1]
		}
		parts[letter] = cleanBody(strings.Join(lines[idxs[j]:end], "\n"))
	}
	stem := strings.TrimSpace(strings.Join(lines[:idxs[0]], "\n"))
	return stem, parts
}

func cleanBody(chunk string) string {
	for _, re := range anchors {
		chunk = re.ReplaceAllString(chunk, "")
	}
	for _, re := range bodyPrefixes {
		chunk = re.ReplaceAllString(chunk, "")
	}
	return strings.TrimSpace(chunk)
}

// splitInline looks for "(A)" or "A)" anywhere in the text and keeps the
// first segment per letter. It succeeds only when all five were found.
func splitInline(t string) (string, map[string]string, bool) {
	body := strings.ReplaceAll(t, "$$", " ")
	matches := inlineAnchor.FindAllStringSubmatchIndex(body, -1)
	if len(matches) == 0 {
		return "", nil, false
	}

	parts := make(map[string]string, len(Letters))
	for i, m := range matches {
		letter := submatch(body, m, 1)
		if letter == "" {
			letter = submatch(body, m, 2)
		}
		end := len(body)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		if _, seen := parts[letter]; !seen {
			parts[letter] = strings.TrimSpace(body[m[1]:end])
		}
	}
	for _, l := range Letters {
		if _, ok := parts[l]; !ok {
			return "", nil, false
		}
	}
	return strings.TrimSpace(body[:matches[0][0]]), parts, true
}

func submatch(s string, loc []int, group int) string {
	if loc[2*group] < 0 {
		return ""
	}
	return s[loc[2*group]:loc[2*group+1]]
}

func distinct(letters []string) bool {
	seen := make(map[string]bool, len(letters))
	for _, l := range letters {
		if seen[l] {
			return false
		}
		seen[l] = true
	}
	return true
}
