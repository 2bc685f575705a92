package answerkey

import (
	"regexp"
	"strings"
)

// Label schemes.
const (
	SchemeNumeric = "numeric"
	SchemeABC     = "abc"
)

var (
	answerLetterRe = regexp.MustCompile(`^[A-E]`)
	numericLabelRe = regexp.MustCompile(`^[0-9]{1,2}$`)
	abcLabelRe     = regexp.MustCompile(`^[A-C][0-9]{1,2}$`)
	// rowLabelRe is looser than the scheme patterns; it only decides whether
	// a token in an Aufgabe row looks like a label at all.
	rowLabelRe = regexp.MustCompile(`^[A-Z]?[0-9]{1,2}$`)
)

// NormalizeLabel trims whitespace and surrounding punctuation from a task
// label such as "12." or "B3:".
func NormalizeLabel(s string) string {
	return strings.Trim(strings.TrimSpace(s), " .:;,-")
}

// NormalizeAnswer returns the leading answer letter A-E of s, upper-cased,
// or "" when s does not start with one.
func NormalizeAnswer(s string) string {
	return answerLetterRe.FindString(strings.ToUpper(strings.TrimSpace(s)))
}

// IsValidLabel reports whether s is a numeric ("7") or lettered ("B10")
// task label.
func IsValidLabel(s string) bool {
	return numericLabelRe.MatchString(s) || abcLabelRe.MatchString(s)
}

// GuessScheme returns SchemeABC when any label starts with a letter.
func GuessScheme(labels []string) string {
	for _, l := range labels {
		if startsWithLetter(l) {
			return SchemeABC
		}
	}
	return SchemeNumeric
}

func hasPrefixFold(s, prefix string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(s)), prefix)
}

func isTaskAnchor(s string) bool   { return hasPrefixFold(s, "aufgabe") }
func isAnswerAnchor(s string) bool { return hasPrefixFold(s, "antwort") }
