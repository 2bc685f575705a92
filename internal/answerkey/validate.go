package answerkey

import (
	"fmt"
	"sort"
)

const (
	minPlausibleLabels = 5
	maxPlausibleLabels = 30
	previewLimit       = 10
)

// Validate runs structural checks over a finalized year and returns one
// human-readable warning per problem. Groups are checked in key order.
func Validate(out *YearOutput) []string {
	var warnings []string
	if out == nil || len(out.GradeGroups) == 0 {
		return []string{"no grade_groups produced"}
	}

	groups := make([]string, 0, len(out.GradeGroups))
	for g := range out.GradeGroups {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	for _, group := range groups {
		g := out.GradeGroups[group]
		warnings = append(warnings, validateGroup(group, g)...)
	}
	return warnings
}

func validateGroup(group string, g GroupResult) []string {
	var warnings []string
	warn := func(format string, args ...any) {
		warnings = append(warnings, group+": "+fmt.Sprintf(format, args...))
	}

	if g.Counts != len(g.Order) {
		warn("counts field %d != len(order) %d", g.Counts, len(g.Order))
	}

	inOrder := make(map[string]bool, len(g.Order))
	dupSet := make(map[string]bool)
	for _, l := range g.Order {
		if inOrder[l] {
			dupSet[l] = true
		}
		inOrder[l] = true
	}
	if len(dupSet) > 0 {
		dups := make([]string, 0, len(dupSet))
		for l := range dupSet {
			dups = append(dups, l)
		}
		sort.Strings(dups)
		warn("duplicate labels in order: %v", preview(dups))
	}

	if g.Scheme != SchemeNumeric && g.Scheme != SchemeABC {
		warn("unknown scheme '%s'", g.Scheme)
	}
	var bad []string
	for _, l := range g.Order {
		ok := numericLabelRe.MatchString(l)
		if g.Scheme == SchemeABC {
			ok = abcLabelRe.MatchString(l)
		}
		if !ok {
			bad = append(bad, l)
		}
	}
	if len(bad) > 0 {
		warn("labels not matching scheme %s: %v", g.Scheme, preview(bad))
	}

	if n := len(g.Order); n < minPlausibleLabels || n > maxPlausibleLabels {
		warn("unusual label count %d (expected %d..%d)", n, minPlausibleLabels, maxPlausibleLabels)
	}

	var badAnswers, extra []string
	for _, l := range sortedKeys(g.AnswersByLabel) {
		switch g.AnswersByLabel[l] {
		case "A", "B", "C", "D", "E":
		default:
			badAnswers = append(badAnswers, l)
		}
		if !inOrder[l] {
			extra = append(extra, l)
		}
	}
	if len(badAnswers) > 0 {
		warn("non A-E answers for labels %v", preview(badAnswers))
	}
	if len(extra) > 0 {
		warn("answers for unknown labels %v", preview(extra))
	}

	declared := make(map[string]bool, len(g.MissingAnswers))
	for _, l := range g.MissingAnswers {
		declared[l] = true
	}
	var undisclosed []string
	for _, l := range g.Order {
		if _, ok := g.AnswersByLabel[l]; !ok && !declared[l] {
			undisclosed = append(undisclosed, l)
		}
	}
	if len(undisclosed) > 0 {
		warn("%d missing answers not listed in missing_answers (e.g., %v)", len(undisclosed), preview(undisclosed))
	}
	return warnings
}

func preview(labels []string) []string {
	if len(labels) > previewLimit {
		return labels[:previewLimit]
	}
	return labels
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
