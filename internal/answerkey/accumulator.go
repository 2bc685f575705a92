package answerkey

import (
	"sort"
	"time"
	"unicode"

	"github.com/a3tai/exam-dataset/internal/geometry"
)

// Heading is a "Klassenstufen X und/bis Y" line naming a grade group.
type Heading struct {
	Group string        `json:"group"`
	Rect  geometry.Rect `json:"bbox"`
}

// CenterY returns the vertical centre of the heading.
func (h Heading) CenterY() float64 { return h.Rect.Center().Y }

// RowPair is one Aufgabe row with its Antwort row. Labels and Answers are
// aligned by position; a blank answer means the key discloses none for that
// label.
type RowPair struct {
	Labels  []string      `json:"labels"`
	Answers []string      `json:"answers"`
	Rect    geometry.Rect `json:"bbox"`
}

// GroupResult is the finalized key of one grade group.
type GroupResult struct {
	Scheme         string            `json:"scheme"`
	AnswersByLabel map[string]string `json:"answers_by_label"`
	Order          []string          `json:"order"`
	Counts         int               `json:"counts"`
	MissingAnswers []string          `json:"missing_answers,omitempty"`
}

// YearOutput is the per-year document written to <year>.json.
type YearOutput struct {
	Year               int                    `json:"year"`
	SourcePDF          string                 `json:"source_pdf"`
	ExtractedAt        string                 `json:"extracted_at"`
	GradeGroups        map[string]GroupResult `json:"grade_groups"`
	Warnings           []string               `json:"warnings,omitempty"`
	ValidationWarnings []string               `json:"validation_warnings,omitempty"`
}

// YearAccumulator collects row-pairs per grade group across all pages that
// belong to one year.
type YearAccumulator struct {
	Year      int
	SourcePDF string
	Warnings  []string

	perGroup map[string][]RowPair
}

// NewYearAccumulator creates an empty accumulator.
func NewYearAccumulator(year int, sourcePDF string) *YearAccumulator {
	return &YearAccumulator{
		Year:      year,
		SourcePDF: sourcePDF,
		perGroup:  make(map[string][]RowPair),
	}
}

// Add records a row-pair for group.
func (a *YearAccumulator) Add(group string, pair RowPair) {
	a.perGroup[group] = append(a.perGroup[group], pair)
}

// Groups returns the number of groups seen so far.
func (a *YearAccumulator) Groups() int { return len(a.perGroup) }

// Finalize flattens every group's row-pairs in page-flow order. A label
// repeated across row-pairs keeps its first position in Order while the
// last non-blank answer wins.
func (a *YearAccumulator) Finalize(extractedAt time.Time) *YearOutput {
	out := &YearOutput{
		Year:        a.Year,
		SourcePDF:   a.SourcePDF,
		ExtractedAt: extractedAt.UTC().Format(time.RFC3339),
		GradeGroups: make(map[string]GroupResult, len(a.perGroup)),
	}
	if len(a.Warnings) > 0 {
		out.Warnings = append([]string(nil), a.Warnings...)
	}
	for group, pairs := range a.perGroup {
		out.GradeGroups[group] = finalizeGroup(pairs)
	}
	return out
}

func finalizeGroup(pairs []RowPair) GroupResult {
	sorted := append([]RowPair(nil), pairs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Rect.Y0 != sorted[j].Rect.Y0 {
			return sorted[i].Rect.Y0 < sorted[j].Rect.Y0
		}
		return sorted[i].Rect.X0 < sorted[j].Rect.X0
	})

	answers := make(map[string]string)
	seen := make(map[string]bool)
	missingSet := make(map[string]bool)
	var order []string

	for _, p := range sorted {
		n := min(len(p.Labels), len(p.Answers))
		for i := 0; i < n; i++ {
			label := NormalizeLabel(p.Labels[i])
			if label == "" || !IsValidLabel(label) {
				continue
			}
			if !seen[label] {
				seen[label] = true
				order = append(order, label)
			}
			if ans := NormalizeAnswer(p.Answers[i]); ans != "" {
				answers[label] = ans
			} else {
				missingSet[label] = true
			}
		}
	}

	res := GroupResult{
		Scheme:         GuessScheme(order),
		AnswersByLabel: answers,
		Order:          order,
		Counts:         len(order),
	}
	if res.Order == nil {
		res.Order = []string{}
	}
	if len(missingSet) > 0 {
		res.MissingAnswers = sortedLabels(missingSet)
	}
	return res
}

// sortedLabels orders numeric labels before lettered ones, each group
// lexically.
func sortedLabels(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for l := range set {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := startsWithLetter(out[i]), startsWithLetter(out[j])
		if ai != aj {
			return !ai
		}
		return out[i] < out[j]
	})
	return out
}

func startsWithLetter(s string) bool {
	for _, r := range s {
		return unicode.IsLetter(r)
	}
	return false
}
