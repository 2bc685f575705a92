package answerkey

import (
	"math"
	"sort"
	"strings"

	"github.com/a3tai/exam-dataset/internal/geometry"
	"github.com/a3tai/exam-dataset/internal/pdf"
)

const (
	rowTolerance    = 5.0
	rowLeftSlack    = 4.0
	pairWindow      = 24.0
	neighbourWindow = 20.0
	clusterGapX     = 40.0
	minRowLabels    = 5
)

// Association is a row-pair with the grade group it was assigned to. An
// empty Group means no heading could be matched.
type Association struct {
	Pair  RowPair
	Group string
}

// Strategy finds Aufgabe/Antwort row-pairs on one page. Finding nothing is
// not an error; it returns an empty slice and the next strategy is tried.
// A fallback strategy only runs on pages without heading-derived regions.
type Strategy interface {
	Name() string
	Fallback() bool
	Extract(page *pdf.PageLayout, headings []Heading) []Association
}

// DefaultStrategies returns the strategies in decreasing confidence.
func DefaultStrategies() []Strategy {
	return []Strategy{
		RegionStrategy{},
		RuledTableStrategy{},
		BandStrategy{},
		LinePairStrategy{},
	}
}

// RegionStrategy extracts row-pairs inside the region framed below each
// grade heading, so every row-pair is associated by construction.
type RegionStrategy struct{}

func (RegionStrategy) Name() string { return "region" }

func (RegionStrategy) Fallback() bool { return false }

func (RegionStrategy) Extract(page *pdf.PageLayout, headings []Heading) []Association {
	regions := GroupRegions(page.Bounds(), headings)
	groups := make([]string, 0, len(regions))
	for g := range regions {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		a, b := regions[groups[i]], regions[groups[j]]
		if a.Y0 != b.Y0 {
			return a.Y0 < b.Y0
		}
		return a.X0 < b.X0
	})

	var out []Association
	for _, g := range groups {
		for _, rp := range RegionRowPairs(page.Words, regions[g]) {
			out = append(out, Association{Pair: rp, Group: g})
		}
	}
	return out
}

// RegionRowPairs pairs Aufgabe and Antwort rows whose words lie inside
// region. Aufgabe rows with fewer than five labels are dropped as footnote
// mentions; each is paired with the nearest unused Antwort anchor within a
// 24pt vertical window.
func RegionRowPairs(words []pdf.Word, region geometry.Rect) []RowPair {
	var inside []pdf.Word
	for _, w := range words {
		if region.ContainsPoint(w.Rect.Center()) {
			inside = append(inside, w)
		}
	}
	tasks, answers := splitAnchors(inside)
	if len(tasks) == 0 || len(answers) == 0 {
		return nil
	}

	collect := func(anchor int) ([]string, geometry.Rect) {
		return rowTokens(inside, anchor)
	}
	labelRows := buildLabelRows(tasks, collect)
	if len(labelRows) == 0 || !anyAnswerTokens(answers, collect) {
		return nil
	}

	candidates := make([]anchorRow, 0, len(answers))
	for _, a := range answers {
		toks, rect := collect(a)
		candidates = append(candidates, anchorRow{anchor: inside[a], tokens: answerTokens(toks), rect: rect})
	}
	return pairRows(inside, labelRows, candidates)
}

// BandStrategy works page-wide. Tokens to the right of each anchor are
// split into x-clusters so that side-by-side tables are kept apart, and the
// cluster closest to the anchor wins.
type BandStrategy struct{}

func (BandStrategy) Name() string { return "bands" }

func (BandStrategy) Fallback() bool { return true }

func (BandStrategy) Extract(page *pdf.PageLayout, headings []Heading) []Association {
	return associateAll(headings, BandRowPairs(page.Words, page.Bounds()))
}

// BandRowPairs implements BandStrategy over raw words.
func BandRowPairs(words []pdf.Word, bounds geometry.Rect) []RowPair {
	tasks, answers := splitAnchors(words)
	if len(tasks) == 0 || len(answers) == 0 {
		return nil
	}
	anchors := make(map[int]bool, len(tasks)+len(answers))
	for _, i := range tasks {
		anchors[i] = true
	}
	for _, i := range answers {
		anchors[i] = true
	}
	midX := (bounds.X0 + bounds.X1) / 2

	collect := func(anchor int) ([]string, geometry.Rect) {
		return bandTokens(words, anchor, anchors, midX)
	}
	labelRows := buildLabelRows(tasks, collect)

	var answerRows []anchorRow
	for _, a := range answers {
		toks, rect := collect(a)
		toks = answerTokens(toks)
		if len(toks) == 0 {
			continue
		}
		answerRows = append(answerRows, anchorRow{anchor: words[a], tokens: toks, rect: rect})
	}
	if len(labelRows) == 0 || len(answerRows) == 0 {
		return nil
	}
	return pairRows(words, labelRows, answerRows)
}

// bandTokens collects the cluster of same-row tokens nearest to the anchor,
// bounded by the next anchor to the right and by the page column.
func bandTokens(words []pdf.Word, anchor int, anchors map[int]bool, midX float64) ([]string, geometry.Rect) {
	a := words[anchor]
	ax1 := a.Rect.X1
	ay := a.Rect.Center().Y
	empty := geometry.Rect{X0: ax1, Y0: a.Rect.Y0, X1: ax1, Y1: a.Rect.Y1}

	rightBound, hasBound := math.Inf(1), false
	for i := range anchors {
		w := words[i]
		if i == anchor || absf(w.Rect.Center().Y-ay) > neighbourWindow || w.Rect.X0 <= ax1 {
			continue
		}
		if w.Rect.X0 < rightBound {
			rightBound, hasBound = w.Rect.X0, true
		}
	}
	var keep func(x float64) bool
	if a.Rect.X0 < midX {
		bound := midX
		if hasBound {
			bound = min((ax1+rightBound)/2, midX)
		}
		keep = func(x float64) bool { return x < bound }
	} else {
		bound := midX
		if hasBound {
			bound = max((ax1+rightBound)/2, midX)
		}
		keep = func(x float64) bool { return x > bound }
	}

	var cands []pdf.Word
	for i, w := range words {
		if i == anchor {
			continue
		}
		if absf(w.Rect.Center().Y-ay) <= rowTolerance && w.Rect.X0 >= ax1-rowLeftSlack {
			cands = append(cands, w)
		}
	}
	if len(cands) == 0 {
		return nil, empty
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Rect.X0 < cands[j].Rect.X0 })

	var clusters [][]pdf.Word
	for _, w := range cands {
		if n := len(clusters); n > 0 && w.Rect.X0-clusters[n-1][len(clusters[n-1])-1].Rect.X0 <= clusterGapX {
			clusters[n-1] = append(clusters[n-1], w)
			continue
		}
		clusters = append(clusters, []pdf.Word{w})
	}
	chosen := clusters[0]
	bestDist := absf(meanX0(chosen) - ax1)
	for _, c := range clusters[1:] {
		if d := absf(meanX0(c) - ax1); d < bestDist {
			chosen, bestDist = c, d
		}
	}

	var toks []string
	var rect geometry.Rect
	for _, w := range chosen {
		if !keep(w.Rect.X0) {
			continue
		}
		toks = append(toks, strings.TrimSpace(w.Text))
		rect = rect.Union(w.Rect)
	}
	if len(toks) == 0 {
		return nil, empty
	}
	return toks, rect
}

func meanX0(ws []pdf.Word) float64 {
	var sum float64
	for _, w := range ws {
		sum += w.Rect.X0
	}
	return sum / float64(max(1, len(ws)))
}

// RuledTableStrategy reads tables drawn with ruling lines. Thin vector
// rectangles form the grid; words are assigned to cells by their centre,
// and consecutive rows starting with Aufgabe and Antwort become a row-pair.
type RuledTableStrategy struct{}

func (RuledTableStrategy) Name() string { return "ruled-table" }

func (RuledTableStrategy) Fallback() bool { return true }

func (RuledTableStrategy) Extract(page *pdf.PageLayout, headings []Heading) []Association {
	var pairs []RowPair
	for _, t := range RuledTables(page.Rects, page.Words, page.Bounds()) {
		pairs = append(pairs, t.RowPairs()...)
	}
	return associateAll(headings, pairs)
}

// LinePairStrategy pairs an Aufgabe line with an Antwort line directly
// below it in reading order.
type LinePairStrategy struct{}

func (LinePairStrategy) Name() string { return "line-pairs" }

func (LinePairStrategy) Fallback() bool { return true }

func (LinePairStrategy) Extract(page *pdf.PageLayout, headings []Heading) []Association {
	return associateAll(headings, LineRowPairs(page.Lines))
}

// LineRowPairs implements LinePairStrategy over layout lines.
func LineRowPairs(lines []pdf.Line) []RowPair {
	var out []RowPair
	for i := 0; i < len(lines)-1; i++ {
		w0, w1 := lines[i].Words, lines[i+1].Words
		if len(w0) == 0 || len(w1) == 0 {
			continue
		}
		if !isTaskAnchor(w0[0].Text) || !isAnswerAnchor(w1[0].Text) {
			continue
		}
		var labels, answers []string
		for _, w := range w0[1:] {
			if l := NormalizeLabel(w.Text); l != "" {
				labels = append(labels, l)
			}
		}
		for _, w := range w1[1:] {
			if a := NormalizeAnswer(w.Text); a != "" {
				answers = append(answers, a)
			}
		}
		if len(labels) > 0 {
			out = append(out, RowPair{
				Labels:  labels,
				Answers: alignAnswers(answers, len(labels)),
				Rect:    lines[i].Rect.Union(lines[i+1].Rect),
			})
		}
		i++
	}
	return out
}

type anchorRow struct {
	anchor pdf.Word
	tokens []string
	rect   geometry.Rect
}

// splitAnchors returns the indexes of Aufgabe and Antwort words, each
// sorted by (y0, x0).
func splitAnchors(words []pdf.Word) (tasks, answers []int) {
	for i, w := range words {
		switch {
		case isTaskAnchor(w.Text):
			tasks = append(tasks, i)
		case isAnswerAnchor(w.Text):
			answers = append(answers, i)
		}
	}
	byPos := func(idx []int) {
		sort.SliceStable(idx, func(i, j int) bool {
			a, b := words[idx[i]].Rect, words[idx[j]].Rect
			if a.Y0 != b.Y0 {
				return a.Y0 < b.Y0
			}
			return a.X0 < b.X0
		})
	}
	byPos(tasks)
	byPos(answers)
	return tasks, answers
}

// rowTokens returns the words on the anchor's row to its right, in x
// order, with their union rectangle.
func rowTokens(words []pdf.Word, anchor int) ([]string, geometry.Rect) {
	a := words[anchor]
	ay := a.Rect.Center().Y
	var row []pdf.Word
	for i, w := range words {
		if i == anchor {
			continue
		}
		if absf(w.Rect.Center().Y-ay) <= rowTolerance && w.Rect.X0 >= a.Rect.X1-rowLeftSlack {
			row = append(row, w)
		}
	}
	if len(row) == 0 {
		return nil, geometry.Rect{X0: a.Rect.X1, Y0: a.Rect.Y0, X1: a.Rect.X1, Y1: a.Rect.Y1}
	}
	sort.SliceStable(row, func(i, j int) bool { return row[i].Rect.X0 < row[j].Rect.X0 })
	toks := make([]string, 0, len(row))
	var rect geometry.Rect
	for _, w := range row {
		toks = append(toks, strings.TrimSpace(w.Text))
		rect = rect.Union(w.Rect)
	}
	return toks, rect
}

type labelRow struct {
	anchor int
	labels []string
	rect   geometry.Rect
}

func buildLabelRows(tasks []int, collect func(int) ([]string, geometry.Rect)) []labelRow {
	var rows []labelRow
	for _, t := range tasks {
		toks, rect := collect(t)
		var labels []string
		for _, tok := range toks {
			if tok == "" || strings.EqualFold(tok, "aufgabe") {
				continue
			}
			if l := NormalizeLabel(tok); rowLabelRe.MatchString(l) {
				labels = append(labels, l)
			}
		}
		if len(labels) >= minRowLabels {
			rows = append(rows, labelRow{anchor: t, labels: labels, rect: rect})
		}
	}
	return rows
}

// answerTokens drops blanks and a repeated "Antwort" caption.
func answerTokens(toks []string) []string {
	var out []string
	for _, t := range toks {
		if t == "" || strings.EqualFold(t, "antwort") {
			continue
		}
		out = append(out, t)
	}
	return out
}

func anyAnswerTokens(answers []int, collect func(int) ([]string, geometry.Rect)) bool {
	for _, a := range answers {
		toks, _ := collect(a)
		if len(answerTokens(toks)) > 0 {
			return true
		}
	}
	return false
}

func normalizeAll(toks []string) []string {
	out := make([]string, len(toks))
	for i, t := range toks {
		out[i] = NormalizeAnswer(t)
	}
	return out
}

// pairRows matches every label row with the nearest unused answer row
// within the pairing window. Answer tokens are normalized positionally so
// that blanks keep the alignment with labels.
func pairRows(words []pdf.Word, labels []labelRow, answers []anchorRow) []RowPair {
	used := make([]bool, len(answers))
	var out []RowPair
	for _, lr := range labels {
		ay := words[lr.anchor].Rect.Center().Y
		best, bestDist := -1, math.Inf(1)
		for j, ar := range answers {
			if used[j] {
				continue
			}
			d := absf(ar.anchor.Rect.Center().Y - ay)
			if d < bestDist && d <= pairWindow {
				best, bestDist = j, d
			}
		}
		if best < 0 {
			continue
		}
		used[best] = true
		out = append(out, RowPair{
			Labels:  lr.labels,
			Answers: alignAnswers(normalizeAll(answers[best].tokens), len(lr.labels)),
			Rect:    lr.rect.Union(answers[best].rect),
		})
	}
	return out
}

// alignAnswers pads with blanks or truncates to n entries.
func alignAnswers(answers []string, n int) []string {
	out := make([]string, n)
	copy(out, answers)
	return out
}

func associateAll(headings []Heading, pairs []RowPair) []Association {
	out := make([]Association, 0, len(pairs))
	for _, rp := range pairs {
		out = append(out, Association{Pair: rp, Group: AssociateGroup(headings, rp.Rect)})
	}
	return out
}
