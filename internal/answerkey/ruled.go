package answerkey

import (
	"sort"
	"strings"

	"github.com/a3tai/exam-dataset/internal/geometry"
	"github.com/a3tai/exam-dataset/internal/pdf"
)

const (
	ruleThickness   = 2.0
	minRuleLength   = 5.0
	ruleJoinTol     = 3.0
	ruleMergeTol    = 1.5
	maxCellAreaFrac = 0.5
)

// RuledTable is a grid recovered from ruling lines. Rows hold the text of
// each cell, left to right.
type RuledTable struct {
	Rect geometry.Rect
	Rows [][]string
}

// RowPairs scans consecutive rows whose first cells read Aufgabe and
// Antwort. Labels and answers are the non-empty cells after the caption.
func (t RuledTable) RowPairs() []RowPair {
	var out []RowPair
	for i := 0; i+1 < len(t.Rows); i++ {
		r0, r1 := t.Rows[i], t.Rows[i+1]
		if len(r0) == 0 || len(r1) == 0 {
			continue
		}
		if !isTaskAnchor(r0[0]) || !isAnswerAnchor(r1[0]) {
			continue
		}
		labels := nonEmpty(r0[1:])
		answers := nonEmpty(r1[1:])
		if len(labels) == 0 || len(answers) == 0 {
			continue
		}
		out = append(out, RowPair{Labels: labels, Answers: alignAnswers(answers, len(labels)), Rect: t.Rect})
	}
	return out
}

func nonEmpty(cells []string) []string {
	var out []string
	for _, c := range cells {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

type rule struct {
	rect       geometry.Rect
	horizontal bool
}

// RuledTables builds tables from the page's vector rectangles. Thin
// rectangles are ruling lines; the edges of larger cell rectangles count
// too, except for page-sized backgrounds. Rules that touch are joined into
// one table, and a table needs at least two rules in each direction.
func RuledTables(rects []geometry.Rect, words []pdf.Word, bounds geometry.Rect) []RuledTable {
	rules := collectRules(rects, bounds)
	if len(rules) == 0 {
		return nil
	}

	boxes := make([]geometry.Rect, len(rules))
	for i, r := range rules {
		boxes[i] = r.rect
	}
	var tables []RuledTable
	for _, tb := range geometry.ClusterRects(boxes, ruleJoinTol) {
		var ys, xs []float64
		for _, r := range rules {
			if !geometry.Near(r.rect, tb, ruleJoinTol) {
				continue
			}
			c := r.rect.Center()
			if r.horizontal {
				ys = append(ys, c.Y)
			} else {
				xs = append(xs, c.X)
			}
		}
		ys, xs = dedupeSorted(ys), dedupeSorted(xs)
		if len(ys) < 2 || len(xs) < 2 {
			continue
		}
		tables = append(tables, RuledTable{Rect: tb, Rows: fillGrid(ys, xs, words)})
	}
	sort.SliceStable(tables, func(i, j int) bool {
		if tables[i].Rect.Y0 != tables[j].Rect.Y0 {
			return tables[i].Rect.Y0 < tables[j].Rect.Y0
		}
		return tables[i].Rect.X0 < tables[j].Rect.X0
	})
	return tables
}

func collectRules(rects []geometry.Rect, bounds geometry.Rect) []rule {
	var rules []rule
	maxArea := maxCellAreaFrac * bounds.Area()
	for _, r := range rects {
		w, h := r.Width(), r.Height()
		switch {
		case h <= ruleThickness && w >= minRuleLength:
			rules = append(rules, rule{rect: r, horizontal: true})
		case w <= ruleThickness && h >= minRuleLength:
			rules = append(rules, rule{rect: r})
		case w > ruleThickness && h > ruleThickness && r.Area() <= maxArea:
			rules = append(rules,
				rule{rect: geometry.Rect{X0: r.X0, Y0: r.Y0, X1: r.X1, Y1: r.Y0}, horizontal: true},
				rule{rect: geometry.Rect{X0: r.X0, Y0: r.Y1, X1: r.X1, Y1: r.Y1}, horizontal: true},
				rule{rect: geometry.Rect{X0: r.X0, Y0: r.Y0, X1: r.X0, Y1: r.Y1}},
				rule{rect: geometry.Rect{X0: r.X1, Y0: r.Y0, X1: r.X1, Y1: r.Y1}},
			)
		}
	}
	return rules
}

// dedupeSorted sorts vs and merges values closer than ruleMergeTol.
func dedupeSorted(vs []float64) []float64 {
	sort.Float64s(vs)
	var out []float64
	for _, v := range vs {
		if n := len(out); n > 0 && v-out[n-1] < ruleMergeTol {
			continue
		}
		out = append(out, v)
	}
	return out
}

// fillGrid assigns every word whose centre falls inside the grid to its
// cell and drops rows without any text.
func fillGrid(ys, xs []float64, words []pdf.Word) [][]string {
	cells := make([][][]pdf.Word, len(ys)-1)
	for i := range cells {
		cells[i] = make([][]pdf.Word, len(xs)-1)
	}
	for _, w := range words {
		c := w.Rect.Center()
		row := bandIndex(ys, c.Y)
		col := bandIndex(xs, c.X)
		if row < 0 || col < 0 {
			continue
		}
		cells[row][col] = append(cells[row][col], w)
	}

	var rows [][]string
	for _, r := range cells {
		texts := make([]string, len(r))
		hasText := false
		for j, ws := range r {
			sort.SliceStable(ws, func(a, b int) bool { return ws[a].Rect.X0 < ws[b].Rect.X0 })
			parts := make([]string, 0, len(ws))
			for _, w := range ws {
				parts = append(parts, strings.TrimSpace(w.Text))
			}
			texts[j] = strings.TrimSpace(strings.Join(parts, " "))
			if texts[j] != "" {
				hasText = true
			}
		}
		if hasText {
			rows = append(rows, texts)
		}
	}
	return rows
}

// bandIndex returns i such that edges[i] <= v < edges[i+1], or -1.
func bandIndex(edges []float64, v float64) int {
	i := sort.SearchFloat64s(edges, v)
	if i < len(edges) && edges[i] == v {
		i++
	}
	i--
	if i < 0 || i >= len(edges)-1 {
		return -1
	}
	return i
}
