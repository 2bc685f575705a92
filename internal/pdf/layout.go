package pdf

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/a3tai/exam-dataset/internal/geometry"
)

// LayoutOptions tunes how glyphs are grouped into words and lines.
type LayoutOptions struct {
	RowTolerance        float64 // baseline tolerance, in points, for the same row
	WordSpaceMultiplier float64 // gap, as a multiple of font size, that starts a new word
	LineBreakMultiplier float64 // gap, as a multiple of font size, that splits a row into separate lines
}

// DefaultLayoutOptions returns the grouping used for exam pages.
func DefaultLayoutOptions() LayoutOptions {
	return LayoutOptions{
		RowTolerance:        3.0,
		WordSpaceMultiplier: 0.3,
		LineBreakMultiplier: 2.5,
	}
}

// Glyph is one positioned text run in top-left page coordinates. Baseline
// grows downwards.
type Glyph struct {
	Text     string
	X        float64
	Baseline float64
	W        float64
	FontSize float64
	Font     string
}

func (g Glyph) rect() geometry.Rect {
	size := g.FontSize
	if size <= 0 {
		size = 10
	}
	return geometry.NewRect(g.X, g.Baseline-0.8*size, g.X+g.W, g.Baseline+0.2*size)
}

// Word is a run of glyphs without an inner space.
type Word struct {
	Text     string        `json:"text"`
	Rect     geometry.Rect `json:"rect"`
	Font     string        `json:"font,omitempty"`
	FontSize float64       `json:"font_size"`
}

// Span is a run of consecutive words sharing a font and size.
type Span struct {
	Text     string        `json:"text"`
	Rect     geometry.Rect `json:"rect"`
	Font     string        `json:"font,omitempty"`
	FontSize float64       `json:"font_size"`
}

// Line is a horizontal run of words on one row that is not broken by a wide
// gap.
type Line struct {
	Text  string        `json:"text"`
	Rect  geometry.Rect `json:"rect"`
	Words []Word        `json:"words"`
	Spans []Span        `json:"spans"`
}

// FirstSpan returns the leading span, or a zero Span for an empty line.
func (l Line) FirstSpan() Span {
	if len(l.Spans) == 0 {
		return Span{}
	}
	return l.Spans[0]
}

// PageLayout is the text and vector geometry of one page in points with a
// top-left origin.
type PageLayout struct {
	PageIndex int             `json:"page_index"`
	Width     float64         `json:"width"`
	Height    float64         `json:"height"`
	Lines     []Line          `json:"lines"`
	Words     []Word          `json:"words"`
	Rects     []geometry.Rect `json:"rects"`
}

// Bounds returns the page rectangle.
func (p *PageLayout) Bounds() geometry.Rect {
	return geometry.Rect{X1: p.Width, Y1: p.Height}
}

// GroupLines turns loose glyphs into lines ordered top to bottom, left to
// right.
func GroupLines(glyphs []Glyph, opts LayoutOptions) []Line {
	rows := groupIntoRows(glyphs, opts.RowTolerance)

	var lines []Line
	for _, row := range rows {
		sort.SliceStable(row, func(i, j int) bool { return row[i].X < row[j].X })
		for _, segment := range splitRow(row, opts.LineBreakMultiplier) {
			words := glyphsToWords(segment, opts.WordSpaceMultiplier)
			if len(words) == 0 {
				continue
			}
			lines = append(lines, newLine(words))
		}
	}
	return lines
}

type rowBucket struct {
	yMin, yMax float64
	glyphs     []Glyph
}

func groupIntoRows(glyphs []Glyph, tolerance float64) [][]Glyph {
	var buckets []rowBucket
	for _, g := range glyphs {
		found := false
		for i := range buckets {
			if g.Baseline >= buckets[i].yMin-tolerance && g.Baseline <= buckets[i].yMax+tolerance {
				buckets[i].glyphs = append(buckets[i].glyphs, g)
				buckets[i].yMin = math.Min(buckets[i].yMin, g.Baseline)
				buckets[i].yMax = math.Max(buckets[i].yMax, g.Baseline)
				found = true
				break
			}
		}
		if !found {
			buckets = append(buckets, rowBucket{yMin: g.Baseline, yMax: g.Baseline, glyphs: []Glyph{g}})
		}
	}

	sort.SliceStable(buckets, func(i, j int) bool { return buckets[i].yMin < buckets[j].yMin })

	rows := make([][]Glyph, len(buckets))
	for i, b := range buckets {
		rows[i] = b.glyphs
	}
	return rows
}

// splitRow cuts an x-sorted row wherever the gap between visible glyphs is
// wider than multiplier times the font size.
func splitRow(row []Glyph, multiplier float64) [][]Glyph {
	var out [][]Glyph
	var current []Glyph
	lastEnd := math.Inf(-1)
	for _, g := range row {
		if isBlank(g.Text) {
			current = append(current, g)
			continue
		}
		limit := multiplier * fontSizeOr(g.FontSize, 10)
		if len(current) > 0 && g.X-lastEnd > limit {
			out = append(out, current)
			current = nil
		}
		current = append(current, g)
		lastEnd = g.X + g.W
	}
	if len(current) > 0 {
		out = append(out, current)
	}
	return out
}

func glyphsToWords(glyphs []Glyph, multiplier float64) []Word {
	var words []Word
	var cur *Word
	flush := func() {
		if cur != nil && strings.TrimSpace(cur.Text) != "" {
			words = append(words, *cur)
		}
		cur = nil
	}

	for _, g := range glyphs {
		if isBlank(g.Text) {
			flush()
			continue
		}
		r := g.rect()
		if cur != nil {
			threshold := multiplier * cur.FontSize
			if cur.FontSize == 0 {
				threshold = 3.0
			}
			if g.X-cur.Rect.X1 <= threshold {
				cur.Text += g.Text
				cur.Rect = cur.Rect.Union(r)
				continue
			}
			flush()
		}
		cur = &Word{Text: g.Text, Rect: r, Font: g.Font, FontSize: g.FontSize}
	}
	flush()
	return words
}

func newLine(words []Word) Line {
	line := Line{Words: words}
	texts := make([]string, 0, len(words))
	for i, w := range words {
		texts = append(texts, w.Text)
		line.Rect = line.Rect.Union(w.Rect)

		if i > 0 {
			last := &line.Spans[len(line.Spans)-1]
			if last.Font == w.Font && last.FontSize == w.FontSize {
				last.Text += " " + w.Text
				last.Rect = last.Rect.Union(w.Rect)
				continue
			}
		}
		line.Spans = append(line.Spans, Span{Text: w.Text, Rect: w.Rect, Font: w.Font, FontSize: w.FontSize})
	}
	line.Text = strings.Join(texts, " ")
	return line
}

func isBlank(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return !unicode.IsSpace(r) }) < 0
}

func fontSizeOr(size, fallback float64) float64 {
	if size <= 0 {
		return fallback
	}
	return size
}
