package pdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// glyphRun lays out text one glyph per character at a fixed advance.
func glyphRun(text string, x, baseline, size float64, font string) []Glyph {
	advance := size * 0.5
	out := make([]Glyph, 0, len(text))
	for _, r := range text {
		out = append(out, Glyph{Text: string(r), X: x, Baseline: baseline, W: advance, FontSize: size, Font: font})
		x += advance
	}
	return out
}

func TestGroupLinesWordsAndSpans(t *testing.T) {
	var glyphs []Glyph
	glyphs = append(glyphs, glyphRun("7.", 40, 100, 10, "Bold")...)
	glyphs = append(glyphs, glyphRun(" Wie viele", 50, 100.5, 10, "Regular")...)

	lines := GroupLines(glyphs, DefaultLayoutOptions())
	require.Len(t, lines, 1)

	line := lines[0]
	assert.Equal(t, "7. Wie viele", line.Text)
	require.Len(t, line.Words, 3)
	assert.Equal(t, "7.", line.Words[0].Text)

	first := line.FirstSpan()
	assert.Equal(t, "7.", first.Text)
	assert.Equal(t, "Bold", first.Font)
	assert.InDelta(t, 10.0, first.Rect.Width(), 1e-9)
	assert.InDelta(t, 10.0, first.Rect.Height(), 1e-9)
	require.Len(t, line.Spans, 2)
	assert.Equal(t, "Wie viele", line.Spans[1].Text)
}

func TestGroupLinesOrdersRowsAndSplitsColumns(t *testing.T) {
	var glyphs []Glyph
	glyphs = append(glyphs, glyphRun("unten", 40, 300, 10, "F")...)
	glyphs = append(glyphs, glyphRun("links", 40, 100, 10, "F")...)
	glyphs = append(glyphs, glyphRun("rechts", 320, 100, 10, "F")...)

	lines := GroupLines(glyphs, DefaultLayoutOptions())
	require.Len(t, lines, 3)
	assert.Equal(t, "links", lines[0].Text)
	assert.Equal(t, "rechts", lines[1].Text)
	assert.Equal(t, "unten", lines[2].Text)
	assert.Less(t, lines[0].Rect.Y0, lines[2].Rect.Y0)
}

func TestGroupLinesEmpty(t *testing.T) {
	assert.Empty(t, GroupLines(nil, DefaultLayoutOptions()))
	assert.Empty(t, GroupLines([]Glyph{{Text: " ", X: 1, Baseline: 1, FontSize: 10}}, DefaultLayoutOptions()))
}
