package options

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitParenthesizedAnchors(t *testing.T) {
	stem, opts := Split("Stem text\n(A) foo\n(B) bar\n(C) baz\n(D) qux\n(E) zap")

	assert.Equal(t, "Stem text", stem)
	assert.Equal(t, map[string]string{"A": "foo", "B": "bar", "C": "baz", "D": "qux", "E": "zap"}, opts)
}

func TestSplitAnchorVariants(t *testing.T) {
	tests := []struct {
		name string
		text string
		want map[string]string
	}{
		{
			name: "trailing punctuation",
			text: "Wie viele?\nA) 1\nB. 2\nC: 3\nD- 4\nE) 5",
			want: map[string]string{"A": "1", "B": "2", "C": "3", "D": "4", "E": "5"},
		},
		{
			name: "bold latex",
			text: "Frage\n(\\mathbf{A}) eins\n(\\mathbf{B}) zwei\n\\mathbf{C}) drei\n( mathbf{D} ) vier\n(E) fünf",
			want: map[string]string{"A": "eins", "B": "zwei", "C": "drei", "D": "vier", "E": "fünf"},
		},
		{
			name: "en dash",
			text: "Frage\nA – 10\nB – 20\nC – 30\nD – 40\nE – 50",
			want: map[string]string{"A": "10", "B": "20", "C": "30", "D": "40", "E": "50"},
		},
		{
			name: "table pipes",
			text: "Frage\n| (A) 10 |\n| (B) 20 |\n| (C) 30 |\n| (D) 40 |\n| (E) 50 |",
			want: map[string]string{"A": "10 |", "B": "20 |", "C": "30 |", "D": "40 |", "E": "50 |"},
		},
		{
			name: "multi-line bodies",
			text: "Frage\n(A) erste\nZeile\n(B) b\n(C) c\n(D) d\n(E) e\n",
			want: map[string]string{"A": "erste\nZeile", "B": "b", "C": "c", "D": "d", "E": "e"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, opts := Split(tt.text)
			assert.Equal(t, tt.want, opts)
		})
	}
}

func TestSplitCRLF(t *testing.T) {
	stem, opts := Split("S\r\n(A) a\r\n(B) b\r\n(C) c\r\n(D) d\r\n(E) e")
	assert.Equal(t, "S", stem)
	assert.Equal(t, "e", opts["E"])
}

func TestSplitThreeAnchorsNeverPartial(t *testing.T) {
	text := "Stem\n(A) foo\n(B) bar\n(C) baz"
	stem, opts := Split(text)

	assert.Equal(t, text, stem)
	assert.Empty(t, opts)
}

func TestSplitInlineFallback(t *testing.T) {
	stem, opts := Split("Welche Zahl? $$ (A) 1 (B) 2 (C) 3 (D) 4 (E) 5 $$")

	assert.Equal(t, "Welche Zahl?", stem)
	assert.Equal(t, map[string]string{"A": "1", "B": "2", "C": "3", "D": "4", "E": "5"}, opts)
}

func TestSplitInlineKeepsFirstOccurrence(t *testing.T) {
	_, opts := Split("Q (A) x (B) y (A) z (C) c (D) d (E) e")

	assert.Equal(t, "x", opts["A"])
	assert.Equal(t, "y", opts["B"])
}

func TestSplitSixAnchorsFails(t *testing.T) {
	text := "Stem mentions\n(A) a\n(B) b\n(C) c\n(D) d\n(E) e\n(A) again"
	stem, opts := Split(text)

	assert.Equal(t, text, stem)
	assert.Empty(t, opts)
}

func TestSplitRepeatedLetterFallsBack(t *testing.T) {
	// Five line anchors but only four letters; the inline scan still
	// misses E, so nothing is split.
	text := "S\n(A) a\n(A) b\n(B) c\n(C) d\n(D) e"
	stem, opts := Split(text)

	assert.Equal(t, text, stem)
	assert.Empty(t, opts)
}

func TestSplitEmpty(t *testing.T) {
	stem, opts := Split("   ")
	assert.Equal(t, "", stem)
	assert.Empty(t, opts)
}
