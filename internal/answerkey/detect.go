package answerkey

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/a3tai/exam-dataset/internal/geometry"
	"github.com/a3tai/exam-dataset/internal/pdf"
)

const (
	// yearSearchRatio limits year detection to the top of the page so that
	// footer numbers are not mistaken for years.
	yearSearchRatio = 0.35

	regionMargin   = 6.0
	regionPadX     = 60.0
	headingSlackX  = 10.0
	twoColumnSpanX = 50.0
)

var (
	digitRunRe = regexp.MustCompile(`[0-9]+`)
	groupRe    = regexp.MustCompile(`Klassenstufen\s*(\d+)\s*(?:und|bis)\s*(\d+)`)
)

// DetectYear returns the first 19xx/20xx year printed in the upper part of
// the page, or prior when none is found. A year must not be part of a
// longer digit run.
func DetectYear(page *pdf.PageLayout, prior int) int {
	limit := yearSearchRatio * page.Height
	for _, l := range page.Lines {
		if l.Rect.Y0 >= limit {
			continue
		}
		if y, ok := findYear(l.Text); ok {
			return y
		}
	}
	return prior
}

func findYear(s string) (int, bool) {
	for _, run := range digitRunRe.FindAllString(s, -1) {
		if len(run) != 4 || !(strings.HasPrefix(run, "19") || strings.HasPrefix(run, "20")) {
			continue
		}
		y, err := strconv.Atoi(run)
		if err == nil && y >= 1900 && y <= 2099 {
			return y, true
		}
	}
	return 0, false
}

// FindHeadings returns the grade-group headings of a page sorted top to
// bottom.
func FindHeadings(page *pdf.PageLayout) []Heading {
	var out []Heading
	for _, l := range page.Lines {
		text := strings.TrimSpace(l.Text)
		if !strings.Contains(text, "Klassenstufen") {
			continue
		}
		m := groupRe.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		lo, _ := strconv.Atoi(m[1])
		hi, _ := strconv.Atoi(m[2])
		out = append(out, Heading{Group: fmt.Sprintf("%d-%d", lo, hi), Rect: l.Rect})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CenterY() < out[j].CenterY() })
	return out
}

// ColumnSplit returns the x coordinate dividing the two table columns. When
// heading centres are spread wide enough the midpoint between the extreme
// centres is used, otherwise the middle of the page.
func ColumnSplit(bounds geometry.Rect, headings []Heading) float64 {
	if len(headings) > 0 {
		lo, hi := headings[0].Rect.Center().X, headings[0].Rect.Center().X
		for _, h := range headings[1:] {
			cx := h.Rect.Center().X
			lo = min(lo, cx)
			hi = max(hi, cx)
		}
		if hi-lo > twoColumnSpanX {
			return (lo + hi) / 2
		}
	}
	return (bounds.X0 + bounds.X1) / 2
}

// GroupRegions frames a region below every heading reaching down to the
// next heading in the same column, or to the page bottom. Regions may
// cross the column split by a fixed allowance. A group heading that appears
// twice keeps the region of its lower occurrence.
func GroupRegions(bounds geometry.Rect, headings []Heading) map[string]geometry.Rect {
	if len(headings) == 0 {
		return nil
	}
	split := ColumnSplit(bounds, headings)

	var left, right []Heading
	for _, h := range headings {
		if h.Rect.Center().X < split {
			left = append(left, h)
		} else {
			right = append(right, h)
		}
	}
	byTop := func(hs []Heading) {
		sort.SliceStable(hs, func(i, j int) bool { return hs[i].Rect.Y0 < hs[j].Rect.Y0 })
	}
	byTop(left)
	byTop(right)

	regions := make(map[string]geometry.Rect, len(headings))
	frame := func(hs []Heading, x0, x1 float64) {
		for i, h := range hs {
			top := h.Rect.Y1 + regionMargin
			bottom := bounds.Y1 - regionMargin
			if i+1 < len(hs) {
				bottom = hs[i+1].Rect.Y0 - regionMargin
			}
			regions[h.Group] = geometry.Rect{
				X0: max(x0, h.Rect.X0-headingSlackX),
				Y0: top,
				X1: x1,
				Y1: bottom,
			}
		}
	}
	frame(left, bounds.X0+regionMargin, split-regionMargin+regionPadX)
	frame(right, split+regionMargin-regionPadX, bounds.X1-regionMargin)
	return regions
}

// AssociateGroup picks the heading a row-pair belongs to: among headings
// ending above the row-pair (with 2pt slack) it prefers horizontal overlap,
// then the smallest horizontal gap, then the smallest vertical distance.
// With no heading above it falls back to the last heading of the page, and
// returns "" when the page has none.
func AssociateGroup(headings []Heading, box geometry.Rect) string {
	var (
		best    *Heading
		bestKey [3]float64
	)
	for i := range headings {
		h := &headings[i]
		if h.Rect.Y1 > box.Y0+2 {
			continue
		}
		gap := horizontalGap(h.Rect, box)
		key := [3]float64{0, gap, absf(box.Y0 - h.Rect.Y1)}
		if gap > 0 {
			key[0] = 1
		}
		if best == nil || lessKey(key, bestKey) {
			best, bestKey = h, key
		}
	}
	if best != nil {
		return best.Group
	}
	if len(headings) > 0 {
		return headings[len(headings)-1].Group
	}
	return ""
}

func horizontalGap(a, b geometry.Rect) float64 {
	switch {
	case a.X1 < b.X0:
		return b.X0 - a.X1
	case b.X1 < a.X0:
		return a.X0 - b.X1
	}
	return 0
}

func lessKey(a, b [3]float64) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
