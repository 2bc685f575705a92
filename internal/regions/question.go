package regions

import (
	"log"
	"sort"
	"strings"

	"github.com/a3tai/exam-dataset/internal/geometry"
	"github.com/a3tai/exam-dataset/internal/pdf"
)

// QuestionOptions controls question segmentation. Lengths are in points.
type QuestionOptions struct {
	DPI              float64
	MaxEnumWidth     float64
	LeftMarginMax    float64
	LineGapThreshold float64
	MinHeight        float64
	// TopMarginRatio excludes markers in the top fraction of the page, where
	// running headers carry page numbers. Zero disables the band.
	TopMarginRatio float64
}

// DefaultQuestionOptions returns the settings used for auto-seeding.
func DefaultQuestionOptions() QuestionOptions {
	return QuestionOptions{
		DPI:              300,
		MaxEnumWidth:     60,
		LeftMarginMax:    90,
		LineGapThreshold: 6,
		MinHeight:        8,
		TopMarginRatio:   0.06,
	}
}

// DetectQuestionRegions segments a page into one rectangle per question,
// starting a question at every enumeration marker. Without markers it
// falls back to grouping lines separated by small vertical gaps.
func DetectQuestionRegions(lines []pdf.Line, pageHeight float64, opts QuestionOptions) []geometry.Rect {
	kept := make([]pdf.Line, 0, len(lines))
	for _, l := range lines {
		if l.Rect.Height() < opts.MinHeight {
			continue
		}
		kept = append(kept, l)
	}
	if len(kept) == 0 {
		return nil
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Rect.Y0 < kept[j].Rect.Y0 })

	topBand := opts.TopMarginRatio * pageHeight
	scale := opts.DPI / geometry.PointsPerInch

	markers := findMarkers(kept, opts, topBand, true)
	if len(markers) == 0 {
		markers = findMarkers(kept, opts, topBand, false)
	}
	if len(markers) == 0 {
		return groupByGap(kept, opts.LineGapThreshold, scale)
	}

	// Lines above the first marker belong to no question.
	markers = append(markers, len(kept))
	boxes := make([]geometry.Rect, 0, len(markers)-1)
	for i := 0; i < len(markers)-1; i++ {
		group := kept[markers[i]:markers[i+1]]
		if len(group) == 0 {
			continue
		}
		boxes = append(boxes, unionLines(group).Scale(scale))
	}
	return boxes
}

// findMarkers returns the indexes of enumeration-marker lines, judged on
// the first span or, when useSpan is false, on the whole line.
func findMarkers(lines []pdf.Line, opts QuestionOptions, topBand float64, useSpan bool) []int {
	var out []int
	for i, l := range lines {
		r := l.Rect
		if useSpan {
			span := l.FirstSpan()
			if span.Text == "" {
				continue
			}
			if strings.HasPrefix(span.Text, "(") {
				continue
			}
			r = span.Rect
		}
		if r.Y0 < topBand {
			continue
		}
		if r.Width() <= opts.MaxEnumWidth && r.X0 <= opts.LeftMarginMax && r.Height() >= opts.MinHeight {
			out = append(out, i)
		}
	}
	return out
}

func groupByGap(lines []pdf.Line, threshold, scale float64) []geometry.Rect {
	var boxes []geometry.Rect
	var current geometry.Rect
	havePrev := false
	prevY1 := 0.0

	for _, l := range lines {
		if havePrev && l.Rect.Y0-prevY1 > threshold {
			boxes = append(boxes, current.Scale(scale))
			current = geometry.Rect{}
		}
		current = current.Union(l.Rect)
		prevY1 = l.Rect.Y1
		havePrev = true
	}
	if havePrev {
		boxes = append(boxes, current.Scale(scale))
	}
	return boxes
}

func unionLines(lines []pdf.Line) geometry.Rect {
	var r geometry.Rect
	for _, l := range lines {
		r = r.Union(l.Rect)
	}
	return r
}

// QuestionDetector runs question segmentation against an open document.
type QuestionDetector struct {
	Options QuestionOptions
	Layout  pdf.LayoutOptions
	Logger  *log.Logger
}

// NewQuestionDetector creates a detector with default options.
func NewQuestionDetector(logger *log.Logger) *QuestionDetector {
	if logger == nil {
		logger = log.Default()
	}
	return &QuestionDetector{Options: DefaultQuestionOptions(), Layout: pdf.DefaultLayoutOptions(), Logger: logger}
}

// Detect returns question rectangles for one page.
func (d *QuestionDetector) Detect(doc *pdf.Document, pageIndex int) []geometry.Rect {
	if pageIndex >= doc.NumPages() {
		return nil
	}
	layout, err := doc.Layout(pageIndex, d.Layout)
	if err != nil {
		d.Logger.Printf("question regions: %s page %d: %v", doc.Path(), pageIndex+1, err)
		return nil
	}
	return DetectQuestionRegions(layout.Lines, layout.Height, d.Options)
}
