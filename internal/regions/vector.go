// Package regions finds candidate figure and question areas on exam pages
// from layout geometry alone. Results are in device pixels at the requested
// DPI so they can seed masks directly.
package regions

import (
	"log"
	"math"

	"github.com/a3tai/exam-dataset/internal/geometry"
	"github.com/a3tai/exam-dataset/internal/pdf"
)

// Size of the ornament printed in every page header, in pixels at 300 dpi.
const (
	DecorativeWidth     = 716.26
	DecorativeHeight    = 102.84
	DecorativeTolerance = 1.5
)

// VectorOptions controls figure detection.
type VectorOptions struct {
	DPI            float64 // output resolution
	MergeTolerance float64 // in points, scaled to DPI before clustering
	MaxAreaRatio   float64 // clusters covering more of the page are dropped
	Padding        float64 // pixels added on every side of the result

	DecorativeWidth     float64
	DecorativeHeight    float64
	DecorativeTolerance float64
}

// DefaultVectorOptions returns the settings used for auto-seeding.
func DefaultVectorOptions() VectorOptions {
	return VectorOptions{
		DPI:                 300,
		MergeTolerance:      10,
		MaxAreaRatio:        0.8,
		Padding:             6,
		DecorativeWidth:     DecorativeWidth,
		DecorativeHeight:    DecorativeHeight,
		DecorativeTolerance: DecorativeTolerance,
	}
}

func (o VectorOptions) isDecorative(w, h, offset float64) bool {
	return math.Abs(w-(o.DecorativeWidth-offset)) < o.DecorativeTolerance &&
		math.Abs(h-(o.DecorativeHeight-offset)) < o.DecorativeTolerance
}

// DetectVectorRegions clusters a page's drawing rectangles into figure
// candidates. pageWidth and pageHeight are in points.
func DetectVectorRegions(rects []geometry.Rect, pageWidth, pageHeight float64, opts VectorOptions) []geometry.Rect {
	if len(rects) == 0 {
		return nil
	}
	scale := opts.DPI / geometry.PointsPerInch

	raw := make([]geometry.Rect, 0, len(rects))
	for _, r := range rects {
		s := r.Scale(scale)
		if opts.isDecorative(s.Width(), s.Height(), 0) {
			continue
		}
		raw = append(raw, s)
	}
	if len(raw) == 0 {
		return nil
	}

	clusters := geometry.ClusterRects(raw, opts.MergeTolerance*scale)

	pageArea := pageWidth * pageHeight * scale * scale
	out := make([]geometry.Rect, 0, len(clusters))
	for _, c := range clusters {
		w, h := c.Width(), c.Height()
		if pageArea > 0 && w*h/pageArea > opts.MaxAreaRatio {
			continue
		}
		// A cluster that padding would grow into the ornament size.
		if opts.isDecorative(w, h, 2*opts.Padding) {
			continue
		}
		out = append(out, geometry.Rect{
			X0: math.Max(0, c.X0-opts.Padding),
			Y0: math.Max(0, c.Y0-opts.Padding),
			X1: c.X1 + opts.Padding,
			Y1: c.Y1 + opts.Padding,
		})
	}
	return out
}

// VectorDetector runs figure detection against an open document. Failures
// are logged and produce no regions.
type VectorDetector struct {
	Options VectorOptions
	Layout  pdf.LayoutOptions
	Logger  *log.Logger
}

// NewVectorDetector creates a detector with default options.
func NewVectorDetector(logger *log.Logger) *VectorDetector {
	if logger == nil {
		logger = log.Default()
	}
	return &VectorDetector{Options: DefaultVectorOptions(), Layout: pdf.DefaultLayoutOptions(), Logger: logger}
}

// Detect returns figure candidates for one page.
func (d *VectorDetector) Detect(doc *pdf.Document, pageIndex int) []geometry.Rect {
	if pageIndex >= doc.NumPages() {
		return nil
	}
	layout, err := doc.Layout(pageIndex, d.Layout)
	if err != nil {
		d.Logger.Printf("vector regions: %s page %d: %v", doc.Path(), pageIndex+1, err)
		return nil
	}
	return DetectVectorRegions(layout.Rects, layout.Width, layout.Height, d.Options)
}
