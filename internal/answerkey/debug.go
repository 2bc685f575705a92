package answerkey

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"path/filepath"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/a3tai/exam-dataset/internal/fileutil"
	"github.com/a3tai/exam-dataset/internal/geometry"
	"github.com/a3tai/exam-dataset/internal/pdf"
	"github.com/a3tai/exam-dataset/internal/render"
)

// DefaultDebugDPI is the resolution of debug page renders.
const DefaultDebugDPI = 144

var (
	headingColor = color.RGBA{R: 30, G: 144, B: 255, A: 255}
	rowPairColor = color.RGBA{R: 50, G: 205, B: 50, A: 255}
	labelBoxFill = color.RGBA{A: 180}
)

// DebugWriter renders a page with its detected headings and row-pairs
// outlined, plus a JSON sidecar with the raw findings.
type DebugWriter struct {
	Dir      string
	DPI      int
	Renderer render.Renderer // nil draws on a blank page
}

type debugHeading struct {
	Group string     `json:"group"`
	BBox  [4]float64 `json:"bbox"`
}

type debugRowPair struct {
	Group          *string    `json:"group"`
	BBox           [4]float64 `json:"bbox"`
	LabelsCount    int        `json:"labels_count"`
	AnswersCount   int        `json:"answers_count"`
	LabelsPreview  []string   `json:"labels_preview"`
	AnswersPreview []string   `json:"answers_preview"`
}

type debugSidecar struct {
	Year     int            `json:"year"`
	Page     int            `json:"page"`
	Headings []debugHeading `json:"headings"`
	RowPairs []debugRowPair `json:"rowpairs"`
}

// WritePage writes <Dir>/<year>_page_<n>.png and its .json sidecar and
// returns the PNG path.
func (d *DebugWriter) WritePage(ctx context.Context, page *pdf.PageLayout, year int, headings []Heading, assoc []Association) (string, error) {
	dpi := d.DPI
	if dpi <= 0 {
		dpi = DefaultDebugDPI
	}
	zoom := float64(dpi) / geometry.PointsPerInch

	canvas, err := d.canvas(ctx, page, dpi)
	if err != nil {
		return "", err
	}
	for _, h := range headings {
		r := toPixels(h.Rect, zoom)
		strokeRect(canvas, r, headingColor, 3)
		drawLabel(canvas, image.Pt(r.Min.X+2, r.Min.Y+2), h.Group)
	}
	for _, a := range assoc {
		r := toPixels(a.Pair.Rect, zoom)
		strokeRect(canvas, r, rowPairColor, 3)
		group := a.Group
		if group == "" {
			group = "UNASSIGNED"
		}
		drawLabel(canvas, image.Pt(r.Min.X+2, r.Min.Y+2),
			fmt.Sprintf("%s | %d labels / %d answers", group, len(a.Pair.Labels), len(a.Pair.Answers)))
	}

	base := filepath.Join(d.Dir, fmt.Sprintf("%d_page_%d", year, page.PageIndex+1))
	pngPath := base + ".png"
	if err := render.SavePNG(pngPath, canvas); err != nil {
		return "", err
	}

	side := debugSidecar{Year: year, Page: page.PageIndex + 1, Headings: []debugHeading{}, RowPairs: []debugRowPair{}}
	for _, h := range headings {
		side.Headings = append(side.Headings, debugHeading{Group: h.Group, BBox: rounded(h.Rect)})
	}
	for _, a := range assoc {
		rp := debugRowPair{
			BBox:           rounded(a.Pair.Rect),
			LabelsCount:    len(a.Pair.Labels),
			AnswersCount:   len(a.Pair.Answers),
			LabelsPreview:  head(a.Pair.Labels, 5),
			AnswersPreview: head(a.Pair.Answers, 5),
		}
		if a.Group != "" {
			g := a.Group
			rp.Group = &g
		}
		side.RowPairs = append(side.RowPairs, rp)
	}
	if err := fileutil.WriteJSON(base+".json", side); err != nil {
		return "", err
	}
	return pngPath, nil
}

func (d *DebugWriter) canvas(ctx context.Context, page *pdf.PageLayout, dpi int) (*image.RGBA, error) {
	zoom := float64(dpi) / geometry.PointsPerInch
	size := image.Rect(0, 0, int(math.Ceil(page.Width*zoom)), int(math.Ceil(page.Height*zoom)))
	if d.Renderer == nil {
		c := image.NewRGBA(size)
		draw.Draw(c, size, image.NewUniform(color.White), image.Point{}, draw.Src)
		return c, nil
	}
	img, err := d.Renderer.Render(ctx, page.PageIndex, page.Bounds(), dpi, false)
	if err != nil {
		return nil, fmt.Errorf("failed to render debug page %d: %w", page.PageIndex+1, err)
	}
	b := img.Bounds()
	c := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(c, c.Bounds(), img, b.Min, draw.Src)
	return c, nil
}

func toPixels(r geometry.Rect, zoom float64) image.Rectangle {
	s := r.Scale(zoom)
	return image.Rect(int(s.X0), int(s.Y0), int(s.X1), int(s.Y1))
}

func strokeRect(dst draw.Image, r image.Rectangle, c color.Color, width int) {
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width),
		image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+width, r.Max.Y),
		image.Rect(r.Max.X-width, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(dst.Bounds()), src, image.Point{}, draw.Src)
	}
}

// drawLabel writes text in white on a translucent black box whose top-left
// corner is at pt.
func drawLabel(dst draw.Image, pt image.Point, text string) {
	const pad = 4
	face := basicfont.Face7x13
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(color.White), Face: face}
	w := d.MeasureString(text).Ceil()
	h := face.Metrics().Height.Ceil()

	box := image.Rect(pt.X-pad, pt.Y-pad, pt.X+w+pad, pt.Y+h+pad)
	draw.Draw(dst, box.Intersect(dst.Bounds()), image.NewUniform(labelBoxFill), image.Point{}, draw.Over)
	strokeRect(dst, box, color.White, 1)

	d.Dot = fixed.P(pt.X, pt.Y+face.Metrics().Ascent.Ceil())
	d.DrawString(text)
}

func rounded(r geometry.Rect) [4]float64 {
	rr := r.Round(2)
	return [4]float64{rr.X0, rr.Y0, rr.X1, rr.Y1}
}

func head(s []string, n int) []string {
	if len(s) > n {
		s = s[:n]
	}
	return append([]string{}, s...)
}
