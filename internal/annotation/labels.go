package annotation

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"

	"github.com/a3tai/exam-dataset/internal/geometry"
	"github.com/a3tai/exam-dataset/internal/ocr"
	"github.com/a3tai/exam-dataset/internal/render"
)

// Smallest side, in points, a mask is grown to before rendering.
const minLabelSide = 4.0

var optionMarkerRe = regexp.MustCompile(`\(([A-E])\)`)

// MediaBoxer reports page boxes; *pdf.Document implements it.
type MediaBoxer interface {
	MediaBox(pageIndex int) (geometry.Rect, error)
}

// Labeler reads the "(A)".."(E)" marker printed inside image masks and
// stores it as the mask's option label.
type Labeler struct {
	Renderer render.Renderer
	Engine   ocr.Engine
	Pages    MediaBoxer
	DPI      int
	Logger   *log.Logger
}

// NewLabeler renders at StoreDPI.
func NewLabeler(r render.Renderer, engine ocr.Engine, pages MediaBoxer, logger *log.Logger) *Labeler {
	if logger == nil {
		logger = log.Default()
	}
	return &Labeler{Renderer: r, Engine: engine, Pages: pages, DPI: int(StoreDPI), Logger: logger}
}

// Label processes every image mask of st that has not been checked yet, or
// all of them with overwrite. Each processed mask is marked checked even
// when no marker was found. It reports whether st changed.
func (l *Labeler) Label(ctx context.Context, st *State, overwrite bool) (bool, error) {
	type job struct {
		mask      *ImageMask
		pageIndex int
	}
	var jobs []job
	for _, n := range st.PageNumbers() {
		for _, m := range st.Page(n).Masks {
			im, ok := m.(*ImageMask)
			if !ok || (im.OptionLabelChecked && !overwrite) {
				continue
			}
			jobs = append(jobs, job{mask: im, pageIndex: n - 1})
		}
	}
	if len(jobs) == 0 {
		return false, nil
	}

	tmp, err := os.MkdirTemp("", "option-labels-")
	if err != nil {
		return false, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	for i, j := range jobs {
		if err := ctx.Err(); err != nil {
			return true, err
		}
		label, err := l.detect(ctx, j.mask, j.pageIndex, filepath.Join(tmp, fmt.Sprintf("mask_%d.png", i)))
		if err != nil {
			l.Logger.Printf("option label: mask %s on page %d: %v", j.mask.ID, j.pageIndex+1, err)
		}
		if label != "" {
			j.mask.OptionLabel = label
		}
		j.mask.OptionLabelChecked = true
	}
	return true, nil
}

func (l *Labeler) detect(ctx context.Context, m *ImageMask, pageIndex int, path string) (string, error) {
	if len(m.Points) == 0 {
		return "", fmt.Errorf("mask has no points")
	}
	rect := geometry.BBoxOf(PointsInPDF(m.Points))
	page, err := l.pageBounds(pageIndex)
	if err != nil {
		return "", err
	}
	clip, ok := SanitizeRect(rect, page, l.DPI)
	if !ok {
		return "", fmt.Errorf("mask is too small to render reliably")
	}

	img, err := l.Renderer.Render(ctx, pageIndex, clip, l.DPI, false)
	if err != nil {
		return "", err
	}
	if err := render.SavePNG(path, img); err != nil {
		return "", err
	}
	text, err := l.Engine.Recognize(ctx, path)
	if err != nil {
		return "", err
	}
	if mm := optionMarkerRe.FindStringSubmatch(text); mm != nil {
		return mm[1], nil
	}
	return "", nil
}

func (l *Labeler) pageBounds(pageIndex int) (geometry.Rect, error) {
	if l.Pages == nil {
		return geometry.Rect{}, nil
	}
	mb, err := l.Pages.MediaBox(pageIndex)
	if err != nil {
		return geometry.Rect{}, err
	}
	return geometry.Rect{X1: mb.Width(), Y1: mb.Height()}, nil
}

// SanitizeRect grows r to at least minLabelSide points per side around its
// centre and clamps it to page. An empty page means no clamping. The result
// is rejected when it is smaller than one pixel at dpi.
func SanitizeRect(r, page geometry.Rect, dpi int) (geometry.Rect, bool) {
	r = geometry.NewRect(r.X0, r.Y0, r.X1, r.Y1)
	c := r.Center()
	w := max(r.Width(), minLabelSide)
	h := max(r.Height(), minLabelSide)
	out := geometry.Rect{X0: c.X - w/2, Y0: c.Y - h/2, X1: c.X + w/2, Y1: c.Y + h/2}

	if !page.IsEmpty() {
		out.X0 = max(out.X0, page.X0)
		out.Y0 = max(out.Y0, page.Y0)
		out.X1 = min(out.X1, page.X1)
		out.Y1 = min(out.Y1, page.Y1)
	}
	if out.X0 >= out.X1 || out.Y0 >= out.Y1 {
		return geometry.Rect{}, false
	}
	if geometry.PointsToPixels(out.Width(), float64(dpi)) < 1 || geometry.PointsToPixels(out.Height(), float64(dpi)) < 1 {
		return geometry.Rect{}, false
	}
	return out, true
}
