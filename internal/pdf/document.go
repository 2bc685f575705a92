// Package pdf reads exam PDFs: page geometry, positioned text grouped into
// words and lines, vector rectangles, and structural checks.
package pdf

import (
	"fmt"
	"os"

	lpdf "github.com/ledongthuc/pdf"

	"github.com/a3tai/exam-dataset/internal/geometry"
	pdferrors "github.com/a3tai/exam-dataset/internal/pdf/errors"
)

// Document is an open PDF. It is opened once per exam and read from a single
// goroutine; page indexes are zero-based.
type Document struct {
	path   string
	file   *os.File
	reader *lpdf.Reader
	closed bool
}

// Open opens the PDF at path.
func Open(path string) (doc *Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = pdferrors.Newf(pdferrors.KindUnreadableSource, "failed to open PDF: %v", r).WithFile(path)
		}
	}()

	f, reader, err := lpdf.Open(path)
	if err != nil {
		return nil, pdferrors.Wrap(pdferrors.KindUnreadableSource, "failed to open PDF", err).WithFile(path)
	}
	return &Document{path: path, file: f, reader: reader}, nil
}

// Path returns the file the document was opened from.
func (d *Document) Path() string {
	return d.path
}

// NumPages returns the number of pages in the document
func (d *Document) NumPages() int {
	if d.closed {
		return 0
	}
	return d.reader.NumPage()
}

// Close closes the document
func (d *Document) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if d.file != nil {
		return d.file.Close()
	}
	return nil
}

func (d *Document) page(pageIndex int) (lpdf.Page, error) {
	if d.closed {
		return lpdf.Page{}, pdferrors.New(pdferrors.KindInvalidInput, "document is closed").WithFile(d.path)
	}
	n := d.reader.NumPage()
	if pageIndex < 0 || pageIndex >= n {
		return lpdf.Page{}, pdferrors.Newf(pdferrors.KindInvalidInput,
			"invalid page index %d (document has %d pages)", pageIndex, n).WithFile(d.path)
	}
	page := d.reader.Page(pageIndex + 1)
	if page.V.IsNull() {
		return lpdf.Page{}, pdferrors.New(pdferrors.KindUnreadableSource, "page object is missing").
			WithFile(d.path).WithPage(pageIndex + 1)
	}
	return page, nil
}

// MediaBox returns the page box in PDF user space (bottom-left origin),
// following inheritance through parent page-tree nodes.
func (d *Document) MediaBox(pageIndex int) (box geometry.Rect, err error) {
	page, err := d.page(pageIndex)
	if err != nil {
		return geometry.Rect{}, err
	}

	defer func() {
		if r := recover(); r != nil {
			err = pdferrors.Newf(pdferrors.KindDegenerateGeometry, "corrupt MediaBox: %v", r).
				WithFile(d.path).WithPage(pageIndex + 1)
		}
	}()

	for node := page.V; !node.IsNull(); node = node.Key("Parent") {
		mb := node.Key("MediaBox")
		if mb.IsNull() {
			continue
		}
		return parseMediaBox(mb)
	}
	return geometry.Rect{}, pdferrors.New(pdferrors.KindDegenerateGeometry, "no valid MediaBox found").
		WithFile(d.path).WithPage(pageIndex + 1)
}

func parseMediaBox(v lpdf.Value) (geometry.Rect, error) {
	if v.Kind() != lpdf.Array || v.Len() != 4 {
		return geometry.Rect{}, pdferrors.New(pdferrors.KindDegenerateGeometry, "MediaBox is not a 4-element array")
	}
	var c [4]float64
	for i := range c {
		item := v.Index(i)
		switch item.Kind() {
		case lpdf.Integer:
			c[i] = float64(item.Int64())
		case lpdf.Real:
			c[i] = item.Float64()
		default:
			return geometry.Rect{}, pdferrors.Newf(pdferrors.KindDegenerateGeometry,
				"invalid MediaBox coordinate type at index %d", i)
		}
	}
	r := geometry.NewRect(c[0], c[1], c[2], c[3])
	if r.IsEmpty() {
		return geometry.Rect{}, pdferrors.Newf(pdferrors.KindDegenerateGeometry,
			"invalid MediaBox dimensions: [%.2f %.2f %.2f %.2f]", c[0], c[1], c[2], c[3])
	}
	return r, nil
}

// Layout extracts the text lines and the vector rectangles of one page,
// converted to top-left coordinates relative to the MediaBox.
func (d *Document) Layout(pageIndex int, opts LayoutOptions) (layout *PageLayout, err error) {
	box, err := d.MediaBox(pageIndex)
	if err != nil {
		return nil, err
	}
	page, err := d.page(pageIndex)
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			layout = nil
			err = pdferrors.Newf(pdferrors.KindDegenerateGeometry, "failed to read page content: %v", r).
				WithFile(d.path).WithPage(pageIndex + 1)
		}
	}()

	content := page.Content()
	height := box.Height()

	glyphs := make([]Glyph, 0, len(content.Text))
	for _, t := range content.Text {
		glyphs = append(glyphs, Glyph{
			Text:     t.S,
			X:        t.X - box.X0,
			Baseline: height - (t.Y - box.Y0),
			W:        t.W,
			FontSize: t.FontSize,
			Font:     t.Font,
		})
	}

	rects := make([]geometry.Rect, 0, len(content.Rect))
	for _, r := range content.Rect {
		rects = append(rects, geometry.NewRect(
			r.Min.X-box.X0, height-(r.Max.Y-box.Y0),
			r.Max.X-box.X0, height-(r.Min.Y-box.Y0),
		))
	}

	lines := GroupLines(glyphs, opts)
	var words []Word
	for _, l := range lines {
		words = append(words, l.Words...)
	}

	return &PageLayout{
		PageIndex: pageIndex,
		Width:     box.Width(),
		Height:    height,
		Lines:     lines,
		Words:     words,
		Rects:     rects,
	}, nil
}

// String describes the document for log lines.
func (d *Document) String() string {
	return fmt.Sprintf("Document{%s, pages=%d}", d.path, d.NumPages())
}
