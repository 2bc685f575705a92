package render

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/vector"

	"github.com/a3tai/exam-dataset/internal/fileutil"
	"github.com/a3tai/exam-dataset/internal/geometry"
	pdferrors "github.com/a3tai/exam-dataset/internal/pdf/errors"
)

// Options are the physical size targets used to pick a rendering DPI.
type Options struct {
	MinWidthPx  int  `json:"min_width_px" yaml:"min_width_px"`
	MinHeightPx int  `json:"min_height_px" yaml:"min_height_px"`
	MinDPI      int  `json:"min_dpi" yaml:"min_dpi"`
	MaxDPI      int  `json:"max_dpi" yaml:"max_dpi"`
	Grayscale   bool `json:"grayscale" yaml:"grayscale"`
}

// DefaultOptions returns the targets used for dataset crops.
func DefaultOptions() Options {
	return Options{
		MinWidthPx:  1200,
		MinHeightPx: 600,
		MinDPI:      300,
		MaxDPI:      600,
		Grayscale:   true,
	}
}

// DPIFor picks the DPI for a region of the given size in points.
func (o Options) DPIFor(r geometry.Rect) int {
	return geometry.DPIForRegion(r.Width(), r.Height(), o.MinWidthPx, o.MinHeightPx, o.MinDPI, o.MaxDPI)
}

// Request describes one crop.
type Request struct {
	Target geometry.BBox
	// DPI overrides the size-derived resolution when positive.
	DPI      int
	Gray     bool
	Overlaps []geometry.BBox
}

// Crop is a rendered region tagged with the DPI it was rendered at.
type Crop struct {
	Image draw.Image
	DPI   int
}

// MaskRenderer crops regions of a page, blanks everything outside a
// polygon target and whites out overlapping regions.
type MaskRenderer struct {
	renderer Renderer
	opts     Options
}

// NewMaskRenderer wraps a page renderer.
func NewMaskRenderer(r Renderer, opts Options) *MaskRenderer {
	return &MaskRenderer{renderer: r, opts: opts}
}

// Options returns the size targets in use.
func (m *MaskRenderer) Options() Options { return m.opts }

// Render crops req.Target. Overlaps on other pages are ignored; an overlap
// with a polygon is blanked exactly, otherwise its intersection with the
// target rectangle is.
func (m *MaskRenderer) Render(ctx context.Context, req Request) (*Crop, error) {
	rect := req.Target.Rect()
	if rect.Width() <= 0 || rect.Height() <= 0 {
		return nil, pdferrors.Newf(pdferrors.KindDegenerateGeometry, "region %s has no area", rect).
			WithPage(req.Target.PageIndex + 1)
	}
	dpi := req.DPI
	if dpi <= 0 {
		dpi = m.opts.DPIFor(rect)
	}

	raw, err := m.renderer.Render(ctx, req.Target.PageIndex, rect, dpi, req.Gray)
	if err != nil {
		return nil, pdferrors.Wrap(pdferrors.KindRenderFailure, "failed to render region", err).
			WithPage(req.Target.PageIndex + 1)
	}
	img := toDrawable(raw, req.Gray)
	scale := float64(dpi) / geometry.PointsPerInch

	if req.Target.IsPolygon() {
		img = clipToPolygon(img, localPoints(req.Target.Points, rect, scale))
	}

	white := image.NewUniform(color.White)
	for _, ob := range req.Overlaps {
		if ob.PageIndex != req.Target.PageIndex {
			continue
		}
		if ob.IsPolygon() {
			fillPolygon(img, localPoints(ob.Points, rect, scale), white)
			continue
		}
		in := rect.Intersect(ob.Rect())
		if in.IsEmpty() {
			continue
		}
		local := in.Translate(-rect.X0, -rect.Y0).Scale(scale)
		r := image.Rect(int(local.X0), int(local.Y0), int(local.X1+0.5), int(local.Y1+0.5)).
			Add(img.Bounds().Min)
		draw.Draw(img, r, white, image.Point{}, draw.Src)
	}
	return &Crop{Image: img, DPI: dpi}, nil
}

// localPoints maps page points into the crop's pixel frame.
func localPoints(points []geometry.Point, origin geometry.Rect, scale float64) []geometry.Point {
	out := make([]geometry.Point, len(points))
	for i, p := range points {
		out[i] = geometry.Point{X: (p.X - origin.X0) * scale, Y: (p.Y - origin.Y0) * scale}
	}
	return out
}

// toDrawable copies src into a mutable image of the requested colour
// model, with bounds starting at the origin.
func toDrawable(src image.Image, gray bool) draw.Image {
	b := src.Bounds()
	var dst draw.Image
	if gray {
		dst = image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	} else {
		dst = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	}
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

func polygonMask(size image.Rectangle, pts []geometry.Point) *image.Alpha {
	mask := image.NewAlpha(size)
	if len(pts) < 3 {
		return mask
	}
	z := vector.NewRasterizer(size.Dx(), size.Dy())
	z.MoveTo(float32(pts[0].X), float32(pts[0].Y))
	for _, p := range pts[1:] {
		z.LineTo(float32(p.X), float32(p.Y))
	}
	z.ClosePath()
	z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})
	return mask
}

// clipToPolygon keeps the pixels inside pts and paints the rest white.
func clipToPolygon(img draw.Image, pts []geometry.Point) draw.Image {
	b := img.Bounds()
	mask := polygonMask(b, pts)
	var out draw.Image
	if _, ok := img.(*image.Gray); ok {
		out = image.NewGray(b)
	} else {
		out = image.NewRGBA(b)
	}
	draw.Draw(out, b, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.DrawMask(out, b, img, b.Min, mask, b.Min, draw.Over)
	return out
}

func fillPolygon(img draw.Image, pts []geometry.Point, src image.Image) {
	if len(pts) < 3 {
		return
	}
	mask := polygonMask(img.Bounds(), pts)
	draw.DrawMask(img, img.Bounds(), src, image.Point{}, mask, img.Bounds().Min, draw.Over)
}

// StackVertical joins crops top to bottom. Narrower images are scaled up
// to the widest one, keeping their aspect ratio.
func StackVertical(images []image.Image) (draw.Image, error) {
	if len(images) == 0 {
		return nil, pdferrors.New(pdferrors.KindInvalidInput, "no images to stack")
	}
	maxW := 0
	for _, im := range images {
		maxW = max(maxW, im.Bounds().Dx())
	}
	if maxW == 0 {
		return nil, pdferrors.New(pdferrors.KindDegenerateGeometry, "images have no width")
	}

	heights := make([]int, len(images))
	total := 0
	for i, im := range images {
		b := im.Bounds()
		h := b.Dy()
		if b.Dx() != maxW && b.Dx() > 0 {
			h = int(float64(b.Dy()) * float64(maxW) / float64(b.Dx()))
		}
		heights[i] = h
		total += h
	}

	_, gray := images[0].(*image.Gray)
	var canvas draw.Image
	if gray {
		canvas = image.NewGray(image.Rect(0, 0, maxW, total))
	} else {
		canvas = image.NewRGBA(image.Rect(0, 0, maxW, total))
	}
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	y := 0
	for i, im := range images {
		b := im.Bounds()
		dst := image.Rect(0, y, maxW, y+heights[i])
		if b.Dx() == maxW {
			draw.Draw(canvas, dst, im, b.Min, draw.Src)
		} else {
			xdraw.CatmullRom.Scale(canvas, dst, im, b, xdraw.Src, nil)
		}
		y += heights[i]
	}
	return canvas, nil
}

// WritePNG encodes img as PNG.
func WritePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}

// SavePNG writes img to path atomically.
func SavePNG(path string, img image.Image) error {
	return fileutil.WriteWith(path, 0o644, func(w io.Writer) error {
		return WritePNG(w, img)
	})
}
