package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/exam-dataset/internal/geometry"
	pdferrors "github.com/a3tai/exam-dataset/internal/pdf/errors"
)

// solidRenderer returns a black image sized like a real render of clip.
type solidRenderer struct {
	calls   int
	lastDPI int
	err     error
}

func (s *solidRenderer) Render(_ context.Context, _ int, clip geometry.Rect, dpi int, gray bool) (image.Image, error) {
	s.calls++
	s.lastDPI = dpi
	if s.err != nil {
		return nil, s.err
	}
	scale := float64(dpi) / geometry.PointsPerInch
	w := int(math.Round(clip.Width() * scale))
	h := int(math.Round(clip.Height() * scale))
	var img draw.Image
	if gray {
		img = image.NewGray(image.Rect(0, 0, w, h))
	} else {
		img = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	return img, nil
}

func isWhite(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r == 0xffff && g == 0xffff && b == 0xffff
}

func isBlack(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r == 0 && g == 0 && b == 0
}

func TestRenderUsesSizeDerivedDPI(t *testing.T) {
	fake := &solidRenderer{}
	m := NewMaskRenderer(fake, DefaultOptions())

	crop, err := m.Render(context.Background(), Request{
		Target: geometry.BBox{PageIndex: 0, X0: 0, Y0: 0, X1: 288, Y1: 144},
		Gray:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, 300, crop.DPI)
	assert.Equal(t, 1200, crop.Image.Bounds().Dx())
	assert.Equal(t, 600, crop.Image.Bounds().Dy())
	_, gray := crop.Image.(*image.Gray)
	assert.True(t, gray)
}

func TestRenderExplicitDPI(t *testing.T) {
	fake := &solidRenderer{}
	m := NewMaskRenderer(fake, DefaultOptions())

	crop, err := m.Render(context.Background(), Request{
		Target: geometry.BBox{X0: 0, Y0: 0, X1: 72, Y1: 72},
		DPI:    144,
	})
	require.NoError(t, err)
	assert.Equal(t, 144, crop.DPI)
	assert.Equal(t, 144, fake.lastDPI)
	assert.Equal(t, 144, crop.Image.Bounds().Dx())
}

func TestRenderPolygonBlanksOutside(t *testing.T) {
	m := NewMaskRenderer(&solidRenderer{}, DefaultOptions())
	// Triangle covering the lower-left half of a 72pt square.
	target := geometry.NewPolygonBBox(0, []geometry.Point{{X: 0, Y: 0}, {X: 0, Y: 72}, {X: 72, Y: 72}})

	crop, err := m.Render(context.Background(), Request{Target: target, DPI: 72})
	require.NoError(t, err)

	assert.True(t, isBlack(crop.Image.At(5, 65)), "inside the triangle")
	assert.True(t, isWhite(crop.Image.At(65, 5)), "outside the triangle")
}

func TestRenderWhitesOutRectOverlap(t *testing.T) {
	m := NewMaskRenderer(&solidRenderer{}, DefaultOptions())
	target := geometry.BBox{PageIndex: 1, X0: 100, Y0: 100, X1: 172, Y1: 172}

	crop, err := m.Render(context.Background(), Request{
		Target: target,
		DPI:    72,
		Overlaps: []geometry.BBox{
			{PageIndex: 1, X0: 136, Y0: 136, X1: 300, Y1: 300},
			{PageIndex: 2, X0: 100, Y0: 100, X1: 172, Y1: 172},
			{PageIndex: 1, X0: 400, Y0: 400, X1: 500, Y1: 500},
		},
	})
	require.NoError(t, err)

	assert.True(t, isWhite(crop.Image.At(50, 50)), "intersection is blanked")
	assert.True(t, isBlack(crop.Image.At(10, 10)), "outside the overlap")
	assert.True(t, isBlack(crop.Image.At(10, 60)), "other-page overlap ignored")
}

func TestRenderWhitesOutPolygonOverlap(t *testing.T) {
	m := NewMaskRenderer(&solidRenderer{}, DefaultOptions())
	target := geometry.BBox{X0: 0, Y0: 0, X1: 100, Y1: 100}
	overlap := geometry.NewPolygonBBox(0, []geometry.Point{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 0, Y: 100}})

	crop, err := m.Render(context.Background(), Request{Target: target, DPI: 72, Overlaps: []geometry.BBox{overlap}})
	require.NoError(t, err)

	assert.True(t, isWhite(crop.Image.At(10, 10)))
	assert.True(t, isBlack(crop.Image.At(90, 90)))
}

func TestRenderDegenerateRegion(t *testing.T) {
	fake := &solidRenderer{}
	m := NewMaskRenderer(fake, DefaultOptions())

	_, err := m.Render(context.Background(), Request{Target: geometry.BBox{X0: 10, Y0: 10, X1: 10, Y1: 50}})
	require.Error(t, err)
	assert.True(t, pdferrors.Is(err, pdferrors.KindDegenerateGeometry))
	assert.Zero(t, fake.calls)
}

func TestRenderFailureIsTyped(t *testing.T) {
	m := NewMaskRenderer(&solidRenderer{err: errors.New("boom")}, DefaultOptions())

	_, err := m.Render(context.Background(), Request{Target: geometry.BBox{X1: 10, Y1: 10}})
	require.Error(t, err)
	assert.True(t, pdferrors.Is(err, pdferrors.KindRenderFailure))
}

func TestStackVertical(t *testing.T) {
	wide := image.NewRGBA(image.Rect(0, 0, 200, 50))
	narrow := image.NewRGBA(image.Rect(0, 0, 100, 40))

	out, err := StackVertical([]image.Image{wide, narrow})
	require.NoError(t, err)
	assert.Equal(t, 200, out.Bounds().Dx())
	assert.Equal(t, 50+80, out.Bounds().Dy())
}

func TestStackVerticalEmpty(t *testing.T) {
	_, err := StackVertical(nil)
	require.Error(t, err)
}

func TestSavePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crops", "q.png")
	img := image.NewGray(image.Rect(0, 0, 3, 2))

	require.NoError(t, SavePNG(path, img))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	back, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 3, 2), back.Bounds())
}

func TestPdftoppmArgs(t *testing.T) {
	args, err := pdftoppmArgs(2, geometry.Rect{X0: 72, Y0: 36, X1: 144, Y1: 72}, 144, true)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"-png", "-r", "144", "-q", "-singlefile",
		"-f", "3", "-l", "3",
		"-x", "144", "-y", "72", "-W", "144", "-H", "72",
		"-gray",
	}, args)

	_, err = pdftoppmArgs(0, geometry.Rect{X0: 10, Y0: 10, X1: 10, Y1: 10}, 144, false)
	assert.Error(t, err)
	_, err = pdftoppmArgs(0, geometry.Rect{X1: 10, Y1: 10}, 0, false)
	assert.Error(t, err)
}
