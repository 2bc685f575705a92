// Package geometry holds the coordinate types shared by the detectors, the
// renderer and the annotation grouper, together with the unit conversions
// between PDF points and device pixels.
package geometry

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/golang/geo/r2"
)

// PointsPerInch is the PDF user-space resolution.
const PointsPerInch = 72.0

// Point is an ordered (x, y) pair. It serializes as a two-element array.
type Point struct {
	X float64
	Y float64
}

// MarshalJSON encodes the point as [x, y].
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.X, p.Y})
}

// UnmarshalJSON accepts [x, y] and ignores any trailing elements.
func (p *Point) UnmarshalJSON(data []byte) error {
	var raw []float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("point must be an [x, y] array: %w", err)
	}
	if len(raw) < 2 {
		return fmt.Errorf("point needs two coordinates, got %d", len(raw))
	}
	p.X, p.Y = raw[0], raw[1]
	return nil
}

// Rect is an axis-aligned rectangle with X0 <= X1 and Y0 <= Y1. The unit is
// whatever the producer uses (points for page geometry, pixels after scaling).
type Rect struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// NewRect builds a rectangle from two corners in any order.
func NewRect(x0, y0, x1, y1 float64) Rect {
	return Rect{
		X0: math.Min(x0, x1),
		Y0: math.Min(y0, y1),
		X1: math.Max(x0, x1),
		Y1: math.Max(y0, y1),
	}
}

func (r Rect) toR2() r2.Rect {
	return r2.RectFromPoints(r2.Point{X: r.X0, Y: r.Y0}, r2.Point{X: r.X1, Y: r.Y1})
}

func fromR2(r r2.Rect) Rect {
	if r.IsEmpty() {
		return Rect{}
	}
	return Rect{X0: r.X.Lo, Y0: r.Y.Lo, X1: r.X.Hi, Y1: r.Y.Hi}
}

// Width returns X1-X0.
func (r Rect) Width() float64 { return r.X1 - r.X0 }

// Height returns Y1-Y0.
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }

// Area returns the rectangle area, zero for degenerate rectangles.
func (r Rect) Area() float64 {
	if r.Width() <= 0 || r.Height() <= 0 {
		return 0
	}
	return r.Width() * r.Height()
}

// IsEmpty reports whether the rectangle has no area.
func (r Rect) IsEmpty() bool {
	return r.Width() <= 0 || r.Height() <= 0
}

// Center returns the midpoint.
func (r Rect) Center() Point {
	return Point{X: (r.X0 + r.X1) / 2, Y: (r.Y0 + r.Y1) / 2}
}

// Union returns the smallest rectangle containing both. The zero Rect is
// treated as absent.
func (r Rect) Union(o Rect) Rect {
	if r == (Rect{}) {
		return o
	}
	if o == (Rect{}) {
		return r
	}
	return fromR2(r.toR2().Union(o.toR2()))
}

// Intersect returns the overlap of both rectangles, or the zero Rect when
// they do not overlap.
func (r Rect) Intersect(o Rect) Rect {
	in := fromR2(r.toR2().Intersection(o.toR2()))
	if in.IsEmpty() {
		return Rect{}
	}
	return in
}

// Intersects reports whether the closed rectangles share at least one point.
func (r Rect) Intersects(o Rect) bool {
	return r.toR2().Intersects(o.toR2())
}

// Expand grows the rectangle by margin on every side.
func (r Rect) Expand(margin float64) Rect {
	return fromR2(r.toR2().Expanded(r2.Point{X: margin, Y: margin}))
}

// Scale multiplies every coordinate by factor.
func (r Rect) Scale(factor float64) Rect {
	return NewRect(r.X0*factor, r.Y0*factor, r.X1*factor, r.Y1*factor)
}

// Translate shifts the rectangle by (dx, dy).
func (r Rect) Translate(dx, dy float64) Rect {
	return Rect{X0: r.X0 + dx, Y0: r.Y0 + dy, X1: r.X1 + dx, Y1: r.Y1 + dy}
}

// ContainsPoint reports whether p lies inside the closed rectangle.
func (r Rect) ContainsPoint(p Point) bool {
	return p.X >= r.X0 && p.X <= r.X1 && p.Y >= r.Y0 && p.Y <= r.Y1
}

// Round returns the rectangle with every coordinate rounded to the given
// number of decimals.
func (r Rect) Round(decimals int) Rect {
	f := math.Pow(10, float64(decimals))
	round := func(v float64) float64 { return math.Round(v*f) / f }
	return Rect{X0: round(r.X0), Y0: round(r.Y0), X1: round(r.X1), Y1: round(r.Y1)}
}

// String formats the rectangle as (x0, y0, x1, y1) with one decimal.
func (r Rect) String() string {
	return fmt.Sprintf("(%.1f, %.1f, %.1f, %.1f)", r.X0, r.Y0, r.X1, r.Y1)
}

// BBox is a region on one page in PDF points. When Points is set it is a
// polygon and the rectangle fields are its bounds.
type BBox struct {
	PageIndex int     `json:"page_index"`
	X0        float64 `json:"x0"`
	Y0        float64 `json:"y0"`
	X1        float64 `json:"x1"`
	Y1        float64 `json:"y1"`
	Points    []Point `json:"points"`
}

// NewPolygonBBox builds a polygon box. Fewer than three points yield a plain
// rectangle over whatever points were given.
func NewPolygonBBox(pageIndex int, points []Point) BBox {
	r := BBoxOf(points)
	b := BBox{PageIndex: pageIndex, X0: r.X0, Y0: r.Y0, X1: r.X1, Y1: r.Y1}
	if len(points) >= 3 {
		b.Points = append([]Point(nil), points...)
	}
	return b
}

// Rect returns the bounds of the box.
func (b BBox) Rect() Rect {
	return Rect{X0: b.X0, Y0: b.Y0, X1: b.X1, Y1: b.Y1}
}

// IsPolygon reports whether the box carries a usable polygon.
func (b BBox) IsPolygon() bool {
	return len(b.Points) >= 3
}

// Less orders boxes by (page, y0, x0).
func (b BBox) Less(o BBox) bool {
	if b.PageIndex != o.PageIndex {
		return b.PageIndex < o.PageIndex
	}
	if b.Y0 != o.Y0 {
		return b.Y0 < o.Y0
	}
	return b.X0 < o.X0
}

// BBoxOf returns the bounds of a point list. An empty list yields the zero
// rectangle.
func BBoxOf(points []Point) Rect {
	if len(points) == 0 {
		return Rect{}
	}
	r := Rect{X0: points[0].X, Y0: points[0].Y, X1: points[0].X, Y1: points[0].Y}
	for _, p := range points[1:] {
		r.X0 = math.Min(r.X0, p.X)
		r.Y0 = math.Min(r.Y0, p.Y)
		r.X1 = math.Max(r.X1, p.X)
		r.Y1 = math.Max(r.Y1, p.Y)
	}
	return r
}

// ScalePoints multiplies every coordinate by factor.
func ScalePoints(points []Point, factor float64) []Point {
	if points == nil {
		return nil
	}
	out := make([]Point, len(points))
	for i, p := range points {
		out[i] = Point{X: p.X * factor, Y: p.Y * factor}
	}
	return out
}

// RectPoints returns the four corners of r, clockwise from (X0, Y0).
func RectPoints(r Rect) []Point {
	return []Point{{r.X0, r.Y0}, {r.X1, r.Y0}, {r.X1, r.Y1}, {r.X0, r.Y1}}
}

// PixelsToPoints converts a device-pixel length at dpi into PDF points.
func PixelsToPoints(v float64, dpi float64) float64 {
	return v * PointsPerInch / dpi
}

// PointsToPixels converts a PDF-point length into device pixels at dpi.
func PointsToPixels(v float64, dpi float64) float64 {
	return v * dpi / PointsPerInch
}

// DPIForRegion picks the smallest resolution at which a region of the given
// size in points reaches both pixel targets, clamped to [minDPI, maxDPI].
// Degenerate sizes resolve to maxDPI.
func DPIForRegion(widthPt, heightPt float64, minWidthPx, minHeightPx, minDPI, maxDPI int) int {
	w := math.Max(1e-6, widthPt)
	h := math.Max(1e-6, heightPt)
	scale := math.Max(float64(minWidthPx)/w, float64(minHeightPx)/h)
	scale = math.Max(scale, float64(minDPI)/PointsPerInch)
	dpi := math.Round(PointsPerInch * scale)
	dpi = math.Max(float64(minDPI), dpi)
	dpi = math.Min(float64(maxDPI), dpi)
	return int(dpi)
}
