package render

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/a3tai/exam-dataset/internal/geometry"
)

// Renderer rasterizes a rectangle of one page. The clip is in PDF points
// with a top-left origin; the returned image is clip scaled by dpi/72.
type Renderer interface {
	Render(ctx context.Context, pageIndex int, clip geometry.Rect, dpi int, gray bool) (image.Image, error)
}

// DefaultRenderTimeout bounds one pdftoppm invocation.
const DefaultRenderTimeout = 120 * time.Second

// Pdftoppm renders regions of one PDF with poppler's pdftoppm. It renders
// only the requested clip, never the whole page.
type Pdftoppm struct {
	pdfPath string
	binary  string
	timeout time.Duration
}

// NewPdftoppm binds a renderer to pdfPath. It fails when pdftoppm is not on
// PATH.
func NewPdftoppm(pdfPath string) (*Pdftoppm, error) {
	bin, err := exec.LookPath("pdftoppm")
	if err != nil {
		return nil, fmt.Errorf("pdftoppm not found in PATH: %w", err)
	}
	return &Pdftoppm{pdfPath: pdfPath, binary: bin, timeout: DefaultRenderTimeout}, nil
}

// WithTimeout returns a copy using timeout for every call.
func (p *Pdftoppm) WithTimeout(timeout time.Duration) *Pdftoppm {
	cp := *p
	cp.timeout = timeout
	return &cp
}

// Render implements Renderer.
func (p *Pdftoppm) Render(ctx context.Context, pageIndex int, clip geometry.Rect, dpi int, gray bool) (image.Image, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	args, err := pdftoppmArgs(pageIndex, clip, dpi, gray)
	if err != nil {
		return nil, err
	}

	tmpDir, err := os.MkdirTemp("", "exam-render-")
	if err != nil {
		return nil, fmt.Errorf("mkdir tmp: %w", err)
	}
	defer os.RemoveAll(tmpDir)
	prefix := filepath.Join(tmpDir, "crop")
	args = append(args, p.pdfPath, prefix)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.binary, args...)
	cmd.Env = append(os.Environ(), "LANG=C.UTF-8", "LC_ALL=C.UTF-8")
	out, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("pdftoppm timed out on page %d", pageIndex+1)
	}
	if err != nil {
		return nil, fmt.Errorf("pdftoppm failed on page %d: %w: %s", pageIndex+1, err, strings.TrimSpace(string(out)))
	}

	f, err := os.Open(prefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("read rendered page %d: %w", pageIndex+1, err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode rendered page %d: %w", pageIndex+1, err)
	}
	return img, nil
}

// pdftoppmArgs builds the command line for one clip. pdftoppm takes the
// crop box in pixels at the target resolution and 1-based page numbers.
func pdftoppmArgs(pageIndex int, clip geometry.Rect, dpi int, gray bool) ([]string, error) {
	if pageIndex < 0 {
		return nil, fmt.Errorf("invalid page index %d", pageIndex)
	}
	if dpi <= 0 {
		return nil, fmt.Errorf("invalid dpi %d", dpi)
	}
	px := clip.Scale(float64(dpi) / geometry.PointsPerInch)
	x, y := int(math.Floor(px.X0)), int(math.Floor(px.Y0))
	w, h := int(math.Ceil(px.X1))-x, int(math.Ceil(px.Y1))-y
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid crop for page %d: %s", pageIndex+1, clip)
	}
	page := strconv.Itoa(pageIndex + 1)
	args := []string{
		"-png",
		"-r", strconv.Itoa(dpi),
		"-q",
		"-singlefile",
		"-f", page,
		"-l", page,
		"-x", strconv.Itoa(x),
		"-y", strconv.Itoa(y),
		"-W", strconv.Itoa(w),
		"-H", strconv.Itoa(h),
	}
	if gray {
		args = append(args, "-gray")
	}
	return args, nil
}
