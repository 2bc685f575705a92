package answerkey

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/a3tai/exam-dataset/internal/fileutil"
	"github.com/a3tai/exam-dataset/internal/pdf"
	pdferrors "github.com/a3tai/exam-dataset/internal/pdf/errors"
	"github.com/a3tai/exam-dataset/internal/render"
)

// Options configures one extraction run.
type Options struct {
	OutputDir string
	Overwrite bool
	// Strict turns label/answer count mismatches and validation warnings
	// into a fatal error.
	Strict bool
	// Debug writes per-page overlays under <OutputDir>/debug.
	Debug bool
	// Years restricts the written years; empty writes all.
	Years []int
}

// Result lists what a run produced.
type Result struct {
	Written []string      `json:"written"`
	Years   []*YearOutput `json:"years"`
	Debug   []string      `json:"debug,omitempty"`
}

// Extractor reads the central answer-key PDF and writes one JSON document
// per year.
type Extractor struct {
	Strategies []Strategy
	Layout     pdf.LayoutOptions
	// Renderer backs debug overlays; nil draws them on a blank page.
	Renderer render.Renderer
	Logger   *log.Logger
	Now      func() time.Time
}

// NewExtractor returns an extractor with the default strategy order.
func NewExtractor(logger *log.Logger) *Extractor {
	if logger == nil {
		logger = log.Default()
	}
	return &Extractor{
		Strategies: DefaultStrategies(),
		Layout:     pdf.DefaultLayoutOptions(),
		Logger:     logger,
		Now:        time.Now,
	}
}

// PageSource is the part of an open document the extractor reads.
type PageSource interface {
	NumPages() int
	Layout(pageIndex int, opts pdf.LayoutOptions) (*pdf.PageLayout, error)
}

// Run extracts pdfPath and writes the per-year files.
func (e *Extractor) Run(ctx context.Context, pdfPath string, opts Options) (*Result, error) {
	doc, err := pdf.Open(pdfPath)
	if err != nil {
		return nil, err
	}
	defer doc.Close()
	return e.Extract(ctx, doc, sourceName(pdfPath), opts)
}

// Extract processes every page of src. Pages that fail to parse or come
// before the first detected year are skipped.
func (e *Extractor) Extract(ctx context.Context, src PageSource, sourcePDF string, opts Options) (*Result, error) {
	accs := make(map[int]*YearAccumulator)
	res := &Result{}
	var debug *DebugWriter
	if opts.Debug {
		debug = &DebugWriter{Dir: filepath.Join(opts.OutputDir, "debug"), DPI: DefaultDebugDPI, Renderer: e.Renderer}
	}

	year := 0
	for i := 0; i < src.NumPages(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := src.Layout(i, e.Layout)
		if err != nil {
			e.Logger.Printf("skipping answer-key page %d: %v", i+1, err)
			continue
		}
		year = DetectYear(page, year)
		if year == 0 {
			continue
		}
		acc, ok := accs[year]
		if !ok {
			acc = NewYearAccumulator(year, sourcePDF)
			accs[year] = acc
		}

		headings := FindHeadings(page)
		assoc := e.extractPage(page, headings)
		for _, a := range assoc {
			if a.Group == "" {
				acc.Warnings = append(acc.Warnings, fmt.Sprintf(
					"page %d: could not associate a table at bbox (%.1f, %.1f, %.1f, %.1f) to any group",
					i+1, a.Pair.Rect.X0, a.Pair.Rect.Y0, a.Pair.Rect.X1, a.Pair.Rect.Y1))
				continue
			}
			if opts.Strict && len(a.Pair.Labels) != len(a.Pair.Answers) {
				return nil, pdferrors.Newf(pdferrors.KindStructuralValidation,
					"label/answer count mismatch on page %d group %s: %d vs %d",
					i+1, a.Group, len(a.Pair.Labels), len(a.Pair.Answers)).WithFile(sourcePDF).WithPage(i + 1)
			}
			acc.Add(a.Group, a.Pair)
		}

		if debug != nil && len(assoc) > 0 {
			path, err := debug.WritePage(ctx, page, year, headings, assoc)
			if err != nil {
				e.Logger.Printf("debug overlay failed for page %d: %v", i+1, err)
			} else {
				res.Debug = append(res.Debug, path)
			}
		}
	}

	years := make([]int, 0, len(accs))
	for y := range accs {
		if wanted(y, opts.Years) {
			years = append(years, y)
		}
	}
	sort.Ints(years)

	now := e.now()
	for _, y := range years {
		out := accs[y].Finalize(now)
		if warnings := Validate(out); len(warnings) > 0 {
			out.ValidationWarnings = warnings
			if opts.Strict {
				return nil, pdferrors.Newf(pdferrors.KindStructuralValidation,
					"validation failed for year %d: %d issue(s). First: %s", y, len(warnings), warnings[0]).
					WithFile(sourcePDF)
			}
		}
		res.Years = append(res.Years, out)
	}

	// Refuse before writing anything so a conflict never leaves a partial run.
	if !opts.Overwrite {
		for _, out := range res.Years {
			if path := YearPath(opts.OutputDir, out.Year); fileutil.Exists(path) {
				return nil, pdferrors.Newf(pdferrors.KindOverwriteProtection,
					"refusing to overwrite existing %s; use --overwrite to allow", path)
			}
		}
	}
	for _, out := range res.Years {
		path := YearPath(opts.OutputDir, out.Year)
		if err := fileutil.WriteJSON(path, out); err != nil {
			return nil, err
		}
		res.Written = append(res.Written, path)
	}
	return res, nil
}

// extractPage runs the strategies in order and keeps the first non-empty
// result. Fallbacks are skipped once headings frame at least one region.
func (e *Extractor) extractPage(page *pdf.PageLayout, headings []Heading) []Association {
	framed := len(GroupRegions(page.Bounds(), headings)) > 0
	for _, s := range e.Strategies {
		if framed && s.Fallback() {
			continue
		}
		if assoc := s.Extract(page, headings); len(assoc) > 0 {
			return assoc
		}
	}
	return nil
}

func (e *Extractor) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// YearPath is the output file of one year.
func YearPath(dir string, year int) string {
	return filepath.Join(dir, fmt.Sprintf("%d.json", year))
}

func wanted(year int, years []int) bool {
	if len(years) == 0 {
		return true
	}
	for _, y := range years {
		if y == year {
			return true
		}
	}
	return false
}

// sourceName reports the PDF path relative to the working directory when
// possible.
func sourceName(path string) string {
	wd, err := os.Getwd()
	if err != nil {
		return path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	if rel, err := filepath.Rel(wd, abs); err == nil {
		return filepath.ToSlash(rel)
	}
	return path
}
