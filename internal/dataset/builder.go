package dataset

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/a3tai/exam-dataset/internal/annotation"
	"github.com/a3tai/exam-dataset/internal/answerkey"
	"github.com/a3tai/exam-dataset/internal/geometry"
	"github.com/a3tai/exam-dataset/internal/ocr"
	"github.com/a3tai/exam-dataset/internal/options"
	"github.com/a3tai/exam-dataset/internal/pdf"
	"github.com/a3tai/exam-dataset/internal/render"
)

// ErrNoExamSucceeded is returned when every exam of a build was skipped.
var ErrNoExamSucceeded = errors.New("no exam produced records")

// RendererFactory binds a page renderer to one PDF.
type RendererFactory func(pdfPath string) (render.Renderer, error)

// PdftoppmFactory renders with poppler.
func PdftoppmFactory(pdfPath string) (render.Renderer, error) {
	r, err := render.NewPdftoppm(pdfPath)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Builder turns annotated exams into records. Crops are rendered one after
// another per exam; only the OCR calls run concurrently.
type Builder struct {
	NewRenderer  RendererFactory
	RendererName string
	Render       render.Options
	// OCR is optional; without it every statement is empty.
	OCR       *ocr.Batch
	Answers   answerkey.AnswerMap
	Inspector *pdf.Inspector
	CropsDir  string
	Language  string
	Logger    *log.Logger
}

// NewBuilder returns a builder writing crops below cropsDir.
func NewBuilder(cropsDir string, logger *log.Logger) *Builder {
	if logger == nil {
		logger = log.Default()
	}
	return &Builder{
		NewRenderer:  PdftoppmFactory,
		RendererName: "pdftoppm",
		Render:       render.DefaultOptions(),
		Inspector:    pdf.NewInspector(0),
		CropsDir:     cropsDir,
		Language:     "de",
		Logger:       logger,
	}
}

// BuildResult is the output of Build.
type BuildResult struct {
	Records []Record
	Items   []ReportItem
	Exams   int
	Skipped int
}

// Build processes exams in order. An exam that fails is logged and
// skipped; the build fails only when none succeeded.
func (b *Builder) Build(ctx context.Context, exams []annotation.ExamAnnotations) (*BuildResult, error) {
	res := &BuildResult{Exams: len(exams)}
	for _, exam := range exams {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		items, err := b.BuildExam(ctx, exam)
		if err != nil {
			b.Logger.Printf("skipping exam %s: %v", exam.ExamID, err)
			res.Skipped++
			continue
		}
		for _, it := range items {
			res.Records = append(res.Records, it.Record)
		}
		res.Items = append(res.Items, items...)
	}
	if len(exams) > 0 && res.Skipped == len(exams) {
		return res, ErrNoExamSucceeded
	}
	return res, nil
}

type questionCrops struct {
	question string
	options  map[string]string
	assoc    []string
	dpi      map[string]int
}

// BuildExam renders, transcribes and assembles every question of exam.
func (b *Builder) BuildExam(ctx context.Context, exam annotation.ExamAnnotations) ([]ReportItem, error) {
	if len(exam.Questions) == 0 {
		return nil, fmt.Errorf("no questions annotated")
	}
	var sha *string
	if b.Inspector != nil {
		info, err := b.Inspector.Inspect(exam.PDFPath)
		if err != nil {
			return nil, err
		}
		sha = &info.SHA256
	} else if sum, err := pdf.FileSHA256(exam.PDFPath); err == nil {
		sha = &sum
	}

	r, err := b.NewRenderer(exam.PDFPath)
	if err != nil {
		return nil, err
	}
	mr := render.NewMaskRenderer(r, b.Render)

	crops := make([]questionCrops, len(exam.Questions))
	paths := make([]string, len(exam.Questions))
	for i, q := range exam.Questions {
		crops[i] = b.renderQuestion(ctx, mr, exam, q)
		paths[i] = crops[i].question
	}

	texts := make([]string, len(paths))
	if b.OCR != nil {
		texts = b.OCR.Run(ctx, paths)
	}

	engine := "none"
	if b.OCR != nil && b.OCR.Engine != nil {
		engine = b.OCR.Engine.Name()
	}

	total := len(exam.Questions)
	items := make([]ReportItem, 0, total)
	for i, q := range exam.Questions {
		answer := ""
		if b.Answers != nil {
			if a, err := b.Answers.Lookup(exam.ExamID, q.ProblemNumber); err == nil {
				answer = a
			}
		}
		rec := b.assemble(exam, q, i+1, total, texts[i], crops[i], answer)
		rec.Provenance.PDFSHA256 = sha
		rec.Provenance.OCREngine = engine
		items = append(items, ReportItem{CropPath: crops[i].question, Record: rec})
	}
	return items, nil
}

func (b *Builder) renderQuestion(ctx context.Context, mr *render.MaskRenderer, exam annotation.ExamAnnotations, q annotation.QuestionUnit) questionCrops {
	out := questionCrops{options: map[string]string{}, dpi: map[string]int{}}
	base := safeName(exam.ExamID) + "_" + safeName(q.QuestionID)

	overlaps := append([]geometry.BBox{}, q.AssociatedImages...)
	for _, l := range sortedKeys(q.ImageOptions) {
		overlaps = append(overlaps, q.ImageOptions[l])
	}

	var parts []image.Image
	maxDPI := 0
	for _, tb := range q.TextBoxes {
		crop, err := mr.Render(ctx, render.Request{Target: tb, Gray: b.Render.Grayscale, Overlaps: overlaps})
		if err != nil {
			b.Logger.Printf("question %s: text box on page %d: %v", base, tb.PageIndex+1, err)
			continue
		}
		parts = append(parts, crop.Image)
		maxDPI = max(maxDPI, crop.DPI)
	}
	out.dpi["question"] = maxDPI
	if len(parts) > 0 {
		img := parts[0]
		if len(parts) > 1 {
			stacked, err := render.StackVertical(parts)
			if err != nil {
				b.Logger.Printf("question %s: %v", base, err)
			} else {
				img = stacked
			}
		}
		path := filepath.Join(b.CropsDir, "question", base+".png")
		if err := render.SavePNG(path, img); err != nil {
			b.Logger.Printf("question %s: %v", base, err)
		} else {
			out.question = path
		}
	}

	for _, l := range sortedKeys(q.ImageOptions) {
		path := filepath.Join(b.CropsDir, "option_image", base+"_opt"+l+".png")
		if dpi, ok := b.saveCrop(ctx, mr, q.ImageOptions[l], path, base); ok {
			out.options[l] = path
			out.dpi["opt_"+l] = dpi
		}
	}
	for i, bb := range q.AssociatedImages {
		n := strconv.Itoa(i + 1)
		path := filepath.Join(b.CropsDir, "assoc_image", base+"_img"+n+".png")
		if dpi, ok := b.saveCrop(ctx, mr, bb, path, base); ok {
			out.assoc = append(out.assoc, path)
			out.dpi["img_"+n] = dpi
		}
	}
	return out
}

// saveCrop renders an image region in colour.
func (b *Builder) saveCrop(ctx context.Context, mr *render.MaskRenderer, bb geometry.BBox, path, base string) (int, bool) {
	crop, err := mr.Render(ctx, render.Request{Target: bb})
	if err != nil {
		b.Logger.Printf("question %s: image on page %d: %v", base, bb.PageIndex+1, err)
		return 0, false
	}
	if err := render.SavePNG(path, crop.Image); err != nil {
		b.Logger.Printf("question %s: %v", base, err)
		return 0, false
	}
	return crop.DPI, true
}

func (b *Builder) assemble(exam annotation.ExamAnnotations, q annotation.QuestionUnit, index, total int, text string, c questionCrops, answer string) Record {
	stem, opts := options.Split(ocr.NormalizeText(text))

	rec := Record{
		ID:               exam.ExamID + "_" + q.QuestionID,
		Year:             exam.Year,
		Group:            exam.Group,
		Points:           annotation.PointsForIndex(total, index),
		ProblemNumber:    q.ProblemNumber,
		ProblemStatement: strings.TrimSpace(stem),
		AssociatedImages: append([]string{}, c.assoc...),
		Language:         b.Language,
		Multimodal:       len(c.assoc) > 0 || len(c.options) > 0,
		Answer:           optional(answer),
		Provenance: Provenance{
			PDFPath:          exam.PDFPath,
			TextBoxes:        q.TextBoxes,
			AssociatedImages: q.AssociatedImages,
			ImageOptions:     q.ImageOptions,
			DPIUsed:          c.dpi,
			Renderer:         b.RendererName,
		},
	}
	for _, l := range Letters {
		rec.SetOption(l, strings.TrimSpace(opts[l]))
		rec.SetOptionImage(l, c.options[l])
	}
	rec.Quality = DeriveQuality(&rec)
	return rec
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var unsafeName = strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")

func safeName(s string) string {
	return unsafeName.Replace(s)
}
