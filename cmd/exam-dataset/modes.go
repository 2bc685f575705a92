package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar"

	"github.com/a3tai/exam-dataset/internal/annotation"
	"github.com/a3tai/exam-dataset/internal/answerkey"
	"github.com/a3tai/exam-dataset/internal/config"
	"github.com/a3tai/exam-dataset/internal/dataset"
	"github.com/a3tai/exam-dataset/internal/edits"
	"github.com/a3tai/exam-dataset/internal/fileutil"
	"github.com/a3tai/exam-dataset/internal/mcp"
	"github.com/a3tai/exam-dataset/internal/ocr"
	"github.com/a3tai/exam-dataset/internal/pdf"
	pdferrors "github.com/a3tai/exam-dataset/internal/pdf/errors"
	"github.com/a3tai/exam-dataset/internal/render"
	"github.com/a3tai/exam-dataset/internal/review"
)

// run dispatches on cfg.Mode. Only failures that should fail the process
// are returned; per-exam and per-file problems are logged and skipped.
func run(ctx context.Context, cfg *config.Config, logger *log.Logger, out io.Writer) error {
	switch cfg.Mode {
	case config.ModeBuild:
		return runBuild(ctx, cfg, logger, out)
	case config.ModeAnswerKeys:
		return runAnswerKeys(ctx, cfg, logger, out)
	case config.ModeMerge:
		return runMerge(cfg, out)
	case config.ModeDedupe:
		return runDedupe(cfg, out)
	case config.ModeSeed:
		return runSeed(cfg, logger, out)
	case config.ModeLabels:
		return runLabels(ctx, cfg, logger, out)
	case config.ModeReview:
		return runReview(ctx, cfg, logger)
	case config.ModeMCP:
		server, err := mcp.NewServer(cfg, logger)
		if err != nil {
			return err
		}
		return server.Run(ctx)
	default:
		return fmt.Errorf("unknown mode %q", cfg.Mode)
	}
}

// newOCREngine builds the configured engine behind a cache. The returned
// func releases the cache.
func newOCREngine(ctx context.Context, cfg *config.Config, logger *log.Logger) (ocr.Engine, func(), error) {
	engine, err := ocr.NewEngine(cfg.OCRConfig())
	if err != nil {
		return nil, nil, err
	}
	if cfg.CacheDSN == "" {
		return ocr.WithCache(engine, ocr.NewMemoryCache(), logger), func() {}, nil
	}
	cache, err := ocr.NewPGCache(ctx, cfg.CacheDSN)
	if err != nil {
		return nil, nil, err
	}
	return ocr.WithCache(engine, cache, logger), cache.Close, nil
}

// loadAnswers reads --answer-key, or the extracted per-year files when they
// exist. A build without answers is allowed.
func loadAnswers(cfg *config.Config, logger *log.Logger) (answerkey.AnswerMap, error) {
	path := cfg.AnswerKeyPath
	if path == "" {
		if !fileutil.Exists(cfg.AnswerKeyDir()) {
			logger.Printf("no answer key configured; answers stay empty")
			return nil, nil
		}
		path = cfg.AnswerKeyDir()
	}
	answers, err := answerkey.LoadAnswerMap(path, cfg.PDFDirectory)
	if err != nil {
		return nil, err
	}
	logger.Printf("loaded answers for %d exam keys from %s", len(answers), path)
	return answers, nil
}

func runBuild(ctx context.Context, cfg *config.Config, logger *log.Logger, out io.Writer) error {
	exams, err := annotation.LoadAllExams(cfg.PDFDirectory, logger)
	if err != nil {
		return err
	}
	if len(exams) == 0 {
		return fmt.Errorf("%w: no annotated exams in %s", dataset.ErrNoExamSucceeded, cfg.PDFDirectory)
	}

	answers, err := loadAnswers(cfg, logger)
	if err != nil {
		return err
	}
	b, release := newBuilder(ctx, cfg, logger)
	defer release()
	b.Answers = answers

	res, err := b.Build(ctx, exams)
	if err != nil {
		return err
	}
	if err := dataset.WriteJSONL(cfg.Dataset(), res.Records); err != nil {
		return err
	}

	fmt.Fprintf(out, "wrote %s (%d of %d exams, %d skipped)\n", cfg.Dataset(), res.Exams-res.Skipped, res.Exams, res.Skipped)
	fmt.Fprintln(out, dataset.Summarize(res.Records).String())
	if cfg.Report {
		report := filepath.Join(cfg.OutputDirectory, "report.html")
		if err := dataset.WriteReport(report, res.Items); err != nil {
			logger.Printf("failed to write report: %v", err)
		} else {
			fmt.Fprintf(out, "report: %s\n", report)
		}
	}
	return nil
}

// newBuilder configures a dataset builder. OCR is skipped with --no-ocr or
// when the engine cannot be built; statements then stay empty and records
// are flagged for review.
func newBuilder(ctx context.Context, cfg *config.Config, logger *log.Logger) (*dataset.Builder, func()) {
	b := dataset.NewBuilder(cfg.CropsDir(), logger)
	b.Render = cfg.RenderOptions()
	b.Inspector = pdf.NewInspector(cfg.MaxFileSize)
	if cfg.NoOCR {
		logger.Printf("OCR disabled; statements stay empty")
		return b, func() {}
	}
	engine, release, err := newOCREngine(ctx, cfg, logger)
	if err != nil {
		logger.Printf("warning: building without OCR: %v", err)
		return b, func() {}
	}
	b.OCR = ocr.NewBatch(engine, cfg.BatchSize, cfg.EmptyRetries, logger)
	return b, release
}

func runAnswerKeys(ctx context.Context, cfg *config.Config, logger *log.Logger, out io.Writer) error {
	extractor := answerkey.NewExtractor(logger)
	if cfg.Debug {
		if r, err := render.NewPdftoppm(cfg.AnswerKeyPDF); err == nil {
			extractor.Renderer = r
		} else {
			logger.Printf("debug overlays drawn without page images: %v", err)
		}
	}

	res, err := extractor.Run(ctx, cfg.AnswerKeyPDF, answerkey.Options{
		OutputDir: cfg.AnswerKeyDir(),
		Overwrite: cfg.Overwrite,
		Strict:    cfg.Strict,
		Debug:     cfg.Debug,
		Years:     cfg.Years,
	})
	if err != nil {
		return err
	}
	for _, y := range res.Years {
		groups := make([]string, 0, len(y.GradeGroups))
		for g := range y.GradeGroups {
			groups = append(groups, g)
		}
		sort.Strings(groups)
		fmt.Fprintf(out, "%d: %s\n", y.Year, strings.Join(groups, ", "))
		for _, w := range y.ValidationWarnings {
			fmt.Fprintf(out, "  warning: %s\n", w)
		}
	}
	for _, p := range res.Written {
		fmt.Fprintf(out, "wrote %s\n", p)
	}
	return nil
}

func runMerge(cfg *config.Config, out io.Writer) error {
	target := cfg.OutputPath
	if target == "" {
		target = strings.TrimSuffix(cfg.Dataset(), filepath.Ext(cfg.Dataset())) + ".edited.jsonl"
	}
	if !cfg.Overwrite && fileutil.Exists(target) {
		return pdferrors.Newf(pdferrors.KindOverwriteProtection,
			"refusing to overwrite existing file %s; use --overwrite to allow", target)
	}

	res, err := edits.ApplyFile(cfg.Dataset(), cfg.Edits(), target, cfg.OnlyReviewed)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s: %d records, %d patched\n", target, res.Records, res.Patched)
	return nil
}

func runDedupe(cfg *config.Config, out io.Writer) error {
	res, err := dataset.Dedupe(dataset.DedupeOptions{
		Input:     cfg.Dataset(),
		Output:    cfg.OutputPath,
		Subset:    cfg.SubsetPath,
		Overwrite: cfg.Overwrite,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "overlapping records: %d before, %d after; %d corrected\n", res.Before, res.After, res.Corrected)
	fmt.Fprintf(out, "wrote %s\nwrote %s\n", res.Output, res.Subset)
	if res.After > 0 {
		return fmt.Errorf("%d records still have overlapping option images", res.After)
	}
	return nil
}

func examPDFs(dir string) ([]string, error) {
	pdfs, err := doublestar.Glob(filepath.Join(dir, "**", "*.pdf"))
	if err != nil {
		return nil, fmt.Errorf("failed to list PDFs in %s: %w", dir, err)
	}
	sort.Strings(pdfs)
	return pdfs, nil
}

func openWithState(path string) (*pdf.Document, *annotation.State, error) {
	doc, err := pdf.Open(path)
	if err != nil {
		return nil, nil, err
	}
	st, err := annotation.OpenState(path, func(string) (int, error) { return doc.NumPages(), nil })
	if err != nil {
		doc.Close()
		return nil, nil, err
	}
	return doc, st, nil
}

func runSeed(cfg *config.Config, logger *log.Logger, out io.Writer) error {
	pdfs, err := examPDFs(cfg.PDFDirectory)
	if err != nil {
		return err
	}
	seeder := annotation.NewSeeder(logger)
	total := 0
	for _, path := range pdfs {
		doc, st, err := openWithState(path)
		if err != nil {
			logger.Printf("skipping %s: %v", path, err)
			continue
		}
		fresh := !fileutil.Exists(annotation.SidecarPath(path))
		n := seeder.Seed(doc, st)
		doc.Close()
		if n == 0 && !fresh {
			continue
		}
		if err := annotation.SaveState(path, st); err != nil {
			logger.Printf("failed to save masks for %s: %v", path, err)
			continue
		}
		total += n
		fmt.Fprintf(out, "%s: %d masks seeded\n", path, n)
	}
	fmt.Fprintf(out, "seeded %d masks in %d PDFs\n", total, len(pdfs))
	return nil
}

func runLabels(ctx context.Context, cfg *config.Config, logger *log.Logger, out io.Writer) error {
	pdfs, err := examPDFs(cfg.PDFDirectory)
	if err != nil {
		return err
	}
	engine, release, err := newOCREngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer release()

	updated := 0
	for _, path := range pdfs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !fileutil.Exists(annotation.SidecarPath(path)) {
			continue
		}
		if labelPDF(ctx, path, engine, cfg.Overwrite, logger) {
			updated++
			fmt.Fprintf(out, "%s: labels updated\n", path)
		}
	}
	fmt.Fprintf(out, "updated labels in %d of %d PDFs\n", updated, len(pdfs))
	return nil
}

func labelPDF(ctx context.Context, path string, engine ocr.Engine, overwrite bool, logger *log.Logger) bool {
	doc, st, err := openWithState(path)
	if err != nil {
		logger.Printf("skipping %s: %v", path, err)
		return false
	}
	defer doc.Close()

	r, err := render.NewPdftoppm(path)
	if err != nil {
		logger.Printf("skipping %s: %v", path, err)
		return false
	}
	changed, err := annotation.NewLabeler(r, engine, doc, logger).Label(ctx, st, overwrite)
	if err != nil {
		logger.Printf("labeling %s: %v", path, err)
	}
	if !changed {
		return false
	}
	if err := annotation.SaveState(path, st); err != nil {
		logger.Printf("failed to save labels for %s: %v", path, err)
		return false
	}
	return true
}

func runReview(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	store, err := review.NewStore(cfg.Dataset(), cfg.Edits())
	if err != nil {
		return err
	}
	srv := review.NewServer(store, review.Options{
		Host:      cfg.Host,
		Port:      cfg.Port,
		GinMode:   cfg.GinMode,
		CropsDir:  cfg.CropsDir(),
		JWTSecret: cfg.JWTSecret,
		JWTIssuer: cfg.JWTIssuer,
	}, logger)
	logger.Printf("Reviewing %s (%d records)", cfg.Dataset(), store.Stats().Total)
	return srv.Run(ctx)
}
