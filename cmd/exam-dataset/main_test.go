package main

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/a3tai/exam-dataset/internal/annotation"
	"github.com/a3tai/exam-dataset/internal/config"
	"github.com/a3tai/exam-dataset/internal/dataset"
	"github.com/a3tai/exam-dataset/internal/geometry"
	pdferrors "github.com/a3tai/exam-dataset/internal/pdf/errors"
	"github.com/a3tai/exam-dataset/internal/render"
)

const testVersion = "1.2.3"

func TestPrintVersion(t *testing.T) {
	originalStdout := os.Stdout

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Failed to create pipe: %v", err)
	}
	os.Stdout = w

	oldVersion, oldBuildTime, oldGitCommit := version, buildTime, gitCommit
	version = testVersion
	buildTime = "2026-10-01_10:30:00"
	gitCommit = "abc123"

	defer func() {
		version, buildTime, gitCommit = oldVersion, oldBuildTime, oldGitCommit
		os.Stdout = originalStdout
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		printVersion()
		w.Close()
	}()

	var buf bytes.Buffer
	io.Copy(&buf, r)
	<-done

	output := buf.String()
	for _, expected := range []string{
		"Exam Dataset",
		"Version: " + testVersion,
		"Build Time: 2026-10-01_10:30:00",
		"Git Commit: abc123",
		"Built with:",
	} {
		if !strings.Contains(output, expected) {
			t.Errorf("printVersion() output missing expected string: %s\nActual output:\n%s", expected, output)
		}
	}
}

func TestSetupLogging(t *testing.T) {
	tests := []struct {
		name   string
		config *config.Config
		want   io.Writer
	}{
		{"mcp mode silent", &config.Config{Mode: config.ModeMCP, LogLevel: "info"}, io.Discard},
		{"mcp mode debug", &config.Config{Mode: config.ModeMCP, LogLevel: "debug"}, os.Stderr},
		{"batch mode", &config.Config{Mode: config.ModeBuild, LogLevel: "info"}, os.Stderr},
		{"review mode debug", &config.Config{Mode: config.ModeReview, LogLevel: "debug"}, os.Stderr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := setupLogging(tt.config)
			if logger.Writer() != tt.want {
				t.Errorf("setupLogging() writer = %v, want %v", logger.Writer(), tt.want)
			}
		})
	}
}

func testConfig(t *testing.T, mode string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Mode = mode
	cfg.PDFDirectory = filepath.Join(dir, "exams")
	cfg.OutputDirectory = filepath.Join(dir, "out")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	return cfg
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestRunMerge(t *testing.T) {
	cfg := testConfig(t, config.ModeMerge)
	writeFile(t, cfg.Dataset(), `{"id":"24_56_q1","answer":null,"quality":{}}
{"id":"24_56_q2","answer":"A","quality":{}}
`)
	writeFile(t, cfg.Edits(), `{"24_56_q1":{"answer":"D","meta":{"reviewed":true}}}`)

	var out bytes.Buffer
	if err := run(context.Background(), cfg, quietLogger(), &out); err != nil {
		t.Fatalf("run(merge) error = %v", err)
	}
	if !strings.Contains(out.String(), "2 records, 1 patched") {
		t.Errorf("unexpected merge output: %s", out.String())
	}

	target := filepath.Join(cfg.OutputDirectory, "dataset.edited.jsonl")
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("merged file missing: %v", err)
	}
	if !strings.Contains(string(data), `"answer":"D"`) {
		t.Errorf("patch not applied: %s", data)
	}

	err = run(context.Background(), cfg, quietLogger(), io.Discard)
	if !pdferrors.Is(err, pdferrors.KindOverwriteProtection) {
		t.Errorf("second merge error = %v, want overwrite protection", err)
	}

	cfg.Overwrite = true
	if err := run(context.Background(), cfg, quietLogger(), io.Discard); err != nil {
		t.Errorf("merge with overwrite error = %v", err)
	}
}

func TestRunDedupe(t *testing.T) {
	cfg := testConfig(t, config.ModeDedupe)
	writeFile(t, cfg.Dataset(), `{"id":"a","sol_A":"1","sol_A_image":"option_image/a_optA.png"}
{"id":"b","sol_A":"1"}
`)

	var out bytes.Buffer
	if err := run(context.Background(), cfg, quietLogger(), &out); err != nil {
		t.Fatalf("run(dedupe) error = %v", err)
	}
	if !strings.Contains(out.String(), "1 before, 0 after; 1 corrected") {
		t.Errorf("unexpected dedupe output: %s", out.String())
	}
	if _, err := os.Stat(filepath.Join(cfg.OutputDirectory, "dataset.corrected_only.jsonl")); err != nil {
		t.Errorf("subset not written: %v", err)
	}

	if err := run(context.Background(), cfg, quietLogger(), io.Discard); !pdferrors.Is(err, pdferrors.KindOverwriteProtection) {
		t.Errorf("second dedupe error = %v, want overwrite protection", err)
	}
}

func TestRunDedupeMissingInput(t *testing.T) {
	cfg := testConfig(t, config.ModeDedupe)
	if err := run(context.Background(), cfg, quietLogger(), io.Discard); err == nil {
		t.Error("expected error for a missing dataset")
	}
}

func TestRunBuildWithoutExams(t *testing.T) {
	cfg := testConfig(t, config.ModeBuild)
	err := run(context.Background(), cfg, quietLogger(), io.Discard)
	if !errors.Is(err, dataset.ErrNoExamSucceeded) {
		t.Errorf("run(build) error = %v, want ErrNoExamSucceeded", err)
	}
}

// blankRenderer returns white pages sized like a real render.
type blankRenderer struct{}

func (blankRenderer) Render(_ context.Context, _ int, clip geometry.Rect, dpi int, _ bool) (image.Image, error) {
	scale := float64(dpi) / geometry.PointsPerInch
	img := image.NewRGBA(image.Rect(0, 0, int(math.Round(clip.Width()*scale)), int(math.Round(clip.Height()*scale))))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return img, nil
}

func TestNewBuilderWithoutOCR(t *testing.T) {
	tests := []struct {
		name  string
		noOCR bool
	}{
		{"no-ocr flag", true},
		{"missing API key", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, config.ModeBuild)
			cfg.NoOCR = tt.noOCR
			cfg.OCRProvider = "mistral"
			cfg.MistralAPIKey = ""

			b, release := newBuilder(context.Background(), cfg, quietLogger())
			defer release()
			if b.OCR != nil {
				t.Fatal("builder should run without OCR")
			}
			b.NewRenderer = func(string) (render.Renderer, error) { return blankRenderer{}, nil }
			b.Inspector = nil

			pdfPath := filepath.Join(cfg.PDFDirectory, "24_56.pdf")
			writeFile(t, pdfPath, "%PDF-1.4")
			exam := annotation.ExamAnnotations{
				ExamID:  "24_56",
				PDFPath: pdfPath,
				Year:    "2024",
				Group:   "5-6",
				Questions: []annotation.QuestionUnit{{
					ExamID:        "24_56",
					QuestionID:    "q1",
					ProblemNumber: "1",
					TextBoxes:     []geometry.BBox{{PageIndex: 0, X0: 50, Y0: 100, X1: 550, Y1: 200}},
				}},
			}

			res, err := b.Build(context.Background(), []annotation.ExamAnnotations{exam})
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if len(res.Records) != 1 {
				t.Fatalf("Build() records = %d, want 1", len(res.Records))
			}
			rec := res.Records[0]
			if !rec.Quality.OCRShortText || !rec.Quality.NeedsReview {
				t.Errorf("record should be flagged ocr_short_text and needs_review: %+v", rec.Quality)
			}
			if rec.Provenance.OCREngine != "none" {
				t.Errorf("OCREngine = %q, want none", rec.Provenance.OCREngine)
			}
		})
	}
}

func TestRunSeedEmptyDirectory(t *testing.T) {
	cfg := testConfig(t, config.ModeSeed)
	var out bytes.Buffer
	if err := run(context.Background(), cfg, quietLogger(), &out); err != nil {
		t.Fatalf("run(seed) error = %v", err)
	}
	if !strings.Contains(out.String(), "seeded 0 masks in 0 PDFs") {
		t.Errorf("unexpected seed output: %s", out.String())
	}
}

func TestRunLabelsWithoutAPIKey(t *testing.T) {
	cfg := testConfig(t, config.ModeLabels)
	cfg.MistralAPIKey = ""
	if err := run(context.Background(), cfg, quietLogger(), io.Discard); err == nil {
		t.Error("expected error when the OCR engine cannot be built")
	}
}

func TestRunUnknownMode(t *testing.T) {
	cfg := &config.Config{Mode: "stdio"}
	if err := run(context.Background(), cfg, quietLogger(), io.Discard); err == nil {
		t.Error("expected error for an unknown mode")
	}
}

func TestExamPDFsRecursive(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "2024"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "b.pdf"), "%PDF")
	writeFile(t, filepath.Join(dir, "2024", "a.pdf"), "%PDF")
	writeFile(t, filepath.Join(dir, "notes.txt"), "x")

	pdfs, err := examPDFs(dir)
	if err != nil {
		t.Fatalf("examPDFs() error = %v", err)
	}
	want := []string{filepath.Join(dir, "2024", "a.pdf"), filepath.Join(dir, "b.pdf")}
	if strings.Join(pdfs, ",") != strings.Join(want, ",") {
		t.Errorf("examPDFs() = %v, want %v", pdfs, want)
	}
}
