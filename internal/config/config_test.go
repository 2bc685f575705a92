package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/a3tai/exam-dataset/internal/ocr"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Mode != ModeBuild {
		t.Errorf("Expected default mode to be 'build', got '%s'", cfg.Mode)
	}
	if cfg.Port != 8080 {
		t.Errorf("Expected default port to be 8080, got %d", cfg.Port)
	}
	if cfg.BatchSize != ocr.DefaultBatchSize {
		t.Errorf("Expected default batch size %d, got %d", ocr.DefaultBatchSize, cfg.BatchSize)
	}
	if cfg.MinWidthPx != 1200 || cfg.MinHeightPx != 600 || cfg.MinDPI != 300 || cfg.MaxDPI != 600 || !cfg.Grayscale {
		t.Errorf("Unexpected render defaults: %+v", cfg.RenderOptions())
	}
	if cfg.OCRProvider != ocr.ProviderMistral {
		t.Errorf("Expected default OCR provider mistral, got '%s'", cfg.OCRProvider)
	}

	currentDir, _ := os.Getwd()
	if cfg.PDFDirectory != filepath.Join(currentDir, "exams") {
		t.Errorf("Expected default PDF directory under '%s', got '%s'", currentDir, cfg.PDFDirectory)
	}
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.PDFDirectory = filepath.Join(t.TempDir(), "exams")
	cfg.OutputDirectory = filepath.Join(t.TempDir(), "out")
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr string
	}{
		{name: "valid build config", modify: func(c *Config) {}},
		{name: "valid review config", modify: func(c *Config) { c.Mode = ModeReview; c.Port = 9090 }},
		{name: "invalid mode", modify: func(c *Config) { c.Mode = "stdio" }, wantErr: "mode must be one of"},
		{name: "review port out of range", modify: func(c *Config) { c.Mode = ModeReview; c.Port = 70000 }, wantErr: "port"},
		{name: "port ignored outside review", modify: func(c *Config) { c.Port = 0 }},
		{name: "empty PDF directory", modify: func(c *Config) { c.PDFDirectory = "" }, wantErr: "PDF directory cannot be empty"},
		{name: "merge needs no PDF directory", modify: func(c *Config) { c.Mode = ModeMerge; c.PDFDirectory = "" }},
		{name: "answerkeys needs a PDF", modify: func(c *Config) { c.Mode = ModeAnswerKeys }, wantErr: "--answer-pdf"},
		{name: "zero batch size", modify: func(c *Config) { c.BatchSize = 0 }, wantErr: "batch size"},
		{name: "negative retries", modify: func(c *Config) { c.EmptyRetries = -1 }, wantErr: "retries"},
		{name: "inverted DPI range", modify: func(c *Config) { c.MinDPI = 600; c.MaxDPI = 300 }, wantErr: "DPI range"},
		{name: "zero crop width", modify: func(c *Config) { c.MinWidthPx = 0 }, wantErr: "crop size"},
		{name: "zero max file size", modify: func(c *Config) { c.MaxFileSize = 0 }, wantErr: "file size"},
		{name: "invalid gin mode", modify: func(c *Config) { c.GinMode = "fast" }, wantErr: "gin mode"},
		{name: "invalid log level", modify: func(c *Config) { c.LogLevel = "verbose" }, wantErr: "log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateCreatesDirectories(t *testing.T) {
	cfg := validConfig(t)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
	for _, dir := range []string{cfg.PDFDirectory, cfg.OutputDirectory} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("Expected directory %s to be created", dir)
		}
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OutputDirectory = "/data/out"

	if got := cfg.Dataset(); got != "/data/out/dataset.jsonl" {
		t.Errorf("Dataset() = %s", got)
	}
	if got := cfg.Edits(); got != "/data/out/edits.json" {
		t.Errorf("Edits() = %s", got)
	}
	if got := cfg.CropsDir(); got != "/data/out/crops" {
		t.Errorf("CropsDir() = %s", got)
	}
	if got := cfg.AnswerKeyDir(); got != "/data/out/answer_keys" {
		t.Errorf("AnswerKeyDir() = %s", got)
	}

	cfg.DatasetPath = "/elsewhere/d.jsonl"
	cfg.EditsPath = "/elsewhere/e.json"
	if cfg.Dataset() != "/elsewhere/d.jsonl" || cfg.Edits() != "/elsewhere/e.json" {
		t.Errorf("explicit paths not honoured: %s %s", cfg.Dataset(), cfg.Edits())
	}
}

func TestOCRConfigPicksProviderKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MistralAPIKey = "m-key"
	cfg.GeminiAPIKey = "g-key"
	cfg.OCRTimeout = 3 * time.Second

	if got := cfg.OCRConfig(); got.APIKey != "m-key" || got.Timeout != 3*time.Second {
		t.Errorf("OCRConfig() = %+v", got)
	}
	cfg.OCRProvider = "Gemini"
	if got := cfg.OCRConfig(); got.APIKey != "g-key" {
		t.Errorf("OCRConfig() gemini key = %s", got.APIKey)
	}
}

func TestConfigHelpers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "::1"
	cfg.Port = 9000

	if got := cfg.Address(); got != "[::1]:9000" {
		t.Errorf("Address() = %s", got)
	}
	if cfg.IsDebug() {
		t.Error("IsDebug() should be false for info")
	}
	cfg.LogLevel = "debug"
	if !cfg.IsDebug() {
		t.Error("IsDebug() should be true for debug")
	}

	cfg.Mode = ModeReview
	if !cfg.IsReviewMode() || cfg.IsMCPMode() || !cfg.IsLongRunning() {
		t.Error("review mode predicates wrong")
	}
	cfg.Mode = ModeMCP
	if !cfg.IsMCPMode() || !cfg.IsLongRunning() {
		t.Error("mcp mode predicates wrong")
	}
	cfg.Mode = ModeDedupe
	if cfg.IsLongRunning() {
		t.Error("dedupe is not long running")
	}

	if s := cfg.String(); !strings.Contains(s, "Mode: dedupe") {
		t.Errorf("String() = %s", s)
	}
}
