// Package ocr turns rendered crops into text. Engines are chosen once from
// configuration and passed to the components that need them.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Engine extracts best-effort text from an image or PDF file. An empty
// result without an error means the engine saw nothing.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, path string) (string, error)
}

var (
	ErrNoAPIKey      = errors.New("ocr: API key not set")
	ErrOCRNotEnabled = errors.New("ocr: tesseract support not compiled in (build with -tags ocr)")
)

// Providers accepted by NewEngine.
const (
	ProviderMistral   = "mistral"
	ProviderGemini    = "gemini"
	ProviderTesseract = "tesseract"
)

// Config selects and tunes an engine.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	Retries  int
	Timeout  time.Duration
	Language string
}

// NewEngine builds the engine named by cfg.Provider.
func NewEngine(cfg Config) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderMistral, "":
		m, err := NewMistral(cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		m.Retries = cfg.Retries
		if cfg.Timeout > 0 {
			m.Client.Timeout = cfg.Timeout
		}
		return m, nil
	case ProviderGemini:
		return NewGemini(cfg.APIKey, cfg.Model)
	case ProviderTesseract:
		return NewTesseract(cfg.Language)
	default:
		return nil, fmt.Errorf("unknown OCR provider %q", cfg.Provider)
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
