//go:build ocr

package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract runs a local Tesseract install. A client is created per call
// because gosseract clients are not safe for concurrent use.
type Tesseract struct {
	Languages []string
}

// NewTesseract returns an engine for the "+"-separated language list;
// empty means German and English.
func NewTesseract(language string) (Engine, error) {
	langs := []string{"deu", "eng"}
	if language = strings.TrimSpace(language); language != "" {
		langs = strings.Split(language, "+")
	}
	return &Tesseract{Languages: langs}, nil
}

func (t *Tesseract) Name() string { return "tesseract:" + strings.Join(t.Languages, "+") }

// Recognize runs OCR on the image file.
func (t *Tesseract) Recognize(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.Languages...); err != nil {
		return "", fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetImage(path); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("OCR failed: %w", err)
	}
	return strings.TrimSpace(text), nil
}
