package ocr

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-1.5-flash"

const geminiInstruction = `Transcribe all text in the image exactly as printed, including answer
option markers such as (A) to (E). Use LaTeX for formulas. Return plain text only, without comments.`

// Gemini transcribes crops with a Gemini model.
type Gemini struct {
	APIKey   string
	Model    string
	Attempts int
}

// NewGemini returns an engine for model.
func NewGemini(apiKey, model string) (*Gemini, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrNoAPIKey)
	}
	if model = strings.TrimSpace(model); model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{APIKey: apiKey, Model: model, Attempts: 3}, nil
}

func (e *Gemini) Name() string { return "gemini:" + e.Model }

// Recognize sends the image with a transcription instruction.
func (e *Gemini) Recognize(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(e.APIKey))
	if err != nil {
		return "", err
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.Model)
	m.GenerationConfig = genai.GenerationConfig{Temperature: ptrFloat32(0)}
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(geminiInstruction)}}

	mime, _ := mimeFor(path)
	parts := []genai.Part{
		genai.Text("Transcribe this exam crop."),
		&genai.Blob{MIMEType: mime, Data: data},
	}

	var lastErr error
	for attempt := 1; attempt <= e.Attempts; attempt++ {
		resp, err := m.GenerateContent(ctx, parts...)
		if err != nil {
			lastErr = err
			if err := sleep(ctx, time.Duration(attempt)*300*time.Millisecond); err != nil {
				return "", err
			}
			continue
		}
		return strings.TrimSpace(stripCodeFences(firstText(resp))), nil
	}
	return "", fmt.Errorf("gemini: %w", lastErr)
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}

func ptrFloat32(v float32) *float32 { return &v }
