package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	DefaultMistralURL   = "https://api.mistral.ai/v1/ocr"
	DefaultMistralModel = "mistral-ocr-latest"
	DefaultRetries      = 2
)

// Mistral calls the Mistral document OCR endpoint.
type Mistral struct {
	APIKey  string
	Model   string
	URL     string
	Retries int
	Client  *http.Client
	// Backoff is the pause before retry attempt+1.
	Backoff func(attempt int) time.Duration
}

// NewMistral returns an engine with the default endpoint and retry policy.
func NewMistral(apiKey, model string) (*Mistral, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("mistral: %w", ErrNoAPIKey)
	}
	if model = strings.TrimSpace(model); model == "" {
		model = DefaultMistralModel
	}
	return &Mistral{
		APIKey:  apiKey,
		Model:   model,
		URL:     DefaultMistralURL,
		Retries: DefaultRetries,
		Client:  &http.Client{Timeout: 60 * time.Second},
		Backoff: func(attempt int) time.Duration {
			return time.Duration(1500*(attempt+1)) * time.Millisecond
		},
	}, nil
}

func (m *Mistral) Name() string { return "mistral:" + m.Model }

type mistralDocument struct {
	Type        string `json:"type"`
	ImageURL    string `json:"image_url,omitempty"`
	DocumentURL string `json:"document_url,omitempty"`
}

type mistralRequest struct {
	Model              string          `json:"model"`
	Document           mistralDocument `json:"document"`
	IncludeImageBase64 bool            `json:"include_image_base64"`
}

type mistralResponse struct {
	Pages []struct {
		Markdown string `json:"markdown"`
	} `json:"pages"`
	Output string `json:"output"`
}

// Recognize posts the file as a data URL. An empty text is retried like an
// error; after the last attempt it is returned as is.
func (m *Mistral) Recognize(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	mime, kind := mimeFor(path)
	doc := mistralDocument{Type: kind}
	url := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
	if kind == "document_url" {
		doc.DocumentURL = url
	} else {
		doc.ImageURL = url
	}
	body, err := json.Marshal(mistralRequest{Model: m.Model, Document: doc})
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt <= m.Retries; attempt++ {
		text, err := m.post(ctx, body)
		if err == nil && (text != "" || attempt == m.Retries) {
			return text, nil
		}
		if err != nil {
			lastErr = err
			if attempt == m.Retries {
				return "", err
			}
		}
		if m.Backoff != nil {
			if err := sleep(ctx, m.Backoff(attempt)); err != nil {
				return "", err
			}
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("mistral: OCR failed with no further details")
	}
	return "", lastErr
}

func (m *Mistral) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.URL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+m.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("mistral: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("mistral: failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("mistral: status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}
	var out mistralResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("mistral: bad JSON: %w", err)
	}
	return out.text(), nil
}

func (r mistralResponse) text() string {
	var parts []string
	for _, p := range r.Pages {
		if p.Markdown != "" {
			parts = append(parts, p.Markdown)
		}
	}
	if len(parts) > 0 {
		return strings.TrimSpace(strings.Join(parts, "\n\n"))
	}
	return strings.TrimSpace(r.Output)
}

// mimeFor maps a file extension to its MIME type and the request field it
// travels in.
func mimeFor(path string) (mime, kind string) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg", "image_url"
	case ".webp":
		return "image/webp", "image_url"
	case ".bmp":
		return "image/bmp", "image_url"
	case ".avif":
		return "image/avif", "image_url"
	case ".pdf":
		return "application/pdf", "document_url"
	default:
		return "image/png", "image_url"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
