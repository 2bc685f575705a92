package mcp

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/a3tai/exam-dataset/internal/config"
)

const testRecords = `{"id":"24_56_q1","year":"2024","group":"5-6","problem_statement":"Wie viele Ecken?","sol_A":"1","sol_B":"2","sol_C":"3","sol_D":"4","sol_E":"5","answer":"C","quality":{"needs_review":false}}
{"id":"24_56_q2","year":"2024","group":"5-6","problem_statement":"Welche Zahl?","sol_A":"7","answer":null,"quality":{"needs_review":true}}
`

func newTestServer(t *testing.T) (*Server, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.PDFDirectory = filepath.Join(dir, "exams")
	cfg.OutputDirectory = filepath.Join(dir, "out")
	cfg.ServerName = "test-server"
	cfg.Version = "1.0.0"
	for _, d := range []string{cfg.PDFDirectory, cfg.OutputDirectory} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("failed to create %s: %v", d, err)
		}
	}
	if err := os.WriteFile(cfg.Dataset(), []byte(testRecords), 0o644); err != nil {
		t.Fatalf("failed to write dataset: %v", err)
	}

	server, err := NewServer(cfg, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return server, cfg
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func TestNewServer(t *testing.T) {
	if _, err := NewServer(nil, nil); err == nil {
		t.Error("NewServer() expected error for nil config")
	}

	server, cfg := newTestServer(t)
	if server.config != cfg {
		t.Error("server config not set correctly")
	}
	if server.mcpServer == nil || server.inspector == nil || server.extractor == nil {
		t.Error("server dependencies should be initialized")
	}
}

func TestServer_HandleSplitOptions(t *testing.T) {
	server, _ := newTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name         string
		args         map[string]interface{}
		expectError  bool
		wantContains []string
	}{
		{
			name:         "five options",
			args:         map[string]interface{}{"text": "Stem text\n(A) foo\n(B) bar\n(C) baz\n(D) qux\n(E) zap"},
			wantContains: []string{"Statement: Stem text", "(A) foo", "(E) zap"},
		},
		{
			name:         "no options",
			args:         map[string]interface{}{"text": "Just a sentence"},
			wantContains: []string{"Statement: Just a sentence", "No answer options found"},
		},
		{
			name:        "missing text",
			args:        map[string]interface{}{},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := server.handleSplitOptions(ctx, callRequest(tt.args))
			if err != nil {
				t.Fatalf("handleSplitOptions() error = %v", err)
			}
			if result.IsError != tt.expectError {
				t.Fatalf("IsError = %v, want %v: %s", result.IsError, tt.expectError, extractTextFromResult(result))
			}
			text := extractTextFromResult(result)
			for _, want := range tt.wantContains {
				if !strings.Contains(text, want) {
					t.Errorf("result %q does not contain %q", text, want)
				}
			}
		})
	}
}

func TestServer_HandleDatasetStats(t *testing.T) {
	server, cfg := newTestServer(t)
	ctx := context.Background()

	result, err := server.handleDatasetStats(ctx, callRequest(map[string]interface{}{}))
	if err != nil {
		t.Fatalf("handleDatasetStats() error = %v", err)
	}
	text := extractTextFromResult(result)
	for _, want := range []string{cfg.Dataset(), "records: 2", "complete options: 1", "needs review: 1", "with answer: 1"} {
		if !strings.Contains(text, want) {
			t.Errorf("stats %q missing %q", text, want)
		}
	}

	result, _ = server.handleDatasetStats(ctx, callRequest(map[string]interface{}{"path": "/does/not/exist.jsonl"}))
	if !result.IsError {
		t.Error("expected error result for a missing dataset")
	}
}

func TestServer_HandleLookupRecord(t *testing.T) {
	server, cfg := newTestServer(t)
	ctx := context.Background()

	patch := `{"24_56_q2": {"answer": "B"}}`
	if err := os.WriteFile(cfg.Edits(), []byte(patch), 0o644); err != nil {
		t.Fatalf("failed to write edits: %v", err)
	}

	result, err := server.handleLookupRecord(ctx, callRequest(map[string]interface{}{"id": "24_56_q2"}))
	if err != nil {
		t.Fatalf("handleLookupRecord() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", extractTextFromResult(result))
	}
	text := extractTextFromResult(result)
	if !strings.Contains(text, `"answer": "B"`) {
		t.Errorf("edit not applied: %s", text)
	}

	result, _ = server.handleLookupRecord(ctx, callRequest(map[string]interface{}{"id": "nope"}))
	if !result.IsError || !strings.Contains(extractTextFromResult(result), "nope") {
		t.Errorf("expected not found error, got %s", extractTextFromResult(result))
	}

	result, _ = server.handleLookupRecord(ctx, callRequest(map[string]interface{}{}))
	if !result.IsError {
		t.Error("expected error result for a missing id")
	}
}

func TestServer_HandleExamList(t *testing.T) {
	server, cfg := newTestServer(t)
	ctx := context.Background()

	result, _ := server.handleExamList(ctx, callRequest(map[string]interface{}{}))
	if text := extractTextFromResult(result); !strings.Contains(text, "No annotated exams found") {
		t.Errorf("empty directory result = %q", text)
	}

	direct := `{"exam_id": "custom", "year": 2019, "questions": [
		{"question_id": "x", "number": 1, "text_boxes": [{"page_index": 0, "x0": 0, "y0": 0, "x1": 1, "y1": 1}]},
		{"question_id": "y", "number": 2, "text_boxes": [{"page_index": 0, "x0": 0, "y0": 5, "x1": 1, "y1": 6}]}
	]}`
	if err := os.WriteFile(filepath.Join(cfg.PDFDirectory, "14_1113.pdf"), []byte("%PDF"), 0o644); err != nil {
		t.Fatalf("failed to write pdf: %v", err)
	}
	if err := os.WriteFile(filepath.Join(cfg.PDFDirectory, "14_1113.json"), []byte(direct), 0o644); err != nil {
		t.Fatalf("failed to write annotations: %v", err)
	}

	result, _ = server.handleExamList(ctx, callRequest(map[string]interface{}{}))
	text := extractTextFromResult(result)
	for _, want := range []string{"Found 1 annotated exam(s)", "custom (year 2019, group 11-13): 2 question(s)", "Total questions: 2"} {
		if !strings.Contains(text, want) {
			t.Errorf("exam list %q missing %q", text, want)
		}
	}
}

func TestServer_InvalidArguments(t *testing.T) {
	server, cfg := newTestServer(t)
	ctx := context.Background()

	notPDF := filepath.Join(cfg.PDFDirectory, "notes.pdf")
	if err := os.WriteFile(notPDF, []byte("plain text"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	tests := []struct {
		name    string
		handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
		args    map[string]interface{}
	}{
		{"inspect without path", server.handlePDFInspect, map[string]interface{}{}},
		{"inspect missing file", server.handlePDFInspect, map[string]interface{}{"path": "missing.pdf"}},
		{"inspect non-PDF", server.handlePDFInspect, map[string]interface{}{"path": "notes.pdf"}},
		{"vector without page", server.handleDetectVectorRegions, map[string]interface{}{"path": "missing.pdf"}},
		{"vector bad page", server.handleDetectVectorRegions, map[string]interface{}{"path": "missing.pdf", "page": "one"}},
		{"vector missing file", server.handleDetectVectorRegions, map[string]interface{}{"path": "missing.pdf", "page": float64(1)}},
		{"question missing file", server.handleDetectQuestionRegions, map[string]interface{}{"path": "missing.pdf", "page": 1}},
		{"answer keys bad years", server.handleExtractAnswerKeys, map[string]interface{}{"path": "keys.pdf", "years": "20x9"}},
		{"answer keys missing file", server.handleExtractAnswerKeys, map[string]interface{}{"path": "keys.pdf"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.handler(ctx, callRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error = %v", err)
			}
			if !result.IsError {
				t.Errorf("expected error result, got %s", extractTextFromResult(result))
			}
		})
	}
}

func TestServer_HandleServerInfo(t *testing.T) {
	server, cfg := newTestServer(t)

	result, err := server.handleServerInfo(context.Background(), callRequest(nil))
	if err != nil {
		t.Fatalf("handleServerInfo() error = %v", err)
	}
	text := extractTextFromResult(result)
	for _, want := range []string{"test-server v1.0.0", cfg.AnswerKeyDir(), "lookup_record", "split_options"} {
		if !strings.Contains(text, want) {
			t.Errorf("server info missing %q", want)
		}
	}
}

func TestArgumentHelpers(t *testing.T) {
	req := callRequest(map[string]interface{}{
		"page":      " 3 ",
		"overwrite": "true",
		"strict":    true,
	})
	if n, err := intArg(req, "page"); err != nil || n != 3 {
		t.Errorf("intArg() = %d, %v", n, err)
	}
	if !boolArg(req, "overwrite") || !boolArg(req, "strict") || boolArg(req, "missing") {
		t.Error("boolArg() returned wrong values")
	}

	years, err := parseYears("2019, 2021,")
	if err != nil || len(years) != 2 || years[1] != 2021 {
		t.Errorf("parseYears() = %v, %v", years, err)
	}
}

func TestResolve(t *testing.T) {
	server, cfg := newTestServer(t)

	if got, err := server.resolve("a.pdf"); err != nil || got != filepath.Join(cfg.PDFDirectory, "a.pdf") {
		t.Errorf("resolve(relative) = %s, %v", got, err)
	}
	if got, err := server.resolve(cfg.Dataset()); err != nil || got != cfg.Dataset() {
		t.Errorf("resolve(output) = %s, %v", got, err)
	}
	if _, err := server.resolve("/abs/a.pdf"); err == nil {
		t.Error("resolve() should reject paths outside the configured directories")
	}

	result, _ := server.handleDatasetStats(context.Background(), callRequest(map[string]interface{}{"path": "../../etc/passwd"}))
	if !result.IsError || !strings.Contains(extractTextFromResult(result), "outside") {
		t.Errorf("expected traversal to be rejected, got %s", extractTextFromResult(result))
	}
}

// extractTextFromResult returns the first text content of a tool result
func extractTextFromResult(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}

	for _, content := range result.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			return textContent.Text
		}
		if textContentPtr, ok := content.(*mcp.TextContent); ok {
			return textContentPtr.Text
		}
	}

	return ""
}
