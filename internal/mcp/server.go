package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/a3tai/exam-dataset/internal/annotation"
	"github.com/a3tai/exam-dataset/internal/answerkey"
	"github.com/a3tai/exam-dataset/internal/config"
	"github.com/a3tai/exam-dataset/internal/dataset"
	"github.com/a3tai/exam-dataset/internal/descriptions"
	"github.com/a3tai/exam-dataset/internal/fileutil"
	"github.com/a3tai/exam-dataset/internal/geometry"
	"github.com/a3tai/exam-dataset/internal/options"
	"github.com/a3tai/exam-dataset/internal/pdf"
	"github.com/a3tai/exam-dataset/internal/regions"
	"github.com/a3tai/exam-dataset/internal/review"
)

// Server represents the MCP server instance
type Server struct {
	config    *config.Config
	guard     *fileutil.Guard
	inspector *pdf.Inspector
	extractor *answerkey.Extractor
	logger    *log.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, logger *log.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = log.Default()
	}

	roots := []string{cfg.PDFDirectory, cfg.OutputDirectory}
	if cfg.AnswerKeyPDF != "" {
		roots = append(roots, filepath.Dir(cfg.AnswerKeyPDF))
	}
	guard, err := fileutil.NewGuard(roots...)
	if err != nil {
		return nil, err
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		config:    cfg,
		guard:     guard,
		inspector: pdf.NewInspector(cfg.MaxFileSize),
		extractor: answerkey.NewExtractor(logger),
		logger:    logger,
		mcpServer: mcpServer,
	}

	s.registerTools()

	return s, nil
}

func pathParam(desc string) mcp.ToolOption {
	return mcp.WithString("path",
		mcp.Required(),
		mcp.Description(desc),
	)
}

func pageParam() mcp.ToolOption {
	return mcp.WithNumber("page",
		mcp.Required(),
		mcp.Description("1-based page number"),
	)
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		"exam_list",
		mcp.WithDescription(descriptions.GetToolDescription("exam_list")),
		mcp.WithString("directory",
			mcp.Description("Exam directory (uses the configured one if empty)"),
		),
	), s.handleExamList)

	s.mcpServer.AddTool(mcp.NewTool(
		"pdf_inspect",
		mcp.WithDescription(descriptions.GetToolDescription("pdf_inspect")),
		pathParam("Path to the PDF file, relative paths resolve against the exam directory"),
	), s.handlePDFInspect)

	s.mcpServer.AddTool(mcp.NewTool(
		"detect_vector_regions",
		mcp.WithDescription(descriptions.GetToolDescription("detect_vector_regions")),
		pathParam("Path to the exam PDF"),
		pageParam(),
	), s.handleDetectVectorRegions)

	s.mcpServer.AddTool(mcp.NewTool(
		"detect_question_regions",
		mcp.WithDescription(descriptions.GetToolDescription("detect_question_regions")),
		pathParam("Path to the exam PDF"),
		pageParam(),
	), s.handleDetectQuestionRegions)

	s.mcpServer.AddTool(mcp.NewTool(
		"split_options",
		mcp.WithDescription(descriptions.GetToolDescription("split_options")),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Recognized question text"),
		),
	), s.handleSplitOptions)

	s.mcpServer.AddTool(mcp.NewTool(
		"extract_answer_keys",
		mcp.WithDescription(descriptions.GetToolDescription("extract_answer_keys")),
		pathParam("Path to the answer-key PDF"),
		mcp.WithString("years",
			mcp.Description("Comma-separated years to write (all if empty)"),
		),
		mcp.WithBoolean("overwrite",
			mcp.Description("Replace existing per-year files"),
		),
		mcp.WithBoolean("strict",
			mcp.Description("Fail on count mismatches and validation warnings"),
		),
	), s.handleExtractAnswerKeys)

	s.mcpServer.AddTool(mcp.NewTool(
		"dataset_stats",
		mcp.WithDescription(descriptions.GetToolDescription("dataset_stats")),
		mcp.WithString("path",
			mcp.Description("Dataset JSONL (uses the configured dataset if empty)"),
		),
	), s.handleDatasetStats)

	s.mcpServer.AddTool(mcp.NewTool(
		"lookup_record",
		mcp.WithDescription(descriptions.GetToolDescription("lookup_record")),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Record id, e.g. 24_56_q7"),
		),
	), s.handleLookupRecord)

	s.mcpServer.AddTool(mcp.NewTool(
		"server_info",
		mcp.WithDescription(descriptions.GetToolDescription("server_info")),
	), s.handleServerInfo)
}

// resolve makes relative paths relative to the exam directory and rejects
// paths outside the exam, output and answer-key directories.
func (s *Server) resolve(path string) (string, error) {
	return s.guard.Resolve(path)
}

func stringArg(request mcp.CallToolRequest, key string) string {
	v, _ := request.GetArguments()[key].(string)
	return v
}

func boolArg(request mcp.CallToolRequest, key string) bool {
	switch v := request.GetArguments()[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

// intArg accepts JSON numbers and numeric strings.
func intArg(request mcp.CallToolRequest, key string) (int, error) {
	switch v := request.GetArguments()[key].(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("%s must be a number", key)
		}
		return n, nil
	case nil:
		return 0, fmt.Errorf("required argument %q not found", key)
	}
	return 0, fmt.Errorf("%s must be a number", key)
}

func parseYears(s string) ([]int, error) {
	var years []int
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		y, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid year %q", f)
		}
		years = append(years, y)
	}
	return years, nil
}

// Handler functions
func (s *Server) handleExamList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir := stringArg(request, "directory")
	if dir == "" {
		dir = s.config.PDFDirectory
	}
	dir, err := s.resolve(dir)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	exams, err := annotation.LoadAllExams(dir, s.logger)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(s.formatExamList(dir, exams)), nil
}

func (s *Server) handlePDFInspect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	path, err = s.resolve(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	info, err := s.inspector.Inspect(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	responseText := fmt.Sprintf("PDF: %s\n", info.Path)
	responseText += fmt.Sprintf("Pages: %d\n", info.PageCount)
	responseText += fmt.Sprintf("Size: %d bytes\n", info.Size)
	responseText += fmt.Sprintf("SHA-256: %s\n", info.SHA256)
	for i, d := range info.PageSizes {
		responseText += fmt.Sprintf("  Page %d: %.1f x %.1f pt\n", i+1, d.Width, d.Height)
	}

	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handleDetectVectorRegions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.detect(request, "figure", regions.NewVectorDetector(s.logger))
}

func (s *Server) handleDetectQuestionRegions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.detect(request, "question", regions.NewQuestionDetector(s.logger))
}

func (s *Server) detect(request mcp.CallToolRequest, kind string, d annotation.Detector) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	page, err := intArg(request, "page")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	path, err = s.resolve(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := pdf.Open(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defer doc.Close()

	if page < 1 || page > doc.NumPages() {
		return mcp.NewToolResultError(fmt.Sprintf("page %d out of range (document has %d pages)", page, doc.NumPages())), nil
	}

	rects := d.Detect(doc, page-1)
	return mcp.NewToolResultText(formatRegions(kind, page, rects)), nil
}

func (s *Server) handleSplitOptions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	statement, opts := options.Split(text)
	responseText := fmt.Sprintf("Statement: %s\n", statement)
	if len(opts) == 0 {
		responseText += "No answer options found\n"
	}
	for _, l := range dataset.Letters {
		if v, ok := opts[l]; ok {
			responseText += fmt.Sprintf("(%s) %s\n", l, v)
		}
	}

	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handleExtractAnswerKeys(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	years, err := parseYears(stringArg(request, "years"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	path, err = s.resolve(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, err := s.extractor.Run(ctx, path, answerkey.Options{
		OutputDir: s.config.AnswerKeyDir(),
		Overwrite: boolArg(request, "overwrite"),
		Strict:    boolArg(request, "strict"),
		Years:     years,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(s.formatAnswerKeyResult(result)), nil
}

func (s *Server) handleDatasetStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := stringArg(request, "path")
	if path == "" {
		path = s.config.Dataset()
	}
	path, err := s.resolve(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	records, err := dataset.ReadJSONL(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	responseText := fmt.Sprintf("Dataset: %s\n", path)
	responseText += dataset.Summarize(records).String() + "\n"
	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handleLookupRecord(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	store, err := review.NewStore(s.config.Dataset(), s.config.Edits())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := store.Merged(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%v: %s", err, id)), nil
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleServerInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := fmt.Sprintf("%s v%s - Server Information\n\n", s.config.ServerName, s.config.Version)
	text += fmt.Sprintf("Exam directory: %s\n", s.config.PDFDirectory)
	text += fmt.Sprintf("Dataset: %s\n", s.config.Dataset())
	text += fmt.Sprintf("Edits: %s\n", s.config.Edits())
	text += fmt.Sprintf("Answer keys: %s\n", s.config.AnswerKeyDir())

	text += "\nAvailable Tools:\n"
	for _, name := range descriptions.GetAllToolNames() {
		text += fmt.Sprintf("• %s: %s\n", name, descriptions.Summary(name))
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) formatExamList(dir string, exams []annotation.ExamAnnotations) string {
	if len(exams) == 0 {
		return fmt.Sprintf("No annotated exams found in %s\n", dir)
	}
	total := 0
	text := fmt.Sprintf("Found %d annotated exam(s) in %s\n\n", len(exams), dir)
	for i, e := range exams {
		text += fmt.Sprintf("%d. %s (year %s, group %s): %d question(s)\n", i+1, e.ExamID, e.Year, e.Group, len(e.Questions))
		text += fmt.Sprintf("   %s\n", e.PDFPath)
		total += len(e.Questions)
	}
	text += fmt.Sprintf("\nTotal questions: %d\n", total)
	return text
}

func formatRegions(kind string, page int, rects []geometry.Rect) string {
	if len(rects) == 0 {
		return fmt.Sprintf("No %s regions found on page %d\n", kind, page)
	}
	text := fmt.Sprintf("Found %d %s region(s) on page %d (pixels at %.0f DPI)\n", len(rects), kind, page, annotation.StoreDPI)
	for i, r := range rects {
		text += fmt.Sprintf("%d. %s\n", i+1, r.Round(1))
	}
	return text
}

func (s *Server) formatAnswerKeyResult(result *answerkey.Result) string {
	text := fmt.Sprintf("Extracted %d year(s)\n", len(result.Years))
	for _, y := range result.Years {
		text += fmt.Sprintf("\n%d: %d grade group(s)\n", y.Year, len(y.GradeGroups))
		for _, w := range y.ValidationWarnings {
			text += fmt.Sprintf("  warning: %s\n", w)
		}
	}
	if len(result.Written) > 0 {
		text += "\nWritten:\n"
		for _, p := range result.Written {
			text += fmt.Sprintf("  %s\n", p)
		}
	}
	return text
}

// Run serves MCP over stdio until the client disconnects
func (s *Server) Run(_ context.Context) error {
	if s.config.IsDebug() {
		s.logger.Printf("Starting exam MCP server in stdio mode")
		s.logger.Printf("Exam directory: %s", s.config.PDFDirectory)
	}

	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}
