package descriptions

import "sort"

// Tool descriptions shown to MCP clients, with examples and workflows

const (
	// Exam inventory
	ExamListDescription = `List the annotated exams found in the exam directory.

**When to use:** Before building or inspecting anything, to see which exam PDFs have an annotation sidecar and how many questions each one defines.

**Examples:**
• Inventory: "Which exams are ready for the dataset build?"
• Coverage check: "How many questions are annotated for the 2024 5-6 exam?"

**Common workflows:**
1. Build preparation: exam_list → fix missing annotations → run the build
2. Review planning: exam_list → dataset_stats → lookup_record for flagged items

**Best practices:** Exams without any question mask are listed with 0 questions and are skipped by the build.`

	PDFInspectDescription = `Check that a PDF is readable and report its page count, page sizes and SHA-256.

**When to use:** Before seeding masks or extracting answer keys from a file you have not processed yet.

**Examples:**
• "Is exams/2024_56.pdf readable and how many pages does it have?"
• "What is the checksum of the answer key PDF?"

**Best practices:** Encrypted PDFs are rejected; the checksum is the one stored in dataset records.`

	// Region detection
	DetectVectorRegionsDescription = `Find figure candidates on one page from its vector drawing operations.

**When to use:** Seeding image masks for a page whose figures are drawn as vector graphics rather than embedded images.

**Examples:**
• "Which figures are on page 3 of exams/2023_34.pdf?"

**Best practices:** Pages are 1-based. Rectangles are returned in pixels at 300 DPI, the unit used by annotation masks. Page-sized frames and decoration are filtered out.`

	DetectQuestionRegionsDescription = `Find question blocks on one page from numbered markers and line gaps.

**When to use:** Seeding question masks for a page with numbered questions (1., 2., A1, ...).

**Examples:**
• "Where are the questions on page 2 of exams/2024_56.pdf?"

**Best practices:** Pages are 1-based. Rectangles are returned in pixels at 300 DPI. Detection is heuristic; approve or correct the seeded masks before building.`

	// Text
	SplitOptionsDescription = `Split recognized question text into the statement and its answer options A to E.

**When to use:** Checking how a piece of OCR output would be split before editing a record.

**Examples:**
• "Split 'Wie viele? (A) 1 (B) 2 (C) 3 (D) 4 (E) 5'"

**Best practices:** Both line-leading markers and inline "(A)" markers are recognized; text without five distinct markers is returned unsplit.`

	// Answer keys
	ExtractAnswerKeysDescription = `Extract the per-year answer keys from the central answer-key PDF.

**When to use:** Once per answer-key PDF, before building the dataset, so records get their correct answer.

**Examples:**
• "Extract answer keys from keys/loesungen.pdf"
• "Re-extract only 2019 and 2021, overwriting existing files"

**Common workflows:**
1. Key refresh: extract_answer_keys → check validation warnings → rebuild

**Best practices:** Existing per-year files are not replaced unless overwrite is set. Strict mode fails on count mismatches instead of only reporting them.`

	// Dataset
	DatasetStatsDescription = `Summarize a dataset JSONL file: record count, complete options, items needing review, and items with an answer.

**When to use:** After a build or merge to judge dataset quality.

**Best practices:** Uses the configured dataset when no path is given.`

	LookupRecordDescription = `Show one dataset record with the reviewer edits applied.

**When to use:** Inspecting a flagged item or verifying a correction.

**Examples:**
• "Show record 24_56_q7"

**Best practices:** Edits come from the configured edits file; the base dataset is not modified.`

	ServerInfoDescription = `Show server information, the configured directories and all available tools.

**When to use:** As a first call, to learn what this server can do and where it reads data from.`
)

// ToolDescriptions maps tool names to their descriptions
var ToolDescriptions = map[string]string{
	"exam_list":               ExamListDescription,
	"pdf_inspect":             PDFInspectDescription,
	"detect_vector_regions":   DetectVectorRegionsDescription,
	"detect_question_regions": DetectQuestionRegionsDescription,
	"split_options":           SplitOptionsDescription,
	"extract_answer_keys":     ExtractAnswerKeysDescription,
	"dataset_stats":           DatasetStatsDescription,
	"lookup_record":           LookupRecordDescription,
	"server_info":             ServerInfoDescription,
}

// GetToolDescription returns the description for a tool
func GetToolDescription(toolName string) string {
	if desc, exists := ToolDescriptions[toolName]; exists {
		return desc
	}
	return "Tool description not available"
}

// GetAllToolNames returns all tool names in alphabetical order
func GetAllToolNames() []string {
	names := make([]string, 0, len(ToolDescriptions))
	for name := range ToolDescriptions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Summary returns the first line of a tool description.
func Summary(toolName string) string {
	desc := GetToolDescription(toolName)
	for i, r := range desc {
		if r == '\n' {
			return desc[:i]
		}
	}
	return desc
}
