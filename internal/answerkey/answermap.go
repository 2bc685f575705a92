package answerkey

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned by Lookup for an unknown question.
var ErrNotFound = errors.New("answer not found")

// AnswerKey addresses one question of one exam.
type AnswerKey struct {
	ExamID        string
	ProblemNumber string
}

// AnswerMap holds the correct letter per question.
type AnswerMap map[AnswerKey]string

// Lookup returns the answer for a question.
func (m AnswerMap) Lookup(examID, problemNumber string) (string, error) {
	if a, ok := m[AnswerKey{ExamID: examID, ProblemNumber: problemNumber}]; ok {
		return a, nil
	}
	return "", ErrNotFound
}

// Set stores a trimmed, upper-cased answer. Blank answers are ignored.
func (m AnswerMap) Set(examID, problemNumber, answer string) {
	answer = strings.ToUpper(strings.TrimSpace(answer))
	if examID == "" || problemNumber == "" || answer == "" {
		return
	}
	m[AnswerKey{ExamID: examID, ProblemNumber: problemNumber}] = answer
}

// Merge copies other into m; other wins on conflicts.
func (m AnswerMap) Merge(other AnswerMap) {
	for k, v := range other {
		m[k] = v
	}
}

// LoadAnswerMap reads an answer key. A directory is treated as a set of
// per-year extractor outputs joined against the exams in pdfDir; a file
// may be JSON or YAML, either nested {exam: {problem: letter}} or a list
// of {exam_id, problem_number, answer} rows.
func LoadAnswerMap(path, pdfDir string) (AnswerMap, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to access answer key: %w", err)
	}
	if info.IsDir() {
		return AnswerMapFromYearFiles(path, pdfDir)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read answer key: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseAnswerYAML(data)
	default:
		return ParseAnswerJSON(data)
	}
}

// ParseAnswerJSON decodes either accepted JSON shape.
func ParseAnswerJSON(data []byte) (AnswerMap, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid answer key JSON: %w", err)
	}
	return fromGeneric(raw)
}

// ParseAnswerYAML decodes the same shapes from YAML. Scalars are taken
// verbatim, so a key like 24_56 is not read as the integer 2456.
func ParseAnswerYAML(data []byte) (AnswerMap, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid answer key YAML: %w", err)
	}
	return fromGeneric(fromNode(&doc))
}

func fromNode(n *yaml.Node) any {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil
		}
		return fromNode(n.Content[0])
	case yaml.AliasNode:
		return fromNode(n.Alias)
	case yaml.MappingNode:
		out := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			out[n.Content[i].Value] = fromNode(n.Content[i+1])
		}
		return out
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			out = append(out, fromNode(c))
		}
		return out
	case yaml.ScalarNode:
		if n.ShortTag() == "!!null" {
			return nil
		}
		return n.Value
	}
	return nil
}

func fromGeneric(raw any) (AnswerMap, error) {
	m := make(AnswerMap)
	if exams, ok := asStringMap(raw); ok {
		for exam, q := range exams {
			questions, ok := asStringMap(q)
			if !ok {
				continue
			}
			for pn, ans := range questions {
				m.Set(exam, pn, scalar(ans))
			}
		}
		return m, nil
	}
	switch v := raw.(type) {
	case []any:
		for _, row := range v {
			r, ok := asStringMap(row)
			if !ok {
				continue
			}
			pn := firstScalar(r, "problem_number", "number", "id")
			m.Set(scalar(r["exam_id"]), pn, scalar(r["answer"]))
		}
	case nil:
	default:
		return nil, fmt.Errorf("unsupported answer key shape %T", raw)
	}
	return m, nil
}

func asStringMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func firstScalar(r map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := scalar(r[k]); s != "" {
			return s
		}
	}
	return ""
}

// scalar renders a decoded JSON or YAML leaf as text.
func scalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// AnswerMapFromYearFiles joins per-year outputs in keysDir against the
// exam PDFs in pdfDir. Each exam is keyed by its stem, with and without the
// .pdf suffix, under the 1-based position of every label in the group's
// order and, for numeric labels, under the label itself.
func AnswerMapFromYearFiles(keysDir, pdfDir string) (AnswerMap, error) {
	pdfs, err := doublestar.Glob(filepath.Join(pdfDir, "*.pdf"))
	if err != nil {
		return nil, fmt.Errorf("failed to list exams: %w", err)
	}
	sort.Strings(pdfs)

	years := make(map[int]*YearOutput)
	m := make(AnswerMap)
	for _, p := range pdfs {
		meta := ParseExamFilename(p)
		if meta.Year == 0 || meta.Group == "" {
			continue
		}
		out, ok := years[meta.Year]
		if !ok {
			out = readYearFile(YearPath(keysDir, meta.Year))
			years[meta.Year] = out
		}
		if out == nil {
			continue
		}
		g, ok := out.GradeGroups[meta.Group]
		if !ok {
			continue
		}
		for _, id := range []string{meta.ExamID, meta.ExamID + ".pdf"} {
			for i, label := range g.Order {
				ans := g.AnswersByLabel[label]
				if ans == "" {
					continue
				}
				m.Set(id, strconv.Itoa(i+1), ans)
				if _, err := strconv.Atoi(label); err == nil {
					m.Set(id, label, ans)
				}
			}
		}
	}
	return m, nil
}

// readYearFile returns nil for a missing or unreadable file.
func readYearFile(path string) *YearOutput {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var out YearOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return &out
}

// ExamMeta is what an exam's file name says about it.
type ExamMeta struct {
	ExamID string `json:"exam_id"`
	Year   int    `json:"year,omitempty"`
	Group  string `json:"group,omitempty"`
}

var examNameRe = regexp.MustCompile(`^(\d{2}|\d{4})_(\d{2,4})$`)

// ParseExamFilename derives the exam id, year and grade group from names
// like "24_56.pdf" (2024, "5-6") or "14_1113.pdf" (2014, "11-13"). Unknown
// shapes only yield the id.
func ParseExamFilename(path string) ExamMeta {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	meta := ExamMeta{ExamID: stem}
	m := examNameRe.FindStringSubmatch(stem)
	if m == nil {
		return meta
	}
	year, _ := strconv.Atoi(m[1])
	if len(m[1]) == 2 {
		year += 2000
	}
	meta.Year = year

	d := m[2]
	switch len(d) {
	case 2, 3:
		meta.Group = d[:1] + "-" + d[1:]
	case 4:
		meta.Group = d[:2] + "-" + d[2:]
	}
	return meta
}
