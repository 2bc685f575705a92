package annotation

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar"

	"github.com/a3tai/exam-dataset/internal/answerkey"
	"github.com/a3tai/exam-dataset/internal/geometry"
)

type directQuestion struct {
	QuestionID       any                      `json:"question_id"`
	ProblemNumber    any                      `json:"problem_number"`
	Number           any                      `json:"number"`
	Index            any                      `json:"index"`
	TextBoxes        []geometry.BBox          `json:"text_boxes"`
	AssociatedImages []geometry.BBox          `json:"associated_images"`
	ImageOptions     map[string]geometry.BBox `json:"image_options"`
}

type annotationFile struct {
	ExamID    string           `json:"exam_id"`
	Year      any              `json:"year"`
	Group     string           `json:"group"`
	Questions []directQuestion `json:"questions"`
	Pages     json.RawMessage  `json:"pages"`
}

// LoadAllExams discovers every annotated exam below dir. A sidecar
// "<stem>.json" or "<stem>.pdf.json" counts only when "<stem>.pdf" sits next
// to it. Exams whose annotations cannot be parsed are logged and skipped.
func LoadAllExams(dir string, logger *log.Logger) ([]ExamAnnotations, error) {
	if logger == nil {
		logger = log.Default()
	}
	matches, err := doublestar.Glob(filepath.Join(dir, "**", "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list annotations in %s: %w", dir, err)
	}
	sort.Strings(matches)

	var exams []ExamAnnotations
	for _, jf := range matches {
		pdfPath := pdfFor(jf)
		if _, err := os.Stat(pdfPath); err != nil {
			continue
		}
		ex, err := ParseExamAnnotation(jf, pdfPath)
		if err != nil {
			logger.Printf("skipping exam %s: %v", pdfPath, err)
			continue
		}
		exams = append(exams, *ex)
	}
	return exams, nil
}

func pdfFor(jsonPath string) string {
	stem := strings.TrimSuffix(jsonPath, filepath.Ext(jsonPath))
	stem = strings.TrimSuffix(stem, ".pdf")
	return stem + ".pdf"
}

// ParseExamAnnotation reads one annotation file. Both the editor's page
// state and a ready list of questions are accepted. Year and group fall back
// to what the PDF's file name says.
func ParseExamAnnotation(jsonPath, pdfPath string) (*ExamAnnotations, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read annotations: %w", err)
	}
	var doc annotationFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid annotations %s: %w", jsonPath, err)
	}

	meta := answerkey.ParseExamFilename(pdfPath)
	ex := &ExamAnnotations{
		ExamID:  doc.ExamID,
		PDFPath: pdfPath,
		Year:    scalarString(doc.Year),
		Group:   doc.Group,
	}
	if ex.ExamID == "" {
		ex.ExamID = meta.ExamID
	}
	if ex.Year == "" && meta.Year != 0 {
		ex.Year = strconv.Itoa(meta.Year)
	}
	if ex.Group == "" {
		ex.Group = meta.Group
	}

	switch {
	case len(doc.Questions) > 0:
		ex.Questions = directQuestions(doc.Questions)
	case len(doc.Pages) > 0 && string(doc.Pages) != "null":
		st, _, err := ParseState(data)
		if err != nil {
			return nil, fmt.Errorf("invalid annotations %s: %w", jsonPath, err)
		}
		ex.Questions = GroupQuestions(st)
	}
	if ex.Questions == nil {
		ex.Questions = []QuestionUnit{}
	}
	for i := range ex.Questions {
		ex.Questions[i].ExamID = ex.ExamID
		ex.Questions[i].Year = ex.Year
		ex.Questions[i].Group = ex.Group
	}
	return ex, nil
}

func directQuestions(items []directQuestion) []QuestionUnit {
	out := make([]QuestionUnit, 0, len(items))
	for i, q := range items {
		id := scalarString(q.QuestionID)
		if id == "" {
			id = strconv.Itoa(i + 1)
		}
		number := scalarString(q.ProblemNumber)
		if number == "" {
			number = scalarString(q.Number)
		}
		if number == "" {
			number = scalarString(q.Index)
		}
		boxes := append([]geometry.BBox{}, q.TextBoxes...)
		sortBoxes(boxes)
		assoc := append([]geometry.BBox{}, q.AssociatedImages...)
		opts := map[string]geometry.BBox{}
		for letter, b := range q.ImageOptions {
			letter = strings.ToUpper(strings.TrimSpace(letter))
			if isOptionLetter(letter) {
				opts[letter] = b
			}
		}
		out = append(out, QuestionUnit{
			QuestionID:       id,
			ProblemNumber:    number,
			TextBoxes:        boxes,
			AssociatedImages: assoc,
			ImageOptions:     opts,
		})
	}
	return out
}

// JSON numbers arrive as float64; whole values print without a fraction.
func scalarString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		if !x {
			return ""
		}
		return "true"
	default:
		return fmt.Sprint(x)
	}
}
