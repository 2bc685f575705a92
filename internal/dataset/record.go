// Package dataset assembles question records from annotated exams and
// reads, writes, summarizes and repairs the resulting JSON Lines files.
package dataset

import (
	"strings"

	"github.com/a3tai/exam-dataset/internal/geometry"
)

// Letters are the option slots in order.
var Letters = []string{"A", "B", "C", "D", "E"}

// Record is one dataset line.
type Record struct {
	ID               string     `json:"id"`
	Year             string     `json:"year"`
	Group            string     `json:"group"`
	Points           int        `json:"points"`
	ProblemNumber    string     `json:"problem_number"`
	ProblemStatement string     `json:"problem_statement"`
	SolA             *string    `json:"sol_A"`
	SolB             *string    `json:"sol_B"`
	SolC             *string    `json:"sol_C"`
	SolD             *string    `json:"sol_D"`
	SolE             *string    `json:"sol_E"`
	SolAImage        *string    `json:"sol_A_image"`
	SolBImage        *string    `json:"sol_B_image"`
	SolCImage        *string    `json:"sol_C_image"`
	SolDImage        *string    `json:"sol_D_image"`
	SolEImage        *string    `json:"sol_E_image"`
	AssociatedImages []string   `json:"associated_images"`
	Language         string     `json:"language"`
	Multimodal       bool       `json:"multimodal"`
	Answer           *string    `json:"answer"`
	Provenance       Provenance `json:"provenance"`
	Quality          Quality    `json:"quality"`
}

// Provenance records where a record came from and how it was produced.
type Provenance struct {
	PDFPath           string                   `json:"pdf_path"`
	PDFSHA256         *string                  `json:"pdf_sha256"`
	TextBoxes         []geometry.BBox          `json:"text_boxes"`
	AssociatedImages  []geometry.BBox          `json:"associated_images"`
	ImageOptions      map[string]geometry.BBox `json:"image_options"`
	DPIUsed           map[string]int           `json:"dpi_used"`
	Renderer          string                   `json:"renderer"`
	OCREngine         string                   `json:"ocr_engine"`
	AnnotationVersion *string                  `json:"annotation_version"`
}

// Quality flags drive human review.
type Quality struct {
	OCRShortText          bool `json:"ocr_short_text"`
	OptionsMissingOrExtra bool `json:"options_missing_or_extra"`
	KeyMismatch           bool `json:"key_mismatch"`
	AnswerMissing         bool `json:"answer_missing"`
	NeedsReview           bool `json:"needs_review"`
}

func (r *Record) optionFields(letter string) (text, image **string) {
	switch letter {
	case "A":
		return &r.SolA, &r.SolAImage
	case "B":
		return &r.SolB, &r.SolBImage
	case "C":
		return &r.SolC, &r.SolCImage
	case "D":
		return &r.SolD, &r.SolDImage
	case "E":
		return &r.SolE, &r.SolEImage
	}
	return nil, nil
}

// Option returns the text of option letter, or "".
func (r *Record) Option(letter string) string {
	text, _ := r.optionFields(letter)
	if text == nil || *text == nil {
		return ""
	}
	return **text
}

// OptionImage returns the image path of option letter, or "".
func (r *Record) OptionImage(letter string) string {
	_, image := r.optionFields(letter)
	if image == nil || *image == nil {
		return ""
	}
	return **image
}

// SetOption sets the text of option letter; blank text clears it.
func (r *Record) SetOption(letter, text string) {
	if p, _ := r.optionFields(letter); p != nil {
		*p = optional(text)
	}
}

// SetOptionImage sets the image path of option letter; blank clears it.
func (r *Record) SetOptionImage(letter, path string) {
	if _, p := r.optionFields(letter); p != nil {
		*p = optional(path)
	}
}

// OptionCount is the number of slots filled by text or image.
func (r *Record) OptionCount() int {
	n := 0
	for _, l := range Letters {
		if strings.TrimSpace(r.Option(l)) != "" || strings.TrimSpace(r.OptionImage(l)) != "" {
			n++
		}
	}
	return n
}

// AnswerLetter returns the trimmed answer, or "".
func (r *Record) AnswerLetter() string {
	if r.Answer == nil {
		return ""
	}
	return strings.TrimSpace(*r.Answer)
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func isLetter(s string) bool {
	for _, l := range Letters {
		if s == l {
			return true
		}
	}
	return false
}

// DeriveQuality recomputes every flag from the record content. A record
// needs review when any flag is set, fewer than five options are present
// or the answer is absent.
func DeriveQuality(r *Record) Quality {
	q := Quality{
		OCRShortText:          strings.TrimSpace(r.ProblemStatement) == "",
		OptionsMissingOrExtra: r.OptionCount() != len(Letters),
		AnswerMissing:         r.AnswerLetter() == "",
	}
	if a := r.AnswerLetter(); a != "" && !isLetter(a) {
		q.KeyMismatch = true
	}
	q.NeedsReview = q.OCRShortText || q.OptionsMissingOrExtra || q.KeyMismatch || q.AnswerMissing
	return q
}
