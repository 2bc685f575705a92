package annotation

import (
	"log"

	"github.com/a3tai/exam-dataset/internal/geometry"
	"github.com/a3tai/exam-dataset/internal/pdf"
	"github.com/a3tai/exam-dataset/internal/regions"
)

// Detector proposes regions for one page in pixels at StoreDPI.
type Detector interface {
	Detect(doc *pdf.Document, pageIndex int) []geometry.Rect
}

// Seeder fills empty pages with detected masks so annotators start from a
// proposal instead of a blank page.
type Seeder struct {
	Images    Detector
	Questions Detector
	Logger    *log.Logger
}

// NewSeeder uses the vector and question detectors with their defaults.
func NewSeeder(logger *log.Logger) *Seeder {
	if logger == nil {
		logger = log.Default()
	}
	return &Seeder{
		Images:    regions.NewVectorDetector(logger),
		Questions: regions.NewQuestionDetector(logger),
		Logger:    logger,
	}
}

// Seed adds image and question masks to every page of st that is neither
// approved nor already annotated. It returns the number of masks added.
func (s *Seeder) Seed(doc *pdf.Document, st *State) int {
	added := 0
	for _, n := range st.PageNumbers() {
		page := st.Page(n)
		if page.Approved || len(page.Masks) > 0 {
			continue
		}
		for _, r := range s.detect(s.Images, doc, n-1) {
			page.Masks = append(page.Masks, &ImageMask{ID: newMaskID(), Points: geometry.RectPoints(r)})
			added++
		}
		for _, r := range s.detect(s.Questions, doc, n-1) {
			page.Masks = append(page.Masks, &QuestionMask{ID: newMaskID(), Points: geometry.RectPoints(r)})
			added++
		}
	}
	if added > 0 {
		s.Logger.Printf("seeded %d masks", added)
	}
	return added
}

func (s *Seeder) detect(d Detector, doc *pdf.Document, pageIndex int) []geometry.Rect {
	if d == nil {
		return nil
	}
	out := d.Detect(doc, pageIndex)
	kept := out[:0]
	for _, r := range out {
		if r.Width() > 0 && r.Height() > 0 {
			kept = append(kept, r)
		}
	}
	return kept
}
