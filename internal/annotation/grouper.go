package annotation

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/a3tai/exam-dataset/internal/geometry"
)

// QuestionUnit is one logical question, possibly spread over several
// masks and pages. Boxes are in PDF points.
type QuestionUnit struct {
	ExamID           string                   `json:"exam_id"`
	QuestionID       string                   `json:"question_id"`
	ProblemNumber    string                   `json:"problem_number"`
	Year             string                   `json:"year"`
	Group            string                   `json:"group"`
	TextBoxes        []geometry.BBox          `json:"text_boxes"`
	AssociatedImages []geometry.BBox          `json:"associated_images"`
	ImageOptions     map[string]geometry.BBox `json:"image_options"`
}

// ExamAnnotations are the questions of one source PDF.
type ExamAnnotations struct {
	ExamID    string         `json:"exam_id"`
	PDFPath   string         `json:"pdf_path"`
	Year      string         `json:"year"`
	Group     string         `json:"group"`
	Questions []QuestionUnit `json:"questions"`
}

var scoreQuestionRe = regexp.MustCompile(`question\s+(\d+)\b`)

func isOptionLetter(s string) bool {
	return len(s) == 1 && s[0] >= 'A' && s[0] <= 'E'
}

type questionGroup struct {
	key    string
	boxes  []geometry.BBox
	assoc  []geometry.BBox
	opts   map[string]geometry.BBox
	number string
	first  geometry.BBox
}

// GroupQuestions turns the question masks of st into questions in reading
// order. Masks sharing a group key merge across pages; a mask without one
// is a question of its own. Problem numbers come from "question N" in the
// score annotation, else from the position in reading order.
func GroupQuestions(st *State) []QuestionUnit {
	groups := map[string]*questionGroup{}

	for _, n := range st.PageNumbers() {
		page := st.Page(n)
		pageIndex := n - 1

		images := map[string]*ImageMask{}
		for _, m := range page.Masks {
			if im, ok := m.(*ImageMask); ok && len(im.Points) > 0 && im.ID != "" {
				images[im.ID] = im
			}
		}

		for _, m := range page.Masks {
			qm, ok := m.(*QuestionMask)
			if !ok || len(qm.Points) == 0 {
				continue
			}
			key := qm.GroupKey()
			if key == "" {
				key = "p" + strconv.Itoa(n) + "_" + qm.ID
			}
			g, ok := groups[key]
			if !ok {
				g = &questionGroup{key: key, opts: map[string]geometry.BBox{}}
				groups[key] = g
			}

			box := BBoxOf(qm, pageIndex)
			if len(g.boxes) == 0 {
				g.first = box
			}
			g.boxes = append(g.boxes, box)

			if g.number == "" {
				if mm := scoreQuestionRe.FindStringSubmatch(qm.ScoreCalculation); mm != nil {
					g.number = mm[1]
				}
			}

			for _, id := range qm.AssociatedImageIDs {
				im := images[id]
				if im == nil {
					continue
				}
				ib := BBoxOf(im, pageIndex)
				label := strings.ToUpper(strings.TrimSpace(im.OptionLabel))
				if !isOptionLetter(label) {
					g.assoc = append(g.assoc, ib)
					continue
				}
				if _, seen := g.opts[label]; !seen || im.OptionLabelChecked {
					g.opts[label] = ib
				}
			}
		}
	}

	ordered := make([]*questionGroup, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i].first, ordered[j].first
		if a.Less(b) || b.Less(a) {
			return a.Less(b)
		}
		return ordered[i].key < ordered[j].key
	})

	out := make([]QuestionUnit, 0, len(ordered))
	for i, g := range ordered {
		if g.number == "" {
			g.number = strconv.Itoa(i + 1)
		}
		sortBoxes(g.boxes)
		if g.assoc == nil {
			g.assoc = []geometry.BBox{}
		}
		out = append(out, QuestionUnit{
			QuestionID:       g.key,
			ProblemNumber:    g.number,
			TextBoxes:        g.boxes,
			AssociatedImages: g.assoc,
			ImageOptions:     g.opts,
		})
	}
	return out
}

func sortBoxes(boxes []geometry.BBox) {
	sort.SliceStable(boxes, func(i, j int) bool { return boxes[i].Less(boxes[j]) })
}
