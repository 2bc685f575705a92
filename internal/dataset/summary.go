package dataset

import "fmt"

// Summary counts what a build produced.
type Summary struct {
	Records         int `json:"records"`
	CompleteOptions int `json:"complete_options"`
	NeedsReview     int `json:"needs_review"`
	WithAnswer      int `json:"with_answer"`
}

// Summarize tallies records.
func Summarize(records []Record) Summary {
	s := Summary{Records: len(records)}
	for i := range records {
		r := &records[i]
		if r.OptionCount() == len(Letters) {
			s.CompleteOptions++
		}
		if r.Quality.NeedsReview {
			s.NeedsReview++
		}
		if r.AnswerLetter() != "" {
			s.WithAnswer++
		}
	}
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("records: %d\ncomplete options: %d\nneeds review: %d\nwith answer: %d",
		s.Records, s.CompleteOptions, s.NeedsReview, s.WithAnswer)
}
