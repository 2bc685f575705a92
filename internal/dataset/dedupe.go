package dataset

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/a3tai/exam-dataset/internal/fileutil"
	pdferrors "github.com/a3tai/exam-dataset/internal/pdf/errors"
)

// DedupeOptions names the files of a dedupe run. Empty outputs default to
// "<input stem>.no_images.jsonl" and "<input stem>.corrected_only.jsonl".
type DedupeOptions struct {
	Input     string
	Output    string
	Subset    string
	Overwrite bool
}

// DedupeResult reports overlap counts before and after the run.
type DedupeResult struct {
	Output    string `json:"output"`
	Subset    string `json:"subset"`
	Before    int    `json:"before"`
	After     int    `json:"after"`
	Corrected int    `json:"corrected"`
}

// HasOverlap reports whether any letter has both text and an image.
func HasOverlap(r *Record) bool {
	for _, l := range Letters {
		if strings.TrimSpace(r.Option(l)) != "" && strings.TrimSpace(r.OptionImage(l)) != "" {
			return true
		}
	}
	return false
}

// RemoveOverlap clears the image of every letter that also has text.
// Images that are the only form of an option stay.
func RemoveOverlap(r *Record) bool {
	changed := false
	for _, l := range Letters {
		if strings.TrimSpace(r.Option(l)) != "" && strings.TrimSpace(r.OptionImage(l)) != "" {
			r.SetOptionImage(l, "")
			changed = true
		}
	}
	return changed
}

func withSuffix(path, suffix string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + suffix
}

// Dedupe writes the full corrected dataset and a subset holding only the
// corrected records. Existing outputs are kept unless Overwrite is set.
func Dedupe(opts DedupeOptions) (*DedupeResult, error) {
	if !fileutil.Exists(opts.Input) {
		return nil, pdferrors.New(pdferrors.KindInvalidInput, "input file not found").WithFile(opts.Input)
	}
	res := &DedupeResult{Output: opts.Output, Subset: opts.Subset}
	if res.Output == "" {
		res.Output = withSuffix(opts.Input, ".no_images.jsonl")
	}
	if res.Subset == "" {
		res.Subset = withSuffix(opts.Input, ".corrected_only.jsonl")
	}
	if !opts.Overwrite {
		for _, target := range []string{res.Output, res.Subset} {
			if fileutil.Exists(target) {
				return nil, pdferrors.Newf(pdferrors.KindOverwriteProtection,
					"refusing to overwrite existing file %s; use --overwrite to allow", target)
			}
		}
	}

	records, err := ReadJSONL(opts.Input)
	if err != nil {
		return nil, err
	}
	corrected := make([]Record, 0)
	for i := range records {
		if !HasOverlap(&records[i]) {
			continue
		}
		res.Before++
		if RemoveOverlap(&records[i]) {
			corrected = append(corrected, records[i])
		}
	}
	res.Corrected = len(corrected)
	for i := range records {
		if HasOverlap(&records[i]) {
			res.After++
		}
	}

	if err := WriteJSONL(res.Output, records); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", res.Output, err)
	}
	if err := WriteJSONL(res.Subset, corrected); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", res.Subset, err)
	}
	return res, nil
}
