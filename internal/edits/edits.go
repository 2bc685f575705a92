// Package edits implements the id-keyed patch overlay applied on top of a
// built dataset. Records are handled as generic JSON objects so fields a
// patch does not touch pass through unchanged.
package edits

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/a3tai/exam-dataset/internal/dataset"
	"github.com/a3tai/exam-dataset/internal/fileutil"
)

// EditableKeys are the top-level record fields a patch may replace.
var EditableKeys = []string{
	"problem_statement",
	"problem_number",
	"points",
	"language",
	"sol_A", "sol_B", "sol_C", "sol_D", "sol_E",
	"sol_A_image", "sol_B_image", "sol_C_image", "sol_D_image", "sol_E_image",
	"associated_images",
	"answer",
}

// Patch is the overlay entry of one record. Besides editable keys it may
// carry "quality" flag overrides and a "meta" object.
type Patch map[string]any

// Overlay maps record ids to patches.
type Overlay map[string]Patch

// Reviewed reports whether meta.reviewed is true.
func (p Patch) Reviewed() bool {
	meta, _ := p["meta"].(map[string]any)
	reviewed, _ := meta["reviewed"].(bool)
	return reviewed
}

// Load reads an overlay file. A missing or unreadable file yields an empty
// overlay.
func Load(path string) Overlay {
	data, err := os.ReadFile(path)
	if err != nil {
		return Overlay{}
	}
	var o Overlay
	if err := decode(data, &o); err != nil || o == nil {
		return Overlay{}
	}
	return o
}

// Save writes the overlay atomically.
func Save(path string, o Overlay) error {
	return fileutil.WriteJSON(path, o)
}

// Update folds patch into the entry for id. Top-level keys replace;
// "quality" and "meta" are merged key by key.
func (o Overlay) Update(id string, patch Patch) Patch {
	cur := o[id]
	if cur == nil {
		cur = Patch{}
	}
	for k, v := range patch {
		switch k {
		case "quality", "meta":
			cur[k] = mergeObject(cur[k], v)
		default:
			cur[k] = v
		}
	}
	o[id] = cur
	return cur
}

// MarkReviewed sets meta.reviewed and clears quality.needs_review for id.
func (o Overlay) MarkReviewed(id string) Patch {
	return o.Update(id, Patch{
		"meta":    map[string]any{"reviewed": true},
		"quality": map[string]any{"needs_review": false},
	})
}

// Merge returns base with patch applied. Editable keys present in patch
// replace the base value, quality flags are merged key by key and
// answer_missing is always recomputed from the merged answer. Neither
// argument is modified.
func Merge(base map[string]any, patch Patch) map[string]any {
	merged := make(map[string]any, len(base)+1)
	for k, v := range base {
		merged[k] = v
	}
	for _, k := range EditableKeys {
		if v, ok := patch[k]; ok {
			merged[k] = v
		}
	}
	quality := mergeObject(base["quality"], nil)
	if pq, ok := patch["quality"].(map[string]any); ok {
		quality = mergeObject(quality, pq)
	}
	quality["answer_missing"] = blank(merged["answer"])
	merged["quality"] = quality
	return merged
}

// NeedsReview applies the review criteria of the HTML views: no option in
// any form, no answer, or any quality flag set.
func NeedsReview(rec map[string]any) bool {
	noOptions := true
	for _, l := range dataset.Letters {
		if !blank(rec["sol_"+l]) || !blank(rec["sol_"+l+"_image"]) {
			noOptions = false
			break
		}
	}
	q, _ := rec["quality"].(map[string]any)
	flag := func(k string) bool {
		v, _ := q[k].(bool)
		return v
	}
	return noOptions || blank(rec["answer"]) ||
		flag("answer_missing") || flag("needs_review") || flag("ocr_short_text") ||
		flag("key_mismatch") || flag("options_missing_or_extra")
}

// ApplyResult counts what ApplyFile wrote.
type ApplyResult struct {
	Records int `json:"records"`
	Patched int `json:"patched"`
}

// ApplyFile streams basePath, merges the overlay at editsPath and writes
// outPath atomically. With onlyReviewed, patches whose meta.reviewed is
// not true are ignored.
func ApplyFile(basePath, editsPath, outPath string, onlyReviewed bool) (*ApplyResult, error) {
	overlay := Load(editsPath)
	in, err := os.Open(basePath)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	res := &ApplyResult{}
	err = fileutil.WriteWith(outPath, 0o644, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		return dataset.ScanJSONL(in, func(line []byte) error {
			var base map[string]any
			if err := decode(line, &base); err != nil {
				return err
			}
			res.Records++
			out := base
			if p := overlay[RecordID(base)]; len(p) > 0 && (!onlyReviewed || p.Reviewed()) {
				out = Merge(base, p)
				res.Patched++
			}
			return enc.Encode(out)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply edits to %s: %w", basePath, err)
	}
	return res, nil
}

// RecordID renders the "id" field of a generic record.
func RecordID(rec map[string]any) string {
	switch v := rec["id"].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// decode keeps numbers as json.Number so integers survive a round trip.
func decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func mergeObject(base, patch any) map[string]any {
	out := map[string]any{}
	if b, ok := base.(map[string]any); ok {
		for k, v := range b {
			out[k] = v
		}
	}
	if p, ok := patch.(map[string]any); ok {
		for k, v := range p {
			out[k] = v
		}
	}
	return out
}

// blank mirrors the answer-missing rule: null, whitespace or an empty list.
func blank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	}
	return false
}
