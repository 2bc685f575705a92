package edits

import (
	"encoding/json"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Form holds submitted review fields. A key that is absent was not
// submitted; checkboxes are only present when ticked.
type Form map[string]string

var (
	formTextKeys = []string{
		"problem_statement", "problem_number", "points", "language",
		"sol_A", "sol_B", "sol_C", "sol_D", "sol_E",
		"sol_A_image", "sol_B_image", "sol_C_image", "sol_D_image", "sol_E_image",
		"associated_images", "answer",
	}
	formFlagKeys = []string{"needs_review", "options_missing_or_extra", "ocr_short_text", "key_mismatch"}
	formMetaKeys = []string{"reviewed", "notes"}
)

// FormFromValues reads a posted HTML form. Text fields default to "" the way
// a browser submits them; checkbox and meta fields are kept only when sent.
func FormFromValues(v url.Values) Form {
	f := Form{}
	for _, k := range formTextKeys {
		f[k] = v.Get(k)
	}
	for _, k := range append(append([]string{}, formFlagKeys...), formMetaKeys...) {
		if _, ok := v[k]; ok {
			f[k] = v.Get(k)
		}
	}
	return f
}

// Now is the clock used for meta.updated_at.
var Now = func() time.Time { return time.Now().UTC() }

// PatchFromForm diffs the submitted form against base and returns only the
// changed fields. Blank option, image and answer fields become null;
// associated images are one path per line. Quality flags are included when
// they differ from base; meta carries reviewed, notes and an updated_at
// stamp when either is set.
func PatchFromForm(base map[string]any, form Form) Patch {
	patch := Patch{}
	set := func(key string, value any) {
		if cur, ok := base[key]; ok {
			if !sameJSON(cur, value) {
				patch[key] = value
			}
			return
		}
		if value != nil && value != "" {
			patch[key] = value
		}
	}

	if v, ok := form["problem_statement"]; ok {
		set("problem_statement", v)
	}
	if v, ok := form["points"]; ok && strings.TrimSpace(v) != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			set("points", n)
		}
	}
	if v, ok := form["problem_number"]; ok {
		set("problem_number", v)
	}
	if v, ok := form["language"]; ok {
		lang := strings.TrimSpace(v)
		if lang == "" {
			lang = "de"
		}
		set("language", lang)
	}
	for _, k := range formTextKeys[4:] {
		v, ok := form[k]
		if !ok {
			continue
		}
		if k == "associated_images" {
			set(k, splitLines(v))
			continue
		}
		set(k, nullable(v))
	}

	baseQuality, _ := base["quality"].(map[string]any)
	quality := map[string]any{}
	for _, k := range formFlagKeys {
		want := checked(form[k])
		have, _ := baseQuality[k].(bool)
		if have != want {
			quality[k] = want
		}
	}
	if len(quality) > 0 {
		patch["quality"] = quality
	}

	meta := map[string]any{}
	if v, ok := form["reviewed"]; ok && checked(v) {
		meta["reviewed"] = true
	}
	if notes := strings.TrimSpace(form["notes"]); notes != "" {
		meta["notes"] = notes
	}
	if len(meta) > 0 {
		meta["updated_at"] = Now().Format(time.RFC3339Nano)
		patch["meta"] = meta
	}
	return patch
}

func checked(v string) bool {
	return v == "on" || v == "true"
}

func nullable(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func splitLines(raw string) []any {
	out := []any{}
	for _, line := range strings.Split(raw, "\n") {
		if s := strings.TrimSpace(line); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// sameJSON compares values by their JSON form so json.Number, int and
// typed slices compare equal when they encode alike.
func sameJSON(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return string(ja) == string(jb)
}
