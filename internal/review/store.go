// Package review serves a dataset and its edits overlay over HTTP so a
// human can inspect flagged records and save corrections.
package review

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/a3tai/exam-dataset/internal/dataset"
	"github.com/a3tai/exam-dataset/internal/edits"
)

// ErrRecordNotFound is returned for ids missing from the base dataset.
var ErrRecordNotFound = errors.New("record not found")

// Filter kinds accepted by List.
const (
	FilterNeedsReview = "needs_review"
	FilterUnreviewed  = "unreviewed"
	FilterAll         = "all"
)

// Filter narrows List.
type Filter struct {
	Kind  string
	Query string
	Year  string
	Group string
}

// Stats summarizes the store for the index page.
type Stats struct {
	Total       int `json:"total"`
	Edited      int `json:"edited"`
	NeedsReview int `json:"needs_review"`
}

// Store holds the base records in memory together with the overlay. Every
// update is written to the overlay file before it returns.
type Store struct {
	datasetPath string
	editsPath   string

	mu      sync.RWMutex
	records map[string]map[string]any
	ids     []string
	overlay edits.Overlay
}

// NewStore loads datasetPath and editsPath. A missing dataset yields an
// empty store.
func NewStore(datasetPath, editsPath string) (*Store, error) {
	s := &Store{datasetPath: datasetPath, editsPath: editsPath}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// DatasetPath returns the base JSONL path.
func (s *Store) DatasetPath() string { return s.datasetPath }

// Reload rereads both files. Lines that are not JSON objects are skipped.
func (s *Store) Reload() error {
	records := map[string]map[string]any{}
	f, err := os.Open(s.datasetPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return err
	default:
		defer f.Close()
		err = dataset.ScanJSONL(f, func(line []byte) error {
			var rec map[string]any
			dec := json.NewDecoder(bytes.NewReader(line))
			dec.UseNumber()
			if dec.Decode(&rec) != nil {
				return nil
			}
			records[edits.RecordID(rec)] = rec
			return nil
		})
		if err != nil {
			return err
		}
	}

	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = records
	s.ids = ids
	s.overlay = edits.Load(s.editsPath)
	return nil
}

// Merged returns the record with its patch applied.
func (s *Store) Merged(id string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.merged(id)
}

func (s *Store) merged(id string) (map[string]any, error) {
	base, ok := s.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return edits.Merge(base, s.overlay[id]), nil
}

// Patch returns the overlay entry for id, or nil.
func (s *Store) Patch(id string) edits.Patch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overlay[id]
}

// List returns merged records ordered by id.
func (s *Store) List(f Filter) []map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(f.Query))
	out := []map[string]any{}
	for _, id := range s.ids {
		m, _ := s.merged(id)
		if f.Year != "" && stringField(m, "year") != f.Year {
			continue
		}
		if f.Group != "" && stringField(m, "group") != f.Group {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(stringField(m, "problem_statement"))+" "+strings.ToLower(id), q) {
			continue
		}
		switch f.Kind {
		case FilterAll:
		case FilterUnreviewed:
			if s.overlay[id].Reviewed() {
				continue
			}
		default:
			if !edits.NeedsReview(m) {
				continue
			}
		}
		out = append(out, m)
	}
	return out
}

// Stats counts records, edited records and records needing review.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{Total: len(s.records), Edited: len(s.overlay)}
	for _, id := range s.ids {
		if m, _ := s.merged(id); edits.NeedsReview(m) {
			st.NeedsReview++
		}
	}
	return st
}

// Update folds patch into the overlay entry of id, optionally marking it
// reviewed, and persists the overlay.
func (s *Store) Update(id string, patch edits.Patch, markReviewed bool) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return nil, ErrRecordNotFound
	}
	s.overlay.Update(id, patch)
	if markReviewed {
		s.overlay.MarkReviewed(id)
	}
	if err := edits.Save(s.editsPath, s.overlay); err != nil {
		return nil, err
	}
	return s.merged(id)
}

// Base returns the unpatched record.
func (s *Store) Base(id string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	base, ok := s.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return base, nil
}

// ApplyEdits materializes the overlay as "<dataset stem>.edited.jsonl" next
// to the dataset.
func (s *Store) ApplyEdits(onlyReviewed bool) (string, *edits.ApplyResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stem := strings.TrimSuffix(filepath.Base(s.datasetPath), filepath.Ext(s.datasetPath))
	out := filepath.Join(filepath.Dir(s.datasetPath), stem+".edited.jsonl")
	res, err := edits.ApplyFile(s.datasetPath, s.editsPath, out, onlyReviewed)
	if err != nil {
		return "", nil, err
	}
	return out, res, nil
}

func stringField(rec map[string]any, key string) string {
	switch v := rec[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return strings.TrimSpace(jsonString(v))
	}
}

func jsonString(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
