package annotation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"github.com/a3tai/exam-dataset/internal/fileutil"
	"github.com/a3tai/exam-dataset/internal/geometry"
)

// Page is the editor state of one page.
type Page struct {
	Approved bool  `json:"approved"`
	Masks    Masks `json:"masks"`
}

// State is the sidecar document of one PDF. Page keys are 1-based page
// numbers.
type State struct {
	PageCount int              `json:"page_count"`
	Pages     map[string]*Page `json:"pages"`
}

// CreateInitial returns an unapproved, empty state for pageCount pages.
func CreateInitial(pageCount int) *State {
	st := &State{PageCount: pageCount, Pages: make(map[string]*Page, pageCount)}
	for i := 1; i <= pageCount; i++ {
		st.Pages[strconv.Itoa(i)] = &Page{Masks: Masks{}}
	}
	return st
}

// PageNumbers returns the numeric page keys in ascending order. Keys that
// are not integers are left out.
func (s *State) PageNumbers() []int {
	nums := make([]int, 0, len(s.Pages))
	for k := range s.Pages {
		n, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// Page returns the state of 1-based page n, or nil.
func (s *State) Page(n int) *Page {
	return s.Pages[strconv.Itoa(n)]
}

// MaskByID finds a mask anywhere in the document.
func (s *State) MaskByID(id string) (Mask, int, bool) {
	for _, n := range s.PageNumbers() {
		for _, m := range s.Page(n).Masks {
			if m.MaskID() == id {
				return m, n, true
			}
		}
	}
	return nil, 0, false
}

// EnsurePage adds an empty page n if it is missing and returns it.
func (s *State) EnsurePage(n int) *Page {
	key := strconv.Itoa(n)
	if p, ok := s.Pages[key]; ok {
		return p
	}
	p := &Page{Masks: Masks{}}
	s.Pages[key] = p
	return p
}

// AddMask appends m to page n under a fresh id.
func (s *State) AddMask(n int, m Mask) (string, error) {
	p := s.Page(n)
	if p == nil {
		return "", fmt.Errorf("page %d does not exist in state", n)
	}
	id := newMaskID()
	switch v := m.(type) {
	case *ImageMask:
		v.ID = id
	case *QuestionMask:
		v.ID = id
	default:
		return "", fmt.Errorf("unsupported mask type %q", m.Type())
	}
	p.Masks = append(p.Masks, m)
	return id, nil
}

func newMaskID() string { return uuid.NewString() }

// NewImageMask returns an unlabeled image mask covering points.
func NewImageMask(points []geometry.Point) *ImageMask {
	return &ImageMask{Points: points}
}

// RemoveMask deletes mask id from page n.
func (s *State) RemoveMask(n int, id string) bool {
	p := s.Page(n)
	if p == nil {
		return false
	}
	for i, m := range p.Masks {
		if m.MaskID() == id {
			p.Masks = append(p.Masks[:i], p.Masks[i+1:]...)
			return true
		}
	}
	return false
}

// SetApproved marks page n approved or not.
func (s *State) SetApproved(n int, approved bool) error {
	p := s.Page(n)
	if p == nil {
		return fmt.Errorf("page %d does not exist in state", n)
	}
	p.Approved = approved
	return nil
}

// SidecarPath is where the state of pdfPath lives.
func SidecarPath(pdfPath string) string {
	return pdfPath + ".json"
}

type legacyPage struct {
	PageNumber *int  `json:"page_number"`
	Approved   bool  `json:"approved"`
	Masks      Masks `json:"masks"`
}

// ParseState decodes a sidecar. List-shaped pages from older editors are
// converted to the keyed form; migrated reports whether that happened.
func ParseState(data []byte) (st *State, migrated bool, err error) {
	var raw struct {
		PageCount int             `json:"page_count"`
		Pages     json.RawMessage `json:"pages"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, false, fmt.Errorf("invalid state: %w", err)
	}
	st = &State{PageCount: raw.PageCount, Pages: map[string]*Page{}}

	body := bytes.TrimSpace(raw.Pages)
	switch {
	case len(body) > 0 && body[0] == '{':
		if err := json.Unmarshal(body, &st.Pages); err != nil {
			return nil, false, fmt.Errorf("invalid pages: %w", err)
		}
	case len(body) > 0 && body[0] == '[':
		var list []legacyPage
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, false, fmt.Errorf("invalid pages: %w", err)
		}
		for i, p := range list {
			n := i + 1
			if p.PageNumber != nil {
				n = *p.PageNumber
			}
			st.Pages[strconv.Itoa(n)] = &Page{Approved: p.Approved, Masks: p.Masks}
		}
		migrated = true
	default:
		return nil, false, errors.New("invalid state format: pages must be list or dict")
	}

	for k, p := range st.Pages {
		if p == nil {
			st.Pages[k] = &Page{Masks: Masks{}}
		} else if p.Masks == nil {
			p.Masks = Masks{}
		}
	}
	return st, migrated, nil
}

// LoadState reads the sidecar of pdfPath. A migrated state is written back.
func LoadState(pdfPath string) (*State, error) {
	path := SidecarPath(pdfPath)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read state %s: %w", path, err)
	}
	st, migrated, err := ParseState(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if migrated {
		if err := SaveState(pdfPath, st); err != nil {
			log.Printf("failed to write migrated state %s: %v", path, err)
		}
	}
	return st, nil
}

// PageCounter reports the page count of a PDF.
type PageCounter func(pdfPath string) (int, error)

// OpenState is the editor's view of LoadState: a missing or unreadable
// sidecar yields a fresh state sized from the PDF.
func OpenState(pdfPath string, count PageCounter) (*State, error) {
	if st, err := LoadState(pdfPath); err == nil {
		return st, nil
	}
	n, err := count(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("error reading PDF %s: %w", pdfPath, err)
	}
	return CreateInitial(n), nil
}

// SaveState writes the sidecar atomically.
func SaveState(pdfPath string, st *State) error {
	return fileutil.WriteJSON(SidecarPath(pdfPath), st)
}
