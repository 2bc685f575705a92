// Package annotation reads and writes the per-PDF mask state produced by the
// editor, groups question masks into logical questions and seeds or labels
// masks automatically.
package annotation

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/a3tai/exam-dataset/internal/geometry"
)

// StoreDPI is the device resolution mask points are recorded at.
const StoreDPI = 300.0

// MaskType discriminates the mask variants.
type MaskType string

const (
	MaskImage    MaskType = "image"
	MaskQuestion MaskType = "question"
)

// Mask is one region drawn on a page. Points are device pixels at StoreDPI.
type Mask interface {
	MaskID() string
	Type() MaskType
	Polygon() []geometry.Point
}

// ImageMask marks a figure or an image answer option.
type ImageMask struct {
	ID                 string           `json:"id"`
	Points             []geometry.Point `json:"points"`
	OptionLabel        string           `json:"option_label,omitempty"`
	OptionLabelChecked bool             `json:"option_label_checked,omitempty"`
}

func (m *ImageMask) MaskID() string { return m.ID }
func (m *ImageMask) Type() MaskType { return MaskImage }
func (m *ImageMask) Polygon() []geometry.Point { return m.Points }

// MarshalJSON adds the "type" discriminant.
func (m *ImageMask) MarshalJSON() ([]byte, error) {
	type plain ImageMask
	return json.Marshal(struct {
		Type MaskType `json:"type"`
		*plain
	}{MaskImage, (*plain)(m)})
}

// QuestionMask marks question text. Masks sharing a QuestionGroupID or
// QuestionID form one question across pages.
type QuestionMask struct {
	ID                 string           `json:"id"`
	Points             []geometry.Point `json:"points"`
	QuestionID         string           `json:"question_id,omitempty"`
	QuestionGroupID    string           `json:"question_group_id,omitempty"`
	AssociatedImageIDs []string         `json:"associated_image_ids,omitempty"`
	ScoreCalculation   string           `json:"score_calculation,omitempty"`
}

func (m *QuestionMask) MaskID() string { return m.ID }
func (m *QuestionMask) Type() MaskType { return MaskQuestion }
func (m *QuestionMask) Polygon() []geometry.Point { return m.Points }

// MarshalJSON adds the "type" discriminant.
func (m *QuestionMask) MarshalJSON() ([]byte, error) {
	type plain QuestionMask
	return json.Marshal(struct {
		Type MaskType `json:"type"`
		*plain
	}{MaskQuestion, (*plain)(m)})
}

// GroupKey is the explicit cross-page link of the mask, if any.
func (m *QuestionMask) GroupKey() string {
	if m.QuestionGroupID != "" {
		return m.QuestionGroupID
	}
	return m.QuestionID
}

// OtherMask keeps masks of types this package does not interpret so that a
// load/save cycle does not lose them.
type OtherMask struct {
	ID     string
	Kind   MaskType
	Points []geometry.Point
	raw    json.RawMessage
}

func (m *OtherMask) MaskID() string { return m.ID }
func (m *OtherMask) Type() MaskType { return m.Kind }
func (m *OtherMask) Polygon() []geometry.Point { return m.Points }

// MarshalJSON writes the mask back unchanged.
func (m *OtherMask) MarshalJSON() ([]byte, error) {
	if len(m.raw) > 0 {
		return m.raw, nil
	}
	return json.Marshal(struct {
		ID     string           `json:"id"`
		Type   MaskType         `json:"type"`
		Points []geometry.Point `json:"points"`
	}{m.ID, m.Kind, m.Points})
}

// Masks is the mask list of one page.
type Masks []Mask

// UnmarshalJSON decodes each element by its "type" field. A missing type
// means an image mask.
func (ms *Masks) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*ms = Masks{}
		return nil
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("masks must be a list: %w", err)
	}
	out := make(Masks, 0, len(raws))
	for i, raw := range raws {
		m, err := DecodeMask(raw)
		if err != nil {
			return fmt.Errorf("mask %d: %w", i, err)
		}
		out = append(out, m)
	}
	*ms = out
	return nil
}

// DecodeMask decodes a single mask object.
func DecodeMask(raw json.RawMessage) (Mask, error) {
	var head struct {
		ID     any              `json:"id"`
		Type   MaskType         `json:"type"`
		Points []geometry.Point `json:"points"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}
	switch head.Type {
	case "", MaskImage:
		var m ImageMask
		if err := json.Unmarshal(withStringID(raw, head.ID), &m); err != nil {
			return nil, err
		}
		return &m, nil
	case MaskQuestion:
		var m QuestionMask
		if err := json.Unmarshal(withStringID(raw, head.ID), &m); err != nil {
			return nil, err
		}
		return &m, nil
	default:
		return &OtherMask{ID: idString(head.ID), Kind: head.Type, Points: head.Points, raw: append(json.RawMessage(nil), raw...)}, nil
	}
}

// Older editors wrote numeric ids.
func withStringID(raw json.RawMessage, id any) json.RawMessage {
	if _, ok := id.(float64); !ok {
		return raw
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return raw
	}
	obj["id"], _ = json.Marshal(idString(id))
	out, err := json.Marshal(obj)
	if err != nil {
		return raw
	}
	return out
}

func idString(id any) string {
	switch v := id.(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return ""
	}
}

// PointsInPDF converts mask pixels to PDF points.
func PointsInPDF(points []geometry.Point) []geometry.Point {
	return geometry.ScalePoints(points, geometry.PointsPerInch/StoreDPI)
}

// BBoxOf returns the mask as a box in PDF points on pageIndex.
func BBoxOf(m Mask, pageIndex int) geometry.BBox {
	return geometry.NewPolygonBBox(pageIndex, PointsInPDF(m.Polygon()))
}
