package ocr

import (
	"sort"
	"strings"
)

// Rect is an axis-aligned bounding region in image coordinates.
type Rect struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Width returns the horizontal extent of the rect.
func (r Rect) Width() float64 { return r.X2 - r.X1 }

// Height returns the vertical extent of the rect.
func (r Rect) Height() float64 { return r.Y2 - r.Y1 }

// CenterY returns the vertical middle of the rect.
func (r Rect) CenterY() float64 { return (r.Y1 + r.Y2) / 2 }

// OverlapRatio returns the intersection area divided by the smaller of the
// two areas, or 0 when the rects do not intersect.
func (r Rect) OverlapRatio(other Rect) float64 {
	left := maxFloat(r.X1, other.X1)
	top := maxFloat(r.Y1, other.Y1)
	right := minFloat(r.X2, other.X2)
	bottom := minFloat(r.Y2, other.Y2)

	if right <= left || bottom <= top {
		return 0
	}

	intersection := (right - left) * (bottom - top)
	areaA := r.Width() * r.Height()
	areaB := other.Width() * other.Height()
	smaller := minFloat(areaA, areaB)
	if smaller <= 0 {
		return 0
	}
	return intersection / smaller
}

// TextObservation is a single recognized token with its confidence and
// position, produced once per OCR call and immutable afterward.
type TextObservation struct {
	// Text is the recognized token text.
	Text string `json:"text"`

	// Confidence is the engine-reported confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// Box is the token's bounding region, when the engine reports one.
	Box *Rect `json:"bounding_region,omitempty"`

	// SourceRank is the trust rank of the producing source (0 = primary).
	SourceRank int `json:"source_rank"`

	// Page is the zero-based page index the token was found on.
	Page int `json:"page_index"`
}

// ObservationSet is an ordered sequence of observations from one source.
type ObservationSet []TextObservation

// MeanConfidence returns the average confidence across the set, or 0 for an
// empty set.
func (s ObservationSet) MeanConfidence() float64 {
	if len(s) == 0 {
		return 0
	}
	var sum float64
	for _, o := range s {
		sum += o.Confidence
	}
	return sum / float64(len(s))
}

// SortReadingOrder orders observations by page, then vertical position,
// then horizontal position. Observations without boxes keep their relative
// order within a page. Sorting is stable so repeated calls are
// deterministic.
func (s ObservationSet) SortReadingOrder() {
	sort.SliceStable(s, func(i, j int) bool {
		a, b := s[i], s[j]
		if a.Page != b.Page {
			return a.Page < b.Page
		}
		if a.Box == nil || b.Box == nil {
			return false
		}
		// Tokens within roughly one line height are treated as the same
		// line and ordered left to right.
		tolerance := maxFloat(a.Box.Height(), b.Box.Height()) / 2
		if diff := a.Box.CenterY() - b.Box.CenterY(); diff < -tolerance || diff > tolerance {
			return a.Box.CenterY() < b.Box.CenterY()
		}
		return a.Box.X1 < b.Box.X1
	})
}

// Flatten joins the observation texts with single spaces in the set's
// current order.
func (s ObservationSet) Flatten() string {
	parts := make([]string, 0, len(s))
	for _, o := range s {
		if o.Text != "" {
			parts = append(parts, o.Text)
		}
	}
	return strings.Join(parts, " ")
}

// FlattenLines joins the observation texts, inserting a newline whenever
// the vertical position advances by more than tolerance or the page
// changes. This keeps the text's line structure available to downstream
// row-oriented parsing.
func (s ObservationSet) FlattenLines(tolerance float64) string {
	var sb strings.Builder
	var prev *TextObservation
	for i := range s {
		o := s[i]
		if o.Text == "" {
			continue
		}
		if prev != nil {
			switch {
			case o.Page != prev.Page:
				sb.WriteByte('\n')
			case o.Box != nil && prev.Box != nil && o.Box.CenterY()-prev.Box.CenterY() > tolerance:
				sb.WriteByte('\n')
			default:
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(o.Text)
		prev = &s[i]
	}
	return sb.String()
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
