// Package hocr parses hOCR recognizer markup into a structured page
// tree, and parses table-region overlay annotations used to re-bucket
// recognized words into a grid layout.
//
// hOCR is an HTML-based markup convention for OCR output:
// https://github.com/kba/hocr-spec/blob/master/1.1/spec.md
package hocr

// Direction is the text direction of a paragraph.
type Direction int

const (
	LeftToRight Direction = iota
	RightToLeft
)

// Rect is an axis-aligned bounding box in image coordinates.
// (X0, Y0) is the top-left corner, (X1, Y1) the bottom-right.
type Rect struct {
	X0, Y0, X1, Y1 float64
}

// Width returns the horizontal extent of the rect.
func (r Rect) Width() float64 { return r.X1 - r.X0 }

// Height returns the vertical extent of the rect.
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }

// Center returns the midpoint of the rect.
func (r Rect) Center() (x, y float64) {
	return (r.X0 + r.X1) / 2, (r.Y0 + r.Y1) / 2
}

// AlmostContains reports whether other fits inside r with a small slack
// margin. Recognizer boxes and hand-drawn table annotations rarely line
// up exactly, so strict containment would drop words sitting on a cell
// border.
func (r Rect) AlmostContains(other Rect) bool {
	slack := 0.02*maxf(r.Width(), r.Height()) + 2
	return other.X0 >= r.X0-slack &&
		other.Y0 >= r.Y0-slack &&
		other.X1 <= r.X1+slack &&
		other.Y1 <= r.Y1+slack
}

// ContainsCenter reports whether the center of other lies inside r.
func (r Rect) ContainsCenter(other Rect) bool {
	x, y := other.Center()
	return x >= r.X0 && x <= r.X1 && y >= r.Y0 && y <= r.Y1
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// Word is a single recognized word with optional geometry, confidence
// and font size. Missing or unparsable values are nil.
type Word struct {
	Text       string
	FontSize   *float64
	Confidence *float64
	BBox       *Rect
}

// Line is one recognized text line.
type Line struct {
	BBox  *Rect
	Words []Word
}

// Paragraph is one recognized paragraph. The tree is strict: a page owns
// paragraphs, paragraphs own lines, lines own words. No back-pointers.
type Paragraph struct {
	Lang      string
	Direction Direction
	BBox      *Rect
	Lines     []Line
}

// Page is the parse result for one source page.
type Page struct {
	Paragraphs   []Paragraph
	PredictSizes bool
}
