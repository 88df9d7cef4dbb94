// Package document is the typed representation of whiteboard contents.
//
// A Document is a value: every operation here takes a Document and
// returns a new one. Nothing in this package mutates its input.
package document

import (
	"sort"

	"github.com/whiteboard/realtime/internal/roomerr"
)

// Point is a 2D coordinate on the board.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Mode distinguishes an ink stroke from an eraser stroke.
type Mode string

const (
	ModeInk   Mode = "ink"
	ModeErase Mode = "erase"
)

// ShapeKind enumerates the shape primitives a client can place.
type ShapeKind string

const (
	ShapeRectangle ShapeKind = "rectangle"
	ShapeEllipse   ShapeKind = "ellipse"
	ShapeArrow     ShapeKind = "arrow"
	ShapeSegment   ShapeKind = "segment"
)

// Stroke is a freehand ink or eraser path.
type Stroke struct {
	ID          string  `json:"id"`
	Author      string  `json:"author"`
	CreatedAt   int64   `json:"created_at"`
	Points      []Point `json:"points"`
	Color       string  `json:"color"`
	StrokeWidth float64 `json:"stroke_width"`
	Mode        Mode    `json:"mode"`
}

// Shape is a rectangle, ellipse, arrow, or line segment between two anchors.
type Shape struct {
	ID          string    `json:"id"`
	Author      string    `json:"author"`
	CreatedAt   int64     `json:"created_at"`
	Kind        ShapeKind `json:"kind"`
	From        Point     `json:"from"`
	To          Point     `json:"to"`
	Color       string    `json:"color"`
	StrokeWidth float64   `json:"stroke_width"`
	Fill        *string   `json:"fill,omitempty"`
}

// Text is a string payload anchored at a point.
type Text struct {
	ID         string  `json:"id"`
	Author     string  `json:"author"`
	CreatedAt  int64   `json:"created_at"`
	Anchor     Point   `json:"anchor"`
	Payload    string  `json:"payload"`
	FontSize   float64 `json:"font_size"`
	FontFamily string  `json:"font_family"`
	Color      string  `json:"color"`
}

// Document is the merged whiteboard contents: three ordered collections
// of elements. The wire JSON shape mirrors this struct directly.
type Document struct {
	Strokes []Stroke `json:"strokes"`
	Shapes  []Shape  `json:"shapes"`
	Texts   []Text   `json:"texts"`
}

// Empty returns a Document with no elements.
func Empty() Document {
	return Document{
		Strokes: []Stroke{},
		Shapes:  []Shape{},
		Texts:   []Text{},
	}
}

// Kind tags which collection a CreateSpec/Element belongs to. It replaces
// runtime-typed field probing on the wire payload: the router decides the
// Kind once, up front, and every downstream function switches on it.
type Kind string

const (
	KindStroke Kind = "stroke"
	KindShape  Kind = "shape"
	KindText   Kind = "text"
)

// CreateSpec is a tagged union describing an element to create. Exactly
// one of Stroke/Shape/Text is populated, selected by Kind. As built by
// the router it carries no ID or CreatedAt — those are filled in by the
// Room under its serialization lock (see internal/room) before it calls
// AddElement, not by this package.
type CreateSpec struct {
	Kind   Kind
	Stroke *Stroke
	Shape  *Shape
	Text   *Text
}

// clone makes a shallow copy of a Document's three slices so callers can
// never observe their input being mutated by a later append.
func clone(doc Document) Document {
	out := Document{
		Strokes: make([]Stroke, len(doc.Strokes)),
		Shapes:  make([]Shape, len(doc.Shapes)),
		Texts:   make([]Text, len(doc.Texts)),
	}
	copy(out.Strokes, doc.Strokes)
	copy(out.Shapes, doc.Shapes)
	copy(out.Texts, doc.Texts)
	return out
}

// HasID reports whether any collection already contains the given id.
func HasID(doc Document, id string) bool {
	for _, s := range doc.Strokes {
		if s.ID == id {
			return true
		}
	}
	for _, s := range doc.Shapes {
		if s.ID == id {
			return true
		}
	}
	for _, t := range doc.Texts {
		if t.ID == id {
			return true
		}
	}
	return false
}

// AddElement returns a new Document with spec's element appended to the
// matching collection. spec's element must already carry its final ID,
// Author, and CreatedAt. AddElement fails with roomerr.DuplicateID if
// that ID is already present anywhere in doc.
func AddElement(doc Document, spec CreateSpec) (Document, error) {
	var id string
	switch spec.Kind {
	case KindStroke:
		id = spec.Stroke.ID
	case KindShape:
		id = spec.Shape.ID
	case KindText:
		id = spec.Text.ID
	}
	if HasID(doc, id) {
		return doc, roomerr.DuplicateID
	}

	out := clone(doc)
	switch spec.Kind {
	case KindStroke:
		out.Strokes = append(out.Strokes, *spec.Stroke)
	case KindShape:
		out.Shapes = append(out.Shapes, *spec.Shape)
	case KindText:
		out.Texts = append(out.Texts, *spec.Text)
	}
	return out, nil
}

// RemoveElement returns a new Document with the element of the given id
// removed from whichever collection contains it. Unknown ids are a no-op:
// the input is returned unchanged and changed is false.
func RemoveElement(doc Document, id string) (result Document, changed bool) {
	for i, s := range doc.Strokes {
		if s.ID == id {
			out := clone(doc)
			out.Strokes = append(out.Strokes[:i:i], out.Strokes[i+1:]...)
			return out, true
		}
	}
	for i, s := range doc.Shapes {
		if s.ID == id {
			out := clone(doc)
			out.Shapes = append(out.Shapes[:i:i], out.Shapes[i+1:]...)
			return out, true
		}
	}
	for i, t := range doc.Texts {
		if t.ID == id {
			out := clone(doc)
			out.Texts = append(out.Texts[:i:i], out.Texts[i+1:]...)
			return out, true
		}
	}
	return doc, false
}

// RenderedElement is the unified view RenderOrder produces: enough to
// sort and to tell the caller which concrete element it came from.
type RenderedElement struct {
	ID        string
	CreatedAt int64
	Kind      Kind
	Stroke    *Stroke
	Shape     *Shape
	Text      *Text
}

// RenderOrder returns every element in doc in the total order used for
// drawing: ascending CreatedAt, ties broken by ID. The order is a pure
// function of doc's contents, so replaying the same Document always
// yields the same order.
func RenderOrder(doc Document) []RenderedElement {
	out := make([]RenderedElement, 0, len(doc.Strokes)+len(doc.Shapes)+len(doc.Texts))
	for i := range doc.Strokes {
		s := doc.Strokes[i]
		out = append(out, RenderedElement{ID: s.ID, CreatedAt: s.CreatedAt, Kind: KindStroke, Stroke: &s})
	}
	for i := range doc.Shapes {
		s := doc.Shapes[i]
		out = append(out, RenderedElement{ID: s.ID, CreatedAt: s.CreatedAt, Kind: KindShape, Shape: &s})
	}
	for i := range doc.Texts {
		t := doc.Texts[i]
		out = append(out, RenderedElement{ID: t.ID, CreatedAt: t.CreatedAt, Kind: KindText, Text: &t})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Equal reports whether two Documents contain the same elements
// (order-independent within each collection). Elements are matched by
// ID, CreatedAt and Kind only; their other fields are not compared.
func Equal(a, b Document) bool {
	if len(a.Strokes) != len(b.Strokes) || len(a.Shapes) != len(b.Shapes) || len(a.Texts) != len(b.Texts) {
		return false
	}
	ra, rb := RenderOrder(a), RenderOrder(b)
	for i := range ra {
		if ra[i].ID != rb[i].ID || ra[i].CreatedAt != rb[i].CreatedAt || ra[i].Kind != rb[i].Kind {
			return false
		}
	}
	return true
}
