package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"math"
	"strconv"
	"strings"
)

// Point is a pixel position relative to the drawing surface's top-left corner
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PointerEvent is a raw pointer sample together with the surface's
// bounding-box offset at the time of the event
type PointerEvent struct {
	ClientX float64 `json:"clientX"`
	ClientY float64 `json:"clientY"`
	Left    float64 `json:"left"`
	Top     float64 `json:"top"`
}

// Local converts the event to surface-local coordinates
func (e PointerEvent) Local() Point {
	return Point{X: e.ClientX - e.Left, Y: e.ClientY - e.Top}
}

// Rect is the rectangle spanned by a drag gesture. End may lie left of or
// above Start, so Width and Height can be negative.
type Rect struct {
	Start Point `json:"start"`
	End   Point `json:"end"`
}

// Width returns the signed horizontal extent
func (r Rect) Width() float64 { return r.End.X - r.Start.X }

// Height returns the signed vertical extent
func (r Rect) Height() float64 { return r.End.Y - r.Start.Y }

// Normalize returns the same rectangle with Start at the minimum corner
func (r Rect) Normalize() Rect {
	return Rect{
		Start: Point{X: math.Min(r.Start.X, r.End.X), Y: math.Min(r.Start.Y, r.End.Y)},
		End:   Point{X: math.Max(r.Start.X, r.End.X), Y: math.Max(r.Start.Y, r.End.Y)},
	}
}

// Bounds returns the normalized rectangle rounded to whole pixels
func (r Rect) Bounds() image.Rectangle {
	n := r.Normalize()
	return image.Rect(
		int(math.Round(n.Start.X)), int(math.Round(n.Start.Y)),
		int(math.Round(n.End.X)), int(math.Round(n.End.Y)),
	)
}

// Empty reports whether the rectangle covers no pixels
func (r Rect) Empty() bool {
	return r.Bounds().Empty()
}

// ProductID identifies a catalog product. Catalogs hand out either numbers
// or strings; the id remembers which and encodes back the same way, so "3"
// and 3 stay distinct on the wire.
type ProductID struct {
	value   string
	numeric bool
}

// StringID returns a string-typed product id
func StringID(s string) ProductID {
	return ProductID{value: s}
}

// IntID returns a number-typed product id
func IntID(n int64) ProductID {
	return ProductID{value: strconv.FormatInt(n, 10), numeric: true}
}

// NumberID returns a number-typed product id. n must be a valid JSON
// number.
func NumberID(n json.Number) ProductID {
	return ProductID{value: n.String(), numeric: true}
}

// String returns the id's text, without quotes
func (id ProductID) String() string { return id.value }

// IsNumeric reports whether the id came from, and encodes as, a JSON number
func (id ProductID) IsNumeric() bool { return id.numeric }

// IsZero reports whether the id is unset
func (id ProductID) IsZero() bool { return id.value == "" && !id.numeric }

// Matches compares ids by text, ignoring their JSON kind. Use it where the
// caller may not know how the catalog typed the id.
func (id ProductID) Matches(other ProductID) bool {
	return id.value == other.value
}

// MarshalJSON implements json.Marshaler
func (id ProductID) MarshalJSON() ([]byte, error) {
	if id.numeric {
		return []byte(id.value), nil
	}
	return json.Marshal(id.value)
}

// UnmarshalJSON implements json.Unmarshaler
func (id *ProductID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		*id = ProductID{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = StringID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("product id must be a string or number: %w", err)
	}
	*id = NumberID(n)
	return nil
}

// ProductRef is a taggable product: identity plus display label
type ProductRef struct {
	ID    ProductID `json:"id"`
	Label string    `json:"label"`
}

// Option returns the select-widget shape of the product
func (p ProductRef) Option() Option {
	return Option{Value: p.ID, Label: p.Label}
}

// Option is the {value, label} pair consumed by the selection widget
type Option struct {
	Value ProductID `json:"value"`
	Label string    `json:"label"`
}

// CatalogProduct is a product as returned by the remote catalog
type CatalogProduct struct {
	ID   ProductID `json:"id"`
	Name string    `json:"name"`
}

// ToRef maps the catalog shape to a ProductRef
func (p CatalogProduct) ToRef() ProductRef {
	return ProductRef{ID: p.ID, Label: p.Name}
}

// TagKind tells how an annotation's product was resolved
type TagKind int

const (
	// TagCatalog annotations carry a ProductRef picked from the catalog
	TagCatalog TagKind = iota
	// TagText annotations carry free-text name and description
	TagText
)

func (k TagKind) String() string {
	switch k {
	case TagCatalog:
		return "catalog"
	case TagText:
		return "text"
	default:
		return fmt.Sprintf("TagKind(%d)", int(k))
	}
}

// ParseTagKind parses "catalog" or "text"
func ParseTagKind(s string) (TagKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "catalog", "":
		return TagCatalog, nil
	case "text", "free-text", "freetext":
		return TagText, nil
	default:
		return 0, fmt.Errorf("unknown tag mode: %q", s)
	}
}

// Annotation is a committed rectangle with its product identity
type Annotation struct {
	Rect        Rect        `json:"rect"`
	Kind        TagKind     `json:"-"`
	Product     *ProductRef `json:"product,omitempty"`
	ProductName string      `json:"productName,omitempty"`
	Description string      `json:"description,omitempty"`
}

// Label returns the text shown next to the rectangle
func (a Annotation) Label() string {
	if a.Kind == TagCatalog && a.Product != nil {
		return a.Product.Label
	}
	return a.ProductName
}

// Record flattens the annotation for submission
func (a Annotation) Record() Record {
	r := Record{
		StartX: a.Rect.Start.X,
		StartY: a.Rect.Start.Y,
		EndX:   a.Rect.End.X,
		EndY:   a.Rect.End.Y,
	}
	switch a.Kind {
	case TagCatalog:
		if a.Product != nil {
			id := a.Product.ID
			r.ProductID = &id
		}
	case TagText:
		name, desc := a.ProductName, a.Description
		r.Product = &name
		r.Description = &desc
	}
	return r
}

// Record is the flat submission shape of an annotation. Free-text records
// always carry product and description, as empty strings when nothing was
// entered; they are never null.
type Record struct {
	StartX      float64    `json:"startX"`
	StartY      float64    `json:"startY"`
	EndX        float64    `json:"endX"`
	EndY        float64    `json:"endY"`
	ProductID   *ProductID `json:"productId,omitempty"`
	Product     *string    `json:"product,omitempty"`
	Description *string    `json:"description,omitempty"`
}

// Annotation rebuilds an annotation from a record. Records carrying a
// product name are treated as free text.
func (r Record) Annotation() Annotation {
	a := Annotation{
		Rect: Rect{
			Start: Point{X: r.StartX, Y: r.StartY},
			End:   Point{X: r.EndX, Y: r.EndY},
		},
	}
	switch {
	case r.ProductID != nil:
		a.Kind = TagCatalog
		a.Product = &ProductRef{ID: *r.ProductID, Label: r.ProductID.String()}
	default:
		a.Kind = TagText
		if r.Product != nil {
			a.ProductName = *r.Product
		}
		if r.Description != nil {
			a.Description = *r.Description
		}
	}
	return a
}

// Suggestion is a vision model's guess at which product a region shows
type Suggestion struct {
	Product    ProductRef `json:"product"`
	Confidence float64    `json:"confidence"`
	Reason     string     `json:"reason,omitempty"`
}
