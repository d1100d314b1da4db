// Package tagging resolves a product identity for a freshly drawn rectangle.
//
// Two flows implement the same Resolver capability: TextResolver commits
// free-text name and description as given, CatalogResolver runs a modal
// selection over the remote product catalog and refuses to commit until a
// product is selected.
package tagging

import (
	"context"
	"errors"
	"image"
	"math"

	"github.com/menta2k/photo-annotator/pkg/types"
)

var (
	// ErrNoSelection is returned when a catalog tag is submitted without a product
	ErrNoSelection = errors.New("please select a product")
	// ErrUnknownProduct is returned when selecting an id the catalog does not list
	ErrUnknownProduct = errors.New("unknown product")
)

// Pending is a finished drag waiting for its product identity
type Pending struct {
	Rect types.Rect
	// Image is the source image shown on the surface, if any
	Image image.Image
	// Surface is the size of the drawing surface the rect was drawn on
	Surface image.Point
}

// ImageRegion maps the pending rect from surface space into the source
// image's pixel space
func (p Pending) ImageRegion() image.Rectangle {
	if p.Image == nil || p.Surface.X <= 0 || p.Surface.Y <= 0 {
		return image.Rectangle{}
	}
	b := p.Image.Bounds()
	sx := float64(b.Dx()) / float64(p.Surface.X)
	sy := float64(b.Dy()) / float64(p.Surface.Y)
	n := p.Rect.Normalize()
	r := image.Rect(
		b.Min.X+int(math.Floor(n.Start.X*sx)), b.Min.Y+int(math.Floor(n.Start.Y*sy)),
		b.Min.X+int(math.Ceil(n.End.X*sx)), b.Min.Y+int(math.Ceil(n.End.Y*sy)),
	)
	return r.Intersect(b)
}

// Input is what the user entered when submitting the tag
type Input struct {
	ProductID   types.ProductID `json:"productId,omitempty"`
	ProductName string          `json:"productName,omitempty"`
	Description string          `json:"description,omitempty"`
}

// Resolver resolves a product identity for a pending rectangle
type Resolver interface {
	Kind() types.TagKind
	// Open starts the flow for a new pending rectangle
	Open(ctx context.Context, p Pending)
	// Resolve turns the pending rectangle and the user's input into an
	// annotation. On error the flow stays open.
	Resolve(ctx context.Context, p Pending, in Input) (types.Annotation, error)
	// Close resets the flow after commit or cancel
	Close()
}

// TextResolver is the free-text flow. Whatever was typed is committed,
// empty values included.
type TextResolver struct{}

// NewTextResolver creates a free-text resolver
func NewTextResolver() *TextResolver {
	return &TextResolver{}
}

func (r *TextResolver) Kind() types.TagKind { return types.TagText }

func (r *TextResolver) Open(ctx context.Context, p Pending) {}

func (r *TextResolver) Resolve(ctx context.Context, p Pending, in Input) (types.Annotation, error) {
	return types.Annotation{
		Rect:        p.Rect,
		Kind:        types.TagText,
		ProductName: in.ProductName,
		Description: in.Description,
	}, nil
}

func (r *TextResolver) Close() {}
