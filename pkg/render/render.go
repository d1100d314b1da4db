package render

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/menta2k/photo-annotator/pkg/types"
)

// Config holds configuration for the render pass. Labels use LabelColor,
// so pixels in CommittedColor belong to rectangle strokes only.
type Config struct {
	Width  int
	Height int
	Stroke int

	CommittedColor color.NRGBA
	LiveColor      color.NRGBA
	LabelColor     color.NRGBA
	ShowLabels     bool
}

// DefaultConfig returns a 500x500 surface with blue committed and red live
// rectangles and navy labels
func DefaultConfig() Config {
	return Config{
		Width:          500,
		Height:         500,
		Stroke:         2,
		CommittedColor: color.NRGBA{0, 0, 255, 255},
		LiveColor:      color.NRGBA{255, 0, 0, 255},
		LabelColor:     color.NRGBA{0, 0, 128, 255},
		ShowLabels:     true,
	}
}

// Renderer draws the base image and annotations onto a fixed-size surface
type Renderer struct {
	config Config
}

// New creates a Renderer with default configuration
func New() *Renderer {
	return &Renderer{config: DefaultConfig()}
}

// NewWithConfig creates a Renderer with custom configuration
func NewWithConfig(config Config) *Renderer {
	if config.Stroke < 1 {
		config.Stroke = 1
	}
	return &Renderer{config: config}
}

// Config returns the renderer configuration
func (r *Renderer) Config() Config {
	return r.config
}

// Scene is everything a render pass depends on
type Scene struct {
	Base        image.Image
	Annotations []types.Annotation
	Live        *types.Rect
}

// Fit scales img to the surface size. Callers that render the same image
// repeatedly should fit it once and pass the result as Scene.Base.
func (r *Renderer) Fit(img image.Image) *image.NRGBA {
	if img == nil {
		return nil
	}
	w, h := r.config.Width, r.config.Height
	if r.fitted(img) {
		return imaging.Clone(img)
	}
	return imaging.Resize(img, w, h, imaging.Lanczos)
}

func (r *Renderer) fitted(img image.Image) bool {
	b := img.Bounds()
	return b.Dx() == r.config.Width && b.Dy() == r.config.Height
}

// Render clears the surface and redraws the scene from scratch. The output
// depends only on the scene. A base that is not already surface-sized is
// fitted on every call.
func (r *Renderer) Render(s Scene) *image.NRGBA {
	var canvas *image.NRGBA
	switch {
	case s.Base == nil:
		canvas = image.NewNRGBA(image.Rect(0, 0, r.config.Width, r.config.Height))
	case r.fitted(s.Base):
		canvas = imaging.Clone(s.Base)
	default:
		canvas = r.Fit(s.Base)
	}

	for _, a := range s.Annotations {
		bounds := a.Rect.Bounds()
		drawBox(canvas, bounds, r.config.CommittedColor, r.config.Stroke)
		if r.config.ShowLabels {
			drawLabel(canvas, bounds, a.Label(), r.config.LabelColor)
		}
	}

	if s.Live != nil {
		drawBox(canvas, s.Live.Bounds(), r.config.LiveColor, r.config.Stroke)
	}

	return canvas
}

// Encode writes img in the given format (png, jpg or webp)
func Encode(w io.Writer, img image.Image, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		return webp.Encode(w, img, &webp.Options{Lossless: lossless, Quality: float32(quality)})
	case "png", "":
		return imaging.Encode(w, img, imaging.PNG)
	case "jpg", "jpeg":
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// ContentType returns the MIME type for an Encode format
func ContentType(format string) string {
	switch strings.ToLower(format) {
	case "webp":
		return "image/webp"
	case "jpg", "jpeg":
		return "image/jpeg"
	default:
		return "image/png"
	}
}

// drawBox strokes rect inward so the outer edge of the stroke matches rect
func drawBox(img *image.NRGBA, rect image.Rectangle, c color.NRGBA, stroke int) {
	if rect.Empty() {
		return
	}
	x0, y0, x1, y1 := rect.Min.X, rect.Min.Y, rect.Max.X, rect.Max.Y
	for s := 0; s < stroke; s++ {
		drawHLine(img, y0+s, x0, x1, c)
		drawHLine(img, y1-1-s, x0, x1, c)
		drawVLine(img, x0+s, y0, y1, c)
		drawVLine(img, x1-1-s, y0, y1, c)
	}
}

func drawLabel(img *image.NRGBA, rect image.Rectangle, label string, c color.NRGBA) {
	if label == "" || rect.Empty() {
		return
	}
	face := basicfont.Face7x13
	y := rect.Min.Y - 3
	if y-face.Ascent < 0 {
		y = rect.Min.Y + face.Ascent + 3
	}
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(rect.Min.X+2, y),
	}
	d.DrawString(label)
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
