package render

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	_ "golang.org/x/image/webp"

	"github.com/menta2k/photo-annotator/pkg/types"
)

// createTestImage creates a solid white image
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{255, 255, 255, 255})
		}
	}
	return img
}

// colorBounds returns the bounding box of every pixel equal to c
func colorBounds(img *image.NRGBA, c color.NRGBA) image.Rectangle {
	var out image.Rectangle
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.NRGBAAt(x, y) == c {
				out = out.Union(image.Rect(x, y, x+1, y+1))
			}
		}
	}
	return out
}

func rect(x0, y0, x1, y1 float64) types.Rect {
	return types.Rect{Start: types.Point{X: x0, Y: y0}, End: types.Point{X: x1, Y: y1}}
}

func noLabels() *Renderer {
	cfg := DefaultConfig()
	cfg.ShowLabels = false
	return NewWithConfig(cfg)
}

func TestRenderSurfaceSize(t *testing.T) {
	r := New()

	out := r.Render(Scene{Base: createTestImage(120, 80)})
	if out.Bounds().Dx() != 500 || out.Bounds().Dy() != 500 {
		t.Errorf("Expected 500x500 surface, got %dx%d", out.Bounds().Dx(), out.Bounds().Dy())
	}

	blank := r.Render(Scene{})
	if blank.Bounds().Dx() != 500 {
		t.Errorf("Expected blank surface of width 500, got %d", blank.Bounds().Dx())
	}
}

func TestStrokeBoundsIgnoreDragDirection(t *testing.T) {
	r := noLabels()
	base := createTestImage(500, 500)
	blue := DefaultConfig().CommittedColor
	want := image.Rect(40, 60, 200, 150)

	drags := []types.Rect{
		rect(40, 60, 200, 150),
		rect(200, 150, 40, 60),
		rect(200, 60, 40, 150),
		rect(40, 150, 200, 60),
	}

	for _, d := range drags {
		out := r.Render(Scene{
			Base:        base,
			Annotations: []types.Annotation{{Rect: d, Kind: types.TagText}},
		})
		if got := colorBounds(out, blue); got != want {
			t.Errorf("Drag %+v: stroke bounds %v, want %v", d, got, want)
		}
	}
}

func TestLiveRectDistinct(t *testing.T) {
	r := noLabels()
	cfg := r.Config()
	live := rect(300, 300, 250, 220)

	out := r.Render(Scene{
		Base:        createTestImage(500, 500),
		Annotations: []types.Annotation{{Rect: rect(10, 10, 50, 50), Kind: types.TagText}},
		Live:        &live,
	})

	if got := colorBounds(out, cfg.LiveColor); got != image.Rect(250, 220, 300, 300) {
		t.Errorf("Live stroke bounds %v", got)
	}
	if got := colorBounds(out, cfg.CommittedColor); got != image.Rect(10, 10, 50, 50) {
		t.Errorf("Committed stroke bounds %v", got)
	}
	if cfg.LiveColor == cfg.CommittedColor {
		t.Error("Live and committed colours must differ")
	}
}

func TestRenderIsPure(t *testing.T) {
	r := New()
	base := createTestImage(320, 240)
	live := rect(5, 5, 90, 70)
	scene := Scene{
		Base: base,
		Annotations: []types.Annotation{
			{Rect: rect(10, 40, 100, 120), Kind: types.TagCatalog, Product: &types.ProductRef{ID: types.IntID(3), Label: "Top coat"}},
			{Rect: rect(300, 10, 200, 90), Kind: types.TagText, ProductName: "Base coat"},
		},
		Live: &live,
	}

	first := r.Render(scene)
	second := r.Render(scene)
	if !bytes.Equal(first.Pix, second.Pix) {
		t.Error("Rendering the same scene twice should give identical pixels")
	}

	// the base image is never drawn on
	if base.(*image.RGBA).RGBAAt(10, 40) != (color.RGBA{255, 255, 255, 255}) {
		t.Error("Render must not modify the base image")
	}
}

func TestLabelsDrawn(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LabelColor = color.NRGBA{0, 128, 0, 255}
	r := NewWithConfig(cfg)

	out := r.Render(Scene{
		Base:        createTestImage(500, 500),
		Annotations: []types.Annotation{{Rect: rect(100, 100, 200, 200), Kind: types.TagText, ProductName: "Lamp"}},
	})

	got := colorBounds(out, cfg.LabelColor)
	if got.Empty() {
		t.Fatal("Expected label pixels")
	}
	if got.Max.Y > 100 {
		t.Errorf("Label should sit above the rectangle, got %v", got)
	}
}

func TestDefaultLabelsKeepStrokeBounds(t *testing.T) {
	r := New()
	cfg := r.Config()
	if cfg.LabelColor == cfg.CommittedColor {
		t.Fatal("Default label colour must differ from the committed stroke colour")
	}

	out := r.Render(Scene{
		Base:        createTestImage(500, 500),
		Annotations: []types.Annotation{{Rect: rect(100, 100, 200, 200), Kind: types.TagText, ProductName: "Lamp"}},
	})

	if got := colorBounds(out, cfg.CommittedColor); got != image.Rect(100, 100, 200, 200) {
		t.Errorf("Expected stroke bounds %v with labels on, got %v", image.Rect(100, 100, 200, 200), got)
	}
	if colorBounds(out, cfg.LabelColor).Empty() {
		t.Error("Expected label pixels in the default label colour")
	}
}

func TestFit(t *testing.T) {
	r := New()

	fitted := r.Fit(createTestImage(4000, 3000))
	if fitted.Bounds() != image.Rect(0, 0, 500, 500) {
		t.Errorf("Expected 500x500 fitted image, got %v", fitted.Bounds())
	}

	same := image.NewNRGBA(image.Rect(0, 0, 500, 500))
	clone := r.Fit(same)
	if clone == same {
		t.Error("Fit should copy a surface-sized image, not alias it")
	}
	if !bytes.Equal(clone.Pix, same.Pix) {
		t.Error("Fit should keep a surface-sized image unchanged")
	}

	if r.Fit(nil) != nil {
		t.Error("Fit(nil) should be nil")
	}

	// a fitted base renders like the original
	base := createTestImage(320, 240)
	a := r.Render(Scene{Base: base})
	b := r.Render(Scene{Base: r.Fit(base)})
	if !bytes.Equal(a.Pix, b.Pix) {
		t.Error("Rendering a fitted base should match rendering the original")
	}
}

func TestRectOutsideSurfaceClipped(t *testing.T) {
	r := noLabels()
	out := r.Render(Scene{
		Base:        createTestImage(500, 500),
		Annotations: []types.Annotation{{Rect: rect(-20, -20, 600, 40), Kind: types.TagText}},
	})

	// only the bottom edge falls inside the surface
	got := colorBounds(out, r.Config().CommittedColor)
	if got != image.Rect(0, 38, 500, 40) {
		t.Errorf("Expected clipped bounds, got %v", got)
	}
}

func TestEncode(t *testing.T) {
	img := New().Render(Scene{Base: createTestImage(50, 50)})

	for _, format := range []string{"png", "jpg", "webp"} {
		var buf bytes.Buffer
		if err := Encode(&buf, img, format, 90, false); err != nil {
			t.Fatalf("Encode(%s) failed: %v", format, err)
		}
		decoded, _, err := image.Decode(&buf)
		if err != nil {
			t.Fatalf("Decode(%s) failed: %v", format, err)
		}
		if decoded.Bounds().Dx() != 500 {
			t.Errorf("%s: expected width 500, got %d", format, decoded.Bounds().Dx())
		}
	}

	if err := Encode(&bytes.Buffer{}, img, "bmp", 90, false); err == nil {
		t.Error("Expected error for unsupported format")
	}
}

func TestContentType(t *testing.T) {
	cases := map[string]string{"png": "image/png", "JPG": "image/jpeg", "webp": "image/webp", "": "image/png"}
	for in, want := range cases {
		if got := ContentType(in); got != want {
			t.Errorf("ContentType(%q) = %s, want %s", in, got, want)
		}
	}
}
