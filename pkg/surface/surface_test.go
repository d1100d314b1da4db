package surface

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/menta2k/photo-annotator/pkg/loader"
	"github.com/menta2k/photo-annotator/pkg/render"
	"github.com/menta2k/photo-annotator/pkg/tagging"
	"github.com/menta2k/photo-annotator/pkg/task"
	"github.com/menta2k/photo-annotator/pkg/types"
)

var testProducts = []types.ProductRef{
	{ID: types.IntID(3), Label: "Gel Polish"},
	{ID: types.IntID(4), Label: "Top Coat"},
}

func createSource(t *testing.T, width, height int, c color.Color) *loader.Source {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	src, err := loader.New().Load(context.Background(), "photo.png", &buf)
	if err != nil {
		t.Fatal(err)
	}
	return src
}

func at(x, y float64) types.PointerEvent {
	return types.PointerEvent{ClientX: x, ClientY: y}
}

func newCatalogController() (*Controller, *tagging.Modal) {
	modal := tagging.NewModal(task.Done(testProducts, nil))
	return New(render.New(), tagging.NewCatalogResolver(modal, nil, nil), nil), modal
}

// drawAndTag runs one full pointer-down, move, up, tag cycle
func drawAndTag(t *testing.T, c *Controller, x0, y0, x1, y1 float64, in tagging.Input) types.Annotation {
	t.Helper()
	if err := c.BeginDrag(at(x0, y0)); err != nil {
		t.Fatalf("BeginDrag failed: %v", err)
	}
	c.UpdateDrag(at((x0+x1)/2, (y0+y1)/2))
	if _, ok := c.CommitDrag(context.Background(), at(x1, y1)); !ok {
		t.Fatal("CommitDrag should finish an active drag")
	}
	a, err := c.ResolveTag(context.Background(), in)
	if err != nil {
		t.Fatalf("ResolveTag failed: %v", err)
	}
	return a
}

func TestDragStateMachine(t *testing.T) {
	c := New(nil, nil, nil)
	if c.State() != Idle {
		t.Fatalf("Expected Idle, got %v", c.State())
	}

	c.BeginDrag(types.PointerEvent{ClientX: 130, ClientY: 90, Left: 30, Top: 40})
	if c.State() != Dragging {
		t.Fatalf("Expected Dragging, got %v", c.State())
	}

	rect, ok := c.CommitDrag(context.Background(), types.PointerEvent{ClientX: 80, ClientY: 60, Left: 30, Top: 40})
	if !ok {
		t.Fatal("CommitDrag should succeed")
	}
	want := types.Rect{Start: types.Point{X: 100, Y: 50}, End: types.Point{X: 50, Y: 20}}
	if rect != want {
		t.Errorf("Expected surface-local rect %+v, got %+v", want, rect)
	}
	if c.State() != Idle {
		t.Errorf("Expected Idle after commit, got %v", c.State())
	}
	if p := c.Pending(); p == nil || *p != want {
		t.Errorf("Expected pending rect %+v, got %v", want, p)
	}
}

func TestNCyclesGiveNAnnotationsInOrder(t *testing.T) {
	c := New(nil, tagging.NewTextResolver(), nil)
	names := []string{"first", "second", "third", "fourth"}

	for i, name := range names {
		x := float64(i * 20)
		drawAndTag(t, c, x, x, x+15, x+15, tagging.Input{ProductName: name})
	}

	got := c.Annotations()
	if len(got) != len(names) {
		t.Fatalf("Expected %d annotations, got %d", len(names), len(got))
	}
	for i, a := range got {
		if a.ProductName != names[i] {
			t.Errorf("Annotation %d: expected %s, got %s", i, names[i], a.ProductName)
		}
	}
}

func TestPointerUpWithoutDownIsNoop(t *testing.T) {
	c := New(nil, nil, nil)

	if _, ok := c.CommitDrag(context.Background(), at(40, 40)); ok {
		t.Error("CommitDrag without BeginDrag should be a no-op")
	}
	if c.Pending() != nil {
		t.Error("No rectangle should be pending")
	}
	if len(c.Annotations()) != 0 {
		t.Error("Annotations should be unchanged")
	}
}

func TestMoveWithoutDownIsNoop(t *testing.T) {
	c := New(nil, nil, nil)
	before := c.Frame()
	if c.UpdateDrag(at(10, 10)) {
		t.Error("UpdateDrag while Idle should do nothing")
	}
	if c.Frame() != before {
		t.Error("Frame should not be re-rendered while Idle")
	}
}

func TestCatalogTagRequiresSelection(t *testing.T) {
	c, modal := newCatalogController()

	c.BeginDrag(at(10, 10))
	c.CommitDrag(context.Background(), at(50, 50))

	if _, err := c.ResolveTag(context.Background(), tagging.Input{}); !errors.Is(err, tagging.ErrNoSelection) {
		t.Fatalf("Expected ErrNoSelection, got %v", err)
	}
	if len(c.Annotations()) != 0 {
		t.Error("Rejected tag must not append")
	}
	if !modal.IsOpen() || c.Pending() == nil {
		t.Error("Modal should stay open with the rectangle pending")
	}

	modal.Select(types.IntID(3))
	a, err := c.ResolveTag(context.Background(), tagging.Input{})
	if err != nil {
		t.Fatalf("ResolveTag failed: %v", err)
	}
	if a.Product.ID != types.IntID(3) {
		t.Errorf("Expected product 3, got %+v", a.Product)
	}
	if modal.IsOpen() || modal.Selection() != nil || c.Pending() != nil {
		t.Error("Commit should reset the modal and the pending rect")
	}

	recs := c.Records()
	if len(recs) != 1 || recs[0].StartX != 10 || recs[0].EndY != 50 || *recs[0].ProductID != types.IntID(3) {
		t.Errorf("Unexpected records %+v", recs)
	}
}

func TestDragBlockedWhileTagPending(t *testing.T) {
	c, _ := newCatalogController()
	c.BeginDrag(at(1, 1))
	c.CommitDrag(context.Background(), at(20, 20))

	if err := c.BeginDrag(at(5, 5)); !errors.Is(err, ErrTagPending) {
		t.Errorf("Expected ErrTagPending, got %v", err)
	}

	if !c.CancelTag() {
		t.Fatal("CancelTag should drop the pending rect")
	}
	if err := c.BeginDrag(at(5, 5)); err != nil {
		t.Errorf("Drag should start after cancel: %v", err)
	}
	if c.CancelTag() {
		t.Error("Nothing should be pending now")
	}
}

func TestResolveWithoutPending(t *testing.T) {
	c := New(nil, nil, nil)
	if _, err := c.ResolveTag(context.Background(), tagging.Input{ProductName: "x"}); !errors.Is(err, ErrNoPendingTag) {
		t.Errorf("Expected ErrNoPendingTag, got %v", err)
	}
}

func TestReplacingImageKeepsAnnotations(t *testing.T) {
	c := New(nil, tagging.NewTextResolver(), nil)
	c.SetImage(createSource(t, 100, 100, color.White))
	drawAndTag(t, c, 10, 10, 60, 60, tagging.Input{ProductName: "kept"})

	c.SetImage(createSource(t, 300, 200, color.Black))

	if len(c.Annotations()) != 1 {
		t.Fatalf("Expected annotation to survive image change, got %d", len(c.Annotations()))
	}
	if c.Source().Info().Width != 300 {
		t.Error("Expected the new image to be selected")
	}
}

func TestRenderTriggeredOnChange(t *testing.T) {
	cfg := render.DefaultConfig()
	cfg.ShowLabels = false
	c := New(render.NewWithConfig(cfg), tagging.NewTextResolver(), nil)

	var frames int
	c.OnRender(func(*image.NRGBA) { frames++ })

	c.SetImage(createSource(t, 500, 500, color.White))
	c.BeginDrag(at(10, 10))
	c.UpdateDrag(at(30, 30))
	c.UpdateDrag(at(40, 40))
	c.CommitDrag(context.Background(), at(50, 50))
	c.ResolveTag(context.Background(), tagging.Input{})

	// image, two moves, pointer-up, commit
	if frames != 5 {
		t.Errorf("Expected 5 renders, got %d", frames)
	}

	frame := c.Frame()
	if frame.NRGBAAt(10, 10) != cfg.CommittedColor {
		t.Errorf("Committed rect corner should be drawn, got %v", frame.NRGBAAt(10, 10))
	}
	if frame.NRGBAAt(30, 10) != cfg.CommittedColor {
		t.Errorf("Committed top edge should be drawn, got %v", frame.NRGBAAt(30, 10))
	}
}

func TestLiveRectDuringDrag(t *testing.T) {
	cfg := render.DefaultConfig()
	c := New(render.NewWithConfig(cfg), nil, nil)
	c.SetImage(createSource(t, 500, 500, color.White))

	c.BeginDrag(at(200, 200))
	c.UpdateDrag(at(100, 150))

	frame := c.Frame()
	if frame.NRGBAAt(100, 150) != cfg.LiveColor {
		t.Errorf("Live rect should use the live colour, got %v", frame.NRGBAAt(100, 150))
	}
}

func TestPendingCarriesImageForSuggestions(t *testing.T) {
	src := createSource(t, 1000, 1000, color.White)
	c := New(nil, nil, nil)
	c.SetImage(src)

	c.mu.Lock()
	c.pending = &types.Rect{Start: types.Point{X: 0, Y: 0}, End: types.Point{X: 250, Y: 250}}
	p := c.taggingPendingLocked()
	c.mu.Unlock()

	if got := p.ImageRegion(); got != image.Rect(0, 0, 500, 500) {
		t.Errorf("Expected region scaled to the source image, got %v", got)
	}
}

func TestDragRendersUseFittedBase(t *testing.T) {
	c := New(nil, nil, nil)
	big := &loader.Source{
		Filename:    "big.png",
		ContentType: "image/png",
		Image:       image.NewNRGBA(image.Rect(0, 0, 4000, 3000)),
	}
	c.SetImage(big)

	c.mu.Lock()
	base := c.base
	scene := c.sceneLocked(nil)
	c.mu.Unlock()
	if base == nil || base.Bounds() != image.Rect(0, 0, 500, 500) {
		t.Fatalf("Expected the image fitted to 500x500 on selection, got %v", base)
	}
	// a surface-sized base means Render copies it instead of resizing
	if scene.Base.Bounds() != image.Rect(0, 0, 500, 500) {
		t.Fatalf("Scene base should be surface-sized, got %v", scene.Base.Bounds())
	}

	c.BeginDrag(at(10, 10))
	started := time.Now()
	for i := 0; i < 20; i++ {
		c.UpdateDrag(at(float64(20+i*10), float64(20+i*10)))
	}
	if elapsed := time.Since(started); elapsed > 2*time.Second {
		t.Errorf("20 drag moves took %v, renders should not resize the source", elapsed)
	}

	c.mu.Lock()
	same := c.base == base
	c.mu.Unlock()
	if !same {
		t.Error("Drag moves must not refit the base")
	}
	if c.Source() != big {
		t.Error("The full-resolution source should stay selected")
	}
}
