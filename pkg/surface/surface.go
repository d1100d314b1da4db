// Package surface owns the state of one annotation session: the selected
// image, the committed annotations, the drag gesture and the pending tag.
//
// All mutation goes through the controller's operations. Every change to
// the image, the annotations or the live rectangle re-renders the frame.
package surface

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"go.uber.org/zap"

	"github.com/menta2k/photo-annotator/pkg/loader"
	"github.com/menta2k/photo-annotator/pkg/render"
	"github.com/menta2k/photo-annotator/pkg/store"
	"github.com/menta2k/photo-annotator/pkg/tagging"
	"github.com/menta2k/photo-annotator/pkg/types"
)

var (
	// ErrTagPending is returned when a drag starts while a rectangle still
	// waits for its product
	ErrTagPending = errors.New("a rectangle is waiting to be tagged")
	// ErrNoPendingTag is returned when resolving with nothing pending
	ErrNoPendingTag = errors.New("no rectangle waiting to be tagged")
)

// DragState is the gesture state of the surface
type DragState int

const (
	Idle DragState = iota
	Dragging
)

func (s DragState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	default:
		return fmt.Sprintf("DragState(%d)", int(s))
	}
}

// Controller is the drawing surface of one session
type Controller struct {
	mu       sync.Mutex
	renderer *render.Renderer
	resolver tagging.Resolver
	store    *store.Store
	logger   *zap.Logger

	source  *loader.Source
	base    *image.NRGBA
	state   DragState
	start   types.Point
	current types.Point
	pending *types.Rect
	frame   *image.NRGBA

	onRender func(*image.NRGBA)
}

// New creates a controller with an empty annotation store and renders the
// initial blank frame
func New(renderer *render.Renderer, resolver tagging.Resolver, logger *zap.Logger) *Controller {
	if renderer == nil {
		renderer = render.New()
	}
	if resolver == nil {
		resolver = tagging.NewTextResolver()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		renderer: renderer,
		resolver: resolver,
		store:    store.New(),
		logger:   logger,
	}
	c.frame = c.renderLocked()
	return c
}

// OnRender registers fn to receive every new frame
func (c *Controller) OnRender(fn func(*image.NRGBA)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRender = fn
}

// Resolver returns the tagging flow in use
func (c *Controller) Resolver() tagging.Resolver {
	return c.resolver
}

// SetImage replaces the selected image. Annotations drawn on the previous
// image are kept. The image is fitted to the surface here, once, so drag
// renders never resize it.
func (c *Controller) SetImage(src *loader.Source) {
	var base *image.NRGBA
	if src != nil {
		base = c.renderer.Fit(src.Image)
	}

	c.mu.Lock()
	c.source = src
	c.base = base
	frame := c.commitFrameLocked()
	c.mu.Unlock()

	if src != nil {
		info := src.Info()
		c.logger.Debug("image selected",
			zap.String("filename", info.Filename),
			zap.Int("width", info.Width),
			zap.Int("height", info.Height))
	}
	c.notify(frame)
}

// Source returns the selected image, or nil
func (c *Controller) Source() *loader.Source {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.source
}

// BeginDrag moves Idle to Dragging with the start corner at the event's
// surface-local position
func (c *Controller) BeginDrag(ev types.PointerEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		return ErrTagPending
	}
	p := ev.Local()
	c.state = Dragging
	c.start = p
	c.current = p
	return nil
}

// UpdateDrag moves the live corner and re-renders. It does nothing unless
// a drag is in progress.
func (c *Controller) UpdateDrag(ev types.PointerEvent) bool {
	c.mu.Lock()
	if c.state != Dragging {
		c.mu.Unlock()
		return false
	}
	c.current = ev.Local()
	live := types.Rect{Start: c.start, End: c.current}
	c.frame = c.renderer.Render(c.sceneLocked(&live))
	frame := c.frame
	c.mu.Unlock()

	c.notify(frame)
	return true
}

// CommitDrag finalizes the drag and hands the candidate rectangle to the
// tagging flow. ok is false when no drag was in progress.
func (c *Controller) CommitDrag(ctx context.Context, ev types.PointerEvent) (rect types.Rect, ok bool) {
	c.mu.Lock()
	if c.state != Dragging {
		c.mu.Unlock()
		return types.Rect{}, false
	}
	c.state = Idle
	c.current = ev.Local()
	rect = types.Rect{Start: c.start, End: c.current}
	c.pending = &rect
	c.resolver.Open(ctx, c.taggingPendingLocked())
	frame := c.commitFrameLocked()
	c.mu.Unlock()

	c.notify(frame)
	return rect, true
}

// Pending returns the rectangle waiting for its product, or nil
func (c *Controller) Pending() *types.Rect {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return nil
	}
	r := *c.pending
	return &r
}

// ResolveTag resolves the pending rectangle's product and commits the
// annotation. On failure the rectangle stays pending.
func (c *Controller) ResolveTag(ctx context.Context, in tagging.Input) (types.Annotation, error) {
	c.mu.Lock()
	if c.pending == nil {
		c.mu.Unlock()
		return types.Annotation{}, ErrNoPendingTag
	}
	a, err := c.resolver.Resolve(ctx, c.taggingPendingLocked(), in)
	if err != nil {
		c.mu.Unlock()
		return types.Annotation{}, err
	}
	idx := c.store.Append(a)
	c.pending = nil
	c.resolver.Close()
	frame := c.commitFrameLocked()
	c.mu.Unlock()

	c.logger.Debug("annotation committed",
		zap.Int("index", idx),
		zap.String("label", a.Label()),
		zap.String("kind", a.Kind.String()))
	c.notify(frame)
	return a, nil
}

// CancelTag drops the pending rectangle. It reports whether one existed.
func (c *Controller) CancelTag() bool {
	c.mu.Lock()
	if c.pending == nil {
		c.mu.Unlock()
		return false
	}
	c.pending = nil
	c.resolver.Close()
	frame := c.commitFrameLocked()
	c.mu.Unlock()

	c.notify(frame)
	return true
}

// State returns the drag state
func (c *Controller) State() DragState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Frame returns the most recently rendered frame
func (c *Controller) Frame() *image.NRGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame
}

// Annotations returns the committed annotations in commit order
func (c *Controller) Annotations() []types.Annotation {
	return c.store.All()
}

// Records returns the committed annotations in submission form
func (c *Controller) Records() []types.Record {
	return c.store.Records()
}

func (c *Controller) sceneLocked(live *types.Rect) render.Scene {
	var base image.Image
	if c.base != nil {
		base = c.base
	}
	return render.Scene{
		Base:        base,
		Annotations: c.store.All(),
		Live:        live,
	}
}

// renderLocked draws the committed state with the pending rectangle, if
// any, in the live style
func (c *Controller) renderLocked() *image.NRGBA {
	return c.renderer.Render(c.sceneLocked(c.pending))
}

func (c *Controller) commitFrameLocked() *image.NRGBA {
	c.frame = c.renderLocked()
	return c.frame
}

func (c *Controller) taggingPendingLocked() tagging.Pending {
	cfg := c.renderer.Config()
	p := tagging.Pending{Surface: image.Pt(cfg.Width, cfg.Height)}
	if c.pending != nil {
		p.Rect = *c.pending
	}
	if c.source != nil {
		p.Image = c.source.Image
	}
	return p
}

func (c *Controller) notify(frame *image.NRGBA) {
	c.mu.Lock()
	fn := c.onRender
	c.mu.Unlock()
	if fn != nil {
		fn(frame)
	}
}
