// Package photoannotator draws product annotations on photos.
//
// A session holds one selected image and an ordered list of rectangle
// annotations. Rectangles are drawn with pointer drags on a fixed-size
// surface, tagged with a product (free text or a pick from a remote
// catalog) and finally submitted, image and annotations together, as one
// multipart upload.
//
// Basic usage:
//
//	a := photoannotator.New(photoannotator.Options{
//		TagKind: types.TagText,
//		Upload:  photoannotator.UploadOptions{Endpoint: "https://example.com/api/upload"},
//	})
//	s := a.NewSession(ctx)
//	defer s.Close()
//
//	if err := s.LoadImageFile(ctx, "photo.jpg"); err != nil {
//		log.Fatal(err)
//	}
//	s.Surface.BeginDrag(types.PointerEvent{ClientX: 10, ClientY: 10})
//	s.Surface.UpdateDrag(types.PointerEvent{ClientX: 40, ClientY: 30})
//	s.Surface.CommitDrag(ctx, types.PointerEvent{ClientX: 80, ClientY: 60})
//	s.Surface.ResolveTag(ctx, tagging.Input{ProductName: "Lamp", Description: "brass"})
//
//	resp, err := s.SubmitWait(ctx)
//
// The package wires together:
//
//  1. Loader (pkg/loader): file to decoded image
//  2. Surface (pkg/surface): drag state machine, annotation store, render loop
//  3. Tagging (pkg/tagging): free-text or catalog-backed product resolution
//  4. Catalog (pkg/catalog) and Submit (pkg/submit): the two remote calls
package photoannotator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/menta2k/photo-annotator/pkg/catalog"
	"github.com/menta2k/photo-annotator/pkg/loader"
	"github.com/menta2k/photo-annotator/pkg/render"
	"github.com/menta2k/photo-annotator/pkg/submit"
	"github.com/menta2k/photo-annotator/pkg/surface"
	"github.com/menta2k/photo-annotator/pkg/tagging"
	"github.com/menta2k/photo-annotator/pkg/task"
	"github.com/menta2k/photo-annotator/pkg/types"
)

// Version of the photo annotator library
const Version = "1.0.0"

// UploadOptions configures the submission endpoint
type UploadOptions struct {
	Endpoint string
	Timeout  time.Duration
}

// Options configures an Annotator
type Options struct {
	Render  render.Config
	TagKind types.TagKind
	// Catalog lists products for the catalog tag flow
	Catalog catalog.Fetcher
	// Suggester is optional; it only runs in the catalog flow
	Suggester *tagging.Suggester
	Loader    *loader.Loader
	Upload    UploadOptions
	Logger    *zap.Logger
}

// Annotator creates annotation sessions sharing one configuration
type Annotator struct {
	opts Options
}

// New creates an Annotator. Zero-valued options fall back to defaults.
func New(opts Options) *Annotator {
	if opts.Render.Width == 0 || opts.Render.Height == 0 {
		opts.Render = render.DefaultConfig()
	}
	if opts.Loader == nil {
		opts.Loader = loader.New()
	}
	if opts.Upload.Timeout == 0 {
		opts.Upload.Timeout = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Annotator{opts: opts}
}

// Options returns the annotator's effective options
func (a *Annotator) Options() Options {
	return a.opts
}

// Session is one mounted annotator: one image, one annotation list
type Session struct {
	ID      string
	Surface *surface.Controller
	// Modal is nil in the free-text flow
	Modal *tagging.Modal

	ctx       context.Context
	cancel    context.CancelFunc
	loader    *loader.Loader
	submitter *submit.Client
	logger    *zap.Logger

	mu         sync.Mutex
	lastSubmit *task.Task[json.RawMessage]
}

// NewSession mounts a new session. In the catalog flow the product list
// fetch starts right away.
func (a *Annotator) NewSession(ctx context.Context) *Session {
	id := uuid.NewString()
	logger := a.opts.Logger.With(zap.String("session", id))
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	s := &Session{
		ID:        id,
		ctx:       sctx,
		cancel:    cancel,
		loader:    a.opts.Loader,
		submitter: submit.NewClient(a.opts.Upload.Endpoint, a.opts.Upload.Timeout, logger),
		logger:    logger,
	}

	var resolver tagging.Resolver
	switch a.opts.TagKind {
	case types.TagCatalog:
		var products *task.Task[[]types.ProductRef]
		if a.opts.Catalog != nil {
			products = catalog.FetchAsync(sctx, a.opts.Catalog, logger)
		}
		s.Modal = tagging.NewModal(products)
		resolver = tagging.NewCatalogResolver(s.Modal, a.opts.Suggester, logger)
	default:
		resolver = tagging.NewTextResolver()
	}

	s.Surface = surface.New(render.NewWithConfig(a.opts.Render), resolver, logger)
	logger.Debug("session mounted", zap.String("tag_mode", a.opts.TagKind.String()))
	return s
}

// LoadImage decodes the file and shows it on the surface. A failed read
// keeps the previous image.
func (s *Session) LoadImage(ctx context.Context, filename string, r io.Reader) error {
	src, err := s.loader.LoadAsync(ctx, filename, r).Await(ctx)
	if err != nil {
		s.logger.Warn("failed to load image", zap.String("filename", filename), zap.Error(err))
		return err
	}
	s.Surface.SetImage(src)
	return nil
}

// LoadImageFile loads an image from disk or an http(s) URL
func (s *Session) LoadImageFile(ctx context.Context, source string) error {
	src, err := s.loader.LoadSmart(ctx, source)
	if err != nil {
		s.logger.Warn("failed to load image", zap.String("source", source), zap.Error(err))
		return err
	}
	s.Surface.SetImage(src)
	return nil
}

// Upload assembles the current image and annotations for submission
func (s *Session) Upload() submit.Upload {
	u := submit.Upload{Records: s.Surface.Records()}
	if src := s.Surface.Source(); src != nil {
		u.Filename = src.Filename
		u.ContentType = src.ContentType
		u.Data = src.Data
	}
	return u
}

// Submit starts an upload of the current state in the background. It
// returns submit.ErrInFlight while a previous upload is running and
// submit.ErrNoImage when no image is selected.
func (s *Session) Submit() (*task.Task[json.RawMessage], error) {
	u := s.Upload()
	if len(u.Data) == 0 {
		return nil, submit.ErrNoImage
	}
	t, err := s.submitter.SubmitAsync(s.ctx, u)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.lastSubmit = t
	s.mu.Unlock()
	return t, nil
}

// SubmitWait uploads the current state and waits for the response
func (s *Session) SubmitWait(ctx context.Context) (json.RawMessage, error) {
	t, err := s.Submit()
	if err != nil {
		return nil, err
	}
	return t.Await(ctx)
}

// Submitting reports whether an upload is in flight
func (s *Session) Submitting() bool {
	return s.submitter.InFlight()
}

// LastSubmit returns the most recent upload task, or nil
func (s *Session) LastSubmit() *task.Task[json.RawMessage] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSubmit
}

// Close unmounts the session, cancelling any background work. The
// annotations are discarded with it.
func (s *Session) Close() {
	s.cancel()
	s.logger.Debug("session unmounted", zap.Int("annotations", len(s.Surface.Annotations())))
}

// GetVersion returns the library version
func GetVersion() string {
	return fmt.Sprintf("photo-annotator %s", Version)
}
