package server

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	photoannotator "github.com/menta2k/photo-annotator"
	"github.com/menta2k/photo-annotator/pkg/loader"
	"github.com/menta2k/photo-annotator/pkg/render"
	"github.com/menta2k/photo-annotator/pkg/submit"
	"github.com/menta2k/photo-annotator/pkg/surface"
	"github.com/menta2k/photo-annotator/pkg/tagging"
	"github.com/menta2k/photo-annotator/pkg/types"
)

// SessionHandler serves the annotation session routes
type SessionHandler struct {
	registry *Registry
	opts     photoannotator.Options
	maxSize  int64
	logger   *zap.Logger
}

// NewSessionHandler creates the handler. maxSize caps uploaded image files;
// 0 disables the check.
func NewSessionHandler(registry *Registry, opts photoannotator.Options, maxSize int64, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{registry: registry, opts: opts, maxSize: maxSize, logger: logger}
}

// Register mounts the session routes on g
func (h *SessionHandler) Register(g *gin.RouterGroup) {
	g.POST("/sessions", h.Create)
	s := g.Group("/sessions/:id")
	{
		s.DELETE("", h.Delete)
		s.PUT("/image", h.SetImage)
		s.GET("/frame", h.Frame)
		s.POST("/pointer/down", h.PointerDown)
		s.POST("/pointer/move", h.PointerMove)
		s.POST("/pointer/up", h.PointerUp)
		s.GET("/annotations", h.Annotations)
		s.GET("/products", h.Products)
		s.GET("/tag", h.Tag)
		s.POST("/tag/select", h.SelectProduct)
		s.POST("/tag", h.ResolveTag)
		s.DELETE("/tag", h.CancelTag)
		s.POST("/submit", h.Submit)
		s.GET("/submit", h.SubmitStatus)
	}
}

// Create mounts a new session
func (h *SessionHandler) Create(c *gin.Context) {
	s := h.registry.Create(c.Request.Context())
	h.logger.Info("session created", zap.String("session", s.ID))
	c.JSON(http.StatusCreated, Response{
		Success: true,
		Message: "session created",
		Data: SessionInfo{
			ID:      s.ID,
			TagMode: h.opts.TagKind.String(),
			Width:   h.opts.Render.Width,
			Height:  h.opts.Render.Height,
		},
	})
}

// Delete unmounts a session and drops its annotations
func (h *SessionHandler) Delete(c *gin.Context) {
	if err := h.registry.Delete(c.Param("id")); err != nil {
		notFound(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Message: "session closed"})
}

// SetImage reads the multipart "file" field and shows it on the surface
func (h *SessionHandler) SetImage(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Message: "please choose an image file",
			Error:   err.Error(),
		})
		return
	}

	if h.maxSize > 0 && file.Size > h.maxSize {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Success: false,
			Message: fmt.Sprintf("file exceeds the size limit (%d MB)", h.maxSize/(1024*1024)),
		})
		return
	}

	f, err := file.Open()
	if err != nil {
		h.logger.Error("failed to open uploaded file", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Success: false,
			Message: "failed to read file",
			Error:   err.Error(),
		})
		return
	}
	defer f.Close()

	if err := s.LoadImage(c.Request.Context(), file.Filename, f); err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, loader.ErrTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, ErrorResponse{
			Success: false,
			Message: "failed to load image",
			Error:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "image loaded",
		Data:    s.Surface.Source().Info(),
	})
}

// Frame returns the current surface frame as an image
func (h *SessionHandler) Frame(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	format := c.DefaultQuery("format", "png")
	var buf bytes.Buffer
	if err := render.Encode(&buf, s.Surface.Frame(), format, 90, false); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Message: "unsupported frame format",
			Error:   err.Error(),
		})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, render.ContentType(format), buf.Bytes())
}

// PointerDown starts a drag
func (h *SessionHandler) PointerDown(c *gin.Context) {
	s, ev, ok := h.pointer(c)
	if !ok {
		return
	}
	if err := s.Surface.BeginDrag(ev); err != nil {
		c.JSON(http.StatusConflict, ErrorResponse{
			Success: false,
			Message: "finish tagging the current rectangle first",
			Error:   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "drag started",
		Data:    PointerResult{State: s.Surface.State().String(), Changed: true},
	})
}

// PointerMove updates the live rectangle. Moves outside a drag are ignored.
func (h *SessionHandler) PointerMove(c *gin.Context) {
	s, ev, ok := h.pointer(c)
	if !ok {
		return
	}
	changed := s.Surface.UpdateDrag(ev)
	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "ok",
		Data:    PointerResult{State: s.Surface.State().String(), Changed: changed},
	})
}

// PointerUp ends the drag and opens the tag dialog for the candidate
func (h *SessionHandler) PointerUp(c *gin.Context) {
	s, ev, ok := h.pointer(c)
	if !ok {
		return
	}
	rect, committed := s.Surface.CommitDrag(c.Request.Context(), ev)
	res := PointerResult{State: s.Surface.State().String(), Changed: committed}
	if committed {
		res.Pending = &rect
	}
	c.JSON(http.StatusOK, Response{Success: true, Message: "ok", Data: res})
}

// Annotations lists the committed annotations in commit order
func (h *SessionHandler) Annotations(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	list := s.Surface.Annotations()
	views := make([]AnnotationView, 0, len(list))
	for _, a := range list {
		views = append(views, AnnotationView{Label: a.Label(), Rect: a.Rect, Record: a.Record()})
	}
	c.JSON(http.StatusOK, Response{Success: true, Message: "ok", Data: views})
}

// Products lists the catalog options matching q
func (h *SessionHandler) Products(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if s.Modal == nil {
		textMode(c)
		return
	}
	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "ok",
		Data: gin.H{
			"loaded":  s.Modal.State().Loaded,
			"options": s.Modal.Search(c.Query("q")),
		},
	})
}

// Tag returns the pending rectangle and the dialog state
func (h *SessionHandler) Tag(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	view := TagView{Pending: s.Surface.Pending(), Mode: s.Surface.Resolver().Kind().String()}
	if s.Modal != nil {
		st := s.Modal.State()
		view.Modal = &st
	}
	c.JSON(http.StatusOK, Response{Success: true, Message: "ok", Data: view})
}

// SelectProduct sets the modal's selection
func (h *SessionHandler) SelectProduct(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if s.Modal == nil {
		textMode(c)
		return
	}

	var req SelectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.ProductID.IsZero() {
		badRequest(c, errors.New("productId is required"))
		return
	}

	p, err := s.Modal.Select(req.ProductID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Success: false,
			Message: "unknown product",
			Error:   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Message: "product selected", Data: p})
}

// ResolveTag commits the pending rectangle with its product
func (h *SessionHandler) ResolveTag(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var in tagging.Input
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, err)
			return
		}
	}

	a, err := s.Surface.ResolveTag(c.Request.Context(), in)
	switch {
	case err == nil:
	case errors.Is(err, tagging.ErrNoSelection):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Success: false,
			Message: "Please select a product",
			Error:   err.Error(),
		})
		return
	case errors.Is(err, surface.ErrNoPendingTag):
		c.JSON(http.StatusConflict, ErrorResponse{
			Success: false,
			Message: "nothing to tag",
			Error:   err.Error(),
		})
		return
	case errors.Is(err, tagging.ErrUnknownProduct):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Success: false,
			Message: "unknown product",
			Error:   err.Error(),
		})
		return
	default:
		h.logger.Error("failed to resolve tag", zap.String("session", s.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Success: false,
			Message: "failed to tag rectangle",
			Error:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Message: "annotation added",
		Data:    AnnotationView{Label: a.Label(), Rect: a.Rect, Record: a.Record()},
	})
}

// CancelTag discards the pending rectangle
func (h *SessionHandler) CancelTag(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if !s.Surface.CancelTag() {
		c.JSON(http.StatusConflict, ErrorResponse{
			Success: false,
			Message: "nothing to cancel",
			Error:   surface.ErrNoPendingTag.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Message: "tag cancelled"})
}

// Submit starts the upload of the image and its annotations
func (h *SessionHandler) Submit(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	if _, err := s.Submit(); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, submit.ErrInFlight):
			status = http.StatusConflict
		case errors.Is(err, submit.ErrNoImage):
			status = http.StatusBadRequest
		}
		c.JSON(status, ErrorResponse{
			Success: false,
			Message: "upload not started",
			Error:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, Response{
		Success: true,
		Message: "upload started",
		Data:    SubmitStatus{InFlight: true},
	})
}

// SubmitStatus reports the outcome of the last upload
func (h *SessionHandler) SubmitStatus(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	st := SubmitStatus{InFlight: s.Submitting()}
	if t := s.LastSubmit(); t != nil && t.Ready() {
		st.Done = true
		resp, err := t.Await(c.Request.Context())
		if err != nil {
			st.Error = err.Error()
		} else if len(resp) > 0 {
			st.Response = resp
		}
	}
	c.JSON(http.StatusOK, Response{Success: true, Message: "ok", Data: st})
}

func (h *SessionHandler) session(c *gin.Context) (*photoannotator.Session, bool) {
	s, err := h.registry.Get(c.Param("id"))
	if err != nil {
		notFound(c, err)
		return nil, false
	}
	return s, true
}

func (h *SessionHandler) pointer(c *gin.Context) (*photoannotator.Session, types.PointerEvent, bool) {
	var ev types.PointerEvent
	s, ok := h.session(c)
	if !ok {
		return nil, ev, false
	}
	if err := c.ShouldBindJSON(&ev); err != nil {
		badRequest(c, err)
		return nil, ev, false
	}
	return s, ev, true
}

func notFound(c *gin.Context, err error) {
	c.JSON(http.StatusNotFound, ErrorResponse{
		Success: false,
		Message: "session not found",
		Error:   err.Error(),
	})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Success: false,
		Message: "invalid request body",
		Error:   err.Error(),
	})
}

func textMode(c *gin.Context) {
	c.JSON(http.StatusConflict, ErrorResponse{
		Success: false,
		Message: "the product catalog is not used in free-text mode",
	})
}
