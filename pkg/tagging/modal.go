package tagging

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/menta2k/photo-annotator/pkg/task"
	"github.com/menta2k/photo-annotator/pkg/types"
)

// Modal is the state of the product selection dialog: the catalog options
// fetched once per session, the current selection and an optional model
// suggestion
type Modal struct {
	mu         sync.Mutex
	products   *task.Task[[]types.ProductRef]
	open       bool
	generation int
	selection  *types.ProductRef
	suggestion *types.Suggestion
}

// NewModal creates a closed modal whose options come from products
func NewModal(products *task.Task[[]types.ProductRef]) *Modal {
	if products == nil {
		products = task.Done[[]types.ProductRef](nil, nil)
	}
	return &Modal{products: products}
}

// ModalState is a snapshot of the modal for display
type ModalState struct {
	Open       bool              `json:"open"`
	Loaded     bool              `json:"loaded"`
	Selection  *types.ProductRef `json:"selection,omitempty"`
	Suggestion *types.Suggestion `json:"suggestion,omitempty"`
}

// State returns a snapshot of the modal
func (m *Modal) State() ModalState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := ModalState{Open: m.open, Loaded: m.products.Ready()}
	if m.selection != nil {
		sel := *m.selection
		st.Selection = &sel
	}
	if m.suggestion != nil {
		sug := *m.suggestion
		st.Suggestion = &sug
	}
	return st
}

// Products returns the catalog options without waiting. The list is empty
// until the fetch finishes, and stays empty if it failed.
func (m *Modal) Products() []types.ProductRef {
	if !m.products.Ready() {
		return nil
	}
	products, err := m.products.Await(context.Background())
	if err != nil {
		return nil
	}
	return products
}

// WaitProducts blocks until the catalog fetch finishes
func (m *Modal) WaitProducts(ctx context.Context) ([]types.ProductRef, error) {
	return m.products.Await(ctx)
}

// Search returns the options whose label contains query, ignoring case
func (m *Modal) Search(query string) []types.Option {
	query = strings.ToLower(strings.TrimSpace(query))
	products := m.Products()
	out := make([]types.Option, 0, len(products))
	for _, p := range products {
		if query == "" || strings.Contains(strings.ToLower(p.Label), query) {
			out = append(out, p.Option())
		}
	}
	return out
}

// Select marks the catalog product with the given id as chosen. An exact
// match wins; otherwise "3" and 3 name the same product. The selection
// keeps the catalog's own id, so its JSON kind reaches the upload intact.
func (m *Modal) Select(id types.ProductID) (types.ProductRef, error) {
	var found *types.ProductRef
	for _, p := range m.Products() {
		if p.ID == id {
			found = &p
			break
		}
		if found == nil && p.ID.Matches(id) {
			found = &p
		}
	}
	if found == nil {
		return types.ProductRef{}, fmt.Errorf("%w: %s", ErrUnknownProduct, id)
	}

	m.mu.Lock()
	sel := *found
	m.selection = &sel
	m.mu.Unlock()
	return sel, nil
}

// Selection returns the chosen product, or nil
func (m *Modal) Selection() *types.ProductRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.selection == nil {
		return nil
	}
	sel := *m.selection
	return &sel
}

// IsOpen reports whether the modal is showing
func (m *Modal) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

func (m *Modal) show() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = true
	m.generation++
	m.selection = nil
	m.suggestion = nil
	return m.generation
}

func (m *Modal) hide() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = false
	m.generation++
	m.selection = nil
	m.suggestion = nil
}

// suggest stores s unless the modal moved on to another rectangle
func (m *Modal) suggest(generation int, s *types.Suggestion) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open || m.generation != generation {
		return false
	}
	m.suggestion = s
	return true
}

// CatalogResolver is the modal flow backed by the remote catalog
type CatalogResolver struct {
	modal     *Modal
	suggester *Suggester
	logger    *zap.Logger
}

// NewCatalogResolver creates a catalog resolver. suggester may be nil.
func NewCatalogResolver(modal *Modal, suggester *Suggester, logger *zap.Logger) *CatalogResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogResolver{modal: modal, suggester: suggester, logger: logger}
}

// Modal returns the resolver's modal state
func (r *CatalogResolver) Modal() *Modal { return r.modal }

func (r *CatalogResolver) Kind() types.TagKind { return types.TagCatalog }

// Open shows the modal and, when a suggester is configured, asks it for a
// product guess in the background
func (r *CatalogResolver) Open(ctx context.Context, p Pending) {
	gen := r.modal.show()
	if r.suggester == nil || p.Image == nil {
		return
	}

	products := r.modal.Products()
	if len(products) == 0 {
		return
	}
	task.Go(context.WithoutCancel(ctx), func(ctx context.Context) (*types.Suggestion, error) {
		s, err := r.suggester.Suggest(ctx, p, products)
		if err != nil {
			r.logger.Debug("product suggestion failed", zap.Error(err))
			return nil, err
		}
		if r.modal.suggest(gen, s) {
			r.logger.Debug("product suggested",
				zap.String("product_id", s.Product.ID.String()),
				zap.Float64("confidence", s.Confidence))
		}
		return s, nil
	})
}

// Resolve commits the selected product. An id in the input selects it
// first. Without a selection nothing is committed and the modal stays open.
func (r *CatalogResolver) Resolve(ctx context.Context, p Pending, in Input) (types.Annotation, error) {
	if !in.ProductID.IsZero() {
		if _, err := r.modal.Select(in.ProductID); err != nil {
			return types.Annotation{}, err
		}
	}

	sel := r.modal.Selection()
	if sel == nil {
		return types.Annotation{}, ErrNoSelection
	}

	return types.Annotation{
		Rect:    p.Rect,
		Kind:    types.TagCatalog,
		Product: sel,
	}, nil
}

// Close hides the modal and clears the selection
func (r *CatalogResolver) Close() {
	r.modal.hide()
}
