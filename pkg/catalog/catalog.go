package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/menta2k/photo-annotator/pkg/task"
	"github.com/menta2k/photo-annotator/pkg/types"
)

// Fetcher lists the taggable products
type Fetcher interface {
	Fetch(ctx context.Context) ([]types.ProductRef, error)
}

// Client fetches the product list from the remote catalog
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a catalog client for endpoint
func NewClient(endpoint string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Fetch performs GET <endpoint> and maps the [{id, name}] answer to
// product references
func (c *Client) Fetch(ctx context.Context) ([]types.ProductRef, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch products: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch products: status %d", resp.StatusCode)
	}

	var products []types.CatalogProduct
	if err := json.NewDecoder(resp.Body).Decode(&products); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}

	refs := make([]types.ProductRef, 0, len(products))
	for _, p := range products {
		refs = append(refs, p.ToRef())
	}

	c.logger.Debug("products fetched",
		zap.String("endpoint", c.endpoint),
		zap.Int("count", len(refs)))
	return refs, nil
}

// FetchAsync starts one fetch in the background. A failure is logged and
// resolves to an empty list, so the task itself never fails.
func FetchAsync(ctx context.Context, f Fetcher, logger *zap.Logger) *task.Task[[]types.ProductRef] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return task.Go(ctx, func(ctx context.Context) ([]types.ProductRef, error) {
		products, err := f.Fetch(ctx)
		if err != nil {
			logger.Error("failed to fetch products", zap.Error(err))
			return []types.ProductRef{}, nil
		}
		return products, nil
	})
}
