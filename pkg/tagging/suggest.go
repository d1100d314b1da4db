package tagging

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/menta2k/photo-annotator/pkg/client"
	"github.com/menta2k/photo-annotator/pkg/types"
)

// ErrNoSuggestion is returned when the model's answer matches no product
var ErrNoSuggestion = errors.New("no matching product suggested")

// SuggestPrompt asks the model to pick one product from the list that
// follows it
const SuggestPrompt = `You are a product recognizer for a product photo catalog.

The image is a crop of a photo showing exactly one product.
Pick the product it shows from this list (one per line, "id: name"):

%s

Return JSON only:
{"productId": "id from the list", "confidence": 0.0, "reason": "short phrase"}

If none of the products match, return {"productId": "", "confidence": 0.0, "reason": "no match"}.
JSON only. No markdown, no code fences, no comments.`

// SuggesterConfig holds configuration for product suggestions
type SuggesterConfig struct {
	Model   string
	MaxDim  int
	Quality int
	Timeout time.Duration
}

// Suggester asks a vision model which catalog product a region shows
type Suggester struct {
	client client.VisionClient
	config SuggesterConfig
}

// NewSuggester creates a suggester around a vision client
func NewSuggester(vc client.VisionClient, config SuggesterConfig) *Suggester {
	if config.MaxDim <= 0 {
		config.MaxDim = 768
	}
	if config.Quality <= 0 {
		config.Quality = 85
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	return &Suggester{client: vc, config: config}
}

// Suggest crops the pending region out of the source image and asks the
// model to match it against products
func (s *Suggester) Suggest(ctx context.Context, p Pending, products []types.ProductRef) (*types.Suggestion, error) {
	if len(products) == 0 {
		return nil, ErrNoSuggestion
	}
	region := p.ImageRegion()
	if region.Empty() {
		return nil, fmt.Errorf("empty region for suggestion")
	}

	imgB64, err := encodeRegion(p.Image, region, s.config.MaxDim, s.config.Quality)
	if err != nil {
		return nil, fmt.Errorf("failed to encode region: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	raw, err := s.client.Query(ctx, s.config.Model, buildPrompt(products), imgB64)
	if err != nil {
		return nil, fmt.Errorf("vision query failed: %w", err)
	}
	return parseSuggestion(raw, products)
}

func buildPrompt(products []types.ProductRef) string {
	var b strings.Builder
	for _, p := range products {
		fmt.Fprintf(&b, "%s: %s\n", p.ID, p.Label)
	}
	return fmt.Sprintf(SuggestPrompt, strings.TrimRight(b.String(), "\n"))
}

// encodeRegion crops img to region, shrinks it to maxDim on the long side
// and returns it as base64 JPEG
func encodeRegion(img image.Image, region image.Rectangle, maxDim, quality int) (string, error) {
	crop := imaging.Crop(img, region)
	if w, h := crop.Bounds().Dx(), crop.Bounds().Dy(); w > maxDim || h > maxDim {
		if w >= h {
			crop = imaging.Resize(crop, maxDim, 0, imaging.Lanczos)
		} else {
			crop = imaging.Resize(crop, 0, maxDim, imaging.Lanczos)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, crop, &jpeg.Options{Quality: quality}); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func parseSuggestion(raw string, products []types.ProductRef) (*types.Suggestion, error) {
	var answer struct {
		ProductID  types.ProductID `json:"productId"`
		Confidence float64         `json:"confidence"`
		Reason     string          `json:"reason"`
	}
	if err := json.Unmarshal([]byte(client.SanitizeJSON(raw)), &answer); err != nil {
		return nil, fmt.Errorf("failed to parse model response: %w", err)
	}
	if answer.ProductID.String() == "" {
		return nil, ErrNoSuggestion
	}

	// models sometimes answer with the name instead of the id
	for _, p := range products {
		if p.ID.Matches(answer.ProductID) || strings.EqualFold(p.Label, answer.ProductID.String()) {
			return &types.Suggestion{
				Product:    p,
				Confidence: clamp(answer.Confidence, 0, 1),
				Reason:     answer.Reason,
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoSuggestion, answer.ProductID)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
