package loader

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/photo-annotator/pkg/task"
)

// ErrTooLarge is returned when a file exceeds Config.MaxBytes
var ErrTooLarge = errors.New("image file too large")

// Config holds configuration for the image loader
type Config struct {
	// MaxBytes caps the size of a read file; 0 disables the check
	MaxBytes int64
	// FetchTimeout bounds LoadURL downloads
	FetchTimeout time.Duration
}

// Loader turns user-selected files into decoded, displayable sources
type Loader struct {
	config Config
}

// New creates a Loader with default configuration
func New() *Loader {
	return &Loader{config: Config{FetchTimeout: 30 * time.Second}}
}

// NewWithConfig creates a Loader with custom configuration
func NewWithConfig(config Config) *Loader {
	return &Loader{config: config}
}

// Source is a selected image: the raw bytes that get uploaded and the
// decoded bitmap that gets drawn
type Source struct {
	Filename    string
	ContentType string
	Data        []byte
	Image       image.Image
}

// DataURI returns the image as a data: URI
func (s *Source) DataURI() string {
	return "data:" + s.ContentType + ";base64," + base64.StdEncoding.EncodeToString(s.Data)
}

// Info returns basic information about the decoded image
func (s *Source) Info() Info {
	b := s.Image.Bounds()
	return Info{
		Filename:    s.Filename,
		ContentType: s.ContentType,
		Width:       b.Dx(),
		Height:      b.Dy(),
		Size:        len(s.Data),
	}
}

// Info contains basic source metadata
type Info struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Size        int    `json:"size"`
}

// Load reads and decodes an image from r. No type validation happens up
// front; an unreadable file surfaces as a decode error.
func (l *Loader) Load(ctx context.Context, filename string, r io.Reader) (*Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if l.config.MaxBytes > 0 {
		r = io.LimitReader(r, l.config.MaxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}
	if l.config.MaxBytes > 0 && int64(len(data)) > l.config.MaxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, l.config.MaxBytes)
	}

	img, err := decodeImageFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filename, err)
	}

	return &Source{
		Filename:    filepath.Base(filename),
		ContentType: detectContentType(filename, data),
		Data:        data,
		Image:       img,
	}, nil
}

// LoadAsync starts Load in the background
func (l *Loader) LoadAsync(ctx context.Context, filename string, r io.Reader) *task.Task[*Source] {
	return task.Go(ctx, func(ctx context.Context) (*Source, error) {
		return l.Load(ctx, filename, r)
	})
}

// LoadFile loads an image from a file path
func (l *Loader) LoadFile(ctx context.Context, path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}
	defer f.Close()
	return l.Load(ctx, path, f)
}

// LoadURL downloads and loads an image from a URL
func (l *Loader) LoadURL(ctx context.Context, imageURL string) (*Source, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	client := &http.Client{Timeout: l.config.FetchTimeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Photo-Annotator/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}

	name := filepath.Base(parsedURL.Path)
	if name == "." || name == "/" {
		name = "download"
	}
	return l.Load(ctx, name, resp.Body)
}

// LoadSmart loads from either a file path or an http(s) URL
func (l *Loader) LoadSmart(ctx context.Context, source string) (*Source, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return l.LoadURL(ctx, source)
	}
	return l.LoadFile(ctx, source)
}

// decodeImageFromBytes decodes an image from byte data with WebP support
func decodeImageFromBytes(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, errors.New("empty file")
	}

	if img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true)); err == nil {
		return img, nil
	}

	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	return nil, errors.New("image: unknown or unsupported format")
}

func detectContentType(filename string, data []byte) string {
	ct := http.DetectContentType(data)
	if strings.HasPrefix(ct, "image/") {
		return ct
	}
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), ".")) {
	case "webp":
		return "image/webp"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	}
	return ct
}
