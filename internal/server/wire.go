package server

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	photoannotator "github.com/menta2k/photo-annotator"
	"github.com/menta2k/photo-annotator/internal/config"
	"github.com/menta2k/photo-annotator/pkg/catalog"
	"github.com/menta2k/photo-annotator/pkg/client"
	"github.com/menta2k/photo-annotator/pkg/llamacpp"
	"github.com/menta2k/photo-annotator/pkg/loader"
	"github.com/menta2k/photo-annotator/pkg/ollama"
	"github.com/menta2k/photo-annotator/pkg/render"
	"github.com/menta2k/photo-annotator/pkg/tagging"
)

// RenderConfig maps the surface section onto the renderer settings
func RenderConfig(cfg *config.Config) render.Config {
	rc := render.DefaultConfig()
	rc.Width = cfg.Surface.Width
	rc.Height = cfg.Surface.Height
	rc.Stroke = cfg.Surface.Stroke
	rc.ShowLabels = cfg.Surface.ShowLabels
	return rc
}

// NewVisionClient builds the configured vision backend
func NewVisionClient(cfg config.VisionConfig) (client.VisionClient, error) {
	switch cfg.Backend {
	case "ollama":
		return ollama.NewClientWithTimeout(cfg.URL, cfg.Timeout)
	case "llamacpp":
		opts := llamacpp.DefaultOptions()
		opts.Timeout = cfg.Timeout
		return llamacpp.NewClientWithOptions(cfg.URL, opts)
	default:
		return nil, fmt.Errorf("unknown vision backend: %s", cfg.Backend)
	}
}

// BuildAnnotator assembles an Annotator from configuration. The returned
// cleanup releases the redis connection, if one was opened.
func BuildAnnotator(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*photoannotator.Annotator, func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cleanup := func() {}

	opts := photoannotator.Options{
		Render:  RenderConfig(cfg),
		TagKind: cfg.TagKind(),
		Loader: loader.NewWithConfig(loader.Config{
			MaxBytes:     cfg.Upload.MaxSize,
			FetchTimeout: 30 * time.Second,
		}),
		Upload: photoannotator.UploadOptions{
			Endpoint: cfg.Upload.Endpoint,
			Timeout:  cfg.Upload.Timeout,
		},
		Logger: logger,
	}

	var fetcher catalog.Fetcher = catalog.NewClient(cfg.Catalog.Endpoint, cfg.Catalog.Timeout, logger)
	if cfg.Redis.Enabled {
		cache := catalog.NewRedisCache(catalog.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		})
		if err := cache.Ping(ctx); err != nil {
			logger.Warn("redis connection failed, product cache disabled", zap.Error(err))
			_ = cache.Close()
		} else {
			logger.Info("redis connected successfully", zap.String("addr", cfg.Redis.Addr))
			fetcher = catalog.NewCachedClient(fetcher, cache, cfg.Catalog.Endpoint, logger)
			cleanup = func() { _ = cache.Close() }
		}
	}
	opts.Catalog = fetcher

	if cfg.Vision.Enabled {
		vc, err := NewVisionClient(cfg.Vision)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to create vision client: %w", err)
		}
		opts.Suggester = tagging.NewSuggester(vc, tagging.SuggesterConfig{
			Model:   cfg.Vision.Model,
			Timeout: cfg.Vision.Timeout,
		})
		logger.Info("product suggestions enabled",
			zap.String("backend", cfg.Vision.Backend),
			zap.String("model", cfg.Vision.Model))
	}

	return photoannotator.New(opts), cleanup, nil
}
