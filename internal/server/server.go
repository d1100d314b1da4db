// Package server exposes annotation sessions over HTTP for a thin page to
// drive: pointer events in, rendered frames and tag dialog state out.
package server

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/menta2k/photo-annotator/internal/config"
)

// BuildInfo is reported by /health and /version
type BuildInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

// NewRouter builds the gin engine with all routes
func NewRouter(cfg *config.Config, handler *SessionHandler, info BuildInfo, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(Logger(logger))
	r.Use(CORS())

	if dir := cfg.Server.StaticDir; dir != "" {
		index := filepath.Join(dir, "index.html")
		if _, err := os.Stat(index); err == nil {
			r.Static("/static", dir)
			r.StaticFile("/", index)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"version":  info.Version,
			"sessions": handler.registry.Len(),
		})
	})

	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, info)
	})

	handler.Register(r.Group("/api/v1"))
	return r
}

// New wraps the router in an http.Server with the configured timeouts
func New(cfg *config.Config, router http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}
