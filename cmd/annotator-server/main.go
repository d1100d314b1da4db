package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	photoannotator "github.com/menta2k/photo-annotator"
	"github.com/menta2k/photo-annotator/internal/config"
	"github.com/menta2k/photo-annotator/internal/server"
	"github.com/menta2k/photo-annotator/internal/utils"
)

var (
	Version   = photoannotator.Version
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := utils.InitLogger(cfg.Server.Mode); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer utils.Sync()

	utils.Logger.Info("starting photo annotator server",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.String("tag_mode", cfg.Surface.TagMode))

	ctx := context.Background()
	annotator, cleanup, err := server.BuildAnnotator(ctx, cfg, utils.Logger)
	if err != nil {
		utils.Logger.Fatal("failed to build annotator", zap.Error(err))
	}
	defer cleanup()

	registry := server.NewRegistry(annotator)
	defer registry.CloseAll()

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go registry.Run(janitorCtx, cfg.Server.SessionTTL, time.Minute)

	handler := server.NewSessionHandler(registry, annotator.Options(), cfg.Upload.MaxSize, utils.Logger)
	router := server.NewRouter(cfg, handler, server.BuildInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}, utils.Logger)
	srv := server.New(cfg, router)

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		utils.Logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Logger.Error("server stopped", zap.Error(err))
			done <- syscall.SIGTERM
		}
	}()

	<-done
	utils.Logger.Info("shutting down")
	stopJanitor()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Logger.Error("server shutdown error", zap.Error(err))
	}
}
