package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/visiona/printcam/internal/capture"
	"github.com/visiona/printcam/internal/config"
	"github.com/visiona/printcam/internal/framestore"
	"github.com/visiona/printcam/internal/grabber"
	"github.com/visiona/printcam/internal/push"
	"github.com/visiona/printcam/internal/server"
)

func main() {
	configPath := flag.String("config", "", "Path to optional YAML configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := cfg.Level()
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting printcam service",
		"device", cfg.Camera.Device,
		"resolution", fmt.Sprintf("%dx%d", cfg.Camera.Width, cfg.Camera.Height),
		"target_fps", cfg.Camera.FPS,
		"http_addr", cfg.HTTP.Addr,
		"push_enabled", cfg.Push.Enabled(),
	)

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	store := framestore.New()

	grab := grabber.New(grabber.Config{
		Capture: capture.Config{
			Device:   cfg.Camera.Device,
			Width:    cfg.Camera.Width,
			Height:   cfg.Camera.Height,
			FPS:      cfg.Camera.FPS,
			Pipeline: cfg.Camera.Pipeline,
		},
		JPEGQuality: cfg.Camera.JPEGQuality,
	}, store)

	pusher := push.New(push.Config{
		URL:         cfg.Push.URL,
		Token:       cfg.Push.Token,
		Fingerprint: cfg.Push.Fingerprint,
		Interval:    cfg.Push.Interval(),
	}, store)

	srv := server.New(server.Config{
		Addr: cfg.HTTP.Addr,
		FPS:  cfg.Camera.FPS,
	}, store, grab, pusher)

	// Inability to bind the port is the only fatal runtime condition
	if err := srv.Start(ctx); err != nil {
		slog.Error("failed to start http server", "error", err)
		os.Exit(1)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		grab.Run(ctx)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		pusher.Run(ctx)
	}()

	sig := <-sigChan
	slog.Info("received shutdown signal", "signal", sig)
	cancel()

	shutdownTimeout := cfg.ShutdownTimeout()
	slog.Info("shutting down gracefully", "timeout", shutdownTimeout)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}

	// Wait for the background loops within the grace period
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("printcam service stopped successfully")
	case <-time.After(shutdownTimeout):
		slog.Warn("shutdown grace period exceeded, exiting anyway")
	}
}
