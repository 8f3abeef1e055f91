package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgnsrekt/storyreel/internal/api"
	"github.com/dgnsrekt/storyreel/internal/config"
	"github.com/dgnsrekt/storyreel/internal/encoder"
	"github.com/dgnsrekt/storyreel/internal/logging"
	"github.com/dgnsrekt/storyreel/internal/media"
	"github.com/dgnsrekt/storyreel/internal/queue"
)

// idleTimeout is how long the queue waits without work before sweeping.
const idleTimeout = time.Minute

func main() {
	// Load configuration from .env and the environment
	cfg, err := config.Load(".env")
	if err != nil {
		// Use stderr before logger is initialized
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Initialize structured logger
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting encoderd", "version", "0.1.0")

	logger.Info("configuration loaded",
		"log_level", cfg.LogLevel,
		"log_format", cfg.LogFormat,
		"http_port", cfg.HTTPPort,
		"ffmpeg_path", cfg.FFmpegPath,
		"temp_dir", cfg.TempDir,
		"cleanup_delay", cfg.CleanupDelay,
		"sweep_schedule", cfg.SweepSchedule,
		"sweep_max_age", cfg.SweepMaxAge,
		"queue_capacity", cfg.QueueCapacity,
		"job_ttl", cfg.JobTTL,
		"max_body_bytes", cfg.MaxBodyBytes,
	)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}()

	enc := encoder.New(encoder.Config{
		FFmpegPath:   cfg.FFmpegPath,
		TempDir:      cfg.TempDir,
		Width:        cfg.VideoWidth,
		Height:       cfg.VideoHeight,
		CleanupDelay: cfg.CleanupDelay,
	}, logger)

	// Remove directories left behind by an earlier run
	sweeper, err := encoder.NewSweeper(enc, cfg.SweepSchedule, cfg.SweepMaxAge, logger)
	if err != nil {
		logger.Error("failed to create sweeper", "error", err)
		os.Exit(1)
	}
	sweeper.RunNow()
	sweeper.Start()

	// Create and start the render queue
	renderQueue := queue.NewQueue(cfg.QueueCapacity, idleTimeout, logger)
	renderQueue.SetHandler(func(ctx context.Context, job *queue.RenderJob) (*media.Blob, error) {
		return enc.Encode(ctx, job.Input)
	})

	// Sweep while idle so bursts of jobs do not pile up directories
	renderQueue.SetIdleCallback(sweeper.RunNow)

	renderQueue.SetShutdownCallback(func() {
		logger.Info("shutdown: removing pending job directories", "pending", enc.Pending())
		enc.Close()
	})

	renderQueue.Start()

	// Create and start HTTP server
	server := api.New(cfg, logger, renderQueue)

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Stopping the queue first fails waiting requests so handlers return
	renderQueue.Stop()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	sweeper.Stop(shutdownCtx)
	logger.Info("shutdown complete")
}
