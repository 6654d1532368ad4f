package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"occupancy-worker-go/internal/api"
	"occupancy-worker-go/internal/config"
	"occupancy-worker-go/internal/metrics"
	"occupancy-worker-go/internal/services/camera"
	"occupancy-worker-go/internal/services/controller"
	"occupancy-worker-go/internal/services/counting"
	"occupancy-worker-go/internal/services/detection"
	"occupancy-worker-go/internal/services/history"
	"occupancy-worker-go/internal/services/zonestore"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load configuration
	cfg := config.Load()

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("Invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("worker_id", cfg.WorkerID).
		Str("version", cfg.Version).
		Int("device", cfg.CameraIndex).
		Strs("canonical_zones", cfg.CanonicalZones).
		Bool("single_shot", cfg.SingleShot).
		Msg("Starting occupancy worker")

	m := metrics.New()

	// A missing detector has no fallback value; this is the one fatal
	// startup condition. Everything after degrades gracefully.
	detector, err := detection.NewService(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load detection model")
	}
	defer detector.Close()

	hist := history.NewService(cfg.HistoryDBPath)
	defer hist.Close()

	counter := counting.NewService(
		cfg,
		camera.NewArbiter(cfg),
		detector,
		zonestore.NewService(),
		hist,
		m,
	)

	if cfg.SingleShot {
		runSingleShot(cfg, counter)
		return
	}

	manager := controller.NewManager(
		controller.Options{
			URL:           cfg.ControllerURL,
			RetryInterval: cfg.ReconnectInterval,
			Alphabet:      cfg.CanonicalZones,
		},
		newTransport(cfg),
		counter,
		m,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	managerDone := make(chan struct{})
	go func() {
		defer close(managerDone)
		manager.Run(ctx)
	}()

	server := api.NewServer(cfg, counter, manager, hist, m)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("API server failed")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Inspection API listening")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("API server forced to shutdown")
	}

	select {
	case <-managerDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("Connection manager did not stop in time")
	}

	log.Info().Msg("Shutdown complete")
}

// runSingleShot performs exactly one count-and-persist cycle without
// opening the remote connection, for local verification.
func runSingleShot(cfg *config.Config, counter *counting.Service) {
	log.Info().Msg("Single-shot mode: running one counting operation")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.CaptureTimeout+cfg.DetectTimeout)
	defer cancel()

	counts := counter.CountNow(ctx)

	log.Info().
		Interface("counts", counts).
		Ints("results", counts.Ordered(cfg.CanonicalZones)).
		Str("result_image", cfg.ResultImagePath).
		Msg("Single-shot complete")
}

func newTransport(cfg *config.Config) controller.Transport {
	switch cfg.ControllerTransport {
	case "nats":
		return controller.NewNATSTransport(cfg.WorkerID, cfg.RequestEvent, cfg.AnswerEvent, cfg.ConnectTimeout)
	case "websocket":
		return controller.NewWebSocketTransport(cfg.RequestEvent, cfg.AnswerEvent, cfg.ConnectTimeout)
	default:
		log.Warn().Str("transport", cfg.ControllerTransport).Msg("Unknown controller transport, using websocket")
		return controller.NewWebSocketTransport(cfg.RequestEvent, cfg.AnswerEvent, cfg.ConnectTimeout)
	}
}
