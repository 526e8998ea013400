// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/study-collab/internal/config"
	"github.com/capitalize-ai/study-collab/internal/events"
	"github.com/capitalize-ai/study-collab/internal/handler"
	natsclient "github.com/capitalize-ai/study-collab/internal/nats"
	"github.com/capitalize-ai/study-collab/internal/service"
	"github.com/capitalize-ai/study-collab/internal/storage"
	"github.com/capitalize-ai/study-collab/pkg/logger"
	"github.com/capitalize-ai/study-collab/pkg/tracing"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	log.Info("starting API server",
		zap.String("port", cfg.ServerPort),
		zap.String("env", cfg.Environment),
		zap.Bool("persistence", cfg.BadgerPath != ""),
		zap.Bool("nats", cfg.NATSEnabled),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, logger.ServiceName, cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	bus := events.NewBus(cfg.EventBufferSize, log)
	defer bus.Close()

	core := service.NewCore(bus, log)

	checks := make(map[string]handler.Check)
	var replayer handler.Replayer

	// Background workers start once every resource they use is open, so
	// their deferred stop runs before those resources close.
	var workers []func(context.Context)

	if cfg.BadgerPath != "" {
		repo, err := storage.Open(cfg.BadgerPath, log)
		if err != nil {
			return err
		}
		defer repo.Close()
		checks["storage"] = repo.Ping

		snap, err := repo.Load(ctx)
		if err != nil {
			return err
		}
		if err := core.Restore(snap); err != nil {
			return fmt.Errorf("failed to restore snapshot: %w", err)
		}
		log.Info("state restored",
			zap.Int("users", len(snap.Users)),
			zap.Int("conversations", len(snap.Conversations)),
		)

		snapshotter := storage.NewSnapshotter(core, repo, cfg.SnapshotInterval, log)
		workers = append(workers, snapshotter.Run)
	}

	if cfg.NATSEnabled {
		natsClient, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			return err
		}
		defer natsClient.Close()

		streamManager := natsclient.NewStreamManager(natsClient, natsclient.WithMaxBytes(cfg.NATSStreamMaxBytes))
		if err := streamManager.EnsureStream(ctx); err != nil {
			return fmt.Errorf("failed to ensure stream: %w", err)
		}
		checks["nats"] = natsClient.Ping
		replayer = streamManager

		forwarder := natsclient.NewForwarder(bus, streamManager, log)
		workers = append(workers, forwarder.Run)
	}

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, worker := range workers {
		worker := worker
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(workerCtx)
		}()
	}
	defer func() {
		stopWorkers()
		wg.Wait()
	}()

	streamsShutdown := make(chan struct{})

	router := handler.NewRouter(handler.RouterConfig{
		Core:              core,
		Bus:               bus,
		Replayer:          replayer,
		JWTSecret:         cfg.JWTSecret,
		Checks:            checks,
		AllowedOrigins:    cfg.CORSAllowedOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		GroupGap:          cfg.GroupGapThreshold,
		Heartbeat:         handler.DefaultHeartbeat,
		Shutdown:          streamsShutdown,
		Logger:            log,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}
	// Shutdown waits for active connections, so event streams must end first.
	server.RegisterOnShutdown(func() { close(streamsShutdown) })

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	// No handler publishes any more. Closing the bus lets the forwarder
	// flush what it has buffered before the workers are stopped.
	bus.Close()

	log.Info("server stopped")
	return nil
}
