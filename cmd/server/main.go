// Package main is the entry point for the Book Digest server.
//
// MAIN PACKAGE IN GO:
// Every Go program starts execution in the main() function of the "main" package.
// The main package should be kept minimal. Its job is to:
// 1. Read configuration (environment variables and an optional YAML file)
// 2. Create process-wide dependencies (logger, tracer provider)
// 3. Start the application and stop it on SIGINT/SIGTERM
//
// All actual logic lives in imported packages (internal/server, internal/handler, etc.).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sakif/bookdigest/internal/config"
	"github.com/sakif/bookdigest/internal/health"
	"github.com/sakif/bookdigest/internal/server"
	"github.com/sakif/bookdigest/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// === 1. READ CONFIGURATION ===
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// === 2. SET UP LOGGING ===
	// Text at debug level in dev, JSON at info level everywhere else.
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	// === 3. STOP ON SIGNALS ===
	// The context is cancelled on Ctrl+C or SIGTERM, which starts the
	// graceful shutdown in server.Start.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// === 4. TRACING ===
	// A no-op unless OTEL_EXPORTER_OTLP_ENDPOINT is set.
	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, health.Version)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("flushing traces", slog.String("error", err.Error()))
		}
	}()

	// === 5. CREATE AND START THE SERVER ===
	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	// Start() blocks until the server is shut down
	if err := srv.Start(ctx); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		return err
	}
	return nil
}
