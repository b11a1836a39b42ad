// Twind is a digital-twin backend: it ingests questionnaire answers into
// per-user vector memories and answers free-form questions as the user.
//
// Configuration is loaded from an optional YAML file and TWIND_* environment
// variables. See internal/config for details.
//
// Usage:
//
//	# Start server with defaults
//	twind
//
//	# Configure via environment
//	TWIND_SERVER_PORT=9090 TWIND_VECTOR_URL=http://localhost:6334 twind
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/altailabs/twind/internal/chat"
	"github.com/altailabs/twind/internal/config"
	twindhttp "github.com/altailabs/twind/internal/http"
	"github.com/altailabs/twind/internal/ingest"
	"github.com/altailabs/twind/internal/llm"
	"github.com/altailabs/twind/internal/logging"
	"github.com/altailabs/twind/internal/memory"
	"github.com/altailabs/twind/internal/persona"
	"github.com/altailabs/twind/internal/questionnaire"
	"github.com/altailabs/twind/internal/summarizer"
	"github.com/altailabs/twind/internal/telemetry"
	"github.com/altailabs/twind/internal/transcribe"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  twind           Start the twind server\n")
			fmt.Fprintf(os.Stderr, "  twind version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("twind\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the twind server and blocks until the context is cancelled.
//
// Initialization order:
//  1. Load and validate configuration
//  2. Initialize logger
//  3. Create the Gemini client and fallback generator
//  4. Connect the vector memory store and the questionnaire database
//  5. Wire the ingestion pipeline, persona builder, and chat orchestrator
//  6. Start the HTTP server
//  7. Perform graceful shutdown on context cancellation
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting twind",
		zap.String("version", version),
		zap.String("vector_provider", cfg.Vector.Provider),
		zap.String("chat_model", cfg.Model.ChatModel),
	)

	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       cfg.Telemetry.Endpoint,
		Protocol:       cfg.Telemetry.Protocol,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(flushCtx); err != nil {
			logger.Warn("shutting down telemetry", zap.Error(err))
		}
	}()

	client, err := llm.NewGeminiClient(ctx, cfg.Model.APIKey, cfg.Model.EmbeddingModel)
	if err != nil {
		return fmt.Errorf("creating gemini client: %w", err)
	}
	generator := llm.NewGenerator(client, cfg.Model.ChatModel, cfg.Model.FallbackModels(), logger)

	store, err := memory.NewStore(cfg.Vector, client, logger)
	if err != nil {
		return fmt.Errorf("creating memory store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing memory store", zap.Error(err))
		}
	}()

	responses := questionnaire.NewStore(cfg.Database.Path)
	if err := responses.Connect(ctx); err != nil {
		return fmt.Errorf("connecting questionnaire database: %w", err)
	}
	defer func() {
		if err := responses.Close(); err != nil {
			logger.Warn("closing questionnaire database", zap.Error(err))
		}
	}()

	var transcriber transcribe.Transcriber
	if cfg.STT.APIKey != "" {
		transcriber = transcribe.NewElevenLabs(cfg.STT.APIKey, cfg.STT.Timeout, logger)
	}

	summaries := summarizer.New(generator, logger)
	pipeline := ingest.New(responses, summaries, store, transcriber, logger)
	builder := persona.New(pipeline, summaries, store, logger)
	orchestrator := chat.New(store, generator, logger)

	server, err := twindhttp.NewServer(pipeline, builder, orchestrator, logger, twindhttp.Config{
		Port:        cfg.Server.Port,
		DefaultTopK: cfg.Model.TopK,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}
