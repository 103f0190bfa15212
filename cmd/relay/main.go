package main

import (
	"chat-relay/domain/chat"
	grpcserver "chat-relay/infrastructure/grpc/server"
	httpserver "chat-relay/infrastructure/http/server"
	"chat-relay/infrastructure/storage"
	"chat-relay/internal"
	"chat-relay/observability"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
)

// Exit codes reported to the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until a signal or a server failure.
// Returning instead of exiting lets the deferred closes run.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Storage (BadgerDB + Bluge)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	if config.DebugPort > 0 && logger.Enabled(ctx, slog.LevelDebug) {
		endpoint := "/inspect"
		logger.Info("Debug Badger inspector available",
			"url", fmt.Sprintf("http://localhost:%d%s?prefix=%s", config.DebugPort, endpoint, storage.MessageKeyPrefix))
		database.StartDebugServer(db, config.DebugPort, endpoint, MessageMapper)
	}

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	messageRepository := storage.NewMessageRepository(db, logger,
		lo.ToPtr(config.LimitMessages), lo.ToPtr(config.MaxLimitMessages))
	defer func() {
		if err := messageRepository.Close(); err != nil {
			logger.Warn("Releasing message sequence failed", "error", err)
		}
	}()
	messageIndex := storage.NewMessageIndex(blugeWriter, logger)

	// 3. Relay core
	metrics := observability.NewMetrics()
	registry := runtime.NewRegistry()
	metrics.WatchRegistry(registry)
	broadcaster := runtime.NewBroadcaster(logger, registry, config.DeliveryTimeout).WithMetrics(metrics)
	toIndex := make(chan chat.Message, config.IndexBufferSize)
	metrics.WatchQueue("index", toIndex)
	chatService := services.NewChatService(logger, messageRepository, messageIndex, registry, broadcaster, toIndex).
		WithMetrics(metrics)

	// 4. Background workers
	supervisor := workers.NewSupervisor(logger, config.RestartInterval)
	supervisor.Add(
		workers.NewIndexWorker(logger, messageIndex, toIndex),
		workers.NewStatsWorker(logger, registry, config.StatsInterval),
		workers.NewChannelCapacityWorker(logger, []workers.NamedChannel{
			{Name: "index", Channel: toIndex},
		}, config.StatsInterval),
	)
	supervised := make(chan struct{})
	go func() {
		defer close(supervised)
		supervisor.Run(ctx)
	}()

	errChan := make(chan error, 2)

	// 5. Health (gRPC)
	healthAddress := fmt.Sprintf("%s:%d", config.Host, config.HealthPort)
	healthListener, err := net.Listen("tcp", healthAddress)
	if err != nil {
		supervisor.Stop()
		<-supervised
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", healthAddress, err)
	}
	healthServer := grpcserver.NewHealthServer(logger)
	go func() {
		if err := healthServer.Serve(healthListener); err != nil {
			errChan <- fmt.Errorf("health server error: %w", err)
		}
	}()

	// 6. Front door (HTTP + websocket)
	chatHandler := httpserver.NewChatHandler(logger, chatService, httpserver.ChatHandlerConfig{
		BufferSize:   config.ConnectionBufferSize,
		WriteTimeout: config.WriteTimeout,
		PingInterval: config.PingInterval,
		ReadLimit:    int64(config.ReadLimit),
	})
	historyHandler := httpserver.NewHistoryHandler(logger, chatService)
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	srv := &http.Server{
		Addr:              address,
		Handler:           httpserver.NewRouter(logger, chatHandler, historyHandler, metrics.Handler()),
		ReadHeaderTimeout: 15 * time.Second,
	}
	go func() {
		logger.Info("Starting relay", "address", address, "at", time.Now().UTC())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()
	healthServer.SetServing(true)

	// 7. Wait for Stop or Error
	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		code = exitRuntime
	}

	// 8. Graceful shutdown, reverse start order
	logger.Info("Shutting down gracefully...")
	healthServer.SetServing(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", "error", err)
	}
	healthServer.Stop()
	supervisor.Stop()
	<-supervised
	logger.Info("Program stopped cleanly")

	return code, runErr
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath).
		WithSyncWrites(config.SyncWrites).
		WithLogger(storage.NewBadgerLogger(logger))

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG)
	} else {
		options = options.WithLoggingLevel(badger.WARNING)
	}
	return options
}

// MessageMapper renders a stored message in the Badger inspector.
func MessageMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)

	msg, err := storage.DecodeMessage(val)
	if err != nil {
		row.Detail = "Error: unmarshal failed"
		return row
	}
	row.Type = "MESSAGE"
	row.Detail = fmt.Sprintf("%s -> %s: %s", msg.Sender, msg.Receiver, msg.Text)
	return row
}
