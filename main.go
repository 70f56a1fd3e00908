// Package main our entry point.
package main

import (
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

	"github.com/mama165/sdk-go/logs"
	"github.com/microcosm-cc/bluemonday"

	"github.com/johndosdos/wschat/internal/chat"
	"github.com/johndosdos/wschat/internal/config"
	"github.com/johndosdos/wschat/internal/database"
	"github.com/johndosdos/wschat/internal/handler"
	ws "github.com/johndosdos/wschat/internal/websocket"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "wschat: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	var cfg config.Server
	if err := config.Load(&cfg); err != nil {
		return exitConfig, err
	}

	log := logs.GetLoggerFromString(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Initializing database connection...", "driver", cfg.DBDriver)
	store, err := database.Open(ctx, database.Options{
		Dialect:      database.Dialect(cfg.DBDriver),
		URL:          cfg.DBURL,
		DefaultLimit: cfg.HistoryLimit,
		Logger:       log,
	})
	if err != nil {
		return exitRuntime, fmt.Errorf("could not open the message store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("failed to close the message store", "error", err)
		}
	}()

	opts := []chat.Option{chat.WithWriteTimeout(cfg.WriteTimeout)}
	if cfg.SanitizeHTML {
		opts = append(opts, chat.WithSanitizer(bluemonday.StrictPolicy()))
	}
	router := chat.NewRouter(log, chat.NewRegistry(), store, opts...)

	listener, err := net.Listen("tcp", cfg.Address())
	if err != nil {
		return exitRuntime, fmt.Errorf("could not listen on %s: %w", cfg.Address(), err)
	}

	// Sessions run on hijacked connections that Shutdown does not track, so
	// every request context derives from ctx and ends with it.
	server := &http.Server{
		Handler: handler.Routes(log, router, store, handler.Options{
			Limits: handler.Limits{Default: cfg.HistoryLimit, Max: cfg.MaxQueryLimit},
			Socket: ws.Options{
				ReadLimit:      cfg.MaxFrameBytes,
				OriginPatterns: cfg.Origins(),
				PingInterval:   cfg.PingInterval,
			},
		}),
		BaseContext:       func(net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", "address", listener.Addr().String())
		serveErr <- server.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return exitRuntime, fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		log.Info("Shutdown signal received; shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", "error", err)
	}
	if err := router.Drain(shutdownCtx); err != nil {
		log.Warn("chat sessions still running at shutdown", "error", err, slog.Int("online", router.Registry().Len()))
	}

	log.Info("Server stopped")
	return exitOK, nil
}
