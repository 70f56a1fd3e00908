// Package handler exposes the chat service over HTTP: the websocket endpoint
// and the history and search queries.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/johndosdos/wschat/internal"
	"github.com/johndosdos/wschat/internal/chat"
	ws "github.com/johndosdos/wschat/internal/websocket"
)

// Options configure Routes.
type Options struct {
	Limits Limits
	Socket ws.Options
}

// Routes wires every endpoint of the server.
func Routes(log *slog.Logger, router *chat.Router, store HistoryReader, opts Options) http.Handler {
	wsHandler := ServeWs(log, router, opts.Socket)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(internal.Middleware(log))

	r.Get("/", ServeRoot(wsHandler))
	r.Get("/ws", wsHandler)
	r.Get("/healthz", ServeHealth())
	r.Get("/history", ServeHistory(log, store, opts.Limits))
	r.Get("/search", ServeSearch(log, store, opts.Limits))

	return r
}
