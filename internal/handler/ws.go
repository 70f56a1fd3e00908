package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/johndosdos/wschat/internal/chat"
	ws "github.com/johndosdos/wschat/internal/websocket"
)

// ServeWs handles the client's websocket connection upgrade and runs the chat
// session on it until the client leaves.
func ServeWs(log *slog.Logger, router *chat.Router, opts ws.Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		conn, err := ws.Accept(w, r, opts)
		if err != nil {
			log.WarnContext(ctx, "websocket upgrade failed",
				"error", err,
				"remote_addr", r.RemoteAddr)
			return
		}

		keepaliveCtx, stopKeepalive := context.WithCancel(ctx)
		defer stopKeepalive()
		if opts.PingInterval > 0 {
			go func() {
				if err := conn.Keepalive(keepaliveCtx, opts.PingInterval); err != nil {
					log.WarnContext(ctx, "keepalive failed", "error", err, "remote_addr", r.RemoteAddr)
				}
			}()
		}

		// We block on Serve because the request context is canceled as soon
		// as the handler returns.
		err = router.Serve(ctx, conn)
		switch {
		case errors.Is(err, chat.ErrProtocol):
			log.InfoContext(ctx, "rejected connection",
				"error", err,
				"remote_addr", r.RemoteAddr)
			_ = conn.CloseWith(websocket.StatusPolicyViolation, "first frame must be a username")
			return
		case err != nil && ctx.Err() == nil:
			log.WarnContext(ctx, "session ended with error",
				"error", err,
				"remote_addr", r.RemoteAddr)
		}
		_ = conn.Close()
	}
}
