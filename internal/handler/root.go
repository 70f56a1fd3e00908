package handler

import (
	"fmt"
	"net/http"
	"strings"
)

// ServeRoot accepts websocket upgrades on "/" for clients that dial the bare
// server address, and answers plain requests with a health line.
func ServeRoot(wsHandler http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			wsHandler.ServeHTTP(w, r)
			return
		}
		ServeHealth()(w, r)
	}
}

func ServeHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = fmt.Fprint(w, "wschat server is running")
	}
}
