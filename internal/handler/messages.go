package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/samber/lo"

	"github.com/johndosdos/wschat/internal/model"
)

// HistoryReader is the read side of the message log.
type HistoryReader interface {
	RecentHistory(ctx context.Context, limit int) ([]model.MessageRecord, error)
	Search(ctx context.Context, keyword string, limit int) ([]model.MessageRecord, error)
}

// Limits bound the number of records a single query may return.
type Limits struct {
	Default int
	Max     int
}

func (l Limits) parse(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return l.Default
	}
	if l.Max > 0 && n > l.Max {
		return l.Max
	}
	return n
}

// MessageView is the JSON form of a stored message. Line is the message as
// it was rendered to chat clients.
type MessageView struct {
	ID        int64   `json:"id"`
	From      string  `json:"from"`
	To        *string `json:"to,omitempty"`
	Content   string  `json:"content"`
	Timestamp string  `json:"timestamp"`
	Private   bool    `json:"private"`
	Line      string  `json:"line"`
}

func toViews(records []model.MessageRecord) []MessageView {
	return lo.Map(records, func(rec model.MessageRecord, _ int) MessageView {
		return MessageView{
			ID:        rec.ID,
			From:      rec.FromUser,
			To:        rec.ToUser,
			Content:   rec.Content,
			Timestamp: rec.Timestamp,
			Private:   rec.IsPrivate,
			Line:      model.RenderRecord(rec),
		}
	})
}

// ServeHistory returns the most recent messages, newest first.
func ServeHistory(log *slog.Logger, store HistoryReader, limits Limits) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		records, err := store.RecentHistory(ctx, limits.parse(r))
		if err != nil {
			log.ErrorContext(ctx, "failed to load history", "error", err)
			http.Error(w, "Database error.", http.StatusInternalServerError)
			return
		}

		writeJSON(ctx, log, w, toViews(records))
	}
}

// ServeSearch returns messages containing the q parameter, newest first.
func ServeSearch(log *slog.Logger, store HistoryReader, limits Limits) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		keyword := r.URL.Query().Get("q")
		if keyword == "" {
			http.Error(w, "Missing search keyword.", http.StatusBadRequest)
			return
		}

		records, err := store.Search(ctx, keyword, limits.parse(r))
		if err != nil {
			log.ErrorContext(ctx, "failed to search messages", "error", err, "keyword", keyword)
			http.Error(w, "Database error.", http.StatusInternalServerError)
			return
		}

		writeJSON(ctx, log, w, toViews(records))
	}
}

func writeJSON(ctx context.Context, log *slog.Logger, w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WarnContext(ctx, "failed to write response", "error", err)
	}
}
