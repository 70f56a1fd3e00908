//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_message_store.go -package=mocks
package chat

import (
	"context"

	"github.com/johndosdos/wschat/internal/model"
)

// MessageStore persists public and private messages.
type MessageStore interface {
	Append(ctx context.Context, rec model.MessageRecord) (int64, error)
}
