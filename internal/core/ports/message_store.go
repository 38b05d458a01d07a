package ports

import (
	"context"

	"github.com/99minutos/direct-messaging/internal/core/domain"
)

// MessageStore is the durable message log.
type MessageStore interface {
	// Append persists msg and returns the identifier assigned by the store.
	// A nil error means the message survives a process restart.
	Append(ctx context.Context, msg *domain.Message) (string, error)

	// History returns the most recent messages where username is sender or
	// receiver, oldest first. A limit <= 0 returns everything.
	History(ctx context.Context, username string, limit int) ([]*domain.Message, error)
}
