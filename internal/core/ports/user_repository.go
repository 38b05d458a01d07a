package ports

import (
	"context"

	"github.com/99minutos/direct-messaging/internal/core/domain"
)

// UserRepository defines the interface for the user directory.
// Usernames are unique; Create returns domain.ErrUserExists on conflict.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	// ListExcept returns every user except the one with the given id,
	// ordered by username.
	ListExcept(ctx context.Context, id string) ([]*domain.User, error)
}
