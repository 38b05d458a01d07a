package ports

import (
	"context"

	"github.com/99minutos/direct-messaging/internal/core/domain"
)

type AuthService interface {
	Register(ctx context.Context, username, password string) (string, *domain.User, error)
	Login(ctx context.Context, username, password string) (string, *domain.User, error)
}

// DirectoryService serves the read side of the user directory and the
// message history.
type DirectoryService interface {
	Me(ctx context.Context, identity domain.Identity) (*domain.User, error)
	User(ctx context.Context, id string) (*domain.User, error)
	Contacts(ctx context.Context, identity domain.Identity) ([]*domain.User, error)
	History(ctx context.Context, identity domain.Identity, limit int) ([]*domain.Message, error)
}
