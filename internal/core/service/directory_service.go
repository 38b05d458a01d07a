package service

import (
	"context"
	"fmt"

	"github.com/99minutos/direct-messaging/internal/core/domain"
	"github.com/99minutos/direct-messaging/internal/core/ports"
)

const maxHistory = 1000

type directoryService struct {
	users    ports.UserRepository
	messages ports.MessageStore
}

// NewDirectoryService returns a DirectoryService implementation.
func NewDirectoryService(users ports.UserRepository, messages ports.MessageStore) ports.DirectoryService {
	return &directoryService{users: users, messages: messages}
}

func (s *directoryService) Me(ctx context.Context, identity domain.Identity) (*domain.User, error) {
	return s.users.FindByID(ctx, identity.ID)
}

func (s *directoryService) User(ctx context.Context, id string) (*domain.User, error) {
	return s.users.FindByID(ctx, id)
}

// Contacts lists everyone the caller can message.
func (s *directoryService) Contacts(ctx context.Context, identity domain.Identity) ([]*domain.User, error) {
	users, err := s.users.ListExcept(ctx, identity.ID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return users, nil
}

// History returns the caller's conversation log, oldest first. The limit is
// capped at maxHistory.
func (s *directoryService) History(ctx context.Context, identity domain.Identity, limit int) ([]*domain.Message, error) {
	if limit <= 0 || limit > maxHistory {
		limit = maxHistory
	}
	msgs, err := s.messages.History(ctx, identity.DisplayName, limit)
	if err != nil {
		return nil, fmt.Errorf("message history: %w", err)
	}
	return msgs, nil
}
