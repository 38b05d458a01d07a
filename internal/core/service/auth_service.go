package service

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/99minutos/direct-messaging/internal/core/domain"
	"github.com/99minutos/direct-messaging/internal/core/ports"
)

const defaultTokenTTL = 30 * 24 * time.Hour

// AuthService implements registration and login.
type AuthService struct {
	repo      ports.UserRepository
	jwtSecret []byte
	tokenTTL  time.Duration
	now       func() time.Time
}

func NewAuthService(repo ports.UserRepository, jwtSecret string, tokenTTL time.Duration) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	return &AuthService{repo: repo, jwtSecret: []byte(jwtSecret), tokenTTL: tokenTTL, now: time.Now}
}

// Register creates an account and returns a token for it, so a new user can
// open a realtime connection straight away.
func (s *AuthService) Register(ctx context.Context, username, password string) (string, *domain.User, error) {
	if username == "" || password == "" {
		return "", nil, domain.ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, err
	}

	user := &domain.User{
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}

	created, err := s.repo.Create(ctx, user)
	if err != nil {
		return "", nil, err
	}

	token, err := signToken(s.jwtSecret, created, s.tokenTTL, s.now())
	if err != nil {
		return "", nil, err
	}
	return token, created, nil
}

// Login checks the password and returns a fresh token. Unknown usernames and
// wrong passwords are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, *domain.User, error) {
	if username == "" || password == "" {
		return "", nil, domain.ErrInvalidCredentials
	}

	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return "", nil, domain.ErrInvalidCredentials
		}
		return "", nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", nil, domain.ErrInvalidCredentials
	}

	token, err := signToken(s.jwtSecret, user, s.tokenTTL, s.now())
	if err != nil {
		return "", nil, err
	}

	return token, user, nil
}
