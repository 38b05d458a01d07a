package badgerdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/99minutos/direct-messaging/internal/core/domain"
)

const (
	userPrefix     = "user:"
	usernamePrefix = "username:"
)

// UserRepository implements ports.UserRepository on badger. Users live under
// "user:{id}"; "username:{name}" holds the id and enforces uniqueness.
type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) *UserRepository {
	return &UserRepository{db: db}
}

type diskUser struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (du diskUser) toDomain() *domain.User {
	return &domain.User{
		ID:           du.ID,
		Username:     du.Username,
		PasswordHash: du.PasswordHash,
		CreatedAt:    du.CreatedAt.UTC(),
	}
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	du := diskUser{
		ID:           uuid.NewString(),
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt.UTC(),
	}
	data, err := json.Marshal(du)
	if err != nil {
		return nil, fmt.Errorf("marshal user: %w", err)
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		nameKey := []byte(usernamePrefix + du.Username)
		if _, err := txn.Get(nameKey); err == nil {
			return domain.ErrUserExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(nameKey, []byte(du.ID)); err != nil {
			return err
		}
		return txn.Set([]byte(userPrefix+du.ID), data)
	})
	if err != nil {
		if errors.Is(err, domain.ErrUserExists) || errors.Is(err, badger.ErrConflict) {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return du.toDomain(), nil
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var user *domain.User
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(usernamePrefix + username))
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		user, err = getUser(txn, string(id))
		return err
	})
	if err != nil {
		return nil, notFound(err)
	}
	return user, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var user *domain.User
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		user, err = getUser(txn, id)
		return err
	})
	if err != nil {
		return nil, notFound(err)
	}
	return user, nil
}

func (r *UserRepository) ListExcept(ctx context.Context, id string) ([]*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var users []*domain.User
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(userPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var du diskUser
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &du)
			}); err != nil {
				return err
			}
			if du.ID != id {
				users = append(users, du.toDomain())
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func getUser(txn *badger.Txn, id string) (*domain.User, error) {
	item, err := txn.Get([]byte(userPrefix + id))
	if err != nil {
		return nil, err
	}
	var du diskUser
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &du)
	}); err != nil {
		return nil, err
	}
	return du.toDomain(), nil
}

func notFound(err error) error {
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.ErrUserNotFound
	}
	return fmt.Errorf("find user: %w", err)
}
