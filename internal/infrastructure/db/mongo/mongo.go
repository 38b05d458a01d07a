package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	defaultTimeout         = 10 * time.Second
	serverSelectionTimeout = 5 * time.Second
	appName                = "direct-messaging"
)

// Config captures the minimal settings required to establish a MongoDB connection.
type Config struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// Connect establishes a MongoDB client, verifies connectivity with a ping, and
// returns both the client and the selected database. A default timeout is
// applied when none is provided.
func Connect(ctx context.Context, cfg Config) (*mongo.Client, *mongo.Database, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetAppName(appName).
		SetServerSelectionTimeout(serverSelectionTimeout)

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}

	return client, client.Database(cfg.Database), nil
}

// Setup connects and creates the indexes both repositories depend on.
func Setup(ctx context.Context, cfg Config) (*mongo.Client, *MessageStore, *UserRepository, error) {
	client, db, err := Connect(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	store := NewMessageStore(db)
	users := NewUserRepository(db)

	if err := users.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, nil, fmt.Errorf("user indexes: %w", err)
	}
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, nil, fmt.Errorf("message indexes: %w", err)
	}

	return client, store, users, nil
}
