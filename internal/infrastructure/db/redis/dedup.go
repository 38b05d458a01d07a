package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultDedupTTL = time.Hour

// DedupChecker provides idempotency checks for tagged sends backed by Redis.
// Key format: dedup:msg:<sender_id>:<client_message_id>
type DedupChecker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDedupChecker creates a DedupChecker wrapping the given Redis client.
// A non-positive ttl falls back to one hour.
func NewDedupChecker(client *redis.Client, ttl time.Duration) *DedupChecker {
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	return &DedupChecker{client: client, ttl: ttl}
}

// Claim atomically marks the pair as seen. It returns true only for the first
// caller within the ttl.
func (d *DedupChecker) Claim(ctx context.Context, senderID, clientMessageID string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.key(senderID, clientMessageID), "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup claim: %w", err)
	}
	return ok, nil
}

// Release deletes the claim for the pair. Used when the claimed send was
// never persisted.
func (d *DedupChecker) Release(ctx context.Context, senderID, clientMessageID string) error {
	if err := d.client.Del(ctx, d.key(senderID, clientMessageID)).Err(); err != nil {
		return fmt.Errorf("dedup release: %w", err)
	}
	return nil
}

func (d *DedupChecker) key(senderID, clientMessageID string) string {
	return fmt.Sprintf("dedup:msg:%s:%s", senderID, clientMessageID)
}
