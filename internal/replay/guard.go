// Package replay rejects nonce reuse across every instance sharing the store.
// Nonces are stored hashed, never in plaintext.
package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"aegis/pkg/canonical"
)

const nonceKeyPrefix = "anti-replay:"

// Guard is a SETNX sentinel over hashed nonces.
type Guard struct {
	client redis.Cmdable
	ttl    time.Duration
}

// New constructs the guard. TTL defaults to 5 minutes.
func New(client redis.Cmdable, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Guard{client: client, ttl: ttl}
}

// FirstUse atomically claims the nonce. Returns false if it was already seen
// within the TTL. Store errors fail closed at the caller.
func (g *Guard) FirstUse(ctx context.Context, nonce string) (bool, error) {
	key := nonceKeyPrefix + canonical.HashString(nonce)
	ok, err := g.client.SetNX(ctx, key, "1", g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("replay check: %w", err)
	}
	return ok, nil
}
