package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const dlqKey = "audit:dlq"

// RedisDeadLetter parks undeliverable records in a shared Redis list so a
// replay job can drain them once the sink recovers. The list is capped to
// keep a wedged sink from exhausting the store.
type RedisDeadLetter struct {
	client redis.Cmdable
	max    int64
}

func NewRedisDeadLetter(client redis.Cmdable, max int64) *RedisDeadLetter {
	if max <= 0 {
		max = 100_000
	}
	return &RedisDeadLetter{client: client, max: max}
}

func (d *RedisDeadLetter) Push(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("dlq marshal: %w", err)
	}
	pipe := d.client.TxPipeline()
	pipe.RPush(ctx, dlqKey, payload)
	pipe.LTrim(ctx, dlqKey, -d.max, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dlq push: %w", err)
	}
	return nil
}

// Depth reports the number of parked records.
func (d *RedisDeadLetter) Depth(ctx context.Context) (int64, error) {
	return d.client.LLen(ctx, dlqKey).Result()
}
