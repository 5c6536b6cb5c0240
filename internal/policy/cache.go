package policy

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"aegis/pkg/canonical"
)

var cacheResults = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "aegis_policy_cache_results_total",
	Help: "Decision cache hits and misses",
}, []string{"result"})

const cacheKeyPrefix = "opa:"

// Cache wraps any Engine with a short-TTL decision cache keyed by the
// canonical fingerprint of the input.
//
// Safety: the TTL stays below the risk-update cadence, and every out-of-band
// revocation kills the affected sessions. The pipeline re-fetches the session
// before consulting this cache, so stale ALLOWs are unreachable.
type Cache struct {
	inner  Engine
	client redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

// NewCache bounds the TTL at 5s regardless of configuration.
func NewCache(inner Engine, client redis.Cmdable, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 || ttl > 5*time.Second {
		ttl = 5 * time.Second
	}
	return &Cache{inner: inner, client: client, ttl: ttl, logger: logger}
}

func (c *Cache) Decide(ctx context.Context, input Input) (Decision, error) {
	fp, err := canonical.Fingerprint(input)
	if err != nil {
		// Unfingerprintable input still gets a decision, just uncached.
		c.logger.WarnContext(ctx, "policy input fingerprint failed", "error", err)
		return c.inner.Decide(ctx, input)
	}
	key := cacheKeyPrefix + fp

	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var cached Decision
		if err := json.Unmarshal(raw, &cached); err == nil {
			cacheResults.WithLabelValues("hit").Inc()
			return cached, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.WarnContext(ctx, "decision cache read failed", "error", err)
	}
	cacheResults.WithLabelValues("miss").Inc()

	decision, err := c.inner.Decide(ctx, input)
	if err != nil {
		return decision, err
	}

	// Outage denials are not policy answers; caching them would extend the
	// outage past recovery.
	if decision.Reason == ReasonUnavailable {
		return decision, nil
	}

	if payload, err := json.Marshal(decision); err == nil {
		if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.logger.WarnContext(ctx, "decision cache write failed", "error", err)
		}
	}
	return decision, nil
}
