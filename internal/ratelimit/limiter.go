// Package ratelimit implements the per-session fixed-window limiter.
// Counters live in the shared store so every instance sees the same window.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"aegis/internal/session"
)

var rejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "aegis_ratelimit_rejections_total",
	Help: "Requests rejected by the session rate limiter",
}, []string{"risk_level"})

const rateKeyPrefix = "rate:"

// Caps are the per-window request budgets by risk level. CRITICAL has no
// budget: the pipeline should already have terminated such a session, this
// is defense in depth.
type Caps struct {
	Low        int
	Medium     int
	High       int
	DefaultCap int
}

// DefaultCaps returns the documented production budgets.
func DefaultCaps() Caps {
	return Caps{Low: 1000, Medium: 200, High: 20, DefaultCap: 10}
}

// Result reports one admission check.
type Result struct {
	Allowed bool
	Count   int64
	Cap     int
}

// Limiter counts requests per session in a fixed window via INCR + EXPIRE.
type Limiter struct {
	client redis.Cmdable
	window time.Duration
	caps   Caps
}

// New constructs the limiter. Window defaults to 60s.
func New(client redis.Cmdable, window time.Duration, caps Caps) *Limiter {
	if window <= 0 {
		window = 60 * time.Second
	}
	if caps == (Caps{}) {
		caps = DefaultCaps()
	}
	return &Limiter{client: client, window: window, caps: caps}
}

// Allow increments the session's window counter and compares it to the cap
// for the current risk level. Store errors fail closed: the caller treats a
// non-nil error as a rejection.
func (l *Limiter) Allow(ctx context.Context, sessionID string, level session.RiskLevel) (Result, error) {
	if level == session.RiskCritical {
		rejections.WithLabelValues(string(level)).Inc()
		return Result{Allowed: false}, nil
	}

	cap := l.capFor(level)
	key := rateKeyPrefix + sanitizeSegment(sessionID)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return Result{Allowed: false, Cap: cap}, fmt.Errorf("rate incr: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return Result{Allowed: false, Count: count, Cap: cap}, fmt.Errorf("rate expire: %w", err)
		}
	}

	if count > int64(cap) {
		rejections.WithLabelValues(string(level)).Inc()
		return Result{Allowed: false, Count: count, Cap: cap}, nil
	}
	return Result{Allowed: true, Count: count, Cap: cap}, nil
}

func (l *Limiter) capFor(level session.RiskLevel) int {
	switch level {
	case session.RiskLow:
		if l.caps.Low > 0 {
			return l.caps.Low
		}
	case session.RiskMedium:
		if l.caps.Medium > 0 {
			return l.caps.Medium
		}
	case session.RiskHigh:
		if l.caps.High > 0 {
			return l.caps.High
		}
	}
	if l.caps.DefaultCap > 0 {
		return l.caps.DefaultCap
	}
	return 10
}

// sanitizeSegment escapes the key delimiter in identifiers so a crafted id
// cannot address an adjacent counter.
func sanitizeSegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}
