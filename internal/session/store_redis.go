package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"aegis/internal/audit"
	"aegis/pkg/requestcontext"
)

var (
	lookupDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "aegis_session_lookup_duration_ms",
		Help:    "Latency of session lookups in milliseconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
	})
	sessionsRevoked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aegis_sessions_revoked_total",
		Help: "Sessions deleted through Revoke or RevokeAllForSubject",
	})
)

const (
	sessionKeyPrefix = "session:"
	subjectKeyPrefix = "subject:sessions:"

	// updateRiskRetries bounds optimistic WATCH retries on concurrent writes.
	updateRiskRetries = 3
)

// RedisStore is the production Store. Redis is the authoritative concurrency
// primitive: atomic SET/EX, SADD/SREM, WATCH transactions, and batched DEL.
type RedisStore struct {
	client  *redis.Client
	ttl     time.Duration
	margin  time.Duration
	auditor audit.Recorder
}

// NewRedis constructs the store. The subject index outlives session records
// by margin so a session never outlives its index entry.
func NewRedis(client *redis.Client, ttl, margin time.Duration, auditor audit.Recorder) *RedisStore {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	if margin <= 0 {
		margin = 60 * time.Second
	}
	return &RedisStore{client: client, ttl: ttl, margin: margin, auditor: auditor}
}

func sessionKey(id string) string        { return sessionKeyPrefix + id }
func subjectKey(subjectID string) string { return subjectKeyPrefix + subjectID }

func (s *RedisStore) Create(ctx context.Context, p CreateParams) (*Session, error) {
	now := requestcontext.Now(ctx)
	sess := &Session{
		ID:              uuid.NewString(),
		SubjectID:       p.SubjectID,
		TenantID:        p.TenantID,
		DeviceID:        p.DeviceID,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.ttl),
		RiskLevel:       RiskLow,
		MFAVerified:     p.MFAVerified,
		LastEvaluatedAt: now,
		LastIP:          p.IP,
		LastUserAgent:   p.UserAgent,
		LastGeo:         p.Geo,
	}

	payload, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(sess.ID), payload, s.ttl)
		pipe.SAdd(ctx, subjectKey(sess.SubjectID), sess.ID)
		pipe.Expire(ctx, subjectKey(sess.SubjectID), s.ttl+s.margin)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (Lookup, error) {
	start := time.Now()
	defer func() {
		lookupDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	raw, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Lookup{State: StateAbsent}, nil
	}
	if err != nil {
		return Lookup{}, fmt.Errorf("get session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return Lookup{}, fmt.Errorf("decode session: %w", err)
	}
	if sess.RevokedAt != nil {
		return Lookup{State: StateRevoked, Session: &sess}, nil
	}
	if !sess.ExpiresAt.After(requestcontext.Now(ctx)) {
		// Record outlived its expiry but Redis has not reaped it yet.
		return Lookup{State: StateAbsent}, nil
	}
	return Lookup{State: StateLive, Session: &sess}, nil
}

func (s *RedisStore) UpdateRisk(ctx context.Context, id string, level RiskLevel, evaluatedAt time.Time) error {
	key := sessionKey(id)
	var err error
	for i := 0; i < updateRiskRetries; i++ {
		err = s.client.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				// Session vanished; never silently recreate it.
				return nil
			}
			if err != nil {
				return err
			}
			var sess Session
			if err := json.Unmarshal(raw, &sess); err != nil {
				return fmt.Errorf("decode session: %w", err)
			}
			sess.RiskLevel = level
			sess.LastEvaluatedAt = evaluatedAt

			payload, err := json.Marshal(&sess)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, redis.KeepTTL)
				return nil
			})
			return err
		}, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("update risk: %w", err)
	}
	return nil
}

func (s *RedisStore) Revoke(ctx context.Context, id string) error {
	raw, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil // already gone
	}
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return fmt.Errorf("decode session: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(id))
		pipe.SRem(ctx, subjectKey(sess.SubjectID), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	sessionsRevoked.Inc()

	// Audit failures never fail the revoke.
	if s.auditor != nil {
		s.auditor.Record(ctx, audit.Entry{
			SubjectID:   sess.SubjectID,
			SessionID:   sess.ID,
			Action:      audit.ActionSessionRevoked,
			Decision:    audit.DecisionRevoked,
			RiskLevel:   string(sess.RiskLevel),
			MFAVerified: sess.MFAVerified,
			EvaluatedAt: requestcontext.Now(ctx),
		})
	}
	return nil
}

func (s *RedisStore) RevokeAllForSubject(ctx context.Context, subjectID string) (int, error) {
	ids, err := s.client.SMembers(ctx, subjectKey(subjectID)).Result()
	if err != nil {
		return 0, fmt.Errorf("revoke all: read index: %w", err)
	}

	// Batch the deletes over the snapshot, then drop the index. A Create
	// racing past the snapshot lands in a fresh set, which is acceptable:
	// the new session post-dates the revocation event.
	cmds := make([]*redis.IntCmd, 0, len(ids))
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			cmds = append(cmds, pipe.Del(ctx, sessionKey(id)))
		}
		pipe.Del(ctx, subjectKey(subjectID))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("revoke all: %w", err)
	}

	count := 0
	for _, cmd := range cmds {
		count += int(cmd.Val())
	}
	if count > 0 {
		sessionsRevoked.Add(float64(count))
	}

	if s.auditor != nil {
		s.auditor.Record(ctx, audit.Entry{
			SubjectID:   subjectID,
			Action:      audit.ActionSessionsRevokedSubject,
			Decision:    audit.DecisionRevoked,
			Reason:      fmt.Sprintf("revoked %d sessions", count),
			EvaluatedAt: requestcontext.Now(ctx),
		})
	}
	return count, nil
}
