package session

import (
	"context"
	"time"
)

// CreateParams carries everything the authentication collaborator knows at
// login time.
type CreateParams struct {
	SubjectID   string
	TenantID    string
	DeviceID    string
	MFAVerified bool
	IP          string
	UserAgent   string
	Geo         string
}

// Store is the authoritative session store.
//
// Key policies: session records live at session:{id} with EX = session TTL;
// the subject index is a SET at subject:sessions:{subjectID} with
// EX = TTL + margin. The TTL is fixed from creation; UpdateRisk preserves the
// remaining TTL and never recreates a vanished session.
type Store interface {
	// Create generates an id, writes the record and indexes it under the
	// subject. Fails only if the backing store is unreachable.
	Create(ctx context.Context, p CreateParams) (*Session, error)

	// Get returns the tagged state of a session id.
	Get(ctx context.Context, id string) (Lookup, error)

	// UpdateRisk performs a read-modify-write of RiskLevel/LastEvaluatedAt
	// preserving the remaining TTL. No-op if the session no longer exists.
	UpdateRisk(ctx context.Context, id string, level RiskLevel, evaluatedAt time.Time) error

	// Revoke deletes the session and its index membership and emits a
	// SESSION_REVOKED audit event. Idempotent.
	Revoke(ctx context.Context, id string) error

	// RevokeAllForSubject snapshots the subject index, deletes every session
	// in one batched operation, deletes the index, and emits one
	// SESSIONS_REVOKED_SUBJECT event with the count. Idempotent.
	RevokeAllForSubject(ctx context.Context, subjectID string) (int, error)
}
