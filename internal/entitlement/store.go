package entitlement

import (
	"context"
	"time"
)

// Store persists entitlements. Implementations enforce nothing beyond
// shape; the service owns the lifecycle rules.
type Store interface {
	Insert(ctx context.Context, e Entitlement) error
	GetByID(ctx context.Context, id string) (Entitlement, error)
	// SetStatus updates status/updatedAt/revokedAt in one write.
	SetStatus(ctx context.Context, id string, status Status, updatedAt time.Time, revokedAt *time.Time) error
	ListBySubject(ctx context.Context, subjectID string) ([]Entitlement, error)
}
