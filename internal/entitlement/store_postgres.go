package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"aegis/pkg/sentinel"
)

// PostgresStore is the production entitlement store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Insert(ctx context.Context, e Entitlement) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO entitlements (
			id, subject_type, subject_id, resource_type, resource_id, scopes,
			status, valid_from, valid_until, granted_by, grant_reason,
			created_at, updated_at, revoked_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		e.ID, string(e.SubjectType), e.SubjectID, e.ResourceType, e.ResourceID, e.Scopes,
		string(e.Status), e.ValidFrom, e.ValidUntil, e.GrantedBy, e.GrantReason,
		e.CreatedAt, e.UpdatedAt, e.RevokedAt,
	)
	if err != nil {
		return fmt.Errorf("insert entitlement: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (Entitlement, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, subject_type, subject_id, resource_type, resource_id, scopes,
		       status, valid_from, valid_until, granted_by, grant_reason,
		       created_at, updated_at, revoked_at
		FROM entitlements WHERE id = $1`, id)
	e, err := scanEntitlement(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entitlement{}, fmt.Errorf("entitlement %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return Entitlement{}, fmt.Errorf("get entitlement: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) SetStatus(ctx context.Context, id string, status Status, updatedAt time.Time, revokedAt *time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE entitlements SET status = $2, updated_at = $3, revoked_at = COALESCE($4, revoked_at)
		WHERE id = $1`,
		id, string(status), updatedAt, revokedAt)
	if err != nil {
		return fmt.Errorf("set entitlement status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("entitlement %s: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subjectID string) ([]Entitlement, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, subject_type, subject_id, resource_type, resource_id, scopes,
		       status, valid_from, valid_until, granted_by, grant_reason,
		       created_at, updated_at, revoked_at
		FROM entitlements WHERE subject_id = $1 ORDER BY created_at`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list entitlements: %w", err)
	}
	defer rows.Close()

	var out []Entitlement
	for rows.Next() {
		e, err := scanEntitlement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entitlement: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntitlement(row rowScanner) (Entitlement, error) {
	var e Entitlement
	var subjectType, status string
	err := row.Scan(
		&e.ID, &subjectType, &e.SubjectID, &e.ResourceType, &e.ResourceID, &e.Scopes,
		&status, &e.ValidFrom, &e.ValidUntil, &e.GrantedBy, &e.GrantReason,
		&e.CreatedAt, &e.UpdatedAt, &e.RevokedAt,
	)
	if err != nil {
		return Entitlement{}, err
	}
	e.SubjectType = SubjectType(subjectType)
	e.Status = Status(status)
	return e, nil
}
