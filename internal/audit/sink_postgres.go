package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink writes sealed records to the append-only audit_records table.
// The table carries the full canonical record plus the prev_hash/content_hash
// pair so the chain is verifiable offline with a single ordered scan.
type PostgresSink struct {
	pool *pgxpool.Pool
}

func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Write(ctx context.Context, rec Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_records (
			id, prev_hash, subject_id, session_id, action, resource,
			decision, reason, mechanism, policy_package, policy_rule,
			roles, entitlements, risk_level, mfa_verified, ip, user_agent,
			evaluated_at, content_hash, seq
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17, $18, $19,
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM audit_records)
		)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.PrevHash, rec.SubjectID, rec.SessionID, rec.Action, rec.Resource,
		string(rec.Decision), rec.Reason, rec.Mechanism, rec.PolicyPackage, rec.PolicyRule,
		rec.Roles, rec.Entitlements, rec.RiskLevel, rec.MFAVerified, rec.IP, rec.UserAgent,
		rec.EvaluatedAt, rec.ContentHash,
	)
	if err != nil {
		return fmt.Errorf("audit insert: %w", err)
	}
	return nil
}

// Head returns the id of the most recently appended record so the chain can
// resume after restart. Returns GenesisHash on an empty table.
func (s *PostgresSink) Head(ctx context.Context) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM audit_records ORDER BY seq DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return GenesisHash, nil
	}
	if err != nil {
		return "", fmt.Errorf("audit head: %w", err)
	}
	return id, nil
}

// ListOrdered returns records in append order for offline verification.
func (s *PostgresSink) ListOrdered(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, prev_hash, subject_id, session_id, action, resource,
		       decision, reason, mechanism, policy_package, policy_rule,
		       roles, entitlements, risk_level, mfa_verified, ip, user_agent,
		       evaluated_at, content_hash
		FROM audit_records ORDER BY seq ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit list: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var decision string
		if err := rows.Scan(
			&rec.ID, &rec.PrevHash, &rec.SubjectID, &rec.SessionID, &rec.Action, &rec.Resource,
			&decision, &rec.Reason, &rec.Mechanism, &rec.PolicyPackage, &rec.PolicyRule,
			&rec.Roles, &rec.Entitlements, &rec.RiskLevel, &rec.MFAVerified, &rec.IP, &rec.UserAgent,
			&rec.EvaluatedAt, &rec.ContentHash,
		); err != nil {
			return nil, fmt.Errorf("audit scan: %w", err)
		}
		rec.Decision = Decision(decision)
		// Empty arrays may scan as nil; sealing always used empty slices.
		rec.Roles = nonNil(rec.Roles)
		rec.Entitlements = nonNil(rec.Entitlements)
		out = append(out, rec)
	}
	return out, rows.Err()
}
