//go:build integration

package containers

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a testcontainers Postgres instance with the schema
// the entitlement store and the audit sink expect.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	Pool      *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS entitlements (
	id            TEXT PRIMARY KEY,
	subject_type  TEXT NOT NULL,
	subject_id    TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	resource_id   TEXT NOT NULL,
	scopes        TEXT[] NOT NULL,
	status        TEXT NOT NULL,
	valid_from    TIMESTAMPTZ NOT NULL,
	valid_until   TIMESTAMPTZ,
	granted_by    TEXT NOT NULL DEFAULT '',
	grant_reason  TEXT NOT NULL DEFAULT '',
	revoked_at    TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS entitlements_subject_idx ON entitlements (subject_id);

CREATE TABLE IF NOT EXISTS audit_records (
	id             TEXT PRIMARY KEY,
	prev_hash      TEXT NOT NULL,
	subject_id     TEXT NOT NULL DEFAULT '',
	session_id     TEXT NOT NULL DEFAULT '',
	action         TEXT NOT NULL,
	resource       TEXT NOT NULL DEFAULT '',
	decision       TEXT NOT NULL,
	reason         TEXT NOT NULL DEFAULT '',
	mechanism      TEXT NOT NULL DEFAULT '',
	policy_package TEXT NOT NULL DEFAULT '',
	policy_rule    TEXT NOT NULL DEFAULT '',
	roles          TEXT[] NOT NULL DEFAULT '{}',
	entitlements   TEXT[] NOT NULL DEFAULT '{}',
	risk_level     TEXT NOT NULL DEFAULT '',
	mfa_verified   BOOLEAN NOT NULL DEFAULT FALSE,
	ip             TEXT NOT NULL DEFAULT '',
	user_agent     TEXT NOT NULL DEFAULT '',
	evaluated_at   TIMESTAMPTZ NOT NULL,
	content_hash   TEXT NOT NULL,
	seq            BIGINT NOT NULL UNIQUE
);
`

// NewPostgresContainer starts Postgres, applies the schema and returns a
// connected pool.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("aegis"),
		tcpostgres.WithUsername("aegis"),
		tcpostgres.WithPassword("aegis"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to connect to postgres: %v", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to apply schema: %v", err)
	}

	return &PostgresContainer{
		Container: container,
		DSN:       dsn,
		Pool:      pool,
	}
}

// Truncate empties all tables. Use between tests to ensure isolation.
func (p *PostgresContainer) Truncate(ctx context.Context) error {
	_, err := p.Pool.Exec(ctx, "TRUNCATE entitlements, audit_records")
	return err
}
