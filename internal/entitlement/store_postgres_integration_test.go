//go:build integration

package entitlement

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegis/pkg/sentinel"
	"aegis/pkg/testutil/containers"
)

func storedGrant(subjectID string) Entitlement {
	now := time.Now().UTC().Truncate(time.Microsecond)
	until := now.Add(24 * time.Hour)
	return Entitlement{
		ID:           uuid.NewString(),
		SubjectType:  SubjectUser,
		SubjectID:    subjectID,
		ResourceType: "document",
		ResourceID:   "doc-42",
		Scopes:       []string{"read", "write"},
		Status:       StatusActive,
		ValidFrom:    now,
		ValidUntil:   &until,
		GrantedBy:    "admin-1",
		GrantReason:  "onboarding",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestPostgresStoreInsertAndGet(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	store := NewPostgres(pg.Pool)
	ctx := context.Background()

	want := storedGrant("subject-1")
	require.NoError(t, store.Insert(ctx, want))

	got, err := store.GetByID(ctx, want.ID)
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, SubjectUser, got.SubjectType)
	assert.Equal(t, StatusActive, got.Status)
	assert.Equal(t, []string{"read", "write"}, got.Scopes)
	assert.True(t, want.ValidFrom.Equal(got.ValidFrom))
	require.NotNil(t, got.ValidUntil)
	assert.True(t, want.ValidUntil.Equal(*got.ValidUntil))
	assert.Nil(t, got.RevokedAt)
}

func TestPostgresStoreGetAbsent(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	store := NewPostgres(pg.Pool)

	_, err := store.GetByID(context.Background(), uuid.NewString())
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestPostgresStoreSetStatus(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	store := NewPostgres(pg.Pool)
	ctx := context.Background()

	e := storedGrant("subject-1")
	require.NoError(t, store.Insert(ctx, e))

	revokedAt := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, store.SetStatus(ctx, e.ID, StatusRevoked, revokedAt, &revokedAt))

	got, err := store.GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRevoked, got.Status)
	require.NotNil(t, got.RevokedAt)
	assert.True(t, revokedAt.Equal(*got.RevokedAt))

	err = store.SetStatus(ctx, uuid.NewString(), StatusRevoked, revokedAt, &revokedAt)
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestPostgresStoreListBySubject(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	store := NewPostgres(pg.Pool)
	ctx := context.Background()

	first := storedGrant("subject-1")
	second := storedGrant("subject-1")
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	other := storedGrant("subject-2")
	for _, e := range []Entitlement{first, second, other} {
		require.NoError(t, store.Insert(ctx, e))
	}

	got, err := store.ListBySubject(ctx, "subject-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, second.ID, got[1].ID)
}
