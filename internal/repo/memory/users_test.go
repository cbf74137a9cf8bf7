package memory

import (
	"context"
	"testing"
	"time"

	"github.com/geocoder89/scribe/internal/apperr"
	"github.com/geocoder89/scribe/internal/domain/verification"
	"github.com/stretchr/testify/require"
)

func TestUsersRepo_InsertConflict(t *testing.T) {
	ctx := context.Background()
	r := NewUsersRepo()

	u, err := r.Insert(ctx, "a@example.com", "hash", time.Now())
	require.NoError(t, err)
	require.NotEmpty(t, u.ID)
	require.False(t, u.Verified)

	_, err = r.Insert(ctx, "a@example.com", "hash", time.Now())
	require.ErrorIs(t, err, apperr.ErrConflict)

	ok, err := r.Exists(ctx, "a@example.com")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestUsersRepo_UpdateEmail(t *testing.T) {
	ctx := context.Background()
	r := NewUsersRepo()

	a, err := r.Insert(ctx, "a@example.com", "hash", time.Now())
	require.NoError(t, err)
	_, err = r.Insert(ctx, "b@example.com", "hash", time.Now())
	require.NoError(t, err)

	err = r.UpdateEmail(ctx, a.ID, "b@example.com", time.Now())
	require.ErrorIs(t, err, apperr.ErrConflict)

	require.NoError(t, r.UpdateEmail(ctx, a.ID, "c@example.com", time.Now()))

	_, err = r.FindByEmail(ctx, "a@example.com")
	require.ErrorIs(t, err, apperr.ErrNotFoundOrForbidden)

	got, err := r.FindByEmail(ctx, "c@example.com")
	require.NoError(t, err)
	require.Equal(t, a.ID, got.ID)
}

func TestUsersRepo_ConsumeCode(t *testing.T) {
	ctx := context.Background()
	r := NewUsersRepo()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	u, err := r.Insert(ctx, "a@example.com", "hash", now)
	require.NoError(t, err)

	require.NoError(t, r.InsertCode(ctx, verification.Code{
		UserID:    u.ID,
		Code:      "042117",
		ExpiresAt: now.Add(10 * time.Minute),
		CreatedAt: now,
	}))

	ok, err := r.ConsumeCode(ctx, u.ID, "000000", now)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = r.ConsumeCode(ctx, u.ID, "042117", now.Add(10*time.Minute))
	require.NoError(t, err)
	require.False(t, ok, "expired at the boundary")

	ok, err = r.ConsumeCode(ctx, u.ID, "042117", now.Add(5*time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = r.ConsumeCode(ctx, u.ID, "042117", now.Add(6*time.Minute))
	require.NoError(t, err)
	require.False(t, ok, "single use")

	got, err := r.Get(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, got.Verified)

	n, err := r.DeleteStaleCodes(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}
