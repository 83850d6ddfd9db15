package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryRepositoryCRUD(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	svc := NewService(r, time.Hour)

	s, err := svc.CreateSession(ctx, "uid-1", "a@fgc.br", "rt-1")
	require.NoError(t, err)

	got, err := svc.Validate(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, "rt-1", got.RefreshToken)

	// callers get copies
	got.RefreshToken = "changed"
	again, err := r.Get(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, "rt-1", again.RefreshToken)

	require.NoError(t, svc.Delete(ctx, s.ID))
	got, err = svc.Validate(ctx, s.ID)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestMemoryRepositoryExpiredSessionIsDropped(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	require.NoError(t, r.Create(ctx, &Session{ID: "old", UID: "u", ExpiresAt: time.Now().Add(-time.Minute)}))

	svc := NewService(r, time.Hour)
	got, err := svc.Validate(ctx, "old")
	require.NoError(t, err)
	require.Nil(t, got)
	missing, err := r.Get(ctx, "old")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestMemoryRepositoryGetDropsExpired(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	require.NoError(t, r.Create(ctx, &Session{ID: "old", ExpiresAt: time.Now().Add(-time.Second)}))
	require.NoError(t, r.Create(ctx, &Session{ID: "open-ended"}))

	got, err := r.Get(ctx, "old")
	require.NoError(t, err)
	require.Nil(t, got)
	require.NotContains(t, r.store, "old")

	got, err = r.Get(ctx, "open-ended")
	require.NoError(t, err)
	require.NotNil(t, got, "a zero expiry never expires")
}
