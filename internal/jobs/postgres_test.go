package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusgate/internal/store/storetest"
)

func newPGStore(t *testing.T) *PostgresStore {
	t.Helper()
	s := NewPostgresStore(storetest.Postgres(t))
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestPostgresStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newPGStore(t)

	pending, err := s.Enqueue(ctx, "manual-sync-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, pending.Status)
	n, err := s.CountByStatus(ctx, StatusPending)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	started, err := s.Start(ctx, "manual-sync-1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, pending.ID, started.ID)
	assert.Equal(t, StatusProcessing, started.Status)
	require.NotNil(t, started.StartedAt)

	stats := Stats{Fetched: 3, Created: 1, Exported: 2, Skipped: 1}
	require.NoError(t, s.Finish(ctx, started.ID, StatusPartial, stats, "2 rows failed", time.Now()))
	assert.ErrorIs(t, s.Finish(ctx, "00000000-0000-0000-0000-000000000000", StatusFailed, Stats{}, "", time.Now()), ErrNotFound)

	recent, err := s.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, StatusPartial, recent[0].Status)
	assert.Equal(t, stats, recent[0].Stats)
	assert.Equal(t, "2 rows failed", recent[0].Error)
	assert.NotNil(t, recent[0].CompletedAt)
}

func TestPostgresStoreStartWithoutPendingAndRecover(t *testing.T) {
	ctx := context.Background()
	s := newPGStore(t)

	direct, err := s.Start(ctx, "scheduled-sync-1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, direct.Status)
	_, err = s.Enqueue(ctx, "manual-sync-2")
	require.NoError(t, err)

	n, err := s.RecoverInterrupted(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	failed, err := s.CountByStatus(ctx, StatusFailed)
	require.NoError(t, err)
	assert.Equal(t, 2, failed)
}
