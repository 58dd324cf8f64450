package refunds

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupRefundsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	counters := `
CREATE TABLE IF NOT EXISTS refund_abuse_counters (
  normalized_email TEXT PRIMARY KEY,
  count INTEGER NOT NULL DEFAULT 0,
  updated_at DATETIME
);`
	require.NoError(t, gdb.Exec(counters).Error)
	return gdb
}

func TestIncrementCounterUpserts(t *testing.T) {
	repo := NewRepository(setupRefundsTestDB(t))
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	count, err := repo.IncrementCounter(ctx, "abuser@x.com", now)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = repo.IncrementCounter(ctx, "abuser@x.com", now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Separate identities keep separate tallies.
	count, err = repo.IncrementCounter(ctx, "other@x.com", now)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDecrementCounterFloorsAtZero(t *testing.T) {
	repo := NewRepository(setupRefundsTestDB(t))
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	// Reversal for an identity never counted is a no-op, not an error.
	require.NoError(t, repo.DecrementCounter(ctx, "reversal@x.com", now))

	counter, err := repo.GetCounter(ctx, "reversal@x.com")
	require.NoError(t, err)
	assert.Equal(t, 0, counter.Count)

	_, err = repo.IncrementCounter(ctx, "reversal@x.com", now)
	require.NoError(t, err)

	require.NoError(t, repo.DecrementCounter(ctx, "reversal@x.com", now))
	require.NoError(t, repo.DecrementCounter(ctx, "reversal@x.com", now))

	counter, err = repo.GetCounter(ctx, "reversal@x.com")
	require.NoError(t, err)
	assert.Equal(t, 0, counter.Count)
}
