package stats

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/ledgerlink/pairsync/internal/migrations"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, migrations.Run(context.Background(), db))
	return db
}

func TestAdd_AccumulatesMonotonically(t *testing.T) {
	r := NewSQLiteStore(setupDB(t))
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, r.Add(ctx, "peer-1", 100, at))
	require.NoError(t, r.Add(ctx, "peer-1", 250, at.Add(time.Minute)))

	s, err := r.Get(ctx, "peer-1")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, int64(350), s.TotalSyncedBytes)
	require.NotNil(t, s.LastTransferAt)
	assert.True(t, s.LastTransferAt.Equal(at.Add(time.Minute)))
}

func TestGet_AbsentReturnsNilNil(t *testing.T) {
	r := NewSQLiteStore(setupDB(t))

	s, err := r.Get(context.Background(), "nobody")
	require.NoError(t, err)
	require.Nil(t, s)
}

func TestRemoveAll(t *testing.T) {
	r := NewSQLiteStore(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Add(ctx, "peer-1", 1, time.Now()))
	require.NoError(t, r.RemoveAll(ctx))

	s, err := r.Get(ctx, "peer-1")
	require.NoError(t, err)
	require.Nil(t, s)
}
