package checkpoint

import (
	"context"
	"database/sql"
	"testing"

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

func TestSaveAndLoad(t *testing.T) {
	r := NewSQLiteStore(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Save(ctx, "peer-1", DirectionOutgoing, []byte{0x01, 0x02}))

	cursor, err := r.Load(ctx, "peer-1", DirectionOutgoing)
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02}, cursor)
}

func TestLoad_AbsentReturnsNilNil(t *testing.T) {
	r := NewSQLiteStore(setupDB(t))

	cursor, err := r.Load(context.Background(), "nobody", DirectionIncoming)
	require.NoError(t, err)
	require.Nil(t, cursor)
}

func TestSave_UpsertsPerDirection(t *testing.T) {
	r := NewSQLiteStore(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Save(ctx, "peer-1", DirectionOutgoing, []byte("old")))
	require.NoError(t, r.Save(ctx, "peer-1", DirectionOutgoing, []byte("new")))
	require.NoError(t, r.Save(ctx, "peer-1", DirectionIncoming, []byte("in")))

	out, err := r.Load(ctx, "peer-1", DirectionOutgoing)
	require.NoError(t, err)
	require.Equal(t, []byte("new"), out)

	in, err := r.Load(ctx, "peer-1", DirectionIncoming)
	require.NoError(t, err)
	require.Equal(t, []byte("in"), in)
}

func TestRemoveAll(t *testing.T) {
	r := NewSQLiteStore(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Save(ctx, "peer-1", DirectionOutgoing, []byte("x")))
	require.NoError(t, r.RemoveAll(ctx))

	cursor, err := r.Load(ctx, "peer-1", DirectionOutgoing)
	require.NoError(t, err)
	require.Nil(t, cursor)
}

func TestLoad_DBErrorWrapped(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteStore(db)
	require.NoError(t, db.Close())

	_, err := r.Load(context.Background(), "p", DirectionOutgoing)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to load checkpoint")
}
