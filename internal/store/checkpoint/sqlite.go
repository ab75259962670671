// Package checkpoint persists, per peer and per direction, the opaque
// "since" cursor into the local change history. Cursor bytes are meaningful
// only to the change-history provider.
package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ledgerlink/pairsync/internal/dbx"
)

// Direction distinguishes the two cursors kept per peer.
type Direction string

const (
	// DirectionOutgoing tracks what we have already pulled from the peer.
	DirectionOutgoing Direction = "outgoing"
	// DirectionIncoming tracks what the peer acknowledged pulling from us.
	DirectionIncoming Direction = "incoming"
)

// Store is the checkpoint repository contract.
type Store interface {
	Save(ctx context.Context, peerID string, dir Direction, cursor []byte) error
	Load(ctx context.Context, peerID string, dir Direction) ([]byte, error)
	RemoveAll(ctx context.Context) error
}

// SQLiteStore implements Store using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteStore struct {
	db dbx.DBTX
}

// NewSQLiteStore returns a new SQLiteStore bound to the given DBTX.
func NewSQLiteStore(db dbx.DBTX) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Save upserts the cursor for (peerID, dir).
func (r *SQLiteStore) Save(ctx context.Context, peerID string, dir Direction, cursor []byte) error {
	query := `INSERT INTO checkpoints (peer_id, direction, cursor, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(peer_id, direction) DO UPDATE SET cursor = excluded.cursor,
				updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query, peerID, string(dir), cursor, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %s/%s: %w", peerID, dir, err)
	}
	return nil
}

// Load returns the stored cursor, or (nil, nil) when no checkpoint exists.
func (r *SQLiteStore) Load(ctx context.Context, peerID string, dir Direction) ([]byte, error) {
	query := `SELECT cursor FROM checkpoints WHERE peer_id = ? AND direction = ?`
	row := r.db.QueryRowContext(ctx, query, peerID, string(dir))

	var cursor []byte
	if err := row.Scan(&cursor); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load checkpoint %s/%s: %w", peerID, dir, err)
	}
	return cursor, nil
}

// RemoveAll drops every checkpoint (factory reset / forget all peers).
func (r *SQLiteStore) RemoveAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM checkpoints`); err != nil {
		return fmt.Errorf("failed to clear checkpoints: %w", err)
	}
	return nil
}
