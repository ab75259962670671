// Package stats persists cumulative transfer telemetry per peer.
package stats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ledgerlink/pairsync/internal/dbx"
)

// Stats is the accumulated telemetry for one peer.
type Stats struct {
	PeerID           string
	TotalSyncedBytes int64
	LastTransferAt   *time.Time
}

// Store is the stats repository contract. Byte counters only ever grow.
type Store interface {
	Add(ctx context.Context, peerID string, bytes int64, at time.Time) error
	Get(ctx context.Context, peerID string) (*Stats, error)
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

// Add accumulates transferred bytes and records the transfer time.
func (r *SQLiteStore) Add(ctx context.Context, peerID string, bytes int64, at time.Time) error {
	query := `INSERT INTO sync_stats (peer_id, total_synced_bytes, last_transfer_at)
			VALUES (?, ?, ?)
			ON CONFLICT(peer_id) DO UPDATE SET
				total_synced_bytes = total_synced_bytes + excluded.total_synced_bytes,
				last_transfer_at = excluded.last_transfer_at
	`
	_, err := r.db.ExecContext(ctx, query, peerID, bytes, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to add stats for %s: %w", peerID, err)
	}
	return nil
}

// Get returns the accumulated stats, or (nil, nil) when the peer has none.
func (r *SQLiteStore) Get(ctx context.Context, peerID string) (*Stats, error) {
	query := `SELECT total_synced_bytes, last_transfer_at FROM sync_stats WHERE peer_id = ?`
	row := r.db.QueryRowContext(ctx, query, peerID)

	s := &Stats{PeerID: peerID}
	if err := row.Scan(&s.TotalSyncedBytes, &s.LastTransferAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get stats for %s: %w", peerID, err)
	}
	return s, nil
}

// RemoveAll drops all telemetry.
func (r *SQLiteStore) RemoveAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sync_stats`); err != nil {
		return fmt.Errorf("failed to clear stats: %w", err)
	}
	return nil
}
