// Package history is a sqlite-backed reference implementation of the
// delta.ChangeHistoryProvider contract: records keyed by (entity, identity
// attribute) plus an append-only change log whose sequence number is the
// opaque cursor. Embedding applications with their own storage engine can
// supply a different provider; the engine depends only on the contract.
package history

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ledgerlink/pairsync/internal/common"
	"github.com/ledgerlink/pairsync/internal/dbx"
	"github.com/ledgerlink/pairsync/internal/delta"
	"github.com/ledgerlink/pairsync/internal/migrations"
)

// OpenDatabase opens the local sync database and applies migrations. The
// same handle backs the provider and the checkpoint/stats stores.
func OpenDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sync database: %w", err)
	}
	if err := migrations.Run(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating sync database: %w", err)
	}
	return db, nil
}

// SQLiteProvider implements delta.ChangeHistoryProvider over the records
// and change_log tables.
type SQLiteProvider struct {
	db     *sql.DB
	schema map[string][]string
}

// NewSQLiteProvider binds a provider to db with the given entity schemas
// (entity name -> known attribute names).
func NewSQLiteProvider(db *sql.DB, schema map[string][]string) *SQLiteProvider {
	return &SQLiteProvider{db: db, schema: schema}
}

func seqToCursor(seq int64) delta.Cursor {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(seq))
	return b
}

func cursorToSeq(c delta.Cursor) (int64, error) {
	if len(c) == 0 {
		return 0, nil
	}
	if len(c) != 8 {
		return 0, fmt.Errorf("%w: bad history cursor length %d", common.ErrCursorRestore, len(c))
	}
	return int64(binary.BigEndian.Uint64(c)), nil
}

// FetchChanges returns all change-log rows after since, oldest first.
func (p *SQLiteProvider) FetchChanges(ctx context.Context, since delta.Cursor) ([]delta.Change, error) {
	after, err := cursorToSeq(since)
	if err != nil {
		return nil, err
	}

	query := `SELECT seq, entity, kind, identity_key, identity_value, fields, changed_at
			FROM change_log WHERE seq > ? ORDER BY seq`
	rows, err := p.db.QueryContext(ctx, query, after)
	if err != nil {
		return nil, fmt.Errorf("failed to select changes: %w", err)
	}
	defer rows.Close()

	var out []delta.Change
	for rows.Next() {
		var (
			seq       int64
			c         delta.Change
			kind      string
			fieldsRaw sql.NullString
		)
		if err := rows.Scan(&seq, &c.Entity, &kind, &c.Identity.Key, &c.Identity.Value, &fieldsRaw, &c.At); err != nil {
			return nil, fmt.Errorf("%w: scanning change row: %v", common.ErrInvalidHistoryResult, err)
		}
		c.Kind = delta.Kind(kind)
		c.Cursor = seqToCursor(seq)
		if fieldsRaw.Valid {
			if err := json.Unmarshal([]byte(fieldsRaw.String), &c.Fields); err != nil {
				return nil, fmt.Errorf("%w: decoding change fields: %v", common.ErrInvalidHistoryResult, err)
			}
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read changes: %w", err)
	}
	return out, nil
}

// SchemaFields lists the known attribute names for an entity.
func (p *SQLiteProvider) SchemaFields(entity string) ([]string, error) {
	fields, ok := p.schema[entity]
	if !ok {
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownEntity, entity)
	}
	return fields, nil
}

// InTx runs fn inside one database transaction.
func (p *SQLiteProvider) InTx(ctx context.Context, fn func(delta.Tx) error) error {
	return dbx.WithTx(ctx, p.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(&sqliteTx{ctx: ctx, tx: tx})
	})
}

// Put records a local insert/update and appends it to the change log.
func (p *SQLiteProvider) Put(ctx context.Context, entity string, id delta.Identity, fields map[string]any, at time.Time) error {
	return p.InTx(ctx, func(tx delta.Tx) error {
		return tx.Upsert(entity, id, fields, at)
	})
}

// Drop records a local delete and appends a tombstone to the change log.
func (p *SQLiteProvider) Drop(ctx context.Context, entity string, id delta.Identity, at time.Time) error {
	return p.InTx(ctx, func(tx delta.Tx) error {
		return tx.Remove(entity, id, at)
	})
}

// ListedRecord pairs a stored record with its identity for listings.
type ListedRecord struct {
	Identity   delta.Identity
	Fields     map[string]any
	ModifiedAt time.Time
}

// List returns all live records of an entity, ordered by identity value.
func (p *SQLiteProvider) List(ctx context.Context, entity string) ([]ListedRecord, error) {
	query := `SELECT identity_key, identity_value, fields, modified_at FROM records
			WHERE entity = ? ORDER BY identity_value`
	rows, err := p.db.QueryContext(ctx, query, entity)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s records: %w", entity, err)
	}
	defer rows.Close()

	var out []ListedRecord
	for rows.Next() {
		var (
			r         ListedRecord
			fieldsRaw string
		)
		if err := rows.Scan(&r.Identity.Key, &r.Identity.Value, &fieldsRaw, &r.ModifiedAt); err != nil {
			return nil, fmt.Errorf("scanning record row: %w", err)
		}
		if err := json.Unmarshal([]byte(fieldsRaw), &r.Fields); err != nil {
			return nil, fmt.Errorf("decoding record fields: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	return out, nil
}

// Lookup reads a record outside any transaction.
func (p *SQLiteProvider) Lookup(ctx context.Context, entity string, id delta.Identity) (*delta.Record, error) {
	t := &sqliteTx{ctx: ctx, tx: p.db}
	return t.Lookup(entity, id)
}

type sqliteTx struct {
	ctx context.Context
	tx  dbx.DBTX
}

func (t *sqliteTx) Lookup(entity string, id delta.Identity) (*delta.Record, error) {
	query := `SELECT fields, modified_at FROM records
			WHERE entity = ? AND identity_key = ? AND identity_value = ?`
	row := t.tx.QueryRowContext(t.ctx, query, entity, id.Key, id.Value)

	var (
		fieldsRaw string
		rec       delta.Record
	)
	if err := row.Scan(&fieldsRaw, &rec.ModifiedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up %s/%s: %w", entity, id.Value, err)
	}
	if err := json.Unmarshal([]byte(fieldsRaw), &rec.Fields); err != nil {
		return nil, fmt.Errorf("decoding record fields: %w", err)
	}
	return &rec, nil
}

func (t *sqliteTx) Upsert(entity string, id delta.Identity, fields map[string]any, modifiedAt time.Time) error {
	existing, err := t.Lookup(entity, id)
	if err != nil {
		return err
	}
	kind := delta.KindUpdate
	if existing == nil {
		kind = delta.KindInsert
	}

	fieldsRaw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encoding record fields: %w", err)
	}

	query := `INSERT INTO records (entity, identity_key, identity_value, fields, modified_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(entity, identity_key, identity_value) DO UPDATE SET
				fields = excluded.fields, modified_at = excluded.modified_at
	`
	if _, err := t.tx.ExecContext(t.ctx, query, entity, id.Key, id.Value, string(fieldsRaw), modifiedAt.UTC()); err != nil {
		return fmt.Errorf("failed to upsert %s/%s: %w", entity, id.Value, err)
	}

	return t.appendChange(entity, kind, id, string(fieldsRaw), modifiedAt)
}

func (t *sqliteTx) Remove(entity string, id delta.Identity, deletedAt time.Time) error {
	query := `DELETE FROM records WHERE entity = ? AND identity_key = ? AND identity_value = ?`
	if _, err := t.tx.ExecContext(t.ctx, query, entity, id.Key, id.Value); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", entity, id.Value, err)
	}
	return t.appendChange(entity, delta.KindDelete, id, "", deletedAt)
}

func (t *sqliteTx) appendChange(entity string, kind delta.Kind, id delta.Identity, fieldsRaw string, at time.Time) error {
	var fields any
	if fieldsRaw != "" {
		fields = fieldsRaw
	}
	query := `INSERT INTO change_log (entity, kind, identity_key, identity_value, fields, changed_at)
			VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := t.tx.ExecContext(t.ctx, query, entity, string(kind), id.Key, id.Value, fields, at.UTC()); err != nil {
		return fmt.Errorf("failed to append change log: %w", err)
	}
	return nil
}
