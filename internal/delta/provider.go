package delta

import (
	"context"
	"time"
)

// Record is the provider's view of a stored logical record.
type Record struct {
	Fields     map[string]any
	ModifiedAt time.Time
}

// ChangeHistoryProvider is the contract the engine depends on. Any storage
// engine that can emit an ordered, cursor-resumable change feed and support
// identity-keyed upsert/delete satisfies it; the surrounding application
// owns the implementation.
type ChangeHistoryProvider interface {
	// FetchChanges returns all change records after since, oldest first.
	// A nil cursor means "from the beginning".
	FetchChanges(ctx context.Context, since Cursor) ([]Change, error)

	// SchemaFields lists the attribute names the local schema knows for an
	// entity. Returns common.ErrUnknownEntity for entities it doesn't have.
	SchemaFields(entity string) ([]string, error)

	// InTx runs fn against a transactional handle. Nothing written through
	// the handle is visible unless fn returns nil.
	InTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the write side of the provider, scoped to one transaction.
type Tx interface {
	// Lookup returns the record for (entity, id), or nil when absent.
	Lookup(entity string, id Identity) (*Record, error)

	// Upsert creates or replaces the record with the given attribute map and
	// modification time.
	Upsert(entity string, id Identity, fields map[string]any, modifiedAt time.Time) error

	// Remove deletes the record, recording deletedAt in the change history.
	Remove(entity string, id Identity, deletedAt time.Time) error
}
