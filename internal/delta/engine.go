package delta

import (
	"context"
	"fmt"
	"sort"

	"github.com/ledgerlink/pairsync/internal/common"
)

// SchemaVersion is stamped on outgoing upserts. Receivers ignore attribute
// names they don't recognize, so newer-schema peers stay compatible.
const SchemaVersion = 1

// Engine builds deltas from the change history and applies incoming ones.
// Safe for concurrent use: it holds no state beyond the provider reference.
type Engine struct {
	provider ChangeHistoryProvider
}

func NewEngine(provider ChangeHistoryProvider) *Engine {
	return &Engine{provider: provider}
}

type opKey struct {
	entity string
	idKey  string
	idVal  string
}

func keyOf(entity string, id Identity) opKey {
	return opKey{entity: entity, idKey: id.Key, idVal: id.Value}
}

// CreateDelta enumerates changes after since and reduces them to at most one
// operation per logical record. A later change always supersedes an earlier
// one for the same record: an upsert cancels a pending delete and vice
// versa. NewCursor is the cursor of the last processed change (empty when
// the feed was empty).
func (e *Engine) CreateDelta(ctx context.Context, since Cursor) (*Delta, error) {
	changes, err := e.provider.FetchChanges(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("fetching changes: %w", err)
	}

	upserts := make(map[opKey]Upsert)
	deletes := make(map[opKey]Delete)

	var last Cursor
	for _, c := range changes {
		if c.Entity == "" || c.Identity.Key == "" {
			return nil, fmt.Errorf("%w: change without entity or identity", common.ErrInvalidHistoryResult)
		}
		key := keyOf(c.Entity, c.Identity)

		switch c.Kind {
		case KindInsert, KindUpdate:
			upserts[key] = Upsert{
				Entity:        c.Entity,
				Identity:      c.Identity,
				Fields:        c.Fields,
				ModifiedAt:    c.At,
				SchemaVersion: SchemaVersion,
			}
			delete(deletes, key)
		case KindDelete:
			deletes[key] = Delete{Entity: c.Entity, Identity: c.Identity, DeletedAt: c.At}
			delete(upserts, key)
		default:
			return nil, fmt.Errorf("%w: unknown change kind %q", common.ErrInvalidHistoryResult, c.Kind)
		}
		last = c.Cursor
	}

	d := &Delta{NewCursor: last}
	for _, u := range upserts {
		d.Upserts = append(d.Upserts, u)
	}
	for _, del := range deletes {
		d.Deletes = append(d.Deletes, del)
	}

	// Deterministic order for the wire and for tests.
	sort.Slice(d.Upserts, func(i, j int) bool { return upsertLess(d.Upserts[i], d.Upserts[j]) })
	sort.Slice(d.Deletes, func(i, j int) bool {
		a, b := d.Deletes[i], d.Deletes[j]
		if a.Entity != b.Entity {
			return a.Entity < b.Entity
		}
		return a.Identity.Value < b.Identity.Value
	})

	return d, nil
}

func upsertLess(a, b Upsert) bool {
	if a.Entity != b.Entity {
		return a.Entity < b.Entity
	}
	return a.Identity.Value < b.Identity.Value
}

// Apply writes an incoming delta into the local store inside one provider
// transaction: either everything lands or nothing does. Conflict resolution
// is last-write-wins on the record's modification timestamp; a strictly
// newer local record survives. Reapplying the same delta never changes
// state.
func (e *Engine) Apply(ctx context.Context, d *Delta) error {
	// Resolve schemas up front so an unknown entity aborts before any write.
	known := make(map[string]map[string]struct{})
	for _, u := range d.Upserts {
		if _, ok := known[u.Entity]; ok {
			continue
		}
		fields, err := e.provider.SchemaFields(u.Entity)
		if err != nil {
			return fmt.Errorf("resolving schema for %q: %w", u.Entity, err)
		}
		set := make(map[string]struct{}, len(fields))
		for _, f := range fields {
			set[f] = struct{}{}
		}
		known[u.Entity] = set
	}

	return e.provider.InTx(ctx, func(tx Tx) error {
		for _, del := range d.Deletes {
			local, err := tx.Lookup(del.Entity, del.Identity)
			if err != nil {
				return fmt.Errorf("looking up %s/%s: %w", del.Entity, del.Identity.Value, err)
			}
			if local == nil {
				continue
			}
			if local.ModifiedAt.After(del.DeletedAt) {
				continue // local wins
			}
			if err := tx.Remove(del.Entity, del.Identity, del.DeletedAt); err != nil {
				return fmt.Errorf("removing %s/%s: %w", del.Entity, del.Identity.Value, err)
			}
		}

		for _, u := range d.Upserts {
			local, err := tx.Lookup(u.Entity, u.Identity)
			if err != nil {
				return fmt.Errorf("looking up %s/%s: %w", u.Entity, u.Identity.Value, err)
			}
			if local != nil && local.ModifiedAt.After(u.ModifiedAt) {
				continue // local wins
			}

			// Unknown attributes from a newer remote schema are dropped,
			// not errored.
			fields := make(map[string]any, len(u.Fields))
			for name, value := range u.Fields {
				if _, ok := known[u.Entity][name]; ok {
					fields[name] = value
				}
			}

			if err := tx.Upsert(u.Entity, u.Identity, fields, u.ModifiedAt); err != nil {
				return fmt.Errorf("upserting %s/%s: %w", u.Entity, u.Identity.Value, err)
			}
		}
		return nil
	})
}
