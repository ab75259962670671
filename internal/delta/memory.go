package delta

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/ledgerlink/pairsync/internal/common"
)

// MemoryProvider is an in-memory ChangeHistoryProvider. It backs the engine
// tests and is handy for embedding apps that keep their data set in memory.
// Cursors are the 8-byte big-endian sequence number of the last change.
type MemoryProvider struct {
	mu      sync.Mutex
	schema  map[string][]string
	records map[opKey]*Record
	log     []Change
	seq     uint64
}

// NewMemoryProvider creates a provider with the given entity schemas
// (entity name -> known attribute names).
func NewMemoryProvider(schema map[string][]string) *MemoryProvider {
	return &MemoryProvider{
		schema:  schema,
		records: make(map[opKey]*Record),
	}
}

func seqCursor(seq uint64) Cursor {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

func cursorSeq(c Cursor) (uint64, error) {
	if len(c) == 0 {
		return 0, nil
	}
	if len(c) != 8 {
		return 0, fmt.Errorf("%w: bad memory cursor length %d", common.ErrCursorRestore, len(c))
	}
	return binary.BigEndian.Uint64(c), nil
}

// Put records a local insert/update and appends it to the change feed.
func (p *MemoryProvider) Put(entity string, id Identity, fields map[string]any, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.write(entity, id, fields, at)
}

// Drop records a local delete and appends a tombstone to the change feed.
func (p *MemoryProvider) Drop(entity string, id Identity, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.erase(entity, id, at)
}

// write and erase assume p.mu is held.
func (p *MemoryProvider) write(entity string, id Identity, fields map[string]any, at time.Time) {
	key := keyOf(entity, id)
	kind := KindUpdate
	if _, ok := p.records[key]; !ok {
		kind = KindInsert
	}
	p.records[key] = &Record{Fields: cloneFields(fields), ModifiedAt: at}
	p.seq++
	p.log = append(p.log, Change{
		Entity:   entity,
		Kind:     kind,
		Identity: id,
		Fields:   cloneFields(fields),
		At:       at,
		Cursor:   seqCursor(p.seq),
	})
}

func (p *MemoryProvider) erase(entity string, id Identity, at time.Time) {
	delete(p.records, keyOf(entity, id))
	p.seq++
	p.log = append(p.log, Change{
		Entity:   entity,
		Kind:     KindDelete,
		Identity: id,
		At:       at,
		Cursor:   seqCursor(p.seq),
	})
}

// Get returns a copy of the stored record, or nil.
func (p *MemoryProvider) Get(entity string, id Identity) *Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.records[keyOf(entity, id)]
	if !ok {
		return nil
	}
	return &Record{Fields: cloneFields(r.Fields), ModifiedAt: r.ModifiedAt}
}

// Len reports the number of live records.
func (p *MemoryProvider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

func (p *MemoryProvider) FetchChanges(ctx context.Context, since Cursor) ([]Change, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	after, err := cursorSeq(since)
	if err != nil {
		return nil, err
	}

	var out []Change
	for _, c := range p.log {
		seq, err := cursorSeq(c.Cursor)
		if err != nil {
			return nil, err
		}
		if seq > after {
			out = append(out, c)
		}
	}
	return out, nil
}

func (p *MemoryProvider) SchemaFields(entity string) ([]string, error) {
	fields, ok := p.schema[entity]
	if !ok {
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownEntity, entity)
	}
	return fields, nil
}

func (p *MemoryProvider) InTx(ctx context.Context, fn func(Tx) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	tx := &memoryTx{
		p:       p,
		records: cloneRecordMap(p.records),
		log:     append([]Change(nil), p.log...),
		seq:     p.seq,
	}
	if err := fn(tx); err != nil {
		return err
	}

	p.records = tx.records
	p.log = tx.log
	p.seq = tx.seq
	return nil
}

type memoryTx struct {
	p       *MemoryProvider
	records map[opKey]*Record
	log     []Change
	seq     uint64
}

func (t *memoryTx) Lookup(entity string, id Identity) (*Record, error) {
	r, ok := t.records[keyOf(entity, id)]
	if !ok {
		return nil, nil
	}
	return &Record{Fields: cloneFields(r.Fields), ModifiedAt: r.ModifiedAt}, nil
}

func (t *memoryTx) Upsert(entity string, id Identity, fields map[string]any, modifiedAt time.Time) error {
	key := keyOf(entity, id)
	kind := KindUpdate
	if _, ok := t.records[key]; !ok {
		kind = KindInsert
	}
	t.records[key] = &Record{Fields: cloneFields(fields), ModifiedAt: modifiedAt}
	t.seq++
	t.log = append(t.log, Change{
		Entity:   entity,
		Kind:     kind,
		Identity: id,
		Fields:   cloneFields(fields),
		At:       modifiedAt,
		Cursor:   seqCursor(t.seq),
	})
	return nil
}

func (t *memoryTx) Remove(entity string, id Identity, deletedAt time.Time) error {
	delete(t.records, keyOf(entity, id))
	t.seq++
	t.log = append(t.log, Change{
		Entity:   entity,
		Kind:     KindDelete,
		Identity: id,
		At:       deletedAt,
		Cursor:   seqCursor(t.seq),
	})
	return nil
}

func cloneFields(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneRecordMap(m map[opKey]*Record) map[opKey]*Record {
	out := make(map[opKey]*Record, len(m))
	for k, v := range m {
		out[k] = &Record{Fields: cloneFields(v.Fields), ModifiedAt: v.ModifiedAt}
	}
	return out
}
