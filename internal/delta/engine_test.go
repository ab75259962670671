package delta

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlink/pairsync/internal/common"
)

var invoiceSchema = map[string][]string{
	"Invoice":  {"number", "total", "issuedAt"},
	"Customer": {"name", "email"},
}

func invoiceID(v string) Identity { return Identity{Key: "issuedAt", Value: v} }

func newTestProvider() *MemoryProvider {
	return NewMemoryProvider(invoiceSchema)
}

func ts(sec int) time.Time {
	return time.Date(2026, 3, 1, 10, 0, sec, 0, time.UTC)
}

func TestCreateDelta_FromBeginning(t *testing.T) {
	p := newTestProvider()
	p.Put("Invoice", invoiceID("a"), map[string]any{"number": "INV-1", "total": 100.0}, ts(1))
	p.Put("Invoice", invoiceID("b"), map[string]any{"number": "INV-2", "total": 50.0}, ts(2))

	e := NewEngine(p)
	d, err := e.CreateDelta(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, d.Upserts, 2)
	require.Empty(t, d.Deletes)
	require.Equal(t, seqCursor(2), Cursor(d.NewCursor))
}

func TestCreateDelta_SinceCursorYieldsOnlyNewer(t *testing.T) {
	p := newTestProvider()
	p.Put("Invoice", invoiceID("a"), map[string]any{"number": "INV-1"}, ts(1))

	e := NewEngine(p)
	first, err := e.CreateDelta(context.Background(), nil)
	require.NoError(t, err)

	p.Put("Invoice", invoiceID("b"), map[string]any{"number": "INV-2"}, ts(2))

	second, err := e.CreateDelta(context.Background(), first.NewCursor)
	require.NoError(t, err)
	require.Len(t, second.Upserts, 1)
	assert.Equal(t, "b", second.Upserts[0].Identity.Value)
}

func TestCreateDelta_EmptyFeed(t *testing.T) {
	p := newTestProvider()
	e := NewEngine(p)

	d, err := e.CreateDelta(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, d.Empty())
	assert.Empty(t, d.NewCursor)
}

func TestCreateDelta_DeleteSupersedesUpsert(t *testing.T) {
	p := newTestProvider()
	p.Put("Invoice", invoiceID("a"), map[string]any{"number": "INV-1"}, ts(1))
	p.Drop("Invoice", invoiceID("a"), ts(2))

	e := NewEngine(p)
	d, err := e.CreateDelta(context.Background(), nil)
	require.NoError(t, err)

	assert.Empty(t, d.Upserts)
	require.Len(t, d.Deletes, 1)
	assert.Equal(t, "a", d.Deletes[0].Identity.Value)
}

func TestCreateDelta_UpsertCancelsPendingDelete(t *testing.T) {
	p := newTestProvider()
	p.Put("Invoice", invoiceID("a"), map[string]any{"number": "INV-1"}, ts(1))
	p.Drop("Invoice", invoiceID("a"), ts(2))
	p.Put("Invoice", invoiceID("a"), map[string]any{"number": "INV-1b"}, ts(3))

	e := NewEngine(p)
	d, err := e.CreateDelta(context.Background(), nil)
	require.NoError(t, err)

	assert.Empty(t, d.Deletes)
	require.Len(t, d.Upserts, 1)
	assert.Equal(t, "INV-1b", d.Upserts[0].Fields["number"])
}

func TestCreateDelta_MalformedFeed(t *testing.T) {
	e := NewEngine(badProvider{})
	_, err := e.CreateDelta(context.Background(), nil)
	require.ErrorIs(t, err, common.ErrInvalidHistoryResult)
}

type badProvider struct{}

func (badProvider) FetchChanges(ctx context.Context, since Cursor) ([]Change, error) {
	return []Change{{Kind: "mutate"}}, nil
}
func (badProvider) SchemaFields(entity string) ([]string, error) { return nil, nil }
func (badProvider) InTx(ctx context.Context, fn func(Tx) error) error {
	return nil
}

func TestApply_Idempotent(t *testing.T) {
	src := newTestProvider()
	src.Put("Invoice", invoiceID("a"), map[string]any{"number": "INV-1", "total": 10.0}, ts(1))
	src.Drop("Invoice", invoiceID("b"), ts(2))

	e := NewEngine(src)
	d, err := e.CreateDelta(context.Background(), nil)
	require.NoError(t, err)

	dst := newTestProvider()
	dstEngine := NewEngine(dst)

	require.NoError(t, dstEngine.Apply(context.Background(), d))
	after := dst.Get("Invoice", invoiceID("a"))
	require.NotNil(t, after)

	require.NoError(t, dstEngine.Apply(context.Background(), d))
	again := dst.Get("Invoice", invoiceID("a"))
	require.Equal(t, after.Fields, again.Fields)
	require.Equal(t, after.ModifiedAt, again.ModifiedAt)
	require.Equal(t, 1, dst.Len())
}

func TestApply_LastWriteWins_LocalNewerSurvives(t *testing.T) {
	dst := newTestProvider()
	dst.Put("Invoice", invoiceID("a"), map[string]any{"number": "LOCAL"}, ts(5))

	d := &Delta{Upserts: []Upsert{{
		Entity:     "Invoice",
		Identity:   invoiceID("a"),
		Fields:     map[string]any{"number": "REMOTE"},
		ModifiedAt: ts(3),
	}}}

	require.NoError(t, NewEngine(dst).Apply(context.Background(), d))
	rec := dst.Get("Invoice", invoiceID("a"))
	assert.Equal(t, "LOCAL", rec.Fields["number"])
}

func TestApply_LastWriteWins_IncomingNewerOrEqualWins(t *testing.T) {
	for _, incomingAt := range []time.Time{ts(5), ts(7)} {
		dst := newTestProvider()
		dst.Put("Invoice", invoiceID("a"), map[string]any{"number": "LOCAL"}, ts(5))

		d := &Delta{Upserts: []Upsert{{
			Entity:     "Invoice",
			Identity:   invoiceID("a"),
			Fields:     map[string]any{"number": "REMOTE"},
			ModifiedAt: incomingAt,
		}}}

		require.NoError(t, NewEngine(dst).Apply(context.Background(), d))
		rec := dst.Get("Invoice", invoiceID("a"))
		assert.Equal(t, "REMOTE", rec.Fields["number"])
	}
}

func TestApply_DeleteSkippedWhenLocalNewer(t *testing.T) {
	dst := newTestProvider()
	dst.Put("Invoice", invoiceID("a"), map[string]any{"number": "LOCAL"}, ts(9))

	d := &Delta{Deletes: []Delete{{
		Entity: "Invoice", Identity: invoiceID("a"), DeletedAt: ts(4),
	}}}

	require.NoError(t, NewEngine(dst).Apply(context.Background(), d))
	require.NotNil(t, dst.Get("Invoice", invoiceID("a")))
}

func TestApply_DeleteRemovesOlderLocal(t *testing.T) {
	dst := newTestProvider()
	dst.Put("Invoice", invoiceID("a"), map[string]any{"number": "LOCAL"}, ts(2))

	d := &Delta{Deletes: []Delete{{
		Entity: "Invoice", Identity: invoiceID("a"), DeletedAt: ts(4),
	}}}

	require.NoError(t, NewEngine(dst).Apply(context.Background(), d))
	require.Nil(t, dst.Get("Invoice", invoiceID("a")))
}

func TestApply_UnknownFieldsIgnored(t *testing.T) {
	dst := newTestProvider()

	d := &Delta{Upserts: []Upsert{{
		Entity:   "Invoice",
		Identity: invoiceID("a"),
		Fields: map[string]any{
			"number":       "INV-1",
			"futureColumn": "from a newer schema",
		},
		ModifiedAt:    ts(1),
		SchemaVersion: 2,
	}}}

	require.NoError(t, NewEngine(dst).Apply(context.Background(), d))
	rec := dst.Get("Invoice", invoiceID("a"))
	require.NotNil(t, rec)
	assert.Equal(t, "INV-1", rec.Fields["number"])
	assert.NotContains(t, rec.Fields, "futureColumn")
}

func TestApply_UnknownEntityAbortsBeforeWrites(t *testing.T) {
	dst := newTestProvider()

	d := &Delta{Upserts: []Upsert{
		{Entity: "Invoice", Identity: invoiceID("a"), Fields: map[string]any{"number": "INV-1"}, ModifiedAt: ts(1)},
		{Entity: "Spaceship", Identity: invoiceID("x"), Fields: map[string]any{"warp": 9}, ModifiedAt: ts(1)},
	}}

	err := NewEngine(dst).Apply(context.Background(), d)
	require.ErrorIs(t, err, common.ErrUnknownEntity)
	require.Equal(t, 0, dst.Len())
}

// First full sync: everything live comes over as upserts, then an immediate
// follow-up since the new cursor is empty.
func TestScenario_FirstFullSyncThenEmpty(t *testing.T) {
	responder := newTestProvider()
	responder.Put("Invoice", invoiceID("a"), map[string]any{"number": "INV-1"}, ts(1))
	responder.Put("Customer", Identity{Key: "createdAt", Value: "c1"}, map[string]any{"name": "ACME"}, ts(2))
	responder.Put("Invoice", invoiceID("b"), map[string]any{"number": "INV-2"}, ts(3))
	responder.Drop("Invoice", invoiceID("b"), ts(4))

	e := NewEngine(responder)
	d, err := e.CreateDelta(context.Background(), nil)
	require.NoError(t, err)

	// One upsert per live record; the dropped invoice arrives as a delete.
	assert.Len(t, d.Upserts, 2)
	assert.Len(t, d.Deletes, 1)

	next, err := e.CreateDelta(context.Background(), d.NewCursor)
	require.NoError(t, err)
	assert.True(t, next.Empty())
}

// Conflict: both sides touched the same logical record while disconnected;
// the later write is the state on both peers after a sync in either direction.
func TestScenario_ConflictConvergesToLaterWrite(t *testing.T) {
	peerA := newTestProvider()
	peerB := newTestProvider()
	peerA.Put("Invoice", invoiceID("a"), map[string]any{"number": "FROM-A"}, ts(1))
	peerB.Put("Invoice", invoiceID("a"), map[string]any{"number": "FROM-B"}, ts(2))

	// A -> B
	dA, err := NewEngine(peerA).CreateDelta(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, NewEngine(peerB).Apply(context.Background(), dA))

	// B -> A
	dB, err := NewEngine(peerB).CreateDelta(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, NewEngine(peerA).Apply(context.Background(), dB))

	assert.Equal(t, "FROM-B", peerA.Get("Invoice", invoiceID("a")).Fields["number"])
	assert.Equal(t, "FROM-B", peerB.Get("Invoice", invoiceID("a")).Fields["number"])
}
