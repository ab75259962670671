package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlink/pairsync/internal/securestore"
)

func TestLocal_GeneratesOnceAndCaches(t *testing.T) {
	m := NewManager(securestore.NewMemoryStore())

	first, err := m.Local()
	require.NoError(t, err)
	assert.NotEmpty(t, first.PeerID)
	assert.Len(t, first.Fingerprint, 64)
	assert.Len(t, []byte(first.PublicKey), 32)

	second, err := m.Local()
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestLocal_StableAcrossManagers(t *testing.T) {
	store := securestore.NewMemoryStore()

	m1 := NewManager(store)
	first, err := m1.Local()
	require.NoError(t, err)

	m2 := NewManager(store)
	reloaded, err := m2.Local()
	require.NoError(t, err)

	assert.Equal(t, first.PeerID, reloaded.PeerID)
	assert.Equal(t, first.Fingerprint, reloaded.Fingerprint)
}

func TestReset_GeneratesFreshIdentity(t *testing.T) {
	store := securestore.NewMemoryStore()
	m := NewManager(store)

	first, err := m.Local()
	require.NoError(t, err)

	require.NoError(t, m.Reset())

	next, err := m.Local()
	require.NoError(t, err)
	assert.NotEqual(t, first.PeerID, next.PeerID)
	assert.NotEqual(t, first.Fingerprint, next.Fingerprint)
}
