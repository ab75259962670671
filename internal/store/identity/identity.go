// Package identity manages the local device identity: a stable peer id and
// an ed25519 key whose fingerprint peers pin during pairing.
package identity

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ledgerlink/pairsync/internal/common"
	"github.com/ledgerlink/pairsync/internal/securestore"
)

const storeKey = "local_identity"

// Identity is generated once on first use and is stable for the device's
// lifetime until explicitly reset.
type Identity struct {
	PeerID      string            `json:"peerId"`
	Fingerprint string            `json:"publicKeyFingerprint"`
	PublicKey   ed25519.PublicKey `json:"publicKey"`
	PrivateKey  []byte            `json:"privateKey"`
}

// Manager loads the identity from the secure store, generating and
// persisting one if none exists, and caches it in memory.
type Manager struct {
	store securestore.Store

	mu     sync.Mutex
	cached *Identity
}

func NewManager(store securestore.Store) *Manager {
	return &Manager{store: store}
}

// Local returns the device identity, creating it on first use.
func (m *Manager) Local() (*Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached != nil {
		return m.cached, nil
	}

	blob, err := m.store.Load(storeKey)
	switch {
	case err == nil:
		var id Identity
		if err := json.Unmarshal(blob, &id); err != nil {
			return nil, fmt.Errorf("%w: decoding identity: %v", common.ErrorStoreBackend, err)
		}
		m.cached = &id
		return m.cached, nil
	case errors.Is(err, common.ErrorNotFound):
		// First use: generate and persist.
	default:
		return nil, fmt.Errorf("loading identity: %w", err)
	}

	id, err := generate()
	if err != nil {
		return nil, err
	}
	blob, err = json.Marshal(id)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding identity: %v", common.ErrorStoreBackend, err)
	}
	if err := m.store.Save(storeKey, blob); err != nil {
		return nil, fmt.Errorf("persisting identity: %w", err)
	}
	m.cached = id
	return id, nil
}

// Reset wipes the stored identity; the next Local call generates a new one.
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Remove(storeKey); err != nil {
		return fmt.Errorf("removing identity: %w", err)
	}
	m.cached = nil
	return nil
}

func generate() (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("generating identity key: %w", err)
	}
	sum := sha256.Sum256(pub)
	return &Identity{
		PeerID:      uuid.NewString(),
		Fingerprint: hex.EncodeToString(sum[:]),
		PublicKey:   pub,
		PrivateKey:  priv,
	}, nil
}
