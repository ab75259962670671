// Package securestore persists small sensitive blobs (device identity,
// trusted peer records) in tamper-resistant storage. The on-disk
// implementation seals the whole store with AES-GCM under a key derived from
// a passphrase; platforms with an OS keychain can supply their own
// implementation of Store instead.
package securestore

import "sync"

// Store is a secure key-value capability over opaque blobs.
//
// Load returns common.ErrorNotFound when the key is absent. Remove is
// idempotent. Implementations must never silently drop data: a failed Save
// leaves the previous state intact.
type Store interface {
	Save(key string, blob []byte) error
	Load(key string) ([]byte, error)
	Remove(key string) error
}

// MemoryStore is an in-memory Store for tests.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

func (s *MemoryStore) Save(key string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(blob))
	copy(cp, blob)
	s.values[key] = cp
	return nil
}

func (s *MemoryStore) Load(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return nil, errNotFound(key)
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (s *MemoryStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}
