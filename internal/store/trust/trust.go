// Package trust persists the set of remote peers that completed the pairing
// handshake. The trust store is the authoritative answer to "is this peer
// allowed to sync".
package trust

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ledgerlink/pairsync/internal/common"
	"github.com/ledgerlink/pairsync/internal/securestore"
)

const storeKey = "trusted_peers"

// Record is durable proof that a remote peer completed the handshake.
type Record struct {
	PeerID      string     `json:"peerId"`
	DeviceName  string     `json:"deviceName"`
	Fingerprint string     `json:"publicKeyFingerprint"`
	PairedAt    time.Time  `json:"pairedAt"`
	LastSyncAt  *time.Time `json:"lastSuccessfulSyncAt,omitempty"`
}

// Store keeps trust records as one sealed blob in the secure store.
type Store struct {
	store securestore.Store
	mu    sync.Mutex
}

func NewStore(store securestore.Store) *Store {
	return &Store{store: store}
}

// load returns the current record map; absent blob means no peers yet.
func (s *Store) load() (map[string]Record, error) {
	blob, err := s.store.Load(storeKey)
	if errors.Is(err, common.ErrorNotFound) {
		return make(map[string]Record), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading trust records: %w", err)
	}

	records := make(map[string]Record)
	if err := json.Unmarshal(blob, &records); err != nil {
		return nil, fmt.Errorf("%w: decoding trust records: %v", common.ErrorStoreBackend, err)
	}
	return records, nil
}

func (s *Store) save(records map[string]Record) error {
	blob, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("%w: encoding trust records: %v", common.ErrorStoreBackend, err)
	}
	if err := s.store.Save(storeKey, blob); err != nil {
		return fmt.Errorf("saving trust records: %w", err)
	}
	return nil
}

// Save inserts or replaces the record for rec.PeerID.
func (s *Store) Save(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	records[rec.PeerID] = rec
	return s.save(records)
}

// Get returns the record for peerID, or common.ErrorNotFound.
func (s *Store) Get(peerID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return nil, err
	}
	rec, ok := records[peerID]
	if !ok {
		return nil, fmt.Errorf("trust record %s: %w", peerID, common.ErrorNotFound)
	}
	return &rec, nil
}

// All lists every trust record, ordered by device name then peer id.
func (s *Store) All() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DeviceName != out[j].DeviceName {
			return out[i].DeviceName < out[j].DeviceName
		}
		return out[i].PeerID < out[j].PeerID
	})
	return out, nil
}

// Remove forgets one peer. Removing an unknown peer is a no-op.
func (s *Store) Remove(peerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := records[peerID]; !ok {
		return nil
	}
	delete(records, peerID)
	return s.save(records)
}

// RemoveAll forgets every peer.
func (s *Store) RemoveAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(make(map[string]Record))
}

// FindSoleByDeviceName returns the record when exactly one trusted peer has
// the given device name. With zero or several matches it reports false —
// the ambiguity of several same-named devices is a documented limitation,
// not something resolved implicitly.
func (s *Store) FindSoleByDeviceName(name string) (*Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return nil, false, err
	}

	var found *Record
	for _, rec := range records {
		if rec.DeviceName != name {
			continue
		}
		if found != nil {
			return nil, false, nil
		}
		rec := rec
		found = &rec
	}
	if found == nil {
		return nil, false, nil
	}
	return found, true, nil
}

// MigrateID moves a record to a new peer id (device identity drift after a
// reinstall). The old record is removed in the same write.
func (s *Store) MigrateID(oldID, newID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	rec, ok := records[oldID]
	if !ok {
		return fmt.Errorf("trust record %s: %w", oldID, common.ErrorNotFound)
	}
	delete(records, oldID)
	rec.PeerID = newID
	records[newID] = rec
	return s.save(records)
}

// TouchSync records a successful sync with the peer.
func (s *Store) TouchSync(peerID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	rec, ok := records[peerID]
	if !ok {
		return fmt.Errorf("trust record %s: %w", peerID, common.ErrorNotFound)
	}
	at = at.UTC()
	rec.LastSyncAt = &at
	records[peerID] = rec
	return s.save(records)
}

// Maintain deduplicates records sharing a device name: the survivor is the
// one synced most recently (paired most recently when neither ever synced).
// After it returns, at most one record exists per device name.
func (s *Store) Maintain() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}

	best := make(map[string]Record)
	for _, rec := range records {
		cur, ok := best[rec.DeviceName]
		if !ok || recencyOf(rec).After(recencyOf(cur)) {
			best[rec.DeviceName] = rec
		}
	}
	if len(best) == len(records) {
		return nil
	}

	kept := make(map[string]Record, len(best))
	for _, rec := range best {
		kept[rec.PeerID] = rec
	}
	return s.save(kept)
}

func recencyOf(rec Record) time.Time {
	if rec.LastSyncAt != nil {
		return *rec.LastSyncAt
	}
	return rec.PairedAt
}
