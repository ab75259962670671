package securestore

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/argon2"

	"github.com/ledgerlink/pairsync/internal/common"
	"github.com/ledgerlink/pairsync/internal/shared"
)

// envelope is the on-disk format: a random salt for key derivation plus an
// AES-GCM box containing the JSON-encoded key-value map.
type envelope struct {
	Salt  []byte `json:"salt"`
	Nonce []byte `json:"nonce"`
	Box   []byte `json:"box"`
}

// FileStore is a Store sealed into a single file. The encryption key is
// derived from the passphrase with argon2id. Writes are atomic
// (write-to-temp + rename) so a crash mid-save keeps the previous state.
type FileStore struct {
	path   string
	key    []byte
	salt   []byte
	values map[string][]byte

	mu sync.Mutex
}

func errNotFound(key string) error {
	return fmt.Errorf("secure store key %q: %w", key, common.ErrorNotFound)
}

// OpenFile opens (or initializes) the secure store at path. The passphrase
// is wiped before returning.
func OpenFile(path string, passphrase []byte) (*FileStore, error) {
	defer shared.WipeByteArray(passphrase)

	s := &FileStore{path: path}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		s.salt = shared.GenerateRandByteArray(16)
		s.key = deriveKey(passphrase, s.salt)
		s.values = make(map[string][]byte)
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", common.ErrorStoreBackend, path, err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: decoding envelope: %v", common.ErrorStoreBackend, err)
	}

	s.salt = env.Salt
	s.key = deriveKey(passphrase, env.Salt)

	plaintext, err := open(env.Box, env.Nonce, s.key)
	if err != nil {
		return nil, fmt.Errorf("%w: unsealing store (wrong passphrase?): %v", common.ErrorStoreBackend, err)
	}
	if err := json.Unmarshal(plaintext, &s.values); err != nil {
		return nil, fmt.Errorf("%w: decoding store contents: %v", common.ErrorStoreBackend, err)
	}
	return s, nil
}

// deriveKey derives a 32-byte AES key with argon2id.
func deriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, 32)
}

func seal(plaintext, key []byte) (box, nonce []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}
	nonce = shared.GenerateRandByteArray(aesgcm.NonceSize())
	return aesgcm.Seal(nil, nonce, plaintext, nil), nonce, nil
}

func open(box, nonce, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return aesgcm.Open(nil, nonce, box, nil)
}

// flush seals the current map and atomically replaces the store file.
// Caller must hold s.mu.
func (s *FileStore) flush() error {
	plaintext, err := json.Marshal(s.values)
	if err != nil {
		return fmt.Errorf("%w: encoding store contents: %v", common.ErrorStoreBackend, err)
	}

	box, nonce, err := seal(plaintext, s.key)
	if err != nil {
		return fmt.Errorf("%w: sealing store: %v", common.ErrorStoreBackend, err)
	}

	data, err := json.Marshal(envelope{Salt: s.salt, Nonce: nonce, Box: box})
	if err != nil {
		return fmt.Errorf("%w: encoding envelope: %v", common.ErrorStoreBackend, err)
	}

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("%w: creating store dir: %v", common.ErrorStoreBackend, err)
	}
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("%w: writing %s: %v", common.ErrorStoreBackend, tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("%w: replacing %s: %v", common.ErrorStoreBackend, s.path, err)
	}
	return nil
}

func (s *FileStore) Save(key string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.values[key]
	cp := make([]byte, len(blob))
	copy(cp, blob)
	s.values[key] = cp

	if err := s.flush(); err != nil {
		// Keep the in-memory view consistent with disk.
		if had {
			s.values[key] = prev
		} else {
			delete(s.values, key)
		}
		return err
	}
	return nil
}

func (s *FileStore) Load(key string) ([]byte, error) {
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

func (s *FileStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.values[key]; !ok {
		return nil
	}
	delete(s.values, key)
	return s.flush()
}
