package securestore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerlink/pairsync/internal/common"
)

func pass() []byte { return []byte("correct horse battery staple") }

func TestFileStore_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secure.bin")

	s, err := OpenFile(path, pass())
	require.NoError(t, err)

	require.NoError(t, s.Save("identity", []byte(`{"peer":"p1"}`)))

	v, err := s.Load("identity")
	require.NoError(t, err)
	require.Equal(t, []byte(`{"peer":"p1"}`), v)
}

func TestFileStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secure.bin")

	s, err := OpenFile(path, pass())
	require.NoError(t, err)
	require.NoError(t, s.Save("k", []byte("v")))

	reopened, err := OpenFile(path, pass())
	require.NoError(t, err)

	v, err := reopened.Load("k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), v)
}

func TestFileStore_WrongPassphraseFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secure.bin")

	s, err := OpenFile(path, pass())
	require.NoError(t, err)
	require.NoError(t, s.Save("k", []byte("v")))

	_, err = OpenFile(path, []byte("not the passphrase"))
	require.Error(t, err)
	require.ErrorIs(t, err, common.ErrorStoreBackend)
}

func TestFileStore_LoadMissingKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secure.bin")

	s, err := OpenFile(path, pass())
	require.NoError(t, err)

	_, err = s.Load("absent")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestFileStore_RemoveIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secure.bin")

	s, err := OpenFile(path, pass())
	require.NoError(t, err)
	require.NoError(t, s.Save("k", []byte("v")))

	require.NoError(t, s.Remove("k"))
	require.NoError(t, s.Remove("k"))

	_, err = s.Load("k")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestFileStore_CorruptFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secure.bin")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))

	_, err := OpenFile(path, pass())
	require.Error(t, err)
	require.ErrorIs(t, err, common.ErrorStoreBackend)
}

func TestMemoryStore_Contract(t *testing.T) {
	s := NewMemoryStore()

	require.NoError(t, s.Save("a", []byte{1}))
	v, err := s.Load("a")
	require.NoError(t, err)
	require.Equal(t, []byte{1}, v)

	_, err = s.Load("b")
	require.True(t, errors.Is(err, common.ErrorNotFound))

	require.NoError(t, s.Remove("a"))
	require.NoError(t, s.Remove("a"))
}
