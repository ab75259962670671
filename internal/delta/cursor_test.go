package delta

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerlink/pairsync/internal/common"
)

func TestCursorRoundTrip(t *testing.T) {
	cursors := []Cursor{
		seqCursor(1),
		seqCursor(42),
		Cursor("opaque-provider-token"),
		Cursor{0x00, 0xff, 0x10},
	}
	for _, c := range cursors {
		archived, err := ArchiveCursor(c)
		require.NoError(t, err)

		restored, err := RestoreCursor(archived)
		require.NoError(t, err)
		require.Equal(t, c, restored)
	}
}

func TestRestoreCursor_Garbage(t *testing.T) {
	_, err := RestoreCursor([]byte("not json"))
	require.ErrorIs(t, err, common.ErrCursorRestore)
}

func TestRestoreCursor_WrongEnvelopeVersion(t *testing.T) {
	_, err := RestoreCursor([]byte(`{"v":99,"cursor":"AA=="}`))
	require.ErrorIs(t, err, common.ErrCursorRestore)
}

func TestRestoreCursor_BadBase64(t *testing.T) {
	_, err := RestoreCursor([]byte(`{"v":1,"cursor":"%%%"}`))
	require.ErrorIs(t, err, common.ErrCursorRestore)
}
