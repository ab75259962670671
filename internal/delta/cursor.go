package delta

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/ledgerlink/pairsync/internal/common"
)

// cursorEnvelope versions the archived form so future layout changes stay
// detectable.
type cursorEnvelope struct {
	V      int    `json:"v"`
	Cursor string `json:"cursor"`
}

const cursorEnvelopeVersion = 1

// ArchiveCursor serializes a cursor for persistence in the checkpoint store.
func ArchiveCursor(c Cursor) ([]byte, error) {
	env := cursorEnvelope{V: cursorEnvelopeVersion, Cursor: base64.StdEncoding.EncodeToString(c)}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCursorArchive, err)
	}
	return data, nil
}

// RestoreCursor is the inverse of ArchiveCursor. For any provider-produced
// cursor c, RestoreCursor(ArchiveCursor(c)) == c.
func RestoreCursor(data []byte) (Cursor, error) {
	var env cursorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCursorRestore, err)
	}
	if env.V != cursorEnvelopeVersion {
		return nil, fmt.Errorf("%w: unsupported envelope version %d", common.ErrCursorRestore, env.V)
	}
	raw, err := base64.StdEncoding.DecodeString(env.Cursor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCursorRestore, err)
	}
	return Cursor(raw), nil
}
