package pairing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlink/pairsync/internal/common"
)

func TestSessions_CreateAndValidate(t *testing.T) {
	r := NewSessions()
	s, p, err := r.Create(time.Minute, common.DefaultServiceType, "")
	require.NoError(t, err)

	assert.Equal(t, s.ID, p.SessionID)
	assert.Equal(t, s.Secret, p.Secret)
	assert.Len(t, s.Secret, 64) // 32 random bytes hex-encoded

	require.NoError(t, r.Validate(s.ID, s.Secret))
}

func TestSessions_ValidateUnknown(t *testing.T) {
	r := NewSessions()
	err := r.Validate("no-such-session", "secret")
	require.ErrorIs(t, err, common.ErrUnknownSession)
}

func TestSessions_ValidateWrongSecret(t *testing.T) {
	r := NewSessions()
	s, _, err := r.Create(time.Minute, common.DefaultServiceType, "")
	require.NoError(t, err)

	err = r.Validate(s.ID, "wrong")
	require.ErrorIs(t, err, common.ErrSecretMismatch)
}

func TestSessions_ValidateExpiredDropsSession(t *testing.T) {
	r := NewSessions()
	s, _, err := r.Create(-time.Second, common.DefaultServiceType, "")
	require.NoError(t, err)

	err = r.Validate(s.ID, s.Secret)
	require.ErrorIs(t, err, common.ErrExpiredSession)

	// The expired session is gone; a retry reports unknown.
	err = r.Validate(s.ID, s.Secret)
	require.ErrorIs(t, err, common.ErrUnknownSession)
}

func TestSessions_ConsumeAndSweep(t *testing.T) {
	r := NewSessions()
	s1, _, err := r.Create(time.Minute, common.DefaultServiceType, "")
	require.NoError(t, err)
	_, _, err = r.Create(-time.Second, common.DefaultServiceType, "")
	require.NoError(t, err)

	require.Equal(t, 2, r.Len())

	removed := r.Sweep(time.Now())
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, r.Len())

	r.Consume(s1.ID)
	assert.Equal(t, 0, r.Len())
	r.Consume(s1.ID) // no-op
}
