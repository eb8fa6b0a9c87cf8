package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	m := NewSessionManager("secret", 1)
	sid := NewSessionID()
	tok, err := m.Issue(sid)
	require.NoError(t, err)

	claims, err := m.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, sid, claims.SessionID)
}

func TestVerifyRejectsForeignAndExpiredTokens(t *testing.T) {
	m := NewSessionManager("secret", 1)
	tok, err := NewSessionManager("other", 1).Issue(NewSessionID())
	require.NoError(t, err)
	_, err = m.Verify(tok)
	assert.Error(t, err)

	expired := &SessionManager{secretKey: []byte("secret"), duration: -time.Minute}
	tok, err = expired.Issue(NewSessionID())
	require.NoError(t, err)
	_, err = m.Verify(tok)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	tok, err = m.Issue("not-a-uuid")
	require.NoError(t, err)
	_, err = m.Verify(tok)
	assert.Error(t, err)
}

func TestEmptySecretStillWorks(t *testing.T) {
	m := NewSessionManager("", 0)
	tok, err := m.Issue(NewSessionID())
	require.NoError(t, err)
	_, err = m.Verify(tok)
	assert.NoError(t, err)
	assert.Len(t, GenerateRandomString(8), 16)
}
