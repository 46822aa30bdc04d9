package jwt

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestManager_IssueAndDecode(t *testing.T) {
	m := NewManager(testSecret, "usercenter", 30*time.Minute)

	token, expiresAt, err := m.Issue("alice")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), expiresAt, 2*time.Second)

	claims, err := m.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "usercenter", claims.Issuer)
	assert.Equal(t, expiresAt.Unix(), claims.ExpiresAt.Unix())
	assert.NotEmpty(t, claims.ID)
}

func TestManager_TokensAreUnique(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewManager(testSecret, "usercenter", time.Hour, WithClock(func() time.Time { return fixed }))

	first, _, err := m.Issue("alice")
	require.NoError(t, err)
	second, _, err := m.Issue("alice")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestManager_Decode_Expired(t *testing.T) {
	issuedAt := time.Now().Add(-2 * time.Hour)
	issuer := NewManager(testSecret, "usercenter", time.Hour, WithClock(func() time.Time { return issuedAt }))
	token, _, err := issuer.Issue("alice")
	require.NoError(t, err)

	m := NewManager(testSecret, "usercenter", time.Hour)
	_, err = m.Decode(token)
	assert.ErrorIs(t, err, ErrExpired)
	assert.ErrorIs(t, err, ErrTokenInvalid)
	assert.NotErrorIs(t, err, ErrInvalidSignature)
}

func TestManager_Decode_InvalidSignature(t *testing.T) {
	m := NewManager(testSecret, "usercenter", time.Hour)
	token, _, err := m.Issue("alice")
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		other := NewManager(strings.Repeat("z", 32), "usercenter", time.Hour)
		_, err := other.Decode(token)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("tampered signature", func(t *testing.T) {
		parts := strings.Split(token, ".")
		require.Len(t, parts, 3)
		sig := []byte(parts[2])
		if sig[0] == 'A' {
			sig[0] = 'B'
		} else {
			sig[0] = 'A'
		}
		_, err := m.Decode(parts[0] + "." + parts[1] + "." + string(sig))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("algorithm none", func(t *testing.T) {
		claims := jwt.RegisteredClaims{
			Issuer:    "usercenter",
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = m.Decode(unsigned)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("other hmac algorithm", func(t *testing.T) {
		claims := jwt.RegisteredClaims{
			Issuer:    "usercenter",
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = m.Decode(signed)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})
}

func TestManager_Decode_Malformed(t *testing.T) {
	m := NewManager(testSecret, "usercenter", time.Hour)

	_, err := m.Decode("not-a-token")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = m.Decode("")
	assert.ErrorIs(t, err, ErrMalformed)

	t.Run("missing subject", func(t *testing.T) {
		claims := jwt.RegisteredClaims{
			Issuer:    "usercenter",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = m.Decode(signed)
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("missing expiry", func(t *testing.T) {
		claims := jwt.RegisteredClaims{Issuer: "usercenter", Subject: "alice"}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = m.Decode(signed)
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("foreign issuer", func(t *testing.T) {
		other := NewManager(testSecret, "someone-else", time.Hour)
		token, _, err := other.Issue("alice")
		require.NoError(t, err)

		_, err = m.Decode(token)
		assert.ErrorIs(t, err, ErrMalformed)
	})
}

func TestManager_Issue_EmptySubject(t *testing.T) {
	m := NewManager(testSecret, "usercenter", time.Hour)
	_, _, err := m.Issue("")
	assert.ErrorIs(t, err, ErrMalformed)
}
