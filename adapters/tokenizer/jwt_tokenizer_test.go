package tokenizer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyward/vouch/core"
)

func testKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

func testSession() *core.DeviceSession {
	return &core.DeviceSession{
		ID:        "b2e9a1a0-7c6e-4f2a-9c38-0a54d4f1e9be",
		Anchor:    10000,
		DeviceKey: []byte{0xAA, 0xBB, 0xCC},
		IssuedAt:  time.Unix(1700000000, 0),
		ExpiresAt: time.Now().Add(30 * time.Minute),
	}
}

func TestSessionTokenRoundTrip(t *testing.T) {
	codec := NewJWTCodec(testKey(t))
	session := testSession()

	token, err := codec.SessionToToken(session)
	require.NoError(t, err)

	parsed, err := codec.TokenToSession(token)
	require.NoError(t, err)

	assert.Equal(t, session.ID, parsed.ID)
	assert.Equal(t, session.Anchor, parsed.Anchor)
	assert.Equal(t, session.DeviceKey, parsed.DeviceKey)
	assert.WithinDuration(t, session.IssuedAt, parsed.IssuedAt, time.Second)
	assert.WithinDuration(t, session.ExpiresAt, parsed.ExpiresAt, time.Second)
}

func TestExpiredTokenIsRejected(t *testing.T) {
	codec := NewJWTCodec(testKey(t))
	session := testSession()
	session.ExpiresAt = time.Now().Add(-time.Minute)

	token, err := codec.SessionToToken(session)
	require.NoError(t, err)

	_, err = codec.TokenToSession(token)
	assert.ErrorIs(t, err, core.ErrSessionExpired)
}

func TestForeignKeyIsRejected(t *testing.T) {
	signer := NewJWTCodec(testKey(t))
	verifier := NewJWTCodec(testKey(t))

	token, err := signer.SessionToToken(testSession())
	require.NoError(t, err)

	_, err = verifier.TokenToSession(token)
	assert.ErrorIs(t, err, core.ErrInvalidSession)
}

func TestGarbageTokenIsRejected(t *testing.T) {
	codec := NewJWTCodec(testKey(t))

	_, err := codec.TokenToSession("not-a-token")
	assert.ErrorIs(t, err, core.ErrInvalidSession)
}

func TestForeignAudienceIsRejected(t *testing.T) {
	key := testKey(t)
	codec := NewJWTCodec(key)

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "10000",
			ID:        "sess",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Audience:  jwt.ClaimStrings{"vouch:other"},
		},
		DeviceKey: "0xaabb",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(key)
	require.NoError(t, err)

	_, err = codec.TokenToSession(token)
	assert.ErrorIs(t, err, core.ErrInvalidSession)
}

func TestForeignSigningMethodIsRejected(t *testing.T) {
	key := testKey(t)
	codec := NewJWTCodec(key)

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "10000",
			ID:        "sess",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Audience:  jwt.ClaimStrings{AudienceSession},
		},
		DeviceKey: "0xaabb",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("shared-secret"))
	require.NoError(t, err)

	_, err = codec.TokenToSession(token)
	assert.ErrorIs(t, err, core.ErrInvalidSession)
}
