package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyward/vouch/core"
)

func TestMemoryStorePutGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	sig := core.PendingSignature{
		UserKey:     core.UserKey{0x01},
		SessionKey:  core.SessionKey{0x02},
		Expiration:  42,
		Signature:   []byte{0x03},
		CertifiedAt: 7,
	}
	require.NoError(t, s.Put(ctx, "k", sig, time.Minute))

	got, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sig, got)

	_, ok, err = s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", core.PendingSignature{Expiration: 1}, -time.Second))

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreEnsureSaltKeepsFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, err := s.EnsureSalt(ctx, []byte{0x01, 0x02})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, first)

	second, err := s.EnsureSalt(ctx, []byte{0x09, 0x09})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Callers get their own copy
	second[0] = 0xFF
	again, err := s.EnsureSalt(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, again)
}
