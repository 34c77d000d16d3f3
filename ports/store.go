package ports

import (
	"context"
	"time"

	"github.com/keyward/vouch/core"
)

// CertificationStore persists the authority's pending signature records and
// its identity salt.
type CertificationStore interface {
	// Put stores a pending signature under key. The record disappears after
	// ttl, which callers set to the delegation's remaining lifetime.
	Put(ctx context.Context, key string, sig core.PendingSignature, ttl time.Duration) error

	// Get loads a pending signature. ok is false when the key is unknown or
	// the record already expired.
	Get(ctx context.Context, key string) (sig core.PendingSignature, ok bool, err error)

	// EnsureSalt stores candidate as the provider salt if none is set yet
	// and returns the salt actually in effect.
	EnsureSalt(ctx context.Context, candidate []byte) ([]byte, error)
}
