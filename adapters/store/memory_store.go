package store

import (
	"context"
	"sync"
	"time"

	"github.com/keyward/vouch/core"
	"github.com/keyward/vouch/ports"
)

type memoryRecord struct {
	sig       core.PendingSignature
	expiresAt time.Time
}

// MemoryStore is an in-memory implementation of the CertificationStore interface
type MemoryStore struct {
	records map[string]memoryRecord
	salt    []byte
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory certification store
func NewMemoryStore() ports.CertificationStore {
	return &MemoryStore{
		records: make(map[string]memoryRecord),
	}
}

// Put stores a pending signature for the delegation's remaining lifetime
func (s *MemoryStore) Put(ctx context.Context, key string, sig core.PendingSignature, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[key] = memoryRecord{
		sig:       sig,
		expiresAt: time.Now().Add(ttl),
	}

	return nil
}

// Get loads a pending signature if one exists under the key
func (s *MemoryStore) Get(ctx context.Context, key string) (core.PendingSignature, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.records[key]
	if !exists {
		return core.PendingSignature{}, false, nil
	}

	// Expired records read as absent, matching the Redis behaviour
	if time.Now().After(rec.expiresAt) {
		return core.PendingSignature{}, false, nil
	}

	return rec.sig, true, nil
}

// EnsureSalt stores candidate on first use and returns the salt in effect
func (s *MemoryStore) EnsureSalt(ctx context.Context, candidate []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.salt == nil {
		s.salt = append([]byte(nil), candidate...)
	}

	return append([]byte(nil), s.salt...), nil
}
