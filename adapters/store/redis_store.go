package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keyward/vouch/core"
	"github.com/keyward/vouch/ports"
)

// saltKey holds the provider salt shared by every vouchd instance.
const saltKey = "vouch:salt"

// RedisStore is a Redis implementation of the CertificationStore interface
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis certification store
func NewRedisStore(client *redis.Client) ports.CertificationStore {
	return &RedisStore{
		client: client,
		prefix: "vouch:pending:",
	}
}

// Put stores a pending signature for the delegation's remaining lifetime
func (s *RedisStore) Put(ctx context.Context, key string, sig core.PendingSignature, ttl time.Duration) error {
	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("failed to encode pending signature: %w", err)
	}

	// Set key with expiration
	if err := s.client.Set(ctx, s.prefix+key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store pending signature: %w", err)
	}

	return nil
}

// Get loads a pending signature if one exists under the key
func (s *RedisStore) Get(ctx context.Context, key string) (core.PendingSignature, bool, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.PendingSignature{}, false, nil
	}
	if err != nil {
		return core.PendingSignature{}, false, fmt.Errorf("failed to load pending signature: %w", err)
	}

	var sig core.PendingSignature
	if err := json.Unmarshal(val, &sig); err != nil {
		return core.PendingSignature{}, false, fmt.Errorf("failed to decode pending signature: %w", err)
	}

	return sig, true, nil
}

// EnsureSalt stores candidate on first boot and returns the salt in effect
func (s *RedisStore) EnsureSalt(ctx context.Context, candidate []byte) ([]byte, error) {
	// SetNX keeps the first salt when several instances race at boot
	ok, err := s.client.SetNX(ctx, saltKey, candidate, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize salt: %w", err)
	}
	if ok {
		return candidate, nil
	}

	val, err := s.client.Get(ctx, saltKey).Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to load salt: %w", err)
	}

	return val, nil
}
