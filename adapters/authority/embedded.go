package authority

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/thejerf/abtime"
	"golang.org/x/crypto/hkdf"

	"github.com/keyward/vouch/core"
	"github.com/keyward/vouch/internal/origins"
	"github.com/keyward/vouch/ports"
)

const (
	// DefaultTTL applies when an authorization request leaves MaxTTL unset.
	DefaultTTL = 30 * time.Minute

	// MaxTTL caps the lifetime of any delegation, whatever was requested.
	MaxTTL = 30 * 24 * time.Hour

	// delegationDomainSeparator prefixes every signed delegation payload so
	// the signature cannot be replayed as any other statement kind.
	delegationDomainSeparator = "ic-request-auth-delegation"

	saltLen = 32
)

// Embedded is an in-process implementation of the SigningAuthority
// interface. It keeps the contract of the consensus-backed service:
// PrepareDelegation commits synchronously, the signature only becomes
// retrievable once the certification latency has passed.
type Embedded struct {
	registry ports.AnchorRegistry
	store    ports.CertificationStore
	tracker  *origins.Tracker
	clock    abtime.AbstractTime
	latency  time.Duration
	salt     []byte
}

// NewEmbedded creates a new embedded signing authority. The salt is drawn
// once and shared through the store, so every instance pointed at the same
// store derives the same identities.
func NewEmbedded(ctx context.Context, registry ports.AnchorRegistry, store ports.CertificationStore, tracker *origins.Tracker, clock abtime.AbstractTime, latency time.Duration) (*Embedded, error) {
	if clock == nil {
		clock = abtime.NewRealTime()
	}
	if latency < 0 {
		latency = 0
	}

	candidate := make([]byte, saltLen)
	if _, err := rand.Read(candidate); err != nil {
		return nil, fmt.Errorf("failed to generate salt candidate: %w", err)
	}
	salt, err := store.EnsureSalt(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize salt: %w", err)
	}

	return &Embedded{
		registry: registry,
		store:    store,
		tracker:  tracker,
		clock:    clock,
		latency:  latency,
		salt:     salt,
	}, nil
}

// PrepareDelegation schedules a signature binding sessionKey to the identity
// derived for (anchor, origin)
func (a *Embedded) PrepareDelegation(ctx context.Context, anchor core.AnchorNumber, origin core.Origin, sessionKey core.SessionKey, maxTTL time.Duration) (core.PreparedDelegation, error) {
	if len(sessionKey) == 0 {
		return core.PreparedDelegation{}, fmt.Errorf("session key must not be empty")
	}
	if _, err := a.registry.Anchor(ctx, anchor); err != nil {
		return core.PreparedDelegation{}, fmt.Errorf("failed to resolve anchor: %w", err)
	}

	ttl := clampTTL(maxTTL)
	now := a.clock.Now()
	expiration := core.TimestampOf(now.Add(ttl))

	userKey, identity, err := a.identityKey(anchor, origin)
	if err != nil {
		return core.PreparedDelegation{}, err
	}

	// Sign right away, withhold the signature until the certification instant
	delegation := core.Delegation{Pubkey: sessionKey, Expiration: expiration}
	record := core.PendingSignature{
		UserKey:     userKey,
		SessionKey:  sessionKey,
		Expiration:  expiration,
		Signature:   ed25519.Sign(identity, delegationSignedBytes(delegation)),
		CertifiedAt: core.TimestampOf(now.Add(a.latency)),
	}

	key := recordKey(anchor, origin, sessionKey, expiration)
	if err := a.store.Put(ctx, key, record, ttl); err != nil {
		return core.PreparedDelegation{}, fmt.Errorf("failed to store pending signature: %w", err)
	}

	if a.tracker != nil {
		a.tracker.Touch(origin)
	}

	return core.PreparedDelegation{UserKey: userKey, Expiration: expiration}, nil
}

// GetDelegation fetches the certified delegation for an earlier prepare call
func (a *Embedded) GetDelegation(ctx context.Context, anchor core.AnchorNumber, origin core.Origin, sessionKey core.SessionKey, expiration core.Timestamp) (core.SignedDelegation, bool, error) {
	key := recordKey(anchor, origin, sessionKey, expiration)

	record, ok, err := a.store.Get(ctx, key)
	if err != nil {
		return core.SignedDelegation{}, false, fmt.Errorf("failed to load pending signature: %w", err)
	}
	// Unknown records read as not ready rather than failing the poll
	if !ok {
		return core.SignedDelegation{}, false, nil
	}
	if core.TimestampOf(a.clock.Now()) < record.CertifiedAt {
		return core.SignedDelegation{}, false, nil
	}

	signed := core.SignedDelegation{
		Delegation: core.Delegation{
			Pubkey:     record.SessionKey,
			Expiration: record.Expiration,
		},
		Signature: record.Signature,
	}
	return signed, true, nil
}

// identityKey derives the stable ed25519 identity for one (anchor, origin)
// pair from the provider salt.
func (a *Embedded) identityKey(anchor core.AnchorNumber, origin core.Origin) (core.UserKey, ed25519.PrivateKey, error) {
	info := make([]byte, 8, 8+len(origin))
	binary.BigEndian.PutUint64(info, uint64(anchor))
	info = append(info, origin...)

	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, a.salt, nil, info), seed); err != nil {
		return nil, nil, fmt.Errorf("failed to derive identity key: %w", err)
	}

	identity := ed25519.NewKeyFromSeed(seed)
	return core.UserKey(identity.Public().(ed25519.PublicKey)), identity, nil
}

// clampTTL applies the provider default and upper bound to a requested
// delegation lifetime.
func clampTTL(requested time.Duration) time.Duration {
	if requested <= 0 {
		return DefaultTTL
	}
	if requested > MaxTTL {
		return MaxTTL
	}
	return requested
}

// delegationSignedBytes serializes a delegation into the digest the
// signature covers: a length prefixed domain separator, the session key and
// the big endian expiration.
func delegationSignedBytes(d core.Delegation) []byte {
	buf := make([]byte, 0, 1+len(delegationDomainSeparator)+len(d.Pubkey)+8)
	buf = append(buf, byte(len(delegationDomainSeparator)))
	buf = append(buf, delegationDomainSeparator...)
	buf = append(buf, d.Pubkey...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(d.Expiration))

	digest := sha256.Sum256(buf)
	return digest[:]
}

// VerifyDelegation checks a signed delegation against the user key it
// claims to chain back to.
func VerifyDelegation(userKey core.UserKey, signed core.SignedDelegation) error {
	if len(userKey) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: user key must be %d bytes", core.ErrInvalidSignature, ed25519.PublicKeySize)
	}
	if !ed25519.Verify(ed25519.PublicKey(userKey), delegationSignedBytes(signed.Delegation), signed.Signature) {
		return core.ErrInvalidSignature
	}
	return nil
}

// recordKey builds the store key the poll phase reproduces from its
// arguments, so distinct exchanges never collide.
func recordKey(anchor core.AnchorNumber, origin core.Origin, sessionKey core.SessionKey, expiration core.Timestamp) string {
	var nums [16]byte
	binary.BigEndian.PutUint64(nums[:8], uint64(anchor))
	binary.BigEndian.PutUint64(nums[8:], uint64(expiration))

	h := sha256.New()
	h.Write(nums[:])
	h.Write([]byte(origin))
	h.Write([]byte{0})
	h.Write(sessionKey)
	return hex.EncodeToString(h.Sum(nil))
}
