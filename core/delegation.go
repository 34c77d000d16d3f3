package core

import "time"

// AnchorNumber is the stable numeric handle of a registered identity.
// Immutable once assigned, never reused.
type AnchorNumber uint64

// Origin is the scheme+host web origin of a relying application.
type Origin string

// SessionKey is the public key a relying application generated for one
// authorization exchange. The provider never sees the matching private key.
type SessionKey []byte

// UserKey is the public key of the identity derived for an (anchor, origin)
// pair. Relying applications verify delegation chains against it.
type UserKey []byte

// Timestamp is an instant in nanoseconds since the Unix epoch, the clock
// representation used by the signing authority.
type Timestamp uint64

// TimestampOf converts t into the signing authority's clock representation.
func TimestampOf(t time.Time) Timestamp {
	return Timestamp(t.UnixNano())
}

// Time converts ts back into a time.Time.
func (ts Timestamp) Time() time.Time {
	return time.Unix(0, int64(ts))
}

// AuthorizationRequest is a relying application's request to act on behalf
// of the user. Created once per handshake and read-only afterward.
type AuthorizationRequest struct {
	SessionKey       SessionKey    // public key the delegation is issued to
	RequestOrigin    Origin        // origin the request arrived from
	DerivationOrigin Origin        // optional alias origin to derive the identity from
	MaxTTL           time.Duration // requested lifetime, zero means provider default
}

// SigningRequest pins the parameters of one delegation exchange. The prepare
// call and every poll after it use these values verbatim.
type SigningRequest struct {
	Origin     Origin
	SessionKey SessionKey
	MaxTTL     time.Duration
}

// PreparedDelegation is the authority's synchronous commitment to sign: the
// identity the delegation will speak for and the expiration it fixed.
type PreparedDelegation struct {
	UserKey    UserKey
	Expiration Timestamp
}

// Delegation is the statement the authority certifies: the session key may
// act for the user until the expiration instant.
type Delegation struct {
	Pubkey     SessionKey
	Expiration Timestamp
	Targets    [][]byte // optional scope restriction, never set by this provider
}

// SignedDelegation pairs a delegation with the authority's signature over it.
type SignedDelegation struct {
	Delegation Delegation
	Signature  []byte
}

// IssuedDelegation is the outcome handed back to the relying application:
// the signed delegation together with the user key it chains back to.
type IssuedDelegation struct {
	UserKey          UserKey
	SignedDelegation SignedDelegation
}
