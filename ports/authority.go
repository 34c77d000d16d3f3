package ports

import (
	"context"
	"time"

	"github.com/keyward/vouch/core"
)

// SigningAuthority is the asynchronous consensus-backed service that
// certifies delegations. PrepareDelegation commits scope and expiry
// synchronously; the signature itself only becomes available once
// certification completes, which GetDelegation polls for.
type SigningAuthority interface {
	// PrepareDelegation schedules a signature binding sessionKey to the
	// identity derived for (anchor, origin) and returns the commitment. A
	// failure here is structural, never a timing issue.
	PrepareDelegation(ctx context.Context, anchor core.AnchorNumber, origin core.Origin, sessionKey core.SessionKey, maxTTL time.Duration) (core.PreparedDelegation, error)

	// GetDelegation fetches the certified delegation matching an earlier
	// PrepareDelegation call, identified by the same anchor, origin and
	// session key plus the expiration the prepare returned. ready is false
	// while certification is still in flight. Idempotent and side-effect
	// free for identical arguments.
	GetDelegation(ctx context.Context, anchor core.AnchorNumber, origin core.Origin, sessionKey core.SessionKey, expiration core.Timestamp) (signed core.SignedDelegation, ready bool, err error)
}
