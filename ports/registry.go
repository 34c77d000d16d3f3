package ports

import (
	"context"

	"github.com/keyward/vouch/core"
)

// AnchorRegistry is the durable ledger of registered identities.
type AnchorRegistry interface {
	// Register allocates the next anchor number and stores the anchor with
	// its first device.
	Register(ctx context.Context, device core.Device) (core.Anchor, error)

	// Anchor loads a registered anchor. Returns core.ErrUnknownAnchor when
	// the number was never assigned.
	Anchor(ctx context.Context, number core.AnchorNumber) (core.Anchor, error)

	// Save persists a mutated anchor over its stored state.
	Save(ctx context.Context, anchor core.Anchor) error
}
