package ports

import (
	"context"

	"github.com/keyward/vouch/core"
)

// EventPublisher feeds the archive pipeline with issuance and ledger activity.
type EventPublisher interface {
	PublishDelegationIssued(ctx context.Context, anchor core.AnchorNumber, origin core.Origin, expiration core.Timestamp) error
	PublishAnchorOperation(ctx context.Context, anchor core.AnchorNumber, operation string, deviceKey []byte) error
}
