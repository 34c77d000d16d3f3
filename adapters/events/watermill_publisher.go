package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"

	"github.com/keyward/vouch/core"
	"github.com/keyward/vouch/ports"
)

const (
	TopicDelegationIssued = "vouch.delegation.issued"
	TopicAnchorOperation  = "vouch.anchor.operation"
)

// DelegationIssuedEvent represents one completed delegation exchange
type DelegationIssuedEvent struct {
	Anchor       uint64 `json:"anchor"`
	Origin       string `json:"origin"`
	ExpirationNS uint64 `json:"expiration_ns"`
}

// AnchorOperationEvent represents one mutation of the anchor ledger
type AnchorOperationEvent struct {
	Anchor    uint64 `json:"anchor"`
	Operation string `json:"operation"`
	DeviceKey string `json:"device_key,omitempty"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{publisher: publisher}
}

// PublishDelegationIssued publishes a delegation issuance event
func (p *WatermillPublisher) PublishDelegationIssued(ctx context.Context, anchor core.AnchorNumber, origin core.Origin, expiration core.Timestamp) error {
	event := DelegationIssuedEvent{
		Anchor:       uint64(anchor),
		Origin:       string(origin),
		ExpirationNS: uint64(expiration),
	}

	return p.publish(TopicDelegationIssued, event)
}

// PublishAnchorOperation publishes an anchor ledger event
func (p *WatermillPublisher) PublishAnchorOperation(ctx context.Context, anchor core.AnchorNumber, operation string, deviceKey []byte) error {
	event := AnchorOperationEvent{
		Anchor:    uint64(anchor),
		Operation: operation,
	}
	if len(deviceKey) > 0 {
		event.DeviceKey = hexutil.Encode(deviceKey)
	}

	return p.publish(TopicAnchorOperation, event)
}

func (p *WatermillPublisher) publish(topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.New().String(), payload)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
