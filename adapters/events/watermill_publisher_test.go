package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDelegationIssued(t *testing.T) {
	bus := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer bus.Close()

	messages, err := bus.Subscribe(context.Background(), TopicDelegationIssued)
	require.NoError(t, err)

	publisher := NewWatermillPublisher(bus)
	require.NoError(t, publisher.PublishDelegationIssued(context.Background(), 10000, "https://abc123.ic0.app", 42))

	select {
	case msg := <-messages:
		msg.Ack()
		var event DelegationIssuedEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &event))
		assert.Equal(t, uint64(10000), event.Anchor)
		assert.Equal(t, "https://abc123.ic0.app", event.Origin)
		assert.Equal(t, uint64(42), event.ExpirationNS)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}

func TestPublishAnchorOperation(t *testing.T) {
	bus := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer bus.Close()

	messages, err := bus.Subscribe(context.Background(), TopicAnchorOperation)
	require.NoError(t, err)

	publisher := NewWatermillPublisher(bus)
	require.NoError(t, publisher.PublishAnchorOperation(context.Background(), 10000, "add_device", []byte{0xAA}))

	select {
	case msg := <-messages:
		msg.Ack()
		var event AnchorOperationEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &event))
		assert.Equal(t, uint64(10000), event.Anchor)
		assert.Equal(t, "add_device", event.Operation)
		assert.Equal(t, "0xaa", event.DeviceKey)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}
