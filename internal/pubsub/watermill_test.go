package pubsub

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridge_HandlerErrorDoesNotStallTopic(t *testing.T) {
	bridge := NewWatermillBridge()
	defer bridge.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	require.NoError(t, bridge.Subscribe(ctx, "chat.message.sent", func(ctx context.Context, msg Message) error {
		calls.Add(1)
		return errors.New("boom")
	}))

	for i := 0; i < 3; i++ {
		require.NoError(t, bridge.Publish(ctx, Message{Topic: "chat.message.sent", Payload: []byte("x")}))
	}

	require.Eventually(t, func() bool {
		return calls.Load() == 3
	}, 2*time.Second, 10*time.Millisecond)

	// Failed messages are acked, not redelivered.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(3), calls.Load())
}

func TestBridge_MetadataRoundTrip(t *testing.T) {
	msg := Message{
		Topic:    "chat.message.sent",
		Payload:  []byte("payload"),
		Metadata: map[string]string{"sender_type": "webui", "topic": "spoofed"},
	}

	got := fromWatermill(toWatermill(msg))

	assert.Equal(t, "chat.message.sent", got.Topic, "our topic wins over a metadata key with the same name")
	assert.Equal(t, "webui", got.Get("sender_type"))
	_, hasTopic := got.Metadata["topic"]
	assert.False(t, hasTopic)
	assert.Equal(t, []byte("payload"), got.Payload)
}

func TestMessage_GetOnNilMetadata(t *testing.T) {
	assert.Equal(t, "", Message{}.Get("anything"))
}
