package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRoundTrip(t *testing.T) {
	q := NewInMemory(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	body, _ := json.Marshal(map[string]string{"class_id": "c1"})
	require.NoError(t, q.Publish(ctx, Message{Type: "reminder", Body: body}))

	msgs, err := q.Consume(ctx)
	require.NoError(t, err)

	select {
	case msg := <-msgs:
		assert.Equal(t, "reminder", msg.Type)
		var decoded map[string]string
		require.NoError(t, json.Unmarshal(msg.Body, &decoded))
		assert.Equal(t, "c1", decoded["class_id"])
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
}

func TestInMemoryPublishCancelled(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, q.Publish(ctx, Message{Type: "a"}))

	// Queue full; a cancelled publish must not block forever.
	cancel()
	err := q.Publish(ctx, Message{Type: "b"})
	assert.ErrorIs(t, err, context.Canceled)
}
