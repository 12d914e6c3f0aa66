package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meddesk/consultq/internal/domain"
	"github.com/meddesk/consultq/internal/notify"
)

func testMessage(recipientID string) notify.Message {
	return notify.Message{
		RecipientID: recipientID,
		QueueItemID: "item-1",
		Type:        domain.EventQueueItemAccepted,
		ItemStatus:  domain.QueueStatusAccepted,
		Title:       "Queue Item Accepted",
		OccurredAt:  time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestHub_DeliverToRegisteredClient(t *testing.T) {
	hub := NewHub()
	client := &Client{ID: "c1", UserID: "doctor-1", Send: make(chan []byte, 4)}
	hub.Register(client)

	err := hub.Deliver(context.Background(), testMessage("doctor-1"))
	require.NoError(t, err)

	select {
	case payload := <-client.Send:
		var got map[string]any
		require.NoError(t, json.Unmarshal(payload, &got))
		assert.Equal(t, "item-1", got["queue_item_id"])
		assert.Equal(t, "queue_item.accepted", got["type"])
		// RecipientID stays server side.
		assert.NotContains(t, got, "recipient_id")
	default:
		t.Fatal("expected a message on the client channel")
	}
}

func TestHub_DeliverToAllConnectionsOfUser(t *testing.T) {
	hub := NewHub()
	first := &Client{ID: "c1", UserID: "doctor-1", Send: make(chan []byte, 4)}
	second := &Client{ID: "c2", UserID: "doctor-1", Send: make(chan []byte, 4)}
	hub.Register(first)
	hub.Register(second)

	require.NoError(t, hub.Deliver(context.Background(), testMessage("doctor-1")))

	assert.Len(t, first.Send, 1)
	assert.Len(t, second.Send, 1)
}

func TestHub_DeliverWithoutRecipientIsSuccess(t *testing.T) {
	hub := NewHub()

	err := hub.Deliver(context.Background(), testMessage("nobody"))
	assert.NoError(t, err)
}

func TestHub_DeliverDoesNotLeakAcrossUsers(t *testing.T) {
	hub := NewHub()
	doctor := &Client{ID: "c1", UserID: "doctor-1", Send: make(chan []byte, 4)}
	patient := &Client{ID: "c2", UserID: "patient-1", Send: make(chan []byte, 4)}
	hub.Register(doctor)
	hub.Register(patient)

	require.NoError(t, hub.Deliver(context.Background(), testMessage("doctor-1")))

	assert.Len(t, doctor.Send, 1)
	assert.Len(t, patient.Send, 0)
}

func TestHub_SlowConsumerDropsMessage(t *testing.T) {
	hub := NewHub()
	client := &Client{ID: "c1", UserID: "doctor-1", Send: make(chan []byte, 1)}
	hub.Register(client)

	require.NoError(t, hub.Deliver(context.Background(), testMessage("doctor-1")))
	// Buffer is full now; the second delivery must not block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Deliver(context.Background(), testMessage("doctor-1"))
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("delivery blocked on a slow consumer")
	}
	assert.Len(t, client.Send, 1)
}

func TestHub_UnregisterClosesSendChannel(t *testing.T) {
	hub := NewHub()
	client := &Client{ID: "c1", UserID: "doctor-1", Send: make(chan []byte, 4)}
	hub.Register(client)
	hub.Unregister(client)

	_, open := <-client.Send
	assert.False(t, open)

	// Deliveries after unregister go nowhere but still succeed.
	assert.NoError(t, hub.Deliver(context.Background(), testMessage("doctor-1")))

	// Double unregister is a no-op, not a double close.
	hub.Unregister(client)
}
