package domain

import "time"

// EventType names a queue item transition pushed to connected clients.
type EventType string

// Event types, one per transition.
const (
	EventQueueItemCreated   EventType = "queue_item.created"
	EventQueueItemAccepted  EventType = "queue_item.accepted"
	EventQueueItemRejected  EventType = "queue_item.rejected"
	EventQueueItemCancelled EventType = "queue_item.cancelled"
	EventQueueItemExpired   EventType = "queue_item.expired"
	EventQueueItemStarted   EventType = "queue_item.started"
	EventQueueItemClosed    EventType = "queue_item.closed"
)

// Event is a domain event recorded atomically with the transition that
// produced it and delivered at-least-once to connected clients.
type Event struct {
	ID          string      `json:"id"`
	QueueItemID string      `json:"queue_item_id"`
	Type        EventType   `json:"type"`
	Status      QueueStatus `json:"status"`
	OccurredAt  time.Time   `json:"occurred_at"`

	// Recipients are the user ids the event should be fanned out to.
	Recipients []string `json:"recipients"`
}

// NewEvent builds an event for a queue item transition. Recipients are the
// two participants of the pairing.
func NewEvent(t EventType, item *QueueItem, at time.Time) Event {
	return Event{
		QueueItemID: item.ID,
		Type:        t,
		Status:      item.Status,
		OccurredAt:  at,
		Recipients:  []string{item.DoctorUserID, item.PatientUserID},
	}
}
