// Package notify delivers queue lifecycle events to connected clients.
// Events are written to the outbox in the same transaction as the state
// transition that produced them; a polling worker drains the outbox and
// pushes each event to every registered sink at least once.
package notify

import (
	"time"

	"github.com/meddesk/consultq/internal/domain"
)

// DeliveryStatus represents the delivery state of an outbox row.
type DeliveryStatus string

// Delivery statuses.
const (
	DeliveryPending    DeliveryStatus = "pending"
	DeliveryProcessing DeliveryStatus = "processing"
	DeliverySent       DeliveryStatus = "sent"
	DeliveryFailed     DeliveryStatus = "failed"
)

// OutboxItem is one undelivered queue event.
type OutboxItem struct {
	ID            int64
	QueueItemID   string
	Type          domain.EventType
	ItemStatus    domain.QueueStatus
	Recipients    []string
	OccurredAt    time.Time
	Status        DeliveryStatus
	Attempts      int
	MaxAttempts   int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	SentAt        *time.Time
}

// QueueStats holds outbox size by delivery status.
type QueueStats struct {
	Pending    int
	Processing int
	Sent       int
	Failed     int
}
